// Package session keeps per-caller dialogue state: the turn log and the
// booking fields picked up from what the caller said.
package session

import (
	"sync"
	"time"

	"callbot/internal/domain"
)

// DefaultHistoryWindow is how many recent turns go into a prompt.
const DefaultHistoryWindow = 3

// Session is the dialogue state of one caller. All methods are safe for
// concurrent use.
type Session struct {
	id      string
	window  int
	extract Extractor
	now     func() time.Time

	// exchange serializes whole user/bot round trips.
	exchange sync.Mutex

	mu        sync.RWMutex
	turns     []domain.Turn
	profile   domain.UserProfile
	createdAt time.Time
	updatedAt time.Time
}

// Snapshot is a copy of a session's state.
type Snapshot struct {
	ID        string             `json:"id"`
	Profile   domain.UserProfile `json:"profile"`
	Turns     []domain.Turn      `json:"turns"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func newSession(id string, window int, extract Extractor, now func() time.Time) *Session {
	t := now()
	return &Session{id: id, window: window, extract: extract, now: now, createdAt: t, updatedAt: t}
}

func (s *Session) ID() string { return s.id }

// Serialize runs fn while holding the session's exchange lock, so one
// caller's turns never interleave.
func (s *Session) Serialize(fn func() error) error {
	s.exchange.Lock()
	defer s.exchange.Unlock()
	return fn()
}

// RecordUserTurn appends the user's utterance and updates the profile from it.
func (s *Session) RecordUserTurn(text string) domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(domain.SpeakerUser, text)
	s.profile = s.extract(s.profile, text)
	return s.profile
}

func (s *Session) RecordBotTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(domain.SpeakerBot, text)
}

func (s *Session) append(speaker domain.Speaker, text string) {
	now := s.now()
	s.turns = append(s.turns, domain.Turn{Speaker: speaker, Text: text, At: now})
	s.updatedAt = now
}

func (s *Session) Profile() domain.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Turns returns a copy of the full turn log, oldest first.
func (s *Session) Turns() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Turn(nil), s.turns...)
}

// BuildPrompt renders the prompt for the current state and the retrieved
// contexts.
func (s *Session) BuildPrompt(contexts []string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BuildPrompt(s.profile, s.turns, s.window, contexts)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:        s.id,
		Profile:   s.profile,
		Turns:     append([]domain.Turn{}, s.turns...),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}
