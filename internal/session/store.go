package session

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultID names the session used when a caller does not identify itself.
const DefaultID = "default"

// Store hands out sessions keyed by caller id, creating them on first use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	window  int
	extract Extractor
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Store)

// WithHistoryWindow sets how many recent turns prompts include.
func WithHistoryWindow(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithExtractor replaces ApplyHeuristics.
func WithExtractor(e Extractor) Option {
	return func(s *Store) {
		if e != nil {
			s.extract = e
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		window:   DefaultHistoryWindow,
		extract:  ApplyHeuristics,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the session for id, creating it if needed. An empty id maps
// to DefaultID.
func (s *Store) Get(id string) *Session {
	if id == "" {
		id = DefaultID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := newSession(id, s.window, s.extract, s.now)
	s.sessions[id] = sess
	s.logger.Debug("session created", zap.String("session_id", id))
	return sess
}

// Lookup returns an existing session without creating one.
func (s *Store) Lookup(id string) (*Session, bool) {
	if id == "" {
		id = DefaultID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete drops a session and reports whether it existed.
func (s *Store) Delete(id string) bool {
	if id == "" {
		id = DefaultID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.logger.Debug("session deleted", zap.String("session_id", id))
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// IDs lists the live session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
