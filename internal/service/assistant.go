package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"callbot/internal/domain"
	"callbot/internal/session"
)

// ExitMessage is the farewell returned when the caller says "exit".
const ExitMessage = "Thanks for Calling Callbot"

// Retriever returns ranked context strings for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// Persona is the operator-supplied greeting and system prompt.
type Persona struct {
	FirstMessage string `json:"first_message"`
	SystemPrompt string `json:"system_prompt"`
}

// Reply is the outcome of one caller turn.
type Reply struct {
	SessionID string   `json:"session_id"`
	Query     string   `json:"query"`
	Response  string   `json:"response"`
	Contexts  []string `json:"-"`
	Ended     bool     `json:"ended"`
}

// Assistant runs a caller turn end to end: transcription, retrieval,
// prompt building, generation and session bookkeeping.
type Assistant struct {
	retriever   Retriever
	sessions    *session.Store
	generator   domain.Generator
	transcriber domain.Transcriber
	topK        int
	logger      *zap.Logger

	mu      sync.RWMutex
	persona Persona
}

type AssistantOption func(*Assistant)

func WithTranscriber(t domain.Transcriber) AssistantOption {
	return func(a *Assistant) { a.transcriber = t }
}

func WithPersona(p Persona) AssistantOption {
	return func(a *Assistant) { a.persona = p }
}

func WithTopK(k int) AssistantOption {
	return func(a *Assistant) {
		if k > 0 {
			a.topK = k
		}
	}
}

func NewAssistant(retriever Retriever, sessions *session.Store, generator domain.Generator, logger *zap.Logger, opts ...AssistantOption) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assistant{
		retriever: retriever,
		sessions:  sessions,
		generator: generator,
		topK:      DefaultTopK,
		logger:    logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Assistant) Sessions() *session.Store { return a.sessions }

// Profile returns what has been extracted about the caller of sessionID so
// far. Unknown sessions report an empty profile.
func (a *Assistant) Profile(sessionID string) domain.UserProfile {
	if sess, ok := a.sessions.Lookup(sessionID); ok {
		return sess.Profile()
	}
	return domain.UserProfile{}
}

func (a *Assistant) Persona() Persona {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.persona
}

func (a *Assistant) SetPersona(p Persona) {
	a.mu.Lock()
	a.persona = p
	a.mu.Unlock()
	a.logger.Info("persona updated", zap.Bool("has_system_prompt", p.SystemPrompt != ""))
}

// IsExit reports whether the caller asked to end the call.
func IsExit(text string) bool {
	return strings.Contains(strings.ToLower(text), "exit")
}

// Respond handles one text turn for sessionID. Turns of the same session are
// processed one at a time.
func (a *Assistant) Respond(ctx context.Context, sessionID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, fmt.Errorf("%w: empty message", domain.ErrInvalidArgument)
	}
	sess := a.sessions.Get(sessionID)
	reply := Reply{SessionID: sess.ID(), Query: text}
	if IsExit(text) {
		reply.Ended = true
		reply.Response = ExitMessage
		a.logger.Info("caller ended conversation", zap.String("session_id", sess.ID()))
		return reply, nil
	}

	err := sess.Serialize(func() error {
		sess.RecordUserTurn(text)

		contexts, err := a.retriever.Retrieve(ctx, text, a.topK)
		if err != nil {
			return err
		}
		reply.Contexts = contexts

		req := domain.GenerationRequest{
			SystemPrompt: a.systemPrompt(sess.BuildPrompt(contexts)),
			Query:        text,
		}
		if len(contexts) > 0 {
			req.Context = contexts[0]
		}
		answer, err := a.generator.Generate(ctx, req)
		if err != nil {
			return err
		}
		sess.RecordBotTurn(answer)
		reply.Response = answer
		return nil
	})
	if err != nil {
		a.logger.Error("turn failed", zap.String("session_id", sess.ID()), zap.Error(err))
		return Reply{}, err
	}
	a.logger.Debug("turn complete",
		zap.String("session_id", sess.ID()),
		zap.Int("contexts", len(reply.Contexts)),
	)
	return reply, nil
}

// HandleAudio transcribes a recording and answers it like Respond.
func (a *Assistant) HandleAudio(ctx context.Context, sessionID, filename string, audio io.Reader) (Reply, error) {
	if a.transcriber == nil {
		return Reply{}, fmt.Errorf("%w: no transcriber configured", domain.ErrTranscriptionFailure)
	}
	text, err := a.transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return Reply{}, err
	}
	text = strings.TrimSpace(text)
	a.logger.Info("transcribed", zap.String("session_id", sessionID), zap.Int("chars", len(text)))
	if text == "" {
		return Reply{}, fmt.Errorf("%w: empty transcription", domain.ErrTranscriptionFailure)
	}
	return a.Respond(ctx, sessionID, text)
}

func (a *Assistant) systemPrompt(prompt string) string {
	p := a.Persona()
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return prompt
	}
	return strings.TrimSpace(p.SystemPrompt) + "\n\n" + prompt
}
