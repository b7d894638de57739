// Package llm holds the generation and transcription backends.
package llm

import (
	"math"
	"strings"

	"callbot/internal/domain"
)

const (
	DefaultChatModel   = "gpt-4-turbo-preview"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 150
)

// systemMessage returns the system prompt, appending the short context when
// the prompt does not already carry it.
func systemMessage(req domain.GenerationRequest) string {
	ctx := strings.TrimSpace(req.Context)
	if ctx == "" || strings.Contains(req.SystemPrompt, ctx) {
		return req.SystemPrompt
	}
	if req.SystemPrompt == "" {
		return "Context:\n" + ctx
	}
	return req.SystemPrompt + "\nContext:\n" + ctx
}

func temperature(t *float32) float32 {
	if t == nil {
		return DefaultTemperature
	}
	return *t
}

// wireTemperature keeps a zero temperature on the wire; go-openai omits a
// zero value and the API would apply its own default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
