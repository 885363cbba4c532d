// Package chat implements the per-user chat session and the bridge that
// republishes an upstream token stream as a live client event stream.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/obahamonde/cloudantic/internal/domain"
)

// Token is one increment of upstream output. A non-nil Err terminates the
// stream; a closed channel without Err is a clean end-of-output.
type Token struct {
	Text string
	Err  error
}

// CompletionRequest carries one turn's input to the provider.
type CompletionRequest struct {
	Prompt string
	// History holds prior turns in chronological order.
	History []domain.Message
	// Namespace selects the agent configuration.
	Namespace string
}

// Provider is the upstream completion service. Stream returns immediately
// with a channel of ordered tokens, or an error when the call could not be
// dispatched at all.
type Provider interface {
	Stream(ctx context.Context, req CompletionRequest) (<-chan Token, error)
	IsAvailable() bool
}

// MockProvider echoes a canned streamed answer; it stands in for a real
// provider during development and tests.
type MockProvider struct {
	available bool
	delay     time.Duration
}

// NewMockProvider creates a mock completion provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{available: true, delay: 10 * time.Millisecond}
}

// IsAvailable returns whether the mock provider is available
func (m *MockProvider) IsAvailable() bool {
	return m.available
}

// Stream yields the canned response word by word.
func (m *MockProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan Token, error) {
	if !m.available {
		return nil, fmt.Errorf("mock provider is not available")
	}

	words := strings.Fields(fmt.Sprintf("You said: %s. This is a mock response with %d prior messages.", req.Prompt, len(req.History)))
	out := make(chan Token)
	go func() {
		defer close(out)
		for i, word := range words {
			if i > 0 {
				word = " " + word
			}
			select {
			case <-ctx.Done():
				return
			case out <- Token{Text: word}:
			}
			if m.delay > 0 {
				time.Sleep(m.delay)
			}
		}
	}()
	return out, nil
}
