package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/obahamonde/cloudantic/internal/domain"
	"github.com/obahamonde/cloudantic/internal/store"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// streamScript describes one dispatch attempt of the scripted provider.
type streamScript struct {
	dispatchErr error
	tokens      []Token
	hold        chan struct{} // when set, the stream stays open until closed
}

type scriptedProvider struct {
	mu     sync.Mutex
	script []streamScript
	calls  int
}

func (p *scriptedProvider) Stream(ctx context.Context, _ CompletionRequest) (<-chan Token, error) {
	p.mu.Lock()
	scripted := p.calls < len(p.script)
	var current streamScript
	if scripted {
		current = p.script[p.calls]
	}
	p.calls++
	p.mu.Unlock()

	if !scripted {
		return nil, errors.New("unscripted dispatch")
	}
	if current.dispatchErr != nil {
		return nil, current.dispatchErr
	}

	out := make(chan Token)
	go func() {
		defer close(out)
		for _, token := range current.tokens {
			select {
			case <-ctx.Done():
				return
			case out <- token:
			}
		}
		if current.hold != nil {
			select {
			case <-ctx.Done():
			case <-current.hold:
			}
		}
	}()
	return out, nil
}

func (p *scriptedProvider) IsAvailable() bool { return true }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// eventRecorder collects emitted events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	failAt int // 1-based chunk index to fail on, 0 disables
	chunks int
}

func (r *eventRecorder) emit(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Type == EventChunk {
		r.chunks++
		if r.failAt > 0 && r.chunks >= r.failAt {
			return errors.New("subscriber gone")
		}
	}
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) recorded() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) chunkText() string {
	var text string
	for _, event := range r.recorded() {
		if event.Type == EventChunk {
			text += event.Data
		}
	}
	return text
}

func testBridge(t *testing.T, provider Provider, maxAttempts int) *Bridge {
	t.Helper()
	return NewBridge(provider, BridgeConfig{
		Namespace:   "default",
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
	}, zaptest.NewLogger(t), nil)
}

func tokensOf(words ...string) []Token {
	out := make([]Token, len(words))
	for i, w := range words {
		out[i] = Token{Text: w}
	}
	return out
}

func TestRunCompletesAndPersistsTurn(t *testing.T) {
	mem := store.NewMemoryStore()
	session, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)

	provider := &scriptedProvider{script: []streamScript{
		{tokens: tokensOf("Hello", " ", "world")},
	}}
	bridge := testBridge(t, provider, 3)
	recorder := &eventRecorder{}

	require.NoError(t, bridge.Run(context.Background(), session, "hi", recorder.emit))

	events := recorder.recorded()
	require.NotEmpty(t, events)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Equal(t, "Hello world", recorder.chunkText())

	reloaded, err := LoadHistory(context.Background(), mem, "u1")
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	assert.Equal(t, "Hello world", reloaded[0].Content)
	assert.Equal(t, domain.RoleAssistant, reloaded[0].Role)
	assert.Equal(t, "hi", reloaded[1].Content)
}

func TestRunRejectsConcurrentStreamForSameUser(t *testing.T) {
	mem := store.NewMemoryStore()
	first, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)
	second, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)

	hold := make(chan struct{})
	provider := &scriptedProvider{script: []streamScript{
		{tokens: tokensOf("partial"), hold: hold},
	}}
	bridge := testBridge(t, provider, 1)

	firstChunk := make(chan struct{})
	firstDone := make(chan error, 1)
	var once sync.Once
	go func() {
		firstDone <- bridge.Run(context.Background(), first, "one", func(event Event) error {
			if event.Type == EventChunk {
				once.Do(func() { close(firstChunk) })
			}
			return nil
		})
	}()

	<-firstChunk
	err = bridge.Run(context.Background(), second, "two", func(Event) error { return nil })
	assert.True(t, appErrors.IsSessionBusy(err))

	close(hold)
	require.NoError(t, <-firstDone)

	// The rejected stream must not have disturbed the winner's turn.
	reloaded, err := LoadHistory(context.Background(), mem, "u1")
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	assert.Equal(t, "one", reloaded[1].Content)
}

func TestRunCancellationPersistsNothing(t *testing.T) {
	mem := store.NewMemoryStore()
	session, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)

	hold := make(chan struct{})
	defer close(hold)
	provider := &scriptedProvider{script: []streamScript{
		{tokens: tokensOf("partial", " answer"), hold: hold},
	}}
	bridge := testBridge(t, provider, 1)

	ctx, cancel := context.WithCancel(context.Background())
	recorder := &eventRecorder{}
	done := make(chan error, 1)
	go func() {
		done <- bridge.Run(ctx, session, "hi", func(event Event) error {
			if err := recorder.emit(event); err != nil {
				return err
			}
			if recorder.chunks == 2 {
				cancel()
			}
			return nil
		})
	}()

	err = <-done
	assert.True(t, appErrors.IsStreamAborted(err))
	assert.Empty(t, session.History())

	reloaded, err := LoadHistory(context.Background(), mem, "u1")
	require.NoError(t, err)
	assert.Empty(t, reloaded)
}

func TestRunRetriesDispatchFailures(t *testing.T) {
	mem := store.NewMemoryStore()
	session, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)

	provider := &scriptedProvider{script: []streamScript{
		{dispatchErr: errors.New("upstream hiccup")},
		{tokens: tokensOf("recovered")},
	}}
	bridge := testBridge(t, provider, 3)
	recorder := &eventRecorder{}

	require.NoError(t, bridge.Run(context.Background(), session, "hi", recorder.emit))
	assert.Equal(t, 2, provider.callCount())
	assert.Equal(t, "recovered", recorder.chunkText())

	reloaded, err := LoadHistory(context.Background(), mem, "u1")
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	assert.Equal(t, "recovered", reloaded[0].Content)
}

func TestRunRetryExhaustionEmitsErrorEvent(t *testing.T) {
	mem := store.NewMemoryStore()
	session, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)

	boom := errors.New("upstream down")
	provider := &scriptedProvider{script: []streamScript{
		{dispatchErr: boom},
		{dispatchErr: boom},
	}}
	bridge := testBridge(t, provider, 2)
	recorder := &eventRecorder{}

	err = bridge.Run(context.Background(), session, "hi", recorder.emit)
	assert.True(t, appErrors.IsUpstream(err))

	events := recorder.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)

	reloaded, err := LoadHistory(context.Background(), mem, "u1")
	require.NoError(t, err)
	assert.Empty(t, reloaded)
}

func TestRunRetriesTokenErrorBeforeFirstChunk(t *testing.T) {
	mem := store.NewMemoryStore()
	session, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)

	provider := &scriptedProvider{script: []streamScript{
		{tokens: []Token{{Err: errors.New("stream reset")}}},
		{tokens: tokensOf("second try")},
	}}
	bridge := testBridge(t, provider, 3)
	recorder := &eventRecorder{}

	require.NoError(t, bridge.Run(context.Background(), session, "hi", recorder.emit))
	assert.Equal(t, "second try", recorder.chunkText())
}

func TestRunFailsImmediatelyOnMidStreamTokenError(t *testing.T) {
	mem := store.NewMemoryStore()
	session, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)

	provider := &scriptedProvider{script: []streamScript{
		{tokens: []Token{{Text: "partial"}, {Err: errors.New("stream reset")}}},
	}}
	bridge := testBridge(t, provider, 3)
	recorder := &eventRecorder{}

	err = bridge.Run(context.Background(), session, "hi", recorder.emit)
	assert.True(t, appErrors.IsUpstream(err))
	// Replaying chunks is not allowed, so only one dispatch happens.
	assert.Equal(t, 1, provider.callCount())

	reloaded, err := LoadHistory(context.Background(), mem, "u1")
	require.NoError(t, err)
	assert.Empty(t, reloaded)
}

func TestRunSubscriberDisconnectAborts(t *testing.T) {
	mem := store.NewMemoryStore()
	session, err := NewSession(context.Background(), mem, "u1")
	require.NoError(t, err)

	provider := &scriptedProvider{script: []streamScript{
		{tokens: tokensOf("a", "b", "c")},
	}}
	bridge := testBridge(t, provider, 1)
	recorder := &eventRecorder{failAt: 2}

	err = bridge.Run(context.Background(), session, "hi", recorder.emit)
	assert.True(t, appErrors.IsStreamAborted(err))

	reloaded, err := LoadHistory(context.Background(), mem, "u1")
	require.NoError(t, err)
	assert.Empty(t, reloaded)
}
