package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/internal/observability"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// State tracks one stream's progress through the bridge.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateStreaming
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventType classifies an emitted stream event.
type EventType string

const (
	EventChunk EventType = "message"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one ordered increment delivered to the subscriber.
type Event struct {
	Type EventType
	Data string
}

// Emitter receives events in upstream generation order. A non-nil return is
// treated as a subscriber disconnect.
type Emitter func(Event) error

// BridgeConfig controls retry behavior for upstream dispatch failures.
type BridgeConfig struct {
	Namespace   string
	MaxAttempts int
	BaseDelay   time.Duration
}

// Bridge drives an upstream completion call and republishes its tokens as an
// ordered, cancellable, at-most-once event stream to a single subscriber.
// At most one stream runs per user at a time.
type Bridge struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	config   BridgeConfig
	logger   *zap.Logger
	metrics  *observability.StreamMetrics

	mu     sync.Mutex
	active map[string]bool
}

// NewBridge creates a stream bridge over the given completion provider.
func NewBridge(provider Provider, config BridgeConfig, logger *zap.Logger, metrics *observability.StreamMetrics) *Bridge {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 250 * time.Millisecond
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "completion-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Bridge{
		provider: provider,
		breaker:  breaker,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		active:   make(map[string]bool),
	}
}

// Run streams one turn for the session's user. It blocks until the stream
// reaches a terminal state and returns nil only on Completed. Cancelling ctx
// aborts the stream: the upstream call is released and nothing is persisted.
func (b *Bridge) Run(ctx context.Context, session *Session, text string, emit Emitter) error {
	user := session.User()
	if !b.acquire(user) {
		if b.metrics != nil {
			b.metrics.Rejected.Inc()
		}
		return appErrors.NewSessionBusy("a stream is already open for user " + user)
	}
	defer b.release(user)

	if b.metrics != nil {
		b.metrics.Active.Inc()
		defer b.metrics.Active.Dec()
	}

	priorTurns := session.PriorTurns()
	session.AppendTurn(text)

	state := StateDispatching
	b.logger.Info("stream accepted",
		zap.String("user", user),
		zap.String("state", state.String()),
	)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := CompletionRequest{
		Prompt:    text,
		History:   priorTurns,
		Namespace: b.config.Namespace,
	}

	var accumulator strings.Builder
	emitted := false

	for attempt := 0; ; attempt++ {
		tokens, err := b.dispatch(streamCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return b.abort(session, user)
			}
			if attempt+1 < b.config.MaxAttempts {
				if !b.backoff(ctx, attempt) {
					return b.abort(session, user)
				}
				continue
			}
			return b.fail(session, user, emit, appErrors.NewUpstream("completion dispatch failed", err))
		}

		done, err := b.pump(ctx, session, tokens, emit, &accumulator, &emitted, &state)
		if done || err != nil {
			return err
		}
		// Upstream failed before anything was emitted; retry is still safe.
		if attempt+1 >= b.config.MaxAttempts {
			return b.fail(session, user, emit, appErrors.NewUpstream("completion stream failed", nil))
		}
		if !b.backoff(ctx, attempt) {
			return b.abort(session, user)
		}
	}
}

// pump forwards tokens until the stream ends one way or another. It reports
// done=true when a terminal state was reached; done=false asks the caller to
// retry (only ever before the first emitted chunk).
func (b *Bridge) pump(ctx context.Context, session *Session, tokens <-chan Token, emit Emitter, accumulator *strings.Builder, emitted *bool, state *State) (bool, error) {
	user := session.User()

	for {
		select {
		case <-ctx.Done():
			return true, b.abort(session, user)

		case token, open := <-tokens:
			if !open {
				return true, b.complete(ctx, session, emit, accumulator.String(), state)
			}
			if token.Err != nil {
				// Retrying after emission would replay chunks and break the
				// at-most-once contract, so only a pristine stream retries.
				if !*emitted {
					return false, nil
				}
				return true, b.fail(session, user, emit, appErrors.NewUpstream("completion stream failed mid-flight", token.Err))
			}

			if *state != StateStreaming {
				*state = StateStreaming
			}
			accumulator.WriteString(token.Text)
			if err := emit(Event{Type: EventChunk, Data: token.Text}); err != nil {
				return true, b.abort(session, user)
			}
			*emitted = true
			if b.metrics != nil {
				b.metrics.Chunks.Inc()
			}
		}
	}
}

func (b *Bridge) complete(ctx context.Context, session *Session, emit Emitter, fullText string, state *State) error {
	if err := session.FinalizeTurn(ctx, fullText); err != nil {
		return b.fail(session, session.User(), emit, appErrors.Wrap(err, "failed to persist completed turn"))
	}
	*state = StateCompleted

	if err := emit(Event{Type: EventDone}); err != nil {
		// Turn is already durable; a lost done event is the client's problem.
		b.logger.Debug("subscriber gone before done event", zap.String("user", session.User()))
	}
	if b.metrics != nil {
		b.metrics.Completed.Inc()
	}
	b.logger.Info("stream completed",
		zap.String("user", session.User()),
		zap.Int("chars", len(fullText)),
	)
	return nil
}

func (b *Bridge) abort(session *Session, user string) error {
	session.DiscardTurn()
	if b.metrics != nil {
		b.metrics.Aborted.Inc()
	}
	b.logger.Info("stream aborted by subscriber", zap.String("user", user))
	return appErrors.NewStreamAborted("stream cancelled for user " + user)
}

func (b *Bridge) fail(session *Session, user string, emit Emitter, cause error) error {
	session.DiscardTurn()
	if emitErr := emit(Event{Type: EventError, Data: cause.Error()}); emitErr != nil {
		b.logger.Debug("subscriber gone before error event", zap.String("user", user))
	}
	if b.metrics != nil {
		b.metrics.Failed.Inc()
	}
	b.logger.Warn("stream failed",
		zap.String("user", user),
		zap.Error(cause),
	)
	return cause
}

// dispatch issues the upstream call through the circuit breaker.
func (b *Bridge) dispatch(ctx context.Context, req CompletionRequest) (<-chan Token, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.provider.Stream(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(<-chan Token), nil
}

// backoff sleeps with exponential growth; false means ctx was cancelled.
func (b *Bridge) backoff(ctx context.Context, attempt int) bool {
	delay := b.config.BaseDelay << uint(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (b *Bridge) acquire(user string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active[user] {
		return false
	}
	b.active[user] = true
	return true
}

func (b *Bridge) release(user string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, user)
}
