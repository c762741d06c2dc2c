// Package chat runs one conversational turn end to end: session bookkeeping,
// the completion call with its liveness heartbeat, and mapping the outcome to
// the text a user actually sees.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lowkeylabs/murmur/internal/session"
	"github.com/lowkeylabs/murmur/llm"
)

// User-facing notices. Raw backend detail never reaches the user; it goes to
// the log instead.
const (
	TimeoutNotice = "The AI is taking too long to respond. Please try again later."
	FailureNotice = "Oops! Something went wrong. Please try again later."
)

const (
	DefaultRequestTimeout    = 90 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
)

// Notifier sends one liveness signal to the delivery platform (e.g. a Telegram
// "typing" chat action). Failures are swallowed by the heartbeat.
type Notifier func(ctx context.Context) error

// Outcome classifies how the completion call settled.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeBackendError
)

// InferenceOutcome is the settled result of one backend call. It is consumed
// exactly once to decide the session mutation and the reply text.
type InferenceOutcome struct {
	Kind Outcome
	Text string
	Err  error
}

type Orchestrator struct {
	sessions          *session.Store
	client            llm.Client
	model             string
	requestTimeout    time.Duration
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

type Options struct {
	Sessions          *session.Store
	Client            llm.Client
	Model             string
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	heartbeatInterval := opts.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessions:          opts.Sessions,
		client:            opts.Client,
		model:             opts.Model,
		requestTimeout:    requestTimeout,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}, nil
}

// Respond appends the user turn, runs the completion call under the request
// deadline with the heartbeat alongside it, and returns the reply text. On
// success the assistant turn is recorded; on timeout or backend failure the
// session keeps only the user turn.
func (o *Orchestrator) Respond(ctx context.Context, userID int64, prompt string, notify Notifier) string {
	o.sessions.Append(userID, llm.Message{Role: llm.RoleUser, Content: prompt})
	history := o.sessions.Messages(userID)

	stop := startHeartbeat(ctx, o.heartbeatInterval, notify)
	callCtx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	res, err := o.client.Chat(callCtx, llm.Request{Model: o.model, Messages: history})
	cancel()
	stop()

	outcome := classify(res, err)
	switch outcome.Kind {
	case OutcomeSuccess:
		o.sessions.Append(userID, llm.Message{Role: llm.RoleAssistant, Content: outcome.Text})
		o.logger.Info("chat_completed",
			"user_id", userID,
			"history_len", len(history),
			"total_tokens", res.Usage.TotalTokens,
			"duration", res.Duration.String(),
		)
		return outcome.Text
	case OutcomeTimeout:
		o.logger.Error("chat_timeout", "user_id", userID, "timeout", o.requestTimeout.String())
		return TimeoutNotice
	default:
		o.logger.Error("chat_backend_error", "user_id", userID, "error", outcome.Err.Error())
		return FailureNotice
	}
}

// classify folds the raw call result into an explicit outcome. A structurally
// empty completion counts as a backend failure, not a success.
func classify(res llm.Result, err error) InferenceOutcome {
	switch {
	case err == nil && strings.TrimSpace(res.Text) != "":
		return InferenceOutcome{Kind: OutcomeSuccess, Text: res.Text}
	case errors.Is(err, context.DeadlineExceeded):
		return InferenceOutcome{Kind: OutcomeTimeout, Err: err}
	case err == nil:
		return InferenceOutcome{Kind: OutcomeBackendError, Err: errors.New("empty completion")}
	default:
		return InferenceOutcome{Kind: OutcomeBackendError, Err: err}
	}
}

// startHeartbeat signals immediately and then on every interval tick until the
// returned stop func is called or ctx ends. Stop is idempotent. At most one
// in-flight signal may land after stop.
func startHeartbeat(ctx context.Context, interval time.Duration, notify Notifier) func() {
	if notify == nil {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		_ = notify(ctx)
		for {
			select {
			case <-ticker.C:
				select {
				case <-done:
					return
				case <-ctx.Done():
					return
				default:
				}
				_ = notify(ctx)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
