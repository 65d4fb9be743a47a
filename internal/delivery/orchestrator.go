package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/tradedesk/billing/pkg/mailer"
)

const defaultAttemptTimeout = 30 * time.Second

// Attempt records one channel try, successful or not.
type Attempt struct {
	Channel Channel
	Err     *ClassifiedError // nil on success
	At      time.Time
}

// Receipt is the outcome of a delivery: the channel that worked and
// the full attempt trail, including the failures that preceded success.
type Receipt struct {
	Channel  Channel
	Attempts []Attempt
}

// Failed reports whether every channel was exhausted.
func (r *Receipt) Failed() bool {
	return r.Channel == ""
}

// ExhaustedError is returned when no channel delivered. The last
// attempt's classification is usually the most specific thing to show
// the owner, since earlier channels often fail for configuration
// reasons they already know about.
type ExhaustedError struct {
	Receipt *Receipt
}

func (e *ExhaustedError) Error() string {
	last := e.Last()
	if last == nil {
		return "delivery: no channel configured"
	}
	return "delivery: all channels failed: " + last.Error()
}

// Last returns the classification of the final attempt.
func (e *ExhaustedError) Last() *ClassifiedError {
	for i := len(e.Receipt.Attempts) - 1; i >= 0; i-- {
		if e.Receipt.Attempts[i].Err != nil {
			return e.Receipt.Attempts[i].Err
		}
	}
	return nil
}

// Orchestrator tries channels strictly in order, one at a time. No
// parallel sends: two copies of the same invoice arriving by different
// routes is worse than a short delay.
type Orchestrator struct {
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

type OrchestratorOption func(*Orchestrator)

// WithAttemptTimeout caps how long a single channel may take before
// the orchestrator moves on.
func WithAttemptTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func NewOrchestrator(log *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		log:     log,
		timeout: defaultAttemptTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Deliver walks the ordered channels until one accepts the email. A
// failed channel is classified, logged, and skipped; it is not retried
// within this delivery. Returns the receipt either way so callers can
// record partial failures even on success.
func (o *Orchestrator) Deliver(ctx context.Context, senders []ChannelSender, email *mailer.Email) (*Receipt, error) {
	receipt := &Receipt{}

	if len(senders) == 0 {
		return receipt, &ExhaustedError{Receipt: receipt}
	}

	for _, cs := range senders {
		attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
		err := cs.Sender.Send(attemptCtx, email)
		cancel()

		if err == nil {
			receipt.Channel = cs.Channel
			receipt.Attempts = append(receipt.Attempts, Attempt{Channel: cs.Channel, At: o.now()})
			o.log.InfoContext(ctx, "email delivered",
				slog.String("channel", string(cs.Channel)),
				slog.Int("attempt", len(receipt.Attempts)),
			)
			return receipt, nil
		}

		classified := Classify(err)
		receipt.Attempts = append(receipt.Attempts, Attempt{Channel: cs.Channel, Err: classified, At: o.now()})
		o.log.WarnContext(ctx, "channel failed, falling back",
			slog.String("channel", string(cs.Channel)),
			slog.String("category", string(classified.Category)),
			slog.Any("error", err),
		)

		// The caller's deadline is gone; further channels would only
		// add misleading network-failure attempts.
		if ctx.Err() != nil {
			break
		}
	}

	return receipt, &ExhaustedError{Receipt: receipt}
}
