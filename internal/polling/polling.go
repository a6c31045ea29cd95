// Package polling waits for a remote job to reach a terminal state.
//
// Only Pending keeps the loop going. Done, Failed and Unknown end it on the
// first sighting, so a remote failure is never hidden behind retries.
package polling

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autolecture/log"
)

type State uint8

const (
	StatePending State = iota + 1
	StateDone
	StateFailed
	StateUnknown
)

// Reasons set on synthetic statuses. ReasonTimeout marks the Failed status
// returned when the attempt budget runs out while the job is still pending;
// ReasonTransport marks an observation that came from a failed request.
const (
	ReasonTimeout   = "timeout"
	ReasonTransport = "transport"
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// IsTerminal reports whether polling stops at this state.
func (s State) IsTerminal() bool {
	return s != StatePending
}

// Status is one observation of a remote job.
type Status struct {
	State  State
	Result string // set for Done
	Raw    string // raw remote payload, kept for diagnostics
	Reason string
	Last   *Status // last observation before a timeout
}

func Done(result, raw string) Status {
	return Status{State: StateDone, Result: result, Raw: raw}
}

func Pending(raw string) Status {
	return Status{State: StatePending, Raw: raw}
}

func Failed(reason, raw string) Status {
	return Status{State: StateFailed, Reason: reason, Raw: raw}
}

func Unknown(raw string) Status {
	return Status{State: StateUnknown, Raw: raw}
}

// IsTransport reports whether s stands for a failed request rather than a
// remote answer.
func (s Status) IsTransport() bool {
	return s.Reason == ReasonTransport
}

// IsTimeout reports whether s is the synthetic status produced by an
// exhausted attempt budget.
func (s Status) IsTimeout() bool {
	return s.State == StateFailed && s.Reason == ReasonTimeout
}

// FetchFunc performs exactly one status request. A non-nil error is a
// transport failure.
type FetchFunc func(ctx context.Context) (Status, error)

type Options struct {
	MaxAttempts int
	Interval    time.Duration
	// A failed fetch normally counts as a pending attempt.
	// StopOnTransportError ends the poll with a transport Unknown instead.
	StopOnTransportError bool
	// Label identifies the job in log lines.
	Label string
}

// Poll sleeps Interval before every fetch and returns the first terminal
// status. The error is non-nil only when ctx ends first.
func Poll(ctx context.Context, fetch FetchFunc, opts Options) (Status, error) {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	last := Pending("")
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := sleep(ctx, opts.Interval); err != nil {
			return last, err
		}

		status, err := fetch(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return last, ctxErr
			}
			if opts.StopOnTransportError {
				return Status{State: StateUnknown, Reason: ReasonTransport, Raw: err.Error()}, nil
			}
			log.GetLogger().Warn("[Polling] transport error, counted as pending",
				zap.String("job", opts.Label),
				zap.Int("attempt", attempt),
				zap.Error(err))
			last = Status{State: StatePending, Reason: ReasonTransport, Raw: err.Error()}
			continue
		}

		if status.State.IsTerminal() {
			log.GetLogger().Debug("[Polling] terminal status",
				zap.String("job", opts.Label),
				zap.Int("attempt", attempt),
				zap.Stringer("state", status.State))
			return status, nil
		}

		log.GetLogger().Info("[Polling] job still pending",
			zap.String("job", opts.Label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts))
		last = status
	}

	lastCopy := last
	return Status{State: StateFailed, Reason: ReasonTimeout, Raw: last.Raw, Last: &lastCopy}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
