// Package stage runs an ordered list of UI actions against one browser
// session, stopping at the first failure.
package stage

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"autolecture/internal/types"
	"autolecture/internal/uidriver"
	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

type Action func(ctx context.Context, d uidriver.Driver) error

type Stage struct {
	Name string
	// Timeout bounds Action; zero leaves it to the driver's own waits.
	Timeout  time.Duration
	Optional bool
	Action   Action
}

type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the runner position. Index is meaningful for Running and Failed.
type State struct {
	Phase Phase
	Index int
}

func (s State) String() string {
	switch s.Phase {
	case PhaseRunning, PhaseFailed:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Index)
	default:
		return s.Phase.String()
	}
}

// Observer sees every state transition together with the stage it concerns.
type Observer func(from, to State, stage string)

type Result struct {
	Completed   []string
	FailedStage string
	Err         error
	Outcomes    []types.StageOutcome
	State       State
	Success     bool
}

type Runner struct {
	driver   uidriver.Driver
	label    string
	observer Observer
}

type Option func(*Runner)

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithLabel names the pipeline in log lines.
func WithLabel(label string) Option {
	return func(r *Runner) { r.label = label }
}

func NewRunner(d uidriver.Driver, opts ...Option) *Runner {
	r := &Runner{driver: d, label: "pipeline"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes stages in order. The first failing non-optional stage stops
// the pipeline and no later action is invoked.
func (r *Runner) Run(ctx context.Context, stages []Stage) Result {
	logger := log.GetLogger().With(zap.String("pipeline", r.label))
	res := Result{State: State{Phase: PhaseNotStarted}}

	for i, st := range stages {
		r.transition(&res, State{Phase: PhaseRunning, Index: i}, st.Name)
		logger.Info("[Stage] start", zap.Int("index", i), zap.String("stage", st.Name))

		started := time.Now()
		err := r.runOne(ctx, st)
		outcome := types.StageOutcome{
			Name:       st.Name,
			Success:    err == nil,
			Optional:   st.Optional,
			DurationMs: time.Since(started).Milliseconds(),
		}
		if err != nil {
			outcome.Error = err.Error()
		}
		res.Outcomes = append(res.Outcomes, outcome)

		if err == nil {
			res.Completed = append(res.Completed, st.Name)
			logger.Info("[Stage] done", zap.String("stage", st.Name), zap.Int64("duration_ms", outcome.DurationMs))
			continue
		}
		if st.Optional && ctx.Err() == nil {
			res.Completed = append(res.Completed, st.Name)
			logger.Warn("[Stage] optional stage failed, continuing", zap.String("stage", st.Name), zap.Error(err))
			continue
		}

		res.FailedStage = st.Name
		res.Err = classify(ctx, st.Name, err)
		r.transition(&res, State{Phase: PhaseFailed, Index: i}, st.Name)
		logger.Error("[Stage] failed", zap.String("stage", st.Name), zap.Error(err))
		return res
	}

	r.transition(&res, State{Phase: PhaseCompleted}, "")
	res.Success = true
	return res
}

func (r *Runner) transition(res *Result, to State, name string) {
	from := res.State
	res.State = to
	if r.observer != nil {
		r.observer(from, to, name)
	}
}

func (r *Runner) runOne(ctx context.Context, st Stage) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.Action == nil {
		return errors.New("stage has no action")
	}
	if st.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.Timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			log.GetLogger().Error("[Stage] panic", zap.String("stage", st.Name),
				zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return st.Action(ctx, r.driver)
}

func classify(ctx context.Context, name string, err error) error {
	msg := fmt.Sprintf("stage %s failed", name)
	switch {
	case ctx.Err() != nil:
		return apperrors.Wrap(apperrors.CodeCanceled, msg, err)
	case errors.Is(err, uidriver.ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.CodeStageTimeout, msg, err)
	default:
		return apperrors.Wrap(apperrors.CodeStageFailed, msg, err)
	}
}
