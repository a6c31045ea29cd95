// Package taskrunner executes pipeline runs in-process, one at a time by
// default since every run drives the same browser profile.
package taskrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"autolecture/internal/orchestrator"
	"autolecture/internal/types"
	"autolecture/log"
)

const (
	defaultQueueSize   = 16
	defaultConcurrency = 1
)

var (
	ErrRunnerStopped = errors.New("task runner stopped")
	ErrQueueFull     = errors.New("task queue is full")
)

// Config controls in-process task runner behavior.
type Config struct {
	QueueSize   int
	Concurrency int
}

func DefaultConfig() Config {
	return Config{
		QueueSize:   defaultQueueSize,
		Concurrency: defaultConcurrency,
	}
}

// RunPayload is the queued form of a run request.
type RunPayload = orchestrator.Request

// Pipeline runs one request to completion.
type Pipeline interface {
	Run(ctx context.Context, req orchestrator.Request) *types.RunReport
}

// SaveFunc persists the final report of a run.
type SaveFunc func(report *types.RunReport) error

// Runner executes queued runs with in-memory workers.
type Runner struct {
	pipeline Pipeline
	save     SaveFunc
	config   Config

	queue  chan RunPayload
	ctx    context.Context
	cancel context.CancelFunc

	workerWg sync.WaitGroup
	closed   atomic.Bool
	running  atomic.Int32
}

// New creates and starts a task runner. save may be nil.
func New(pipeline Pipeline, save SaveFunc, cfg Config) *Runner {
	cfg = normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	runner := &Runner{
		pipeline: pipeline,
		save:     save,
		config:   cfg,
		queue:    make(chan RunPayload, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < cfg.Concurrency; i++ {
		runner.workerWg.Add(1)
		go runner.worker(i + 1)
	}

	return runner
}

func normalizeConfig(cfg Config) Config {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return cfg
}

// Submit queues a run. It never blocks: a full queue is reported as
// ErrQueueFull.
func (r *Runner) Submit(payload RunPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	if r.closed.Load() {
		return ErrRunnerStopped
	}

	select {
	case <-r.ctx.Done():
		return ErrRunnerStopped
	case r.queue <- payload:
		log.GetLogger().Info("[TaskRunner] run submitted",
			zap.String("run_id", payload.RunID),
			zap.String("source_url", payload.SourceURL))
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Runner) worker(workerID int) {
	defer r.workerWg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		select {
		case <-r.ctx.Done():
			return
		case payload := <-r.queue:
			r.process(workerID, payload)
		}
	}
}

func (r *Runner) process(workerID int, payload RunPayload) {
	r.running.Add(1)
	defer r.running.Add(-1)

	logger := log.GetLogger().With(zap.Int("worker_id", workerID), zap.String("run_id", payload.RunID))
	report := Execute(r.ctx, r.pipeline, r.save, payload)
	if !report.Success() {
		logger.Error("[TaskRunner] run failed",
			zap.String("status", report.Status.String()),
			zap.String("failed_step", report.FailedStep),
			zap.String("reason", report.FailReason))
		return
	}
	logger.Info("[TaskRunner] run completed")
}

// Execute runs payload through pipeline and saves the final report. A
// panicking pipeline yields a fatal report instead of killing the worker.
func Execute(ctx context.Context, pipeline Pipeline, save SaveFunc, payload RunPayload) (report *types.RunReport) {
	defer func() {
		if p := recover(); p != nil {
			log.GetLogger().Error("[TaskRunner] pipeline panicked", zap.String("run_id", payload.RunID), zap.Any("panic", p))
			report = types.NewRunReport(payload.RunID)
			report.SourceUrl = payload.SourceURL
			report.Status = types.RunStatusFatal
			report.StatusMsg = "fatal"
			report.FailedStep = "preflight"
			report.FailReason = "pipeline panicked"
		}
		if save != nil {
			if err := save(report); err != nil {
				log.GetLogger().Error("[TaskRunner] save report failed", zap.String("run_id", payload.RunID), zap.Error(err))
			}
		}
	}()
	return pipeline.Run(ctx, payload)
}

// Close stops workers and rejects new runs. An in-flight run sees its
// context cancelled.
func (r *Runner) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}

	r.cancel()
	r.workerWg.Wait()
}

// Pending returns the number of queued runs waiting for workers.
func (r *Runner) Pending() int {
	return len(r.queue)
}

// Running returns the number of runs currently executing.
func (r *Runner) Running() int {
	return int(r.running.Load())
}
