package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"autolecture/internal/taskrunner"
	"autolecture/log"
)

// TaskHandlers executes queued runs.
type TaskHandlers struct {
	pipeline taskrunner.Pipeline
	save     taskrunner.SaveFunc
}

func NewTaskHandlers(pipeline taskrunner.Pipeline, save taskrunner.SaveFunc) *TaskHandlers {
	return &TaskHandlers{pipeline: pipeline, save: save}
}

// HandlePipelineRun runs one pipeline. A failed run is recorded in its
// report and is not an asynq failure; only undecodable payloads are.
func (h *TaskHandlers) HandlePipelineRun(ctx context.Context, t *asynq.Task) error {
	var payload taskrunner.RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	log.GetLogger().Info("[Queue] processing run",
		zap.String("run_id", payload.RunID),
		zap.String("source_url", payload.SourceURL))

	report := taskrunner.Execute(ctx, h.pipeline, h.save, payload)

	log.GetLogger().Info("[Queue] run finished",
		zap.String("run_id", payload.RunID),
		zap.String("status", report.Status.String()),
		zap.String("failed_step", report.FailedStep))
	return nil
}

// RegisterHandlers registers all task handlers with the Asynq server mux
func (h *TaskHandlers) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePipelineRun, h.HandlePipelineRun)
}

// StartWorker runs the Asynq worker until the server is shut down.
func StartWorker(q *Queue, handlers *TaskHandlers) error {
	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	log.GetLogger().Info("[Queue] starting worker",
		zap.String("redis_addr", q.config.RedisAddr),
		zap.Int("concurrency", q.config.Concurrency))

	return q.server.Run(mux)
}
