// Package queue persists pipeline runs in Redis through Asynq so queued
// runs survive a server restart.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"autolecture/config"
	"autolecture/internal/taskrunner"
	"autolecture/log"
)

// Task type names
const (
	TypePipelineRun = "pipeline:run"
)

// runTimeout bounds one run, including the slowest video render.
const runTimeout = 3 * time.Hour

// QueueConfig holds Redis configuration for Asynq
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Queue manages run enqueueing and processing
type Queue struct {
	client *asynq.Client
	server *asynq.Server
	config QueueConfig
}

// DefaultConfig returns the queue configuration for the configured Redis.
// Runs share one browser profile, so a single worker is used.
func DefaultConfig() QueueConfig {
	return QueueConfig{
		RedisAddr:     config.Conf.Redis.Addr,
		RedisPassword: config.Conf.Redis.Password,
		RedisDB:       config.Conf.Redis.DB,
		Concurrency:   1,
	}
}

func (c QueueConfig) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// NewQueue creates a new Queue instance
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	redisOpt := cfg.redisOpt()

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.GetLogger().Error("[Queue] task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	return &Queue{
		client: asynq.NewClient(redisOpt),
		server: server,
		config: cfg,
	}
}

// NewRunTask builds the asynq task for payload. Runs are never retried:
// a failed run is reported and resubmitted by the user.
func NewRunTask(payload taskrunner.RunPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypePipelineRun, data,
		asynq.MaxRetry(0),
		asynq.Timeout(runTimeout),
		asynq.TaskID(payload.RunID),
	), nil
}

// Enqueue adds a pipeline run to the queue
func (q *Queue) Enqueue(payload taskrunner.RunPayload) error {
	task, err := NewRunTask(payload)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("failed to enqueue run: %w", err)
	}

	log.GetLogger().Info("[Queue] run enqueued",
		zap.String("run_id", payload.RunID),
		zap.String("queue_id", info.ID),
		zap.String("queue", info.Queue))

	return nil
}

// Close gracefully shuts down the queue
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	q.server.Shutdown()
	return nil
}

// Submit makes Queue usable wherever the in-process runner is.
func (q *Queue) Submit(payload taskrunner.RunPayload) error {
	return q.Enqueue(payload)
}
