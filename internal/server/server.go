// Package server runs the HTTP API that queues pipeline runs and serves
// their reports and files.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autolecture/config"
	"autolecture/internal/appcore"
	"autolecture/internal/appdirs"
	"autolecture/internal/handler"
	"autolecture/internal/queue"
	"autolecture/internal/router"
	"autolecture/internal/storage"
	"autolecture/internal/taskrunner"
	"autolecture/internal/types"
	"autolecture/log"
)

const shutdownTimeout = 10 * time.Second

// StartBackend serves the API until ctx is done. storage.InitDB must have
// run before.
func StartBackend(ctx context.Context) error {
	paths, err := appdirs.Resolve()
	if err != nil {
		return err
	}

	saveProgress := func(r *types.RunReport) {
		if err := storage.SaveRun(r); err != nil {
			log.GetLogger().Warn("[Server] save run progress failed", zap.String("run_id", r.RunId), zap.Error(err))
		}
	}
	app, err := appcore.Build(config.Conf, paths, appcore.Options{DB: storage.DB, OnUpdate: saveProgress})
	if err != nil {
		return err
	}
	defer app.Close()

	submitter, stopWorkers := startWorkers(app)
	defer stopWorkers()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	hdl := handler.NewHandler(submitter, app.Settings.RunRoot, config.Conf.App.DefaultAudience)
	router.SetupRouter(engine, hdl, router.Options{
		RateLimit: config.Conf.Server.RateLimit,
		RateBurst: config.Conf.Server.RateBurst,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Conf.Server.Host, config.Conf.Server.Port),
		Handler: engine,
	}
	errCh := make(chan error, 1)
	go func() {
		log.GetLogger().Info("[Server] listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startWorkers starts the Redis-backed queue when enabled and the
// in-process runner otherwise.
func startWorkers(app *appcore.App) (handler.Submitter, func()) {
	save := taskrunner.SaveFunc(storage.SaveRun)

	if config.Conf.Queue.Enabled {
		q := queue.NewQueue(queue.DefaultConfig())
		handlers := queue.NewTaskHandlers(app.Orchestrator, save)
		go func() {
			if err := queue.StartWorker(q, handlers); err != nil {
				log.GetLogger().Error("[Server] queue worker stopped", zap.Error(err))
			}
		}()
		return q, func() { _ = q.Close() }
	}

	runner := taskrunner.New(app.Orchestrator, save, taskrunner.Config{QueueSize: config.Conf.Server.QueueSize})
	return runner, runner.Close
}
