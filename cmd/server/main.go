package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"autolecture/config"
	"autolecture/internal/server"
	"autolecture/internal/storage"
	"autolecture/log"
)

func main() {
	log.InitLogger()
	defer log.GetLogger().Sync()

	if err := config.LoadDotEnv(); err != nil {
		log.GetLogger().Error("load env file failed", zap.Error(err))
		os.Exit(2)
	}
	if _, err := config.LoadOrCreateConfig(); err != nil {
		log.GetLogger().Error("load config failed", zap.Error(err))
		os.Exit(2)
	}
	if err := config.CheckConfig(); err != nil {
		log.GetLogger().Error("invalid config", zap.Error(err))
		os.Exit(2)
	}

	storage.InitDB()

	// Runs left running by a previous process cannot be resumed. Queued ones
	// survive only when the Redis queue holds them.
	if count, err := storage.MarkStaleRuns(!config.Conf.Queue.Enabled); err != nil {
		log.GetLogger().Warn("Failed to mark stale runs", zap.Error(err))
	} else if count > 0 {
		log.GetLogger().Info("Marked stale runs as failed", zap.Int64("count", count))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.StartBackend(ctx); err != nil {
		log.GetLogger().Error("backend stopped", zap.Error(err))
		os.Exit(1)
	}
}
