package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autolecture/config"
	"autolecture/internal/appcore"
	"autolecture/internal/appdirs"
	"autolecture/internal/orchestrator"
	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

const (
	exitFatal   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return exitFatal
	}
	if opts.Version && !opts.Diagnose {
		printVersion(stdout)
		return 0
	}

	log.InitLogger()
	defer log.GetLogger().Sync()

	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		log.GetLogger().Error("load env file failed", zap.Error(err))
		return exitFatal
	}
	created, err := config.LoadOrCreateConfig()
	if err != nil {
		log.GetLogger().Error("load config failed", zap.Error(err))
		return exitFatal
	}
	if opts.Diagnose {
		if opts.Version {
			printVersion(stdout)
			fmt.Fprintln(stdout)
		}
		printDiagnose(stdout)
		return 0
	}
	if err := config.CheckConfig(); err != nil {
		if created {
			fmt.Fprintln(stderr, "a default config file was written; fill in the API keys and run again")
		}
		log.GetLogger().Error("invalid config", zap.Error(err), zap.String("hint", apperrors.GetDetail(err)))
		return exitFatal
	}

	paths, err := appdirs.Resolve()
	if err != nil {
		log.GetLogger().Error("resolve application directories failed", zap.Error(err))
		return exitFatal
	}
	app, err := appcore.Build(config.Conf, paths, appcore.Options{})
	if err != nil {
		log.GetLogger().Error("build pipeline failed", zap.Error(err))
		return exitFatal
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := orchestrator.Request{
		RunID:         opts.RunID,
		SourceURL:     opts.SourceURL,
		LectureTitle:  opts.Title,
		ProfessorName: opts.Professor,
		Audience:      orDefault(opts.Audience, config.Conf.App.DefaultAudience),
		LectureNumber: opts.Number,
		SkipVideo:     opts.SkipVideo,
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	report := app.Orchestrator.Run(ctx, req)
	fmt.Fprintf(stdout, "run %s: %s\n", report.RunId, report.Status)
	if report.FailedStep != "" {
		fmt.Fprintf(stdout, "failed step: %s\nreason: %s\n", report.FailedStep, report.FailReason)
	}
	for _, line := range []struct{ name, path string }{
		{"transcript", report.TranscriptPath},
		{"script", report.ScriptPath},
		{"detail page", report.DetailPagePath},
		{"slides", report.SlideDeckPath},
		{"video", report.VideoPath},
	} {
		if line.path != "" {
			fmt.Fprintf(stdout, "%s: %s\n", line.name, line.path)
		}
	}
	return orchestrator.ExitCode(report)
}
