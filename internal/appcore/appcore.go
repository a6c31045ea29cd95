// Package appcore assembles a ready-to-run orchestrator from the loaded
// configuration. Both the CLI and the server build their pipeline here.
package appcore

import (
	"context"
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"autolecture/config"
	"autolecture/internal/appdirs"
	"autolecture/internal/artifact"
	"autolecture/internal/deps"
	"autolecture/internal/jobcache"
	"autolecture/internal/orchestrator"
	"autolecture/internal/storage"
	"autolecture/internal/summarize"
	"autolecture/internal/textgen"
	"autolecture/internal/types"
	"autolecture/internal/uidriver"
	"autolecture/log"
	"autolecture/pkg/openai"
	"autolecture/pkg/oss"
	apperrors "autolecture/pkg/errors"
)

type Options struct {
	// DB backs the sqlite job cache. When nil and the sqlite backend is
	// selected, the application database is opened.
	DB *gorm.DB
	// OnUpdate receives every report transition.
	OnUpdate func(*types.RunReport)
	// OpenDriver replaces the browser launcher.
	OpenDriver orchestrator.DriverFactory
}

type App struct {
	Orchestrator *orchestrator.Orchestrator
	Settings     orchestrator.Settings
	Cache        jobcache.Cache

	closers []func() error
}

// Build wires every collaborator of a run from cfg. It creates the default
// download directories but never a configured one, so a mistyped path still
// fails the run's preflight.
func Build(cfg config.Config, paths appdirs.Paths, opts Options) (*App, error) {
	app := &App{}

	collision, err := artifact.ParseCollisionPolicy(cfg.Output.Collision)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "output collision policy", err)
	}

	cache, err := app.openCache(cfg, paths, opts.DB)
	if err != nil {
		return nil, err
	}
	app.Cache = cache

	summarizer := summarize.NewClient(summarize.NewLilysAPI(summarize.LilysConfig{
		BaseURL:        cfg.Summary.BaseUrl,
		APIKey:         cfg.Summary.ApiKey,
		SourceType:     cfg.Summary.SourceType,
		ResultLanguage: cfg.Summary.ResultLanguage,
		ModelType:      cfg.Summary.ModelType,
		Timeout:        time.Duration(cfg.Summary.RequestTimeoutSecond) * time.Second,
		Proxy:          cfg.App.Proxy,
	}), cache, summarize.Config{
		MaxAttempts:          cfg.Summary.MaxPollAttempts,
		Interval:             time.Duration(cfg.Summary.PollIntervalSeconds) * time.Second,
		StopOnTransportError: cfg.Summary.StopOnTransportError,
	})

	generator := openai.NewClient(openai.Options{
		BaseURL:      cfg.Llm.BaseUrl,
		APIKey:       cfg.Llm.ApiKey,
		Model:        cfg.Llm.Model,
		Temperature:  cfg.Llm.Temperature,
		TopP:         cfg.Llm.TopP,
		MaxTokens:    cfg.Llm.MaxTokens,
		SystemPrompt: textgen.SystemPrompt,
		Proxy:        cfg.App.ParsedProxy,
	})

	var publisher orchestrator.Publisher
	if cfg.Oss.Enabled {
		p, err := oss.NewPublisher(oss.Config{
			Region:          cfg.Oss.Region,
			Bucket:          cfg.Oss.Bucket,
			Prefix:          cfg.Oss.Prefix,
			AccessKeyId:     cfg.Oss.AccessKeyId,
			AccessKeySecret: cfg.Oss.AccessKeySecret,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
		publisher = p
	}

	openDriver := opts.OpenDriver
	if openDriver == nil {
		openDriver = BrowserLauncher(cfg, paths)
	}

	settings := orchestrator.Settings{
		RunRoot:    paths.RunRoot,
		Slides:     cfg.Workflow.Slides,
		Video:      cfg.Workflow.Video,
		Thumbnail:  cfg.Workflow.Thumbnail,
		SlidesSite: siteSettings(cfg.Workflow.Slides.Site, paths, appdirs.KindSlides),
		VideoSite:  siteSettings(cfg.Workflow.Video.Site, paths, appdirs.KindVideo),
		Collision:  collision,
	}
	app.Settings = settings
	app.Orchestrator = orchestrator.New(orchestrator.Deps{
		Summarizer: summarizer,
		Generator:  generator,
		OpenDriver: openDriver,
		Publisher:  publisher,
		OnUpdate:   opts.OnUpdate,
	}, settings)
	return app, nil
}

func siteSettings(site config.Site, paths appdirs.Paths, kind string) orchestrator.SiteSettings {
	if site.DownloadDir == "" {
		dir := paths.DownloadDir(kind)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.GetLogger().Warn("[AppCore] create download dir failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	return orchestrator.SiteSettingsFrom(site, paths.DownloadDir(kind))
}

func (a *App) openCache(cfg config.Config, paths appdirs.Paths, db *gorm.DB) (jobcache.Cache, error) {
	opts := jobcache.Options{Backend: cfg.Cache.Backend}
	switch cfg.Cache.Backend {
	case config.CacheBackendSQLite, "":
		if db == nil {
			opened, err := storage.Open(paths.DBPath)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeSummaryCache, "open job cache database", err)
			}
			if sqlDB, err := opened.DB(); err == nil {
				a.closers = append(a.closers, sqlDB.Close)
			}
			db = opened
		}
		opts.DB = db
	case config.CacheBackendFile:
		opts.FilePath = cfg.Cache.FilePath
		if opts.FilePath == "" {
			opts.FilePath = paths.JobCacheFile
		}
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		opts.Redis = client
	}

	cache, err := jobcache.Open(opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSummaryCache, "open job cache", err)
	}
	return cache, nil
}

// BrowserLauncher attaches to cfg.Browser.ConnectUrl when set and otherwise
// launches the configured or first detected browser.
func BrowserLauncher(cfg config.Config, paths appdirs.Paths) orchestrator.DriverFactory {
	return func(ctx context.Context) (uidriver.Driver, error) {
		opts := uidriver.Options{
			ConnectURL:   cfg.Browser.ConnectUrl,
			DebugPort:    cfg.Browser.DebugPort,
			ProfileDir:   cfg.Browser.ProfileDir,
			Headless:     cfg.Browser.Headless,
			Proxy:        cfg.App.Proxy,
			StartTimeout: time.Duration(cfg.Browser.StartTimeoutSeconds) * time.Second,
		}
		if opts.ProfileDir == "" {
			opts.ProfileDir = paths.ProfileDir
		}
		if opts.ConnectURL == "" {
			path, err := deps.FindBrowser(cfg.Browser.Path, runtime.GOOS, deps.NewPathResolver())
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeSessionStart, "locate browser", err)
			}
			opts.BrowserPath = path
		}
		session, err := uidriver.Launch(ctx, opts)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
