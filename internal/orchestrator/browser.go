package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"autolecture/internal/appdirs"
	"autolecture/internal/artifact"
	"autolecture/internal/stage"
	"autolecture/internal/textgen"
	"autolecture/internal/types"
	"autolecture/internal/uidriver"
	"autolecture/internal/workflow"
	apperrors "autolecture/pkg/errors"
)

const (
	artifactKindSlides = appdirs.KindSlides
	artifactKindVideo  = appdirs.KindVideo
)

func (r *run) site(kind string) SiteSettings {
	if kind == artifactKindVideo {
		return r.o.settings.VideoSite
	}
	return r.o.settings.SlidesSite
}

// browserArtifact snapshots the site's download directory, runs its stage
// pipeline as pipelineStep and then moves the downloaded file into place as
// artifactStep.
func (r *run) browserArtifact(ctx context.Context, driver uidriver.Driver, pipelineStep, artifactStep, kind string,
	build func() ([]stage.Stage, error)) (string, error) {
	site := r.site(kind)
	var snap *artifact.Snapshot

	err := r.step(ctx, pipelineStep, func(s *types.StepReport) error {
		stages, err := build()
		if err != nil {
			return apperrors.Wrap(apperrors.CodeConfigInvalid, "build "+kind+" stages", err)
		}
		// Taken before any stage so downloads from earlier runs are ignored.
		snap, err = artifact.TakeSnapshot(site.DownloadDir, site.Extension)
		if err != nil {
			return err
		}

		runner := stage.NewRunner(driver, stage.WithLabel(kind), stage.WithObserver(func(from, to stage.State, name string) {
			r.logger.Debug("[Orchestrator] stage transition",
				zap.String("pipeline", kind), zap.String("from", from.String()), zap.String("to", to.String()), zap.String("stage", name))
		}))
		res := runner.Run(ctx, stages)
		s.Stages = res.Outcomes
		if !res.Success {
			return res.Err
		}
		s.Detail = "stages completed: " + joinNames(res.Completed)
		return nil
	})
	if err != nil {
		return "", err
	}

	var final string
	err = r.step(ctx, artifactStep, func(s *types.StepReport) error {
		destDir := site.OutputDir
		if destDir == "" {
			destDir = filepath.Join(r.report.RunDir, kind)
		}
		reconciler := artifact.Reconciler{
			Policy:       r.o.settings.Collision,
			MaxWait:      site.MaxWait,
			PollInterval: site.PollInterval,
		}
		a, err := reconciler.Reconcile(ctx, snap, destDir)
		if err != nil {
			return err
		}
		final = a.Path
		s.Detail = a.Path
		return nil
	})
	return final, err
}

func joinNames(names []string) string {
	return lo.Reduce(names, func(acc string, n string, i int) string {
		if i == 0 {
			return n
		}
		return acc + ", " + n
	}, "")
}

// publish uploads the produced artifacts. Upload failures only downgrade
// the step to a warning.
func (r *run) publish(ctx context.Context) {
	if r.o.deps.Publisher == nil {
		r.skip(types.StepPublish, "publishing not configured")
		return
	}
	s := r.report.Step(types.StepPublish)
	started := time.Now()
	s.Status = types.StepStatusRunning
	s.StartedAt = &started
	r.notify()

	paths := []lo.Entry[string, string]{
		{Key: "transcript", Value: r.report.TranscriptPath},
		{Key: "script", Value: r.report.ScriptPath},
		{Key: "detail_page", Value: r.report.DetailPagePath},
		{Key: "slides", Value: r.report.SlideDeckPath},
		{Key: "video", Value: r.report.VideoPath},
	}

	published := make(map[string]string, len(paths))
	var failures []string
	for _, e := range paths {
		name, local := e.Key, e.Value
		if local == "" {
			continue
		}
		url, err := r.o.deps.Publisher.Publish(ctx, local, r.req.RunID+"/"+filepath.Base(local))
		if err != nil {
			r.logger.Warn("[Orchestrator] publish failed", zap.String("artifact", name), zap.Error(err))
			failures = append(failures, name+": "+err.Error())
			continue
		}
		published[name] = url
	}
	r.report.PublishedUrls = published
	finished := time.Now()
	s.FinishedAt = &finished

	if len(failures) > 0 {
		s.Status = types.StepStatusWarning
		s.Error = joinNames(failures)
	} else {
		s.Status = types.StepStatusSuccess
	}
	r.notify()
}

// thumbnail asks the chat site for a course thumbnail. It never fails the
// run; a broken chat flow only leaves the step as a warning.
func (r *run) thumbnail(ctx context.Context, driver uidriver.Driver, lecture textgen.Lecture) {
	if !r.o.settings.Thumbnail.Enabled {
		r.skip(types.StepThumbnail, "thumbnail disabled")
		return
	}
	s := r.report.Step(types.StepThumbnail)
	started := time.Now()
	s.Status = types.StepStatusRunning
	s.StartedAt = &started
	r.report.StatusMsg = types.StepThumbnail
	r.notify()

	err := func() error {
		stages, err := workflow.Thumbnail(r.o.settings.Thumbnail, textgen.ThumbnailPrompt(lecture))
		if err != nil {
			return apperrors.Wrap(apperrors.CodeConfigInvalid, "build thumbnail stages", err)
		}
		res := stage.NewRunner(driver, stage.WithLabel(types.StepThumbnail)).Run(ctx, stages)
		s.Stages = res.Outcomes
		if !res.Success {
			return res.Err
		}
		// The drawn image stays in the conversation; its page is what we can hand back.
		url, err := driver.CurrentURL(ctx)
		if err != nil {
			return err
		}
		r.report.ThumbnailUrl = url
		s.Detail = url
		return nil
	}()

	finished := time.Now()
	s.FinishedAt = &finished
	if err != nil {
		r.logger.Warn("[Orchestrator] thumbnail not generated", zap.Error(err))
		s.Status = types.StepStatusWarning
		s.Error = err.Error()
		s.ErrorCode = apperrors.GetCode(err)
	} else {
		s.Status = types.StepStatusSuccess
	}
	r.notify()
}
