// Package orchestrator runs one lecture: transcript, script, detail page,
// slide deck, video and optional publishing, recording every step in a
// RunReport.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"autolecture/config"
	"autolecture/internal/artifact"
	"autolecture/internal/stage"
	"autolecture/internal/textgen"
	"autolecture/internal/types"
	"autolecture/internal/uidriver"
	"autolecture/internal/workflow"
	"autolecture/log"
	apperrors "autolecture/pkg/errors"
	"autolecture/pkg/util"
)

const (
	TranscriptFile = "transcript.md"
	ScriptFile     = "script.md"
	DetailFile     = "detail_page.md"
	ReportFile     = "report.json"
)

type Request struct {
	RunID         string `json:"run_id"`
	SourceURL     string `json:"source_url"`
	LectureTitle  string `json:"lecture_title"`
	ProfessorName string `json:"professor_name"`
	Audience      string `json:"audience"`
	LectureNumber int    `json:"lecture_number,omitempty"`
	SkipVideo     bool   `json:"skip_video"`
}

func (r Request) Validate() error {
	if r.RunID == "" {
		return apperrors.New(apperrors.CodeInvalidParams, "run id is required")
	}
	if r.SourceURL == "" {
		return apperrors.New(apperrors.CodeInvalidParams, "source url is required")
	}
	if r.LectureNumber < 0 {
		return apperrors.New(apperrors.CodeInvalidParams, "lecture number must not be negative")
	}
	return nil
}

type Summarizer interface {
	Summarize(ctx context.Context, sourceKey string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, localPath, key string) (string, error)
}

type DriverFactory func(ctx context.Context) (uidriver.Driver, error)

type Deps struct {
	Summarizer Summarizer
	Generator  textgen.Generator
	OpenDriver DriverFactory
	// Publisher is optional; without it the publish step is skipped.
	Publisher Publisher
	// OnUpdate receives the report after every step transition.
	OnUpdate func(*types.RunReport)
}

// SiteSettings says where a site's downloads land and where the artifact
// ends up.
type SiteSettings struct {
	DownloadDir string
	// OutputDir defaults to a directory named after the site kind inside
	// the run directory.
	OutputDir    string
	Extension    string
	MaxWait      time.Duration
	PollInterval time.Duration
}

func SiteSettingsFrom(site config.Site, downloadDir string) SiteSettings {
	if site.DownloadDir != "" {
		downloadDir = site.DownloadDir
	}
	return SiteSettings{
		DownloadDir:  downloadDir,
		OutputDir:    site.OutputDir,
		Extension:    site.Extension,
		MaxWait:      time.Duration(site.ArtifactWaitSeconds) * time.Second,
		PollInterval: time.Duration(site.ArtifactPollSeconds) * time.Second,
	}
}

type Settings struct {
	RunRoot    string
	Slides     config.Slides
	Video      config.Video
	Thumbnail  config.Thumbnail
	SlidesSite SiteSettings
	VideoSite  SiteSettings
	Collision  artifact.CollisionPolicy
}

type Orchestrator struct {
	deps     Deps
	settings Settings
}

func New(deps Deps, settings Settings) *Orchestrator {
	return &Orchestrator{deps: deps, settings: settings}
}

// run carries the state of one Run call.
type run struct {
	o      *Orchestrator
	req    Request
	report *types.RunReport
	logger *zap.Logger
}

// Run executes the whole pipeline. It always returns a report; the outcome
// is in report.Status and ExitCode.
func (o *Orchestrator) Run(ctx context.Context, req Request) *types.RunReport {
	report := types.NewRunReport(req.RunID)
	report.SourceUrl = req.SourceURL
	report.LectureTitle = req.LectureTitle
	report.ProfessorName = req.ProfessorName
	audience, ok := textgen.ParseAudience(req.Audience)
	if !ok && req.Audience != "" {
		log.GetLogger().Warn("[Orchestrator] unknown audience, using general", zap.String("audience", req.Audience))
	}
	report.Audience = string(audience)
	report.RunDir = filepath.Join(o.settings.RunRoot, req.RunID)

	r := &run{
		o:      o,
		req:    req,
		report: report,
		logger: log.GetLogger().With(zap.String("run_id", req.RunID)),
	}
	r.execute(ctx, textgen.Lecture{
		Title:     req.LectureTitle,
		Professor: req.ProfessorName,
		Audience:  audience,
		Number:    req.LectureNumber,
	})
	r.finish()
	return report
}

func (r *run) execute(ctx context.Context, lecture textgen.Lecture) {
	r.report.Status = types.RunStatusRunning
	r.report.StatusMsg = "preflight"
	r.notify()

	if err := r.req.Validate(); err != nil {
		r.fatal(err)
		return
	}
	if err := os.MkdirAll(r.report.RunDir, 0o755); err != nil {
		r.fatal(apperrors.Wrap(apperrors.CodeFileWriteError, "create run directory", err))
		return
	}
	if err := r.preflightDirs(); err != nil {
		r.fatal(err)
		return
	}
	driver, err := r.o.deps.OpenDriver(ctx)
	if err != nil {
		r.fatal(apperrors.Wrap(apperrors.CodeSessionStart, "open browser session", err))
		return
	}
	defer func() {
		if err := driver.Quit(); err != nil {
			r.logger.Warn("[Orchestrator] browser quit failed", zap.Error(err))
		}
	}()

	var transcript, script string
	if r.step(ctx, types.StepSummarize, func(s *types.StepReport) error {
		text, err := r.o.deps.Summarizer.Summarize(ctx, r.req.SourceURL)
		if err != nil {
			return err
		}
		transcript = text
		r.report.TranscriptPath, err = r.writeText(TranscriptFile, text)
		return err
	}) != nil {
		r.skipRemaining("summarize failed")
		return
	}

	if r.step(ctx, types.StepScript, func(s *types.StepReport) error {
		text, err := r.o.deps.Generator.Generate(ctx, textgen.ScriptPrompt(lecture, transcript))
		if err != nil {
			return err
		}
		script = util.StripCodeFence(text)
		r.report.ScriptPath, err = r.writeText(ScriptFile, script)
		return err
	}) != nil {
		r.skipRemaining("script generation failed")
		return
	}

	if r.step(ctx, types.StepDetailPage, func(s *types.StepReport) error {
		text, err := r.o.deps.Generator.Generate(ctx, textgen.DetailPrompt(lecture, script))
		if err != nil {
			return err
		}
		r.report.DetailPagePath, err = r.writeText(DetailFile, util.StripCodeFence(text))
		return err
	}) != nil {
		r.skipRemaining("detail page failed")
		return
	}

	deck, err := r.browserArtifact(ctx, driver, types.StepSlides, types.StepSlidesArtifact, artifactKindSlides,
		func() ([]stage.Stage, error) {
			return workflow.Slides(r.o.settings.Slides, r.o.settings.SlidesSite.DownloadDir, script)
		})
	if err != nil {
		r.skipRemaining("slide deck not produced")
		return
	}
	r.report.SlideDeckPath = deck

	if r.req.SkipVideo || r.o.settings.Video.Skip {
		r.skip(types.StepVideo, "video disabled")
		r.skip(types.StepVideoArtifact, "video disabled")
	} else {
		video, err := r.browserArtifact(ctx, driver, types.StepVideo, types.StepVideoArtifact, artifactKindVideo,
			func() ([]stage.Stage, error) {
				return workflow.Video(r.o.settings.Video, r.o.settings.VideoSite.DownloadDir, deck, textgen.VideoPrompt(lecture))
			})
		if err != nil {
			r.skipRemaining("video not produced")
			return
		}
		r.report.VideoPath = video
	}

	r.thumbnail(ctx, driver, lecture)
	r.publish(ctx)
}

func (r *run) preflightDirs() error {
	dirs := []string{r.o.settings.SlidesSite.DownloadDir}
	if !r.req.SkipVideo && !r.o.settings.Video.Skip {
		dirs = append(dirs, r.o.settings.VideoSite.DownloadDir)
	}
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			if err == nil {
				err = errors.New("not a directory")
			}
			return apperrors.WrapWithDetail(apperrors.CodeWatchDirMissing, "watched download directory is missing", dir, err)
		}
	}
	return nil
}

// step runs fn as the named step and records its outcome.
func (r *run) step(ctx context.Context, name string, fn func(s *types.StepReport) error) error {
	s := r.report.Step(name)
	started := time.Now()
	s.Status = types.StepStatusRunning
	s.StartedAt = &started
	r.report.StatusMsg = name
	r.notify()
	r.logger.Info("[Orchestrator] step started", zap.String("step", name))

	err := fn(s)
	if err == nil && ctx.Err() != nil {
		err = apperrors.Wrap(apperrors.CodeCanceled, "run cancelled", ctx.Err())
	}

	finished := time.Now()
	s.FinishedAt = &finished
	if err != nil {
		s.Status = types.StepStatusFailed
		s.Error = err.Error()
		s.ErrorCode = apperrors.GetCode(err)
		if d := apperrors.GetDetail(err); d != "" && s.Detail == "" {
			s.Detail = d
		}
		if r.report.FailedStep == "" {
			r.report.FailedStep = name
			r.report.FailReason = err.Error()
		}
		r.logger.Error("[Orchestrator] step failed", zap.String("step", name), zap.Error(err))
	} else {
		s.Status = types.StepStatusSuccess
		r.logger.Info("[Orchestrator] step finished", zap.String("step", name),
			zap.Duration("took", finished.Sub(started)))
	}
	r.notify()
	return err
}

func (r *run) skip(name, reason string) {
	s := r.report.Step(name)
	if s.Status != types.StepStatusPending {
		return
	}
	s.Status = types.StepStatusSkipped
	s.Detail = reason
}

func (r *run) skipRemaining(reason string) {
	for _, name := range types.StepOrder {
		r.skip(name, reason)
	}
	r.notify()
}

func (r *run) fatal(err error) {
	r.report.Status = types.RunStatusFatal
	r.report.FailedStep = "preflight"
	r.report.FailReason = err.Error()
	r.logger.Error("[Orchestrator] fatal", zap.Error(err))
	r.skipRemaining("preflight failed")
}

func (r *run) finish() {
	switch {
	case r.report.Status == types.RunStatusFatal:
		r.report.StatusMsg = "fatal"
	case r.report.FailedStep != "":
		r.report.Status = types.RunStatusFailed
		r.report.StatusMsg = "failed at " + r.report.FailedStep
	default:
		r.report.Status = types.RunStatusSuccess
		r.report.StatusMsg = "done"
	}

	if r.report.Status != types.RunStatusFatal || dirExists(r.report.RunDir) {
		if err := writeReport(r.report); err != nil {
			r.logger.Warn("[Orchestrator] report not written", zap.Error(err))
		}
	}
	r.notify()
	r.logger.Info("[Orchestrator] run finished",
		zap.String("status", r.report.Status.String()), zap.String("failed_step", r.report.FailedStep))
}

func (r *run) notify() {
	if r.o.deps.OnUpdate != nil {
		r.o.deps.OnUpdate(r.report)
	}
}

func (r *run) writeText(name, text string) (string, error) {
	path := filepath.Join(r.report.RunDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", apperrors.Wrap(apperrors.CodeFileWriteError, fmt.Sprintf("write %s", name), err)
	}
	return path, nil
}

func writeReport(report *types.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(report.RunDir, ReportFile), data, 0o644)
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// ExitCode maps a report to the process exit status: 0 success, 1 failure
// at a named step, 2 fatal.
func ExitCode(report *types.RunReport) int {
	switch {
	case report == nil || report.Status == types.RunStatusFatal:
		return 2
	case report.Status == types.RunStatusSuccess:
		return 0
	default:
		return 1
	}
}
