package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autolecture/config"
	"autolecture/internal/artifact"
	"autolecture/internal/mocks"
	"autolecture/internal/types"
	"autolecture/internal/uidriver"
	apperrors "autolecture/pkg/errors"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	text  string
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, sourceKey string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fixture struct {
	root       string
	slidesDL   string
	videoDL    string
	summarizer *fakeSummarizer
	generator  *mocks.MockGenerator
	driver     *mocks.MockDriver
	publisher  Publisher
	thumbnail  config.Thumbnail
	openErr    error
	opened     int
}

var (
	exportPDF     = uidriver.CSS("#export-pdf")
	videoDownload = uidriver.CSS("#download")
)

func isScriptPrompt(p string) bool { return strings.Contains(p, "유튜브 영상 요약 스크립트") }
func isDetailPrompt(p string) bool { return strings.Contains(p, "상세 페이지") }

func newFixture(t *testing.T, driverSetup ...func(d *mocks.MockDriver)) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:       root,
		slidesDL:   filepath.Join(root, "downloads", "slides"),
		videoDL:    filepath.Join(root, "downloads", "videos"),
		summarizer: &fakeSummarizer{text: "raw transcript"},
		generator:  new(mocks.MockGenerator),
	}
	require.NoError(t, os.MkdirAll(f.slidesDL, 0o755))
	require.NoError(t, os.MkdirAll(f.videoDL, 0o755))

	// Downloads land when the final export and download buttons are clicked.
	setup := append([]func(d *mocks.MockDriver){func(d *mocks.MockDriver) {
		d.On("Click", mock.Anything, exportPDF).Run(func(mock.Arguments) {
			_ = os.WriteFile(filepath.Join(f.slidesDL, "deck.pdf"), []byte("%PDF"), 0o644)
		}).Return(nil)
		d.On("Click", mock.Anything, videoDownload).Run(func(mock.Arguments) {
			_ = os.WriteFile(filepath.Join(f.videoDL, "lecture.mp4"), []byte("mp4"), 0o644)
		}).Return(nil)
	}}, driverSetup...)
	f.driver = mocks.PermissiveDriver(setup...)

	f.generator.On("Generate", mock.Anything, mock.MatchedBy(isScriptPrompt)).Return("lecture script", nil).Maybe()
	f.generator.On("Generate", mock.Anything, mock.MatchedBy(isDetailPrompt)).Return("detail page", nil).Maybe()
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	site := func(dl, ext string) SiteSettings {
		return SiteSettings{DownloadDir: dl, Extension: ext, MaxWait: 2 * time.Second, PollInterval: 10 * time.Millisecond}
	}
	deps := Deps{
		Summarizer: f.summarizer,
		Generator:  f.generator,
		OpenDriver: func(ctx context.Context) (uidriver.Driver, error) {
			f.opened++
			if f.openErr != nil {
				return nil, f.openErr
			}
			return f.driver, nil
		},
		Publisher: f.publisher,
	}
	return New(deps, Settings{
		RunRoot: filepath.Join(f.root, "runs"),
		Slides: config.Slides{
			Site:       config.Site{StartUrl: "https://slides.example/create", Locators: map[string]string{"export_pdf": "css:#export-pdf"}},
			CardClicks: 2,
		},
		Video: config.Video{
			Site:     config.Site{StartUrl: "https://video.example/", Locators: map[string]string{"download": "css:#download"}},
			Language: "Korean",
		},
		Thumbnail:  f.thumbnail,
		SlidesSite: site(f.slidesDL, ".pdf"),
		VideoSite:  site(f.videoDL, ".mp4"),
		Collision:  artifact.CollisionRename,
	})
}

func request() Request {
	return Request{
		RunID:         "run-1",
		SourceURL:     "https://youtu.be/video123",
		LectureTitle:  "Git 입문",
		ProfessorName: "김민수",
		Audience:      "middle",
	}
}

func statuses(r *types.RunReport) map[string]types.StepStatus {
	out := map[string]types.StepStatus{}
	for _, s := range r.Steps {
		out[s.Name] = s.Status
	}
	return out
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t)
	var updates int
	o := f.orchestrator()
	o.deps.OnUpdate = func(*types.RunReport) { updates++ }

	report := o.Run(context.Background(), request())

	assert.Equal(t, 0, ExitCode(report))
	assert.Equal(t, types.RunStatusSuccess, report.Status)
	assert.Empty(t, report.FailedStep)
	assert.Equal(t, "middle", report.Audience)
	want := map[string]types.StepStatus{
		types.StepSummarize:      types.StepStatusSuccess,
		types.StepScript:         types.StepStatusSuccess,
		types.StepDetailPage:     types.StepStatusSuccess,
		types.StepSlides:         types.StepStatusSuccess,
		types.StepSlidesArtifact: types.StepStatusSuccess,
		types.StepVideo:          types.StepStatusSuccess,
		types.StepVideoArtifact:  types.StepStatusSuccess,
		types.StepThumbnail:      types.StepStatusSkipped,
		types.StepPublish:        types.StepStatusSkipped,
	}
	if diff := cmp.Diff(want, statuses(report)); diff != "" {
		t.Errorf("step statuses mismatch (-want +got):\n%s", diff)
	}

	runDir := filepath.Join(f.root, "runs", "run-1")
	assert.Equal(t, filepath.Join(runDir, "slides", "deck.pdf"), report.SlideDeckPath)
	assert.Equal(t, filepath.Join(runDir, "videos", "lecture.mp4"), report.VideoPath)
	for _, name := range []string{TranscriptFile, ScriptFile, DetailFile, ReportFile} {
		assert.FileExists(t, filepath.Join(runDir, name))
	}
	script, err := os.ReadFile(report.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, "lecture script", string(script))

	f.driver.AssertCalled(t, "UploadFile", mock.Anything, mock.Anything, report.SlideDeckPath)
	f.driver.AssertCalled(t, "SetDownloadDir", mock.Anything, f.slidesDL)
	f.driver.AssertCalled(t, "SetDownloadDir", mock.Anything, f.videoDL)
	f.driver.AssertCalled(t, "Quit")
	assert.NotEmpty(t, report.Step(types.StepSlides).Stages)
	assert.Greater(t, updates, len(types.StepOrder))
}

func TestRunSummarizeFailureSkipsEverythingElse(t *testing.T) {
	f := newFixture(t)
	f.summarizer.err = apperrors.WrapWithDetail(apperrors.CodeSummaryTimeout, "summary not ready", `{"status":"pending"}`, nil)

	report := f.orchestrator().Run(context.Background(), request())

	assert.Equal(t, 1, ExitCode(report))
	assert.Equal(t, types.StepSummarize, report.FailedStep)
	s := report.Step(types.StepSummarize)
	assert.Equal(t, types.StepStatusFailed, s.Status)
	assert.Equal(t, apperrors.CodeSummaryTimeout, s.ErrorCode)
	assert.Equal(t, `{"status":"pending"}`, s.Detail)
	for _, name := range types.StepOrder[1:] {
		assert.Equal(t, types.StepStatusSkipped, report.Step(name).Status, name)
	}
	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	f.driver.AssertCalled(t, "Quit")
}

func TestRunMissingWatchDirIsFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.videoDL))

	report := f.orchestrator().Run(context.Background(), request())

	assert.Equal(t, 2, ExitCode(report))
	assert.Equal(t, types.RunStatusFatal, report.Status)
	assert.Equal(t, "preflight", report.FailedStep)
	assert.Contains(t, report.FailReason, "watched download directory")
	assert.Equal(t, 0, f.opened)
	assert.Equal(t, 0, f.summarizer.calls)
}

func TestRunSkipVideoDoesNotNeedVideoDir(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.videoDL))
	req := request()
	req.SkipVideo = true

	report := f.orchestrator().Run(context.Background(), req)

	assert.Equal(t, 0, ExitCode(report))
	assert.Equal(t, types.StepStatusSkipped, report.Step(types.StepVideo).Status)
	assert.Equal(t, types.StepStatusSkipped, report.Step(types.StepVideoArtifact).Status)
	assert.NotEmpty(t, report.SlideDeckPath)
	assert.Empty(t, report.VideoPath)
}

func TestRunDriverOpenFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.openErr = errors.New("chrome not found")

	report := f.orchestrator().Run(context.Background(), request())

	assert.Equal(t, 2, ExitCode(report))
	assert.Contains(t, report.FailReason, "chrome not found")
	assert.Equal(t, 0, f.summarizer.calls)
}

func TestRunSlidesStageFailure(t *testing.T) {
	f := newFixture(t, func(d *mocks.MockDriver) {
		d.On("Navigate", mock.Anything, "https://slides.example/create").Return(errors.New("net::ERR_NAME_NOT_RESOLVED"))
	})

	report := f.orchestrator().Run(context.Background(), request())

	assert.Equal(t, 1, ExitCode(report))
	assert.Equal(t, types.StepSlides, report.FailedStep)
	slides := report.Step(types.StepSlides)
	assert.Equal(t, apperrors.CodeStageFailed, slides.ErrorCode)
	assert.Contains(t, report.FailReason, "ERR_NAME_NOT_RESOLVED")
	require.Len(t, slides.Stages, 1)
	assert.Equal(t, "open", slides.Stages[0].Name)
	assert.Equal(t, types.StepStatusSkipped, report.Step(types.StepSlidesArtifact).Status)
	assert.Equal(t, types.StepStatusSkipped, report.Step(types.StepVideo).Status)
	f.driver.AssertNotCalled(t, "Navigate", mock.Anything, "https://video.example/")
}

func TestRunDetailPageFailureSkipsBrowserSteps(t *testing.T) {
	f := newFixture(t)
	f.generator = new(mocks.MockGenerator)
	f.generator.On("Generate", mock.Anything, mock.MatchedBy(isScriptPrompt)).Return("lecture script", nil)
	f.generator.On("Generate", mock.Anything, mock.MatchedBy(isDetailPrompt)).
		Return("", apperrors.New(apperrors.CodeTextGenEmpty, "model returned no text"))

	report := f.orchestrator().Run(context.Background(), request())

	assert.Equal(t, 1, ExitCode(report))
	assert.Equal(t, types.StepDetailPage, report.FailedStep)
	for _, name := range []string{types.StepSlides, types.StepSlidesArtifact, types.StepVideo, types.StepVideoArtifact} {
		assert.Equal(t, types.StepStatusSkipped, report.Step(name).Status, name)
	}
	assert.Empty(t, report.DetailPagePath)
	assert.FileExists(t, report.TranscriptPath)
	assert.FileExists(t, report.ScriptPath)
	f.driver.AssertNotCalled(t, "Navigate", mock.Anything, "https://slides.example/create")
}

func TestRunThumbnail(t *testing.T) {
	f := newFixture(t, func(d *mocks.MockDriver) {
		d.On("CurrentURL", mock.Anything).Return("https://chat.example/c/123", nil)
	})
	f.thumbnail = config.Thumbnail{Enabled: true, Site: config.Site{StartUrl: "https://chat.example/"}}
	req := request()
	req.LectureNumber = 6

	report := f.orchestrator().Run(context.Background(), req)

	assert.Equal(t, 0, ExitCode(report))
	s := report.Step(types.StepThumbnail)
	assert.Equal(t, types.StepStatusSuccess, s.Status)
	assert.Equal(t, "https://chat.example/c/123", report.ThumbnailUrl)
	f.driver.AssertCalled(t, "TypeOrPaste", mock.Anything, mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "6차시") && strings.Contains(p, "Git 입문") && strings.Contains(p, "Lv2")
	}))
}

func TestRunThumbnailFailureIsAWarning(t *testing.T) {
	f := newFixture(t, func(d *mocks.MockDriver) {
		d.On("Navigate", mock.Anything, "https://chat.example/").Return(errors.New("net::ERR_CONNECTION_RESET"))
	})
	f.thumbnail = config.Thumbnail{Enabled: true, Site: config.Site{StartUrl: "https://chat.example/"}}

	report := f.orchestrator().Run(context.Background(), request())

	assert.Equal(t, 0, ExitCode(report))
	assert.Empty(t, report.FailedStep)
	s := report.Step(types.StepThumbnail)
	assert.Equal(t, types.StepStatusWarning, s.Status)
	assert.Contains(t, s.Error, "ERR_CONNECTION_RESET")
	assert.Empty(t, report.ThumbnailUrl)
	assert.NotEmpty(t, report.VideoPath)
}

func TestRunPublishFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.HasSuffix(p, ".mp4") }), "run-1/lecture.mp4").
		Return("", errors.New("bucket quota exceeded"))
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return("https://cdn.example/x", nil)
	f.publisher = pub

	report := f.orchestrator().Run(context.Background(), request())

	assert.Equal(t, 0, ExitCode(report))
	s := report.Step(types.StepPublish)
	assert.Equal(t, types.StepStatusWarning, s.Status)
	assert.Contains(t, s.Error, "bucket quota exceeded")
	assert.Len(t, report.PublishedUrls, 4)
	assert.NotContains(t, report.PublishedUrls, "video")
	pub.AssertCalled(t, "Publish", mock.Anything, report.SlideDeckPath, "run-1/deck.pdf")
}

func TestRunInvalidRequestIsFatal(t *testing.T) {
	f := newFixture(t)
	req := request()
	req.SourceURL = ""

	report := f.orchestrator().Run(context.Background(), req)
	assert.Equal(t, 2, ExitCode(report))
	assert.Equal(t, 0, f.opened)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		status types.RunStatus
		want   int
	}{
		{types.RunStatusSuccess, 0},
		{types.RunStatusFailed, 1},
		{types.RunStatusFatal, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(&types.RunReport{Status: tt.status}), tt.status.String())
	}
	assert.Equal(t, 2, ExitCode(nil))
}
