package types

import "time"

type RunStatus uint8

const (
	RunStatusQueued  RunStatus = 0
	RunStatusRunning RunStatus = 1
	RunStatusSuccess RunStatus = 2
	RunStatusFailed  RunStatus = 3
	RunStatusFatal   RunStatus = 4
)

func (s RunStatus) String() string {
	switch s {
	case RunStatusQueued:
		return "queued"
	case RunStatusRunning:
		return "running"
	case RunStatusSuccess:
		return "success"
	case RunStatusFailed:
		return "failed"
	case RunStatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed || s == RunStatusFatal
}

type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
	StepStatusWarning StepStatus = "warning"
)

// Step names, in execution order.
const (
	StepSummarize      = "summarize"
	StepScript         = "script"
	StepDetailPage     = "detail_page"
	StepSlides         = "slides"
	StepSlidesArtifact = "slides_artifact"
	StepVideo          = "video"
	StepVideoArtifact  = "video_artifact"
	StepThumbnail      = "thumbnail"
	StepPublish        = "publish"
)

var StepOrder = []string{
	StepSummarize,
	StepScript,
	StepDetailPage,
	StepSlides,
	StepSlidesArtifact,
	StepVideo,
	StepVideoArtifact,
	StepThumbnail,
	StepPublish,
}

type StageOutcome struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Optional   bool   `json:"optional,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type StepReport struct {
	Name       string         `json:"name"`
	Status     StepStatus     `json:"status"`
	Detail     string         `json:"detail,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  int            `json:"error_code,omitempty"`
	Stages     []StageOutcome `json:"stages,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// RunReport is the structured result of one pipeline run. It is written to
// the run directory and, when the server runs, stored in the database.
type RunReport struct {
	Id             uint              `gorm:"primaryKey" json:"-"`
	RunId          string            `gorm:"uniqueIndex;size:64" json:"run_id"`
	SourceUrl      string            `json:"source_url"`
	LectureTitle   string            `json:"lecture_title"`
	ProfessorName  string            `json:"professor_name"`
	Audience       string            `json:"audience"`
	Status         RunStatus         `gorm:"index" json:"status"`
	StatusMsg      string            `json:"status_msg"`
	FailedStep     string            `json:"failed_step,omitempty"`
	FailReason     string            `json:"fail_reason,omitempty"`
	RunDir         string            `json:"run_dir"`
	TranscriptPath string            `json:"transcript_path,omitempty"`
	ScriptPath     string            `json:"script_path,omitempty"`
	DetailPagePath string            `json:"detail_page_path,omitempty"`
	SlideDeckPath  string            `json:"slide_deck_path,omitempty"`
	VideoPath      string            `json:"video_path,omitempty"`
	ThumbnailUrl   string            `json:"thumbnail_url,omitempty"`
	PublishedUrls  map[string]string `gorm:"serializer:json" json:"published_urls,omitempty"`
	Steps          []StepReport      `gorm:"serializer:json" json:"steps"`
	CreateTime     int64             `gorm:"autoCreateTime:milli" json:"create_time"`
	UpdateTime     int64             `gorm:"autoUpdateTime:milli" json:"update_time"`
}

func (RunReport) TableName() string {
	return "run_reports"
}

// Step returns the report entry for name, creating it when missing.
func (r *RunReport) Step(name string) *StepReport {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	r.Steps = append(r.Steps, StepReport{Name: name, Status: StepStatusPending})
	return &r.Steps[len(r.Steps)-1]
}

func (r *RunReport) Success() bool {
	return r.Status == RunStatusSuccess
}

// NewRunReport returns a queued report with every step pre-registered, so
// pointers handed out by Step stay valid for the life of the report.
func NewRunReport(runID string) *RunReport {
	report := &RunReport{
		RunId:  runID,
		Status: RunStatusQueued,
		Steps:  make([]StepReport, 0, len(StepOrder)),
	}
	for _, name := range StepOrder {
		report.Steps = append(report.Steps, StepReport{Name: name, Status: StepStatusPending})
	}
	return report
}
