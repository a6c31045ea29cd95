package dto

import "autolecture/internal/types"

type StartRunReq struct {
	SourceUrl     string `json:"source_url" binding:"required"`
	LectureTitle  string `json:"lecture_title"`
	ProfessorName string `json:"professor_name"`
	Audience      string `json:"audience"`
	LectureNumber int    `json:"lecture_number" binding:"gte=0"`
	SkipVideo     bool   `json:"skip_video"`
}

type StartRunResData struct {
	RunId string `json:"run_id"`
}

type GetRunHistoryReq struct {
	Limit int `form:"limit"`
}

// RunView is a report as returned by the API, with stored file paths
// rewritten to download URLs.
type RunView struct {
	*types.RunReport
	StatusText string            `json:"status_text"`
	Files      map[string]string `json:"files,omitempty"`
}
