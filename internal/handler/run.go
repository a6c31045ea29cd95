package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"autolecture/internal/dto"
	"autolecture/internal/response"
	"autolecture/internal/storage"
	"autolecture/internal/taskrunner"
	"autolecture/internal/types"
	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (h *Handler) StartRun(c *gin.Context) {
	var req dto.StartRunReq
	if err := c.ShouldBindJSON(&req); err != nil {
		log.GetLogger().Error("StartRun ShouldBindJSON err", zap.Error(err))
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "invalid parameters", err))
		return
	}
	if req.Audience == "" {
		req.Audience = h.DefaultAudience
	}

	payload := taskrunner.RunPayload{
		RunID:         h.newID(),
		SourceURL:     req.SourceUrl,
		LectureTitle:  req.LectureTitle,
		ProfessorName: req.ProfessorName,
		Audience:      req.Audience,
		LectureNumber: req.LectureNumber,
		SkipVideo:     req.SkipVideo,
	}
	log.GetLogger().Info("StartRun received request", zap.String("run_id", payload.RunID), zap.Any("req", req))

	report := types.NewRunReport(payload.RunID)
	report.SourceUrl = payload.SourceURL
	report.LectureTitle = payload.LectureTitle
	report.ProfessorName = payload.ProfessorName
	report.Audience = payload.Audience
	report.StatusMsg = "queued"
	report.RunDir = filepath.Join(h.RunRoot, payload.RunID)
	if err := storage.SaveRun(report); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeDBError, "save run", err))
		return
	}

	if err := h.Submitter.Submit(payload); err != nil {
		report.Status = types.RunStatusFailed
		report.StatusMsg = "not queued"
		report.FailReason = err.Error()
		_ = storage.SaveRun(report)

		code := apperrors.CodeUnknown
		switch {
		case errors.Is(err, taskrunner.ErrQueueFull):
			code = apperrors.CodeBusy
		case apperrors.Is(err, apperrors.CodeInvalidParams):
			code = apperrors.CodeInvalidParams
		}
		response.ErrorResponse(c, apperrors.Wrap(code, "run not queued", err))
		return
	}

	response.Success(c, dto.StartRunResData{RunId: payload.RunID})
}

func (h *Handler) GetRun(c *gin.Context) {
	report, err := storage.GetRun(c.Param("runId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, apperrors.ErrNotFound)
			return
		}
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeDBError, "load run", err))
		return
	}
	response.Success(c, h.view(report))
}

func (h *Handler) GetRunHistory(c *gin.Context) {
	var req dto.GetRunHistoryReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "invalid parameters", err))
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	reports, err := storage.GetRunHistory(limit)
	if err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeDBError, "load run history", err))
		return
	}
	views := make([]dto.RunView, 0, len(reports))
	for i := range reports {
		views = append(views, h.view(&reports[i]))
	}
	response.Success(c, views)
}

// DeleteRun removes a finished run's files and record. Queued and running
// runs cannot be deleted.
func (h *Handler) DeleteRun(c *gin.Context) {
	runID := c.Param("runId")
	if runID == "" || hasParentTraversal(runID) {
		response.ErrorResponse(c, apperrors.New(apperrors.CodeInvalidParams, "invalid run id"))
		return
	}
	report, err := storage.GetRun(runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, apperrors.ErrNotFound)
			return
		}
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeDBError, "load run", err))
		return
	}
	if !report.Status.IsTerminal() {
		response.ErrorResponse(c, apperrors.New(apperrors.CodeInvalidParams, "run is still "+report.Status.String()))
		return
	}

	runDir := filepath.Join(h.RunRoot, runID)
	if isPathWithinRoot(h.RunRoot, runDir) {
		if err := os.RemoveAll(runDir); err != nil {
			// The record is still removed.
			log.GetLogger().Error("DeleteRun RemoveAll err", zap.String("path", runDir), zap.Error(err))
		}
	}
	if err := storage.DeleteRun(runID); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeDBError, "delete run", err))
		return
	}
	response.Success(c, nil)
}

func (h *Handler) DownloadFile(c *gin.Context) {
	requested := c.Param("filepath")
	if requested == "" || requested == "/" {
		response.Error(c, apperrors.CodeInvalidParams, "file path is empty")
		return
	}

	localPath, ok := resolveDownloadPath(h.runRootCandidates(), requested)
	if !ok {
		response.ErrorWithStatus(c, http.StatusForbidden, apperrors.New(apperrors.CodeUnauthorized, "path outside run directory"))
		return
	}
	if info, err := os.Stat(localPath); err != nil || info.IsDir() {
		response.ErrorWithStatus(c, http.StatusNotFound, apperrors.ErrFileNotFound)
		return
	}
	c.FileAttachment(localPath, filepath.Base(localPath))
}

func (h *Handler) view(report *types.RunReport) dto.RunView {
	roots := h.runRootCandidates()
	files := map[string]string{}
	for name, path := range map[string]string{
		"transcript":  report.TranscriptPath,
		"script":      report.ScriptPath,
		"detail_page": report.DetailPagePath,
		"slides":      report.SlideDeckPath,
		"video":       report.VideoPath,
	} {
		if url := fileURL(roots, path); url != "" {
			files[name] = url
		}
	}
	return dto.RunView{RunReport: report, StatusText: report.Status.String(), Files: files}
}
