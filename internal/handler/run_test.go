package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"autolecture/internal/appdirs"
	"autolecture/internal/storage"
	"autolecture/internal/taskrunner"
	"autolecture/internal/types"
	apperrors "autolecture/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	got []taskrunner.RunPayload
	err error
}

func (f *fakeSubmitter) Submit(p taskrunner.RunPayload) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, p)
	return nil
}

type envelope struct {
	Error  int             `json:"error"`
	Msg    string          `json:"msg"`
	Detail string          `json:"detail"`
	Data   json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*Handler, *fakeSubmitter, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tempDir := t.TempDir()
	db, err := storage.Open(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	originalDB := storage.DB
	storage.DB = db
	originalResolver := appDirsResolver
	appDirsResolver = func() (appdirs.Paths, error) {
		return appdirs.Layout(filepath.Join(tempDir, "home")), nil
	}
	t.Cleanup(func() {
		storage.DB = originalDB
		appDirsResolver = originalResolver
	})

	sub := &fakeSubmitter{}
	h := NewHandler(sub, filepath.Join(tempDir, "runs"), "general")
	ids := 0
	h.newID = func() string {
		ids++
		return "run-" + string(rune('0'+ids))
	}

	r := gin.New()
	r.POST("/api/runs", h.StartRun)
	r.GET("/api/runs", h.GetRunHistory)
	r.GET("/api/runs/:runId", h.GetRun)
	r.DELETE("/api/runs/:runId", h.DeleteRun)
	r.GET("/api/file/*filepath", h.DownloadFile)
	r.HEAD("/api/file/*filepath", h.DownloadFile)
	return h, sub, r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestStartRun(t *testing.T) {
	_, sub, r := setup(t)

	_, env := do(t, r, http.MethodPost, "/api/runs", map[string]any{
		"source_url":     "https://youtu.be/video123",
		"lecture_title":  "Git 입문",
		"professor_name": "김민수",
	})

	require.Equal(t, 0, env.Error, env.Msg)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(env.Data))
	require.Len(t, sub.got, 1)
	assert.Equal(t, "general", sub.got[0].Audience)
	assert.Equal(t, "https://youtu.be/video123", sub.got[0].SourceURL)

	stored, err := storage.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusQueued, stored.Status)
	assert.Len(t, stored.Steps, len(types.StepOrder))
}

func TestStartRunValidation(t *testing.T) {
	_, sub, r := setup(t)

	_, env := do(t, r, http.MethodPost, "/api/runs", map[string]any{"lecture_title": "no url"})
	assert.Equal(t, apperrors.CodeInvalidParams, env.Error)
	assert.Empty(t, sub.got)
}

func TestStartRunQueueFull(t *testing.T) {
	_, sub, r := setup(t)
	sub.err = taskrunner.ErrQueueFull

	_, env := do(t, r, http.MethodPost, "/api/runs", map[string]any{"source_url": "https://youtu.be/x"})
	assert.Equal(t, apperrors.CodeBusy, env.Error)

	stored, err := storage.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, stored.Status)
	assert.Equal(t, "not queued", stored.StatusMsg)
}

func TestGetRunAndHistory(t *testing.T) {
	h, _, r := setup(t)
	runDir := filepath.Join(h.RunRoot, "done")
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "slides"), 0o755))
	deck := filepath.Join(runDir, "slides", "deck.pdf")
	require.NoError(t, os.WriteFile(deck, []byte("%PDF"), 0o644))

	report := types.NewRunReport("done")
	report.Status = types.RunStatusSuccess
	report.RunDir = runDir
	report.SlideDeckPath = deck
	report.VideoPath = "/somewhere/else/video.mp4"
	require.NoError(t, storage.SaveRun(report))

	_, env := do(t, r, http.MethodGet, "/api/runs/done", nil)
	require.Equal(t, 0, env.Error, env.Msg)
	var view struct {
		RunId      string            `json:"run_id"`
		StatusText string            `json:"status_text"`
		Files      map[string]string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "done", view.RunId)
	assert.Equal(t, "success", view.StatusText)
	assert.Equal(t, map[string]string{"slides": "/api/file/runs/done/slides/deck.pdf"}, view.Files)

	w, _ := do(t, r, http.MethodGet, view.Files["slides"], nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF", w.Body.String())

	_, env = do(t, r, http.MethodGet, "/api/runs?limit=5", nil)
	require.Equal(t, 0, env.Error)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	w, env = do(t, r, http.MethodGet, "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeNotFound, env.Error)
}

func TestDeleteRun(t *testing.T) {
	h, _, r := setup(t)
	runDir := filepath.Join(h.RunRoot, "old")
	require.NoError(t, os.MkdirAll(runDir, 0o755))

	running := types.NewRunReport("busy")
	running.Status = types.RunStatusRunning
	require.NoError(t, storage.SaveRun(running))
	finished := types.NewRunReport("old")
	finished.Status = types.RunStatusFailed
	require.NoError(t, storage.SaveRun(finished))

	_, env := do(t, r, http.MethodDelete, "/api/runs/busy", nil)
	assert.Equal(t, apperrors.CodeInvalidParams, env.Error)

	_, env = do(t, r, http.MethodDelete, "/api/runs/old", nil)
	assert.Equal(t, 0, env.Error, env.Msg)
	assert.NoDirExists(t, runDir)
	_, err := storage.GetRun("old")
	assert.Error(t, err)
}

func TestDownloadFile(t *testing.T) {
	h, _, r := setup(t)
	require.NoError(t, os.MkdirAll(filepath.Join(h.RunRoot, "r1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.RunRoot, "r1", "script.md"), []byte("hello"), 0o644))

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "with runs prefix", path: "/api/file/runs/r1/script.md", want: http.StatusOK},
		{name: "without prefix", path: "/api/file/r1/script.md", want: http.StatusOK},
		{name: "missing", path: "/api/file/runs/r1/nope.md", want: http.StatusNotFound},
		{name: "directory", path: "/api/file/runs/r1", want: http.StatusNotFound},
		{name: "traversal", path: "/api/file/runs/../../etc/passwd", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodHead, tt.path, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
