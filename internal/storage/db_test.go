package storage

import (
	"path/filepath"
	"testing"

	"autolecture/internal/appdirs"
	"autolecture/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestResolveDBPathUsesLayout(t *testing.T) {
	originalResolver := appDirsResolver
	t.Cleanup(func() {
		appDirsResolver = originalResolver
	})

	home := t.TempDir()
	appDirsResolver = func() (appdirs.Paths, error) {
		return appdirs.Layout(home), nil
	}

	got, err := resolveDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data", "autolecture.db"), got)
}

func useTestDB(t *testing.T) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	original := DB
	DB = db
	t.Cleanup(func() { DB = original })
}

func TestRunReportCRUD(t *testing.T) {
	useTestDB(t)

	report := types.NewRunReport("run-1")
	report.SourceUrl = "https://youtu.be/video123"
	report.Status = types.RunStatusRunning
	report.Step(types.StepSummarize).Status = types.StepStatusSuccess
	require.NoError(t, SaveRun(report))

	report.Status = types.RunStatusSuccess
	report.PublishedUrls = map[string]string{"slides": "https://bucket/slides.pdf"}
	require.NoError(t, SaveRun(report))

	got, err := GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusSuccess, got.Status)
	assert.Equal(t, types.StepStatusSuccess, got.Step(types.StepSummarize).Status)
	assert.Equal(t, "https://bucket/slides.pdf", got.PublishedUrls["slides"])
	assert.Len(t, got.Steps, len(types.StepOrder))

	require.NoError(t, SaveRun(types.NewRunReport("run-2")))
	history, err := GetRunHistory(10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	require.NoError(t, DeleteRun("run-1"))
	_, err = GetRun("run-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMarkStaleRuns(t *testing.T) {
	useTestDB(t)

	running := types.NewRunReport("running")
	running.Status = types.RunStatusRunning
	done := types.NewRunReport("done")
	done.Status = types.RunStatusSuccess
	require.NoError(t, SaveRun(running))
	require.NoError(t, SaveRun(done))

	queued := types.NewRunReport("queued")
	require.NoError(t, SaveRun(queued))

	n, err := MarkStaleRuns(false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = MarkStaleRuns(true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := GetRun("running")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, got.Status)
	assert.Equal(t, "run interrupted by server restart", got.FailReason)

	got, err = GetRun("done")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusSuccess, got.Status)
}

func TestUninitialized(t *testing.T) {
	original := DB
	DB = nil
	t.Cleanup(func() { DB = original })

	assert.Error(t, SaveRun(types.NewRunReport("x")))
	_, err := GetRun("x")
	assert.Error(t, err)
	_, err = MarkStaleRuns(true)
	assert.Error(t, err)
}
