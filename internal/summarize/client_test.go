package summarize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autolecture/internal/jobcache"
	"autolecture/internal/mocks"
	"autolecture/internal/polling"
	apperrors "autolecture/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, Interval: time.Millisecond}
}

func TestSummarize_NewSourceSubmitsCachesAndPolls(t *testing.T) {
	api := new(mocks.MockSummaryAPI)
	cache := jobcache.NewMemoryStore()

	api.On("Submit", mock.Anything, "video123").Return("job456", nil).Once()
	api.On("Fetch", mock.Anything, "job456").Return(polling.Pending(""), nil).Twice()
	api.On("Fetch", mock.Anything, "job456").Return(polling.Done("transcript text", ""), nil).Once()

	client := NewClient(api, cache, fastConfig(10))
	got, err := client.Summarize(context.Background(), "video123")

	require.NoError(t, err)
	assert.Equal(t, "transcript text", got)
	api.AssertNumberOfCalls(t, "Submit", 1)
	api.AssertNumberOfCalls(t, "Fetch", 3)
	assert.Equal(t, map[string]string{"video123": "job456"}, cache.Snapshot())
}

func TestSummarize_CachedDoneSkipsSubmission(t *testing.T) {
	api := new(mocks.MockSummaryAPI)
	cache := jobcache.NewMemoryStore()
	require.NoError(t, cache.Put(context.Background(), "video123", "job456"))

	api.On("Fetch", mock.Anything, "job456").Return(polling.Done("cached transcript", ""), nil).Once()

	got, err := NewClient(api, cache, fastConfig(10)).Summarize(context.Background(), "video123")

	require.NoError(t, err)
	assert.Equal(t, "cached transcript", got)
	api.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	api.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestSummarize_CachedPendingResumesPolling(t *testing.T) {
	api := new(mocks.MockSummaryAPI)
	cache := jobcache.NewMemoryStore()
	require.NoError(t, cache.Put(context.Background(), "video123", "job456"))

	api.On("Fetch", mock.Anything, "job456").Return(polling.Pending(""), nil).Twice()
	api.On("Fetch", mock.Anything, "job456").Return(polling.Done("resumed", ""), nil).Once()

	got, err := NewClient(api, cache, fastConfig(10)).Summarize(context.Background(), "video123")

	require.NoError(t, err)
	assert.Equal(t, "resumed", got)
	api.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	api.AssertNumberOfCalls(t, "Fetch", 3)
}

func TestSummarize_StaleCacheResubmits(t *testing.T) {
	tests := []struct {
		name   string
		status polling.Status
		err    error
	}{
		{name: "failed", status: polling.Failed("remote job failed", `{"status":"failed"}`)},
		{name: "unknown", status: polling.Unknown(`{"status":"expired"}`)},
		{name: "transport error", err: errors.New("502 bad gateway")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mocks.MockSummaryAPI)
			cache := jobcache.NewMemoryStore()
			require.NoError(t, cache.Put(context.Background(), "video123", "old-job"))

			api.On("Fetch", mock.Anything, "old-job").Return(tt.status, tt.err).Once()
			api.On("Submit", mock.Anything, "video123").Return("new-job", nil).Once()
			api.On("Fetch", mock.Anything, "new-job").Return(polling.Done("fresh", ""), nil).Once()

			got, err := NewClient(api, cache, fastConfig(3)).Summarize(context.Background(), "video123")

			require.NoError(t, err)
			assert.Equal(t, "fresh", got)
			api.AssertNumberOfCalls(t, "Submit", 1)
			id, ok := cache.Get(context.Background(), "video123")
			assert.True(t, ok)
			assert.Equal(t, "new-job", id)
		})
	}
}

func TestSummarize_TypedErrors(t *testing.T) {
	t.Run("submission transport error is not retried", func(t *testing.T) {
		api := new(mocks.MockSummaryAPI)
		cache := jobcache.NewMemoryStore()
		api.On("Submit", mock.Anything, "video123").Return("", errors.New("dial tcp: refused")).Once()

		_, err := NewClient(api, cache, fastConfig(3)).Summarize(context.Background(), "video123")

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeSummarySubmit))
		api.AssertNumberOfCalls(t, "Submit", 1)
		api.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
		assert.Empty(t, cache.Snapshot())
	})

	t.Run("terminal failure carries raw payload", func(t *testing.T) {
		api := new(mocks.MockSummaryAPI)
		api.On("Submit", mock.Anything, "video123").Return("job456", nil).Once()
		api.On("Fetch", mock.Anything, "job456").Return(polling.Failed("remote job failed", `{"status":"failed","reason":"private video"}`), nil).Once()

		_, err := NewClient(api, jobcache.NewMemoryStore(), fastConfig(3)).Summarize(context.Background(), "video123")

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeSummaryFailed))
		assert.Contains(t, apperrors.GetDetail(err), "private video")
		assert.False(t, apperrors.IsTimeout(err))
	})

	t.Run("exhausted budget is a timeout", func(t *testing.T) {
		api := new(mocks.MockSummaryAPI)
		cache := jobcache.NewMemoryStore()
		api.On("Submit", mock.Anything, "video123").Return("job456", nil).Once()
		api.On("Fetch", mock.Anything, "job456").Return(polling.Pending(`{"status":"pending"}`), nil)

		_, err := NewClient(api, cache, fastConfig(4)).Summarize(context.Background(), "video123")

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeSummaryTimeout))
		assert.True(t, apperrors.IsTimeout(err))
		api.AssertNumberOfCalls(t, "Fetch", 4)
		// the id survives so the next run resumes instead of resubmitting
		id, _ := cache.Get(context.Background(), "video123")
		assert.Equal(t, "job456", id)
	})
}

func TestSummarize_TransportErrorsHaveTheirOwnCode(t *testing.T) {
	t.Run("retried until the budget runs out", func(t *testing.T) {
		api := new(mocks.MockSummaryAPI)
		api.On("Submit", mock.Anything, "video123").Return("job456", nil).Once()
		api.On("Fetch", mock.Anything, "job456").Return(polling.Status{}, errors.New("dial tcp: i/o timeout"))

		_, err := NewClient(api, jobcache.NewMemoryStore(), fastConfig(3)).Summarize(context.Background(), "video123")

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeSummaryTransport))
		assert.Contains(t, apperrors.GetDetail(err), "i/o timeout")
		api.AssertNumberOfCalls(t, "Fetch", 3)
	})

	t.Run("recovers when a later request succeeds", func(t *testing.T) {
		api := new(mocks.MockSummaryAPI)
		api.On("Submit", mock.Anything, "video123").Return("job456", nil).Once()
		api.On("Fetch", mock.Anything, "job456").Return(polling.Status{}, errors.New("502 bad gateway")).Once()
		api.On("Fetch", mock.Anything, "job456").Return(polling.Done("transcript", ""), nil).Once()

		got, err := NewClient(api, jobcache.NewMemoryStore(), fastConfig(3)).Summarize(context.Background(), "video123")

		require.NoError(t, err)
		assert.Equal(t, "transcript", got)
	})

	t.Run("stopping on the first error", func(t *testing.T) {
		api := new(mocks.MockSummaryAPI)
		api.On("Submit", mock.Anything, "video123").Return("job456", nil).Once()
		api.On("Fetch", mock.Anything, "job456").Return(polling.Status{}, errors.New("connection refused"))
		cfg := fastConfig(5)
		cfg.StopOnTransportError = true

		_, err := NewClient(api, jobcache.NewMemoryStore(), cfg).Summarize(context.Background(), "video123")

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeSummaryTransport))
		assert.False(t, apperrors.Is(err, apperrors.CodeSummaryFailed))
		api.AssertNumberOfCalls(t, "Fetch", 1)
	})
}

func TestSummarize_ConcurrentCallsShareOneSubmission(t *testing.T) {
	api := new(mocks.MockSummaryAPI)
	release := make(chan time.Time)
	api.On("Submit", mock.Anything, "video123").
		WaitUntil(release).
		Return("job456", nil).Once()
	api.On("Fetch", mock.Anything, "job456").Return(polling.Done("shared", ""), nil)

	client := NewClient(api, jobcache.NewMemoryStore(), fastConfig(3))

	var wg sync.WaitGroup
	results := make([]string, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = client.Summarize(context.Background(), "video123")
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, []string{"shared", "shared", "shared"}, results)
	api.AssertNumberOfCalls(t, "Submit", 1)
}
