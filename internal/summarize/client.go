// Package summarize turns a source URL into a transcript through a remote
// summarization job, reusing the job recorded for the source when it is
// still usable.
package summarize

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"autolecture/internal/jobcache"
	"autolecture/internal/polling"
	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

// API is the remote summarization service.
type API interface {
	Submit(ctx context.Context, sourceKey string) (string, error)
	// Fetch performs one status request. The error is reserved for
	// transport failures; remote outcomes travel in the Status.
	Fetch(ctx context.Context, jobID string) (polling.Status, error)
}

type Config struct {
	MaxAttempts          int
	Interval             time.Duration
	StopOnTransportError bool
}

type Client struct {
	api    API
	cache  jobcache.Cache
	config Config
	group  singleflight.Group
}

func NewClient(api API, cache jobcache.Cache, cfg Config) *Client {
	return &Client{api: api, cache: cache, config: cfg}
}

// Summarize returns the finished result for sourceKey. Concurrent calls for
// the same key share one execution.
func (c *Client) Summarize(ctx context.Context, sourceKey string) (string, error) {
	v, err, shared := c.group.Do(sourceKey, func() (interface{}, error) {
		return c.summarize(ctx, sourceKey)
	})
	if shared {
		log.GetLogger().Debug("[Summarize] joined in-flight request", zap.String("source", sourceKey))
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) summarize(ctx context.Context, sourceKey string) (string, error) {
	logger := log.GetLogger().With(zap.String("source", sourceKey))

	if jobID, ok := c.cache.Get(ctx, sourceKey); ok {
		status, err := c.api.Fetch(ctx, jobID)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", apperrors.Wrap(apperrors.CodeCanceled, "summarize canceled", ctxErr)
			}
			logger.Warn("[Summarize] cached job lookup failed, resubmitting",
				zap.String("job_id", jobID), zap.Error(err))
		case status.State == polling.StateDone:
			logger.Info("[Summarize] reusing finished job", zap.String("job_id", jobID))
			return status.Result, nil
		case status.State == polling.StatePending:
			logger.Info("[Summarize] resuming pending job", zap.String("job_id", jobID))
			return c.await(ctx, jobID)
		default:
			logger.Warn("[Summarize] cached job unusable, resubmitting",
				zap.String("job_id", jobID),
				zap.Stringer("state", status.State),
				zap.String("raw", status.Raw))
		}
	}

	jobID, err := c.api.Submit(ctx, sourceKey)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.CodeUnknown {
			err = apperrors.Wrap(apperrors.CodeSummarySubmit, "summary submission failed", err)
		}
		return "", err
	}
	logger.Info("[Summarize] job submitted", zap.String("job_id", jobID))

	// Recorded before polling so an interrupted run can resume this job.
	if err = c.cache.Put(ctx, sourceKey, jobID); err != nil {
		logger.Error("[Summarize] failed to record job id", zap.String("job_id", jobID), zap.Error(err))
	}

	return c.await(ctx, jobID)
}

func (c *Client) await(ctx context.Context, jobID string) (string, error) {
	fetch := func(ctx context.Context) (polling.Status, error) {
		return c.api.Fetch(ctx, jobID)
	}
	status, err := polling.Poll(ctx, fetch, polling.Options{
		MaxAttempts:          c.config.MaxAttempts,
		Interval:             c.config.Interval,
		StopOnTransportError: c.config.StopOnTransportError,
		Label:                jobID,
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeCanceled, "summarize canceled", err)
	}
	return resultOf(jobID, status)
}

func resultOf(jobID string, status polling.Status) (string, error) {
	switch {
	case status.State == polling.StateDone:
		return status.Result, nil
	case status.IsTransport():
		return "", apperrors.WrapWithDetail(apperrors.CodeSummaryTransport,
			"summary status request failed: "+jobID, status.Raw, nil)
	case status.IsTimeout() && status.Last != nil && status.Last.IsTransport():
		return "", apperrors.WrapWithDetail(apperrors.CodeSummaryTransport,
			"summary status unreachable until polling budget ran out: "+jobID, status.Raw, nil)
	case status.IsTimeout():
		return "", apperrors.WrapWithDetail(apperrors.CodeSummaryTimeout,
			"summary job still pending after polling budget: "+jobID, status.Raw, nil)
	case status.State == polling.StateFailed:
		return "", apperrors.WrapWithDetail(apperrors.CodeSummaryFailed,
			"summary job failed: "+jobID, status.Raw, nil)
	default:
		return "", apperrors.WrapWithDetail(apperrors.CodeSummaryFailed,
			"summary job in unexpected state "+status.State.String()+": "+jobID, status.Raw, nil)
	}
}
