package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"autolecture/internal/handler"
	"autolecture/internal/response"
	apperrors "autolecture/pkg/errors"
)

type Options struct {
	// RateLimit is the sustained number of run submissions per second.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
}

func SetupRouter(r *gin.Engine, hdl *handler.Handler, opts Options) {
	api := r.Group("/api")
	{
		api.POST("/runs", RateLimit(opts.RateLimit, opts.RateBurst), hdl.StartRun)
		api.GET("/runs", hdl.GetRunHistory)
		api.GET("/runs/:runId", hdl.GetRun)
		api.DELETE("/runs/:runId", hdl.DeleteRun)
		api.GET("/file/*filepath", hdl.DownloadFile)
		api.HEAD("/file/*filepath", hdl.DownloadFile)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
}

// RateLimit rejects requests beyond limit per second (with burst) with
// HTTP 429. A non-positive limit lets everything through.
func RateLimit(limit float64, burst int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			response.ErrorWithStatus(c, http.StatusTooManyRequests, apperrors.New(apperrors.CodeBusy, "too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}
