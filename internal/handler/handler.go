package handler

import (
	"github.com/google/uuid"

	"autolecture/internal/taskrunner"
)

// Submitter accepts runs for background execution. Both the in-process
// task runner and the Redis-backed queue satisfy it.
type Submitter interface {
	Submit(payload taskrunner.RunPayload) error
}

type Handler struct {
	Submitter       Submitter
	RunRoot         string
	DefaultAudience string

	newID func() string
}

func NewHandler(submitter Submitter, runRoot, defaultAudience string) *Handler {
	return &Handler{
		Submitter:       submitter,
		RunRoot:         runRoot,
		DefaultAudience: defaultAudience,
		newID:           uuid.NewString,
	}
}
