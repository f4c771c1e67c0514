package api

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/intake"
	"github.com/JaimeStill/emissary/internal/reports"
	"github.com/JaimeStill/emissary/internal/workflow"
	"github.com/JaimeStill/emissary/pkg/handlers"
)

var ErrMissingFile = errors.New("multipart field \"file\" required")

// MapHTTPStatus maps workflow and intake errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, checkpoint.ErrNotFound),
		errors.Is(err, reports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkpoint.ErrInvalidThreadID),
		errors.Is(err, audit.ErrInvalidDecision),
		errors.Is(err, handlers.ErrInvalidBody),
		errors.Is(err, reports.ErrInvalidPath),
		errors.Is(err, ErrMissingFile):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotSuspended),
		errors.Is(err, workflow.ErrThreadTerminal):
		return http.StatusConflict
	case errors.Is(err, intake.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, intake.ErrUnreadable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
