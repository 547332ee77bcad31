package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/procreport/internal/catalog"
	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
	"github.com/hugo-lorenzo-mato/procreport/internal/fsutil"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// httpStatusFor maps report, catalog and engine errors to a response status.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, report.ErrUnknownToken),
		errors.Is(err, report.ErrMissingArgument),
		errors.Is(err, report.ErrFilenameTooLong),
		errors.Is(err, report.ErrDirectoryTooLong):
		return http.StatusUnprocessableEntity
	case errors.Is(err, report.ErrSignalUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, report.ErrEventDisabled):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fsutil.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, report.ErrReportNotWritten),
		errors.Is(err, engine.ErrLoopClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	respondError(w, httpStatusFor(err), err.Error())
}
