package ipc

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/response"
	"github.com/simplepos/shell/pkg/workerpool"
)

// maxArgsBytes bounds a single invocation body. Receipts are a few KB; a
// backup restore path or a long SELECT is still far below this.
const maxArgsBytes = 8 << 20

// StatusCoder lets a handler error pick its HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// HTTPHandler serves POST /invoke/{command}. The body is the JSON argument
// object and must be sent as application/json, which a browser cannot do
// cross-origin without a preflight. Errors come back as
// {"status": <code>, "message": "<error>"}.
func (d *Dispatcher) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
			response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}

		// encodeURIComponent escapes ':' and '|' in plugin command names.
		name, err := url.PathUnescape(chi.URLParam(r, "command"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArgsBytes))
		if err != nil {
			response.Error(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}

		result, err := d.Invoke(r.Context(), name, body)
		if err != nil {
			status := StatusFor(err)
			// Errors that pick their own status are logged where they happen.
			var sc StatusCoder
			if status >= http.StatusInternalServerError && !errors.As(err, &sc) {
				logger.WithCtx(r.Context()).Warn("ipc: command failed", "command", name, "error", err)
			}
			response.Error(w, status, err.Error())
			return
		}
		response.Success(w, result)
	}
}

// StatusFor maps a command error to an HTTP status.
func StatusFor(err error) int {
	var sc StatusCoder
	switch {
	case errors.As(err, &sc):
		return sc.StatusCode()
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgs):
		return http.StatusBadRequest
	case errors.Is(err, workerpool.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
