package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/learning"
	"github.com/p-n-ai/pai-classroom/internal/navigation"
	"github.com/p-n-ai/pai-classroom/internal/notes"
	"github.com/p-n-ai/pai-classroom/internal/progress"
	"github.com/p-n-ai/pai-classroom/internal/users"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks client input errors.
var errBadRequest = errors.New("bad request")

// envelope is the response body of every /api route.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, course.ErrCourseNotFound),
		errors.Is(err, course.ErrLessonNotFound),
		errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, notes.ErrNoteNotFound),
		errors.Is(err, notes.ErrNoNotes),
		errors.Is(err, progress.ErrProgressNotFound),
		errors.Is(err, learning.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrLessonLocked),
		errors.Is(err, navigation.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}
