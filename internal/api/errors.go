package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-meetsignal/internal/moderation"
	"github.com/npezzotti/go-meetsignal/internal/recording"
	"github.com/npezzotti/go-meetsignal/internal/registry"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewConflictError(message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusConflict,
		Message:    message,
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// fromDomainError translates the error taxonomy of the domain packages
// into HTTP responses.
func fromDomainError(err error) *ApiError {
	switch {
	case errors.Is(err, registry.ErrMeetingNotFound),
		errors.Is(err, registry.ErrParticipantNotFound),
		errors.Is(err, recording.ErrMeetingNotFound),
		errors.Is(err, recording.ErrRecordingNotFound):
		return NewNotFoundError()
	case errors.Is(err, registry.ErrRoomLocked),
		errors.Is(err, moderation.ErrNotAllowed):
		return NewForbiddenError()
	case errors.Is(err, registry.ErrRoomFull):
		return NewConflictError("meeting is full")
	case errors.Is(err, registry.ErrRoomReused):
		return NewConflictError("room id belongs to a finished meeting")
	case errors.Is(err, registry.ErrMeetingOver),
		errors.Is(err, recording.ErrMeetingOver):
		return NewConflictError("meeting is over")
	case errors.Is(err, recording.ErrRecordingConflict):
		return NewConflictError("a recording session is already active")
	default:
		return NewInternalServerError(err)
	}
}
