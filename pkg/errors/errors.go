// Package errors provides the error taxonomy for the minutes client.
//
// Every failure surfaced to the user is an *Error carrying a Kind. Each Kind
// has a sentinel error so callers can branch with errors.Is() without caring
// about the status code or detail attached to a particular failure.
//
// Usage:
//
//	import mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
//
//	// Return a classified error
//	return nil, mferrors.New(mferrors.KindInvalidFile, "File size must be less than 50MB")
//
//	// Check for a kind
//	if mferrors.IsAuthRequired(err) {
//	    // redirect to login
//	}
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a user-facing failure.
type Kind string

const (
	KindPermissionDenied   Kind = "permission_denied"
	KindInvalidFile        Kind = "invalid_file"
	KindTranscriptTooShort Kind = "transcript_too_short"
	KindAuthRequired       Kind = "auth_required"
	KindUploadFailed       Kind = "upload_failed"
	KindAnalysisFailed     Kind = "analysis_failed"
	KindNetworkError       Kind = "network_error"
	KindMalformedResponse  Kind = "malformed_response"
	KindCanceled           Kind = "canceled"
	KindLoginFailed        Kind = "login_failed"
	KindRegistrationFailed Kind = "registration_failed"
	KindHealthCheckFailed  Kind = "health_check_failed"
)

// Sentinel errors, one per Kind.
var (
	// ErrPermissionDenied indicates the capture device could not be opened.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidFile indicates a payload failed local validation.
	ErrInvalidFile = errors.New("invalid file")

	// ErrTranscriptTooShort indicates the transcript is under the minimum length.
	ErrTranscriptTooShort = errors.New("transcript too short")

	// ErrAuthRequired indicates the server rejected the session (HTTP 401).
	ErrAuthRequired = errors.New("authentication required")

	// ErrUploadFailed indicates the server rejected an upload.
	ErrUploadFailed = errors.New("upload failed")

	// ErrAnalysisFailed indicates the server rejected a transcript analysis.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrNetworkError indicates no response was received.
	ErrNetworkError = errors.New("network error")

	// ErrMalformedResponse indicates a success response that could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrCanceled indicates the operation was canceled by the caller.
	ErrCanceled = errors.New("canceled")

	// ErrLoginFailed indicates the server rejected the login credentials.
	ErrLoginFailed = errors.New("login failed")

	// ErrRegistrationFailed indicates the server or local checks rejected a registration.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrHealthCheckFailed indicates the health endpoint answered with an error status.
	ErrHealthCheckFailed = errors.New("health check failed")
)

var sentinels = map[Kind]error{
	KindPermissionDenied:   ErrPermissionDenied,
	KindInvalidFile:        ErrInvalidFile,
	KindTranscriptTooShort: ErrTranscriptTooShort,
	KindAuthRequired:       ErrAuthRequired,
	KindUploadFailed:       ErrUploadFailed,
	KindAnalysisFailed:     ErrAnalysisFailed,
	KindNetworkError:       ErrNetworkError,
	KindMalformedResponse:  ErrMalformedResponse,
	KindCanceled:           ErrCanceled,
	KindLoginFailed:        ErrLoginFailed,
	KindRegistrationFailed: ErrRegistrationFailed,
	KindHealthCheckFailed:  ErrHealthCheckFailed,
}

// Sentinel returns the sentinel error for the kind, or nil for an unknown kind.
func (k Kind) Sentinel() error {
	return sentinels[k]
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Status is the HTTP status code when the failure came from a response.
	Status int
	// Detail is the user-facing message.
	Detail string
	Err    error
}

// New returns an *Error of the given kind with a user-facing detail.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf is New with a formatted detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// WithStatus returns an *Error carrying an HTTP status code.
func WithStatus(kind Kind, status int, detail string) *Error {
	return &Error{Kind: kind, Status: status, Detail: detail}
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = Description(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := sentinels[e.Kind]
	return s != nil && target == s
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Message returns the user-facing message for err: the Detail of a classified
// error, or err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Detail != "" {
			return e.Detail
		}
		return Description(e.Kind)
	}
	return err.Error()
}

// IsPermissionDenied reports whether any error in err's chain is ErrPermissionDenied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsInvalidFile reports whether any error in err's chain is ErrInvalidFile.
func IsInvalidFile(err error) bool {
	return errors.Is(err, ErrInvalidFile)
}

// IsTranscriptTooShort reports whether any error in err's chain is ErrTranscriptTooShort.
func IsTranscriptTooShort(err error) bool {
	return errors.Is(err, ErrTranscriptTooShort)
}

// IsAuthRequired reports whether any error in err's chain is ErrAuthRequired.
func IsAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}

// IsUploadFailed reports whether any error in err's chain is ErrUploadFailed.
func IsUploadFailed(err error) bool {
	return errors.Is(err, ErrUploadFailed)
}

// IsAnalysisFailed reports whether any error in err's chain is ErrAnalysisFailed.
func IsAnalysisFailed(err error) bool {
	return errors.Is(err, ErrAnalysisFailed)
}

// IsHealthCheckFailed reports whether any error in err's chain is ErrHealthCheckFailed.
func IsHealthCheckFailed(err error) bool {
	return errors.Is(err, ErrHealthCheckFailed)
}

// IsNetworkError reports whether any error in err's chain is ErrNetworkError.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetworkError)
}

// IsMalformedResponse reports whether any error in err's chain is ErrMalformedResponse.
func IsMalformedResponse(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// IsCanceled reports whether any error in err's chain is ErrCanceled.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsLoginFailed reports whether any error in err's chain is ErrLoginFailed.
func IsLoginFailed(err error) bool {
	return errors.Is(err, ErrLoginFailed)
}

// IsRegistrationFailed reports whether any error in err's chain is ErrRegistrationFailed.
func IsRegistrationFailed(err error) bool {
	return errors.Is(err, ErrRegistrationFailed)
}
