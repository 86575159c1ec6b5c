package errors

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// KindInfo contains metadata about an error kind.
type KindInfo struct {
	Kind            Kind
	Retryable       bool
	Description     string
	SuggestedAction string
}

// KindRegistry maps kinds to their metadata.
var KindRegistry = map[Kind]KindInfo{
	KindPermissionDenied: {
		Kind:            KindPermissionDenied,
		Retryable:       false,
		Description:     "Could not access microphone. Please check permissions.",
		SuggestedAction: "Grant microphone access to the terminal, then list inputs with: minutes devices",
	},
	KindInvalidFile: {
		Kind:            KindInvalidFile,
		Retryable:       false,
		Description:     "Invalid file",
		SuggestedAction: "Use an audio or video file under 50MB with a supported extension",
	},
	KindTranscriptTooShort: {
		Kind:            KindTranscriptTooShort,
		Retryable:       false,
		Description:     "Transcript must be at least 50 characters",
		SuggestedAction: "Provide the full meeting transcript, not a fragment",
	},
	KindAuthRequired: {
		Kind:            KindAuthRequired,
		Retryable:       false,
		Description:     "Authentication Required: Please log in to continue",
		SuggestedAction: "Log in again with: minutes auth login",
	},
	KindUploadFailed: {
		Kind:            KindUploadFailed,
		Retryable:       true,
		Description:     "Upload failed",
		SuggestedAction: "Check the server status with: minutes status",
	},
	KindAnalysisFailed: {
		Kind:            KindAnalysisFailed,
		Retryable:       true,
		Description:     "Analysis failed",
		SuggestedAction: "Check the AI service status with: minutes status",
	},
	KindNetworkError: {
		Kind:            KindNetworkError,
		Retryable:       true,
		Description:     "Network error during upload",
		SuggestedAction: "Verify server_url with: minutes config show",
	},
	KindMalformedResponse: {
		Kind:            KindMalformedResponse,
		Retryable:       false,
		Description:     "Invalid response from server",
		SuggestedAction: "Confirm server_url points at the meeting assistant API",
	},
	KindCanceled: {
		Kind:            KindCanceled,
		Retryable:       false,
		Description:     "Operation canceled",
		SuggestedAction: "Run the command again to retry",
	},
	KindLoginFailed: {
		Kind:            KindLoginFailed,
		Retryable:       false,
		Description:     "Login failed",
		SuggestedAction: "Check your username and password, or register with: minutes auth register",
	},
	KindRegistrationFailed: {
		Kind:            KindRegistrationFailed,
		Retryable:       false,
		Description:     "Registration failed",
		SuggestedAction: "Choose another username, or log in with: minutes auth login",
	},
	KindHealthCheckFailed: {
		Kind:            KindHealthCheckFailed,
		Retryable:       false,
		Description:     "Server reported an error",
		SuggestedAction: "Check the server logs; the API answered but is not healthy",
	},
}

// IsRetryable reports whether failures of the given kind are worth retrying.
func IsRetryable(kind Kind) bool {
	if info, ok := KindRegistry[kind]; ok {
		return info.Retryable
	}
	return false
}

// SuggestedAction returns the suggested action for the given kind.
func SuggestedAction(kind Kind) string {
	if info, ok := KindRegistry[kind]; ok {
		return info.SuggestedAction
	}
	return "Re-run with --debug and check the logs for details"
}

// Description returns the human-readable description for the given kind.
func Description(kind Kind) string {
	if info, ok := KindRegistry[kind]; ok {
		return info.Description
	}
	return "Unknown error"
}

// IsErrorRetryable reports whether err is classified and its kind is retryable.
func IsErrorRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return IsRetryable(kind)
}

// ClassifyTransport converts an error returned by an HTTP round trip into an
// *Error. Context cancellation maps to KindCanceled; everything else means no
// response was received and maps to KindNetworkError.
func ClassifyTransport(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindCanceled, "", err)
	}

	detail := Description(KindNetworkError)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		detail = "Network timeout waiting for server"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) && opErr.Op == "dial" {
			detail = "Could not connect to server"
		}
	}
	return Wrap(KindNetworkError, detail, err)
}
