package relay

import (
	"errors"
	"fmt"
)

// Kind tags a relay failure so callers can branch on the failure class
// instead of matching message strings. The distinction between
// KindUploadFailed and KindLinkUnavailable is load-bearing: in the
// latter case the remote copy exists and the user must not be told to
// resend.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotAuthenticated
	KindInvalidCredentialsFormat
	KindBackendUnavailable
	KindFetchFailed
	KindStageWriteFailed
	KindUploadFailed
	KindLinkUnavailable
	KindInvalidSelection
	KindUnsupportedAttachment
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindInvalidCredentialsFormat:
		return "invalid_credentials_format"
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindFetchFailed:
		return "fetch_failed"
	case KindStageWriteFailed:
		return "stage_write_failed"
	case KindUploadFailed:
		return "upload_failed"
	case KindLinkUnavailable:
		return "link_unavailable"
	case KindInvalidSelection:
		return "invalid_selection"
	case KindUnsupportedAttachment:
		return "unsupported_attachment"
	default:
		return "unknown"
	}
}

// Error is a tagged relay failure wrapping an optional cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a tagged error; the format supports %w.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, or KindUnknown when err carries
// no relay tag.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
