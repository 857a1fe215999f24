package relay

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

// Error kinds surfaced by the relay.
const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindRetryExhausted Kind = "retry_exhausted"
	KindUpstream       Kind = "upstream_failure"
	KindConfiguration  Kind = "configuration"
	KindInternal       Kind = "internal"
)

// ErrRegistrationNotFound is returned by stores when no registration exists
// for an (alt account, bot) pair.
var ErrRegistrationNotFound = errors.New("registration not found")

// Error is the typed failure shared by the fetcher, the service and the API.
type Error struct {
	Kind    Kind
	Message string
	// UpstreamStatus is the HTTP status returned by the upstream, when known.
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError reports a missing or malformed caller input.
func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NotFoundError reports a bot or category absent from the upstream snapshot.
func NotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// ConfigurationError reports missing process configuration.
func ConfigurationError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// UpstreamError reports a non-2xx (status > 0) or transport failure (status 0).
func UpstreamError(status int, msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, UpstreamStatus: status, Err: err}
}

// RetryExhaustedError reports that every attempt was rate limited.
func RetryExhaustedError(attempts int) *Error {
	return &Error{
		Kind:           KindRetryExhausted,
		Message:        fmt.Sprintf("upstream rate limit exceeded after %d attempts", attempts),
		UpstreamStatus: 429,
	}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
