package exchange

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrUnknownVenue means no constructor is registered for the kind.
	ErrUnknownVenue = errors.New("unknown venue")

	// ErrNotReady means the stream has not delivered the first payload for
	// the requested data within the ready timeout.
	ErrNotReady = errors.New("stream not ready")

	// ErrUnknownSymbol means the venue does not list the symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrNoCredentials means the operation needs a signing key the client
	// was not configured with.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrUnsupported means the venue has no equivalent of the operation.
	ErrUnsupported = errors.New("operation not supported on this venue")
)

// RejectedError is a definitive order rejection from the venue. It is never
// retried: the venue understood the request and said no.
type RejectedError struct {
	Venue  Kind
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s rejected order (%s): %s", e.Venue, e.Code, e.Reason)
	}
	return fmt.Sprintf("%s rejected order: %s", e.Venue, e.Reason)
}

// IsRejected reports whether err is a definitive venue rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
