package install

import (
	"errors"
	"fmt"
)

// ErrUnauthorized covers every fail-closed authorization outcome: bad
// token, bad HMAC, unknown shop code, fingerprint mismatch. Wrapped
// with a caller-safe reason.
var ErrUnauthorized = errors.New("unauthorized")

// ErrStaleTimestamp is returned when the handshake timestamp falls
// outside the staleness window.
var ErrStaleTimestamp = errors.New("request timestamp is too old")

// ValidationError reports a missing or malformed handshake field. The
// caller can fix and retry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid handshake: %s %s", e.Field, e.Reason)
}
