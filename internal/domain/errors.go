package domain

import "errors"

// ErrUnauthenticated marks a call rejected because the credential was
// missing, invalid, or expired. It gets a distinct user-facing message at
// every call site.
var ErrUnauthenticated = errors.New("not authenticated")

// ErrRequestFailed marks any other transport or server-side failure,
// including malformed responses.
var ErrRequestFailed = errors.New("request failed")

// IsUnauthenticated reports whether err is (or wraps) ErrUnauthenticated.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// Notice converts a failed operation's error into the message shown to the
// user. Unauthenticated failures share one message everywhere; anything else
// falls back to the operation-specific message.
func Notice(err error, fallback string) string {
	if errors.Is(err, ErrUnauthenticated) {
		return "You are not authenticated!"
	}
	return fallback
}
