package mode

import "errors"

// Common errors
var (
	// ErrSessionInit reports that a new session could not be initialized.
	// The arbiter stays Idle; the next connectivity poll retries.
	ErrSessionInit = errors.New("session init failed")

	// ErrExpectedTeardown marks transport noise from a deliberate stop:
	// connection-already-closed, protocol EOF during close. Sessions wrap
	// such errors so StopCurrent can swallow them instead of string-matching
	// error messages.
	ErrExpectedTeardown = errors.New("expected teardown noise")
)
