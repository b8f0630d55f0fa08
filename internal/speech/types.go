// Package speech defines the capability interfaces the runtime uses to talk
// and listen. The engines behind them (TTS synthesis, STT transcription) are
// external: implementations here only hand text across a process or stream
// boundary.
package speech

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrUnavailable = errors.New("speech provider unavailable")
	ErrNoInput     = errors.New("no speech input captured")
)

// Speaker announces text to the user. Failures are reported but callers
// treat them as non-fatal.
type Speaker interface {
	// Name returns the provider identifier (e.g., "command", "console")
	Name() string

	// IsAvailable reports whether the provider can speak right now
	IsAvailable() bool

	// Speak announces text, blocking until delivery is handed off
	Speak(ctx context.Context, text string) error
}

// Recognizer captures one utterance per call.
type Recognizer interface {
	// Name returns the provider identifier
	Name() string

	// IsAvailable reports whether the provider can listen right now
	IsAvailable() bool

	// Listen blocks for one utterance and returns its transcript.
	// ErrNoInput means a quiet cycle, not a failure.
	Listen(ctx context.Context) (string, error)
}
