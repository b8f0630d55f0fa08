package speech

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ConsoleSpeaker writes announcements to a terminal stream. It is the
// fallback when no TTS command is configured, and what headless runs and
// tests observe.
type ConsoleSpeaker struct {
	logger zerolog.Logger
	mu     sync.Mutex
	out    io.Writer
}

// NewConsoleSpeaker creates a speaker writing to out.
func NewConsoleSpeaker(logger zerolog.Logger, out io.Writer) *ConsoleSpeaker {
	return &ConsoleSpeaker{
		logger: logger.With().Str("provider", "console-speaker").Logger(),
		out:    out,
	}
}

// Name returns the provider identifier
func (s *ConsoleSpeaker) Name() string {
	return "console"
}

// IsAvailable always reports true
func (s *ConsoleSpeaker) IsAvailable() bool {
	return true
}

// Speak prints the announcement.
func (s *ConsoleSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, "assistant> "+text+"\n")
	return err
}

// ConsoleRecognizer reads utterances line by line from a terminal stream,
// standing in for a microphone-backed STT engine. One background goroutine
// owns the scanner for the life of the recognizer, so Listen calls never
// contend on the stream.
type ConsoleRecognizer struct {
	logger zerolog.Logger
	in     io.Reader
	once   sync.Once
	lines  chan string
}

// NewConsoleRecognizer creates a recognizer reading from in.
func NewConsoleRecognizer(logger zerolog.Logger, in io.Reader) *ConsoleRecognizer {
	return &ConsoleRecognizer{
		logger: logger.With().Str("provider", "console-recognizer").Logger(),
		in:     in,
		lines:  make(chan string),
	}
}

// Name returns the provider identifier
func (r *ConsoleRecognizer) Name() string {
	return "console"
}

// IsAvailable always reports true
func (r *ConsoleRecognizer) IsAvailable() bool {
	return true
}

func (r *ConsoleRecognizer) readLoop() {
	scanner := bufio.NewScanner(r.in)
	for scanner.Scan() {
		r.lines <- strings.TrimSpace(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn().Err(err).Msg("Input stream closed with error")
	}
	close(r.lines)
}

// Listen blocks for one line of input. EOF and blank lines surface as
// ErrNoInput so the offline loop treats them as quiet cycles.
func (r *ConsoleRecognizer) Listen(ctx context.Context) (string, error) {
	r.once.Do(func() { go r.readLoop() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-r.lines:
		if !ok {
			return "", ErrNoInput
		}
		if line == "" {
			return "", ErrNoInput
		}
		return line, nil
	}
}
