package speech

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// CommandSpeaker shells out to a system TTS binary ('say' on macOS,
// 'espeak'/'piper' on Linux). The binary is opaque: text goes in as the last
// argument, audio comes out of the system mixer.
type CommandSpeaker struct {
	logger  zerolog.Logger
	command string
	args    []string
}

// NewCommandSpeaker creates a speaker for the given command and fixed
// leading arguments.
func NewCommandSpeaker(logger zerolog.Logger, command string, args ...string) *CommandSpeaker {
	return &CommandSpeaker{
		logger:  logger.With().Str("provider", "command-speaker").Logger(),
		command: command,
		args:    args,
	}
}

// Name returns the provider identifier
func (s *CommandSpeaker) Name() string {
	return "command"
}

// IsAvailable checks the configured binary exists on PATH
func (s *CommandSpeaker) IsAvailable() bool {
	if s.command == "" {
		return false
	}
	_, err := exec.LookPath(s.command)
	return err == nil
}

// Speak runs the TTS command, blocking until playback finishes.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	if !s.IsAvailable() {
		return ErrUnavailable
	}

	args := append(append([]string{}, s.args...), text)

	s.logger.Debug().
		Str("command", s.command).
		Int("textLen", len(text)).
		Msg("Speaking via system TTS command")

	cmd := exec.CommandContext(ctx, s.command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("output", string(output)).
			Msg("TTS command failed")
		return fmt.Errorf("%s command failed: %w", s.command, err)
	}
	return nil
}
