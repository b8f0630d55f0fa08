// Package offline implements the local recognize-respond conversation
// engine: a loop of listen, transcribe, route, speak that runs with no
// network and stops cooperatively.
package offline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/speech"
	"github.com/normanking/cortexvoice/internal/voice"
)

const greeting = "Hello! I am running in offline mode. How can I assist you today?"

// Session is one run of the offline loop. It implements the arbiter's
// Session interface; Stop sets a flag the loop observes at its next
// suspension point.
type Session struct {
	logger     zerolog.Logger
	recognizer speech.Recognizer
	speaker    speech.Speaker
	router     *Router
	conv       *voice.ConversationManager
	events     *bus.EventBus

	// listenTimeout bounds each listen cycle so the stop flag is observed
	// promptly even on a silent microphone.
	listenTimeout time.Duration

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewSession creates an offline session. The conversation manager is shared
// with the online engine so the transcript survives mode switches.
func NewSession(recognizer speech.Recognizer, speaker speech.Speaker, router *Router, conv *voice.ConversationManager, events *bus.EventBus, listenTimeout time.Duration, logger zerolog.Logger) *Session {
	return &Session{
		logger:        logger.With().Str("component", "offline-session").Logger(),
		recognizer:    recognizer,
		speaker:       speaker,
		router:        router,
		conv:          conv,
		events:        events,
		listenTimeout: listenTimeout,
		stopped:       make(chan struct{}),
	}
}

// Run loops until the user ends the conversation or Stop is called.
// Implements mode.Session.
func (s *Session) Run() error {
	s.logger.Info().Msg("Offline mode started")
	s.events.Publish(bus.Event{Type: bus.EventTypeSessionStarted, Data: map[string]any{
		"mode": "offline",
	}})
	s.say(greeting)

	for {
		select {
		case <-s.stopped:
			s.logger.Info().Msg("Offline mode stopping on request")
			return nil
		default:
		}

		text, err := s.listen()
		if err != nil {
			if errors.Is(err, speech.ErrNoInput) || errors.Is(err, context.DeadlineExceeded) {
				continue // quiet cycle
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.Warn().Err(err).Msg("Listen failed")
			s.say("Sorry, I encountered an error. Please try again.")
			continue
		}

		transcript := NormalizeTranscript(text)
		if transcript == "" {
			continue
		}
		s.events.Publish(bus.Event{Type: bus.EventTypeTranscript, Data: map[string]any{
			"text": transcript, "mode": "offline",
		}})

		response, done := s.router.Route(transcript)
		if response != "" {
			s.say(response)
			s.conv.AddExchange(transcript, response)
		}
		if done {
			s.logger.Info().Msg("Conversation ended by the user")
			return nil
		}
	}
}

// Stop requests a cooperative stop. Implements mode.Session.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

// listen captures one utterance, bounded so a stop never waits out a full
// silent recording.
func (s *Session) listen() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.listenTimeout)
	defer cancel()

	go func() {
		select {
		case <-s.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.recognizer.Listen(ctx)
}

// say announces text; speech failures are logged, never fatal.
func (s *Session) say(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.speaker.Speak(ctx, text); err != nil {
		s.logger.Warn().Err(err).Msg("Speech output failed")
	}
	s.events.Publish(bus.Event{Type: bus.EventTypeResponse, Data: map[string]any{
		"text": text, "mode": "offline",
	}})
}
