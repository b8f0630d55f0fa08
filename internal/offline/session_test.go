package offline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/speech"
	"github.com/normanking/cortexvoice/internal/voice"
)

// scriptedRecognizer returns queued utterances, quiet cycles otherwise.
type scriptedRecognizer struct {
	ch chan string
}

func newScriptedRecognizer(utterances ...string) *scriptedRecognizer {
	r := &scriptedRecognizer{ch: make(chan string, len(utterances)+1)}
	for _, u := range utterances {
		r.ch <- u
	}
	return r
}

func (r *scriptedRecognizer) Name() string      { return "scripted" }
func (r *scriptedRecognizer) IsAvailable() bool { return true }

func (r *scriptedRecognizer) Listen(ctx context.Context) (string, error) {
	select {
	case u := <-r.ch:
		return u, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// capturingSpeaker records everything said.
type capturingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *capturingSpeaker) Name() string      { return "capturing" }
func (s *capturingSpeaker) IsAvailable() bool { return true }

func (s *capturingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *capturingSpeaker) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

func newTestSession(t *testing.T, recognizer speech.Recognizer) (*Session, *capturingSpeaker) {
	t.Helper()
	router, _ := newTestRouter(t)
	speaker := &capturingSpeaker{}
	conv := voice.NewConversationManager(voice.DefaultConversationConfig())
	sess := NewSession(recognizer, speaker, router, conv, bus.NewEventBus(), 50*time.Millisecond, zerolog.Nop())
	return sess, speaker
}

func TestSession_RunEndsOnGoodbye(t *testing.T) {
	sess, speaker := newTestSession(t, newScriptedRecognizer("what time is it", "goodbye"))

	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not end on goodbye")
	}

	spoken := speaker.all()
	if len(spoken) < 3 {
		t.Fatalf("expected greeting, answer and farewell, got %v", spoken)
	}
	if spoken[0] != greeting {
		t.Errorf("first utterance = %q, want the greeting", spoken[0])
	}
	if last := spoken[len(spoken)-1]; last != "Goodbye! Have a great day!" {
		t.Errorf("last utterance = %q", last)
	}

	// Both turns landed in the shared transcript.
	exchanges := sess.conv.Exchanges()
	if len(exchanges) != 2 {
		t.Fatalf("expected 2 recorded exchanges, got %d", len(exchanges))
	}
	if exchanges[0].UserText != "what time is it" {
		t.Errorf("first exchange user text = %q", exchanges[0].UserText)
	}
}

func TestSession_StopInterruptsSilentListen(t *testing.T) {
	sess, _ := newTestSession(t, newScriptedRecognizer()) // never speaks

	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	time.Sleep(20 * time.Millisecond)
	if err := sess.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after Stop", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// Stop again is harmless.
	if err := sess.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestSession_QuietCyclesDoNotEndTheConversation(t *testing.T) {
	rec := newScriptedRecognizer()
	sess, speaker := newTestSession(t, rec)

	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	// Two silent listen windows pass, then the user speaks.
	time.Sleep(120 * time.Millisecond)
	rec.ch <- "goodbye"

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not survive quiet cycles")
	}

	spoken := speaker.all()
	if last := spoken[len(spoken)-1]; last != "Goodbye! Have a great day!" {
		t.Errorf("last utterance = %q", last)
	}
}
