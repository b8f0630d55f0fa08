// Package online implements the network-backed conversation engine: one
// websocket session with the conversational agent, run to completion or
// preempted by the mode arbiter.
package online

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/mode"
	"github.com/normanking/cortexvoice/internal/voice"
)

// Config configures the online session transport.
type Config struct {
	AgentURL         string
	AgentID          string
	APIKey           string
	HandshakeTimeout time.Duration
	ResponseTimeout  time.Duration
}

// envelope is the wire frame exchanged with the agent.
type envelope struct {
	Type           string         `json:"type"`
	Text           string         `json:"text,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	ToolName       string         `json:"tool_name,omitempty"`
	ToolCallID     string         `json:"tool_call_id,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Result         string         `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Session is one online conversation. It implements the arbiter's Session
// interface: Run blocks until the remote side ends the conversation or End
// tears the transport down.
type Session struct {
	logger zerolog.Logger
	config Config
	tools  *Registry
	conv   *voice.ConversationManager
	events *bus.EventBus

	id string

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool

	readDone chan struct{}
	doneOnce sync.Once

	respCh chan string

	mu       sync.Mutex
	convID   string
	lastUser string
}

// NewSession creates an unstarted session.
func NewSession(cfg Config, tools *Registry, conv *voice.ConversationManager, events *bus.EventBus, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		logger:   logger.With().Str("component", "online-session").Str("session", id).Logger(),
		config:   cfg,
		tools:    tools,
		conv:     conv,
		events:   events,
		id:       id,
		readDone: make(chan struct{}),
		respCh:   make(chan string, 8),
	}
}

// ID returns the locally assigned session id.
func (s *Session) ID() string { return s.id }

// Start dials the agent and begins the background read loop. A handshake
// failure is an init failure: the arbiter stays Idle.
func (s *Session) Start(ctx context.Context) error {
	if s.config.APIKey == "" {
		return fmt.Errorf("no API key configured")
	}

	s.connMu.Lock()
	if s.connected {
		s.connMu.Unlock()
		return nil
	}

	url := fmt.Sprintf("%s?agent_id=%s", s.config.AgentURL, s.config.AgentID)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.config.APIKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		s.connMu.Unlock()
		if resp != nil {
			s.logger.Error().Int("status", resp.StatusCode).Err(err).Msg("Agent websocket handshake failed")
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.connMu.Unlock()
	go s.readLoop()

	// Hand the agent whatever was said before this session, including
	// offline exchanges, so the conversation picks up where it left off.
	if prior := s.conv.Context(); prior != "" {
		if err := s.write(envelope{Type: "contextual_update", Text: prior}); err != nil {
			s.logger.Debug().Err(err).Msg("Contextual update failed")
		}
	}

	s.logger.Info().Msg("Connected to conversational agent")
	s.events.Publish(bus.Event{Type: bus.EventTypeSessionStarted, Data: map[string]any{
		"mode": "online", "session": s.id,
	}})
	return nil
}

// Run blocks until the conversation ends. Implements mode.Session.
func (s *Session) Run() error {
	<-s.readDone
	return nil
}

// Stop tears the session down. Implements mode.Session.
func (s *Session) Stop() error {
	return s.End()
}

// WaitForEnd blocks until the remote session terminates and returns the
// conversation id the agent assigned (the local id when none arrived).
func (s *Session) WaitForEnd() string {
	<-s.readDone
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.convID != "" {
		return s.convID
	}
	return s.id
}

// SendMessage sends user text and waits for the next agent response.
func (s *Session) SendMessage(text string) (string, error) {
	s.mu.Lock()
	s.lastUser = text
	s.mu.Unlock()

	if err := s.write(envelope{Type: "user_message", Text: text}); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	timer := time.NewTimer(s.config.ResponseTimeout)
	defer timer.Stop()
	select {
	case resp := <-s.respCh:
		return resp, nil
	case <-s.readDone:
		return "", fmt.Errorf("session ended before a response arrived")
	case <-timer.C:
		return "", fmt.Errorf("no response within %s", s.config.ResponseTimeout)
	}
}

// End closes the transport. Idempotent, and safe on an already-closing
// connection: expected close noise comes back wrapped as teardown noise so
// the arbiter can swallow it.
func (s *Session) End() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}

	var firstErr error
	deadline := time.Now().Add(time.Second)
	if err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session end"), deadline); err != nil {
		firstErr = err
	}
	if err := s.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.conn = nil
	s.connected = false

	if firstErr != nil && isExpectedTeardown(firstErr) {
		return fmt.Errorf("%w: %w", mode.ErrExpectedTeardown, firstErr)
	}
	return firstErr
}

func (s *Session) readLoop() {
	defer s.doneOnce.Do(func() { close(s.readDone) })

	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if isExpectedTeardown(err) {
				s.logger.Debug().Msg("Agent connection closed")
			} else {
				s.logger.Warn().Err(err).Msg("Error reading from agent")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.Warn().Err(err).Str("message", string(message)).Msg("Unparseable agent frame")
			continue
		}
		s.dispatch(env)
	}
}

func (s *Session) dispatch(env envelope) {
	switch env.Type {
	case "agent_response":
		s.mu.Lock()
		user := s.lastUser
		s.lastUser = ""
		if env.ConversationID != "" {
			s.convID = env.ConversationID
		}
		s.mu.Unlock()

		s.conv.AddExchange(user, env.Text)
		s.events.Publish(bus.Event{Type: bus.EventTypeResponse, Data: map[string]any{
			"text": env.Text, "session": s.id,
		}})
		select {
		case s.respCh <- env.Text:
		default:
		}

	case "user_transcript":
		s.mu.Lock()
		s.lastUser = env.Text
		s.mu.Unlock()
		s.events.Publish(bus.Event{Type: bus.EventTypeTranscript, Data: map[string]any{
			"text": env.Text, "session": s.id,
		}})

	case "client_tool_call":
		go s.invokeTool(env)

	case "ping":
		if err := s.write(envelope{Type: "pong"}); err != nil {
			s.logger.Debug().Err(err).Msg("Pong failed")
		}

	case "conversation_end":
		s.mu.Lock()
		if env.ConversationID != "" {
			s.convID = env.ConversationID
		}
		s.mu.Unlock()
		s.logger.Info().Str("conversation", env.ConversationID).Msg("Agent ended the conversation")
		// The agent will close the socket; the read loop unwinds on that.

	default:
		s.logger.Debug().Str("type", env.Type).Msg("Ignoring agent frame")
	}
}

// invokeTool runs a client tool and writes the result back on the socket.
// Tool errors go back to the agent, never up the stack.
func (s *Session) invokeTool(env envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ResponseTimeout)
	defer cancel()

	result, err := s.tools.Invoke(ctx, env.ToolName, env.Parameters)
	out := envelope{Type: "client_tool_result", ToolCallID: env.ToolCallID, Result: result}
	if err != nil {
		out.Error = err.Error()
		s.logger.Warn().Err(err).Str("tool", env.ToolName).Msg("Tool call failed")
	}
	if werr := s.write(out); werr != nil {
		s.logger.Debug().Err(werr).Str("tool", env.ToolName).Msg("Tool result write failed")
	}
}

func (s *Session) write(env envelope) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if !s.connected || s.conn == nil {
		return net.ErrClosed
	}
	return s.conn.WriteJSON(env)
}

// isExpectedTeardown classifies transport errors that a deliberate close
// produces, by error type rather than message text.
func isExpectedTeardown(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
