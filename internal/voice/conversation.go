// Package voice keeps the transcript of the current conversation: a bounded
// ring of user/assistant exchanges that expires after inactivity.
package voice

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Exchange is one user-assistant conversation turn.
type Exchange struct {
	UserText      string    `json:"userText"`
	AssistantText string    `json:"assistantText"`
	Timestamp     time.Time `json:"timestamp"`
}

// ConversationConfig configures transcript retention.
type ConversationConfig struct {
	// MaxExchanges is the maximum number of exchanges to retain (default: 10)
	MaxExchanges int
	// InactivityTimeout is the duration after which the transcript expires
	// (default: 5 minutes)
	InactivityTimeout time.Duration
}

// DefaultConversationConfig returns sensible defaults.
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		MaxExchanges:      10,
		InactivityTimeout: 5 * time.Minute,
	}
}

// ConversationManager tracks the rolling transcript. It survives mode
// switches: the log belongs to the runtime, not to any one session.
type ConversationManager struct {
	mu           sync.RWMutex
	exchanges    []Exchange
	lastActivity time.Time
	config       ConversationConfig
}

// NewConversationManager creates a manager with the given config.
func NewConversationManager(config ConversationConfig) *ConversationManager {
	if config.MaxExchanges <= 0 {
		config.MaxExchanges = 10
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = 5 * time.Minute
	}

	return &ConversationManager{
		exchanges:    make([]Exchange, 0, config.MaxExchanges),
		lastActivity: time.Now(),
		config:       config,
	}
}

// AddExchange records a user/assistant exchange pair, trimming old entries
// to stay within MaxExchanges. An expired transcript is cleared first.
func (cm *ConversationManager) AddExchange(userText, assistantText string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.isExpiredLocked() {
		cm.exchanges = cm.exchanges[:0]
	}

	cm.exchanges = append(cm.exchanges, Exchange{
		UserText:      userText,
		AssistantText: assistantText,
		Timestamp:     time.Now(),
	})
	cm.lastActivity = time.Now()

	if len(cm.exchanges) > cm.config.MaxExchanges {
		cm.exchanges = cm.exchanges[len(cm.exchanges)-cm.config.MaxExchanges:]
	}
}

// Context returns the formatted transcript, empty when expired or blank.
func (cm *ConversationManager) Context() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.isExpiredLocked() || len(cm.exchanges) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, ex := range cm.exchanges {
		fmt.Fprintf(&sb, "User: %s\n", ex.UserText)
		assistantText := ex.AssistantText
		if len(assistantText) > 200 {
			assistantText = assistantText[:200] + "..."
		}
		fmt.Fprintf(&sb, "Assistant: %s\n", assistantText)
	}
	return sb.String()
}

// ExchangeCount returns the number of stored exchanges.
func (cm *ConversationManager) ExchangeCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.exchanges)
}

// Exchanges returns a copy of the transcript, nil when expired.
func (cm *ConversationManager) Exchanges() []Exchange {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.isExpiredLocked() {
		return nil
	}
	result := make([]Exchange, len(cm.exchanges))
	copy(result, cm.exchanges)
	return result
}

// Clear drops the transcript.
func (cm *ConversationManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.exchanges = cm.exchanges[:0]
}

// IsExpired reports whether the transcript has gone stale from inactivity.
func (cm *ConversationManager) IsExpired() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isExpiredLocked()
}

func (cm *ConversationManager) isExpiredLocked() bool {
	if len(cm.exchanges) == 0 {
		return false
	}
	return time.Since(cm.lastActivity) > cm.config.InactivityTimeout
}

// LastActivity returns the timestamp of the most recent exchange.
func (cm *ConversationManager) LastActivity() time.Time {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lastActivity
}
