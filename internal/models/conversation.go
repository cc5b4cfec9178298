package models

import "time"

// ConversationState is where a chat is in a multi-step command
type ConversationState string

const (
	// ConversationIdle means the next message is parsed as a command
	ConversationIdle ConversationState = ""
	// ConversationAwaitingName follows the Add Wallet button
	ConversationAwaitingName ConversationState = "awaiting_name"
	// ConversationAwaitingAddress follows a name reply
	ConversationAwaitingAddress ConversationState = "awaiting_address"
)

// Conversation is the per-chat context handed to every handler call.
// It is loaded before and saved after each update; there is no process-wide
// chat state.
type Conversation struct {
	ChatID      int64             `json:"chatId"`
	State       ConversationState `json:"state"`
	PendingName string            `json:"pendingName,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Reset returns the conversation to idle
func (c *Conversation) Reset() {
	c.State = ConversationIdle
	c.PendingName = ""
}
