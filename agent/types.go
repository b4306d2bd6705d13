package agent

import (
	"time"

	"github.com/google/uuid"
)

// Content is the payload of a message.
type Content struct {
	// Text is the message body.
	Text string `json:"text"`

	// Action names the action the message asks for, if any.
	Action string `json:"action,omitempty"`

	// Source identifies the client the message came from, e.g. "direct".
	Source string `json:"source,omitempty"`

	// URL optionally links the message to a remote resource.
	URL string `json:"url,omitempty"`

	// FilePath optionally references a local file the message is about.
	FilePath string `json:"filePath,omitempty"`

	// InReplyTo is the ID of the message this one answers.
	InReplyTo *uuid.UUID `json:"inReplyTo,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is media carried by a message.
type Attachment struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	Source      string `json:"source,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Memory is a single message exchanged in a room.
type Memory struct {
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"userId"`
	AgentID uuid.UUID `json:"agentId"`
	RoomID  uuid.UUID `json:"roomId"`
	Content Content   `json:"content"`

	// CreatedAt is the creation time in Unix milliseconds.
	CreatedAt int64 `json:"createdAt,omitempty"`
}

// NewMemory creates a message with a fresh ID, stamped with the current time.
func NewMemory(userID, agentID, roomID uuid.UUID, content Content) Memory {
	return Memory{
		ID:        uuid.New(),
		UserID:    userID,
		AgentID:   agentID,
		RoomID:    roomID,
		Content:   content,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// State is the context an action runs with. It is rebuilt from the runtime
// for each message.
type State struct {
	AgentID   uuid.UUID `json:"agentId"`
	AgentName string    `json:"agentName"`
	Bio       string    `json:"bio"`
	Lore      string    `json:"lore"`
	RoomID    uuid.UUID `json:"roomId"`

	// RecentMessages is RecentMessagesData rendered one message per line.
	RecentMessages     string   `json:"recentMessages"`
	RecentMessagesData []Memory `json:"recentMessagesData"`

	// ActionNames lists the names of the actions available to the agent.
	ActionNames string `json:"actionNames"`

	// Providers holds the concatenated output of all providers.
	Providers string `json:"providers"`

	// Values carries free-form data added by hosts and providers.
	Values map[string]any `json:"values,omitempty"`
}
