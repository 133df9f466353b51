// Package chat bridges interview sessions to chat platforms (Discord, Slack,
// or a local console).
package chat

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and message sending/receiving
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the adapter is closed. Listen must only be
	// called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "slack", "discord", "console"
	ChannelID string    // platform-specific channel identifier
	ThreadID  string    // thread identifier (empty if top-level)
	MessageID string    // platform message identifier, when known
	UserID    string    // platform-specific user identifier
	UserName  string    // human-readable username
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// Location returns the key an interview in this conversation is stored
// under: the thread when the message is threaded, otherwise the channel.
func (m InboundMessage) Location() string {
	if m.ThreadID != "" {
		return m.ThreadID
	}
	return m.ChannelID
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string           // target channel (empty for the adapter default)
	ThreadID  string           // thread to reply in (empty for top-level)
	Text      string           // message text (platform-native formatting)
	Ephemeral bool             // visible only to UserID where supported
	UserID    string           // recipient of an ephemeral message
	Events    []FormattedEvent // structured attachments
}

// FormattedEvent is a structured notice, rendered as an embed or attachment.
type FormattedEvent struct {
	Title  string
	Body   string
	Color  string // sidebar color hint (e.g. "#36a64f")
	Fields []Field
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// ThreadStarter is implemented by adapters that can open a dedicated
// thread under a channel. The returned ID is the thread's location key.
type ThreadStarter interface {
	StartThread(ctx context.Context, channelID, name string) (string, error)
}

// MemberInviter is implemented by adapters that can add a user to a thread.
type MemberInviter interface {
	InviteMember(ctx context.Context, threadID, userID string) error
}
