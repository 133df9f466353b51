package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdapter implements Adapter, ThreadStarter and MemberInviter for
// testing. It records sent messages and allows simulating inbound messages
// via SimulateInbound.
type MockAdapter struct {
	mu            sync.Mutex
	connected     bool
	closed        bool
	inbound       chan InboundMessage
	sent          []OutboundMessage
	botUserID     string
	threadCounter int
	threads       []string // names passed to StartThread
	invites       []string // "threadID:userID"
	threadErr     error
	inviteErr     error
	sendCh        chan OutboundMessage
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound: make(chan InboundMessage, 100),
		sendCh:  make(chan OutboundMessage, 100),
	}
}

// BotUserID returns the configured bot user ID (implements BotUserIDer).
func (m *MockAdapter) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// SetBotUserID sets the bot user ID for testing.
func (m *MockAdapter) SetBotUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = id
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Send records the outbound message.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.sent = append(m.sent, msg)
	select {
	case m.sendCh <- msg:
	default:
	}
	return nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// StartThread implements ThreadStarter. Threads are numbered thread-1,
// thread-2, ...
func (m *MockAdapter) StartThread(ctx context.Context, channelID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return "", fmt.Errorf("mock adapter: not connected")
	}
	if m.threadErr != nil {
		return "", m.threadErr
	}
	m.threadCounter++
	m.threads = append(m.threads, name)
	return fmt.Sprintf("thread-%d", m.threadCounter), nil
}

// InviteMember implements MemberInviter.
func (m *MockAdapter) InviteMember(ctx context.Context, threadID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inviteErr != nil {
		return m.inviteErr
	}
	m.invites = append(m.invites, threadID+":"+userID)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends a message into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.inbound <- msg
}

// SetThreadError makes StartThread fail with err.
func (m *MockAdapter) SetThreadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threadErr = err
}

// SetInviteError makes InviteMember fail with err.
func (m *MockAdapter) SetInviteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inviteErr = err
}

// WaitSent blocks until n further messages have been sent or the timeout
// elapses, and returns the messages observed.
func (m *MockAdapter) WaitSent(n int, timeout time.Duration) []OutboundMessage {
	var out []OutboundMessage
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case msg := <-m.sendCh:
			out = append(out, msg)
		case <-deadline:
			return out
		}
	}
	return out
}

// LastSent returns the most recently sent outbound message.
// Returns zero value and false if no messages have been sent.
func (m *MockAdapter) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutboundMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of outbound messages sent.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all sent outbound messages.
func (m *MockAdapter) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Threads returns the names of threads started so far.
func (m *MockAdapter) Threads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.threads...)
}

// Invites returns "threadID:userID" for each successful invite.
func (m *MockAdapter) Invites() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.invites...)
}
