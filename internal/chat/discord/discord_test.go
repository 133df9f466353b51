package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/interviewer/internal/chat"
)

// --- Mock Discord session ---

type mockSession struct {
	mu           sync.Mutex
	opened       bool
	closeCalled  bool
	openErr      error
	sentMessages []sentMessage
	sendErrs     []error // consumed in order, then nil
	threads      []startedThread
	threadErr    error
	members      []string
	memberErr    error
	handlers     []interface{}
	removeCount  int
	channels     map[string]*discordgo.Channel // for Channel() lookups
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

type startedThread struct {
	channelID string
	data      *discordgo.ThreadStart
}

func newMockSession() *mockSession {
	return &mockSession{channels: make(map[string]*discordgo.Channel)}
}

func (m *mockSession) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

func (m *mockSession) Channel(channelID string) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[channelID]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("channel not found: %s", channelID)
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		return nil, err
	}
	m.sentMessages = append(m.sentMessages, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: "msg-123"}, nil
}

func (m *mockSession) ThreadStartComplex(channelID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.threadErr != nil {
		return nil, m.threadErr
	}
	m.threads = append(m.threads, startedThread{channelID: channelID, data: data})
	return &discordgo.Channel{ID: "thread-123", ParentID: channelID, Type: data.Type}, nil
}

func (m *mockSession) ThreadMemberAdd(threadID, memberID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memberErr != nil {
		return m.memberErr
	}
	m.members = append(m.members, threadID+":"+memberID)
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeCount++
	}
}

func (m *mockSession) lastSent() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentMessages[len(m.sentMessages)-1]
}

// --- Helper to create a connected adapter ---

func newTestAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	sess := newMockSession()
	a, err := New(AdapterOpts{Session: sess, ChannelID: "C_DEFAULT"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	a.baseBackoff = time.Millisecond
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.SetBotUserID("BOT_USER_ID")
	t.Cleanup(func() { a.Close() })
	return a, sess
}

func rateLimitErr() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
}

func TestNew_RequiresBotToken(t *testing.T) {
	_, err := New(AdapterOpts{})
	if err == nil || !strings.Contains(err.Error(), "bot token") {
		t.Fatalf("err = %v, want bot token error", err)
	}
	if _, err := New(AdapterOpts{BotToken: "token"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConnect(t *testing.T) {
	a, sess := newTestAdapter(t)
	if !sess.opened {
		t.Error("expected session to be opened")
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Errorf("second connect should be a no-op: %v", err)
	}

	bad := newMockSession()
	bad.openErr = fmt.Errorf("gateway error")
	b, _ := New(AdapterOpts{Session: bad})
	if err := b.Connect(context.Background()); err == nil || !strings.Contains(err.Error(), "open gateway") {
		t.Errorf("err = %v, want open gateway error", err)
	}
}

func TestConnect_ReadyCapturesBotUserID(t *testing.T) {
	sess := newMockSession()
	a, _ := New(AdapterOpts{Session: sess})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()

	var ready func(*discordgo.Session, *discordgo.Ready)
	for _, h := range sess.handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.Ready)); ok {
			ready = fn
		}
	}
	if ready == nil {
		t.Fatal("no Ready handler registered")
	}
	ready(nil, &discordgo.Ready{User: &discordgo.User{ID: "B1", Username: "interviewer"}})
	if got := a.BotUserID(); got != "B1" {
		t.Errorf("BotUserID = %q, want B1", got)
	}
}

func TestListen(t *testing.T) {
	sess := newMockSession()
	a, _ := New(AdapterOpts{Session: sess})
	if _, err := a.Listen(context.Background()); err == nil {
		t.Fatal("expected error when not connected")
	}

	a, sess = newTestAdapter(t)
	before := len(sess.handlers)
	if _, err := a.Listen(context.Background()); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if len(sess.handlers) != before+1 {
		t.Error("expected message handler to be registered")
	}
	a.Close()
	if sess.removeCount != 1 {
		t.Errorf("removeCount = %d, want 1", sess.removeCount)
	}
	if !sess.closeCalled {
		t.Error("expected session close")
	}
}

func TestHandleMessage(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.channels["thread-999"] = &discordgo.Channel{
		ID:       "thread-999",
		Type:     discordgo.ChannelTypeGuildPrivateThread,
		ParentID: "parent-channel",
	}
	ch, _ := a.Listen(context.Background())

	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "100", ChannelID: "C1", Content: "self", Author: &discordgo.User{ID: "BOT_USER_ID"},
	}})
	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "101", ChannelID: "C1", Content: "other bot", Author: &discordgo.User{ID: "B2", Bot: true},
	}})
	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "102", ChannelID: "C1", Content: "no author",
	}})
	a.handleMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "175928847299117063", ChannelID: "thread-999", Content: "I led the robotics team.",
		Author: &discordgo.User{ID: "U_ALICE", Username: "Alice"},
	}})

	select {
	case msg := <-ch:
		if msg.Platform != "discord" || msg.Text != "I led the robotics team." {
			t.Errorf("msg = %+v", msg)
		}
		if msg.ChannelID != "parent-channel" || msg.ThreadID != "thread-999" {
			t.Errorf("routing = %q/%q", msg.ChannelID, msg.ThreadID)
		}
		if msg.Location() != "thread-999" {
			t.Errorf("Location = %q", msg.Location())
		}
		if msg.MessageID != "175928847299117063" || msg.UserID != "U_ALICE" || msg.UserName != "Alice" {
			t.Errorf("identity = %+v", msg)
		}
		if msg.Timestamp.IsZero() {
			t.Error("timestamp should be derived from the snowflake")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound message")
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected message: %+v", extra)
	default:
	}
}

func TestSend(t *testing.T) {
	a, sess := newTestAdapter(t)
	ctx := context.Background()

	if err := a.Send(ctx, chat.OutboundMessage{ChannelID: "C1", Text: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := sess.lastSent(); got.channelID != "C1" || got.data.Content != "hello" {
		t.Errorf("sent = %+v", got)
	}

	if err := a.Send(ctx, chat.OutboundMessage{ChannelID: "C1", ThreadID: "thread-9", Text: "in thread"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := sess.lastSent(); got.channelID != "thread-9" {
		t.Errorf("thread message sent to %q", got.channelID)
	}

	if err := a.Send(ctx, chat.OutboundMessage{Text: "default"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := sess.lastSent(); got.channelID != "C_DEFAULT" {
		t.Errorf("default channel = %q", got.channelID)
	}

	if err := a.Send(ctx, chat.OutboundMessage{ChannelID: "C1", Text: "No active interview in this channel.", Ephemeral: true, UserID: "U1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := sess.lastSent(); got.data.Content != "<@U1> No active interview in this channel." {
		t.Errorf("ephemeral content = %q", got.data.Content)
	}
}

func TestSend_Events(t *testing.T) {
	a, sess := newTestAdapter(t)
	err := a.Send(context.Background(), chat.OutboundMessage{
		ChannelID: "OPS",
		Events: []chat.FormattedEvent{{
			Title:  "Active interviews: 1",
			Body:   "- #1 **A**",
			Color:  chat.ColorInfo,
			Fields: []chat.Field{{Name: "Active", Value: "1", Short: true}},
		}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	embeds := sess.lastSent().data.Embeds
	if len(embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(embeds))
	}
	if embeds[0].Title != "Active interviews: 1" || embeds[0].Color != 0x2196F3 {
		t.Errorf("embed = %+v", embeds[0])
	}
	if len(embeds[0].Fields) != 1 || !embeds[0].Fields[0].Inline {
		t.Errorf("fields = %+v", embeds[0].Fields)
	}
}

func TestSend_Errors(t *testing.T) {
	sess := newMockSession()
	a, _ := New(AdapterOpts{Session: sess})
	if err := a.Send(context.Background(), chat.OutboundMessage{ChannelID: "C1", Text: "x"}); err == nil {
		t.Error("expected not connected error")
	}

	a, _ = newTestAdapter(t)
	a.channelID = ""
	if err := a.Send(context.Background(), chat.OutboundMessage{Text: "x"}); err == nil || !strings.Contains(err.Error(), "no channel") {
		t.Errorf("err = %v, want no channel error", err)
	}
}

func TestSend_RetriesRateLimit(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.sendErrs = []error{rateLimitErr(), rateLimitErr()}
	if err := a.Send(context.Background(), chat.OutboundMessage{ChannelID: "C1", Text: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sess.sentMessages) != 1 {
		t.Errorf("sent = %d, want 1", len(sess.sentMessages))
	}

	sess.sendErrs = []error{rateLimitErr(), rateLimitErr(), rateLimitErr(), rateLimitErr()}
	if err := a.Send(context.Background(), chat.OutboundMessage{ChannelID: "C1", Text: "hi"}); err == nil {
		t.Error("expected error after exhausting retries")
	}

	sess.sendErrs = []error{fmt.Errorf("forbidden")}
	if err := a.Send(context.Background(), chat.OutboundMessage{ChannelID: "C1", Text: "hi"}); err == nil || !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("err = %v, want forbidden without retry", err)
	}
}

func TestStartThread(t *testing.T) {
	a, sess := newTestAdapter(t)
	id, err := a.StartThread(context.Background(), "C1", "interview-ETHANLAM")
	if err != nil {
		t.Fatalf("start thread: %v", err)
	}
	if id != "thread-123" {
		t.Errorf("id = %q", id)
	}
	got := sess.threads[0]
	if got.channelID != "C1" || got.data.Name != "interview-ETHANLAM" {
		t.Errorf("thread = %+v", got)
	}
	if got.data.Type != discordgo.ChannelTypeGuildPrivateThread || got.data.AutoArchiveDuration != 1440 {
		t.Errorf("thread settings = %+v", got.data)
	}

	sess.threadErr = fmt.Errorf("missing access")
	if _, err := a.StartThread(context.Background(), "C1", "x"); err == nil || !strings.Contains(err.Error(), "start thread") {
		t.Errorf("err = %v", err)
	}
}

func TestInviteMember(t *testing.T) {
	a, sess := newTestAdapter(t)
	if err := a.InviteMember(context.Background(), "thread-123", "U9"); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if len(sess.members) != 1 || sess.members[0] != "thread-123:U9" {
		t.Errorf("members = %v", sess.members)
	}

	sess.memberErr = fmt.Errorf("missing permissions")
	if err := a.InviteMember(context.Background(), "thread-123", "U9"); err == nil {
		t.Error("expected error")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := map[string]int{"#36a64f": 0x36a64f, "2196F3": 0x2196F3, "": 0}
	for in, want := range tests {
		if got := parseHexColor(in); got != want {
			t.Errorf("parseHexColor(%q) = %x, want %x", in, got, want)
		}
	}
}

var _ chat.Adapter = (*Adapter)(nil)
var _ chat.ThreadStarter = (*Adapter)(nil)
var _ chat.MemberInviter = (*Adapter)(nil)
