// Package slack implements the chat Adapter for Slack using Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/interviewer/internal/chat"
	"github.com/zulandar/interviewer/internal/logger"
	"go.uber.org/zap"
)

const (
	// Rate-limited Web API calls are retried at most this many times.
	maxRetries = 3
	// First reconnect delay, doubled per attempt up to maxBackoff.
	baseBackoff = 2 * time.Second
	maxBackoff  = 2 * time.Minute
	// Socket Mode runs are restarted at most this many times.
	maxReconnectAttempts = 10
	// seenCapacity bounds the message-timestamp set used to drop the
	// duplicate app_mention that accompanies a channel message.
	seenCapacity = 512
)

// slackClient is the Web API surface the adapter calls.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	PostEphemeral(channelID, userID string, options ...slackapi.MsgOption) (string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient is the Socket Mode surface the adapter calls.
type socketClient interface {
	RunContext(ctx context.Context) error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient adapts *socketmode.Client.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) RunContext(ctx context.Context) error { return r.client.RunContext(ctx) }
func (r *realSocketClient) EventsChan() chan socketmode.Event    { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements chat.Adapter and chat.ThreadStarter for Slack Socket
// Mode. Slack threads are public, so members are never invited.
type Adapter struct {
	client       slackClient
	socket       socketClient
	botUserID    string
	appToken     string
	botToken     string
	channelID    string // default channel for messages without explicit channel
	log          *zap.Logger
	mu           sync.Mutex
	connected    bool
	closed       bool
	inbound      chan chat.InboundMessage
	cancelFunc   context.CancelFunc
	pumps        sync.WaitGroup
	seen         map[string]struct{}
	seenOrder    []string
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxReconnect int
}

// AdapterOpts configures New.
type AdapterOpts struct {
	AppToken  string // xapp-... Slack app-level token for Socket Mode
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // default channel to post to
	Logger    *zap.Logger
	// Client and Socket replace the real API clients in tests.
	Client slackClient
	Socket socketClient
}

// New validates the tokens. No connection is made until Connect.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	return &Adapter{
		client:       opts.Client,
		socket:       opts.Socket,
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		channelID:    opts.ChannelID,
		log:          logger.OrNop(opts.Logger).With(zap.String("platform", "slack")),
		inbound:      make(chan chat.InboundMessage, 100),
		seen:         make(map[string]struct{}),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}, nil
}

// Connect creates the API clients and resolves the bot user ID.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID
	a.connected = true
	return nil
}

// Listen starts the Socket Mode connection and event pump in the
// background and returns the inbound channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("slack: not connected")
	}

	listenCtx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel

	a.pumps.Add(2)
	go func() {
		defer a.pumps.Done()
		a.runWithReconnect(listenCtx)
	}()
	go func() {
		defer a.pumps.Done()
		a.pumpEvents(listenCtx)
	}()
	return a.inbound, nil
}

// Send delivers a message to Slack. Ephemeral messages are shown only to
// msg.UserID.
func (a *Adapter) Send(ctx context.Context, msg chat.OutboundMessage) error {
	if err := a.checkConnected(); err != nil {
		return err
	}

	channelID := msg.ChannelID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	options := buildMessageOptions(msg)
	if msg.Ephemeral && msg.UserID != "" {
		err := retryOnRateLimit(ctx, func() error {
			_, postErr := a.client.PostEphemeral(channelID, msg.UserID, options...)
			return postErr
		})
		if err != nil {
			return fmt.Errorf("slack: post ephemeral: %w", err)
		}
		return nil
	}

	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// StartThread posts a thread root message in channelID and returns its
// timestamp, which identifies the thread.
func (a *Adapter) StartThread(ctx context.Context, channelID, name string) (string, error) {
	if err := a.checkConnected(); err != nil {
		return "", err
	}
	var ts string
	err := retryOnRateLimit(ctx, func() error {
		var postErr error
		_, ts, postErr = a.client.PostMessage(channelID, slackapi.MsgOptionText(":speech_balloon: *"+name+"*", false))
		return postErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: start thread: %w", err)
	}
	return ts, nil
}

// Close stops the event pump and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.mu.Unlock()

	a.pumps.Wait()
	close(a.inbound)
	return nil
}

// BotUserID is the authenticated bot's user ID, empty before Connect.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

func (a *Adapter) checkConnected() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("slack: not connected")
	}
	return nil
}

// runWithReconnect restarts a failed Socket Mode run after a doubling delay
// until maxReconnect attempts are spent or ctx ends.
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < a.maxReconnect; attempt++ {
		err := a.socket.RunContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		a.log.Warn("slack: socket mode disconnected; reconnecting",
			zap.Int("attempt", attempt+1), zap.Int("max_attempts", a.maxReconnect),
			zap.Duration("wait", wait), zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	a.log.Error("slack: socket mode exhausted reconnection attempts", zap.Int("attempts", a.maxReconnect))
}

// pumpEvents drains the Socket Mode event channel until ctx ends.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(ctx, evt)
		}
	}
}

// handleSocketEvent acks and dispatches one Socket Mode envelope.
func (a *Adapter) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleEventsAPI(ctx, eventsAPIEvent)

	case socketmode.EventTypeConnecting:
		a.log.Debug("slack: connecting to Socket Mode")

	case socketmode.EventTypeConnected:
		a.log.Info("slack: connected to Socket Mode")

	case socketmode.EventTypeConnectionError:
		a.log.Warn("slack: connection error", zap.Any("data", evt.Data))

	case socketmode.EventTypeDisconnect:
		a.log.Info("slack: server requested disconnect, will reconnect")
	}
}

// handleEventsAPI turns message and app_mention callbacks into inbound messages.
func (a *Adapter) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Skip bot posts and edited/deleted/joined subtypes.
		if ev.BotID != "" || ev.SubType != "" {
			return
		}
		a.deliver(ctx, ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp, ev.User, ev.Text)
	case *slackevents.AppMentionEvent:
		a.deliver(ctx, ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp, ev.User, ev.Text)
	}
}

// deliver forwards a message once, however many events carried it.
func (a *Adapter) deliver(ctx context.Context, channelID, threadTS, ts, userID, text string) {
	a.mu.Lock()
	self := userID == a.botUserID
	dup := a.markSeen(channelID + "/" + ts)
	a.mu.Unlock()
	if self || dup {
		return
	}

	msg := chat.InboundMessage{
		Platform:  "slack",
		ChannelID: channelID,
		ThreadID:  threadTS,
		MessageID: ts,
		UserID:    userID,
		UserName:  a.resolveUserName(userID),
		Text:      text,
		Timestamp: parseSlackTimestamp(ts),
	}
	select {
	case a.inbound <- msg:
	case <-ctx.Done():
	}
}

// markSeen records key and reports whether it was already present.
// Caller holds a.mu.
func (a *Adapter) markSeen(key string) bool {
	if _, ok := a.seen[key]; ok {
		return true
	}
	a.seen[key] = struct{}{}
	a.seenOrder = append(a.seenOrder, key)
	if len(a.seenOrder) > seenCapacity {
		delete(a.seen, a.seenOrder[0])
		a.seenOrder = a.seenOrder[1:]
	}
	return false
}

// resolveUserName prefers the display name, then the real name, then the ID.
func (a *Adapter) resolveUserName(userID string) string {
	if userID == "" {
		return ""
	}
	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.RealName
}

// buildMessageOptions maps text, thread and event blocks to post options.
func buildMessageOptions(msg chat.OutboundMessage) []slackapi.MsgOption {
	var options []slackapi.MsgOption
	if msg.ThreadID != "" {
		options = append(options, slackapi.MsgOptionTS(msg.ThreadID))
	}

	if len(msg.Events) > 0 {
		var attachments []slackapi.Attachment
		for _, evt := range msg.Events {
			attachments = append(attachments, eventToAttachment(evt))
		}
		options = append(options, slackapi.MsgOptionAttachments(attachments...))
		// Text is the notification fallback.
		if msg.Text != "" {
			options = append(options, slackapi.MsgOptionText(msg.Text, false))
		}
	} else {
		options = append(options, slackapi.MsgOptionText(toMrkdwn(msg.Text), false))
	}
	return options
}

// toMrkdwn converts the bold markers used in replies to Slack's syntax.
func toMrkdwn(text string) string {
	return strings.ReplaceAll(text, "**", "*")
}

// eventToAttachment renders an event block as a legacy attachment.
func eventToAttachment(evt chat.FormattedEvent) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    evt.Title,
		Text:     toMrkdwn(evt.Body),
		Color:    evt.Color,
		Fallback: evt.Title,
	}
	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit retries fn while Slack answers with a rate-limit error.
// Slack's RetryAfter is honored; ctx cancellation aborts the wait.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// parseSlackTimestamp reads a "seconds.micros" message ts. Malformed input
// yields the zero time.
func parseSlackTimestamp(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var usec int64
	if frac != "" {
		if n, err := strconv.ParseInt(frac, 10, 64); err == nil && len(frac) == 6 {
			usec = n
		}
	}
	return time.Unix(s, usec*int64(time.Microsecond))
}
