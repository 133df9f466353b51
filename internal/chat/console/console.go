// Package console implements the chat Adapter over a line-oriented terminal
// session, for running interviews locally without a chat platform.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/interviewer/internal/chat"
	"golang.org/x/term"
)

const (
	defaultChannelID = "console"
	defaultUserID    = "candidate"
	botName          = "interviewer"
)

// Adapter reads one inbound message per input line and writes outbound
// messages as text. The inbound channel closes when input ends.
type Adapter struct {
	in        io.Reader
	out       io.Writer
	channelID string
	userID    string
	prompt    bool

	mu        sync.Mutex
	connected bool
	closed    bool
	listening bool
	cancel    context.CancelFunc
	seq       int
}

// AdapterOpts holds parameters for creating a console Adapter.
type AdapterOpts struct {
	In        io.Reader // defaults to os.Stdin
	Out       io.Writer // defaults to os.Stdout
	ChannelID string    // location key for typed messages, defaults to "console"
	UserID    string    // author of typed messages, defaults to "candidate"
}

// New creates a console Adapter. A "> " prompt is printed when input is a
// terminal.
func New(opts AdapterOpts) *Adapter {
	a := &Adapter{
		in:        opts.In,
		out:       opts.Out,
		channelID: opts.ChannelID,
		userID:    opts.UserID,
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.channelID == "" {
		a.channelID = defaultChannelID
	}
	if a.userID == "" {
		a.userID = defaultUserID
	}
	if f, ok := a.in.(*os.File); ok {
		a.prompt = term.IsTerminal(int(f.Fd()))
	}
	return a
}

// Connect marks the adapter as connected.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("console: adapter already closed")
	}
	a.connected = true
	return nil
}

// Listen starts reading input lines. Blank lines are skipped.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("console: not connected")
	}
	if a.listening {
		return nil, fmt.Errorf("console: already listening")
	}
	a.listening = true

	listenCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	inbound := make(chan chat.InboundMessage, 16)
	go a.read(listenCtx, inbound)
	a.printPrompt()
	return inbound, nil
}

func (a *Adapter) read(ctx context.Context, inbound chan<- chat.InboundMessage) {
	defer close(inbound)
	scanner := bufio.NewScanner(a.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			a.mu.Lock()
			a.printPrompt()
			a.mu.Unlock()
			continue
		}
		a.mu.Lock()
		a.seq++
		id := fmt.Sprintf("%d", a.seq)
		a.mu.Unlock()

		msg := chat.InboundMessage{
			Platform:  "console",
			ChannelID: a.channelID,
			MessageID: id,
			UserID:    a.userID,
			UserName:  a.userID,
			Text:      line,
			Timestamp: time.Now(),
		}
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// Send writes the message to the output.
func (a *Adapter) Send(ctx context.Context, msg chat.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("console: not connected")
	}

	var b strings.Builder
	b.WriteString(botName)
	if msg.Ephemeral && msg.UserID != "" {
		fmt.Fprintf(&b, " (to %s)", msg.UserID)
	}
	b.WriteString(": ")
	b.WriteString(msg.Text)
	b.WriteString("\n")
	for _, evt := range msg.Events {
		fmt.Fprintf(&b, "== %s ==\n", evt.Title)
		if evt.Body != "" {
			b.WriteString(evt.Body)
			b.WriteString("\n")
		}
		for _, f := range evt.Fields {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
		}
	}
	if _, err := io.WriteString(a.out, b.String()); err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	a.printPrompt()
	return nil
}

// Close stops reading. The reader goroutine exits at its next line.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

// printPrompt writes the input prompt. Caller holds a.mu.
func (a *Adapter) printPrompt() {
	if a.prompt {
		io.WriteString(a.out, "> ")
	}
}
