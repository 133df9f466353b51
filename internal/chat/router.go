package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zulandar/interviewer/internal/logger"
	"go.uber.org/zap"
)

// Router classifies inbound chat messages and queues them on the
// dispatcher: commands go to the command handler, everything else to the
// interview running at the message's location.
type Router struct {
	iv         Interviewer
	cmdHandler *CommandHandler
	dispatcher *Dispatcher
	adapter    Adapter
	botUserID  string // the bot's own user ID (to filter self-messages)
	log        *zap.Logger
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Interviewer Interviewer
	CmdHandler  *CommandHandler
	Dispatcher  *Dispatcher
	Adapter     Adapter
	BotUserID   string // bot's user ID for self-message filtering
	Logger      *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Interviewer == nil {
		return nil, fmt.Errorf("chat: router: interviewer is required")
	}
	if opts.CmdHandler == nil {
		return nil, fmt.Errorf("chat: router: command handler is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("chat: router: dispatcher is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("chat: router: adapter is required")
	}
	return &Router{
		iv:         opts.Interviewer,
		cmdHandler: opts.CmdHandler,
		dispatcher: opts.Dispatcher,
		adapter:    opts.Adapter,
		botUserID:  opts.BotUserID,
		log:        logger.OrNop(opts.Logger),
	}, nil
}

// Handle classifies a single inbound message and queues its handling on
// the worker for the message's location. Routing paths:
//  1. Bot self-message or empty text → ignore
//  2. Command prefix (or bot @mention followed by a command) → command handler
//  3. Anything else → interview controller (ignored when no interview is active)
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	loc := msg.Location()
	log := r.log.With(
		zap.String(logger.FieldEventID, uuid.NewString()),
		zap.String(logger.FieldChannel, loc),
		zap.String("user", msg.UserName))
	log.Debug("chat: router: recv", zap.String("text", logger.Truncate(text, 80)))

	if cmd := r.commandText(text); cmd != "" {
		log.Debug("chat: router: → command")
		r.submit(loc, log, func(ctx context.Context) {
			r.send(ctx, log, r.cmdHandler.Execute(ctx, msg, cmd)...)
		})
		return
	}

	r.submit(loc, log, func(ctx context.Context) {
		res, err := r.iv.HandleMessage(ctx, loc, msg.UserID, text)
		if err != nil {
			log.Error("chat: router: interview turn failed", zap.Error(err))
			return
		}
		if res == nil {
			return
		}
		log.Info("chat: router: turn handled",
			zap.Uint(logger.FieldSessionID, res.SessionID),
			zap.Int(logger.FieldTurn, res.Turn),
			zap.String(logger.FieldOutcome, string(res.Outcome)),
			zap.Bool("ready_to_end", res.ReadyToEnd))
		out := make([]OutboundMessage, 0, len(res.Replies))
		for _, text := range res.Replies {
			out = append(out, reply(msg, text))
		}
		r.send(ctx, log, out...)
	})
}

func (r *Router) submit(key string, log *zap.Logger, job Job) {
	if !r.dispatcher.Submit(key, job) {
		log.Warn("chat: router: dropped message during shutdown")
	}
}

// send delivers messages in order, splitting long texts.
func (r *Router) send(ctx context.Context, log *zap.Logger, msgs ...OutboundMessage) {
	for _, m := range msgs {
		for _, chunk := range chunkMessage(m.Text, maxMessageLen) {
			part := m
			part.Text = chunk
			if err := r.adapter.Send(ctx, part); err != nil {
				log.Error("chat: router: send", zap.Error(err))
				return
			}
		}
	}
}

// commandText returns the command text when text is a command, or when it
// is a leading bot mention followed by one. Otherwise it returns "".
func (r *Router) commandText(text string) string {
	if r.cmdHandler.IsCommand(text) {
		return text
	}
	if r.botUserID == "" {
		return ""
	}
	m := mentionRe.FindStringSubmatchIndex(text)
	if m == nil || m[0] != 0 || text[m[2]:m[3]] != r.botUserID {
		return ""
	}
	rest := strings.TrimSpace(text[m[1]:])
	if rest == "" {
		return ""
	}
	first := strings.ToLower(strings.Fields(rest)[0])
	if knownCommands[first] {
		return r.cmdHandler.prefix + " " + rest
	}
	return ""
}

// knownCommands is the set of top-level commands the CommandHandler supports.
var knownCommands = map[string]bool{
	"start":      true,
	"resume":     true,
	"end":        true,
	"evaluate":   true,
	"transcript": true,
	"status":     true,
	"help":       true,
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}
