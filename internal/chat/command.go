package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/logger"
	"github.com/zulandar/interviewer/internal/models"
	"go.uber.org/zap"
)

// DefaultCommandPrefix triggers command handling.
const DefaultCommandPrefix = "!iv"

// Interviewer is the interview controller surface used by the chat bridge.
type Interviewer interface {
	Start(ctx context.Context, req interview.StartRequest) (*interview.StartResult, error)
	HandleMessage(ctx context.Context, channelID, authorID, text string) (*interview.TurnResult, error)
	End(ctx context.Context, channelID string) (*models.Session, error)
	EvaluateChannel(ctx context.Context, channelID string) (*interview.EvaluationResult, error)
	SetResume(ctx context.Context, channelID, resume string) (*models.Session, error)
	Transcript(ctx context.Context, channelID string) (*models.Session, string, error)
	Status(ctx context.Context, channelID string) (*interview.SessionStatus, error)
	ActiveStatuses(ctx context.Context) ([]interview.SessionStatus, error)
	ActiveSession(channelID string) (*models.Session, error)
}

// User-visible rejections.
const (
	msgSessionActive   = "An active interview already exists in this channel. End it first with `%s end`."
	msgNoActiveSession = "No active interview in this channel."
	msgNoSession       = "No interview session found in this channel."
	msgSessionEnded    = "This interview has already ended."
)

// CommandHandler executes "!iv" commands against the interview controller.
type CommandHandler struct {
	iv            Interviewer
	adapter       Adapter
	prefix        string
	createThreads bool
	log           *zap.Logger
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	Interviewer   Interviewer
	Adapter       Adapter
	Prefix        string // defaults to DefaultCommandPrefix
	CreateThreads bool   // open a dedicated thread per interview when the adapter supports it
	Logger        *zap.Logger
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.Interviewer == nil {
		return nil, fmt.Errorf("chat: command handler: interviewer is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("chat: command handler: adapter is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultCommandPrefix
	}
	return &CommandHandler{
		iv:            opts.Interviewer,
		adapter:       opts.Adapter,
		prefix:        prefix,
		createThreads: opts.CreateThreads,
		log:           logger.OrNop(opts.Logger),
	}, nil
}

// IsCommand reports whether text starts with the command prefix.
func (ch *CommandHandler) IsCommand(text string) bool {
	return strings.HasPrefix(text, ch.prefix+" ") || text == ch.prefix
}

// Execute runs one command and returns the messages to send, in order.
func (ch *CommandHandler) Execute(ctx context.Context, msg InboundMessage, text string) []OutboundMessage {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), ch.prefix))
	args := strings.Fields(rest)
	if len(args) == 0 {
		return []OutboundMessage{reply(msg, ch.helpText())}
	}

	switch strings.ToLower(args[0]) {
	case "start":
		return ch.cmdStart(ctx, msg, args[1:])
	case "resume":
		return ch.cmdResume(ctx, msg, strings.TrimSpace(rest[len(args[0]):]))
	case "end":
		return ch.cmdEnd(ctx, msg)
	case "evaluate":
		return ch.cmdEvaluate(ctx, msg)
	case "transcript":
		return ch.cmdTranscript(ctx, msg)
	case "status":
		return ch.cmdStatus(ctx, msg, args[1:])
	case "help":
		return []OutboundMessage{reply(msg, ch.helpText())}
	default:
		return []OutboundMessage{reply(msg, fmt.Sprintf("Unknown command: `%s`\n\n%s", args[0], ch.helpText()))}
	}
}

func (ch *CommandHandler) cmdStart(ctx context.Context, msg InboundMessage, args []string) []OutboundMessage {
	var candidateID, profile string
	userID, _ := firstMention(args)
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "profile="):
			profile = strings.TrimPrefix(a, "profile=")
		case mentionRe.MatchString(a):
		case candidateID == "":
			candidateID = a
		}
	}
	if candidateID == "" {
		return []OutboundMessage{reply(msg, fmt.Sprintf("Usage: `%s start <candidate_id> [@candidate] [profile=<name>]`", ch.prefix))}
	}

	loc := msg.Location()
	if _, err := ch.iv.ActiveSession(loc); err == nil {
		return []OutboundMessage{reject(msg, fmt.Sprintf(msgSessionActive, ch.prefix))}
	} else if !errors.Is(err, interview.ErrNoActiveSession) {
		ch.log.Error("chat: start: active session lookup", zap.Error(err), zap.String(logger.FieldChannel, loc))
		return []OutboundMessage{reply(msg, fmt.Sprintf("Could not start interview: %v", err))}
	}

	wantThread := ch.createThreads && msg.ThreadID == ""
	threadID := ""
	if wantThread {
		if ts, ok := ch.adapter.(ThreadStarter); ok {
			id, err := ts.StartThread(ctx, msg.ChannelID, threadName(candidateID))
			if err != nil {
				ch.log.Warn("chat: thread creation failed; interviewing in channel",
					zap.Error(err), zap.String(logger.FieldChannel, msg.ChannelID))
			} else {
				threadID = id
			}
		}
	}

	req := interview.StartRequest{CandidateID: candidateID, ChannelID: loc, Profile: profile}
	if threadID != "" {
		req.ChannelID = threadID
		req.ParentChannelID = msg.ChannelID
	}
	res, err := ch.iv.Start(ctx, req)
	switch {
	case errors.Is(err, interview.ErrSessionActive):
		return []OutboundMessage{reject(msg, fmt.Sprintf(msgSessionActive, ch.prefix))}
	case errors.Is(err, interview.ErrUnknownProfile):
		return []OutboundMessage{reject(msg, fmt.Sprintf("Unknown profile `%s`.", profile))}
	case err != nil:
		ch.log.Error("chat: start interview", zap.Error(err), zap.String(logger.FieldChannel, loc))
		return []OutboundMessage{reply(msg, fmt.Sprintf("Could not start interview: %v", err))}
	}

	candidate := res.Session.CandidateID
	if threadID == "" {
		text := fmt.Sprintf("Interview started for **%s**", candidate)
		if wantThread {
			text += " (thread creation unavailable)"
		}
		text += "."
		if userID != "" {
			text += fmt.Sprintf(" Please interview with %s in this channel.", mention(userID))
		}
		text += "\n\n**Q1:** " + res.Opening
		return []OutboundMessage{reply(msg, text)}
	}

	invited := ""
	if userID != "" {
		if inv, ok := ch.adapter.(MemberInviter); ok {
			if err := inv.InviteMember(ctx, threadID, userID); err != nil {
				ch.log.Warn("chat: invite to thread failed", zap.Error(err), zap.String("user_id", userID))
				invited = fmt.Sprintf(" Could not auto-invite %s; add them manually from thread members.", mention(userID))
			} else {
				invited = fmt.Sprintf(" Invited %s to the thread.", mention(userID))
			}
		}
	}

	kickoff := fmt.Sprintf("Interview started for **%s**.", candidate)
	if userID != "" {
		kickoff += " " + mention(userID)
	}
	kickoff += "\n\n**Q1:** " + res.Opening

	return []OutboundMessage{
		{ChannelID: msg.ChannelID, ThreadID: threadID, Text: kickoff},
		reply(msg, fmt.Sprintf("Created thread `%s` for **%s**.%s Continue the interview there.",
			threadName(candidate), candidate, invited)),
	}
}

func (ch *CommandHandler) cmdResume(ctx context.Context, msg InboundMessage, resume string) []OutboundMessage {
	if resume == "" {
		return []OutboundMessage{reply(msg, fmt.Sprintf("Usage: `%s resume <resume text>`", ch.prefix))}
	}
	sess, err := ch.iv.SetResume(ctx, msg.Location(), resume)
	if err != nil {
		return ch.failure(msg, "save resume", err)
	}
	return []OutboundMessage{reply(msg, fmt.Sprintf("Resume saved for **%s** (session #%d).", sess.CandidateID, sess.ID))}
}

func (ch *CommandHandler) cmdEnd(ctx context.Context, msg InboundMessage) []OutboundMessage {
	sess, err := ch.iv.End(ctx, msg.Location())
	if err != nil {
		return ch.failure(msg, "end interview", err)
	}
	return []OutboundMessage{reply(msg, fmt.Sprintf("Interview ended (session #%d). Run `%s evaluate` for scoring.", sess.ID, ch.prefix))}
}

func (ch *CommandHandler) cmdEvaluate(ctx context.Context, msg InboundMessage) []OutboundMessage {
	res, err := ch.iv.EvaluateChannel(ctx, msg.Location())
	if err != nil {
		var pe *interview.ParseError
		switch {
		case errors.Is(err, interview.ErrNoSession):
			return []OutboundMessage{reject(msg, msgNoSession)}
		case errors.As(err, &pe):
			ch.log.Warn("chat: evaluation output rejected", zap.Error(err))
			return []OutboundMessage{reply(msg, fmt.Sprintf(
				"Evaluation failed: the model output was not a valid evaluation (%v). Run `%s evaluate` to retry.",
				pe.Err, ch.prefix))}
		default:
			ch.log.Error("chat: evaluation failed", zap.Error(err))
			return []OutboundMessage{reply(msg, fmt.Sprintf("Evaluation failed: %v. Run `%s evaluate` to retry.", err, ch.prefix))}
		}
	}

	full := res.Summary + "\n\n```json\n" + res.JSON + "\n```"
	if len(full) <= maxMessageLen {
		return []OutboundMessage{reply(msg, full)}
	}
	out := []OutboundMessage{reply(msg, res.Summary)}
	fence := len("```json\n\n```")
	for _, chunk := range chunkMessage(res.JSON, maxMessageLen-fence) {
		out = append(out, reply(msg, "```json\n"+chunk+"\n```"))
	}
	return out
}

func (ch *CommandHandler) cmdTranscript(ctx context.Context, msg InboundMessage) []OutboundMessage {
	sess, text, err := ch.iv.Transcript(ctx, msg.Location())
	if err != nil {
		return ch.failure(msg, "export transcript", err)
	}
	text = truncate(text, maxTranscriptLen)
	return []OutboundMessage{reply(msg, fmt.Sprintf("Transcript (session #%d):\n```\n%s\n```", sess.ID, text))}
}

func (ch *CommandHandler) cmdStatus(ctx context.Context, msg InboundMessage, args []string) []OutboundMessage {
	if len(args) > 0 && args[0] == "all" {
		statuses, err := ch.iv.ActiveStatuses(ctx)
		if err != nil {
			return ch.failure(msg, "status", err)
		}
		if len(statuses) == 0 {
			return []OutboundMessage{reply(msg, "No active interviews.")}
		}
		lines := make([]string, 0, len(statuses))
		for _, st := range statuses {
			lines = append(lines, formatStatus(st))
		}
		return []OutboundMessage{reply(msg, strings.Join(lines, "\n"))}
	}

	st, err := ch.iv.Status(ctx, msg.Location())
	if err != nil {
		return ch.failure(msg, "status", err)
	}
	return []OutboundMessage{reply(msg, formatStatus(*st))}
}

// failure maps controller errors to replies. Known rejections are sent
// quietly to the requester.
func (ch *CommandHandler) failure(msg InboundMessage, op string, err error) []OutboundMessage {
	switch {
	case errors.Is(err, interview.ErrNoActiveSession):
		return []OutboundMessage{reject(msg, msgNoActiveSession)}
	case errors.Is(err, interview.ErrNoSession):
		return []OutboundMessage{reject(msg, msgNoSession)}
	case errors.Is(err, interview.ErrSessionEnded):
		return []OutboundMessage{reject(msg, msgSessionEnded)}
	}
	ch.log.Error("chat: command failed", zap.String("op", op), zap.Error(err),
		zap.String(logger.FieldChannel, msg.Location()))
	return []OutboundMessage{reply(msg, fmt.Sprintf("Could not %s: %v", op, err))}
}

func (ch *CommandHandler) helpText() string {
	p := ch.prefix
	return "**Interviewer commands:**\n" +
		"`" + p + " start <candidate_id> [@candidate] [profile=<name>]` — Start an adaptive interview\n" +
		"`" + p + " resume <text>` — Attach resume text to the active interview\n" +
		"`" + p + " end` — End the active interview\n" +
		"`" + p + " evaluate` — Score the current or last interview\n" +
		"`" + p + " transcript` — Export the current or last transcript\n" +
		"`" + p + " status [all]` — Show interview progress\n" +
		"`" + p + " help` — Show this help"
}

// reply answers in the conversation msg came from.
func reply(msg InboundMessage, text string) OutboundMessage {
	return OutboundMessage{ChannelID: msg.ChannelID, ThreadID: msg.ThreadID, Text: text}
}

// reject answers only the requester where the platform supports it.
func reject(msg InboundMessage, text string) OutboundMessage {
	out := reply(msg, text)
	out.Ephemeral = true
	out.UserID = msg.UserID
	return out
}
