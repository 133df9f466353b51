package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/interviewer/internal/config"
	"github.com/zulandar/interviewer/internal/logger"
	"go.uber.org/zap"
)

// Daemon is the chat bridge process. It connects to a chat platform via an
// Adapter, pumps inbound messages through the Router, and posts the digest
// on its cron schedule.
type Daemon struct {
	adapter Adapter
	iv      Interviewer
	chat    config.ChatConfig
	digest  config.DigestConfig
	log     *zap.Logger
	now     func() time.Time
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter     Adapter
	Interviewer Interviewer
	Chat        config.ChatConfig
	Digest      config.DigestConfig
	Logger      *zap.Logger
	Now         func() time.Time // defaults to time.Now
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("chat: adapter is required")
	}
	if opts.Interviewer == nil {
		return nil, fmt.Errorf("chat: interviewer is required")
	}
	if opts.Digest.Enabled {
		if err := ValidateCron(opts.Digest.Cron); err != nil {
			return nil, fmt.Errorf("chat: digest cron %q: %w", opts.Digest.Cron, err)
		}
		if opts.Digest.Channel == "" {
			return nil, fmt.Errorf("chat: digest channel is required")
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Daemon{
		adapter: opts.Adapter,
		iv:      opts.Interviewer,
		chat:    opts.Chat,
		digest:  opts.Digest,
		log:     logger.OrNop(opts.Logger),
		now:     now,
	}, nil
}

// Run connects the adapter, builds the router and dispatcher, and blocks
// until the context is cancelled or the adapter closes its inbound channel.
// In-flight turns finish before the adapter is closed.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("chat: connecting", zap.String("platform", d.chat.Platform))
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("chat: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	cmdHandler, err := NewCommandHandler(CommandHandlerOpts{
		Interviewer:   d.iv,
		Adapter:       d.adapter,
		Prefix:        d.chat.CommandPrefix,
		CreateThreads: d.chat.CreateThreads,
		Logger:        d.log,
	})
	if err != nil {
		d.closeAdapter()
		return fmt.Errorf("chat: build command handler: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dispatcher := NewDispatcher(runCtx, DispatcherOpts{Logger: d.log})

	router, err := NewRouter(RouterOpts{
		Interviewer: d.iv,
		CmdHandler:  cmdHandler,
		Dispatcher:  dispatcher,
		Adapter:     d.adapter,
		BotUserID:   botUserID,
		Logger:      d.log,
	})
	if err != nil {
		d.closeAdapter()
		return fmt.Errorf("chat: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(runCtx)
	if err != nil {
		d.closeAdapter()
		return fmt.Errorf("chat: listen: %w", err)
	}

	var bg sync.WaitGroup
	if d.digest.Enabled {
		bg.Add(1)
		go func() {
			defer bg.Done()
			d.runDigestScheduler(runCtx)
		}()
	}

	d.log.Info("chat: online", zap.String("bot_user_id", botUserID))
	if d.chat.Channel != "" {
		if err := d.adapter.Send(ctx, OutboundMessage{
			ChannelID: d.chat.Channel,
			Text:      "Interviewer online",
		}); err != nil {
			d.log.Warn("chat: send online message", zap.Error(err))
		}
	}

	defer func() {
		cancel()
		dispatcher.Wait()
		bg.Wait()
		d.closeAdapter()
		d.log.Info("chat: stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("chat: shutting down")
			return nil
		case msg, ok := <-inbound:
			if !ok {
				d.log.Info("chat: inbound channel closed; finishing queued work")
				if err := dispatcher.Drain(ctx); err != nil {
					d.log.Warn("chat: drain interrupted", zap.Error(err))
				}
				return nil
			}
			router.Handle(runCtx, msg)
		}
	}
}

// runDigestScheduler fires the digest on the configured cron schedule until
// ctx is done.
func (d *Daemon) runDigestScheduler(ctx context.Context) {
	next := nextCronDuration(d.digest.Cron, d.now())
	if next <= 0 {
		d.log.Warn("chat: digest disabled; cron has no next fire time", zap.String("cron", d.digest.Cron))
		return
	}
	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timerChan(timer):
			d.fireDigest(ctx)
			next = nextCronDuration(d.digest.Cron, d.now())
			if next <= 0 {
				return
			}
			timer.Reset(next)
		}
	}
}

// fireDigest builds and sends one digest. Nothing is sent when no
// interview is active.
func (d *Daemon) fireDigest(ctx context.Context) {
	statuses, err := d.iv.ActiveStatuses(ctx)
	if err != nil {
		d.log.Error("chat: digest", zap.Error(err))
		return
	}
	event := FormatDigest(statuses)
	if event == nil {
		return
	}
	if err := d.adapter.Send(ctx, OutboundMessage{
		ChannelID: d.digest.Channel,
		Text:      event.Title,
		Events:    []FormattedEvent{*event},
	}); err != nil {
		d.log.Error("chat: send digest", zap.Error(err))
	}
}

// timerChan returns the timer's channel, or nil if the timer is nil.
func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (d *Daemon) closeAdapter() {
	if err := d.adapter.Close(); err != nil {
		d.log.Warn("chat: close adapter", zap.Error(err))
	}
}
