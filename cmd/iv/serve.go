package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/interviewer/internal/chat"
	"github.com/zulandar/interviewer/internal/chat/console"
	"github.com/zulandar/interviewer/internal/chat/discord"
	slackadapter "github.com/zulandar/interviewer/internal/chat/slack"
	"github.com/zulandar/interviewer/internal/config"
	"github.com/zulandar/interviewer/internal/dashboard"
	"github.com/zulandar/interviewer/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		lf         logFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat daemon",
		Long: `Connects to the configured chat platform and runs interviews until interrupted.
The digest scheduler and the dashboard API start too when enabled in the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, "", lf)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to interviewer config file")
	lf.register(cmd)
	return cmd
}

func newConsoleCmd() *cobra.Command {
	var (
		configPath string
		lf         logFlags
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run an interview in the terminal",
		Long: `Runs the chat daemon over standard input and output instead of a chat platform.
Type commands such as "!iv start ETHANLAM" and answers as plain lines.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, "console", lf)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to interviewer config file")
	lf.register(cmd)
	return cmd
}

// runServe runs the daemon, and the dashboard when enabled, until the
// process is signalled or the adapter's input ends. A non-empty platform
// overrides the configured one.
func runServe(cmd *cobra.Command, configPath, platform string, lf logFlags) error {
	log, err := logger.New(lf.json, lf.debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	a, err := loadApp(configPath, log)
	if err != nil {
		return err
	}
	defer a.Close()
	if platform != "" {
		a.cfg.Chat.Platform = platform
	}
	if a.cfg.Chat.Platform == "" {
		return fmt.Errorf("no chat platform configured in %s (add chat.platform)", configPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iv, err := a.newController(ctx)
	if err != nil {
		return err
	}
	adapter, err := createAdapter(a.cfg, log, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	daemon, err := chat.NewDaemon(chat.DaemonOpts{
		Adapter:     adapter,
		Interviewer: iv,
		Chat:        a.cfg.Chat,
		Digest:      a.cfg.Digest,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		// The dashboard stops with the daemon.
		defer cancel()
		return daemon.Run(runCtx)
	})
	if a.cfg.Dashboard.Enabled {
		g.Go(func() error {
			return dashboard.Start(runCtx, dashboard.StartOpts{
				Sessions: a.store,
				Statuses: iv,
				Port:     a.cfg.Dashboard.Port,
				Logger:   log,
			})
		})
	}

	log.Info("interviewer started",
		zap.String("platform", a.cfg.Chat.Platform),
		zap.Bool("dashboard", a.cfg.Dashboard.Enabled),
		zap.Bool("digest", a.cfg.Digest.Enabled),
	)
	return g.Wait()
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config, log *zap.Logger, in io.Reader, out io.Writer) (chat.Adapter, error) {
	switch cfg.Chat.Platform {
	case "discord":
		token, err := config.Secret("discord token", cfg.Chat.Discord.TokenEnv, "")
		if err != nil {
			return nil, err
		}
		return discord.New(discord.AdapterOpts{
			BotToken:  token,
			ChannelID: cfg.Chat.Channel,
			Logger:    log,
		})
	case "slack":
		appToken, err := config.Secret("slack app token", cfg.Chat.Slack.AppTokenEnv, "")
		if err != nil {
			return nil, err
		}
		botToken, err := config.Secret("slack bot token", cfg.Chat.Slack.BotTokenEnv, "")
		if err != nil {
			return nil, err
		}
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  appToken,
			BotToken:  botToken,
			ChannelID: cfg.Chat.Channel,
			Logger:    log,
		})
	case "console":
		return console.New(console.AdapterOpts{In: in, Out: out, ChannelID: cfg.Chat.Channel}), nil
	default:
		return nil, fmt.Errorf("unsupported chat platform %q", cfg.Chat.Platform)
	}
}
