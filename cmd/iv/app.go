package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/interviewer/internal/config"
	"github.com/zulandar/interviewer/internal/db"
	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/llm"
	"github.com/zulandar/interviewer/internal/logger"
	"github.com/zulandar/interviewer/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// readyMessage names the chat commands that close and score an interview.
func readyMessage(prefix string) string {
	return fmt.Sprintf("Thanks, we now have enough evidence. Please run `%[1]s end`, then `%[1]s evaluate`.", prefix)
}

// logFlags are the logging flags shared by long-running commands.
type logFlags struct {
	json  bool
	debug bool
}

func (f *logFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.json, "json-logs", false, "emit JSON logs")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")
}

// app bundles the pieces every command builds from the config file.
type app struct {
	cfg   *config.Config
	db    *gorm.DB
	store *store.Store
	log   *zap.Logger
}

// loadApp loads the config, connects to the database and migrates it.
func loadApp(configPath string, log *zap.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := connectDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		closeDB(gormDB)
		return nil, err
	}
	st, err := store.New(gormDB)
	if err != nil {
		closeDB(gormDB)
		return nil, err
	}
	return &app{cfg: cfg, db: gormDB, store: st, log: logger.OrNop(log)}, nil
}

func (a *app) Close() {
	closeDB(a.db)
}

func connectDB(cfg *config.Config) (*gorm.DB, error) {
	var password string
	if cfg.Database.Driver == "mysql" && cfg.Database.PasswordEnv != "" {
		pw, err := config.Secret("database password", cfg.Database.PasswordEnv, "")
		if err != nil {
			return nil, err
		}
		password = pw
	}
	gormDB, err := db.Connect(cfg.Database, password)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return gormDB, nil
}

func closeDB(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
}

// newBackend builds the generative backend. Tests override it.
var newBackend = func(ctx context.Context, cfg *config.Config, log *zap.Logger) (interview.Backend, error) {
	apiKey, err := config.Secret("gemini api key", cfg.Gemini.APIKeyEnv, cfg.Gemini.APIKeyFile)
	if err != nil {
		return nil, err
	}
	return llm.NewGenerator(ctx, llm.GeneratorOpts{
		APIKey:      apiKey,
		Model:       cfg.Gemini.Model,
		Temperature: cfg.Gemini.Temperature,
		Logger:      log,
	})
}

// newController builds the interview controller for a.
func (a *app) newController(ctx context.Context) (*interview.Controller, error) {
	profiles, err := a.cfg.LoadProfiles()
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(ctx, a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	return interview.NewController(interview.ControllerOpts{
		Store:        a.store,
		Backend:      backend,
		Profiles:     profiles,
		Settings:     a.cfg.Interview,
		ReadyMessage: readyMessage(a.cfg.Chat.CommandPrefix),
		Logger:       a.log,
	})
}
