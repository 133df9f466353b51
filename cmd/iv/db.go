package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/interviewer/internal/config"
	"github.com/zulandar/interviewer/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the interviewer tables",
		Long:  "Connects to the configured database and migrates the session, transcript, state and evaluation tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to interviewer config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)
	fmt.Fprintf(out, "Connected to %s database %s\n", cfg.Database.Driver, describeDB(cfg.Database))

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func describeDB(c config.DatabaseConfig) string {
	if c.Driver == "mysql" {
		return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Name)
	}
	return c.Path
}
