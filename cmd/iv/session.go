package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/models"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"s"},
		Short:   "Inspect and score interview sessions",
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionTranscriptCmd())
	cmd.AddCommand(newSessionEvaluateCmd())
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var (
		configPath string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List interview sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionList(cmd, configPath, status)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to interviewer config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, ended)")
	return cmd
}

func runSessionList(cmd *cobra.Command, configPath, status string) error {
	switch status {
	case "", models.StatusActive, models.StatusEnded:
	default:
		return fmt.Errorf("invalid status %q (active, ended)", status)
	}

	a, err := loadApp(configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.store.ListSessions(status)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCANDIDATE\tSTATUS\tPROFILE\tCHANNEL\tSTARTED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.CandidateID, s.Status, s.Profile, s.ChannelID, s.StartedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func newSessionTranscriptCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionTranscript(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to interviewer config file")
	return cmd
}

func runSessionTranscript(cmd *cobra.Command, configPath, rawID string) error {
	id, err := parseSessionID(rawID)
	if err != nil {
		return err
	}

	a, err := loadApp(configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.store.GetSession(id)
	if err != nil {
		return err
	}
	msgs, err := a.store.GetTranscript(sess.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session #%d: %s (%s)\n\n", sess.ID, sess.CandidateID, sess.Status)
	fmt.Fprintln(out, interview.RenderTranscript(msgs))
	return nil
}

func newSessionEvaluateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "evaluate <session-id>",
		Short: "Score a session against its rubric",
		Long:  "Runs the evaluation for the session and stores the result. Earlier evaluations are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionEvaluate(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to interviewer config file")
	return cmd
}

func runSessionEvaluate(cmd *cobra.Command, configPath, rawID string) error {
	id, err := parseSessionID(rawID)
	if err != nil {
		return err
	}

	a, err := loadApp(configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	iv, err := a.newController(cmd.Context())
	if err != nil {
		return err
	}
	res, err := iv.Evaluate(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("evaluate session %d: %w", id, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.ReplaceAll(res.Summary, "**", ""))
	fmt.Fprintln(out)
	fmt.Fprintln(out, res.JSON)
	return nil
}

func parseSessionID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid session id %q", raw)
	}
	return uint(id), nil
}
