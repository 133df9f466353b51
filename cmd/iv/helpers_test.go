package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zulandar/interviewer/internal/config"
	"github.com/zulandar/interviewer/internal/db"
	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/models"
	"github.com/zulandar/interviewer/internal/store"
	"go.uber.org/zap"
)

const testEvaluation = `{
  "candidate_id": "ETHANLAM",
  "scores": {"communication_clarity": 4, "motivation_purpose": 5, "self_awareness_reflection": 3,
             "academic_program_fit": 4, "leadership_initiative": 4, "integrity_professionalism": 5},
  "evidence": [{"category": "motivation_purpose", "quote": "I want to build tools for rural clinics."}],
  "strengths": ["clear goals"],
  "concerns": [],
  "recommendation": "Admit",
  "confidence": "medium"
}`

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

// writeTestConfig writes a sqlite config with one profile into a temp dir
// and returns its path. extra is appended to the YAML.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	if err := writeTestFile(filepath.Join(dir, "skill.md"), "Ask about motivation and fit."); err != nil {
		t.Fatal(err)
	}
	if err := writeTestFile(filepath.Join(dir, "rubric.md"), "Score each category from 1 to 5."); err != nil {
		t.Fatal(err)
	}
	cfg := "database:\n" +
		"  driver: sqlite\n" +
		"  path: " + filepath.Join(dir, "iv.db") + "\n" +
		"profiles:\n" +
		"  default:\n" +
		"    skill_path: " + filepath.Join(dir, "skill.md") + "\n" +
		"    rubric_path: " + filepath.Join(dir, "rubric.md") + "\n" +
		extra
	path := filepath.Join(dir, "interviewer.yaml")
	if err := writeTestFile(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

// seedSession creates a session directly in the config's database.
func seedSession(t *testing.T, configPath, candidate, channel string) *models.Session {
	t.Helper()
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	gormDB, err := db.Connect(cfg.Database, "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer closeDB(gormDB)
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := store.New(gormDB)
	if err != nil {
		t.Fatal(err)
	}
	sess := &models.Session{CandidateID: candidate, ChannelID: channel, Profile: "default", StartedAt: time.Now()}
	if err := st.CreateSession(sess, interview.DefaultCoverage(), interview.OpeningQuestion); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

type backendFunc func(ctx context.Context, prompt string) (string, error)

func (f backendFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// stubBackend replaces the Gemini backend for the duration of the test.
func stubBackend(t *testing.T, f backendFunc) {
	t.Helper()
	orig := newBackend
	newBackend = func(ctx context.Context, cfg *config.Config, log *zap.Logger) (interview.Backend, error) {
		return f, nil
	}
	t.Cleanup(func() { newBackend = orig })
}

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(bytes.NewBufferString(in))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

