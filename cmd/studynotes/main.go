package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studynotes/internal/config"
	"github.com/conorfennell/studynotes/internal/generator"
	"github.com/conorfennell/studynotes/internal/importer"
	"github.com/conorfennell/studynotes/internal/storage"
	"github.com/conorfennell/studynotes/internal/study"
)

// app is built once flags are parsed and shared by every subcommand.
type app struct {
	cfg    config.Config
	db     *storage.DB
	svc    *study.Service
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := newRootCmd(a)
	err := root.ExecuteContext(ctx)
	if a.db != nil {
		a.db.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var configPath string
	defaults := config.Default()

	root := &cobra.Command{
		Use:           "studynotes",
		Short:         "Study markdown notes with SM-2 spaced repetition",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(configPath, cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML config file")
	pf.String("db", defaults.DB.Path, "Path to the SQLite database file")
	pf.String("user", defaults.User, "User to act as")
	pf.Int("deck-limit", defaults.Study.DeckLimit, "Maximum number of cards in one study run")
	pf.Bool("finalize-on-exit", defaults.Study.FinalizeOnExit, "Record a study run that is left early")
	pf.String("repos-dir", defaults.Sources.ReposDir, "Directory for checkouts of git sources")
	pf.String("ai-provider", defaults.AI.Provider, "Generator backend: placeholder or openai")
	pf.String("ai-model", defaults.AI.Model, "Model name for the openai provider")
	pf.String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
	pf.String("log-format", defaults.Log.Format, "Log format: text or json")

	root.AddCommand(
		newServeCmd(a),
		newSyncCmd(a),
		newSourceCmd(a),
		newNoteCmd(a),
		newGenerateCmd(a),
		newSummarizeCmd(a),
		newStudyCmd(a),
		newStatsCmd(a),
		newSessionsCmd(a),
	)
	return root
}

// setup loads configuration and opens the database.
func (a *app) setup(configPath string, cmd *cobra.Command) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Log)
	slog.SetDefault(a.logger)

	if dir := filepath.Dir(cfg.DB.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	a.db = db
	a.logger.Debug("Database opened successfully", "path", cfg.DB.Path)

	imp := importer.New(db, cfg.Sources.ReposDir, nil, a.logger)
	imp.SetProgress(cmd.ErrOrStderr())
	a.svc = study.New(db, newGenerator(cfg.AI, a.logger), imp, cfg.Study, nil, a.logger)
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newGenerator(cfg config.AIConfig, logger *slog.Logger) generator.Generator {
	if cfg.Provider == config.ProviderOpenAI {
		return generator.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, logger)
	}
	return generator.Placeholder{}
}
