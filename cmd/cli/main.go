// ragchat is a terminal client for a retrieval-augmented question-answering
// backend. The conversation is kept across restarts; when Supabase is
// configured the user signs in and every question carries their token.
//
// Usage:
//
//	export RAGCHAT_BACKEND_URL="http://localhost:8000"
//	export SUPABASE_URL="https://<project>.supabase.co" SUPABASE_ANON_KEY="..."
//	go run ./cmd/cli
//
// Commands:
//
//	/exit   - Exit the program
//	/logout - Sign out
//	/login  - Show the sign-in screen
//	<message> - Ask a question
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nstogner/ragchat/pkg/ask"
	"github.com/nstogner/ragchat/pkg/auth"
	"github.com/nstogner/ragchat/pkg/auth/supabase"
	"github.com/nstogner/ragchat/pkg/config"
	"github.com/nstogner/ragchat/pkg/logging"
	"github.com/nstogner/ragchat/pkg/runner"
	"github.com/nstogner/ragchat/pkg/store"
	"github.com/nstogner/ragchat/pkg/store/jsonl"
	"github.com/nstogner/ragchat/pkg/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string

	cmd := &cobra.Command{
		Use:          "ragchat",
		Short:        "Chat with a retrieval-augmented question-answering backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Variables from .env must be visible before viper reads the environment.
			_ = godotenv.Load()
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ragchat.yaml)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("backend-url", "http://localhost:8000", "question-answering backend base URL")
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("backend_url", flags.Lookup("backend-url"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := logging.SetupFile(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer logFile.Close()

	slot, closeSlot := openSlot(cfg)
	defer closeSlot()

	conv := store.NewConversation(slot, store.ConversationKey)
	conv.Restore(ctx)

	provider, closeProvider := selectProvider(cfg, slot)
	defer closeProvider()

	mgr := auth.NewManager(provider)
	sessions := make(chan auth.Session, 1)
	dispose := mgr.Subscribe(func(s auth.Session) {
		// Keep only the newest session; the UI re-reads it anyway.
		select {
		case <-sessions:
		default:
		}
		sessions <- s
	})
	defer dispose()

	initCtx, cancelInit := context.WithTimeout(ctx, 15*time.Second)
	mgr.Initialize(initCtx)
	cancelInit()

	client := ask.NewClient(cfg.BackendURL)
	r := runner.New(mgr, conv, client, runner.WithTimeout(cfg.RequestTimeout))

	m := newModel(ctx, modelDeps{
		conv:        conv,
		runner:      r,
		auth:        mgr,
		authEnabled: cfg.Supabase.Enabled(),
		sessions:    sessions,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		slog.Error("TUI exited with error", "error", err)
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

// openSlot opens the configured durable slot. Storage problems are never
// fatal: the client falls back to an in-memory slot.
func openSlot(cfg *config.Config) (store.Slot, func()) {
	noop := func() {}

	switch cfg.StateBackend {
	case config.BackendMemory:
		return store.NewMemorySlot(), noop
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			slog.Warn("Failed to create state directory, using memory", "dir", cfg.StateDir, "error", err)
			return store.NewMemorySlot(), noop
		}
		s, err := sqlite.New(filepath.Join(cfg.StateDir, "ragchat.db"))
		if err != nil {
			slog.Warn("Failed to open sqlite slot, using memory", "error", err)
			return store.NewMemorySlot(), noop
		}
		return s, func() { s.Close() }
	default:
		s, err := jsonl.NewSlot(cfg.StateDir)
		if err != nil {
			slog.Warn("Failed to open jsonl slot, using memory", "error", err)
			return store.NewMemorySlot(), noop
		}
		return s, noop
	}
}

// selectProvider picks Supabase when it is configured and the guest stub
// otherwise.
func selectProvider(cfg *config.Config, slot store.Slot) (auth.Provider, func()) {
	if !cfg.Supabase.Enabled() {
		return auth.NewGuestProvider(), func() {}
	}
	slog.Info("Using Supabase identity provider", "url", cfg.Supabase.URL)
	p := supabase.New(cfg.Supabase.URL, cfg.Supabase.AnonKey, slot)
	return p, func() { p.Close() }
}
