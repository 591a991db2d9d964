// askd is a local stand-in for the question-answering backend. It serves
// POST /ask by forwarding the question and conversation to Gemini, or echoes
// the question back when no API key is configured.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	go run ./cmd/askd --addr :8000
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nstogner/ragchat/pkg/config"
	"github.com/nstogner/ragchat/pkg/logging"
	"github.com/nstogner/ragchat/pkg/models"
	"github.com/nstogner/ragchat/pkg/models/gemini"
	"github.com/nstogner/ragchat/pkg/server"
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
	var listModels bool

	cmd := &cobra.Command{
		Use:          "askd",
		Short:        "Reference /ask backend for ragchat",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				slog.Debug("No .env file loaded", "error", err)
			}
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logging.SetupStderr(logging.ParseLevel(cfg.LogLevel))
			return run(cmd.Context(), cfg, listModels)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ragchat.yaml)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("addr", ":8000", "listen address")
	flags.String("model", "models/gemini-2.0-flash", "Gemini model name")
	flags.Bool("require-auth", false, "reject requests without a bearer token")
	flags.BoolVar(&listModels, "list-models", false, "print available Gemini models and exit")
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("askd.addr", flags.Lookup("addr"))
	_ = v.BindPFlag("askd.model", flags.Lookup("model"))
	_ = v.BindPFlag("askd.require_auth", flags.Lookup("require-auth"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config, listModels bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var model models.AnswerModel = models.Echo{}
	if cfg.Askd.APIKey != "" {
		gm, err := gemini.New(ctx, cfg.Askd.APIKey, cfg.Askd.Model)
		if err != nil {
			return fmt.Errorf("initialize Gemini model: %w", err)
		}
		defer gm.Close()

		if listModels {
			names, err := gm.List(ctx)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		}
		model = gm
		slog.Info("Using Gemini model", "model", cfg.Askd.Model)
	} else {
		if listModels {
			return fmt.Errorf("--list-models needs GEMINI_API_KEY")
		}
		slog.Warn("GEMINI_API_KEY not set, answering with the echo model")
	}

	srv := server.New(model, server.RequireAuth(cfg.Askd.RequireAuth))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Askd.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
