package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/learnmate-backend/internal/app"
	"github.com/yungbote/learnmate-backend/internal/config"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "learnmate",
		Short:         "Personalized curriculum generation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches . and ./config)")

	root.AddCommand(
		serveCMD(&cfgPath),
		workerCMD(&cfgPath),
		generateCMD(&cfgPath),
		generateAllCMD(&cfgPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger and wires the application.
func bootstrap(ctx context.Context, cfgPath string, opts app.Options) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewWithLevel(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, log, cfg, opts)
	if err != nil {
		log.Error("app init failed", "error", err)
		log.Sync()
		return nil, err
	}
	return a, nil
}
