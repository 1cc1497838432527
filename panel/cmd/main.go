package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Afeter8/Fed.80/panel/internal/config"
	"github.com/Afeter8/Fed.80/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}

	setupLogger(cfg)
	os.Exit(run(cfg, os.Args[1:]))
}

func setupLogger(cfg *config.Config) {
	logger.SetLevel(cfg.LogLevel)
	logger.SetJSON(cfg.LogFormat == "json")
	logger.SetOutput(os.Stderr)

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.Log.Warnf("Failed to open log file %s: %v", cfg.LogFile, err)
			return
		}
		logger.SetOutput(f)
	}
}

func run(cfg *config.Config, args []string) int {
	cmd, rest, ok := lookup(args)
	if !ok {
		fmt.Fprint(os.Stderr, usage)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Log.Errorf("Failed to start panel: %v", err)
		return exitError
	}
	defer a.Close()

	return cmd(ctx, a, rest, os.Stdout)
}
