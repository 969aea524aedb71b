package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/cmdbot/core/config"
	"github.com/m3rciful/cmdbot/core/logger"

	"log/slog"
)

// App is a bootstrapped bot ready to serve.
type App interface {
	Run(ctx context.Context) error
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(cfg *coreconfig.Config) (App, error)

	ShutdownLogger func() error
	// Signals cancel the run; nil uses SIGINT and SIGTERM.
	Signals []os.Signal
}

// Run loads configuration, bootstraps the app, and serves until a signal arrives.
func Run(opts Options) error {
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}
	load := opts.LoadConfig
	if load == nil {
		load = coreconfig.Load
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	startedAt := time.Now()
	application, err := opts.Bootstrap(cfg)

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	appLog := logger.L.With("component", "app")
	appLog.Info("app ready",
		slog.String("event", "ready"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)
	err = application.Run(ctx)
	appLog.Info("shutting down...",
		slog.String("event", "shutdown"),
	)
	return err
}
