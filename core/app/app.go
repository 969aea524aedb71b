// Package app wires configuration into the running bot: transport, dispatcher,
// domain services, built-in commands and background workers.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/cmdbot/core/bootstrap"
	"github.com/m3rciful/cmdbot/core/buildinfo"
	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/command"
	coreconfig "github.com/m3rciful/cmdbot/core/config"
	"github.com/m3rciful/cmdbot/core/console"
	"github.com/m3rciful/cmdbot/core/dispatch"
	"github.com/m3rciful/cmdbot/core/handlers"
	"github.com/m3rciful/cmdbot/core/health"
	"github.com/m3rciful/cmdbot/core/integrations"
	"github.com/m3rciful/cmdbot/core/logger"
	"github.com/m3rciful/cmdbot/core/ratelimit"
	"github.com/m3rciful/cmdbot/core/reminder"
	"github.com/m3rciful/cmdbot/core/telegram"
	"github.com/m3rciful/cmdbot/core/wallet"
	"github.com/m3rciful/cmdbot/core/wallet/khalti"
)

const schedulerStopTimeout = 5 * time.Second

// Options override the process-level collaborators; zero values use
// stdin, stdout and the real Telegram API.
type Options struct {
	In       io.Reader
	Out      io.Writer
	Location *time.Location
	Now      func() time.Time

	// Gateway replaces the Khalti client.
	Gateway wallet.Gateway
	// Integrations overrides the lookup API endpoints.
	Integrations *integrations.Config
	// Telegram is passed to telegram.New.
	Telegram telegram.Options
}

// App is the assembled bot.
type App struct {
	cfg      *coreconfig.Config
	in       io.Reader
	registry *command.Registry
	router   *dispatch.Dispatcher
	limiter  *ratelimit.Limiter

	scheduler *reminder.Scheduler
	wallet    *wallet.Service

	bot      *telegram.Bot
	terminal *console.Terminal
	modules  bootstrap.Modules
}

// Bootstrap runs the startup pipeline and assembles the App; it is the
// cmd.Options.Bootstrap hook of the binary.
func Bootstrap(cfg *coreconfig.Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	return New(cfg, Options{Location: res.Location})
}

// New assembles an App from cfg. The logger must already be initialised.
func New(cfg *coreconfig.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &App{cfg: cfg, in: opts.In}

	var out chat.Sender
	if cfg.Telegram.RunMode == coreconfig.RunModeConsole {
		a.terminal = console.NewTerminal(opts.Out)
		out = a.terminal
	} else {
		bot, err := telegram.New(cfg, opts.Telegram)
		if err != nil {
			return nil, err
		}
		a.bot = bot
		out = bot.Sender()
	}

	a.limiter = ratelimit.New(ratelimit.Options{
		Window: time.Duration(cfg.RateLimit.WindowMS) * time.Millisecond,
		Limit:  cfg.RateLimit.Limit,
		Now:    opts.Now,
	})
	a.registry = command.NewRegistry(command.DefaultPrefix)
	router, err := dispatch.New(dispatch.Options{
		Limiter:  a.limiter,
		Registry: a.registry,
		Admins:   cfg.Access.Admins,
		Timeout:  time.Duration(cfg.App.HandlerTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	a.router = router

	a.scheduler, err = reminder.New(reminder.Options{
		Sender:        out,
		NearThreshold: time.Duration(cfg.Reminders.NearThresholdMS) * time.Millisecond,
		Location:      opts.Location,
		Now:           opts.Now,
	})
	if err != nil {
		return nil, err
	}

	gateway := opts.Gateway
	if gateway == nil {
		gateway = khalti.New(khalti.Config{
			BaseURL:  cfg.Wallet.BaseURL,
			Token:    cfg.Wallet.Token,
			DeviceID: cfg.Wallet.DeviceID,
			Timeout:  time.Duration(cfg.Wallet.TimeoutSeconds) * time.Second,
		})
	}
	a.wallet, err = wallet.NewService(wallet.Options{
		Gateway:    gateway,
		Banks:      banks(cfg.Wallet),
		PendingTTL: time.Duration(cfg.Wallet.PendingTTLSeconds) * time.Second,
		MaxAmount:  decimal.NewFromInt(cfg.Wallet.MaxAmount),
		Now:        opts.Now,
	})
	if err != nil {
		return nil, err
	}

	lookupCfg := integrations.Config{
		OpenWeatherKey: cfg.Integrations.OpenWeatherKey,
		NewsAPIKey:     cfg.Integrations.NewsAPIKey,
		TranslateKey:   cfg.Integrations.TranslateKey,
		GiphyKey:       cfg.Integrations.GiphyKey,
		Timeout:        time.Duration(cfg.Integrations.TimeoutSeconds) * time.Second,
	}
	if opts.Integrations != nil {
		lookupCfg = *opts.Integrations
	}

	deps := handlers.Deps{
		Registry:  a.registry,
		IsAdmin:   router.IsAdmin,
		Reminders: a.scheduler,
		Wallet:    a.wallet,
		Lookups:   integrations.New(lookupCfg),
		FAQ:       cfg.FAQ,
		Location:  opts.Location,
		Now:       opts.Now,
		StartedAt: opts.Now(),
		Version:   buildinfo.Version,
	}

	a.modules = bootstrap.Modules{
		{Name: "commands", Commands: handlers.Descriptors(deps)},
		{Name: "ratelimit", Workers: []bootstrap.Worker{pruneLimiter(a.limiter, time.Duration(cfg.RateLimit.WindowMS)*time.Millisecond)}},
		{Name: "reminders", Workers: []bootstrap.Worker{stopScheduler(a.scheduler)}},
		{Name: "wallet", Workers: []bootstrap.Worker{walletJanitor(a.wallet, time.Duration(cfg.Wallet.PendingTTLSeconds)*time.Second)}},
	}
	if !cfg.Health.Disabled {
		a.modules = append(a.modules, a.healthModule())
	}

	if err := a.registry.RegisterAll(a.modules.Commands()...); err != nil {
		return nil, fmt.Errorf("app: register commands: %w", err)
	}
	logger.TWire.Info("commands registered",
		slog.String("event", "register.commands"),
		slog.Int("count", a.registry.Len()),
	)
	return a, nil
}

// Router exposes the dispatcher, mainly for tests and embedding.
func (a *App) Router() *dispatch.Dispatcher {
	return a.router
}

// Registry exposes the command registry.
func (a *App) Registry() *command.Registry {
	return a.registry
}

// Run serves the configured transport until ctx is done or the console input ends.
func (a *App) Run(ctx context.Context) error {
	return a.modules.Run(ctx, func(ctx context.Context) error {
		if a.terminal != nil {
			return console.Run(ctx, console.Options{
				In:       a.in,
				Terminal: a.terminal,
				SenderID: a.cfg.Console.SenderID,
				Prompt:   a.cfg.Console.Prompt,
				Router:   a.router,
			})
		}
		return a.bot.Run(ctx, telegram.RunOptions{
			Router:   a.router,
			Prefix:   a.registry.Prefix(),
			Commands: telegram.MenuCommands(a.registry.Prefix(), a.registry.List(true)),
		})
	})
}

func (a *App) stats() map[string]int {
	return map[string]int{
		"commands":             a.registry.Len(),
		"reminders":            a.scheduler.Len(),
		"pending_transactions": a.wallet.Len(),
	}
}

func (a *App) healthModule() bootstrap.Module {
	router := health.NewRouter(health.Options{Stats: a.stats})
	workers := []bootstrap.Worker{
		bootstrap.WorkerFunc(func(ctx context.Context) error {
			return health.Serve(ctx, a.cfg.Health.Port, router)
		}),
	}
	if url := a.cfg.Health.KeepAliveURL; url != "" {
		pinger := health.Pinger{URL: url, Interval: time.Duration(a.cfg.Health.KeepAliveSeconds) * time.Second}
		workers = append(workers, bootstrap.WorkerFunc(func(ctx context.Context) error {
			stop, err := pinger.Start()
			if err != nil {
				return err
			}
			<-ctx.Done()
			stop()
			return nil
		}))
	}
	return bootstrap.Module{Name: "health", Workers: workers}
}

func banks(cfg coreconfig.WalletConfig) []wallet.Bank {
	return []wallet.Bank{
		{Code: "CITIZEN", AccountID: cfg.Citizen.AccountID, BankCode: cfg.Citizen.Code},
		{Code: "PRABHU", AccountID: cfg.Prabhu.AccountID, BankCode: cfg.Prabhu.Code},
	}
}

func pruneLimiter(l *ratelimit.Limiter, every time.Duration) bootstrap.Worker {
	return bootstrap.WorkerFunc(func(ctx context.Context) error {
		if every <= 0 {
			every = ratelimit.DefaultWindow
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n := l.Prune()
				if logger.ShouldSampleDebug() {
					logger.Dispatch.Debug("rate windows pruned",
						slog.String("event", "ratelimit.prune"),
						slog.Int("tracked", n),
					)
				}
			}
		}
	})
}

func stopScheduler(s *reminder.Scheduler) bootstrap.Worker {
	return bootstrap.WorkerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), schedulerStopTimeout)
		defer cancel()
		return s.Stop(stopCtx)
	})
}

// walletJanitor sweeps abandoned loads twice per TTL; it idles when the TTL is off.
func walletJanitor(s *wallet.Service, ttl time.Duration) bootstrap.Worker {
	return bootstrap.WorkerFunc(func(ctx context.Context) error {
		if ttl <= 0 {
			<-ctx.Done()
			return nil
		}
		interval := ttl / 2
		if interval < time.Second {
			interval = time.Second
		}
		s.RunJanitor(ctx, interval)
		return nil
	})
}
