package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/cmdbot/core/command"
	"github.com/m3rciful/cmdbot/core/logger"
)

// Worker is a background loop that runs until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc adapts a bare function to the Worker interface.
type WorkerFunc func(ctx context.Context) error

// Run executes the underlying function.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Module is an optional feature: its commands are registered at startup and
// its workers run beside the transport.
type Module struct {
	Name     string
	Commands []command.Descriptor
	Workers  []Worker
}

// Modules groups the enabled modules.
type Modules []Module

// Commands collects the descriptors of every module.
func (m Modules) Commands() []command.Descriptor {
	var out []command.Descriptor
	for _, mod := range m {
		out = append(out, mod.Commands...)
	}
	return out
}

// Run starts every worker, then runs main. When main returns the workers are
// cancelled; the first failure anywhere cancels everything and is returned.
func (m Modules) Run(ctx context.Context, main func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, mod := range m {
		for _, w := range mod.Workers {
			name, w := mod.Name, w
			g.Go(func() error {
				err := w.Run(gctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.L.With("component", "app").Error("worker failed",
						slog.String("event", "worker.failed"),
						slog.String("module", name),
						slog.String("err", err.Error()),
					)
					return err
				}
				return nil
			})
		}
	}
	g.Go(func() error {
		defer cancel()
		return main(gctx)
	})
	return g.Wait()
}
