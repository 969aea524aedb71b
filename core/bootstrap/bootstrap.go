package bootstrap

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/cmdbot/core/config"
	"github.com/m3rciful/cmdbot/core/logger"
)

// Options control the startup pipeline shared by every run mode.
type Options struct {
	Config *coreconfig.Config

	LoggerInit   func(*coreconfig.Config) error
	LoadLocation func(name string) (*time.Location, error)
}

// Result exposes what the pipeline resolved.
type Result struct {
	// Location interprets absolute reminder times.
	Location *time.Location
}

// Run initializes the logger and resolves the reminder timezone.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	loc := time.Local
	if tz := strings.TrimSpace(opts.Config.Reminders.Timezone); tz != "" {
		load := opts.LoadLocation
		if load == nil {
			load = time.LoadLocation
		}
		l, err := load(tz)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: reminders.timezone %q: %w", tz, err)
		}
		loc = l
	}
	return &Result{Location: loc}, nil
}
