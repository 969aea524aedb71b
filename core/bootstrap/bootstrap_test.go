package bootstrap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/cmdbot/core/command"
	coreconfig "github.com/m3rciful/cmdbot/core/config"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunResolvesTimezone(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Reminders.Timezone = "Asia/Kathmandu"

	var asked string
	load := func(name string) (*time.Location, error) {
		asked = name
		return time.FixedZone(name, 5*3600+45*60), nil
	}
	res, err := Run(Options{Config: cfg, LoggerInit: noLogger, LoadLocation: load})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if asked != "Asia/Kathmandu" || res.Location.String() != "Asia/Kathmandu" {
		t.Fatalf("location = %s", res.Location)
	}
}

func TestRunDefaultsToLocal(t *testing.T) {
	res, err := Run(Options{Config: &coreconfig.Config{}, LoggerInit: noLogger})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Location != time.Local {
		t.Fatalf("location = %s, want Local", res.Location)
	}
}

func TestRunErrors(t *testing.T) {
	if _, err := Run(Options{}); err == nil {
		t.Fatalf("expected error for nil config")
	}

	boom := errors.New("boom")
	_, err := Run(Options{Config: &coreconfig.Config{}, LoggerInit: func(*coreconfig.Config) error { return boom }})
	if !errors.Is(err, boom) {
		t.Fatalf("logger failure not propagated: %v", err)
	}

	cfg := &coreconfig.Config{}
	cfg.Reminders.Timezone = "Mars/Olympus"
	if _, err := Run(Options{Config: cfg, LoggerInit: noLogger}); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestModulesCommands(t *testing.T) {
	mods := Modules{
		{Name: "a", Commands: []command.Descriptor{{Token: "!a"}}},
		{Name: "b"},
		{Name: "c", Commands: []command.Descriptor{{Token: "!c1"}, {Token: "!c2"}}},
	}
	if got := mods.Commands(); len(got) != 3 || got[2].Token != "!c2" {
		t.Fatalf("commands = %+v", got)
	}
}

func TestModulesRunStopsWorkersWhenMainReturns(t *testing.T) {
	var stopped atomic.Int32
	worker := WorkerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Add(1)
		return nil
	})
	mods := Modules{{Name: "w", Workers: []Worker{worker, worker}}}

	err := mods.Run(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stopped.Load() != 2 {
		t.Fatalf("stopped workers = %d, want 2", stopped.Load())
	}
}

func TestModulesRunWorkerFailureCancelsMain(t *testing.T) {
	boom := errors.New("listen failed")
	mods := Modules{{Name: "health", Workers: []Worker{
		WorkerFunc(func(context.Context) error { return boom }),
	}}}

	err := mods.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
