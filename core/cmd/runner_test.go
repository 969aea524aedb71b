package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/cmdbot/core/config"
)

type appFunc func(ctx context.Context) error

func (f appFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRunPassesConfigPathAndShutsDownLogger(t *testing.T) {
	t.Setenv("CMDBOT_TEST_CONFIG", "/etc/cmdbot.yaml")

	var gotPath string
	var ran, flushed bool
	err := Run(Options{
		ConfigEnvVar: "CMDBOT_TEST_CONFIG",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			gotPath = path
			return &coreconfig.Config{}, nil
		},
		Bootstrap: func(*coreconfig.Config) (App, error) {
			return appFunc(func(ctx context.Context) error {
				if ctx.Err() != nil {
					return errors.New("context already done")
				}
				ran = true
				return nil
			}), nil
		},
		ShutdownLogger: func() error { flushed = true; return nil },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotPath != "/etc/cmdbot.yaml" || !ran || !flushed {
		t.Fatalf("path=%q ran=%v flushed=%v", gotPath, ran, flushed)
	}
}

func TestRunDefaultConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	var gotPath string
	_ = Run(Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			gotPath = path
			return &coreconfig.Config{}, nil
		},
		Bootstrap:      func(*coreconfig.Config) (App, error) { return appFunc(func(context.Context) error { return nil }), nil },
		ShutdownLogger: func() error { return nil },
	})
	if gotPath != "config.yaml" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestRunErrors(t *testing.T) {
	if err := Run(Options{}); err == nil {
		t.Fatalf("expected error without bootstrap")
	}

	loadErr := errors.New("bad yaml")
	err := Run(Options{
		LoadConfig: func(string) (*coreconfig.Config, error) { return nil, loadErr },
		Bootstrap:  func(*coreconfig.Config) (App, error) { return nil, nil },
	})
	if !errors.Is(err, loadErr) {
		t.Fatalf("load error = %v", err)
	}

	bootErr := errors.New("no token")
	flushed := false
	err = Run(Options{
		LoadConfig:     func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap:      func(*coreconfig.Config) (App, error) { return nil, bootErr },
		ShutdownLogger: func() error { flushed = true; return nil },
	})
	if !errors.Is(err, bootErr) || !flushed {
		t.Fatalf("bootstrap error = %v, flushed=%v", err, flushed)
	}

	runErr := errors.New("poller died")
	err = Run(Options{
		LoadConfig:     func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap:      func(*coreconfig.Config) (App, error) { return appFunc(func(context.Context) error { return runErr }), nil },
		ShutdownLogger: func() error { return nil },
	})
	if !errors.Is(err, runErr) {
		t.Fatalf("run error = %v", err)
	}
}
