package main

import (
	"log"

	"github.com/m3rciful/cmdbot/core/app"
	"github.com/m3rciful/cmdbot/core/cmd"
	coreconfig "github.com/m3rciful/cmdbot/core/config"
)

func main() {
	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        coreconfig.Load,
		Bootstrap: func(cfg *coreconfig.Config) (cmd.App, error) {
			a, err := app.Bootstrap(cfg)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
