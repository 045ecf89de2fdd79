package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jfaulkner/crm-bridge/internal/config"
	"github.com/jfaulkner/crm-bridge/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional, env vars also apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := server.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build service: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "run service: %v\n", err)
		os.Exit(1)
	}
}
