package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"jobhunt/internal/util"
	"jobhunt/pkg/authclient"
	"jobhunt/services/cli/internal/cli"
	"jobhunt/services/cli/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	path := os.Getenv("JOBHUNT_CONFIG")
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	util.InitLoggerTo(os.Stderr, cfg.LogLevel, false)

	app, err := cli.New(cli.Config{
		Auth:              authclient.NewClient(cfg.BackendURL, cfg.BackendAnonKey),
		BackendURL:        cfg.BackendURL,
		AnonKey:           cfg.BackendAnonKey,
		SignupRedirectURL: cfg.SignupRedirectURL,
		SessionPath:       cfg.SessionPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return app.Run(ctx, os.Args[1:])
}
