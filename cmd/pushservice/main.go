package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

type flags struct {
	LogLevel   string
	ConfigPath string
}

func main() {
	f := &flags{}
	var logger *slog.Logger

	app := &cli.Command{
		Name:  "pushservice",
		Usage: "Store browser push subscriptions and fan notifications out to them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to a YAML config file (defaults to the embedded local.yaml)",
				Sources:     cli.EnvVars("CONFIG_PATH"),
				Destination: &f.ConfigPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger = newLogger(f.LogLevel)
			slog.SetDefault(logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and the optional Pub/Sub pipeline",
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx, f.ConfigPath, logger)
				},
			},
			{
				Name:  "vapid-keys",
				Usage: "generate a VAPID key pair for VAPID_PUBLIC_KEY / VAPID_PRIVATE_KEY",
				Action: func(ctx context.Context, c *cli.Command) error {
					return printVAPIDKeys(os.Stdout)
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-webpush-service")
}
