package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"finassist/internal/config"
	"finassist/internal/logging"
)

var version = "dev"

// rootOptions is populated by the root command's Before hook.
type rootOptions struct {
	cfgPath  string
	logLevel string
	cfg      *config.AppConfig
	logger   *zap.Logger
}

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	rt := &rootOptions{}

	app := &cli.Command{
		Name:    "finassist",
		Usage:   "Financial hardship triage and resource recommendation",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to YAML config file (uses ./config.yaml or ~/.config/finassist/config.yaml if not provided)",
				Sources:     cli.EnvVars("FINASSIST_CONFIG"),
				Destination: &rt.cfgPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (debug, info, warn, error); overrides the config file",
				Destination: &rt.logLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			_ = godotenv.Load()

			var err error
			if rt.cfgPath == "" {
				rt.cfg, rt.cfgPath, err = config.LoadDefault()
			} else {
				rt.cfg, err = config.Load(rt.cfgPath)
			}
			if err != nil {
				return ctx, err
			}
			if rt.logLevel != "" {
				rt.cfg.Logging.Level = rt.logLevel
			}
			rt.logger, err = logging.New(rt.cfg.Logging.Level, rt.cfg.Logging.Format)
			if err != nil {
				return ctx, err
			}
			rt.logger.Info("Starting finassist", zap.String("version", version), zap.String("config", rt.cfgPath))
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(rt),
			cmdConsole(rt),
			cmdSearch(rt),
			cmdRecommend(rt),
			cmdTriage(rt),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if rt.logger != nil {
			logging.Error(rt.logger, "failed to run app", err)
		} else {
			fmt.Fprintln(os.Stderr, "finassist:", err)
		}
		return err
	}
	return nil
}
