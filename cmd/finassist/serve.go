package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"finassist/internal/httpapi"
)

func cmdServe(rt *rootOptions) *cli.Command {
	var addr string

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "HTTP server address; overrides the config file",
				Destination: &addr,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if addr != "" {
				rt.cfg.Server.Addr = addr
			}

			a, err := build(ctx, rt.cfg, rt.logger)
			if err != nil {
				return goerr.Wrap(err, "failed to assemble assistant")
			}
			defer a.Close()

			handler := httpapi.New(a.assistant,
				httpapi.WithLogger(rt.logger),
				httpapi.WithMetrics(a.metrics, a.registry),
				httpapi.WithMaxUpload(rt.cfg.Server.MaxUploadBytes),
			)
			server := &http.Server{
				Addr:              rt.cfg.Server.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 30 * time.Second,
				ReadTimeout:       time.Duration(rt.cfg.Server.ReadTimeoutSecs) * time.Second,
				WriteTimeout:      time.Duration(rt.cfg.Server.WriteTimeoutSecs) * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			errCh := make(chan error, 1)
			go func() {
				rt.logger.Info("Starting HTTP server", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				rt.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}
			rt.logger.Info("Server shutdown completed")
			return nil
		},
	}
}
