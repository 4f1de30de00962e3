package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"finassist/internal/tui"
)

func cmdConsole(rt *rootOptions) *cli.Command {
	return &cli.Command{
		Name:    "console",
		Aliases: []string{"c"},
		Usage:   "Open the interactive caseworker console",
		Action: func(ctx context.Context, c *cli.Command) error {
			// the console owns the terminal, so components log nothing
			a, err := build(ctx, rt.cfg, zap.NewNop())
			if err != nil {
				return goerr.Wrap(err, "failed to assemble assistant")
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			if _, err := tea.NewProgram(tui.New(ctx, a.assistant), tea.WithAltScreen()).Run(); err != nil {
				return goerr.Wrap(err, "console failed")
			}
			return nil
		},
	}
}
