package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"finassist/internal/domain"
	"finassist/internal/retrieval"
	"finassist/internal/stream"
)

func cmdSearch(rt *rootOptions) *cli.Command {
	var k int

	return &cli.Command{
		Name:      "search",
		Usage:     "Query the resource index and print the nearest entries",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "k",
				Usage:       "Number of results",
				Value:       5,
				Destination: &k,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query is required")
			}
			a, err := build(ctx, rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			matches, err := a.assistant.Search(ctx, query, k)
			if err != nil {
				return err
			}
			return printMatches(os.Stdout, matches)
		},
	}
}

func printMatches(w io.Writer, matches []domain.Match) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDISTANCE\tDOCUMENT")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%.4f\t%s\n", m.ID, m.Distance, retrieval.Truncate(m.Document, 80))
	}
	return tw.Flush()
}

// cmdRecommend streams recommendations for a case as NDJSON on stdout.
func cmdRecommend(rt *rootOptions) *cli.Command {
	return &cli.Command{
		Name:      "recommend",
		Usage:     "Stream ranked resources for a case as JSON lines",
		ArgsUsage: "<case-id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			caseID := c.Args().First()
			if caseID == "" {
				return goerr.New("case id is required")
			}
			a, err := build(ctx, rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return streamStatus(a.assistant.StreamRecommend(ctx, caseID, stream.NewNDJSON(os.Stdout)))
		},
	}
}

// cmdTriage streams the triage of a message as NDJSON on stdout.
func cmdTriage(rt *rootOptions) *cli.Command {
	return &cli.Command{
		Name:      "triage",
		Usage:     "Stream the triage of an employee message as JSON lines",
		ArgsUsage: "<case-id> <message>",
		Action: func(ctx context.Context, c *cli.Command) error {
			args := c.Args().Slice()
			if len(args) < 2 {
				return goerr.New("case id and message are required")
			}
			a, err := build(ctx, rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			message := strings.Join(args[1:], " ")
			return streamStatus(a.assistant.StreamTriage(ctx, args[0], message, stream.NewNDJSON(os.Stdout)))
		},
	}
}

func streamStatus(s stream.Status) error {
	if s != stream.Completed {
		return goerr.New("stream did not complete", goerr.V("status", s.String()))
	}
	return nil
}
