package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"

	"templefeed/db"
	"templefeed/ingest"
)

func ingestCmd() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Load documents, profiles and follows from JSON lines",
		Description: `Reads one JSON record per line and writes it to the database.

Each record has a "type" of document, delete, profile or follow. Documents
name their "collection" and carry the raw "body" as stored. Malformed lines
are logged and skipped.

Reads from stdin unless --input names a file.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Value:   "-",
				Usage:   "File with JSON lines, - for stdin",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   runtime.NumCPU(),
				Usage:   "Number of parsing workers",
				EnvVars: []string{"TEMPLEFEED_INGEST_WORKERS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			var input io.Reader = os.Stdin
			if path := ctx.String("input"); path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("could not open input: %w", err)
				}
				defer f.Close()
				input = f
			}

			stats, err := ingest.Run(ctx.Context, input, database, ctx.Int("workers"))
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d lines, %d applied, %d rejected\n", stats.Lines, stats.Applied, stats.Rejected)
			return nil
		},
	}
}
