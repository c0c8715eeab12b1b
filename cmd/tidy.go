package cmd

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"templefeed/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing documents that are old.

		Removes documents older than --max-age from every collection.
		This is to keep the database size down and to keep the feed fresh.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.DurationFlag{
				Name:    "max-age",
				Value:   90 * 24 * time.Hour,
				Usage:   "Documents created before now minus max-age are removed",
				EnvVars: []string{"TEMPLEFEED_MAX_AGE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)
			removed, err := db.Tidy(ctx.Context, database, ctx.Duration("max-age"))
			if err != nil {
				return err
			}
			log.WithField("removed", removed).Info("Tidied database")
			return nil
		},
	}
}
