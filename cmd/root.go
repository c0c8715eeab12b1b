package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"templefeed/config"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "templefeed",
		Usage: "A ranked content feed of posts, videos, temples, stories and deities",
		Description: `Templefeed serves a personalized, paginated feed mixed from five
		content collections stored in SQLite.

		Items are scored on follow relationships, recency, engagement and the
		user's interests. New posts are pushed to connected clients over a
		websocket, and the watch command shows how a client merges them without
		interrupting playing media.

		Flags can generally be set via environment variables, e.g.:

		--database => TEMPLEFEED_DATABASE=feed.db
		--port => TEMPLEFEED_PORT=3000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"TEMPLEFEED_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			ingestCmd(),
			watchCmd(),
			initCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a TOML configuration file, defaults are used when empty",
		EnvVars: []string{"TEMPLEFEED_CONFIG"},
	}
}

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Value:   "feed.db",
		Usage:   "SQLite database file location",
		EnvVars: []string{"TEMPLEFEED_DATABASE"},
	}
}

// loadConfig reads --config and lets explicitly set flags win over the file
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if ctx.IsSet("database") || cfg.Server.Database == "" {
		cfg.Server.Database = ctx.String("database")
	}
	return cfg, nil
}
