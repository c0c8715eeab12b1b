package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"

	"templefeed/config"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a configuration file",
		Description: `Asks for the most common settings and writes them, together with
the defaults for everything else, to a TOML configuration file.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "templefeed.toml",
				Usage:   "Where to write the configuration",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg := config.Default()

			hostname, err := prompt.New().Ask("Hostname:").Input(cfg.Server.Hostname)
			if err != nil {
				return err
			}
			port, err := prompt.New().Ask("Port:").Input(strconv.Itoa(cfg.Server.Port))
			if err != nil {
				return err
			}
			database, err := prompt.New().Ask("Database file:").Input(cfg.Server.Database)
			if err != nil {
				return err
			}
			languages, err := prompt.New().Ask("Languages (comma separated):").Input(strings.Join(cfg.Feed.Languages, ","))
			if err != nil {
				return err
			}

			cfg.Server.Hostname = hostname
			cfg.Server.Database = database
			cfg.Server.Port, err = strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", port, err)
			}
			cfg.Feed.Languages = splitList(languages)
			cfg.Client.ServerURL = fmt.Sprintf("http://%s:%d", hostname, cfg.Server.Port)

			output := ctx.String("output")
			if err := config.Save(output, cfg); err != nil {
				return err
			}
			fmt.Println("Wrote configuration to", output)
			return nil
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
