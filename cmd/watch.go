package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"templefeed/client"
	"templefeed/models"
	"templefeed/query"
)

const simulatedMedia = "simulated-video"

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow a feed like a client would",
		Description: `Loads the first feed page from a running server, subscribes to new
posts and prints the feed as a single JSON line whenever it changes.

New posts are held back while media is playing. Use --simulate-playback to
toggle a fake playing video and watch updates being deferred.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of the feed server",
				EnvVars: []string{"TEMPLEFEED_SERVER_URL"},
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "User id the feed is personalized for",
			},
			&cli.IntFlag{
				Name:  "page-size",
				Value: query.DefaultPageSize,
				Usage: "Number of items on the first page",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "Only show one category (posts, videos, temples, stories, deities)",
			},
			&cli.BoolFlag{
				Name:  "trending",
				Usage: "Rank by score only",
			},
			&cli.BoolFlag{
				Name:  "no-live",
				Usage: "Do not subscribe to new posts",
			},
			&cli.BoolFlag{
				Name:  "compress",
				Usage: "Ask the server for zstd compressed live messages",
			},
			&cli.DurationFlag{
				Name:  "simulate-playback",
				Usage: "Alternate playing and stopped media every interval",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Keep stdout for the feed
			log.SetOutput(os.Stderr)

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			serverURL := cfg.Client.ServerURL
			if ctx.IsSet("server") {
				serverURL = ctx.String("server")
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			session := client.NewSession(client.SessionConfig{
				ServerURL: serverURL,
				Request: query.Request{
					UserId:   ctx.String("user"),
					PageSize: ctx.Int("page-size"),
					Filter:   ctx.String("filter"),
					Trending: ctx.Bool("trending"),
				},
				RequestTimeout: cfg.Client.RequestTimeout,
				FlushInterval:  cfg.Client.FlushInterval,
				MaxPendingAdds: cfg.Client.MaxPendingAdds,
				RefreshEvery:   cfg.Client.RefreshEvery,
				Live:           !ctx.Bool("no-live"),
				LiveCompress:   ctx.Bool("compress"),
				OnChange:       printFeed,
			}, nil)

			fmt.Fprintln(os.Stderr, "Watching feed at", serverURL)
			if err := session.Start(runCtx); err != nil {
				return err
			}
			defer session.Close()

			if interval := ctx.Duration("simulate-playback"); interval > 0 {
				go simulatePlayback(runCtx, session.Playback(), interval)
			}

			<-runCtx.Done()
			fmt.Fprintln(os.Stderr, "Stopping watch")
			return nil
		},
	}
}

func simulatePlayback(ctx context.Context, playback *client.PlaybackRegistry, interval time.Duration) {
	playback.Register(simulatedMedia)
	defer playback.Unregister(simulatedMedia)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	playing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if playing {
				playback.Pause(simulatedMedia)
			} else {
				playback.Play(simulatedMedia)
			}
			playing = !playing
			log.WithField("playing", playing).Info("Simulated playback toggled")
		}
	}
}

// printFeed prints the feed as a single JSON line
func printFeed(items []models.FeedItem) {
	feedJson, err := json.Marshal(items)
	if err == nil {
		fmt.Println(string(feedJson))
	}
}
