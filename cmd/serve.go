package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"templefeed/db"
	"templefeed/feeds"
	"templefeed/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feed",
		Description: `Starts the feed HTTP server and the new post watcher.

Launches the HTTP server on the specified or default port. Ranked pages are
served from /feed, unranked recent posts from /feed/recent and new posts are
pushed to websocket clients on /feed/live.`,
		Flags: []cli.Flag{
			configFlag(),
			databaseFlag(),
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"TEMPLEFEED_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"TEMPLEFEED_PORT"},
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Usage:   "Comma separated list of origins allowed by CORS",
				EnvVars: []string{"TEMPLEFEED_ALLOW_ORIGINS"},
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often the database is checked for new posts",
				EnvVars: []string{"TEMPLEFEED_POLL_INTERVAL"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if ctx.IsSet("hostname") {
				cfg.Server.Hostname = ctx.String("hostname")
			}
			if ctx.IsSet("port") {
				cfg.Server.Port = ctx.Int("port")
			}
			if ctx.IsSet("poll-interval") {
				cfg.Live.PollInterval = ctx.Duration("poll-interval")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log.WithField("database", cfg.Server.Database).Info("Starting templefeed")
			if err := db.Migrate(cfg.Server.Database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			reader, err := db.NewReader(cfg.Server.Database)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer reader.Close()

			service := feeds.NewService(reader, reader, cfg.Feed)
			broadcaster := server.NewBroadcaster()
			app := server.Server(&server.ServerConfig{
				Hostname:     cfg.Server.Hostname,
				Service:      service,
				Broadcaster:  broadcaster,
				AllowOrigins: ctx.String("allow-origins"),
			})

			latest, err := reader.LatestPostTimestamp(ctx.Context)
			if err != nil {
				log.WithError(err).Warn("Could not read newest post, watching from now")
				latest = time.Time{}
			}
			watcher := feeds.NewWatcher(reader, service.Normalizer(), broadcaster, cfg.Live.PollInterval, cfg.Live.BatchSize)

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(runCtx)

			g.Go(func() error {
				watcher.Run(gctx, latest)
				return nil
			})

			g.Go(func() error {
				addr := fmt.Sprintf(":%d", cfg.Server.Port)
				log.Infof("Starting server on %s", addr)
				if err := app.Listen(addr); err != nil {
					return fmt.Errorf("server stopped: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				log.Info("Gracefully shutting down...")
				broadcaster.Shutdown()
				return app.ShutdownWithTimeout(30 * time.Second)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Done!")
			return nil
		},
	}
}
