package server

import (
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"templefeed/feeds"
	"templefeed/models"
	"templefeed/query"
)

const (
	livePath         = "/feed/live"
	livePingInterval = 30 * time.Second
	liveWriteTimeout = 10 * time.Second
	liveClientBuffer = 16
	recentCacheTTL   = 2 * time.Second
)

type ServerConfig struct {
	// The hostname to use for the server
	Hostname string

	// Generates ranked and recent feeds
	Service *feeds.Service

	// Fans live events out to websocket clients
	Broadcaster *Broadcaster

	// Comma separated list of origins allowed by CORS, defaults to all
	AllowOrigins string
}

// Server returns a fiber.App serving the feed API
func Server(config *ServerConfig) *fiber.App {
	bc := config.Broadcaster

	app := fiber.New(fiber.Config{
		AppName:     "templefeed",
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":    c.Method(),
			"route":     c.Route().Path,
			"status":    c.Response().StatusCode(),
			"requestId": c.GetRespHeader(fiber.HeaderXRequestID),
			"latency":   time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), livePath)
		},
	}))

	allowOrigins := config.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,OPTIONS",
	}))

	// The unranked fallback is hit by every degraded client at once
	app.Use(cache.New(cache.Config{
		Expiration: recentCacheTTL,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() != fiber.MethodGet || c.Path() != "/feed/recent"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Request().URI().String()
		},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/feed", func(c *fiber.Ctx) error {
		var req query.Request
		if err := c.QueryParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid query parameters"})
		}
		log.WithFields(log.Fields{
			"userId":   req.UserId,
			"pageSize": req.PageSize,
			"cursor":   req.LastCursor,
			"filter":   req.Filter,
			"trending": req.Trending,
		}).Debug("Generate feed with parameters")

		resp, err := config.Service.Generate(c.UserContext(), req)
		if errors.Is(err, query.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if errors.Is(err, feeds.ErrAllSourcesFailed) {
			log.WithError(err).Error("No content source available")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "feed temporarily unavailable"})
		}
		if err != nil {
			log.WithError(err).Error("Error generating feed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "error generating feed"})
		}
		return c.JSON(resp)
	})

	app.Get("/feed/recent", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 0)
		resp, err := config.Service.Recent(c.UserContext(), limit)
		if err != nil {
			log.WithError(err).Error("Error reading recent posts")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "error reading recent posts"})
		}
		return c.JSON(resp)
	})

	app.Use(livePath, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get(livePath, websocket.New(func(conn *websocket.Conn) {
		liveHandler(conn, bc)
	}))

	return app
}

func liveHandler(conn *websocket.Conn, bc *Broadcaster) {
	key := uuid.New().String()
	events := make(chan models.LiveEvent, liveClientBuffer)
	bc.AddClient(key, events)
	defer bc.RemoveClient(key)

	var encoder *zstd.Encoder
	if conn.Query("compress") == "true" {
		var err error
		encoder, err = zstd.NewWriter(nil)
		if err != nil {
			log.WithError(err).Error("Failed to create zstd encoder")
			return
		}
		defer encoder.Close()
	}

	// Reads only detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Debugf("Live client %s disconnected", key)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				log.Warnf("Ping to live client %s failed: %v", key, err)
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.Errorf("Error marshalling live event for client %s: %v", key, err)
				continue
			}
			messageType := websocket.TextMessage
			if encoder != nil {
				data = encoder.EncodeAll(data, nil)
				messageType = websocket.BinaryMessage
			}
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(messageType, data); err != nil {
				log.Warnf("Failed to send live event to client %s: %v", key, err)
				return
			}
		}
	}
}
