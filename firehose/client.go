package firehose

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	wsConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "templefeed_live_connection_attempts_total",
		Help: "The total number of connection attempts to the live feed websocket",
	})

	wsConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "templefeed_live_connection_errors_total",
		Help: "The total number of live feed connection errors encountered",
	})

	wsCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "templefeed_live_current_connections",
		Help: "The current number of open live feed connections",
	})

	wsConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "templefeed_live_connection_duration_seconds",
		Help:    "Duration of live feed websocket connections",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	wsPingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "templefeed_live_ping_latency_seconds",
		Help:    "Latency of websocket ping/pong round trips",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	wsHostSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "templefeed_live_host_switches_total",
		Help: "Number of times the connection switched to a different host",
	}, []string{"from_host", "to_host"})
)

const (
	wsReadBufferSize  = 1024 * 1024
	wsWriteBufferSize = 1024
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

// LiveConfig holds configuration for the live feed connection
type LiveConfig struct {
	// Hosts are feed server base urls tried in order, e.g.
	// ["http://feed-1:3000", "http://feed-2:3000"]
	Hosts     []string
	Compress  bool
	UserAgent string
	// MaxRetryInterval caps the reconnect backoff
	MaxRetryInterval time.Duration
}

// RawMessage represents an unparsed message from the websocket
type RawMessage struct {
	MessageType int
	Data        []byte
}

// LiveURL turns a feed server base url into its live websocket url
func LiveURL(host string, compress bool) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(host, "/") + "/feed/live")
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if compress {
		q := u.Query()
		q.Set("compress", "true")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func newBackoff(maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = maxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = 30 * time.Second
	}
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0
	return b
}

// Dial connects to the first reachable host, cycling through the hosts and
// backing off after every full round of failures. It only gives up when ctx
// is done.
func Dial(ctx context.Context, config LiveConfig) (*websocket.Conn, error) {
	log.WithFields(log.Fields{
		"hosts": config.Hosts,
	}).Info("Connecting to live feed")

	if len(config.Hosts) == 0 {
		return nil, fmt.Errorf("no hosts provided in config")
	}

	dialer := websocket.Dialer{
		ReadBufferSize:   wsReadBufferSize,
		WriteBufferSize:  wsWriteBufferSize,
		HandshakeTimeout: 45 * time.Second,
		NetDialContext: (&net.Dialer{
			Timeout:   45 * time.Second,
			KeepAlive: 45 * time.Second,
		}).DialContext,
	}

	headers := http.Header{}
	if config.UserAgent != "" {
		headers.Set("User-Agent", config.UserAgent)
	}

	retry := newBackoff(config.MaxRetryInterval)
	currentHostIdx := 0
	failedInRound := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		currentHost := config.Hosts[currentHostIdx]

		liveURL, err := LiveURL(currentHost, config.Compress)
		if err != nil {
			return nil, err
		}

		wsConnectionAttempts.Inc()
		conn, _, dialErr := dialer.DialContext(ctx, liveURL, headers)
		if dialErr == nil {
			wsCurrentConnections.Inc()
			return conn, nil
		}

		wsConnectionErrors.Inc()
		log.Errorf("Error connecting to live feed host %s: %s", currentHost, dialErr)
		failedInRound++

		nextHostIdx := (currentHostIdx + 1) % len(config.Hosts)
		if nextHostIdx != currentHostIdx {
			wsHostSwitches.WithLabelValues(currentHost, config.Hosts[nextHostIdx]).Inc()
			log.Infof("Switching from host %s to %s", currentHost, config.Hosts[nextHostIdx])
			currentHostIdx = nextHostIdx
		}
		if failedInRound < len(config.Hosts) {
			continue
		}

		// Every host failed, wait before the next round
		failedInRound = 0
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry.NextBackOff()):
		}
	}
}

// setupConnectionHandlers configures the websocket connection handlers. The
// returned value holds the send time of the last ping in unix nanoseconds.
func setupConnectionHandlers(conn *websocket.Conn) *atomic.Int64 {
	pingSent := &atomic.Int64{}

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	conn.SetCloseHandler(func(code int, text string) error {
		log.Infof("WebSocket connection closed with code %d: %s", code, text)
		return nil
	})

	// The server pings every 30s, answering keeps the read deadline fresh
	conn.SetPingHandler(func(appData string) error {
		log.Debug("Received ping from server")
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	conn.SetPongHandler(func(appData string) error {
		log.Debug("Received pong from server")
		if sent := pingSent.Load(); sent > 0 {
			wsPingLatency.Observe(time.Since(time.Unix(0, sent)).Seconds())
		}
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	return pingSent
}

// managePingPong handles the ping/pong keepalive for the websocket connection
func managePingPong(ctx context.Context, conn *websocket.Conn, pingSent *atomic.Int64) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debug("Sending ping to check connection")
			pingSent.Store(time.Now().UnixNano())

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warn("Ping failed, closing connection for restart: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}
		}
	}
}

// readMessages pumps raw messages into queue until the connection fails or
// ctx is done. The connection is closed on return.
func readMessages(ctx context.Context, conn *websocket.Conn, queue chan<- *RawMessage) error {
	connStart := time.Now()
	defer func() {
		wsConnectionDuration.Observe(time.Since(connStart).Seconds())
		wsCurrentConnections.Dec()
	}()

	pingSent := setupConnectionHandlers(conn)
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go managePingPong(connCtx, conn, pingSent)
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("Unexpected websocket close: %v", err)
			}
			wsConnectionErrors.Inc()
			return err
		}

		select {
		case queue <- &RawMessage{MessageType: messageType, Data: message}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
