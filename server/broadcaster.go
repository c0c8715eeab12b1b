package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"templefeed/feeds"
	"templefeed/models"
)

var (
	liveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "templefeed_live_clients",
		Help: "The current number of connected live feed clients",
	})

	liveDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "templefeed_live_dropped_events_total",
		Help: "Live events skipped because a client channel was full",
	})
)

// Broadcaster fans live events out to every connected client
type Broadcaster struct {
	sync.RWMutex
	clients map[string]chan models.LiveEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan models.LiveEvent),
	}
}

// Publish hands event to every client without blocking. Clients with a full
// channel miss the event.
func (b *Broadcaster) Publish(event models.LiveEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.clients {
		select {
		case client <- event:
		default:
			liveDropped.Inc()
			log.Warnf("Client channel full, skipping live event for client: %v", id)
		}
	}
}

func (b *Broadcaster) AddClient(key string, client chan models.LiveEvent) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = client
	liveClients.Set(float64(len(b.clients)))
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
}

func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.clients[key]; ok {
		close(client)
		delete(b.clients, key)
	}
	liveClients.Set(float64(len(b.clients)))

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

// Count returns the number of connected clients
func (b *Broadcaster) Count() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
	liveClients.Set(0)
}

var _ feeds.Publisher = (*Broadcaster)(nil)
