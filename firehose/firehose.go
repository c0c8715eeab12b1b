// Package firehose keeps a client connected to a feed server's live endpoint
// and turns its messages into live events.
package firehose

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"templefeed/models"
)

const messageQueueSize = 256

// Subscribe streams live events into events until ctx is done. Dropped
// connections are re-established with backoff. Events keep the order they
// arrived in.
func Subscribe(ctx context.Context, config LiveConfig, events chan<- models.LiveEvent) error {
	decoder, err := NewDecoder()
	if err != nil {
		return err
	}
	defer decoder.Close()

	queue := make(chan *RawMessage, messageQueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		processMessages(ctx, decoder, queue, events)
	}()
	defer func() { <-done }()

	retry := newBackoff(config.MaxRetryInterval)
	for {
		conn, err := Dial(ctx, config)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		retry.Reset()

		err = readMessages(ctx, conn, queue)
		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).Warn("Live feed connection lost, reconnecting")

		wait := retry.NextBackOff()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func processMessages(ctx context.Context, decoder *Decoder, queue <-chan *RawMessage, events chan<- models.LiveEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			event, err := decoder.Decode(msg)
			if errors.Is(err, ErrIgnored) {
				continue
			}
			if err != nil {
				log.Errorf("Error processing live message: %v", err)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
