package firehose

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"templefeed/models"
)

// ErrIgnored marks messages that are well formed but carry nothing to merge
var ErrIgnored = errors.New("message ignored")

// Decoder turns raw live messages into events. Binary messages are zstd
// compressed JSON, text messages are plain JSON.
type Decoder struct {
	zstd *zstd.Decoder
}

func NewDecoder() (*Decoder, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Decoder{zstd: decoder}, nil
}

func (d *Decoder) Close() {
	d.zstd.Close()
}

// Decode parses msg. Events other than creates and items without a usable id
// or kind return ErrIgnored.
func (d *Decoder) Decode(msg *RawMessage) (models.LiveEvent, error) {
	data := msg.Data
	if msg.MessageType == websocket.BinaryMessage {
		var err error
		data, err = d.zstd.DecodeAll(msg.Data, nil)
		if err != nil {
			return models.LiveEvent{}, fmt.Errorf("failed to decompress message: %w", err)
		}
	}

	var event models.LiveEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return models.LiveEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.Type != models.LiveEventCreate {
		return models.LiveEvent{}, ErrIgnored
	}
	if event.Item.Id == "" || !event.Item.Kind.Valid() {
		return models.LiveEvent{}, ErrIgnored
	}
	return event, nil
}
