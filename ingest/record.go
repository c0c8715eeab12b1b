// Package ingest loads JSON lines records into the document store
package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"templefeed/models"
	"templefeed/query"
)

const (
	TypeDocument = "document"
	TypeDelete   = "delete"
	TypeProfile  = "profile"
	TypeFollow   = "follow"
)

// Record is one input line. Document records may omit the type.
type Record struct {
	Type string `json:"type"`

	Collection string          `json:"collection"`
	Id         string          `json:"id"`
	CreatedAt  string          `json:"createdAt"`
	Body       json.RawMessage `json:"body"`

	UserId          string   `json:"userId"`
	FavoriteDeities []string `json:"favoriteDeities"`
	Interests       []string `json:"interests"`

	FollowerId string `json:"followerId"`
	FolloweeId string `json:"followeeId"`
}

// ParseLine converts a JSON line into a writer event
func ParseLine(line []byte) (interface{}, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal(line, &record); err != nil {
		return nil, fmt.Errorf("malformed record: %w", err)
	}

	recordType := record.Type
	if recordType == "" && record.Collection != "" {
		recordType = TypeDocument
	}

	switch recordType {
	case TypeDocument:
		return documentEvent(record)
	case TypeDelete:
		if _, err := category(record.Collection); err != nil {
			return nil, err
		}
		if record.Id == "" {
			return nil, fmt.Errorf("delete record has no id")
		}
		return models.DeleteDocumentEvent{Collection: record.Collection, Id: record.Id}, nil
	case TypeProfile:
		if record.UserId == "" {
			return nil, fmt.Errorf("profile record has no userId")
		}
		return models.UpsertProfileEvent{Profile: models.Profile{
			UserId:          record.UserId,
			FavoriteDeities: record.FavoriteDeities,
			Interests:       record.Interests,
		}}, nil
	case TypeFollow:
		if record.FollowerId == "" || record.FolloweeId == "" {
			return nil, fmt.Errorf("follow record needs followerId and followeeId")
		}
		return models.FollowEvent{Follow: models.Follow{
			FollowerId: record.FollowerId,
			FolloweeId: record.FolloweeId,
		}}, nil
	default:
		return nil, fmt.Errorf("unknown record type %q", record.Type)
	}
}

func category(collection string) (query.Category, error) {
	c := query.Category(collection)
	if c.Prefix() == "" {
		return "", fmt.Errorf("unknown collection %q", collection)
	}
	return c, nil
}

func documentEvent(record Record) (interface{}, error) {
	if _, err := category(record.Collection); err != nil {
		return nil, err
	}
	if strings.TrimSpace(record.Id) == "" {
		return nil, fmt.Errorf("document record has no id")
	}
	if len(record.Body) == 0 || record.Body[0] != '{' {
		return nil, fmt.Errorf("document %s/%s body must be an object", record.Collection, record.Id)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("document %s/%s has an invalid createdAt: %w", record.Collection, record.Id, err)
	}

	return models.CreateDocumentEvent{Document: models.Document{
		Collection: record.Collection,
		Id:         record.Id,
		CreatedAt:  createdAt.UTC(),
		Body:       []byte(record.Body),
	}}, nil
}
