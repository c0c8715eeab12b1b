package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"templefeed/models"
	"templefeed/query"
)

// Writer applies ingest events to the document store. It is the only
// component that mutates the database.
type Writer struct {
	db        *sql.DB
	eventChan chan interface{}
	tidyAfter time.Duration
}

func NewWriter(database string, eventChan chan interface{}, tidyAfter time.Duration) (*Writer, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &Writer{
		db:        db,
		eventChan: eventChan,
		tidyAfter: tidyAfter,
	}, nil
}

func (writer *Writer) Close() error {
	return writer.db.Close()
}

// Subscribe applies events until the channel is closed or the context is done.
// Failed events are logged and skipped. Returns the number of applied events.
func (writer *Writer) Subscribe(ctx context.Context) int {
	var tidyChan <-chan time.Time
	if writer.tidyAfter > 0 {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		tidyChan = ticker.C
	}

	applied := 0
	for {
		select {
		case <-ctx.Done():
			return applied
		case <-tidyChan:
			if _, err := tidy(ctx, writer.db, time.Now().Add(-writer.tidyAfter)); err != nil {
				log.Error("Error tidying database: ", err)
			}
		case event, ok := <-writer.eventChan:
			if !ok {
				return applied
			}
			if err := writer.Write(ctx, event); err != nil {
				log.WithFields(log.Fields{
					"event": fmt.Sprintf("%T", event),
					"error": err,
				}).Error("Error writing event")
				continue
			}
			applied++
		}
	}
}

// Write applies a single event
func (writer *Writer) Write(ctx context.Context, event interface{}) error {
	switch event := event.(type) {
	case models.CreateDocumentEvent:
		return createDocument(ctx, writer.db, event.Document)
	case models.DeleteDocumentEvent:
		return deleteDocument(ctx, writer.db, event.Collection, event.Id)
	case models.UpsertProfileEvent:
		return upsertProfile(ctx, writer.db, event.Profile)
	case models.FollowEvent:
		return addFollow(ctx, writer.db, event.Follow)
	default:
		return fmt.Errorf("unknown event type %T", event)
	}
}

func createDocument(ctx context.Context, db *sql.DB, doc models.Document) error {
	table, err := tableFor(query.Category(doc.Collection))
	if err != nil {
		return err
	}
	if doc.Id == "" {
		return fmt.Errorf("document in %s has no id", doc.Collection)
	}
	if !json.Valid(doc.Body) {
		return fmt.Errorf("document %s/%s has an invalid body", doc.Collection, doc.Id)
	}

	log.WithFields(log.Fields{
		"collection": doc.Collection,
		"id":         doc.Id,
		"created_at": doc.CreatedAt.Format(time.RFC3339),
	}).Debug("Creating document")

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto(table).
		Cols("id", "created_at", "indexed_at", "body").
		Values(doc.Id, doc.CreatedAt.UnixMilli(), time.Now().UnixMilli(), string(doc.Body))
	stmt, args := ib.Build()

	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func deleteDocument(ctx context.Context, db *sql.DB, collection string, id string) error {
	table, err := tableFor(query.Category(collection))
	if err != nil {
		return err
	}

	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom(table).Where(del.Equal("id", id))
	stmt, args := del.Build()

	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

func upsertProfile(ctx context.Context, db *sql.DB, profile models.Profile) error {
	if profile.UserId == "" {
		return fmt.Errorf("profile has no user id")
	}
	favorites, err := json.Marshal(nonNil(profile.FavoriteDeities))
	if err != nil {
		return err
	}
	interests, err := json.Marshal(nonNil(profile.Interests))
	if err != nil {
		return err
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto("profiles").
		Cols("user_id", "favorite_deities", "interests").
		Values(profile.UserId, string(favorites), string(interests))
	stmt, args := ib.Build()

	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func addFollow(ctx context.Context, db *sql.DB, follow models.Follow) error {
	if follow.FollowerId == "" || follow.FolloweeId == "" {
		return fmt.Errorf("follow edge is missing an endpoint")
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("follows").
		Cols("follower_id", "followee_id").
		Values(follow.FollowerId, follow.FolloweeId)
	stmt, args := ib.Build()

	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
