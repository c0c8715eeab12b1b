package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"templefeed/query"
)

// Tidy removes documents that are older than maxAge from every collection
func Tidy(ctx context.Context, database string, maxAge time.Duration) (int64, error) {
	db, err := connection(database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return tidy(ctx, db, time.Now().Add(-maxAge))
}

func tidy(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	var removed int64
	for _, category := range query.AllCategories {
		deleteDocs := sb.SQLite.NewDeleteBuilder()
		stmt, args := deleteDocs.DeleteFrom(string(category)).
			Where(deleteDocs.LessEqualThan("created_at", cutoff.UnixMilli())).
			Build()

		res, err := db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return removed, fmt.Errorf("tidy %s: %w", category, err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			removed += n
		}
	}

	log.WithFields(log.Fields{
		"cutoff":  cutoff.Format(time.RFC3339),
		"removed": removed,
	}).Info("Tidied database")

	return removed, nil
}
