package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	sqlbuilder "github.com/huandu/go-sqlbuilder"

	"templefeed/models"
	"templefeed/query"
)

// ErrNotFound is returned when a referenced document does not exist
var ErrNotFound = errors.New("not found")

// Reader is the read-only view of the document store. The feed never writes
// through it.
type Reader struct {
	db *sql.DB
}

func NewReader(database string) (*Reader, error) {
	db, err := readConnection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", database, err)
	}
	return &Reader{db: db}, nil
}

func (reader *Reader) Close() error {
	return reader.db.Close()
}

func tableFor(category query.Category) (string, error) {
	for _, c := range query.AllCategories {
		if c == category {
			return string(c), nil
		}
	}
	return "", fmt.Errorf("unknown category %q", category)
}

// FetchCategory returns up to limit documents of the category ordered by
// recency, newest first. A non-zero before only returns older documents.
func (reader *Reader) FetchCategory(ctx context.Context, category query.Category, limit int, before time.Time) ([]models.Document, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "created_at", "body").From(table)
	if !before.IsZero() {
		sb.Where(sb.LessThan("created_at", before.UnixMilli()))
	}
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(limit)

	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	return reader.queryDocuments(ctx, string(category), stmt, args)
}

// RecentPosts returns the most recent posts without any ranking
func (reader *Reader) RecentPosts(ctx context.Context, limit int) ([]models.Document, error) {
	return reader.FetchCategory(ctx, query.Posts, limit, time.Time{})
}

// PostsSince returns posts created at or after since, oldest first
func (reader *Reader) PostsSince(ctx context.Context, since time.Time, limit int) ([]models.Document, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "created_at", "body").From(string(query.Posts))
	sb.Where(sb.GreaterEqualThan("created_at", since.UnixMilli()))
	sb.OrderBy("created_at ASC", "id ASC")
	sb.Limit(limit)

	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	return reader.queryDocuments(ctx, string(query.Posts), stmt, args)
}

// ResolveCursor returns the recency timestamp of a document
func (reader *Reader) ResolveCursor(ctx context.Context, category query.Category, docId string) (time.Time, error) {
	table, err := tableFor(category)
	if err != nil {
		return time.Time{}, err
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("created_at").From(table).Where(sb.Equal("id", docId))
	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var createdAt int64
	err = reader.db.QueryRowContext(ctx, stmt, args...).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query error: %w", err)
	}
	return time.UnixMilli(createdAt).UTC(), nil
}

// LatestPostTimestamp returns the creation time of the newest post, or the
// zero time when there are none
func (reader *Reader) LatestPostTimestamp(ctx context.Context) (time.Time, error) {
	var createdAt sql.NullInt64
	err := reader.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM posts").Scan(&createdAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("query error: %w", err)
	}
	if !createdAt.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(createdAt.Int64).UTC(), nil
}

// GetProfile returns the profile of a user or ErrNotFound
func (reader *Reader) GetProfile(ctx context.Context, userId string) (*models.Profile, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("favorite_deities", "interests").From("profiles").Where(sb.Equal("user_id", userId))
	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var favorites, interests string
	err := reader.db.QueryRowContext(ctx, stmt, args...).Scan(&favorites, &interests)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	profile := &models.Profile{UserId: userId}
	if err := json.Unmarshal([]byte(favorites), &profile.FavoriteDeities); err != nil {
		return nil, fmt.Errorf("decode favorite deities: %w", err)
	}
	if err := json.Unmarshal([]byte(interests), &profile.Interests); err != nil {
		return nil, fmt.Errorf("decode interests: %w", err)
	}
	return profile, nil
}

// GetFollowing returns the ids of the users followed by userId
func (reader *Reader) GetFollowing(ctx context.Context, userId string) ([]string, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("followee_id").From("follows").Where(sb.Equal("follower_id", userId))
	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := reader.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var following []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		following = append(following, id)
	}
	return following, rows.Err()
}

func (reader *Reader) queryDocuments(ctx context.Context, collection string, stmt string, args []interface{}) ([]models.Document, error) {
	rows, err := reader.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var (
			doc       models.Document
			createdAt int64
			body      string
		)
		if err := rows.Scan(&doc.Id, &createdAt, &body); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		doc.Collection = collection
		doc.CreatedAt = time.UnixMilli(createdAt).UTC()
		doc.Body = []byte(body)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
