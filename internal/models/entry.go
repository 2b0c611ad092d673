package models

import "database/sql"

// Entry represents a row in the 'entries' table.
//
// IDs are assigned by SQLite's AUTOINCREMENT, so they increase
// strictly with ingestion order and are never reused. CreatedOnTime is
// unix seconds, as expected on the sync wire.
type Entry struct {
	ID            int64          `db:"id"`
	FeedID        int64          `db:"feed_id"`
	URL           string         `db:"url"`
	Title         string         `db:"title"`
	Author        sql.NullString `db:"author"`
	Content       string         `db:"content"`
	CreatedOnTime int64          `db:"created_on_time"`
	IsRead        bool           `db:"is_read"`
	IsSaved       bool           `db:"is_saved"`
	CreatedAt     int64          `db:"created_at"`
}
