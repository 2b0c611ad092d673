package models

import "database/sql"

// Feed represents a row in the 'feeds' table
type Feed struct {
	ID            int64          `db:"id"`
	FolderID      sql.NullInt64  `db:"folder_id"`
	Title         string         `db:"title"`
	URL           string         `db:"url"`
	SiteURL       string         `db:"site_url"`
	FaviconID     sql.NullInt64  `db:"favicon_id"`
	Status        string         `db:"status"`
	FailuresCount int            `db:"failures_count"`
	LastError     sql.NullString `db:"last_error"`
	LastFetchedAt int64          `db:"last_fetched_at"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
}

// Folder represents a row in the 'folders' table
type Folder struct {
	ID        int64  `db:"id"`
	Title     string `db:"title"`
	CreatedAt int64  `db:"created_at"`
}
