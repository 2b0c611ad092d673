package models

// Favicon represents a row in the 'favicons' table. Data is the raw
// image bytes as fetched; MediaType is the content type they were
// served with.
type Favicon struct {
	ID        int64  `db:"id"`
	FeedID    int64  `db:"feed_id"`
	MediaType string `db:"media_type"`
	Data      []byte `db:"data"`
	CreatedAt int64  `db:"created_at"`
}
