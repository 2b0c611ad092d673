package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"kestrel/reader/internal/database"
	"kestrel/reader/internal/models"
)

// EntryFilter selects at most one filtering mode for ListEntries.
// WithIDs takes precedence over SinceID, which takes precedence over
// MaxID. SinceID pages ascending; MaxID and the unfiltered case page
// descending (newest first).
type EntryFilter struct {
	WithIDs []int64
	SinceID int64
	MaxID   int64
	Limit   int
}

// Repository defines the content-store operations the sync adapter,
// the fetch pipeline and the import command run against.
type Repository interface {
	ListFolders(ctx context.Context) ([]models.Folder, error)
	ListFeeds(ctx context.Context) ([]models.Feed, error)
	ListFavicons(ctx context.Context) ([]models.Favicon, error)
	CountEntries(ctx context.Context) (int64, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]models.Entry, error)
	ListEntriesInWindow(ctx context.Context, start, end int64, limit, offset int) ([]models.Entry, error)
	UnreadIDs(ctx context.Context) ([]int64, error)
	SavedIDs(ctx context.Context) ([]int64, error)
	LastRefreshedAt(ctx context.Context) (int64, error)

	MarkEntriesRead(ctx context.Context, ids []int64, read bool) ([]int64, error)
	MarkFeedEntriesRead(ctx context.Context, feedIDs []int64, before int64) ([]int64, error)
	MarkEntriesSaved(ctx context.Context, ids []int64, saved bool) (int64, error)
	FeedIDsForGroup(ctx context.Context, groupID int64) ([]int64, error)

	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	ListActiveFeeds(ctx context.Context) ([]models.Feed, error)
	GetOrCreateFolder(ctx context.Context, title string) (int64, error)
	GetOrCreateFeed(ctx context.Context, folderID *int64, title, url, siteURL string) (int64, bool, error)
	InsertEntries(ctx context.Context, feedID int64, entries []models.Entry) (int64, error)
	UpdateFeedStatus(ctx context.Context, feed *models.Feed) error
	SaveFavicon(ctx context.Context, feedID int64, mediaType string, data []byte) error
}

// sqlxRepository implements Repository using sqlx.
type sqlxRepository struct {
	db *database.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *database.DB) Repository {
	return &sqlxRepository{db: db}
}

func (r *sqlxRepository) ListFolders(ctx context.Context) ([]models.Folder, error) {
	folders := []models.Folder{}
	err := r.db.SelectContext(ctx, &folders, `SELECT * FROM folders ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return folders, nil
}

func (r *sqlxRepository) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	feeds := []models.Feed{}
	err := r.db.SelectContext(ctx, &feeds, `SELECT * FROM feeds ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return feeds, nil
}

func (r *sqlxRepository) ListFavicons(ctx context.Context) ([]models.Favicon, error) {
	favicons := []models.Favicon{}
	err := r.db.SelectContext(ctx, &favicons, `SELECT * FROM favicons ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return favicons, nil
}

func (r *sqlxRepository) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("database query failed: %w", err)
	}
	return count, nil
}

// ListEntries retrieves one page of entries according to the filter.
func (r *sqlxRepository) ListEntries(ctx context.Context, filter EntryFilter) ([]models.Entry, error) {
	if filter.Limit <= 0 {
		return []models.Entry{}, nil
	}

	entries := []models.Entry{}
	switch {
	case len(filter.WithIDs) > 0:
		ids := filter.WithIDs
		if len(ids) > filter.Limit {
			ids = ids[:filter.Limit]
		}
		query, args, err := sqlx.In(
			`SELECT * FROM entries WHERE id IN (?) ORDER BY id ASC`, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to build id-list query: %w", err)
		}
		if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("database query failed: %w", err)
		}

	case filter.SinceID > 0:
		err := r.db.SelectContext(ctx, &entries,
			`SELECT * FROM entries WHERE id > ? ORDER BY id ASC LIMIT ?`,
			filter.SinceID, filter.Limit)
		if err != nil {
			return nil, fmt.Errorf("database query failed: %w", err)
		}

	case filter.MaxID > 0:
		err := r.db.SelectContext(ctx, &entries,
			`SELECT * FROM entries WHERE id <= ? ORDER BY id DESC LIMIT ?`,
			filter.MaxID, filter.Limit)
		if err != nil {
			return nil, fmt.Errorf("database query failed: %w", err)
		}

	default:
		err := r.db.SelectContext(ctx, &entries,
			`SELECT * FROM entries ORDER BY id DESC LIMIT ?`, filter.Limit)
		if err != nil {
			return nil, fmt.Errorf("database query failed: %w", err)
		}
	}

	return entries, nil
}

// ListEntriesInWindow retrieves entries published inside [start, end],
// newest first, for the hot-links listing. Offset paging is fine here:
// this is not a hot path.
func (r *sqlxRepository) ListEntriesInWindow(ctx context.Context, start, end int64, limit, offset int) ([]models.Entry, error) {
	entries := []models.Entry{}
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM entries
		 WHERE created_on_time >= ? AND created_on_time <= ?
		 ORDER BY created_on_time DESC, id DESC
		 LIMIT ? OFFSET ?`,
		start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return entries, nil
}

// UnreadIDs returns every unread entry id, ascending. Served by the
// partial index on is_read = 0.
func (r *sqlxRepository) UnreadIDs(ctx context.Context) ([]int64, error) {
	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM entries WHERE is_read = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return ids, nil
}

// SavedIDs returns every saved entry id, ascending. Served by the
// partial index on is_saved = 1.
func (r *sqlxRepository) SavedIDs(ctx context.Context) ([]int64, error) {
	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM entries WHERE is_saved = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return ids, nil
}

// LastRefreshedAt returns the most recent feed fetch time in unix
// seconds, 0 when no feed has ever been fetched.
func (r *sqlxRepository) LastRefreshedAt(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	err := r.db.GetContext(ctx, &last, `SELECT MAX(last_fetched_at) FROM feeds`)
	if err != nil {
		return 0, fmt.Errorf("database query failed: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return last.Int64, nil
}

// MarkEntriesRead flips the read flag for the given ids inside a
// single transaction and returns the ids whose state actually changed.
// Unknown ids and already-matching rows are skipped, not errors.
func (r *sqlxRepository) MarkEntriesRead(ctx context.Context, ids []int64, read bool) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	target := 0
	if read {
		target = 1
	}

	query, args, err := sqlx.In(
		`SELECT id FROM entries WHERE id IN (?) AND is_read != ?`, ids, target)
	if err != nil {
		return nil, fmt.Errorf("failed to build mark query: %w", err)
	}
	changed := []int64{}
	if err := tx.SelectContext(ctx, &changed, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if len(changed) == 0 {
		return nil, tx.Commit()
	}

	query, args, err = sqlx.In(`UPDATE entries SET is_read = ? WHERE id IN (?)`, target, changed)
	if err != nil {
		return nil, fmt.Errorf("failed to build mark update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("database update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return changed, nil
}

// MarkFeedEntriesRead marks every unread entry of the given feeds with
// created_on_time at or before the cutoff as read. A cutoff of 0 means
// no cutoff. Returns the ids that changed.
func (r *sqlxRepository) MarkFeedEntriesRead(ctx context.Context, feedIDs []int64, before int64) ([]int64, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sel := `SELECT id FROM entries WHERE feed_id IN (?) AND is_read = 0`
	var (
		query string
		args  []any
	)
	if before > 0 {
		query, args, err = sqlx.In(sel+` AND created_on_time <= ?`, feedIDs, before)
	} else {
		query, args, err = sqlx.In(sel, feedIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build mark query: %w", err)
	}

	changed := []int64{}
	if err := tx.SelectContext(ctx, &changed, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if len(changed) == 0 {
		return nil, tx.Commit()
	}

	query, args, err = sqlx.In(`UPDATE entries SET is_read = 1 WHERE id IN (?)`, changed)
	if err != nil {
		return nil, fmt.Errorf("failed to build mark update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("database update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return changed, nil
}

// MarkEntriesSaved flips the saved flag for the given ids and returns
// the number of rows that changed. Repeating the same mark is a no-op.
func (r *sqlxRepository) MarkEntriesSaved(ctx context.Context, ids []int64, saved bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	target := 0
	if saved {
		target = 1
	}

	query, args, err := sqlx.In(
		`UPDATE entries SET is_saved = ? WHERE id IN (?) AND is_saved != ?`,
		target, ids, target)
	if err != nil {
		return 0, fmt.Errorf("failed to build mark update: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("database update failed: %w", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return changed, nil
}

// FeedIDsForGroup resolves a group id from the sync protocol to feed
// ids. Zero means every feed in the system. Some clients send -1 for a
// virtual ungrouped-feeds group; servers of this protocol have been
// observed to mark nothing for it, so negative ids resolve to no feeds
// until real client traces settle the intent.
func (r *sqlxRepository) FeedIDsForGroup(ctx context.Context, groupID int64) ([]int64, error) {
	if groupID < 0 {
		return nil, nil
	}

	ids := []int64{}
	var err error
	if groupID == 0 {
		err = r.db.SelectContext(ctx, &ids, `SELECT id FROM feeds ORDER BY id ASC`)
	} else {
		err = r.db.SelectContext(ctx, &ids,
			`SELECT id FROM feeds WHERE folder_id = ? ORDER BY id ASC`, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return ids, nil
}

// Setting returns the stored value for key, or the empty string when
// the key has never been set.
func (r *sqlxRepository) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("database query failed: %w", err)
	}
	return value, nil
}

func (r *sqlxRepository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("database update failed: %w", err)
	}
	return nil
}

func (r *sqlxRepository) ListActiveFeeds(ctx context.Context) ([]models.Feed, error) {
	feeds := []models.Feed{}
	err := r.db.SelectContext(ctx, &feeds,
		`SELECT * FROM feeds WHERE status = 'active' ORDER BY last_fetched_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return feeds, nil
}

func (r *sqlxRepository) GetOrCreateFolder(ctx context.Context, title string) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `SELECT id FROM folders WHERE title = ?`, title)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("database query failed: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO folders (title) VALUES (?)`, title)
	if err != nil {
		return 0, fmt.Errorf("failed to insert folder: %w", err)
	}
	return res.LastInsertId()
}

// GetOrCreateFeed returns the feed id for url, creating the feed when
// it does not exist yet. The second return reports whether a new row
// was created.
func (r *sqlxRepository) GetOrCreateFeed(ctx context.Context, folderID *int64, title, url, siteURL string) (int64, bool, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `SELECT id FROM feeds WHERE url = ?`, url)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("database query failed: %w", err)
	}

	var folder sql.NullInt64
	if folderID != nil {
		folder = sql.NullInt64{Int64: *folderID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO feeds (folder_id, title, url, site_url) VALUES (?, ?, ?, ?)`,
		folder, title, url, siteURL)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert feed: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get inserted feed id: %w", err)
	}
	return id, true, nil
}

// InsertEntries inserts fetched entries for one feed in a single
// transaction, suppressing duplicates on (feed_id, url). Returns the
// number of rows actually inserted.
func (r *sqlxRepository) InsertEntries(ctx context.Context, feedID int64, entries []models.Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO entries (feed_id, url, title, author, content, created_on_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, url) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, entry := range entries {
		res, err := stmt.ExecContext(ctx,
			feedID, entry.URL, entry.Title, entry.Author, entry.Content, entry.CreatedOnTime)
		if err != nil {
			return 0, fmt.Errorf("failed to insert entry %s: %w", entry.URL, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected for %s: %w", entry.URL, err)
		}
		inserted += rows
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// UpdateFeedStatus persists fetch bookkeeping for one feed.
func (r *sqlxRepository) UpdateFeedStatus(ctx context.Context, feed *models.Feed) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET status = ?, failures_count = ?, last_error = ?, last_fetched_at = ?, updated_at = ?
		WHERE id = ?`,
		feed.Status, feed.FailuresCount, feed.LastError, feed.LastFetchedAt, feed.UpdatedAt, feed.ID)
	if err != nil {
		return fmt.Errorf("failed to update feed status: %w", err)
	}
	return nil
}

// SaveFavicon stores (or replaces) the cached icon for a feed and
// points the feed's favicon_id at it, in one transaction.
func (r *sqlxRepository) SaveFavicon(ctx context.Context, feedID int64, mediaType string, data []byte) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO favicons (feed_id, media_type, data) VALUES (?, ?, ?)
		ON CONFLICT(feed_id) DO UPDATE SET media_type = excluded.media_type, data = excluded.data`,
		feedID, mediaType, data)
	if err != nil {
		return fmt.Errorf("failed to insert favicon: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE feeds SET favicon_id = (SELECT id FROM favicons WHERE feed_id = ?) WHERE id = ?`,
		feedID, feedID)
	if err != nil {
		return fmt.Errorf("failed to link favicon: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
