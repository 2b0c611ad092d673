package fever

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"kestrel/reader/internal/models"
	"kestrel/reader/internal/storage"
)

const (
	// ItemPageLimit bounds every items page and caps explicit id
	// lists; ids beyond the cap are dropped, not errors.
	ItemPageLimit = 50

	linkPageLimit        = 50
	defaultLinkRangeDays = 7
	daySeconds           = 24 * 60 * 60
)

func (h *Handler) readGroups(ctx context.Context, e *Envelope) error {
	folders, err := h.repo.ListFolders(ctx)
	if err != nil {
		return err
	}
	feeds, err := h.repo.ListFeeds(ctx)
	if err != nil {
		return err
	}

	groups := make([]Group, 0, len(folders))
	for _, folder := range folders {
		groups = append(groups, Group{ID: folder.ID, Title: folder.Title})
	}
	feedsGroups := buildFeedsGroups(folders, feeds)

	e.Groups = &groups
	e.FeedsGroups = &feedsGroups
	return nil
}

func (h *Handler) readFeeds(ctx context.Context, e *Envelope) error {
	folders, err := h.repo.ListFolders(ctx)
	if err != nil {
		return err
	}
	feeds, err := h.repo.ListFeeds(ctx)
	if err != nil {
		return err
	}

	payload := make([]Feed, 0, len(feeds))
	for _, feed := range feeds {
		var faviconID int64
		if feed.FaviconID.Valid {
			faviconID = feed.FaviconID.Int64
		}
		payload = append(payload, Feed{
			ID:                feed.ID,
			FaviconID:         faviconID,
			Title:             feed.Title,
			URL:               feed.URL,
			SiteURL:           feed.SiteURL,
			IsSpark:           0,
			LastUpdatedOnTime: feed.LastFetchedAt,
		})
	}
	feedsGroups := buildFeedsGroups(folders, feeds)

	e.Feeds = &payload
	e.FeedsGroups = &feedsGroups
	return nil
}

// buildFeedsGroups derives the folder membership association list.
// FeedIDs is the ascending comma-joined id list, empty string for a
// folder without feeds.
func buildFeedsGroups(folders []models.Folder, feeds []models.Feed) []FeedsGroup {
	byFolder := make(map[int64][]int64)
	for _, feed := range feeds {
		if !feed.FolderID.Valid {
			continue
		}
		byFolder[feed.FolderID.Int64] = append(byFolder[feed.FolderID.Int64], feed.ID)
	}

	feedsGroups := make([]FeedsGroup, 0, len(folders))
	for _, folder := range folders {
		feedsGroups = append(feedsGroups, FeedsGroup{
			GroupID: folder.ID,
			FeedIDs: JoinIDs(byFolder[folder.ID]),
		})
	}
	return feedsGroups
}

// readFavicons emits one row per feed that actually has a cached icon.
// Data is an embeddable "mime;base64,payload" string.
func (h *Handler) readFavicons(ctx context.Context, e *Envelope) error {
	favicons, err := h.repo.ListFavicons(ctx)
	if err != nil {
		return err
	}

	payload := make([]Favicon, 0, len(favicons))
	for _, favicon := range favicons {
		if len(favicon.Data) == 0 {
			continue
		}
		payload = append(payload, Favicon{
			ID: favicon.ID,
			Data: fmt.Sprintf("%s;base64,%s",
				favicon.MediaType, base64.StdEncoding.EncodeToString(favicon.Data)),
		})
	}

	e.Favicons = &payload
	return nil
}

// readItems serves one page of entries. At most one filter applies,
// in priority order: explicit id list, since cursor, max cursor.
// total_items counts the whole store independent of the page filter.
func (h *Handler) readItems(ctx context.Context, p params, e *Envelope) error {
	filter := storage.EntryFilter{Limit: ItemPageLimit}
	if raw := p.value("with_ids"); raw != "" {
		filter.WithIDs = parsePositiveIDs(raw)
	}
	if len(filter.WithIDs) == 0 {
		if sinceID, ok := parseID(p.value("since_id")); ok && sinceID > 0 {
			filter.SinceID = sinceID
		} else if maxID, ok := parseID(p.value("max_id")); ok && maxID > 0 {
			filter.MaxID = maxID
		}
	}

	total, err := h.repo.CountEntries(ctx)
	if err != nil {
		return err
	}
	entries, err := h.repo.ListEntries(ctx, filter)
	if err != nil {
		return err
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		items = append(items, itemFromEntry(entry))
	}

	e.TotalItems = &total
	e.Items = &items
	return nil
}

func itemFromEntry(entry models.Entry) Item {
	return Item{
		ID:            entry.ID,
		FeedID:        entry.FeedID,
		Title:         entry.Title,
		Author:        entry.Author.String,
		HTML:          entry.Content,
		URL:           entry.URL,
		IsSaved:       boolToInt(entry.IsSaved),
		IsRead:        boolToInt(entry.IsRead),
		CreatedOnTime: entry.CreatedOnTime,
	}
}

// readLinks serves the auxiliary hot-links listing over an
// offset/range day window with page-based paging.
func (h *Handler) readLinks(ctx context.Context, p params, e *Envelope) error {
	offsetDays := 0
	if v, ok := parseID(p.value("offset")); ok && v > 0 {
		offsetDays = int(v)
	}
	rangeDays := defaultLinkRangeDays
	if v, ok := parseID(p.value("range")); ok && v > 0 {
		rangeDays = int(v)
	}
	page := 1
	if v, ok := parseID(p.value("page")); ok && v > 1 {
		page = int(v)
	}

	windowEnd := h.now().Unix() - int64(offsetDays)*daySeconds
	windowStart := windowEnd - int64(rangeDays)*daySeconds
	entries, err := h.repo.ListEntriesInWindow(ctx, windowStart, windowEnd,
		linkPageLimit, (page-1)*linkPageLimit)
	if err != nil {
		return err
	}

	links := make([]Link, 0, len(entries))
	for _, entry := range entries {
		age := windowEnd - entry.CreatedOnTime
		if age < 1 {
			age = 1
		}
		links = append(links, Link{
			ID:          entry.ID,
			FeedID:      entry.FeedID,
			ItemID:      entry.ID,
			Temperature: linkTemperature(age),
			IsItem:      1,
			IsLocal:     1,
			IsSaved:     boolToInt(entry.IsSaved),
			Title:       entry.Title,
			URL:         entry.URL,
			ItemIDs:     fmt.Sprintf("%d", entry.ID),
		})
	}

	e.Links = &links
	return nil
}

// linkTemperature decays with entry age; the shape matches what link
//-capable clients expect for ranking, rounded to three decimals.
func linkTemperature(ageSeconds int64) float64 {
	return math.Round(100000.0/(float64(ageSeconds)+3600.0)*1000) / 1000
}

func (h *Handler) readUnreadIDs(ctx context.Context, e *Envelope) error {
	ids, err := h.repo.UnreadIDs(ctx)
	if err != nil {
		return err
	}
	e.SetUnreadItemIDs(ids)
	return nil
}

func (h *Handler) readSavedIDs(ctx context.Context, e *Envelope) error {
	ids, err := h.repo.SavedIDs(ctx)
	if err != nil {
		return err
	}
	e.SetSavedItemIDs(ids)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
