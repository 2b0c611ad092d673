package fever

import (
	"sort"
	"strconv"
	"strings"
)

// APIVersion is the protocol revision advertised in every response.
const APIVersion = 3

// Payload element types. Wire field names and value types are fixed by
// deployed client parsers: booleans are 0/1 integers, id lists are
// comma-joined decimal strings, timestamps are unix seconds.

type Group struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type FeedsGroup struct {
	GroupID int64  `json:"group_id"`
	FeedIDs string `json:"feed_ids"`
}

type Feed struct {
	ID                int64  `json:"id"`
	FaviconID         int64  `json:"favicon_id"`
	Title             string `json:"title"`
	URL               string `json:"url"`
	SiteURL           string `json:"site_url"`
	IsSpark           int    `json:"is_spark"`
	LastUpdatedOnTime int64  `json:"last_updated_on_time"`
}

type Favicon struct {
	ID   int64  `json:"id"`
	Data string `json:"data"`
}

type Item struct {
	ID            int64  `json:"id"`
	FeedID        int64  `json:"feed_id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	HTML          string `json:"html"`
	URL           string `json:"url"`
	IsSaved       int    `json:"is_saved"`
	IsRead        int    `json:"is_read"`
	CreatedOnTime int64  `json:"created_on_time"`
}

type Link struct {
	ID          int64   `json:"id"`
	FeedID      int64   `json:"feed_id"`
	ItemID      int64   `json:"item_id"`
	Temperature float64 `json:"temperature"`
	IsItem      int     `json:"is_item"`
	IsLocal     int     `json:"is_local"`
	IsSaved     int     `json:"is_saved"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	ItemIDs     string  `json:"item_ids"`
}

// Envelope is the single merged response object. api_version and auth
// are always JSON integers; every other field appears only when the
// corresponding action ran, and id-list fields render as an explicit
// empty string rather than null when the set is empty.
type Envelope struct {
	APIVersion    int           `json:"api_version"`
	Auth          int           `json:"auth"`
	LastRefreshed *int64        `json:"last_refreshed_on_time,omitempty"`
	Groups        *[]Group      `json:"groups,omitempty"`
	Feeds         *[]Feed       `json:"feeds,omitempty"`
	FeedsGroups   *[]FeedsGroup `json:"feeds_groups,omitempty"`
	Favicons      *[]Favicon    `json:"favicons,omitempty"`
	TotalItems    *int64        `json:"total_items,omitempty"`
	Items         *[]Item       `json:"items,omitempty"`
	Links         *[]Link       `json:"links,omitempty"`
	UnreadItemIDs *string       `json:"unread_item_ids,omitempty"`
	SavedItemIDs  *string       `json:"saved_item_ids,omitempty"`
	UpdatedCount  *int64        `json:"updated_count,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// NewEnvelope builds the base payload for the given authentication
// outcome.
func NewEnvelope(authenticated bool) *Envelope {
	auth := 0
	if authenticated {
		auth = 1
	}
	return &Envelope{APIVersion: APIVersion, Auth: auth}
}

func (e *Envelope) SetLastRefreshed(ts int64) {
	e.LastRefreshed = &ts
}

func (e *Envelope) SetUnreadItemIDs(ids []int64) {
	csv := JoinIDs(ids)
	e.UnreadItemIDs = &csv
}

func (e *Envelope) SetSavedItemIDs(ids []int64) {
	csv := JoinIDs(ids)
	e.SavedItemIDs = &csv
}

// AddUpdatedCount accumulates the changed-row count across the write
// directives of one call.
func (e *Envelope) AddUpdatedCount(n int64) {
	if e.UpdatedCount == nil {
		e.UpdatedCount = new(int64)
	}
	*e.UpdatedCount += n
}

// SetError records a diagnostic without changing the transport status;
// the first diagnostic of a call wins.
func (e *Envelope) SetError(msg string) {
	if e.Error == "" {
		e.Error = msg
	}
}

// JoinIDs renders an id set as the wire id-list: ascending,
// comma-joined decimal integers, empty string for the empty set.
func JoinIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
