package fever

import (
	"context"
	"strings"
)

// The save-on and save-off spellings clients disagree on; each set
// maps to one effect.
var (
	saveOnStates  = map[string]bool{"saved": true, "starred": true, "fav": true}
	saveOffStates = map[string]bool{"unsaved": true, "unstarred": true, "unfav": true}
)

// applyMark executes one mark directive. Malformed directives (unknown
// target kind, inconsistent state) degrade to a no-op with a
// diagnostic; ids that do not exist are silently skipped by the store.
// Every variant appends updated_count and the resulting full unread or
// saved id list so clients can reconcile without another round trip.
func (h *Handler) applyMark(ctx context.Context, userID int64, p params, e *Envelope) error {
	target := strings.ToLower(strings.TrimSpace(p.value("mark")))
	state := strings.ToLower(strings.TrimSpace(p.value("as")))
	before, _ := parseID(p.value("before"))

	switch target {
	case "item":
		switch {
		case state == "read" || state == "unread":
			ids := parsePositiveIDs(p.value("id"))
			changed, err := h.repo.MarkEntriesRead(ctx, ids, state == "read")
			if err != nil {
				return err
			}
			if state == "read" {
				h.recent.Record(userID, changed)
			}
			e.AddUpdatedCount(int64(len(changed)))
			return h.readUnreadIDs(ctx, e)

		case saveOnStates[state] || saveOffStates[state]:
			ids := parsePositiveIDs(p.value("id"))
			changed, err := h.repo.MarkEntriesSaved(ctx, ids, saveOnStates[state])
			if err != nil {
				return err
			}
			e.AddUpdatedCount(changed)
			return h.readSavedIDs(ctx, e)
		}

	case "feed":
		if state != "read" {
			break
		}
		feedIDs := parsePositiveIDs(p.value("id"))
		changed, err := h.repo.MarkFeedEntriesRead(ctx, feedIDs, before)
		if err != nil {
			return err
		}
		h.recent.Record(userID, changed)
		e.AddUpdatedCount(int64(len(changed)))
		return h.readUnreadIDs(ctx, e)

	case "group":
		if state != "read" {
			break
		}
		feedIDs, err := h.groupFeedIDs(ctx, parseSignedIDs(p.value("id")))
		if err != nil {
			return err
		}
		changed, err := h.repo.MarkFeedEntriesRead(ctx, feedIDs, before)
		if err != nil {
			return err
		}
		h.recent.Record(userID, changed)
		e.AddUpdatedCount(int64(len(changed)))
		return h.readUnreadIDs(ctx, e)
	}

	e.SetError("unsupported mark directive")
	e.AddUpdatedCount(0)
	return nil
}

// groupFeedIDs resolves and deduplicates feed ids across the named
// groups.
func (h *Handler) groupFeedIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var feedIDs []int64
	for _, groupID := range groupIDs {
		ids, err := h.repo.FeedIDsForGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				feedIDs = append(feedIDs, id)
			}
		}
	}
	return feedIDs, nil
}

// applyRevert undoes the caller's most recent mark-read batch. With no
// recorded batch it is a successful no-op, never an error.
func (h *Handler) applyRevert(ctx context.Context, userID int64, e *Envelope) error {
	ids := h.recent.Take(userID)
	changed, err := h.repo.MarkEntriesRead(ctx, ids, false)
	if err != nil {
		return err
	}
	e.AddUpdatedCount(int64(len(changed)))
	return h.readUnreadIDs(ctx, e)
}
