package fever

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"kestrel/reader/internal/storage"
)

// readActionOrder fixes the evaluation order when one call names
// several read actions. The source protocol leaves this ambiguous and
// real clients assume different orders; evaluating every present flag
// in this sequence and merging the results into one object is our
// documented compatibility choice.
var readActionOrder = []string{
	"groups",
	"feeds",
	"favicons",
	"items",
	"links",
	"unread_item_ids",
	"saved_item_ids",
}

// Handler serves the single sync endpoint. Writes apply before reads
// within one call; unknown action flags are ignored; failures degrade
// to protocol-legal payloads because naive clients only special-case
// unparseable bodies, not status codes.
type Handler struct {
	repo   storage.Repository
	creds  *CredentialStore
	recent *RecentMarks
	now    func() time.Time
}

// NewHandler creates the sync endpoint handler.
func NewHandler(repo storage.Repository, creds *CredentialStore) *Handler {
	return &Handler{
		repo:   repo,
		creds:  creds,
		recent: NewRecentMarks(0, 0),
		now:    time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	authenticated := false
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Recovered panic in sync handler")
			e := NewEnvelope(authenticated)
			e.SetError("internal error")
			writeJSON(w, http.StatusOK, e, log)
		}
	}()

	p, err := parseParams(r)
	if err != nil {
		// The one condition allowed a non-success status: the body
		// could not be parsed at all, not even to find the credential.
		log.Warn().Err(err).Msg("Unparseable request body")
		e := NewEnvelope(false)
		e.SetError("unparseable request body")
		writeJSON(w, http.StatusBadRequest, e, log)
		return
	}

	ctx := r.Context()
	userID, ok := h.creds.Verify(ctx, p.value("api_key"))
	e := NewEnvelope(ok)
	if !ok {
		writeJSON(w, http.StatusOK, e, log)
		return
	}
	authenticated = true

	if ts, err := h.repo.LastRefreshedAt(ctx); err != nil {
		h.degrade(e, log, "last-refreshed lookup", err)
	} else {
		e.SetLastRefreshed(ts)
	}

	// Writes run before any read is computed, so the reads in the same
	// call observe the post-write state.
	if strings.TrimSpace(p.value("mark")) != "" {
		if err := h.applyMark(ctx, userID, p, e); err != nil {
			h.degrade(e, log, "mark", err)
		}
	}
	if p.flagSet("unread_recently_read") {
		if err := h.applyRevert(ctx, userID, e); err != nil {
			h.degrade(e, log, "revert", err)
		}
	}

	for _, action := range readActionOrder {
		if !p.has(action) {
			continue
		}
		if err := h.runRead(ctx, action, p, e); err != nil {
			h.degrade(e, log, action, err)
		}
	}

	writeJSON(w, http.StatusOK, e, log)
}

func (h *Handler) runRead(ctx context.Context, action string, p params, e *Envelope) error {
	switch action {
	case "groups":
		return h.readGroups(ctx, e)
	case "feeds":
		return h.readFeeds(ctx, e)
	case "favicons":
		return h.readFavicons(ctx, e)
	case "items":
		return h.readItems(ctx, p, e)
	case "links":
		return h.readLinks(ctx, p, e)
	case "unread_item_ids":
		return h.readUnreadIDs(ctx, e)
	case "saved_item_ids":
		return h.readSavedIDs(ctx, e)
	}
	return nil
}

// degrade records a failed action as a diagnostic on an otherwise
// well-formed payload. Unrelated actions in the same call proceed; the
// protocol has no server-driven retry signal, so recovery is always
// client-initiated.
func (h *Handler) degrade(e *Envelope, log *zerolog.Logger, action string, err error) {
	log.Error().Err(err).Str("action", action).Msg("Sync action failed")
	e.SetError("temporarily unavailable")
}

func writeJSON(w http.ResponseWriter, status int, e *Envelope, log *zerolog.Logger) {
	jsonBytes, err := json.Marshal(e)
	if err != nil {
		// A server-fault status must never leave this layer; fall back
		// to the bare base payload.
		log.Error().Err(err).Msg("Error marshaling JSON response")
		jsonBytes = []byte(`{"api_version":3,"auth":0}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
	}
}
