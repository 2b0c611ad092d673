// Package importfeeds loads subscriptions from an OPML file into the
// content store.
package importfeeds

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"kestrel/reader/internal/opml"
	"kestrel/reader/internal/storage"
)

// Importer loads OPML subscription lists into the store.
type Importer struct {
	repo storage.Repository
}

// NewImporter creates a new importer instance.
func NewImporter(repo storage.Repository) *Importer {
	return &Importer{repo: repo}
}

// ImportFeeds reads the OPML file at path and creates the folders and
// feeds it describes. Feeds already present (by URL) are left alone.
func (i *Importer) ImportFeeds(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open OPML file: %w", err)
	}
	defer f.Close()

	entries, err := opml.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse OPML file: %w", err)
	}

	folderIDs := make(map[string]int64)
	imported := 0
	for _, entry := range entries {
		if entry.URL == "" {
			continue
		}

		var folderID *int64
		if entry.Folder != "" {
			id, ok := folderIDs[entry.Folder]
			if !ok {
				id, err = i.repo.GetOrCreateFolder(ctx, entry.Folder)
				if err != nil {
					return fmt.Errorf("failed to create folder %q: %w", entry.Folder, err)
				}
				folderIDs[entry.Folder] = id
			}
			folderID = &id
		}

		_, isNew, err := i.repo.GetOrCreateFeed(ctx, folderID, entry.Title, entry.URL, entry.SiteURL)
		if err != nil {
			log.Error().Err(err).Str("url", entry.URL).Msg("Failed to create feed")
			continue
		}
		if isNew {
			imported++
		}
	}

	log.Info().
		Int("imported", imported).
		Int("total", len(entries)).
		Msg("OPML import finished")
	return nil
}
