// Package ingest runs the feed-fetch pipeline that populates the
// content store the sync adapter serves.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reddot-watch/feedfetcher"
	"github.com/rs/zerolog/log"

	"kestrel/reader/internal/models"
	"kestrel/reader/internal/storage"
)

const (
	maxFeedFailures = 10

	faviconTimeout  = 10 * time.Second
	maxFaviconBytes = 512 << 10
)

// FeedProcessor handles parallel fetching of subscribed feeds.
type FeedProcessor struct {
	repo        storage.Repository
	fetcher     *feedfetcher.FeedFetcher
	icons       *http.Client
	WorkerCount int

	processed  atomic.Int64
	duplicates atomic.Int64
}

// NewFeedProcessor creates a feed processor over the content store.
func NewFeedProcessor(repo storage.Repository, workerCount int) (*FeedProcessor, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	fetcher := feedfetcher.NewFeedFetcher(feedfetcher.Config{
		UserAgent:            "KestrelReader/1.0",
		RequestTimeout:       15 * time.Second,
		MaxItems:             100,
		MaxHeadingLength:     200,
		MaxAge:               30 * 24 * time.Hour,
		FutureDriftTolerance: 12 * time.Hour,
	})

	return &FeedProcessor{
		repo:        repo,
		fetcher:     fetcher,
		icons:       &http.Client{Timeout: faviconTimeout},
		WorkerCount: workerCount,
	}, nil
}

// ProcessFeeds fetches every active feed in parallel. Each feed's new
// entries land in one transaction, so a crashed run never leaves a
// feed half-ingested.
func (p *FeedProcessor) ProcessFeeds(ctx context.Context) error {
	feeds, err := p.repo.ListActiveFeeds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load feeds: %w", err)
	}
	log.Info().Int("loaded_feeds", len(feeds)).Msg("Loaded active feeds to process")

	feedQueue := make(chan models.Feed, p.WorkerCount*2)

	var wg sync.WaitGroup
	for i := 0; i < p.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.feedWorker(ctx, feedQueue)
		}()
	}

feedLoop:
	for _, feed := range feeds {
		select {
		case feedQueue <- feed:
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("Context cancelled during feed queuing")
			break feedLoop
		}
	}
	close(feedQueue)

	wg.Wait()
	return ctx.Err()
}

func (p *FeedProcessor) feedWorker(ctx context.Context, feedQueue <-chan models.Feed) {
	for {
		select {
		case feed, ok := <-feedQueue:
			if !ok {
				return
			}
			p.processFeed(ctx, feed)
		case <-ctx.Done():
			return
		}
	}
}

// processFeed fetches one feed, ingests its items and records the
// fetch outcome on the feed row.
func (p *FeedProcessor) processFeed(ctx context.Context, feed models.Feed) {
	feedCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	log.Debug().Int64("feed_id", feed.ID).Str("url", feed.URL).Msg("Processing feed")

	items, fetchErr := p.fetcher.FetchAndProcess(feedCtx, feed.URL)

	now := time.Now().Unix()
	feed.UpdatedAt = now

	if fetchErr != nil {
		feed.FailuresCount++
		feed.LastError = sql.NullString{String: fetchErr.Error(), Valid: true}
		if feed.FailuresCount > maxFeedFailures {
			feed.Status = "failed"
		}
		if err := p.repo.UpdateFeedStatus(feedCtx, &feed); err != nil {
			log.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to update feed status")
		}
		log.Warn().Err(fetchErr).Int64("feed_id", feed.ID).Str("url", feed.URL).Msg("Feed fetch failed")
		return
	}

	feed.Status = "active"
	feed.FailuresCount = 0
	feed.LastError = sql.NullString{}
	feed.LastFetchedAt = now

	entries := make([]models.Entry, 0, len(items))
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		entries = append(entries, models.Entry{
			URL:           item.URL,
			Title:         item.Headline,
			Content:       item.Content,
			CreatedOnTime: item.PublishedAt.Unix(),
		})
	}

	inserted, err := p.repo.InsertEntries(feedCtx, feed.ID, entries)
	if err != nil {
		log.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to insert entries")
	} else {
		p.processed.Add(inserted)
		p.duplicates.Add(int64(len(entries)) - inserted)
		if inserted > 0 {
			log.Info().Int64("feed_id", feed.ID).Int64("new_entries", inserted).Msg("Feed processed")
		}
	}

	if err := p.repo.UpdateFeedStatus(feedCtx, &feed); err != nil {
		log.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to update feed status")
	}

	if !feed.FaviconID.Valid {
		p.fetchFavicon(feedCtx, feed)
	}
}

// fetchFavicon caches the site's favicon so favicon reads never fetch
// during a sync request. Failures are quietly retried on a later run.
func (p *FeedProcessor) fetchFavicon(ctx context.Context, feed models.Feed) {
	if feed.SiteURL == "" {
		return
	}
	base, err := url.Parse(feed.SiteURL)
	if err != nil || base.Host == "" {
		return
	}
	iconURL := base.ResolveReference(&url.URL{Path: "/favicon.ico"}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return
	}
	resp, err := p.icons.Do(req)
	if err != nil {
		log.Debug().Err(err).Int64("feed_id", feed.ID).Str("url", iconURL).Msg("Favicon fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFaviconBytes))
	if err != nil || len(data) == 0 {
		return
	}

	mediaType := "image/x-icon"
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mt != "" && mt != "text/html" {
		mediaType = mt
	}

	if err := p.repo.SaveFavicon(ctx, feed.ID, mediaType, data); err != nil {
		log.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to save favicon")
	}
}

// Stats returns ingestion statistics for this run.
func (p *FeedProcessor) Stats() (processed, duplicates int64) {
	processed = p.processed.Load()
	duplicates = p.duplicates.Load()
	return
}
