package opml

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/reader/internal/models"
)

const sampleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Tech">
      <outline text="Example" type="rss" xmlUrl="https://example.com/rss" htmlUrl="https://example.com"/>
      <outline text="Nested">
        <outline text="Deep Feed" type="rss" xmlUrl="https://deep.example.com/rss"/>
      </outline>
    </outline>
    <outline title="Loose Feed" type="rss" xmlUrl="https://loose.example.com/rss" htmlUrl="https://loose.example.com"/>
    <outline text="Empty Folder"></outline>
  </body>
</opml>`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, FeedEntry{
		Folder:  "Tech",
		Title:   "Example",
		URL:     "https://example.com/rss",
		SiteURL: "https://example.com",
	}, entries[0])

	// Nested folders collapse onto the topmost one.
	assert.Equal(t, "Tech", entries[1].Folder)
	assert.Equal(t, "Deep Feed", entries[1].Title)

	// A feed outside any folder has no folder; title attr works too.
	assert.Equal(t, FeedEntry{
		Folder:  "",
		Title:   "Loose Feed",
		URL:     "https://loose.example.com/rss",
		SiteURL: "https://loose.example.com",
	}, entries[2])
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(strings.NewReader("not xml at all"))
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	folders := []models.Folder{
		{ID: 1, Title: "Tech"},
		{ID: 2, Title: "Empty"},
	}
	feeds := []models.Feed{
		{ID: 10, FolderID: sql.NullInt64{Int64: 1, Valid: true}, Title: "Example", URL: "https://example.com/rss", SiteURL: "https://example.com"},
		{ID: 11, Title: "Loose", URL: "https://loose.example.com/rss"},
	}

	out, err := Export("Subscriptions", folders, feeds)
	require.NoError(t, err)

	doc := string(out)
	assert.Contains(t, doc, `<opml version="2.0">`)
	assert.Contains(t, doc, `xmlUrl="https://example.com/rss"`)
	assert.Contains(t, doc, `text="Tech"`)
	// Folders without feeds are not exported.
	assert.NotContains(t, doc, "Empty")

	// The export round-trips through the parser.
	entries, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "", entries[0].Folder)
	assert.Equal(t, "Loose", entries[0].Title)
	assert.Equal(t, "Tech", entries[1].Folder)
	assert.Equal(t, "Example", entries[1].Title)
}
