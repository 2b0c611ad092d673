// Package opml handles importing and exporting OPML subscription
// lists.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	"kestrel/reader/internal/models"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedEntry represents a flattened feed with its folder, if any.
// Nested folder levels in the source document collapse to the topmost
// one, since the store models a single folder level.
type FeedEntry struct {
	Folder  string
	Title   string
	URL     string
	SiteURL string
}

// Parse reads an OPML document and returns a flat list of FeedEntry.
func Parse(r io.Reader) ([]FeedEntry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}

	var entries []FeedEntry
	var walk func(outlines []Outline, folder string)
	walk = func(outlines []Outline, folder string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				entries = append(entries, FeedEntry{
					Folder:  folder,
					Title:   title,
					URL:     o.XMLURL,
					SiteURL: o.HTMLURL,
				})
				continue
			}
			if len(o.Outlines) > 0 {
				name := folder
				if name == "" {
					name = o.Text
					if name == "" {
						name = o.Title
					}
				}
				walk(o.Outlines, name)
			}
		}
	}
	walk(doc.Body.Outlines, "")
	return entries, nil
}

// Export renders the stored folders and feeds as an OPML document.
func Export(title string, folders []models.Folder, feeds []models.Feed) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}

	folderOutlines := make(map[int64]*Outline, len(folders))
	order := make([]int64, 0, len(folders))
	for _, folder := range folders {
		folderOutlines[folder.ID] = &Outline{Text: folder.Title, Title: folder.Title}
		order = append(order, folder.ID)
	}

	var rootOutlines []Outline
	for _, feed := range feeds {
		feedOutline := Outline{
			Text:    feed.Title,
			Title:   feed.Title,
			Type:    "rss",
			XMLURL:  feed.URL,
			HTMLURL: feed.SiteURL,
		}
		if feed.FolderID.Valid {
			if fo, ok := folderOutlines[feed.FolderID.Int64]; ok {
				fo.Outlines = append(fo.Outlines, feedOutline)
				continue
			}
		}
		rootOutlines = append(rootOutlines, feedOutline)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	for _, id := range order {
		if fo := folderOutlines[id]; len(fo.Outlines) > 0 {
			rootOutlines = append(rootOutlines, *fo)
		}
	}
	doc.Body.Outlines = rootOutlines

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
