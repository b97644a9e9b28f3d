package poller

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/ternarybob/arbor"
)

// cleanText strips markup from feed-provided HTML fragments and collapses
// whitespace. Feed summaries routinely arrive as HTML.
func cleanText(fragment string) string {
	if fragment == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// entryAuthor flattens gofeed's author shapes into one display string.
func entryAuthor(entry *gofeed.Item) string {
	if len(entry.Authors) > 0 {
		var names []string
		for _, author := range entry.Authors {
			if author != nil && author.Name != "" {
				names = append(names, author.Name)
			}
		}
		return strings.Join(names, ", ")
	}
	if entry.Author != nil {
		return entry.Author.Name
	}
	return ""
}

func entryEnclosures(entry *gofeed.Item) []string {
	var urls []string
	for _, enclosure := range entry.Enclosures {
		if enclosure != nil && enclosure.URL != "" {
			urls = append(urls, enclosure.URL)
		}
	}
	return urls
}

// logEntrySkipped is a small helper so the drop paths log uniformly.
func logEntrySkipped(logger arbor.ILogger, feedID, url, reason string) {
	logger.Debug().
		Str("feed_id", feedID).
		Str("url", url).
		Str("reason", reason).
		Msg("Feed entry skipped")
}
