package wikipedia

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/extdeck/extdeck/pkg/transform"
)

// Hit is one search result.
type Hit struct {
	PageID    int       `json:"page_id"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	WordCount int       `json:"word_count"`
	Edited    time.Time `json:"edited"`
	URL       string    `json:"url"`
}

// Summary is the lead section of a page.
type Summary struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Extract     string    `json:"extract"`
	Edited      time.Time `json:"edited"`
	URL         string    `json:"url"`
	Thumbnail   string    `json:"thumbnail"`
}

func pageURL(lang, title string) string {
	return "https://" + lang + ".wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

func toHits(lang string, raw rawSearchHits) []Hit {
	return transform.Map(raw, func(r rawSearchHit) Hit {
		return Hit{
			PageID:    r.PageID,
			Title:     r.Title,
			Snippet:   cleanSnippet(r.Snippet),
			WordCount: r.WordCount,
			Edited:    transform.Time(r.Timestamp, time.RFC3339),
			URL:       pageURL(lang, r.Title),
		}
	})
}

func toSummary(lang string, r rawSummary) Summary {
	s := Summary{
		Title:       r.Title,
		Description: r.Description,
		Extract:     r.Extract,
		Edited:      transform.Time(r.Timestamp, time.RFC3339),
		URL:         transform.Or(r.ContentURLs.Desktop.Page, pageURL(lang, r.Title)),
	}
	if r.Thumbnail != nil {
		s.Thumbnail = r.Thumbnail.Source
	}
	return s
}

// cleanSnippet turns search snippet HTML into markdown text: matches become
// bold, other tags are dropped and entities are decoded.
func cleanSnippet(snippet string) string {
	doc, err := html.Parse(strings.NewReader(snippet))
	if err != nil {
		return snippet
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "span" && hasClass(n, "searchmatch") {
				b.WriteString("**")
				defer b.WriteString("**")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(b.String()), " ")
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && strings.Contains(" "+a.Val+" ", " "+class+" ") {
			return true
		}
	}
	return false
}
