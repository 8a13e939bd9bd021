package wikipedia

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/extdeck/extdeck/pkg/fetch"
)

// defaultAPIURL is expanded with the language preference.
const defaultAPIURL = "https://{lang}.wikipedia.org"

const searchLimit = 20

type rawSearchHit struct {
	Title     string `json:"title"`
	PageID    int    `json:"pageid"`
	WordCount int    `json:"wordcount"`
	Snippet   string `json:"snippet"`
	Timestamp string `json:"timestamp"`
}

type rawSearchHits []rawSearchHit

func (hs rawSearchHits) Validate() error {
	for _, h := range hs {
		if h.Title == "" {
			return errors.New("search hit without title")
		}
	}
	return nil
}

type rawSummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	Timestamp   string `json:"timestamp"`
	Lang        string `json:"lang"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
}

func (s rawSummary) Validate() error {
	if s.Title == "" {
		return errors.New("summary without title")
	}
	return nil
}

type api struct {
	c *fetch.Client
}

func baseURL(tmpl, lang string) string {
	return strings.ReplaceAll(tmpl, "{lang}", url.PathEscape(lang))
}

func (a *api) search(ctx context.Context, text string) (rawSearchHits, error) {
	q := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"format":   {"json"},
		"srsearch": {text},
		"srlimit":  {strconv.Itoa(searchLimit)},
		"srprop":   {"snippet|wordcount|timestamp"},
	}
	return fetch.GetAt[rawSearchHits](ctx, a.c, "/w/api.php", q, "$.query.search")
}

func (a *api) summary(ctx context.Context, title string) (rawSummary, error) {
	path := "/api/rest_v1/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	return fetch.Get[rawSummary](ctx, a.c, path, nil)
}
