package shlink

import (
	"time"

	"github.com/extdeck/extdeck/pkg/transform"
)

// Link is a short URL.
type Link struct {
	ShortCode string    `json:"short_code"`
	ShortURL  string    `json:"short_url"`
	LongURL   string    `json:"long_url"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	Visits    int       `json:"visits"`
	Created   time.Time `json:"created"`
}

// Page is one page of links.
type Page struct {
	Links []Link `json:"links"`
	Page  int    `json:"page"`
	Pages int    `json:"pages"`
	Total int    `json:"total"`
}

func toLink(r rawShortURL) Link {
	l := Link{
		ShortCode: r.ShortCode,
		ShortURL:  r.ShortURL,
		LongURL:   r.LongURL,
		Title:     transform.Str(r.Title),
		Tags:      transform.NonNil(r.Tags),
		Created:   transform.Time(r.DateCreated, time.RFC3339),
	}
	if r.VisitsSummary != nil {
		l.Visits = r.VisitsSummary.Total
	}
	return l
}

func toPage(r rawShortURLs) Page {
	return Page{
		Links: transform.Map(r.Data, toLink),
		Page:  max(r.Pagination.CurrentPage, 1),
		Pages: r.Pagination.PagesCount,
		Total: r.Pagination.TotalItems,
	}
}
