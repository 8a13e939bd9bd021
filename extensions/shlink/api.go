package shlink

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/extdeck/extdeck/pkg/fetch"
)

const pageSize = 20

type rawShortURL struct {
	ShortCode     string   `json:"shortCode"`
	ShortURL      string   `json:"shortUrl"`
	LongURL       string   `json:"longUrl"`
	DateCreated   string   `json:"dateCreated"`
	Tags          []string `json:"tags"`
	Title         *string  `json:"title"`
	Domain        *string  `json:"domain"`
	VisitsSummary *struct {
		Total   int `json:"total"`
		NonBots int `json:"nonBots"`
		Bots    int `json:"bots"`
	} `json:"visitsSummary"`
}

func (u rawShortURL) Validate() error {
	if u.ShortCode == "" || u.ShortURL == "" {
		return errors.New("short URL without code")
	}
	return nil
}

type rawPagination struct {
	CurrentPage int `json:"currentPage"`
	PagesCount  int `json:"pagesCount"`
	TotalItems  int `json:"totalItems"`
}

type rawShortURLs struct {
	Data       []rawShortURL `json:"data"`
	Pagination rawPagination `json:"pagination"`
}

func (p rawShortURLs) Validate() error {
	for _, u := range p.Data {
		if err := u.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type createRequest struct {
	LongURL      string   `json:"longUrl"`
	CustomSlug   string   `json:"customSlug,omitempty"`
	Title        string   `json:"title,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	FindIfExists bool     `json:"findIfExists"`
}

type api struct {
	c *fetch.Client
}

func (a *api) list(ctx context.Context, search string, page int) (rawShortURLs, error) {
	q := url.Values{
		"page":         {strconv.Itoa(page)},
		"itemsPerPage": {strconv.Itoa(pageSize)},
		"orderBy":      {"dateCreated-DESC"},
	}
	if search != "" {
		q.Set("searchTerm", search)
	}
	return fetch.GetAt[rawShortURLs](ctx, a.c, "/rest/v3/short-urls", q, "$.shortUrls")
}

func (a *api) create(ctx context.Context, req createRequest) (rawShortURL, error) {
	return fetch.Send[rawShortURL](ctx, a.c, http.MethodPost, "/rest/v3/short-urls", req)
}

func (a *api) delete(ctx context.Context, shortCode string) error {
	return a.c.Exec(ctx, http.MethodDelete, "/rest/v3/short-urls/"+url.PathEscape(shortCode), nil)
}
