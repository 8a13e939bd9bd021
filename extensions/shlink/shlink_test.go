package shlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fakeapi"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/testutil"
	"github.com/extdeck/extdeck/pkg/view"
)

func init() {
	searchDebounce = 10 * time.Millisecond
}

type fakeShlink struct {
	*fakeapi.Server
	mu   sync.Mutex
	urls []rawShortURL
}

func problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://shlink.io/api/error/" + strings.ReplaceAll(strings.ToLower(title), " ", "-"),
		"title":  title,
		"detail": detail,
		"status": status,
	})
}

func newFake(t *testing.T, n int) (*fakeShlink, *testutil.Harness) {
	f := &fakeShlink{Server: fakeapi.New()}
	for i := n; i >= 1; i-- {
		code := fmt.Sprintf("c%02d", i)
		f.urls = append(f.urls, rawShortURL{
			ShortCode: code, ShortURL: "https://s.test/" + code, LongURL: fmt.Sprintf("https://example.com/%d", i),
			DateCreated: "2026-10-01T12:00:00+00:00", Tags: []string{"t" + strconv.Itoa(i%2)},
		})
	}

	f.Router.Route("/rest/v3/short-urls", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("X-Api-Key") != "key" {
					problem(w, http.StatusUnauthorized, "Invalid API key", "Provided API key does not exist or is invalid.")
					return
				}
				next.ServeHTTP(w, r)
			})
		})
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			per, _ := strconv.Atoi(r.URL.Query().Get("itemsPerPage"))
			term := r.URL.Query().Get("searchTerm")
			f.mu.Lock()
			var match []rawShortURL
			for _, u := range f.urls {
				if term == "" || strings.Contains(u.LongURL, term) {
					match = append(match, u)
				}
			}
			f.mu.Unlock()
			pages := (len(match) + per - 1) / per
			lo, hi := min((page-1)*per, len(match)), min(page*per, len(match))
			fakeapi.JSON(w, http.StatusOK, map[string]any{"shortUrls": rawShortURLs{
				Data:       slices.Clone(match[lo:hi]),
				Pagination: rawPagination{CurrentPage: page, PagesCount: pages, TotalItems: len(match)},
			}})
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req createRequest
			if !fakeapi.Decode(w, r, &req) {
				return
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, u := range f.urls {
				if u.ShortCode == req.CustomSlug {
					problem(w, http.StatusBadRequest, "Invalid custom slug", fmt.Sprintf("Provided slug %q is already in use.", req.CustomSlug))
					return
				}
			}
			code := slugOrGenerated(req.CustomSlug)
			u := rawShortURL{ShortCode: code, ShortURL: "https://s.test/" + code, LongURL: req.LongURL, Tags: req.Tags}
			f.urls = append([]rawShortURL{u}, f.urls...)
			fakeapi.JSON(w, http.StatusOK, u)
		})
		r.Delete("/{code}", func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			code := chi.URLParam(r, "code")
			f.urls = slices.DeleteFunc(f.urls, func(u rawShortURL) bool { return u.ShortCode == code })
			w.WriteHeader(http.StatusNoContent)
		})
	})

	base := f.Start(t)
	return f, testutil.NewHarness(t, "shlink", map[string]string{"host": base, "api_key": "key"})
}

func slugOrGenerated(slug string) string {
	if slug == "" {
		return "gen1"
	}
	return slug
}

func TestLinksPaginate(t *testing.T) {
	f, h := newFake(t, 25)
	s := h.Open(New(), "links", nil)

	l := testutil.List(t, s)
	assert.Len(t, l.AllItems(), 20)
	assert.Equal(t, &view.Page{Current: 1, Total: 2, HasMore: true}, l.Pagination)
	assert.Equal(t, "25", l.Sections[0].Subtitle)
	first := l.AllItems()[0]
	assert.Equal(t, "c25", first.ID)
	assert.Equal(t, "https://s.test/c25", first.Title)

	require.NoError(t, s.Perform(context.Background(), "next-page", nil))
	s.Wait()
	l = testutil.List(t, s)
	assert.Equal(t, []string{"c05", "c04", "c03", "c02", "c01"}, testutil.ItemIDs(l))
	assert.Equal(t, &view.Page{Current: 2, Total: 2}, l.Pagination)

	req, _ := f.Requests.Last()
	assert.Equal(t, "2", req.Query.Get("page"))
	assert.Equal(t, "dateCreated-DESC", req.Query.Get("orderBy"))

	require.NoError(t, s.Perform(context.Background(), "prev-page", nil))
	s.Wait()
	assert.Equal(t, 1, testutil.List(t, s).Pagination.Current)
}

func TestSearchResetsToFirstPage(t *testing.T) {
	f, h := newFake(t, 25)
	s := h.Open(New(), "links", nil)
	require.NoError(t, s.Perform(context.Background(), "next-page", nil))
	s.Wait()

	s.(extension.Searchable).Search("/1")
	s.Wait()
	l := testutil.List(t, s)
	assert.Equal(t, "/1", l.SearchText)
	assert.Equal(t, 1, l.Pagination.Current)
	assert.Len(t, l.AllItems(), 11) // 1, 10..19

	req, _ := f.Requests.Last()
	assert.Equal(t, "/1", req.Query.Get("searchTerm"))
	assert.Equal(t, "1", req.Query.Get("page"))
}

func TestDeleteIsOptimisticAndRollsBack(t *testing.T) {
	f, h := newFake(t, 3)
	s := h.Open(New(), "links", nil)

	f.FailOnce(http.MethodDelete, "/rest/v3/short-urls/c02", http.StatusInternalServerError, "")
	require.Error(t, s.Perform(context.Background(), "delete:c02", nil))
	assert.Equal(t, []string{"c03", "c02", "c01"}, testutil.ItemIDs(testutil.List(t, s)))
	testutil.AssertToast(t, h.Toasts, notify.StyleFailure, "Failed to delete short URL")

	require.NoError(t, s.Perform(context.Background(), "delete:c02", nil))
	l := testutil.List(t, s)
	assert.Equal(t, []string{"c03", "c01"}, testutil.ItemIDs(l))
	assert.Equal(t, "2", l.Sections[0].Subtitle)
	testutil.AssertToast(t, h.Toasts, notify.StyleSuccess, "Short URL deleted")
}

func TestProblemDetailsSurfaceInToast(t *testing.T) {
	f, _ := newFake(t, 1)
	h := testutil.NewHarness(t, "shlink", map[string]string{"host": f.URL(), "api_key": "wrong"})
	s := h.Open(New(), "links", nil)

	l := testutil.List(t, s)
	require.NotNil(t, l.Empty)
	assert.Equal(t, "Provided API key does not exist or is invalid.", l.Empty.Description)
	toast := testutil.AssertToast(t, h.Toasts, notify.StyleFailure, "Failed to load short URLs")
	assert.Equal(t, "Provided API key does not exist or is invalid.", toast.Message)
}

func TestShortenValidation(t *testing.T) {
	f, h := newFake(t, 1)
	s := h.Open(New(), "shorten", map[string]string{"url": "notaurl"})
	assert.Equal(t, "notaurl", testutil.Form(t, s).Field("long_url").Value)

	err := s.Perform(context.Background(), "shorten", map[string]string{"long_url": "notaurl", "slug": "bad slug"})
	require.ErrorIs(t, err, view.ErrInvalid)
	form := testutil.Form(t, s)
	assert.Equal(t, "Must be a valid URL", form.Field("long_url").Error)
	assert.Equal(t, "Only letters, digits, - and _ are allowed", form.Field("slug").Error)
	assert.Zero(t, f.Requests.Count(http.MethodPost, "/rest/v3/short-urls"))
}

func TestShortenCreatesAndReportsConflicts(t *testing.T) {
	f, h := newFake(t, 1)
	s := h.Open(New(), "shorten", nil)

	err := s.Perform(context.Background(), "shorten", map[string]string{"long_url": "https://go.dev", "slug": "c01"})
	require.Error(t, err)
	toast := testutil.AssertToast(t, h.Toasts, notify.StyleFailure, "Failed to create short URL")
	assert.Equal(t, `Provided slug "c01" is already in use.`, toast.Message)
	assert.Equal(t, "c01", testutil.Form(t, s).Field("slug").Value)

	require.NoError(t, s.Perform(context.Background(), "shorten", map[string]string{
		"long_url": "https://go.dev", "slug": "go", "tags": "lang, , dev",
	}))
	toast = testutil.AssertToast(t, h.Toasts, notify.StyleSuccess, "Short URL created")
	assert.Equal(t, "https://s.test/go", toast.Message)
	form := testutil.Form(t, s)
	assert.Empty(t, form.Field("long_url").Value)
	assert.Equal(t, "Last created: https://s.test/go", form.Field("long_url").Info)

	req, _ := f.Requests.Last()
	var body createRequest
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, createRequest{LongURL: "https://go.dev", CustomSlug: "go", Tags: []string{"lang", "dev"}}, body)
}
