// Package wikipedia searches Wikipedia as you type and shows page
// summaries.
package wikipedia

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/extdeck/extdeck/pkg/binding"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

// searchDebounce is how long typing must pause before a search is sent.
var searchDebounce = 300 * time.Millisecond

const summaryMaxAge = 24 * time.Hour

// New returns the extension definition.
func New() *extension.Extension {
	return &extension.Extension{
		Name:        "wikipedia",
		Title:       "Wikipedia",
		Description: "Search Wikipedia articles",
		Preferences: []extension.PreferenceSpec{
			{Name: "language", Title: "Language", Description: "Wiki language code such as en or de", Default: "en"},
			{Name: "api_url", Title: "API URL", Description: "{lang} is replaced with the language", Default: defaultAPIURL},
		},
		Commands: []extension.Command{
			{
				Name:      "search",
				Title:     "Search Wikipedia",
				Arguments: []extension.Argument{{Name: "query", Placeholder: "Search"}},
				Open:      openSearch,
			},
			{
				Name:      "page",
				Title:     "Show Page Summary",
				Arguments: []extension.Argument{{Name: "title", Required: true}},
				Open:      openPage,
			},
		},
	}
}

func language(env *extension.Env) string {
	return strings.ToLower(transform.Or(strings.TrimSpace(env.Prefs.String("language")), "en"))
}

func newAPI(env *extension.Env) *api {
	return &api{c: env.Client(baseURL(env.Prefs.StringOr("api_url", defaultAPIURL), language(env)))}
}

type searchScreen struct {
	env  *extension.Env
	lang string
	hits *binding.Binding[string, []Hit]
}

func openSearch(_ context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
	a := newAPI(env)
	s := &searchScreen{env: env, lang: language(env)}
	s.hits = binding.New(func(ctx context.Context, text string) ([]Hit, error) {
		if strings.TrimSpace(text) == "" {
			return []Hit{}, nil
		}
		raw, err := a.search(ctx, text)
		if err != nil {
			return nil, err
		}
		return toHits(s.lang, raw), nil
	}, []Hit{},
		binding.WithDebounce(searchDebounce),
		binding.WithNotifier(env.Notifier, "Failed to search Wikipedia"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.hits.Update(strings.TrimSpace(args["query"]))
	return s, nil
}

// Search updates the query. Superseded requests are cancelled.
func (s *searchScreen) Search(text string) {
	s.hits.Update(strings.TrimSpace(text))
}

func (s *searchScreen) Render() view.View {
	st := s.hits.State()
	query := s.hits.Key()
	l := &view.List{
		Title:             "Wikipedia (" + s.lang + ")",
		IsLoading:         st.IsLoading,
		SearchText:        query,
		SearchPlaceholder: "Search articles",
		Sections: []view.Section{{
			Title: "Results",
			Items: transform.Map(st.Data, s.item),
		}},
	}
	switch {
	case st.IsLoading:
	case st.Err != nil:
		l.Empty = &view.Empty{Title: "Search failed", Description: fetch.Message(st.Err)}
	case query == "":
		l.Empty = &view.Empty{Title: "Type to search Wikipedia", Icon: &view.Icon{Source: "magnifying-glass"}}
	case len(st.Data) == 0:
		l.Empty = &view.Empty{Title: "No articles found", Description: fmt.Sprintf("Nothing matches %q", query)}
	}
	return l
}

func (s *searchScreen) item(h Hit) view.Item {
	it := view.Item{
		ID:       strconv.Itoa(h.PageID),
		Title:    h.Title,
		Subtitle: transform.Truncate(h.Snippet, 120),
		Actions: []view.Action{
			view.PushAction("Show Summary", "page", map[string]string{"title": h.Title}),
			view.OpenAction("Open in Browser", h.URL),
			view.CopyAction("Copy URL", h.URL),
			view.CopyAction("Copy Title", h.Title).WithShortcut("cmd+shift+t"),
		},
	}
	if h.WordCount > 0 {
		it.Accessories = append(it.Accessories, view.Accessory{Text: strconv.Itoa(h.WordCount) + " words"})
	}
	if !h.Edited.IsZero() {
		it.Accessories = append(it.Accessories, view.Accessory{Date: h.Edited.Format(time.RFC3339), Tooltip: "Last edited"})
	}
	return it
}

func (s *searchScreen) Perform(_ context.Context, action string, _ map[string]string) error {
	if action == "refresh" {
		s.hits.Revalidate()
		return nil
	}
	return extension.UnknownAction(action)
}

func (s *searchScreen) Wait()  { s.hits.Wait() }
func (s *searchScreen) Close() { s.hits.Close() }

type pageScreen struct {
	env     *extension.Env
	lang    string
	summary *binding.Binding[string, Summary]
}

func openPage(_ context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
	title := strings.TrimSpace(args["title"])
	if title == "" {
		return nil, errors.New("wikipedia: page title is required")
	}
	a := newAPI(env)
	s := &pageScreen{env: env, lang: language(env)}
	s.summary = binding.New(func(ctx context.Context, title string) (Summary, error) {
		raw, err := a.summary(ctx, title)
		if err != nil {
			return Summary{}, err
		}
		return toSummary(s.lang, raw), nil
	}, Summary{Title: title},
		binding.WithCache(env.Cache, "summary:"+s.lang+":"+title),
		binding.WithMaxAge(summaryMaxAge),
		binding.WithNotifier(env.Notifier, "Failed to load page"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.summary.Update(title)
	return s, nil
}

func (s *pageScreen) Render() view.View {
	st := s.summary.State()
	p := st.Data

	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", p.Title)
	if p.Thumbnail != "" {
		fmt.Fprintf(&md, "![%s](%s)\n\n", p.Title, p.Thumbnail)
	}
	if p.Description != "" {
		fmt.Fprintf(&md, "_%s_\n\n", p.Description)
	}
	switch {
	case p.Extract != "":
		md.WriteString(p.Extract)
	case st.Err != nil:
		md.WriteString("Could not load this page: " + fetch.Message(st.Err))
	}

	d := &view.Detail{
		Title:     p.Title,
		IsLoading: st.IsLoading,
		Markdown:  strings.TrimSpace(md.String()),
		Metadata:  []view.Metadata{{Label: "Language", Text: s.lang}},
	}
	if !p.Edited.IsZero() {
		d.Metadata = append(d.Metadata, view.Metadata{Label: "Last Edited", Text: p.Edited.Format("2006-01-02")})
	}
	if p.URL != "" {
		d.Metadata = append(d.Metadata, view.Metadata{Label: "URL", Text: p.URL, Link: p.URL})
		d.Actions = append(d.Actions,
			view.OpenAction("Open in Browser", p.URL),
			view.CopyAction("Copy URL", p.URL),
		)
	}
	if p.Extract != "" {
		d.Actions = append(d.Actions, view.CopyAction("Copy Summary", p.Extract).WithShortcut("cmd+shift+s"))
	}
	d.Actions = append(d.Actions, view.PerformAction("refresh", "Refresh").WithShortcut("cmd+r"))
	return d
}

func (s *pageScreen) Perform(_ context.Context, action string, _ map[string]string) error {
	if action == "refresh" {
		s.summary.Revalidate()
		return nil
	}
	return extension.UnknownAction(action)
}

func (s *pageScreen) Wait()  { s.summary.Wait() }
func (s *pageScreen) Close() { s.summary.Close() }
