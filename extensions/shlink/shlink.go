// Package shlink lists, creates and deletes short URLs on a self-hosted
// Shlink instance.
package shlink

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/binding"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

var searchDebounce = 300 * time.Millisecond

// New returns the extension definition.
func New() *extension.Extension {
	return &extension.Extension{
		Name:        "shlink",
		Title:       "Shlink",
		Description: "Manage short URLs",
		Preferences: []extension.PreferenceSpec{
			{Name: "host", Title: "Shlink Host", Description: "e.g. https://s.example.com", Required: true},
			{Name: "api_key", Title: "API Key", Required: true, Secret: true},
		},
		Commands: []extension.Command{
			{Name: "links", Title: "Short URLs", Open: openLinks},
			{Name: "shorten", Title: "Shorten URL", Arguments: []extension.Argument{{Name: "url", Placeholder: "https://"}}, Open: openShorten},
		},
	}
}

func newAPI(env *extension.Env) *api {
	return &api{c: env.Client(env.Prefs.String("host"), fetch.WithHeader("X-Api-Key", env.Prefs.String("api_key")))}
}

type query struct {
	Search string
	Page   int
}

type linksScreen struct {
	env   *extension.Env
	api   *api
	links *binding.Binding[query, Page]
}

func openLinks(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	s := &linksScreen{env: env, api: newAPI(env)}
	s.links = binding.New(s.load, Page{Links: []Link{}, Page: 1},
		binding.WithCache(env.Cache, "links"),
		binding.WithDebounce(searchDebounce),
		binding.WithNotifier(env.Notifier, "Failed to load short URLs"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.links.Update(query{Page: 1})
	return s, nil
}

func (s *linksScreen) load(ctx context.Context, q query) (Page, error) {
	raw, err := s.api.list(ctx, q.Search, q.Page)
	if err != nil {
		return Page{}, err
	}
	return toPage(raw), nil
}

// Search restarts from the first page.
func (s *linksScreen) Search(text string) {
	s.links.Update(query{Search: strings.TrimSpace(text), Page: 1})
}

func (s *linksScreen) Render() view.View {
	st := s.links.State()
	q := s.links.Key()
	p := st.Data

	l := &view.List{
		Title:             "Short URLs",
		IsLoading:         st.IsLoading,
		SearchText:        q.Search,
		SearchPlaceholder: "Search short URLs",
		Sections: []view.Section{{
			Title:    "Links",
			Subtitle: strconv.Itoa(p.Total),
			Items:    transform.Map(p.Links, s.item(p)),
		}},
		Pagination: &view.Page{Current: p.Page, Total: p.Pages, HasMore: p.Page < p.Pages},
	}
	if len(p.Links) == 0 && !st.IsLoading {
		l.Empty = &view.Empty{Title: "No short URLs"}
		if st.Err != nil {
			l.Empty = &view.Empty{Title: "Could not load short URLs", Description: fetch.Message(st.Err)}
		}
	}
	return l
}

func (s *linksScreen) item(p Page) func(Link) view.Item {
	return func(k Link) view.Item {
		it := view.Item{
			ID:       k.ShortCode,
			Title:    k.ShortURL,
			Subtitle: transform.Or(k.Title, transform.Truncate(k.LongURL, 80)),
			Icon:     &view.Icon{Source: "link"},
			Keywords: k.Tags,
			Accessories: []view.Accessory{
				{Text: strconv.Itoa(k.Visits), Icon: &view.Icon{Source: "eye"}, Tooltip: "Visits"},
			},
			Actions: []view.Action{
				view.CopyAction("Copy Short URL", k.ShortURL),
				view.OpenAction("Open Long URL", k.LongURL),
				view.CopyAction("Copy Long URL", k.LongURL).WithShortcut("cmd+shift+l"),
				view.PerformAction(extension.ActionID("delete", k.ShortCode), "Delete Short URL").Destructive().WithShortcut("ctrl+x"),
			},
		}
		for _, t := range k.Tags {
			it.Accessories = append(it.Accessories, view.Accessory{Tag: t})
		}
		if !k.Created.IsZero() {
			it.Accessories = append(it.Accessories, view.Accessory{Date: k.Created.Format(time.RFC3339), Tooltip: "Created"})
		}
		if p.Page < p.Pages {
			it.Actions = append(it.Actions, view.PerformAction("next-page", "Next Page").WithShortcut("cmd+]"))
		}
		if p.Page > 1 {
			it.Actions = append(it.Actions, view.PerformAction("prev-page", "Previous Page").WithShortcut("cmd+["))
		}
		return it
	}
}

func (s *linksScreen) Perform(ctx context.Context, action string, _ map[string]string) error {
	verb, ops := extension.ParseAction(action)
	q := s.links.Key()
	switch {
	case verb == "refresh":
		s.links.Revalidate()
		return nil
	case verb == "next-page":
		if p := s.links.State().Data; p.Page < p.Pages {
			s.links.Update(query{Search: q.Search, Page: p.Page + 1})
		}
		return nil
	case verb == "prev-page":
		if q.Page > 1 {
			s.links.Update(query{Search: q.Search, Page: q.Page - 1})
		}
		return nil
	case verb == "delete" && len(ops) == 1:
		return s.delete(ctx, ops[0])
	}
	return extension.UnknownAction(action)
}

func (s *linksScreen) delete(ctx context.Context, code string) error {
	err := s.links.Mutate(ctx, binding.Mutation[Page]{
		Optimistic: func(p Page) Page {
			p.Links = transform.Remove(p.Links, func(k Link) bool { return k.ShortCode == code })
			p.Total = max(p.Total-1, 0)
			return p
		},
		Commit: func(ctx context.Context) (func(Page) Page, error) {
			return nil, s.api.delete(ctx, code)
		},
		FailureTitle: "Failed to delete short URL",
	})
	if err != nil {
		return err
	}
	notify.Success(s.env.Notifier, "Short URL deleted", code)
	return nil
}

func (s *linksScreen) Wait()  { s.links.Wait() }
func (s *linksScreen) Close() { s.links.Close() }

type shortenScreen struct {
	env *extension.Env
	api *api

	mu      sync.Mutex
	values  map[string]string
	errors  map[string]string
	created *Link
}

func openShorten(_ context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
	return &shortenScreen{
		env:    env,
		api:    newAPI(env),
		values: map[string]string{"long_url": strings.TrimSpace(args["url"])},
	}, nil
}

func shortenForm() *view.Form {
	return &view.Form{
		Title: "Shorten URL",
		Fields: []view.Field{
			{ID: "long_url", Kind: view.TextField, Title: "URL", Placeholder: "https://example.com/long/path", Required: true,
				Rules: []view.Rule{view.URL}},
			{ID: "slug", Kind: view.TextField, Title: "Custom Slug", Info: "Letters, digits, - and _",
				Rules: []view.Rule{view.Pattern(`^[A-Za-z0-9_-]+$`, "Only letters, digits, - and _ are allowed")}},
			{ID: "title", Kind: view.TextField, Title: "Title"},
			{ID: "tags", Kind: view.TextField, Title: "Tags", Info: "Comma separated"},
		},
		Submit: view.Action{ID: "shorten", Title: "Create Short URL", Kind: view.Submit},
	}
}

func (s *shortenScreen) Render() view.View {
	f := shortenForm()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range f.Fields {
		f.Fields[i].Value = s.values[f.Fields[i].ID]
		f.Fields[i].Error = s.errors[f.Fields[i].ID]
	}
	if s.created != nil {
		f.Fields[0].Info = "Last created: " + s.created.ShortURL
	}
	return f
}

func (s *shortenScreen) Perform(ctx context.Context, action string, input map[string]string) error {
	if action != "shorten" {
		return extension.UnknownAction(action)
	}
	f := shortenForm()
	ok := f.Validate(input)
	s.mu.Lock()
	s.values = f.Values()
	s.errors = map[string]string{}
	for _, fld := range f.Fields {
		if fld.Error != "" {
			s.errors[fld.ID] = fld.Error
		}
	}
	s.mu.Unlock()
	if !ok {
		s.env.Changed()
		return view.ErrInvalid
	}

	v := f.Values()
	var tags []string
	for _, t := range strings.Split(v["tags"], ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	raw, err := s.api.create(ctx, createRequest{
		LongURL:      strings.TrimSpace(v["long_url"]),
		CustomSlug:   v["slug"],
		Title:        v["title"],
		Tags:         tags,
		FindIfExists: v["slug"] == "",
	})
	if err != nil {
		s.env.Toast("Failed to create short URL", err)
		return err
	}
	link := toLink(raw)
	notify.Success(s.env.Notifier, "Short URL created", link.ShortURL)

	s.mu.Lock()
	s.created = &link
	s.values = map[string]string{}
	s.mu.Unlock()
	s.env.Changed()
	return nil
}

func (s *shortenScreen) Wait()  {}
func (s *shortenScreen) Close() {}
