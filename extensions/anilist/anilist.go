// Package anilist searches AniList and tracks what the signed in user is
// watching.
package anilist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/binding"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/oauth"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

// searchDebounce is how long typing must pause before a search is sent.
var searchDebounce = 300 * time.Millisecond

const tokenKey = "oauth-token"

// New returns the extension definition.
func New() *extension.Extension {
	return &extension.Extension{
		Name:        "anilist",
		Title:       "AniList",
		Description: "Search anime and track your progress",
		Preferences: []extension.PreferenceSpec{
			{Name: "token", Title: "Access Token", Description: "Personal access token, stored on first use", Secret: true},
			{Name: "client_id", Title: "OAuth Client ID", Description: "Enables token refresh"},
			{Name: "client_secret", Title: "OAuth Client Secret", Secret: true},
			{Name: "api_url", Title: "GraphQL URL", Default: defaultAPIURL},
			{Name: "auth_url", Title: "Auth URL", Default: defaultAuthURL},
		},
		Commands: []extension.Command{
			{Name: "search", Title: "Search Anime", Arguments: []extension.Argument{{Name: "query", Placeholder: "Title"}}, Open: openSearch},
			{Name: "watching", Title: "Currently Watching", Open: openWatching},
			{Name: "sign-in", Title: "Sign In", Open: openSignIn},
		},
	}
}

func tokenStore(env *extension.Env) *oauth.Store {
	opts := []oauth.Option{oauth.WithLogger(env.Log())}
	if env.Cache != nil {
		opts = append(opts, oauth.WithClock(env.Cache))
	}
	if id := env.Prefs.String("client_id"); id != "" {
		auth := env.Client(env.Prefs.StringOr("auth_url", defaultAuthURL))
		opts = append(opts, oauth.WithRefresh(oauth.RefreshTokenGrant(auth, tokenPath, id, env.Prefs.String("client_secret"))))
	}
	return oauth.NewStore(env.Store, tokenKey, opts...)
}

// seedToken stores the token preference when nothing is signed in yet.
func seedToken(ctx context.Context, env *extension.Env, store *oauth.Store) error {
	pref := env.Prefs.String("token")
	if pref == "" {
		return nil
	}
	if _, err := store.Token(ctx); !errors.Is(err, oauth.ErrNoToken) {
		return nil
	}
	if err := store.Set(ctx, oauth.Token{AccessToken: pref, TokenType: "Bearer"}); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// session bundles the token store with an authenticated client.
type session struct {
	tokens *oauth.Store
	api    *api
	// public sends the token when there is one and anonymous requests
	// otherwise.
	public *api
}

func newSession(ctx context.Context, env *extension.Env) (*session, error) {
	tokens := tokenStore(env)
	if err := seedToken(ctx, env, tokens); err != nil {
		return nil, err
	}
	base := env.Prefs.StringOr("api_url", defaultAPIURL)
	optional := func(ctx context.Context) (string, error) {
		tok, err := tokens.AccessToken(ctx)
		if errors.Is(err, oauth.ErrNoToken) || errors.Is(err, oauth.ErrExpired) {
			return "", nil
		}
		return tok, err
	}
	return &session{
		tokens: tokens,
		api:    &api{c: env.Client(base, fetch.WithTokenSource(tokens.AccessToken))},
		public: &api{c: env.Client(base, fetch.WithTokenSource(optional))},
	}, nil
}

func signedOut(err error) bool {
	return errors.Is(err, oauth.ErrNoToken) || errors.Is(err, oauth.ErrExpired)
}

type searchScreen struct {
	env     *extension.Env
	session *session
	results *binding.Binding[string, []Media]
}

func openSearch(ctx context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
	sess, err := newSession(ctx, env)
	if err != nil {
		return nil, err
	}
	s := &searchScreen{env: env, session: sess}
	s.results = binding.New(s.load, []Media{},
		binding.WithDebounce(searchDebounce),
		binding.WithNotifier(env.Notifier, "Failed to search AniList"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.results.Update(strings.TrimSpace(args["query"]))
	return s, nil
}

func (s *searchScreen) load(ctx context.Context, text string) ([]Media, error) {
	if text == "" {
		return []Media{}, nil
	}
	raw, err := s.session.public.search(ctx, text)
	if err != nil {
		return nil, err
	}
	return transform.Map(raw, toMedia), nil
}

func (s *searchScreen) Search(text string) {
	s.results.Update(strings.TrimSpace(text))
}

func (s *searchScreen) Render() view.View {
	st := s.results.State()
	query := s.results.Key()
	l := &view.List{
		Title:             "Search Anime",
		IsLoading:         st.IsLoading,
		SearchText:        query,
		SearchPlaceholder: "Search anime",
		Sections:          []view.Section{{Title: "Results", Items: transform.Map(st.Data, searchItem)}},
	}
	switch {
	case st.IsLoading:
	case st.Err != nil:
		l.Empty = &view.Empty{Title: "Search failed", Description: fetch.Message(st.Err)}
	case query == "":
		l.Empty = &view.Empty{Title: "Type to search AniList", Icon: &view.Icon{Source: "magnifying-glass"}}
	case len(st.Data) == 0:
		l.Empty = &view.Empty{Title: "No anime found"}
	}
	return l
}

func mediaDetail(m Media) *view.Detail {
	md := "# " + m.Title
	if m.Cover != "" {
		md += "\n\n![" + m.Title + "](" + m.Cover + ")"
	}
	d := &view.Detail{
		Markdown: md,
		Metadata: []view.Metadata{
			{Label: "Status", Text: m.Status},
			{Label: "Score", Text: formatScore(m.Score)},
		},
	}
	if m.Native != "" {
		d.Metadata = append(d.Metadata, view.Metadata{Label: "Native Title", Text: m.Native})
	}
	if m.Episodes > 0 {
		d.Metadata = append(d.Metadata, view.Metadata{Label: "Episodes", Text: strconv.Itoa(m.Episodes)})
	}
	if m.Season != "" {
		d.Metadata = append(d.Metadata, view.Metadata{Label: "Season", Text: m.Season})
	}
	if m.Studio != "" {
		d.Metadata = append(d.Metadata, view.Metadata{Label: "Studio", Text: m.Studio})
	}
	if m.NextEpisode > 0 {
		d.Metadata = append(d.Metadata, view.Metadata{Label: "Next Episode",
			Text: fmt.Sprintf("Episode %d in %s", m.NextEpisode, formatCountdown(m.AiringIn))})
	}
	return d
}

func searchItem(m Media) view.Item {
	it := view.Item{
		ID:       strconv.Itoa(m.ID),
		Title:    m.Title,
		Subtitle: transform.Or(m.Season, m.Status),
		Icon:     &view.Icon{Source: transform.Or(m.Cover, "film")},
		Accessories: []view.Accessory{
			{Tag: m.Status},
			{Text: formatScore(m.Score), Icon: &view.Icon{Source: "star"}, Tooltip: "Average score"},
		},
		Actions: []view.Action{
			view.OpenAction("Open in AniList", m.URL),
			view.PerformAction(extension.ActionID("add", strconv.Itoa(m.ID)), "Add to Watching").WithShortcut("cmd+enter"),
			view.CopyAction("Copy URL", m.URL),
		},
		Detail: mediaDetail(m),
	}
	if m.Format != "" {
		it.Accessories = append([]view.Accessory{{Text: m.Format}}, it.Accessories...)
	}
	return it
}

func (s *searchScreen) Perform(ctx context.Context, action string, _ map[string]string) error {
	verb, ops := extension.ParseAction(action)
	switch {
	case verb == "refresh":
		s.results.Revalidate()
		return nil
	case verb == "add" && len(ops) == 1:
		id, err := strconv.Atoi(ops[0])
		if err != nil {
			return extension.UnknownAction(action)
		}
		return s.add(ctx, id)
	}
	return extension.UnknownAction(action)
}

func (s *searchScreen) add(ctx context.Context, mediaID int) error {
	if _, err := s.session.api.saveEntry(ctx, 0, mediaID, 0, "CURRENT"); err != nil {
		title := "Failed to add to watching"
		if signedOut(err) {
			title = "Sign in to AniList first"
		}
		s.env.Toast(title, err)
		return err
	}
	name := strconv.Itoa(mediaID)
	for _, m := range s.results.State().Data {
		if m.ID == mediaID {
			name = m.Title
		}
	}
	notify.Success(s.env.Notifier, "Added to Watching", name)
	return nil
}

func (s *searchScreen) Wait()  { s.results.Wait() }
func (s *searchScreen) Close() { s.results.Close() }

type watchingScreen struct {
	env     *extension.Env
	session *session
	list    *binding.Binding[string, Watching]
}

func openWatching(ctx context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	sess, err := newSession(ctx, env)
	if err != nil {
		return nil, err
	}
	s := &watchingScreen{env: env, session: sess}
	s.list = binding.New(s.load, Watching{Entries: []Entry{}},
		binding.WithCache(env.Cache, "watching"),
		binding.WithNotifier(env.Notifier, "Failed to load watching list"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.list.Update("")
	return s, nil
}

func (s *watchingScreen) load(ctx context.Context, _ string) (Watching, error) {
	id, name, err := s.session.api.viewer(ctx)
	if err != nil {
		return Watching{}, err
	}
	raw, err := s.session.api.watching(ctx, id)
	if err != nil {
		return Watching{}, err
	}
	return toWatching(name, raw), nil
}

func (s *watchingScreen) Render() view.View {
	st := s.list.State()
	w := st.Data
	l := &view.List{
		Title:             "Currently Watching",
		IsLoading:         st.IsLoading,
		SearchPlaceholder: "Filter by title",
		Sections: []view.Section{{
			Title:    transform.Or(w.User, "Watching"),
			Subtitle: strconv.Itoa(len(w.Entries)),
			Items:    transform.Map(w.Entries, watchingItem),
		}},
	}
	if len(w.Entries) == 0 && !st.IsLoading {
		switch {
		case signedOut(st.Err):
			l.Empty = &view.Empty{Title: "Sign in to AniList", Description: "Run the Sign In command or set an access token"}
		case st.Err != nil:
			l.Empty = &view.Empty{Title: "Could not load watching list", Description: fetch.Message(st.Err)}
		default:
			l.Empty = &view.Empty{Title: "Nothing in progress"}
		}
	}
	return l
}

func watchingItem(e Entry) view.Item {
	id := strconv.Itoa(e.ID)
	it := view.Item{
		ID:       id,
		Title:    e.Media.Title,
		Subtitle: e.ProgressText(),
		Icon:     &view.Icon{Source: transform.Or(e.Media.Cover, "film")},
		Detail:   mediaDetail(e.Media),
	}
	if e.Status == "REPEATING" {
		it.Accessories = append(it.Accessories, view.Accessory{Tag: "Rewatching"})
	}
	if e.Media.NextEpisode > 0 {
		it.Accessories = append(it.Accessories, view.Accessory{
			Text:    fmt.Sprintf("Ep %d in %s", e.Media.NextEpisode, formatCountdown(e.Media.AiringIn)),
			Tooltip: "Next episode",
		})
	}
	if e.CanAdvance() {
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("progress", id), "Mark Next Episode Watched").WithShortcut("cmd+="))
	}
	it.Actions = append(it.Actions,
		view.OpenAction("Open in AniList", e.Media.URL),
		view.PerformAction("refresh", "Refresh").WithShortcut("cmd+r"),
		view.PerformAction("sign-out", "Sign Out"),
	)
	return it
}

func (s *watchingScreen) Perform(ctx context.Context, action string, _ map[string]string) error {
	verb, ops := extension.ParseAction(action)
	switch {
	case verb == "refresh":
		s.list.Revalidate()
		return nil
	case verb == "sign-out":
		if err := s.session.tokens.Clear(ctx); err != nil {
			s.env.Toast("Failed to sign out", err)
			return err
		}
		s.list.SetData(func(Watching) Watching { return Watching{Entries: []Entry{}} })
		notify.Success(s.env.Notifier, "Signed out", "")
		s.list.Revalidate()
		return nil
	case verb == "progress" && len(ops) == 1:
		id, err := strconv.Atoi(ops[0])
		if err != nil {
			return extension.UnknownAction(action)
		}
		return s.advance(ctx, id)
	}
	return extension.UnknownAction(action)
}

// advance marks one more episode as watched, optimistically.
func (s *watchingScreen) advance(ctx context.Context, id int) error {
	var cur Entry
	found := false
	for _, e := range s.list.State().Data.Entries {
		if e.ID == id {
			cur, found = e, true
		}
	}
	if !found {
		return fmt.Errorf("list entry %d: %w", id, extension.ErrNotFound)
	}
	if !cur.CanAdvance() {
		return fmt.Errorf("%s: all %d episodes already watched", cur.Media.Title, cur.Media.Episodes)
	}
	next := cur.Progress + 1
	match := func(e Entry) bool { return e.ID == id }

	err := s.list.Mutate(ctx, binding.Mutation[Watching]{
		Optimistic: func(w Watching) Watching {
			w.Entries = transform.Replace(w.Entries, match, func(e Entry) Entry {
				e.Progress = next
				return e
			})
			return w
		},
		Commit: func(ctx context.Context) (func(Watching) Watching, error) {
			saved, err := s.session.api.saveEntry(ctx, id, 0, next, "")
			if err != nil {
				return nil, err
			}
			return func(w Watching) Watching {
				w.Entries = transform.Replace(w.Entries, match, func(e Entry) Entry {
					e.Progress = saved.Progress
					e.Status = transform.Or(saved.Status, e.Status)
					if saved.UpdatedAt > 0 {
						e.UpdatedAt = time.Unix(saved.UpdatedAt, 0).UTC()
					}
					return e
				})
				return w
			}, nil
		},
		FailureTitle: "Failed to update progress",
	})
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("%s: episode %d", cur.Media.Title, next)
	notify.Success(s.env.Notifier, "Progress updated", msg)
	return nil
}

func (s *watchingScreen) Wait()  { s.list.Wait() }
func (s *watchingScreen) Close() { s.list.Close() }

type signInScreen struct {
	env     *extension.Env
	session *session

	mu     sync.Mutex
	errors map[string]string
	user   string
}

func openSignIn(ctx context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	sess, err := newSession(ctx, env)
	if err != nil {
		return nil, err
	}
	return &signInScreen{env: env, session: sess}, nil
}

func signInForm() *view.Form {
	return &view.Form{
		Title: "Sign In to AniList",
		Fields: []view.Field{
			{ID: "token", Kind: view.PasswordField, Title: "Access Token", Required: true,
				Info: "Create one at anilist.co/settings/developer"},
		},
		Submit: view.Action{ID: "sign-in", Title: "Sign In", Kind: view.Submit},
	}
}

func (s *signInScreen) Render() view.View {
	f := signInForm()
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Fields[0].Error = s.errors["token"]
	if s.user != "" {
		f.Fields[0].Info = "Signed in as " + s.user
	}
	return f
}

func (s *signInScreen) Perform(ctx context.Context, action string, input map[string]string) error {
	if action != "sign-in" {
		return extension.UnknownAction(action)
	}
	f := signInForm()
	ok := f.Validate(input)
	s.mu.Lock()
	s.errors = map[string]string{"token": f.Fields[0].Error}
	s.mu.Unlock()
	if !ok {
		s.env.Changed()
		return view.ErrInvalid
	}

	tok := oauth.Token{AccessToken: strings.TrimSpace(input["token"]), TokenType: "Bearer"}
	if err := s.session.tokens.Set(ctx, tok); err != nil {
		s.env.Toast("Failed to sign in", err)
		return err
	}
	_, name, err := s.session.api.viewer(ctx)
	if err != nil {
		if cerr := s.session.tokens.Clear(ctx); cerr != nil {
			s.env.Log().Warn("clearing rejected token", "err", cerr)
		}
		s.env.Toast("Failed to sign in", err)
		return err
	}
	s.mu.Lock()
	s.user = name
	s.mu.Unlock()
	notify.Success(s.env.Notifier, "Signed in", name)
	s.env.Changed()
	return nil
}

func (s *signInScreen) Wait()  {}
func (s *signInScreen) Close() {}
