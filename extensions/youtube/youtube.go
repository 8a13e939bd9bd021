// Package youtube lists the latest uploads of chosen channels from their
// public Atom feeds.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/binding"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/pins"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

const (
	feedMaxAge   = 15 * time.Minute
	favoritesKey = "favorites"
	// maxConcurrentFeeds bounds parallel channel fetches.
	maxConcurrentFeeds = 4
)

// New returns the extension definition.
func New() *extension.Extension {
	return &extension.Extension{
		Name:        "youtube",
		Title:       "YouTube",
		Description: "Latest videos from your channels",
		Preferences: []extension.PreferenceSpec{
			{Name: "channels", Title: "Channel IDs", Description: "Comma separated, e.g. UC_x5XG1OV2P6uZZ5FSM9Ttw", Required: true},
			{Name: "feed_url", Title: "Feed URL", Default: defaultFeedURL},
		},
		Commands: []extension.Command{
			{Name: "videos", Title: "Latest Videos", Open: openVideos},
		},
	}
}

type videosScreen struct {
	env       *extension.Env
	api       *api
	channels  []string
	feed      *binding.Binding[string, Feed]
	favorites *pins.Set

	mu      sync.Mutex
	pinned  []string
	search  string
	channel string
}

func openVideos(ctx context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	channels := env.Prefs.List("channels")
	if len(channels) == 0 {
		return nil, &extension.MissingPreferenceError{Extension: env.Extension, Names: []string{"channels"}}
	}
	s := &videosScreen{
		env: env,
		api: &api{
			c:       env.Client(""),
			feedURL: env.Prefs.StringOr("feed_url", defaultFeedURL),
		},
		channels:  channels,
		favorites: pins.New(env.Store, favoritesKey),
		channel:   "all",
	}
	var err error
	if s.pinned, err = s.favorites.IDs(ctx); err != nil {
		return nil, fmt.Errorf("loading favorites: %w", err)
	}
	s.feed = binding.New(s.load, Feed{Videos: []Video{}, Failed: []string{}},
		binding.WithCache(env.Cache, "videos"),
		binding.WithMaxAge(feedMaxAge),
		binding.WithNotifier(env.Notifier, "Failed to load videos"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.feed.Update(strings.Join(channels, ","))
	return s, nil
}

// load fetches every channel with bounded concurrency. It fails only when
// no channel could be loaded.
func (s *videosScreen) load(ctx context.Context, _ string) (Feed, error) {
	type result struct {
		channel string
		videos  []Video
		err     error
	}
	results := make([]result, len(s.channels))
	sem := make(chan struct{}, maxConcurrentFeeds)
	var wg sync.WaitGroup
	for i, ch := range s.channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			f, err := s.api.channelFeed(ctx, ch)
			if err != nil {
				results[i] = result{channel: ch, err: err}
				return
			}
			results[i] = result{channel: ch, videos: toVideos(ch, f)}
		}()
	}
	wg.Wait()

	out := Feed{Videos: []Video{}, Failed: []string{}}
	var errs []error
	for _, r := range results {
		if r.err != nil {
			s.env.Log().Warn("loading channel feed", "channel", r.channel, "err", r.err)
			out.Failed = append(out.Failed, r.channel)
			errs = append(errs, r.err)
			continue
		}
		out.Videos = append(out.Videos, r.videos...)
	}
	if len(errs) == len(s.channels) {
		return Feed{}, errors.Join(errs...)
	}
	newestFirst(out.Videos)
	return out, nil
}

func (s *videosScreen) Search(text string) {
	s.mu.Lock()
	s.search = text
	s.mu.Unlock()
	s.env.Changed()
}

func (s *videosScreen) Filter(value string) {
	if value != "all" && !slices.Contains(s.channels, value) {
		value = "all"
	}
	s.mu.Lock()
	s.channel = value
	s.mu.Unlock()
	s.env.Changed()
}

func (s *videosScreen) Render() view.View {
	st := s.feed.State()
	s.mu.Lock()
	pinned := slices.Clone(s.pinned)
	search, channel := s.search, s.channel
	s.mu.Unlock()

	names := map[string]string{}
	for _, v := range st.Data.Videos {
		names[v.ChannelID] = v.Channel
	}
	options := []view.Option{{Value: "all", Title: "All Channels"}}
	for _, ch := range s.channels {
		options = append(options, view.Option{Value: ch, Title: transform.Or(names[ch], ch)})
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	videos := transform.Filter(st.Data.Videos, func(v Video) bool {
		if channel != "all" && v.ChannelID != channel {
			return false
		}
		return needle == "" || strings.Contains(strings.ToLower(v.Title+" "+v.Channel), needle)
	})
	favs, rest := pins.Partition(videos, pinned, func(v Video) string { return v.ID })

	item := func(v Video) view.Item { return videoItem(pinned, v) }
	l := &view.List{
		Title:             "Latest Videos",
		IsLoading:         st.IsLoading,
		SearchText:        search,
		SearchPlaceholder: "Search videos",
		Dropdown:          &view.Dropdown{ID: "channel", Tooltip: "Channel", Value: channel, Options: options},
		Sections: []view.Section{
			{Title: "Favorites", Items: transform.Map(favs, item)},
			{Title: "Latest", Items: transform.Map(rest, item)},
		},
	}
	if n := len(st.Data.Failed); n > 0 {
		l.Sections[1].Subtitle = fmt.Sprintf("%d of %d channels failed to load", n, len(s.channels))
	}
	if len(videos) == 0 && !st.IsLoading {
		l.Empty = &view.Empty{Title: "No videos"}
		if st.Err != nil {
			l.Empty = &view.Empty{Title: "Could not load videos", Description: fetch.Message(st.Err)}
		}
	}
	return l
}

func videoItem(pinned []string, v Video) view.Item {
	it := view.Item{
		ID:       v.ID,
		Title:    v.Title,
		Subtitle: v.Channel,
		Icon:     &view.Icon{Source: transform.Or(v.Thumbnail, "video")},
		Actions: []view.Action{
			view.OpenAction("Watch on YouTube", v.URL),
			view.CopyAction("Copy Video URL", v.URL),
		},
		Detail: &view.Detail{
			Markdown: fmt.Sprintf("![%s](%s)\n\n%s", v.Title, v.Thumbnail, v.Description),
			Metadata: []view.Metadata{
				{Label: "Channel", Text: v.Channel, Link: "https://www.youtube.com/channel/" + v.ChannelID},
				{Label: "Published", Text: v.Published.Format("2006-01-02 15:04")},
				{Label: "Views", Text: formatViews(v.Views)},
			},
		},
	}
	if v.Views > 0 {
		it.Accessories = append(it.Accessories, view.Accessory{Text: formatViews(v.Views)})
	}
	if !v.Published.IsZero() {
		it.Accessories = append(it.Accessories, view.Accessory{Date: v.Published.Format(time.RFC3339), Tooltip: "Published"})
	}

	i := slices.Index(pinned, v.ID)
	if i < 0 {
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("favorite", v.ID), "Add to Favorites").WithShortcut("cmd+shift+f"))
	} else {
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("unfavorite", v.ID), "Remove from Favorites").WithShortcut("cmd+shift+f"))
		if i > 0 {
			it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("move-up", v.ID), "Move Up in Favorites"))
		}
		if i < len(pinned)-1 {
			it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("move-down", v.ID), "Move Down in Favorites"))
		}
	}
	it.Actions = append(it.Actions, view.PerformAction("refresh", "Refresh").WithShortcut("cmd+r"))
	return it
}

func (s *videosScreen) Perform(ctx context.Context, action string, _ map[string]string) error {
	verb, ops := extension.ParseAction(action)
	if verb == "refresh" {
		s.feed.Revalidate()
		return nil
	}
	if len(ops) != 1 {
		return extension.UnknownAction(action)
	}
	id := ops[0]

	var (
		changed bool
		err     error
		title   string
	)
	switch verb {
	case "favorite":
		changed, err = s.favorites.Pin(ctx, id)
		title = "Added to favorites"
	case "unfavorite":
		changed, err = s.favorites.Unpin(ctx, id)
		title = "Removed from favorites"
	case "move-up":
		changed, err = s.favorites.Move(ctx, id, pins.Up)
	case "move-down":
		changed, err = s.favorites.Move(ctx, id, pins.Down)
	default:
		return extension.UnknownAction(action)
	}
	if err != nil {
		s.env.Toast("Failed to update favorites", err)
		return err
	}
	ids, err := s.favorites.IDs(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pinned = ids
	s.mu.Unlock()
	if changed && title != "" {
		notify.Success(s.env.Notifier, title, s.videoTitle(id))
	}
	s.env.Changed()
	return nil
}

func (s *videosScreen) videoTitle(id string) string {
	for _, v := range s.feed.State().Data.Videos {
		if v.ID == id {
			return v.Title
		}
	}
	return id
}

func (s *videosScreen) Wait()  { s.feed.Wait() }
func (s *videosScreen) Close() { s.feed.Close() }
