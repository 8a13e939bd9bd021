package youtube

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/extdeck/extdeck/pkg/transform"
)

// Video is one upload.
type Video struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	Channel     string    `json:"channel"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Thumbnail   string    `json:"thumbnail"`
	Description string    `json:"description"`
	Published   time.Time `json:"published"`
	Views       int       `json:"views"`
}

// Feed is the merged uploads of the configured channels.
type Feed struct {
	Videos []Video `json:"videos"`
	// Failed lists channels whose feed could not be loaded.
	Failed []string `json:"failed"`
}

func first(exts ext.Extensions, ns, name string) (ext.Extension, bool) {
	if es := exts[ns][name]; len(es) > 0 {
		return es[0], true
	}
	return ext.Extension{}, false
}

func child(e ext.Extension, name string) (ext.Extension, bool) {
	if cs := e.Children[name]; len(cs) > 0 {
		return cs[0], true
	}
	return ext.Extension{}, false
}

func toVideo(channelID string, f *gofeed.Feed, it *gofeed.Item) Video {
	v := Video{
		ChannelID: channelID,
		Channel:   f.Title,
		Title:     it.Title,
		URL:       it.Link,
	}
	if it.PublishedParsed != nil {
		v.Published = it.PublishedParsed.UTC()
	}
	if e, ok := first(it.Extensions, "yt", "videoId"); ok {
		v.ID = e.Value
	}
	if v.ID == "" {
		v.ID = strings.TrimPrefix(it.GUID, "yt:video:")
	}
	if v.URL == "" {
		v.URL = "https://www.youtube.com/watch?v=" + v.ID
	}
	if g, ok := first(it.Extensions, "media", "group"); ok {
		if th, ok := child(g, "thumbnail"); ok {
			v.Thumbnail = th.Attrs["url"]
		}
		if d, ok := child(g, "description"); ok {
			v.Description = strings.TrimSpace(d.Value)
		}
		if c, ok := child(g, "community"); ok {
			if st, ok := child(c, "statistics"); ok {
				v.Views, _ = strconv.Atoi(st.Attrs["views"])
			}
		}
	}
	return v
}

func toVideos(channelID string, f *gofeed.Feed) []Video {
	return transform.Map(f.Items, func(it *gofeed.Item) Video { return toVideo(channelID, f, it) })
}

// newestFirst orders videos by publish time, newest first.
func newestFirst(vs []Video) {
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Published.After(vs[j].Published) })
}

// formatViews renders 1234567 as "1.2M views".
func formatViews(n int) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M views"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K views"
	case n == 1:
		return "1 view"
	}
	return strconv.Itoa(n) + " views"
}
