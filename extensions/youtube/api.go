package youtube

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/mmcdole/gofeed"

	"github.com/extdeck/extdeck/pkg/fetch"
)

const defaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

type api struct {
	c       *fetch.Client
	feedURL string
}

// channelFeed fetches a channel's Atom feed. Unparseable bodies are shape
// errors. A gofeed.Parser caches its translators on first use, so each call
// gets its own.
func (a *api) channelFeed(ctx context.Context, channelID string) (*gofeed.Feed, error) {
	data, err := a.c.Do(ctx, http.MethodGet, a.feedURL, url.Values{"channel_id": {channelID}}, nil)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &fetch.ShapeError{Type: "channel feed", Err: err}
	}
	return feed, nil
}
