package anilist

import (
	"context"
	"errors"

	"github.com/extdeck/extdeck/pkg/fetch"
)

const (
	defaultAPIURL  = "https://graphql.anilist.co"
	defaultAuthURL = "https://anilist.co"
	tokenPath      = "/api/v2/oauth/token"
	searchPageSize = 20
)

const mediaFields = `
    id
    title { romaji english native }
    format
    status
    episodes
    averageScore
    season
    seasonYear
    siteUrl
    coverImage { large }
    studios(isMain: true) { nodes { name } }
    nextAiringEpisode { episode timeUntilAiring }`

const searchQuery = `query ($search: String, $perPage: Int) {
  Page(perPage: $perPage) {
    media(search: $search, type: ANIME, sort: SEARCH_MATCH) {` + mediaFields + `
    }
  }
}`

const viewerQuery = `query { Viewer { id name } }`

const watchingQuery = `query ($userId: Int) {
  MediaListCollection(userId: $userId, type: ANIME, status_in: [CURRENT, REPEATING]) {
    lists {
      entries {
        id
        status
        progress
        updatedAt
        media {` + mediaFields + `
        }
      }
    }
  }
}`

const saveEntryMutation = `mutation ($id: Int, $mediaId: Int, $progress: Int, $status: MediaListStatus) {
  SaveMediaListEntry(id: $id, mediaId: $mediaId, progress: $progress, status: $status) {
    id
    status
    progress
    updatedAt
  }
}`

type rawTitle struct {
	Romaji  *string `json:"romaji"`
	English *string `json:"english"`
	Native  *string `json:"native"`
}

type rawMedia struct {
	ID           int      `json:"id"`
	Title        rawTitle `json:"title"`
	Format       *string  `json:"format"`
	Status       *string  `json:"status"`
	Episodes     *int     `json:"episodes"`
	AverageScore *int     `json:"averageScore"`
	Season       *string  `json:"season"`
	SeasonYear   *int     `json:"seasonYear"`
	SiteURL      string   `json:"siteUrl"`
	CoverImage   struct {
		Large *string `json:"large"`
	} `json:"coverImage"`
	Studios struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"studios"`
	NextAiringEpisode *struct {
		Episode         int   `json:"episode"`
		TimeUntilAiring int64 `json:"timeUntilAiring"`
	} `json:"nextAiringEpisode"`
}

type rawSearch struct {
	Page *struct {
		Media []rawMedia `json:"media"`
	} `json:"Page"`
}

func (r rawSearch) Validate() error {
	if r.Page == nil {
		return errors.New("missing Page")
	}
	return nil
}

type rawViewer struct {
	Viewer *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"Viewer"`
}

func (r rawViewer) Validate() error {
	if r.Viewer == nil || r.Viewer.ID == 0 {
		return errors.New("missing Viewer")
	}
	return nil
}

type rawEntry struct {
	ID        int       `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	UpdatedAt int64     `json:"updatedAt"`
	Media     *rawMedia `json:"media"`
}

type rawCollection struct {
	MediaListCollection *struct {
		Lists []struct {
			Entries []rawEntry `json:"entries"`
		} `json:"lists"`
	} `json:"MediaListCollection"`
}

func (r rawCollection) Validate() error {
	if r.MediaListCollection == nil {
		return errors.New("missing MediaListCollection")
	}
	return nil
}

type rawSaved struct {
	SaveMediaListEntry *rawEntry `json:"SaveMediaListEntry"`
}

func (r rawSaved) Validate() error {
	if r.SaveMediaListEntry == nil {
		return errors.New("missing SaveMediaListEntry")
	}
	return nil
}

type api struct {
	c *fetch.Client
}

func (a *api) search(ctx context.Context, text string) ([]rawMedia, error) {
	r, err := fetch.GraphQL[rawSearch](ctx, a.c, "", searchQuery, map[string]any{
		"search":  text,
		"perPage": searchPageSize,
	})
	if err != nil {
		return nil, err
	}
	return r.Page.Media, nil
}

func (a *api) viewer(ctx context.Context) (int, string, error) {
	r, err := fetch.GraphQL[rawViewer](ctx, a.c, "", viewerQuery, nil)
	if err != nil {
		return 0, "", err
	}
	return r.Viewer.ID, r.Viewer.Name, nil
}

func (a *api) watching(ctx context.Context, userID int) ([]rawEntry, error) {
	r, err := fetch.GraphQL[rawCollection](ctx, a.c, "", watchingQuery, map[string]any{"userId": userID})
	if err != nil {
		return nil, err
	}
	var out []rawEntry
	for _, l := range r.MediaListCollection.Lists {
		out = append(out, l.Entries...)
	}
	return out, nil
}

// saveEntry updates an existing list entry by id, or creates one for
// mediaId when id is zero. Zero progress and empty status are omitted.
func (a *api) saveEntry(ctx context.Context, id, mediaID, progress int, status string) (rawEntry, error) {
	vars := map[string]any{}
	if id != 0 {
		vars["id"] = id
	}
	if mediaID != 0 {
		vars["mediaId"] = mediaID
	}
	if progress != 0 {
		vars["progress"] = progress
	}
	if status != "" {
		vars["status"] = status
	}
	r, err := fetch.GraphQL[rawSaved](ctx, a.c, "", saveEntryMutation, vars)
	if err != nil {
		return rawEntry{}, err
	}
	return *r.SaveMediaListEntry, nil
}
