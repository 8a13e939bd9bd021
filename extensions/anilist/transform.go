package anilist

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/extdeck/extdeck/pkg/transform"
)

// Media is an anime as shown in lists.
type Media struct {
	ID          int           `json:"id"`
	Title       string        `json:"title"`
	Native      string        `json:"native,omitempty"`
	Format      string        `json:"format,omitempty"`
	Status      string        `json:"status"`
	Episodes    int           `json:"episodes,omitempty"`
	Score       int           `json:"score,omitempty"`
	Season      string        `json:"season,omitempty"`
	Studio      string        `json:"studio,omitempty"`
	URL         string        `json:"url"`
	Cover       string        `json:"cover,omitempty"`
	NextEpisode int           `json:"nextEpisode,omitempty"`
	AiringIn    time.Duration `json:"airingIn,omitempty"`
}

// Entry is a media list entry of the signed in user.
type Entry struct {
	ID        int       `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	UpdatedAt time.Time `json:"updatedAt"`
	Media     Media     `json:"media"`
}

// CanAdvance reports whether another episode can be marked as watched.
func (e Entry) CanAdvance() bool {
	return e.Media.Episodes == 0 || e.Progress < e.Media.Episodes
}

// ProgressText is "watched/total", with "?" for an unknown total.
func (e Entry) ProgressText() string {
	total := "?"
	if e.Media.Episodes > 0 {
		total = strconv.Itoa(e.Media.Episodes)
	}
	return strconv.Itoa(e.Progress) + "/" + total
}

// Watching is the signed in user's current list.
type Watching struct {
	User    string  `json:"user"`
	Entries []Entry `json:"entries"`
}

func toMedia(r rawMedia) Media {
	m := Media{
		ID:       r.ID,
		Title:    transform.Or(transform.Str(r.Title.English), transform.Or(transform.Str(r.Title.Romaji), transform.Str(r.Title.Native))),
		Native:   transform.Str(r.Title.Native),
		Format:   formatFormat(transform.Str(r.Format)),
		Status:   formatStatus(transform.Str(r.Status)),
		Episodes: transform.Deref(r.Episodes),
		Score:    transform.Deref(r.AverageScore),
		Season:   seasonString(transform.Str(r.Season), transform.Deref(r.SeasonYear)),
		URL:      transform.Or(r.SiteURL, "https://anilist.co/anime/"+strconv.Itoa(r.ID)),
		Cover:    transform.Str(r.CoverImage.Large),
	}
	if len(r.Studios.Nodes) > 0 {
		m.Studio = r.Studios.Nodes[0].Name
	}
	if n := r.NextAiringEpisode; n != nil {
		m.NextEpisode = n.Episode
		m.AiringIn = time.Duration(n.TimeUntilAiring) * time.Second
	}
	return m
}

func toEntry(r rawEntry) Entry {
	e := Entry{
		ID:       r.ID,
		Status:   r.Status,
		Progress: r.Progress,
	}
	if r.UpdatedAt > 0 {
		e.UpdatedAt = time.Unix(r.UpdatedAt, 0).UTC()
	}
	if r.Media != nil {
		e.Media = toMedia(*r.Media)
	}
	return e
}

// toWatching orders entries by most recently updated.
func toWatching(user string, raw []rawEntry) Watching {
	entries := transform.Map(raw, toEntry)
	slices.SortStableFunc(entries, func(a, b Entry) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return Watching{User: user, Entries: entries}
}

var statusNames = map[string]string{
	"FINISHED":         "Finished",
	"RELEASING":        "Airing",
	"NOT_YET_RELEASED": "Not Yet Aired",
	"CANCELLED":        "Cancelled",
	"HIATUS":           "On Hiatus",
}

func formatStatus(s string) string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

func formatFormat(f string) string {
	switch f {
	case "":
		return ""
	case "TV", "OVA", "ONA":
		return f
	case "TV_SHORT":
		return "TV Short"
	}
	return strings.ToUpper(f[:1]) + strings.ToLower(f[1:])
}

func seasonString(season string, year int) string {
	if season == "" || year == 0 {
		if year > 0 {
			return strconv.Itoa(year)
		}
		return ""
	}
	return strings.ToUpper(season[:1]) + strings.ToLower(season[1:]) + " " + strconv.Itoa(year)
}

// formatScore renders an average score out of 100.
func formatScore(score int) string {
	if score <= 0 {
		return "N/A"
	}
	return strconv.Itoa(score) + "%"
}

// formatCountdown renders d in days, hours and minutes, dropping the
// smallest units once days are shown.
func formatCountdown(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d%(24*time.Hour)) / int(time.Hour)
	mins := int(d%time.Hour) / int(time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", max(mins, 1))
}
