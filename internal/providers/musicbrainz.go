// MusicBrainz API wrapper.
//
// Response types based on https://musicbrainz.org/doc/MusicBrainz_API (fmt=json)
package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	musicbrainzBaseURL = "https://musicbrainz.org/ws/2"

	// MusicBrainz rejects requests without a contact-bearing User-Agent.
	defaultMBUserAgent = "scrob/1.0 (https://github.com/scrobtools/scrob)"
)

// MBGenre is a weighted genre tag on any MusicBrainz entity.
type MBGenre struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// MBArtist is an artist entity, populated fully by lookup and sparsely by search.
type MBArtist struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Score  int       `json:"score"`
	Genres []MBGenre `json:"genres"`
	Tags   []MBGenre `json:"tags"`
}

// MBReleaseGroup groups the editions of one album.
type MBReleaseGroup struct {
	ID               string    `json:"id"`
	PrimaryType      string    `json:"primary-type"`
	FirstReleaseDate string    `json:"first-release-date"`
	Genres           []MBGenre `json:"genres"`
}

// MBRelease is one concrete edition of an album.
type MBRelease struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Date         string         `json:"date"`
	Country      string         `json:"country"`
	Barcode      string         `json:"barcode"`
	Status       string         `json:"status"`
	Packaging    string         `json:"packaging"`
	Score        int            `json:"score"`
	ReleaseGroup MBReleaseGroup `json:"release-group"`
	LabelInfo    []struct {
		Label struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
	Media []struct {
		TrackCount int64 `json:"track-count"`
	} `json:"media"`
	Genres []MBGenre `json:"genres"`
	Tags   []MBGenre `json:"tags"`
}

// Label returns the first label name, empty when unlabeled.
func (r *MBRelease) Label() string {
	for _, li := range r.LabelInfo {
		if li.Label.Name != "" {
			return li.Label.Name
		}
	}
	return ""
}

// TotalTracks sums track counts across the release's media.
func (r *MBRelease) TotalTracks() int64 {
	var total int64
	for _, m := range r.Media {
		total += m.TrackCount
	}
	return total
}

// BestDate prefers the release group's first release date over the edition date.
func (r *MBRelease) BestDate() string {
	if r.ReleaseGroup.FirstReleaseDate != "" {
		return r.ReleaseGroup.FirstReleaseDate
	}
	return r.Date
}

// MBRecording is a track entity.
type MBRecording struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Length int64     `json:"length"`
	Score  int       `json:"score"`
	ISRCs  []string  `json:"isrcs"`
	Genres []MBGenre `json:"genres"`
	Tags   []MBGenre `json:"tags"`
}

// MusicBrainzClient wraps the MusicBrainz web service.
type MusicBrainzClient struct {
	client  *Client
	baseURL string
}

// NewMusicBrainzClient creates a MusicBrainz client. An empty userAgent falls
// back to the project default; MusicBrainz requires one either way.
func NewMusicBrainzClient(userAgent string, httpClient *http.Client, logger *log.Logger) *MusicBrainzClient {
	if userAgent == "" {
		userAgent = defaultMBUserAgent
	}
	c := NewClient("musicbrainz", MusicBrainzInterval, httpClient, logger)
	c.SetUserAgent(userAgent)
	return &MusicBrainzClient{client: c, baseURL: musicbrainzBaseURL}
}

// SetBaseURL overrides the API base URL, used by tests.
func (m *MusicBrainzClient) SetBaseURL(u string) { m.baseURL = u }

// SearchArtist returns the best-scoring artist match for a name, nil when
// nothing matches.
func (m *MusicBrainzClient) SearchArtist(ctx context.Context, name string) (*MBArtist, error) {
	params := url.Values{}
	params.Set("query", luceneField("artist", name))
	params.Set("limit", "1")

	var raw struct {
		Artists []MBArtist `json:"artists"`
	}
	if err := m.get(ctx, "/artist", params, &raw); err != nil {
		return nil, err
	}
	if len(raw.Artists) == 0 {
		return nil, nil
	}
	return &raw.Artists[0], nil
}

// LookupArtist fetches an artist by MBID with genres and tags attached.
func (m *MusicBrainzClient) LookupArtist(ctx context.Context, mbid string) (*MBArtist, error) {
	params := url.Values{}
	params.Set("inc", "genres tags")

	var artist MBArtist
	if err := m.get(ctx, "/artist/"+url.PathEscape(mbid), params, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// SearchRelease returns the best-scoring release match for an artist/album
// pair, nil when nothing matches.
func (m *MusicBrainzClient) SearchRelease(ctx context.Context, artist, album string) (*MBRelease, error) {
	params := url.Values{}
	params.Set("query", luceneField("release", album)+" AND "+luceneField("artist", artist))
	params.Set("limit", "1")

	var raw struct {
		Releases []MBRelease `json:"releases"`
	}
	if err := m.get(ctx, "/release", params, &raw); err != nil {
		return nil, err
	}
	if len(raw.Releases) == 0 {
		return nil, nil
	}
	return &raw.Releases[0], nil
}

// LookupRelease fetches a release by MBID with its group, labels, media, and
// genre tags attached.
func (m *MusicBrainzClient) LookupRelease(ctx context.Context, mbid string) (*MBRelease, error) {
	params := url.Values{}
	params.Set("inc", "release-groups labels recordings genres tags")

	var release MBRelease
	if err := m.get(ctx, "/release/"+url.PathEscape(mbid), params, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// SearchRecording returns the best-scoring recording match for an
// artist/track pair, nil when nothing matches.
func (m *MusicBrainzClient) SearchRecording(ctx context.Context, artist, track string) (*MBRecording, error) {
	params := url.Values{}
	params.Set("query", luceneField("recording", track)+" AND "+luceneField("artist", artist))
	params.Set("limit", "1")

	var raw struct {
		Recordings []MBRecording `json:"recordings"`
	}
	if err := m.get(ctx, "/recording", params, &raw); err != nil {
		return nil, err
	}
	if len(raw.Recordings) == 0 {
		return nil, nil
	}
	return &raw.Recordings[0], nil
}

// LookupRecording fetches a recording by MBID with ISRCs and genre tags attached.
func (m *MusicBrainzClient) LookupRecording(ctx context.Context, mbid string) (*MBRecording, error) {
	params := url.Values{}
	params.Set("inc", "isrcs genres tags")

	var recording MBRecording
	if err := m.get(ctx, "/recording/"+url.PathEscape(mbid), params, &recording); err != nil {
		return nil, err
	}
	return &recording, nil
}

func (m *MusicBrainzClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("fmt", "json")
	return m.client.GetJSON(ctx, m.baseURL+endpoint+"?"+params.Encode(), nil, out)
}

// luceneField builds a quoted field query, escaping embedded quotes.
func luceneField(field, value string) string {
	return field + `:"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}
