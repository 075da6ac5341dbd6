// Last.fm API wrapper.
//
// Response types based on https://www.last.fm/api (format=json)
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/scrobtools/scrob/internal/shared"
)

const lastfmBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Terminal Last.fm API error codes. A sync run skips the user instead of
// retrying when one of these comes back.
const (
	lfmErrUserNotFound = 6
	lfmErrSuspended    = 17
)

// lfmText is the common {"#text": ..., "mbid": ...} shape.
type lfmText struct {
	Text string `json:"#text"`
	MBID string `json:"mbid"`
}

// RecentTrack is one scrobble row from user.getrecenttracks.
type RecentTrack struct {
	Artist lfmText `json:"artist"`
	Name   string  `json:"name"`
	MBID   string  `json:"mbid"`
	Album  lfmText `json:"album"`
	Date   struct {
		UTS string `json:"uts"`
	} `json:"date"`
	Attr struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

// NowPlaying reports whether the row is the currently-playing track rather
// than a completed scrobble.
func (t *RecentTrack) NowPlaying() bool {
	return t.Attr.NowPlaying == "true"
}

// Timestamp returns the scrobble's unix timestamp, 0 when the row is dateless.
func (t *RecentTrack) Timestamp() int64 {
	return parseInt64(t.Date.UTS)
}

// RecentTracksPage is one page of a user's listening history.
type RecentTracksPage struct {
	Tracks     []RecentTrack
	Page       int
	TotalPages int
	Total      int64
}

// LastFMArtistInfo is the artist.getinfo payload.
type LastFMArtistInfo struct {
	Name  string `json:"name"`
	MBID  string `json:"mbid"`
	URL   string `json:"url"`
	Stats struct {
		Listeners string `json:"listeners"`
		Playcount string `json:"playcount"`
	} `json:"stats"`
	Similar struct {
		Artist []struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"similar"`
	Tags struct {
		Tag []lfmTag `json:"tag"`
	} `json:"tags"`
	Bio struct {
		Summary string `json:"summary"`
		Content string `json:"content"`
	} `json:"bio"`
	Image []struct {
		URL  string `json:"#text"`
		Size string `json:"size"`
	} `json:"image"`
}

// Listeners returns the listener count as an integer.
func (a *LastFMArtistInfo) Listeners() int64 { return parseInt64(a.Stats.Listeners) }

// Playcount returns the global playcount as an integer.
func (a *LastFMArtistInfo) Playcount() int64 { return parseInt64(a.Stats.Playcount) }

// TagNames returns the artist's tag names in ranked order.
func (a *LastFMArtistInfo) TagNames() []string { return tagNames(a.Tags.Tag) }

// SimilarNames returns the similar artist names in ranked order.
func (a *LastFMArtistInfo) SimilarNames() []string {
	names := make([]string, 0, len(a.Similar.Artist))
	for _, s := range a.Similar.Artist {
		names = append(names, s.Name)
	}
	return names
}

// LargestImage returns the URL of the largest listed artist image.
func (a *LastFMArtistInfo) LargestImage() string {
	var best string
	for _, img := range a.Image {
		if img.URL != "" {
			best = img.URL
		}
	}
	return best
}

// LastFMAlbumInfo is the album.getinfo payload.
type LastFMAlbumInfo struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	MBID   string `json:"mbid"`
	URL    string `json:"url"`
	Tracks struct {
		Track []struct {
			Name string `json:"name"`
		} `json:"track"`
	} `json:"tracks"`
	Tags struct {
		Tag []lfmTag `json:"tag"`
	} `json:"tags"`
}

// TagNames returns the album's tag names in ranked order.
func (a *LastFMAlbumInfo) TagNames() []string { return tagNames(a.Tags.Tag) }

// LastFMTrackInfo is the track.getinfo payload.
type LastFMTrackInfo struct {
	Name     string `json:"name"`
	MBID     string `json:"mbid"`
	URL      string `json:"url"`
	Duration string `json:"duration"`
	Album    struct {
		Title  string `json:"title"`
		MBID   string `json:"mbid"`
		Artist string `json:"artist"`
	} `json:"album"`
	TopTags struct {
		Tag []lfmTag `json:"tag"`
	} `json:"toptags"`
}

// DurationMS returns the track duration in milliseconds.
func (t *LastFMTrackInfo) DurationMS() int64 { return parseInt64(t.Duration) }

// TagNames returns the track's tag names in ranked order.
func (t *LastFMTrackInfo) TagNames() []string { return tagNames(t.TopTags.Tag) }

type lfmTag struct {
	Name string `json:"name"`
}

// lfmAPIError is the JSON error envelope Last.fm returns alongside non-2xx
// statuses (and occasionally inside 200 bodies).
type lfmAPIError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// LastFMClient wraps the Last.fm REST API.
type LastFMClient struct {
	client  *Client
	apiKey  string
	baseURL string
}

// NewLastFMClient creates a Last.fm client with the given API key.
// A nil httpClient uses a default client with [DefaultTimeout].
func NewLastFMClient(apiKey string, httpClient *http.Client, logger *log.Logger) *LastFMClient {
	return &LastFMClient{
		client:  NewClient("lastfm", LastFMInterval, httpClient, logger),
		apiKey:  apiKey,
		baseURL: lastfmBaseURL,
	}
}

// SetBaseURL overrides the API base URL, used by tests.
func (l *LastFMClient) SetBaseURL(u string) { l.baseURL = u }

// RecentTracks fetches one page of a user's listening history.
// from and to are unix-timestamp bounds, 0 means unbounded.
func (l *LastFMClient) RecentTracks(ctx context.Context, user string, page, limit int, from, to int64) (*RecentTracksPage, error) {
	params := url.Values{}
	params.Set("method", "user.getrecenttracks")
	params.Set("user", user)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	if from > 0 {
		params.Set("from", strconv.FormatInt(from, 10))
	}
	if to > 0 {
		params.Set("to", strconv.FormatInt(to, 10))
	}

	var raw struct {
		RecentTracks struct {
			Track []RecentTrack `json:"track"`
			Attr  struct {
				Page       string `json:"page"`
				TotalPages string `json:"totalPages"`
				Total      string `json:"total"`
			} `json:"@attr"`
		} `json:"recenttracks"`
	}
	if err := l.get(ctx, params, &raw); err != nil {
		return nil, err
	}

	return &RecentTracksPage{
		Tracks:     raw.RecentTracks.Track,
		Page:       int(parseInt64(raw.RecentTracks.Attr.Page)),
		TotalPages: int(parseInt64(raw.RecentTracks.Attr.TotalPages)),
		Total:      parseInt64(raw.RecentTracks.Attr.Total),
	}, nil
}

// ArtistInfo fetches artist metadata with autocorrected naming.
func (l *LastFMClient) ArtistInfo(ctx context.Context, artist string) (*LastFMArtistInfo, error) {
	params := url.Values{}
	params.Set("method", "artist.getinfo")
	params.Set("artist", artist)
	params.Set("autocorrect", "1")

	var raw struct {
		Artist *LastFMArtistInfo `json:"artist"`
	}
	if err := l.get(ctx, params, &raw); err != nil {
		return nil, err
	}
	if raw.Artist == nil {
		return nil, fmt.Errorf("lastfm: empty artist.getinfo response for %q", artist)
	}
	return raw.Artist, nil
}

// AlbumInfo fetches album metadata with autocorrected naming.
func (l *LastFMClient) AlbumInfo(ctx context.Context, artist, album string) (*LastFMAlbumInfo, error) {
	params := url.Values{}
	params.Set("method", "album.getinfo")
	params.Set("artist", artist)
	params.Set("album", album)
	params.Set("autocorrect", "1")

	var raw struct {
		Album *LastFMAlbumInfo `json:"album"`
	}
	if err := l.get(ctx, params, &raw); err != nil {
		return nil, err
	}
	if raw.Album == nil {
		return nil, fmt.Errorf("lastfm: empty album.getinfo response for %q / %q", artist, album)
	}
	return raw.Album, nil
}

// TrackInfo fetches track metadata with autocorrected naming.
func (l *LastFMClient) TrackInfo(ctx context.Context, artist, track string) (*LastFMTrackInfo, error) {
	params := url.Values{}
	params.Set("method", "track.getinfo")
	params.Set("artist", artist)
	params.Set("track", track)
	params.Set("autocorrect", "1")

	var raw struct {
		Track *LastFMTrackInfo `json:"track"`
	}
	if err := l.get(ctx, params, &raw); err != nil {
		return nil, err
	}
	if raw.Track == nil {
		return nil, fmt.Errorf("lastfm: empty track.getinfo response for %q / %q", artist, track)
	}
	return raw.Track, nil
}

// get performs an API call with the common key/format parameters attached
// and maps Last.fm error envelopes onto sentinel errors.
func (l *LastFMClient) get(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", l.apiKey)
	params.Set("format", "json")

	err := l.client.GetJSON(ctx, l.baseURL+"?"+params.Encode(), nil, out)
	if err != nil {
		return l.mapError(err)
	}
	return nil
}

// mapError decodes a Last.fm error envelope out of an HTTP error body.
func (l *LastFMClient) mapError(err error) error {
	var he *HTTPError
	if !errors.As(err, &he) {
		return err
	}

	var ae lfmAPIError
	if json.Unmarshal(he.Body, &ae) != nil || ae.Code == 0 {
		return err
	}

	switch ae.Code {
	case lfmErrUserNotFound:
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, ae.Message)
	case lfmErrSuspended:
		return fmt.Errorf("%w: %s", shared.ErrPrivateProfile, ae.Message)
	}
	return fmt.Errorf("lastfm error %d: %s", ae.Code, ae.Message)
}

// parseInt64 parses Last.fm's stringly-typed counters, returning 0 on junk.
func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// tagNames flattens a tag list into names.
func tagNames(tags []lfmTag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}
