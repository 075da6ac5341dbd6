// ListenBrainz API wrapper.
//
// Response types based on https://listenbrainz.readthedocs.io/en/latest/users/api/
package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	listenbrainzBaseURL = "https://api.listenbrainz.org/1"

	// MaxListensPerPage is the hard cap the API enforces on count.
	MaxListensPerPage = 1000
)

// Listen is one play from a user's listen feed.
type Listen struct {
	ListenedAt    int64  `json:"listened_at"`
	RecordingMSID string `json:"recording_msid"`
	TrackMetadata struct {
		ArtistName     string `json:"artist_name"`
		TrackName      string `json:"track_name"`
		ReleaseName    string `json:"release_name"`
		AdditionalInfo struct {
			ArtistMBIDs   []string `json:"artist_mbids"`
			ReleaseMBID   string   `json:"release_mbid"`
			RecordingMBID string   `json:"recording_mbid"`
		} `json:"additional_info"`
	} `json:"track_metadata"`
}

// ArtistMBID returns the first artist MBID, empty when unmapped.
func (l *Listen) ArtistMBID() string {
	if len(l.TrackMetadata.AdditionalInfo.ArtistMBIDs) > 0 {
		return l.TrackMetadata.AdditionalInfo.ArtistMBIDs[0]
	}
	return ""
}

// ListensPage is one page of a user's listen feed, newest first.
type ListensPage struct {
	Count   int      `json:"count"`
	Listens []Listen `json:"listens"`
}

// OldestTimestamp returns the smallest listened_at on the page, 0 when empty.
// Pagination passes it as the next max_ts cursor.
func (p *ListensPage) OldestTimestamp() int64 {
	var oldest int64
	for _, l := range p.Listens {
		if oldest == 0 || l.ListenedAt < oldest {
			oldest = l.ListenedAt
		}
	}
	return oldest
}

// ListenBrainzClient wraps the ListenBrainz REST API.
type ListenBrainzClient struct {
	client  *Client
	baseURL string
}

// NewListenBrainzClient creates a ListenBrainz client. baseURL and userAgent
// fall back to project defaults when empty.
func NewListenBrainzClient(baseURL, userAgent string, httpClient *http.Client, logger *log.Logger) *ListenBrainzClient {
	if baseURL == "" {
		baseURL = listenbrainzBaseURL
	}
	c := NewClient("listenbrainz", ListenBrainzInterval, httpClient, logger)
	if userAgent != "" {
		c.SetUserAgent(userAgent)
	}
	return &ListenBrainzClient{client: c, baseURL: strings.TrimRight(baseURL, "/")}
}

// Listens fetches one page of a user's listen feed. maxTS bounds the page to
// listens strictly older than the given timestamp, 0 means newest page.
func (lb *ListenBrainzClient) Listens(ctx context.Context, user string, maxTS int64, count int) (*ListensPage, error) {
	if count <= 0 || count > MaxListensPerPage {
		count = MaxListensPerPage
	}

	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	if maxTS > 0 {
		params.Set("max_ts", strconv.FormatInt(maxTS, 10))
	}

	var raw struct {
		Payload ListensPage `json:"payload"`
	}
	endpoint := lb.baseURL + "/user/" + url.PathEscape(user) + "/listens?" + params.Encode()
	if err := lb.client.GetJSON(ctx, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	return &raw.Payload, nil
}

// ListenCount fetches the user's total listen count.
func (lb *ListenBrainzClient) ListenCount(ctx context.Context, user string) (int64, error) {
	var raw struct {
		Payload struct {
			Count int64 `json:"count"`
		} `json:"payload"`
	}
	endpoint := lb.baseURL + "/user/" + url.PathEscape(user) + "/listen-count"
	if err := lb.client.GetJSON(ctx, endpoint, nil, &raw); err != nil {
		return 0, err
	}
	return raw.Payload.Count, nil
}
