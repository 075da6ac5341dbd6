// Discogs API wrapper.
//
// Response types based on https://www.discogs.com/developers
package providers

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

const discogsBaseURL = "https://api.discogs.com"

// DiscogsResult is one row of a database search response.
type DiscogsResult struct {
	ID     int64    `json:"id"`
	Title  string   `json:"title"`
	Year   string   `json:"year"`
	Genre  []string `json:"genre"`
	Style  []string `json:"style"`
	Label  []string `json:"label"`
	Type   string   `json:"type"`
	Format []string `json:"format"`
}

// Genres merges the coarse genre list with the finer style list, styles last.
func (r *DiscogsResult) Genres() []string {
	merged := make([]string, 0, len(r.Genre)+len(r.Style))
	merged = append(merged, r.Genre...)
	merged = append(merged, r.Style...)
	return merged
}

// DiscogsClient wraps the Discogs database search API.
//
// The client is optional: constructed with no tokens it reports disabled and
// every call returns empty without touching the network. With multiple tokens
// requests rotate through them so concurrent enrichment workers spread the
// per-token rate limit.
type DiscogsClient struct {
	client  *Client
	tokens  []string
	next    atomic.Uint64
	baseURL string
}

// NewDiscogsClient creates a Discogs client over the given personal access tokens.
func NewDiscogsClient(tokens []string, httpClient *http.Client, logger *log.Logger) *DiscogsClient {
	clean := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			clean = append(clean, t)
		}
	}
	return &DiscogsClient{
		client:  NewClient("discogs", DiscogsInterval, httpClient, logger),
		tokens:  clean,
		baseURL: discogsBaseURL,
	}
}

// SetBaseURL overrides the API base URL, used by tests.
func (d *DiscogsClient) SetBaseURL(u string) { d.baseURL = u }

// Enabled reports whether the client has any tokens to authenticate with.
func (d *DiscogsClient) Enabled() bool { return len(d.tokens) > 0 }

// SearchRelease finds the best release match for an artist/album pair.
// Returns nil with no error when disabled or when nothing matches.
func (d *DiscogsClient) SearchRelease(ctx context.Context, artist, album string) (*DiscogsResult, error) {
	if !d.Enabled() {
		return nil, nil
	}

	params := url.Values{}
	params.Set("artist", artist)
	params.Set("release_title", album)
	params.Set("type", "release")
	params.Set("per_page", "1")
	return d.search(ctx, params)
}

// SearchArtist finds the best artist match by name.
// Returns nil with no error when disabled or when nothing matches.
func (d *DiscogsClient) SearchArtist(ctx context.Context, artist string) (*DiscogsResult, error) {
	if !d.Enabled() {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", artist)
	params.Set("type", "artist")
	params.Set("per_page", "1")
	return d.search(ctx, params)
}

func (d *DiscogsClient) search(ctx context.Context, params url.Values) (*DiscogsResult, error) {
	params.Set("token", d.nextToken())

	var raw struct {
		Results []DiscogsResult `json:"results"`
	}
	if err := d.client.GetJSON(ctx, d.baseURL+"/database/search?"+params.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	if len(raw.Results) == 0 {
		return nil, nil
	}
	return &raw.Results[0], nil
}

// nextToken rotates through the configured tokens.
func (d *DiscogsClient) nextToken() string {
	idx := d.next.Add(1) - 1
	return d.tokens[idx%uint64(len(d.tokens))]
}
