// package providers implements rate-limited HTTP clients for the external
// metadata and listening-history APIs.
//
// Last.fm, MusicBrainz, Discogs, ListenBrainz
package providers

import "time"

// Per-host minimum spacing between requests. MusicBrainz and Discogs publish
// hard limits; Last.fm and ListenBrainz values are the conventional safe pace.
const (
	LastFMInterval       = 250 * time.Millisecond
	MusicBrainzInterval  = 1100 * time.Millisecond
	DiscogsInterval      = 1200 * time.Millisecond
	ListenBrainzInterval = 500 * time.Millisecond
)

// DefaultTimeout bounds a single request including body read.
const DefaultTimeout = 15 * time.Second
