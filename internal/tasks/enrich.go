package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/providers"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
)

// cacheKeyVersion is baked into enrichment cache keys so a merge-policy
// change can invalidate old gates by bumping it.
const cacheKeyVersion = "v2"

// EnrichOpts contains configuration for enrichment runs.
type EnrichOpts struct {
	Workers  int                 // Concurrent workers (default: 3, max: 8)
	Limit    int                 // Targets per entity kind (default: 1000)
	CacheTTL time.Duration       // Gate lifetime per processed entity (default: 24h)
	Kinds    []models.EntityKind // Entity kinds to process (default: all)
}

func (o *EnrichOpts) fill() {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.Workers > 8 {
		o.Workers = 8
	}
	if o.Limit <= 0 {
		o.Limit = 1000
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	if len(o.Kinds) == 0 {
		o.Kinds = []models.EntityKind{models.KindArtist, models.KindAlbum, models.KindTrack}
	}
}

// EnrichOutcome is the per-target result of an enrichment attempt.
type EnrichOutcome struct {
	Target  models.EnrichTarget
	Skipped bool // True when a live cache entry gated the target
	Err     error
}

// EnrichResult summarizes an enrichment run.
type EnrichResult struct {
	Targets  int
	Enriched int
	Skipped  int
	Failed   int
	Outcomes []EnrichOutcome
}

// EnrichEngine fans enrichment targets out to a worker pool.
//
// Each worker is gated per entity by a cache entry: a live entry means the
// entity was processed within the TTL and is skipped without any network
// traffic. Failed entities get no entry, so the next run retries them.
type EnrichEngine struct {
	store   *repositories.Store
	lastfm  InfoProvider
	mb      MusicBrainzProvider
	discogs DiscogsProvider
	logger  *log.Logger
	opts    EnrichOpts

	// now is swappable for deterministic timestamps in tests.
	now func() time.Time
}

// NewEnrichEngine creates an EnrichEngine. discogs may be a disabled client;
// lastfm and mb are required.
func NewEnrichEngine(store *repositories.Store, lastfm InfoProvider, mb MusicBrainzProvider, discogs DiscogsProvider, logger *log.Logger, opts EnrichOpts) *EnrichEngine {
	opts.fill()
	return &EnrichEngine{
		store:   store,
		lastfm:  lastfm,
		mb:      mb,
		discogs: discogs,
		logger:  silenced(logger),
		opts:    opts,
		now:     time.Now,
	}
}

// Run discovers un-enriched entities and processes them concurrently.
func (e *EnrichEngine) Run(ctx context.Context, progress chan<- ProgressUpdate) (*EnrichResult, error) {
	if e.lastfm == nil || e.mb == nil {
		return nil, fmt.Errorf("%w: enrichment providers not initialized", shared.ErrProviderUnavailable)
	}

	var targets []models.EnrichTarget
	for _, kind := range e.opts.Kinds {
		found, err := e.store.Scrobbles.NeedingEnrichment(kind, e.opts.Limit)
		if err != nil {
			return nil, err
		}
		sendProgress(progress, discoverUpdate(string(kind), len(found)))
		targets = append(targets, found...)
	}

	result := &EnrichResult{Targets: len(targets)}
	if len(targets) == 0 {
		return result, nil
	}

	jobs := make(chan models.EnrichTarget, len(targets))
	results := make(chan EnrichOutcome, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, jobs, results)
	}

	for _, t := range targets {
		jobs <- t
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for outcome := range results {
		completed++
		result.Outcomes = append(result.Outcomes, outcome)

		name := outcome.Target.Name()
		switch {
		case outcome.Skipped:
			result.Skipped++
			sendProgress(progress, enrichSkippedUpdate(completed, len(targets), name))
		case outcome.Err != nil:
			result.Failed++
			sendProgress(progress, enrichFailedUpdate(completed, len(targets), name, outcome.Err))
		default:
			result.Enriched++
			sendProgress(progress, enrichEntityUpdate(completed, len(targets), name))
		}
	}

	e.logger.Info("enrichment complete",
		"targets", result.Targets, "enriched", result.Enriched,
		"skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// worker processes targets from the jobs channel.
func (e *EnrichEngine) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan models.EnrichTarget, results chan<- EnrichOutcome) {
	defer wg.Done()

	for target := range jobs {
		select {
		case <-ctx.Done():
			results <- EnrichOutcome{Target: target, Err: ctx.Err()}
			continue
		default:
		}

		results <- e.enrichOne(ctx, target)
	}
}

// enrichOne applies the cache gate, dispatches per kind, and records the
// gate entry on success.
func (e *EnrichEngine) enrichOne(ctx context.Context, target models.EnrichTarget) EnrichOutcome {
	key := CacheKey(target)

	entry, err := e.store.Cache.Get(key)
	if err != nil {
		return EnrichOutcome{Target: target, Err: err}
	}
	if entry != nil {
		return EnrichOutcome{Target: target, Skipped: true}
	}

	switch target.Kind {
	case models.KindArtist:
		err = e.enrichArtist(ctx, target)
	case models.KindAlbum:
		err = e.enrichAlbum(ctx, target)
	case models.KindTrack:
		err = e.enrichTrack(ctx, target)
	default:
		err = fmt.Errorf("%w: unknown entity kind %q", shared.ErrInvalidInput, target.Kind)
	}
	if err != nil {
		return EnrichOutcome{Target: target, Err: err}
	}

	gate, _ := json.Marshal(map[string]int64{"enriched_at": e.now().Unix()})
	if err := e.store.Cache.Put(key, string(gate), e.opts.CacheTTL); err != nil {
		return EnrichOutcome{Target: target, Err: err}
	}
	return EnrichOutcome{Target: target}
}

// CacheKey derives the normalized enrichment gate key for a target.
func CacheKey(target models.EnrichTarget) string {
	var norm string
	switch target.Kind {
	case models.KindAlbum:
		norm = shared.NormalizeKey(target.Artist, target.Album)
	case models.KindTrack:
		norm = shared.NormalizeKey(target.Artist, target.Track)
	default:
		norm = shared.NormalizeKey(target.Artist)
	}
	return fmt.Sprintf("%s_enrich_%s|%s", target.Kind, cacheKeyVersion, norm)
}

// CacheKeyPrefix returns the invalidation prefix for one entity kind.
func CacheKeyPrefix(kind models.EntityKind) string {
	return fmt.Sprintf("%s_enrich_%s|", kind, cacheKeyVersion)
}

// enrichArtist merges Last.fm and MusicBrainz artist metadata.
//
// Last.fm is authoritative for the detail row; MusicBrainz contributes the
// canonical MBID and its own genre set. A MusicBrainz failure degrades to a
// Last.fm-only row rather than failing the target.
func (e *EnrichEngine) enrichArtist(ctx context.Context, target models.EnrichTarget) error {
	now := e.now().Unix()

	info, err := e.lastfm.ArtistInfo(ctx, target.Artist)
	if err != nil {
		return fmt.Errorf("lastfm artist info: %w", err)
	}

	detail := &models.ArtistDetail{
		Artist:         target.Artist,
		MBID:           info.MBID,
		Bio:            info.Bio.Summary,
		Tags:           strings.Join(info.TagNames(), ","),
		SimilarArtists: strings.Join(info.SimilarNames(), ","),
		Listeners:      info.Listeners(),
		Playcount:      info.Playcount(),
		URL:            info.URL,
		ImageURL:       info.LargestImage(),
		LastUpdated:    now,
	}

	if err := e.store.Genres.ReplaceArtistGenres(target.Artist, models.SourceLastFM, rankedGenres(info.TagNames(), now)); err != nil {
		return err
	}

	if mbArtist := e.resolveMBArtist(ctx, target.Artist, info.MBID); mbArtist != nil {
		if detail.MBID == "" {
			detail.MBID = mbArtist.ID
		}
		genres := weightedGenres(mbArtist.Genres, mbArtist.Tags, now)
		if err := e.store.Genres.ReplaceArtistGenres(target.Artist, models.SourceMusicBrainz, genres); err != nil {
			return err
		}
	}

	return e.store.Details.SaveArtist(detail)
}

// resolveMBArtist looks an artist up by MBID, falling back to a name search.
// Returns nil on any provider failure.
func (e *EnrichEngine) resolveMBArtist(ctx context.Context, name, mbid string) *providers.MBArtist {
	if mbid == "" {
		found, err := e.mb.SearchArtist(ctx, name)
		if err != nil || found == nil {
			if err != nil {
				e.logger.Warn("musicbrainz artist search failed", "artist", name, "err", err)
			}
			return nil
		}
		mbid = found.ID
	}

	artist, err := e.mb.LookupArtist(ctx, mbid)
	if err != nil {
		e.logger.Warn("musicbrainz artist lookup failed", "artist", name, "mbid", mbid, "err", err)
		return nil
	}
	return artist
}

// enrichAlbum merges Last.fm, MusicBrainz, and optionally Discogs album
// metadata. Discogs is consulted only when neither of the first two produced
// a release date.
func (e *EnrichEngine) enrichAlbum(ctx context.Context, target models.EnrichTarget) error {
	now := e.now().Unix()

	detail := &models.AlbumDetail{Artist: target.Artist, Album: target.Album, LastUpdated: now}
	var enriched bool

	info, lfmErr := e.lastfm.AlbumInfo(ctx, target.Artist, target.Album)
	if lfmErr != nil {
		e.logger.Warn("lastfm album info failed", "artist", target.Artist, "album", target.Album, "err", lfmErr)
	} else {
		detail.MBID = info.MBID
		detail.TotalTracks = int64(len(info.Tracks.Track))
		if err := e.store.Genres.ReplaceAlbumGenres(target.Artist, target.Album, models.SourceLastFM, rankedGenres(info.TagNames(), now)); err != nil {
			return err
		}
		enriched = true
	}

	if release := e.resolveMBRelease(ctx, target.Artist, target.Album, detail.MBID); release != nil {
		if detail.MBID == "" {
			detail.MBID = release.ID
		}
		detail.ReleaseGroupMBID = release.ReleaseGroup.ID
		detail.ReleaseDate = release.BestDate()
		detail.AlbumType = release.ReleaseGroup.PrimaryType
		detail.Status = release.Status
		detail.Packaging = release.Packaging
		detail.Country = release.Country
		detail.Barcode = release.Barcode
		if tracks := release.TotalTracks(); tracks > 0 {
			detail.TotalTracks = tracks
		}

		genres := weightedGenres(release.Genres, release.ReleaseGroup.Genres, now)
		if err := e.store.Genres.ReplaceAlbumGenres(target.Artist, target.Album, models.SourceMusicBrainz, genres); err != nil {
			return err
		}
		if label := release.Label(); label != "" {
			if err := e.store.Details.SaveLabel(&models.AlbumLabel{
				Artist: target.Artist, Album: target.Album, Label: label, UpdatedAt: now,
			}); err != nil {
				return err
			}
		}
		enriched = true
	}

	if !enriched {
		return fmt.Errorf("no provider produced album metadata: %w", lfmErr)
	}

	if detail.ReleaseDate == "" {
		if err := e.discogsFallback(ctx, target, now); err != nil {
			return err
		}
	}

	return e.store.Details.SaveAlbum(detail)
}

// resolveMBRelease looks a release up by MBID, falling back to an
// artist/album search. Returns nil on any provider failure.
func (e *EnrichEngine) resolveMBRelease(ctx context.Context, artist, album, mbid string) *providers.MBRelease {
	if mbid == "" {
		found, err := e.mb.SearchRelease(ctx, artist, album)
		if err != nil || found == nil {
			if err != nil {
				e.logger.Warn("musicbrainz release search failed", "artist", artist, "album", album, "err", err)
			}
			return nil
		}
		mbid = found.ID
	}

	release, err := e.mb.LookupRelease(ctx, mbid)
	if err != nil {
		e.logger.Warn("musicbrainz release lookup failed", "artist", artist, "album", album, "mbid", mbid, "err", err)
		return nil
	}
	return release
}

// discogsFallback fills release date, genres, and labels from Discogs when
// no other source produced a release date. A disabled client or a miss is a
// silent no-op.
func (e *EnrichEngine) discogsFallback(ctx context.Context, target models.EnrichTarget, now int64) error {
	if e.discogs == nil || !e.discogs.Enabled() {
		return nil
	}

	// Another run may already have recorded a supplementary date.
	has, err := e.store.Details.AlbumHasReleaseDate(target.Artist, target.Album)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	result, err := e.discogs.SearchRelease(ctx, target.Artist, target.Album)
	if err != nil {
		e.logger.Warn("discogs search failed", "artist", target.Artist, "album", target.Album, "err", err)
		return nil
	}
	if result == nil {
		return nil
	}

	if result.Year != "" {
		year, _ := strconv.ParseInt(result.Year, 10, 64)
		if err := e.store.Details.SaveReleaseDate(&models.AlbumReleaseDate{
			Artist: target.Artist, Album: target.Album,
			ReleaseYear: year, ReleaseDate: result.Year, UpdatedAt: now,
		}); err != nil {
			return err
		}
	}

	if genres := result.Genres(); len(genres) > 0 {
		if err := e.store.Genres.ReplaceAlbumGenres(target.Artist, target.Album, models.SourceDiscogs, rankedGenres(genres, now)); err != nil {
			return err
		}
	}

	if len(result.Label) > 0 && result.Label[0] != "" {
		if err := e.store.Details.SaveLabel(&models.AlbumLabel{
			Artist: target.Artist, Album: target.Album, Label: result.Label[0], UpdatedAt: now,
		}); err != nil {
			return err
		}
	}

	return nil
}

// enrichTrack merges Last.fm and MusicBrainz track metadata, borrowing an
// album hint from listening history when Last.fm has no album of record.
func (e *EnrichEngine) enrichTrack(ctx context.Context, target models.EnrichTarget) error {
	now := e.now().Unix()

	detail := &models.TrackDetail{Artist: target.Artist, Track: target.Track, LastUpdated: now}
	var enriched bool

	info, lfmErr := e.lastfm.TrackInfo(ctx, target.Artist, target.Track)
	if lfmErr != nil {
		e.logger.Warn("lastfm track info failed", "artist", target.Artist, "track", target.Track, "err", lfmErr)
	} else {
		detail.MBID = info.MBID
		detail.DurationMS = info.DurationMS()
		detail.Album = info.Album.Title
		enriched = true
	}

	if detail.Album == "" {
		hint, err := e.store.Scrobbles.AlbumHintForTrack(target.Artist, target.Track)
		if err != nil {
			return err
		}
		detail.Album = hint
	}

	if recording := e.resolveMBRecording(ctx, target.Artist, target.Track, detail.MBID); recording != nil {
		if detail.MBID == "" {
			detail.MBID = recording.ID
		}
		if detail.DurationMS == 0 {
			detail.DurationMS = recording.Length
		}
		if len(recording.ISRCs) > 0 {
			detail.ISRC = recording.ISRCs[0]
		}
		enriched = true
	}

	if !enriched {
		return fmt.Errorf("no provider produced track metadata: %w", lfmErr)
	}

	return e.store.Details.SaveTrack(detail)
}

// resolveMBRecording looks a recording up by MBID, falling back to an
// artist/track search. Returns nil on any provider failure.
func (e *EnrichEngine) resolveMBRecording(ctx context.Context, artist, track, mbid string) *providers.MBRecording {
	if mbid == "" {
		found, err := e.mb.SearchRecording(ctx, artist, track)
		if err != nil || found == nil {
			if err != nil {
				e.logger.Warn("musicbrainz recording search failed", "artist", artist, "track", track, "err", err)
			}
			return nil
		}
		mbid = found.ID
	}

	recording, err := e.mb.LookupRecording(ctx, mbid)
	if err != nil {
		e.logger.Warn("musicbrainz recording lookup failed", "artist", artist, "track", track, "mbid", mbid, "err", err)
		return nil
	}
	return recording
}

// rankedGenres weights an ordered tag list by position, first tag heaviest.
func rankedGenres(names []string, now int64) []models.GenreAssignment {
	genres := make([]models.GenreAssignment, 0, len(names))
	for i, name := range names {
		genres = append(genres, models.GenreAssignment{
			Genre:       strings.ToLower(strings.TrimSpace(name)),
			Weight:      float64(len(names) - i),
			LastUpdated: now,
		})
	}
	return genres
}

// weightedGenres merges MusicBrainz genre and tag lists, weighting by their
// vote counts. Genres win ties over free-form tags.
func weightedGenres(genres, tags []providers.MBGenre, now int64) []models.GenreAssignment {
	seen := make(map[string]bool, len(genres)+len(tags))
	var out []models.GenreAssignment

	add := func(list []providers.MBGenre) {
		for _, g := range list {
			name := strings.ToLower(strings.TrimSpace(g.Name))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, models.GenreAssignment{
				Genre:       name,
				Weight:      float64(g.Count),
				LastUpdated: now,
			})
		}
	}
	add(genres)
	add(tags)
	return out
}
