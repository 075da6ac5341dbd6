package tasks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/providers"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
)

func newTestStore(t *testing.T) *repositories.Store {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return repositories.NewStore(db)
}

func seedScrobbles(t *testing.T, store *repositories.Store, scrobbles []models.Scrobble) {
	t.Helper()
	if _, err := store.Scrobbles.Save(scrobbles); err != nil {
		t.Fatalf("failed to seed scrobbles: %v", err)
	}
}

// testSyncOpts disables the retry pause so failure tests run instantly.
var testSyncOpts = SyncOpts{RetryPause: -1}

// fakeHistory satisfies HistoryProvider with a per-call handler.
type fakeHistory struct {
	calls int
	fn    func(call, page int, from, to int64) (*providers.RecentTracksPage, error)
}

func (f *fakeHistory) RecentTracks(ctx context.Context, user string, page, limit int, from, to int64) (*providers.RecentTracksPage, error) {
	f.calls++
	return f.fn(f.calls, page, from, to)
}

// fakeListens satisfies ListenProvider with a per-call handler.
type fakeListens struct {
	calls   int
	cursors []int64
	fn      func(call int, maxTS int64) (*providers.ListensPage, error)
}

func (f *fakeListens) Listens(ctx context.Context, user string, maxTS int64, count int) (*providers.ListensPage, error) {
	f.calls++
	f.cursors = append(f.cursors, maxTS)
	return f.fn(f.calls, maxTS)
}

func historyTrack(artist, track, album string, ts int64) providers.RecentTrack {
	var rt providers.RecentTrack
	rt.Artist.Text = artist
	rt.Name = track
	rt.Album.Text = album
	if ts > 0 {
		rt.Date.UTS = strconv.FormatInt(ts, 10)
	}
	return rt
}

func nowPlayingTrack(artist, track string) providers.RecentTrack {
	rt := historyTrack(artist, track, "", 0)
	rt.Attr.NowPlaying = "true"
	return rt
}

func listenRow(artist, track string, ts int64) providers.Listen {
	var l providers.Listen
	l.TrackMetadata.ArtistName = artist
	l.TrackMetadata.TrackName = track
	l.ListenedAt = ts
	return l
}

func TestSyncEngineRun(t *testing.T) {
	t.Run("Incremental Starts Above Stored Watermark", func(t *testing.T) {
		store := newTestStore(t)
		seedScrobbles(t, store, []models.Scrobble{
			{User: "alice", Artist: "Burial", Track: "Archangel", Timestamp: 1700000100},
			{User: "alice", Artist: "Burial", Track: "Ghost Hardware", Timestamp: 1700000500},
		})

		var gotFrom, gotTo int64
		lastfm := &fakeHistory{fn: func(call, page int, from, to int64) (*providers.RecentTracksPage, error) {
			gotFrom, gotTo = from, to
			return &providers.RecentTracksPage{
				Tracks:     []providers.RecentTrack{historyTrack("Four Tet", "Parallel 1", "Parallel", 1700000900)},
				Page:       1,
				TotalPages: 1,
			}, nil
		}}

		engine := NewSyncEngine(store, lastfm, nil, nil, testSyncOpts)
		result, err := engine.Run(context.Background(), nil, "alice", models.SyncIncremental)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if gotFrom != 1700000501 {
			t.Errorf("expected from=1700000501, got %d", gotFrom)
		}
		if gotTo != 0 {
			t.Errorf("expected unbounded to, got %d", gotTo)
		}
		if result.Inserted != 1 {
			t.Errorf("expected 1 inserted, got %d", result.Inserted)
		}
		if result.Watermark != 1700000900 {
			t.Errorf("expected watermark 1700000900, got %d", result.Watermark)
		}

		mark, err := store.Imports.Get(ScopeLastFM, "alice", "alice")
		if err != nil || mark == nil {
			t.Fatalf("expected watermark row, got %v / %v", mark, err)
		}
		if mark.Watermark != 1700000900 {
			t.Errorf("expected stored watermark 1700000900, got %d", mark.Watermark)
		}
	})

	t.Run("Full Clears Existing History First", func(t *testing.T) {
		store := newTestStore(t)
		seedScrobbles(t, store, []models.Scrobble{
			{User: "alice", Artist: "Burial", Track: "Archangel", Timestamp: 1700000100},
			{User: "alice", Artist: "Burial", Track: "Ghost Hardware", Timestamp: 1700000500},
		})

		lastfm := &fakeHistory{fn: func(call, page int, from, to int64) (*providers.RecentTracksPage, error) {
			if from != 0 || to != 0 {
				t.Errorf("expected unbounded window, got from=%d to=%d", from, to)
			}
			return &providers.RecentTracksPage{
				Tracks:     []providers.RecentTrack{historyTrack("Burial", "Archangel", "Untrue", 1700000100)},
				Page:       1,
				TotalPages: 1,
			}, nil
		}}

		engine := NewSyncEngine(store, lastfm, nil, nil, testSyncOpts)
		result, err := engine.Run(context.Background(), nil, "alice", models.SyncFull)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Inserted != 1 {
			t.Errorf("expected 1 inserted after clear, got %d", result.Inserted)
		}

		count, err := store.Scrobbles.Count("alice")
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 row after full resync, got %d", count)
		}
	})

	t.Run("Backfill Bounds Below Earliest Row", func(t *testing.T) {
		store := newTestStore(t)
		seedScrobbles(t, store, []models.Scrobble{
			{User: "alice", Artist: "Burial", Track: "Archangel", Timestamp: 1700000500},
		})

		var gotFrom, gotTo int64
		lastfm := &fakeHistory{fn: func(call, page int, from, to int64) (*providers.RecentTracksPage, error) {
			gotFrom, gotTo = from, to
			return &providers.RecentTracksPage{
				Tracks:     []providers.RecentTrack{historyTrack("Burial", "Distant Lights", "Burial", 1600000000)},
				Page:       1,
				TotalPages: 1,
			}, nil
		}}

		engine := NewSyncEngine(store, lastfm, nil, nil, testSyncOpts)
		result, err := engine.Run(context.Background(), nil, "alice", models.SyncBackfill)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotFrom != 0 || gotTo != 1700000499 {
			t.Errorf("expected window [0, 1700000499], got [%d, %d]", gotFrom, gotTo)
		}
		if result.Inserted != 1 {
			t.Errorf("expected 1 inserted, got %d", result.Inserted)
		}
	})

	t.Run("Backfill Without History Is A NoOp", func(t *testing.T) {
		store := newTestStore(t)
		lastfm := &fakeHistory{fn: func(call, page int, from, to int64) (*providers.RecentTracksPage, error) {
			t.Fatal("provider should not be called")
			return nil, nil
		}}

		engine := NewSyncEngine(store, lastfm, nil, nil, testSyncOpts)
		result, err := engine.Run(context.Background(), nil, "alice", models.SyncBackfill)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.Skipped {
			t.Error("expected run to be skipped")
		}
		if lastfm.calls != 0 {
			t.Errorf("expected 0 provider calls, got %d", lastfm.calls)
		}
	})

	t.Run("Filters Now Playing And Dateless Rows", func(t *testing.T) {
		store := newTestStore(t)
		lastfm := &fakeHistory{fn: func(call, page int, from, to int64) (*providers.RecentTracksPage, error) {
			return &providers.RecentTracksPage{
				Tracks: []providers.RecentTrack{
					nowPlayingTrack("Burial", "Archangel"),
					historyTrack("Burial", "Untrue", "", 0),
					historyTrack("Burial", "Archangel", "Untrue", 1700000100),
				},
				Page:       1,
				TotalPages: 1,
			}, nil
		}}

		engine := NewSyncEngine(store, lastfm, nil, nil, testSyncOpts)
		result, err := engine.Run(context.Background(), nil, "alice", models.SyncIncremental)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Filtered != 2 {
			t.Errorf("expected 2 filtered, got %d", result.Filtered)
		}
		if result.Inserted != 1 {
			t.Errorf("expected 1 inserted, got %d", result.Inserted)
		}
	})

	t.Run("Paginates To The Learned Total", func(t *testing.T) {
		store := newTestStore(t)
		lastfm := &fakeHistory{fn: func(call, page int, from, to int64) (*providers.RecentTracksPage, error) {
			return &providers.RecentTracksPage{
				Tracks: []providers.RecentTrack{
					historyTrack("Burial", fmt.Sprintf("Track %d", page), "Untrue", 1700000000+int64(page)),
				},
				Page:       page,
				TotalPages: 3,
			}, nil
		}}

		engine := NewSyncEngine(store, lastfm, nil, nil, testSyncOpts)
		result, err := engine.Run(context.Background(), nil, "alice", models.SyncIncremental)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Pages != 3 {
			t.Errorf("expected 3 pages, got %d", result.Pages)
		}
		if result.Inserted != 3 {
			t.Errorf("expected 3 inserted, got %d", result.Inserted)
		}
	})

	t.Run("Aborts After Consecutive Failures But Keeps The Batch", func(t *testing.T) {
		store := newTestStore(t)
		lastfm := &fakeHistory{fn: func(call, page int, from, to int64) (*providers.RecentTracksPage, error) {
			if call == 1 {
				return &providers.RecentTracksPage{
					Tracks:     []providers.RecentTrack{historyTrack("Burial", "Archangel", "Untrue", 1700000100)},
					Page:       1,
					TotalPages: 3,
				}, nil
			}
			return nil, errors.New("upstream flake")
		}}

		engine := NewSyncEngine(store, lastfm, nil, nil, testSyncOpts)
		result, err := engine.Run(context.Background(), nil, "alice", models.SyncIncremental)
		if !errors.Is(err, shared.ErrSyncAborted) {
			t.Fatalf("expected ErrSyncAborted, got %v", err)
		}

		// Page 1 succeeded, then 3 consecutive failures.
		if lastfm.calls != 4 {
			t.Errorf("expected 4 provider calls, got %d", lastfm.calls)
		}
		if result.Inserted != 1 {
			t.Errorf("expected partial batch saved, got %d inserted", result.Inserted)
		}

		mark, err := store.Imports.Get(ScopeLastFM, "alice", "alice")
		if err != nil || mark == nil {
			t.Fatalf("expected watermark row despite abort, got %v / %v", mark, err)
		}
	})

	t.Run("Terminal Errors Skip Retries", func(t *testing.T) {
		store := newTestStore(t)
		lastfm := &fakeHistory{fn: func(call, page int, from, to int64) (*providers.RecentTracksPage, error) {
			return nil, fmt.Errorf("%w: no such user", shared.ErrUserNotFound)
		}}

		engine := NewSyncEngine(store, lastfm, nil, nil, testSyncOpts)
		_, err := engine.Run(context.Background(), nil, "ghost", models.SyncIncremental)
		if !errors.Is(err, shared.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
		if lastfm.calls != 1 {
			t.Errorf("expected 1 provider call, got %d", lastfm.calls)
		}
	})

	t.Run("Unknown Mode Is Rejected", func(t *testing.T) {
		store := newTestStore(t)
		engine := NewSyncEngine(store, &fakeHistory{}, nil, nil, testSyncOpts)

		_, err := engine.Run(context.Background(), nil, "alice", models.SyncMode("sideways"))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestImportListenBrainz(t *testing.T) {
	t.Run("Paginates Backwards With Cursor", func(t *testing.T) {
		store := newTestStore(t)
		lb := &fakeListens{fn: func(call int, maxTS int64) (*providers.ListensPage, error) {
			switch call {
			case 1:
				return &providers.ListensPage{Listens: []providers.Listen{
					listenRow("Burial", "Archangel", 1700000300),
					listenRow("Burial", "Ghost Hardware", 1700000200),
				}}, nil
			case 2:
				return &providers.ListensPage{Listens: []providers.Listen{
					listenRow("Four Tet", "Parallel 1", 1700000100),
				}}, nil
			default:
				return &providers.ListensPage{}, nil
			}
		}}

		engine := NewSyncEngine(store, nil, lb, nil, testSyncOpts)
		result, err := engine.ImportListenBrainz(context.Background(), nil, "alice", "alice_lb", false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if result.Inserted != 3 {
			t.Errorf("expected 3 inserted, got %d", result.Inserted)
		}
		// First call unbounded, then each page's oldest timestamp as cursor.
		want := []int64{0, 1700000200, 1700000100}
		for i, cursor := range lb.cursors {
			if cursor != want[i] {
				t.Errorf("call %d: expected cursor %d, got %d", i+1, want[i], cursor)
			}
		}

		mark, err := store.Imports.Get(ScopeListenBrainzAPI, "alice", "alice_lb")
		if err != nil || mark == nil {
			t.Fatalf("expected watermark row, got %v / %v", mark, err)
		}
		if mark.Watermark != 1700000300 {
			t.Errorf("expected watermark 1700000300, got %d", mark.Watermark)
		}
	})

	t.Run("Incremental Stops At Stored Watermark", func(t *testing.T) {
		store := newTestStore(t)
		if err := store.Imports.Set(ScopeListenBrainzAPI, "alice", "alice_lb", 1700000200, 0); err != nil {
			t.Fatalf("failed to seed watermark: %v", err)
		}

		lb := &fakeListens{fn: func(call int, maxTS int64) (*providers.ListensPage, error) {
			return &providers.ListensPage{Listens: []providers.Listen{
				listenRow("Burial", "Archangel", 1700000300),
				listenRow("Burial", "Ghost Hardware", 1700000200),
				listenRow("Four Tet", "Parallel 1", 1700000100),
			}}, nil
		}}

		engine := NewSyncEngine(store, nil, lb, nil, testSyncOpts)
		result, err := engine.ImportListenBrainz(context.Background(), nil, "alice", "alice_lb", false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if lb.calls != 1 {
			t.Errorf("expected pagination to stop at watermark, got %d calls", lb.calls)
		}
		if result.Inserted != 1 {
			t.Errorf("expected only the newer listen saved, got %d", result.Inserted)
		}
	})

	t.Run("Filters Unusable Listens", func(t *testing.T) {
		store := newTestStore(t)
		lb := &fakeListens{fn: func(call int, maxTS int64) (*providers.ListensPage, error) {
			if call > 1 {
				return &providers.ListensPage{}, nil
			}
			return &providers.ListensPage{Listens: []providers.Listen{
				listenRow("", "Orphaned", 1700000300),
				listenRow("Burial", "", 1700000200),
				listenRow("Burial", "Archangel", 1700000100),
			}}, nil
		}}

		engine := NewSyncEngine(store, nil, lb, nil, testSyncOpts)
		result, err := engine.ImportListenBrainz(context.Background(), nil, "alice", "alice_lb", true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Filtered != 2 {
			t.Errorf("expected 2 filtered, got %d", result.Filtered)
		}
		if result.Inserted != 1 {
			t.Errorf("expected 1 inserted, got %d", result.Inserted)
		}
	})

	t.Run("Aborts After Consecutive Failures", func(t *testing.T) {
		store := newTestStore(t)
		lb := &fakeListens{fn: func(call int, maxTS int64) (*providers.ListensPage, error) {
			return nil, errors.New("upstream flake")
		}}

		engine := NewSyncEngine(store, nil, lb, nil, testSyncOpts)
		_, err := engine.ImportListenBrainz(context.Background(), nil, "alice", "alice_lb", false)
		if !errors.Is(err, shared.ErrSyncAborted) {
			t.Fatalf("expected ErrSyncAborted, got %v", err)
		}
		if lb.calls != 3 {
			t.Errorf("expected 3 provider calls, got %d", lb.calls)
		}
	})

	t.Run("Max Listens Caps The Walk", func(t *testing.T) {
		store := newTestStore(t)
		lb := &fakeListens{fn: func(call int, maxTS int64) (*providers.ListensPage, error) {
			return &providers.ListensPage{Listens: []providers.Listen{
				listenRow("Burial", "Archangel", 1700000300-int64(call)*10),
				listenRow("Burial", "Ghost Hardware", 1700000300-int64(call)*10-5),
			}}, nil
		}}

		opts := testSyncOpts
		opts.MaxListens = 3
		engine := NewSyncEngine(store, nil, lb, nil, opts)
		result, err := engine.ImportListenBrainz(context.Background(), nil, "alice", "alice_lb", true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if result.Inserted != 3 {
			t.Errorf("expected the cap to hold inserts at 3, got %d", result.Inserted)
		}
		if lb.calls != 2 {
			t.Errorf("expected the walk to stop after 2 pages, got %d", lb.calls)
		}
	})

	t.Run("Missing Client Is Rejected", func(t *testing.T) {
		store := newTestStore(t)
		engine := NewSyncEngine(store, &fakeHistory{}, nil, nil, testSyncOpts)

		_, err := engine.ImportListenBrainz(context.Background(), nil, "alice", "alice_lb", false)
		if !errors.Is(err, shared.ErrProviderUnavailable) {
			t.Fatalf("expected ErrProviderUnavailable, got %v", err)
		}
	})
}
