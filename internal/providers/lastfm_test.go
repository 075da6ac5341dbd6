package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scrobtools/scrob/internal/shared"
)

const recentTracksBody = `{
	"recenttracks": {
		"track": [
			{
				"artist": {"#text": "Burial", "mbid": "aa-bb"},
				"name": "Archangel",
				"mbid": "cc-dd",
				"album": {"#text": "Untrue", "mbid": "ee-ff"},
				"@attr": {"nowplaying": "true"}
			},
			{
				"artist": {"#text": "Burial", "mbid": "aa-bb"},
				"name": "Etched Headplate",
				"album": {"#text": "Untrue", "mbid": "ee-ff"},
				"date": {"uts": "1700000100"}
			}
		],
		"@attr": {"page": "1", "totalPages": "3", "total": "512"}
	}
}`

func newLastFMTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *LastFMClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewLastFMClient("test_key", server.Client(), nil)
	client.SetBaseURL(server.URL)
	return server, client
}

func TestLastFMClient(t *testing.T) {
	t.Run("RecentTracks", func(t *testing.T) {
		var gotQuery map[string]string
		_, client := newLastFMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = map[string]string{
				"method":  r.URL.Query().Get("method"),
				"user":    r.URL.Query().Get("user"),
				"api_key": r.URL.Query().Get("api_key"),
				"format":  r.URL.Query().Get("format"),
				"from":    r.URL.Query().Get("from"),
				"to":      r.URL.Query().Get("to"),
			}
			w.Write([]byte(recentTracksBody))
		})

		page, err := client.RecentTracks(context.Background(), "alice", 1, 200, 1700000000, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if gotQuery["method"] != "user.getrecenttracks" {
			t.Errorf("expected user.getrecenttracks method, got %s", gotQuery["method"])
		}
		if gotQuery["user"] != "alice" || gotQuery["api_key"] != "test_key" || gotQuery["format"] != "json" {
			t.Errorf("unexpected request query %v", gotQuery)
		}
		if gotQuery["from"] != "1700000000" {
			t.Errorf("expected from bound, got %q", gotQuery["from"])
		}
		if gotQuery["to"] != "" {
			t.Errorf("expected no to bound, got %q", gotQuery["to"])
		}

		if page.Page != 1 || page.TotalPages != 3 || page.Total != 512 {
			t.Errorf("unexpected page attrs: %+v", page)
		}
		if len(page.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(page.Tracks))
		}

		if !page.Tracks[0].NowPlaying() {
			t.Error("first track should report now playing")
		}
		if page.Tracks[0].Timestamp() != 0 {
			t.Error("now-playing track should be dateless")
		}

		second := page.Tracks[1]
		if second.NowPlaying() {
			t.Error("second track should not report now playing")
		}
		if second.Timestamp() != 1700000100 {
			t.Errorf("expected timestamp 1700000100, got %d", second.Timestamp())
		}
		if second.Artist.Text != "Burial" || second.Album.Text != "Untrue" {
			t.Errorf("unexpected track fields: %+v", second)
		}
	})

	t.Run("ArtistInfo", func(t *testing.T) {
		_, client := newLastFMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("autocorrect") != "1" {
				t.Error("expected autocorrect=1")
			}
			w.Write([]byte(`{
				"artist": {
					"name": "Burial",
					"mbid": "aa-bb",
					"url": "https://last.fm/music/Burial",
					"stats": {"listeners": "900000", "playcount": "41000000"},
					"similar": {"artist": [{"name": "Boards of Canada"}, {"name": "Four Tet"}]},
					"tags": {"tag": [{"name": "dubstep"}, {"name": "electronic"}]},
					"bio": {"summary": "South London producer."}
				}
			}`))
		})

		info, err := client.ArtistInfo(context.Background(), "Burial")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if info.Listeners() != 900000 || info.Playcount() != 41000000 {
			t.Errorf("unexpected stats: %d / %d", info.Listeners(), info.Playcount())
		}
		if got := info.TagNames(); len(got) != 2 || got[0] != "dubstep" {
			t.Errorf("unexpected tags %v", got)
		}
		if got := info.SimilarNames(); len(got) != 2 || got[1] != "Four Tet" {
			t.Errorf("unexpected similar artists %v", got)
		}
	})

	t.Run("AlbumInfo", func(t *testing.T) {
		_, client := newLastFMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"album": {
					"name": "Untrue",
					"artist": "Burial",
					"mbid": "ee-ff",
					"tags": {"tag": [{"name": "dubstep"}]}
				}
			}`))
		})

		info, err := client.AlbumInfo(context.Background(), "Burial", "Untrue")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.MBID != "ee-ff" {
			t.Errorf("expected album mbid ee-ff, got %s", info.MBID)
		}
	})

	t.Run("TrackInfo", func(t *testing.T) {
		_, client := newLastFMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"track": {
					"name": "Archangel",
					"mbid": "cc-dd",
					"duration": "238000",
					"album": {"title": "Untrue", "mbid": "ee-ff", "artist": "Burial"},
					"toptags": {"tag": [{"name": "dubstep"}]}
				}
			}`))
		})

		info, err := client.TrackInfo(context.Background(), "Burial", "Archangel")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.DurationMS() != 238000 {
			t.Errorf("expected duration 238000, got %d", info.DurationMS())
		}
		if info.Album.Title != "Untrue" {
			t.Errorf("expected album context, got %s", info.Album.Title)
		}
	})

	t.Run("User Not Found", func(t *testing.T) {
		_, client := newLastFMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": 6, "message": "User not found"}`))
		})

		_, err := client.RecentTracks(context.Background(), "ghost", 1, 200, 0, 0)
		if !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("Suspended User", func(t *testing.T) {
		_, client := newLastFMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": 17, "message": "Login required"}`))
		})

		_, err := client.RecentTracks(context.Background(), "hidden", 1, 200, 0, 0)
		if !errors.Is(err, shared.ErrPrivateProfile) {
			t.Errorf("expected ErrPrivateProfile, got %v", err)
		}
	})

	t.Run("Other API Error", func(t *testing.T) {
		_, client := newLastFMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error": 11, "message": "Service offline"}`))
		})

		_, err := client.RecentTracks(context.Background(), "alice", 1, 200, 0, 0)
		if err == nil {
			t.Fatal("expected error")
		}
		if errors.Is(err, shared.ErrUserNotFound) || errors.Is(err, shared.ErrPrivateProfile) {
			t.Errorf("code 11 should not map to a terminal sentinel: %v", err)
		}
	})
}

func TestParseInt64(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"", 0},
		{"junk", 0},
		{"-1", -1},
	}
	for _, tt := range tests {
		if got := parseInt64(tt.in); got != tt.want {
			t.Errorf("parseInt64(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
