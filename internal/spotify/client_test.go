package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"muse/internal/core"
	"muse/pkg/retry"
)

var fastRetry = retry.Config{MaxRetries: 5, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func track(name string, artists ...string) map[string]any {
	var list []map[string]any
	for _, artist := range artists {
		list = append(list, map[string]any{"name": artist})
	}
	return map[string]any{"type": "track", "name": name, "artists": list}
}

// fakeWebAPI serves the token endpoint and the read endpoints the client uses.
func fakeWebAPI(t *testing.T, tokenFailures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var tokenCalls atomic.Int32
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, _ *http.Request) {
		if tokenCalls.Add(1) <= tokenFailures {
			writeJSON(t, w, http.StatusInternalServerError, map[string]any{"error": "server_error"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"access_token": "token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /v1/tracks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			writeJSON(t, w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "Not found."}})
			return
		}
		writeJSON(t, w, http.StatusOK, track("Never Gonna Give You Up", "Rick Astley"))
	})
	mux.HandleFunc("GET /v1/albums/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"name":    "Whenever You Need Somebody",
			"artists": []map[string]any{{"name": "Rick Astley"}},
			"tracks": map[string]any{
				"items": []map[string]any{
					track("Never Gonna Give You Up", "Rick Astley"),
					track("Whenever You Need Somebody"),
					track("Together Forever", "Rick Astley"),
				},
				"total": 3,
			},
		})
	})
	mux.HandleFunc("GET /v1/playlists/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"name": "Road Trip"})
	})
	mux.HandleFunc("GET /v1/playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset > 0 {
			writeJSON(t, w, http.StatusOK, map[string]any{"items": []any{}})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{"track": track("Africa", "Toto")},
				{"is_local": true, "track": track("Bootleg", "Unknown")},
				{"track": map[string]any{"type": "episode", "name": "Podcast"}},
				{"track": track("Take On Me", "a-ha")},
			},
		})
	})
	mux.HandleFunc("GET /v1/artists/{id}/top-tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("country") != "US" {
			http.Error(w, "missing country", http.StatusBadRequest)
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"tracks": []map[string]any{
			track("One", "Band"), track("Two", "Band"), track("Three", "Band"),
		}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	srv, _ := fakeWebAPI(t, 0)
	config := &core.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}
	keeper := NewTokenKeeper(config, zap.NewNop(), WithTokenURL(srv.URL+"/api/token"), WithRetryConfig(fastRetry))
	require.NoError(t, keeper.Refresh(context.Background()))

	return NewClient(context.Background(), config, keeper, zap.NewNop(), WithAPIBaseURL(srv.URL+"/v1/"))
}

func TestClient_GetTrack(t *testing.T) {
	client := newTestClient(t)

	result, err := client.GetTrack(context.Background(), "spotify:track:4uLU6hMCjMI75M1A2tKUQC")
	require.NoError(t, err)
	assert.Equal(t, Track{Name: "Never Gonna Give You Up", Artist: "Rick Astley"}, result)

	_, err = client.GetTrack(context.Background(), "spotify:track:missing")
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

	_, err = client.GetTrack(context.Background(), "spotify:album:abc")
	assert.True(t, errors.Is(err, ErrInvalidURI), "got %v", err)
}

func TestClient_GetAlbum(t *testing.T) {
	client := newTestClient(t)
	url := "https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3"

	tracks, playlist, err := client.GetAlbum(context.Background(), url, 0)
	require.NoError(t, err)
	assert.Equal(t, []Track{
		{Name: "Never Gonna Give You Up", Artist: "Rick Astley"},
		{Name: "Whenever You Need Somebody", Artist: "Rick Astley"},
		{Name: "Together Forever", Artist: "Rick Astley"},
	}, tracks)
	assert.Equal(t, &core.QueuedPlaylist{Title: "Whenever You Need Somebody", Source: url}, playlist)

	limited, _, err := client.GetAlbum(context.Background(), url, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestClient_GetPlaylist(t *testing.T) {
	client := newTestClient(t)

	tracks, playlist, err := client.GetPlaylist(context.Background(), "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", 10)
	require.NoError(t, err)
	assert.Equal(t, []Track{
		{Name: "Africa", Artist: "Toto"},
		{Name: "Take On Me", Artist: "a-ha"},
	}, tracks)
	assert.Equal(t, "Road Trip", playlist.Title)
	assert.Equal(t, "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", playlist.Source)
}

func TestClient_GetArtist(t *testing.T) {
	client := newTestClient(t)

	tracks, err := client.GetArtist(context.Background(), "https://open.spotify.com/artist/0gxyHStUsqpMadRV0Di1Qt", 2)
	require.NoError(t, err)
	assert.Equal(t, []Track{{Name: "One", Artist: "Band"}, {Name: "Two", Artist: "Band"}}, tracks)
}

func TestClient_NoToken(t *testing.T) {
	srv, _ := fakeWebAPI(t, 0)
	config := &core.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}
	keeper := NewTokenKeeper(config, zap.NewNop(), WithTokenURL(srv.URL+"/api/token"))
	client := NewClient(context.Background(), config, keeper, zap.NewNop(), WithAPIBaseURL(srv.URL+"/v1/"))

	_, err := client.GetTrack(context.Background(), "spotify:track:abc")
	assert.True(t, errors.Is(err, core.ErrAuth), "got %v", err)
}

func TestTokenKeeper_RetriesGrant(t *testing.T) {
	srv, calls := fakeWebAPI(t, 2)
	config := &core.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}
	keeper := NewTokenKeeper(config, zap.NewNop(), WithTokenURL(srv.URL+"/api/token"), WithRetryConfig(fastRetry))

	require.NoError(t, keeper.Refresh(context.Background()))
	assert.Equal(t, int32(3), calls.Load())

	token, err := keeper.Token()
	require.NoError(t, err)
	assert.Equal(t, "token", token.AccessToken)

	refreshIn := keeper.nextRefresh()
	assert.InDelta(t, (30 * time.Minute).Seconds(), refreshIn.Seconds(), 5)
}

func TestTokenKeeper_ExhaustedRetries(t *testing.T) {
	srv, calls := fakeWebAPI(t, 100)
	config := &core.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}
	keeper := NewTokenKeeper(config, zap.NewNop(), WithTokenURL(srv.URL+"/api/token"), WithRetryConfig(fastRetry))

	err := keeper.Refresh(context.Background())
	assert.True(t, errors.Is(err, core.ErrAuth), "got %v", err)
	assert.Equal(t, int32(fastRetry.MaxRetries+1), calls.Load())

	_, err = keeper.Token()
	assert.True(t, errors.Is(err, core.ErrAuth), "got %v", err)
}

func TestTokenKeeper_ExpiredToken(t *testing.T) {
	config := &core.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}
	keeper := NewTokenKeeper(config, zap.NewNop())
	keeper.token = &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Minute)}

	_, err := keeper.Token()
	assert.True(t, errors.Is(err, core.ErrAuth), "got %v", err)
}

func TestTokenKeeper_RunStopsOnCancel(t *testing.T) {
	srv, calls := fakeWebAPI(t, 0)
	config := &core.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}
	keeper := NewTokenKeeper(config, zap.NewNop(), WithTokenURL(srv.URL+"/api/token"), WithRetryConfig(fastRetry))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		keeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := keeper.Token()
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, int32(1), calls.Load())
}
