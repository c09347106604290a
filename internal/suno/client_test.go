package suno

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"muse/internal/core"
)

const testCookie = "__client=abc; __client_uat=1"

// fakeSuno serves the Clerk session endpoints, the studio API and song pages.
type fakeSuno struct {
	t *testing.T

	sessionID string
	renewals  atomic.Int32
	feedCalls atomic.Int32

	mu            sync.Mutex
	lastGenerate  map[string]any
	feedStatus    func(call int32) Status
	feedAuthFails int32
	lyricsPolls   atomic.Int32
}

func newFakeSuno(t *testing.T) *fakeSuno {
	return &fakeSuno{
		t:         t,
		sessionID: "sess_123",
		feedStatus: func(int32) Status {
			return StatusComplete
		},
	}
}

func (f *fakeSuno) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("failed to encode response: %v", err)
	}
}

func (f *fakeSuno) clipJSON(id string, status Status) map[string]any {
	return map[string]any{
		"id":         id,
		"title":      "Song " + id,
		"image_url":  "https://cdn1.suno.ai/image_" + id + ".png",
		"audio_url":  "https://cdn1.suno.ai/" + id + ".mp3",
		"created_at": "2024-05-01T10:00:00Z",
		"model_name": "chirp-v3",
		"status":     status,
		"metadata": map[string]any{
			"prompt":   "[Verse]\nline one\n\nline two\n",
			"tags":     "synthwave",
			"duration": 187.5,
		},
	}
}

func (f *fakeSuno) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/client", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != testCookie {
			f.writeJSON(w, map[string]any{"response": nil})
			return
		}
		f.writeJSON(w, map[string]any{"response": map[string]any{"last_active_session_id": f.sessionID}})
	})
	mux.HandleFunc("POST /v1/client/sessions/{sid}/tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("sid") != f.sessionID {
			http.Error(w, "unknown session", http.StatusUnauthorized)
			return
		}
		n := f.renewals.Add(1)
		f.writeJSON(w, map[string]any{"jwt": fmt.Sprintf("jwt-%d", n)})
	})
	mux.HandleFunc("POST /api/generate/v2/", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.lastGenerate = payload
		f.mu.Unlock()
		f.writeJSON(w, map[string]any{"clips": []any{
			f.clipJSON("clip-a", StatusQueued),
			f.clipJSON("clip-b", StatusQueued),
		}})
	})
	mux.HandleFunc("GET /api/feed/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer jwt-") {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		call := f.feedCalls.Add(1)
		if call <= f.feedAuthFails {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		status := f.feedStatus(call)
		var clips []any
		for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
			clips = append(clips, f.clipJSON(id, status))
		}
		f.writeJSON(w, clips)
	})
	mux.HandleFunc("GET /api/billing/info/", func(w http.ResponseWriter, _ *http.Request) {
		f.writeJSON(w, map[string]any{
			"total_credits_left": 420,
			"period":             "month",
			"monthly_limit":      500,
			"monthly_usage":      80,
		})
	})
	mux.HandleFunc("POST /api/generate/lyrics/", func(w http.ResponseWriter, _ *http.Request) {
		f.writeJSON(w, map[string]any{"id": "lyr-1"})
	})
	mux.HandleFunc("GET /api/generate/lyrics/{id}", func(w http.ResponseWriter, _ *http.Request) {
		if f.lyricsPolls.Add(1) < 3 {
			f.writeJSON(w, map[string]any{"status": "running"})
			return
		}
		f.writeJSON(w, map[string]any{"status": "complete", "title": "Neon", "text": "[Verse]\nCity lights"})
	})
	mux.HandleFunc("GET /song/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
<title>Midnight Drive by neonwave | Suno</title>
<meta property="og:image" content="https://cdn1.suno.ai/image_large.jpeg">
</head><body></body></html>`))
	})

	srv := httptest.NewServer(mux)
	f.t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, f *fakeSuno, opts ...Option) *Client {
	t.Helper()
	srv := f.server()
	opts = append([]Option{
		WithBaseURLs(srv.URL, srv.URL),
		WithSongPageURL(srv.URL + "/song"),
		WithPolling(time.Millisecond, time.Millisecond, 2*time.Millisecond, time.Second),
		WithRenewPause(0, 0),
		WithLyricsInterval(time.Millisecond),
	}, opts...)
	return New(testCookie, zap.NewNop(), opts...)
}

func TestClient_Init(t *testing.T) {
	f := newFakeSuno(t)
	client := newTestClient(t, f)

	require.False(t, client.Authenticated())
	require.NoError(t, client.Init(context.Background()))
	assert.True(t, client.Authenticated())
	assert.Equal(t, int32(1), f.renewals.Load())
}

func TestClient_Init_StaleCookie(t *testing.T) {
	f := newFakeSuno(t)
	srv := f.server()
	client := New("expired", zap.NewNop(), WithBaseURLs(srv.URL, srv.URL))

	err := client.Init(context.Background())
	assert.True(t, errors.Is(err, core.ErrAuth), "got %v", err)
	assert.False(t, client.Authenticated())
}

func TestClient_KeepAlive_NoSession(t *testing.T) {
	client := newTestClient(t, newFakeSuno(t))

	err := client.KeepAlive(context.Background(), false)
	assert.True(t, errors.Is(err, core.ErrAuth), "got %v", err)
}

func TestClient_Generate_Payload(t *testing.T) {
	tests := []struct {
		name     string
		generate func(c *Client) ([]AudioInfo, error)
		expected map[string]any
	}{
		{
			name: "Description prompt",
			generate: func(c *Client) ([]AudioInfo, error) {
				return c.Generate(context.Background(), "a song about rain", false, "", false)
			},
			expected: map[string]any{
				"make_instrumental":      false,
				"mv":                     DefaultModel,
				"prompt":                 "",
				"gpt_description_prompt": "a song about rain",
			},
		},
		{
			name: "Custom lyrics",
			generate: func(c *Client) ([]AudioInfo, error) {
				return c.CustomGenerate(context.Background(), "[Verse] rain", "lofi", "Rain", true, "chirp-v4", false)
			},
			expected: map[string]any{
				"make_instrumental": true,
				"mv":                "chirp-v4",
				"prompt":            "[Verse] rain",
				"tags":              "lofi",
				"title":             "Rain",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSuno(t)
			client := newTestClient(t, f)
			require.NoError(t, client.Init(context.Background()))

			audios, err := tt.generate(client)
			require.NoError(t, err)
			require.Len(t, audios, 2)
			assert.Equal(t, StatusQueued, audios[0].Status)

			f.mu.Lock()
			defer f.mu.Unlock()
			assert.Equal(t, tt.expected, f.lastGenerate)
		})
	}
}

func TestClient_Generate_WaitsForCompletion(t *testing.T) {
	f := newFakeSuno(t)
	f.feedStatus = func(call int32) Status {
		if call < 2 {
			return StatusQueued
		}
		return StatusComplete
	}
	client := newTestClient(t, f)
	require.NoError(t, client.Init(context.Background()))

	audios, err := client.Generate(context.Background(), "rain", false, "", true)
	require.NoError(t, err)
	require.Len(t, audios, 2)
	for _, audio := range audios {
		assert.Equal(t, StatusComplete, audio.Status)
	}
	assert.Equal(t, int32(2), f.feedCalls.Load())
}

func TestClient_Generate_AllErrorsStopPolling(t *testing.T) {
	f := newFakeSuno(t)
	f.feedStatus = func(int32) Status { return StatusError }
	client := newTestClient(t, f)
	require.NoError(t, client.Init(context.Background()))

	audios, err := client.Generate(context.Background(), "rain", false, "", true)
	require.NoError(t, err)
	require.Len(t, audios, 2)
	assert.Equal(t, StatusError, audios[0].Status)
	assert.Equal(t, int32(1), f.feedCalls.Load())
}

func TestClient_Generate_BudgetExpiry(t *testing.T) {
	f := newFakeSuno(t)
	f.feedStatus = func(int32) Status { return StatusQueued }
	client := newTestClient(t, f, WithPolling(time.Millisecond, 5*time.Millisecond, 10*time.Millisecond, 60*time.Millisecond))
	require.NoError(t, client.Init(context.Background()))

	audios, err := client.Generate(context.Background(), "rain", false, "", true)
	require.NoError(t, err)
	require.Len(t, audios, 2)
	for _, audio := range audios {
		assert.Equal(t, StatusQueued, audio.Status)
	}
	assert.GreaterOrEqual(t, f.feedCalls.Load(), int32(2))
}

func TestClient_Generate_CallerCancel(t *testing.T) {
	f := newFakeSuno(t)
	f.feedStatus = func(int32) Status { return StatusQueued }
	client := newTestClient(t, f, WithPolling(time.Millisecond, 5*time.Millisecond, 10*time.Millisecond, time.Minute))
	require.NoError(t, client.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Generate(ctx, "rain", false, "", true)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_Get_RenewsOnUnauthorized(t *testing.T) {
	f := newFakeSuno(t)
	f.feedAuthFails = 1
	client := newTestClient(t, f)
	require.NoError(t, client.Init(context.Background()))

	audios, err := client.Get(context.Background(), []string{"clip-a"})
	require.NoError(t, err)
	require.Len(t, audios, 1)

	audio := audios[0]
	assert.Equal(t, "clip-a", audio.ID)
	assert.Equal(t, "[Verse]\nline one\nline two", audio.Lyric)
	assert.Equal(t, "synthwave", audio.Tags)
	assert.InDelta(t, 187.5, audio.Duration, 0.001)
	assert.Equal(t, int32(2), f.renewals.Load())
}

func TestClient_Get_FailsAfterSecondUnauthorized(t *testing.T) {
	f := newFakeSuno(t)
	f.feedAuthFails = 2
	client := newTestClient(t, f)
	require.NoError(t, client.Init(context.Background()))

	_, err := client.Get(context.Background(), []string{"clip-a"})
	assert.True(t, errors.Is(err, core.ErrAuth), "got %v", err)
	assert.Equal(t, int32(2), f.feedCalls.Load())
}

func TestClient_GetCredits(t *testing.T) {
	f := newFakeSuno(t)
	client := newTestClient(t, f)
	require.NoError(t, client.Init(context.Background()))

	credits, err := client.GetCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credits{CreditsLeft: 420, Period: "month", MonthlyLimit: 500, MonthlyUsage: 80}, credits)
}

func TestClient_GenerateLyrics(t *testing.T) {
	f := newFakeSuno(t)
	client := newTestClient(t, f)
	require.NoError(t, client.Init(context.Background()))

	lyrics, err := client.GenerateLyrics(context.Background(), "neon city")
	require.NoError(t, err)
	assert.Equal(t, "Neon", lyrics.Title)
	assert.Equal(t, "[Verse]\nCity lights", lyrics.Text)
	assert.Equal(t, int32(3), f.lyricsPolls.Load())
}

func TestClient_StartStop(t *testing.T) {
	f := newFakeSuno(t)
	client := newTestClient(t, f, WithKeepAliveInterval(5*time.Millisecond))
	require.NoError(t, client.Init(context.Background()))

	client.Start(context.Background())
	require.Eventually(t, func() bool {
		return f.renewals.Load() >= 3
	}, time.Second, time.Millisecond)

	client.Stop()
	after := f.renewals.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, f.renewals.Load(), "keep-alive should stop")

	client.Stop()
}
