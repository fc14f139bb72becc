package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clip-tycoon/internal/catalog"
	"github.com/talgya/clip-tycoon/internal/engine"
	"github.com/talgya/clip-tycoon/internal/entropy"
	"github.com/talgya/clip-tycoon/internal/outcome"
	"github.com/talgya/clip-tycoon/internal/persistence"
	"github.com/talgya/clip-tycoon/internal/player"
)

var now = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, src entropy.Source) *Server {
	t.Helper()
	clock := engine.NewFakeClock(now)
	return &Server{
		Sim:      engine.NewSimulation(player.NewState(catalog.Campaigns()...), src, clock),
		Eng:      engine.NewEngine(),
		Audience: catalog.NewAudience(7),
		Clock:    clock,
		AdminKey: "secret",
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	h := newTestServer(t, entropy.NewSeeded(1)).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, 10.0, body["money"])
	assert.Equal(t, 0.0, body["followers"])
	level := body["level"].(map[string]any)
	assert.Equal(t, 1.0, level["level"])
	assert.Equal(t, 100.0, level["next_xp"])
	assert.Equal(t, 0.0, body["tick"])
	assert.Equal(t, 0.0, body["cooldown"])
}

func TestStatusReadsOneTick(t *testing.T) {
	s := newTestServer(t, entropy.NewSeeded(1))
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/clips", `{"streamer_id":1,"hit":false}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	for tick := uint64(1); tick <= 4; tick++ {
		s.Sim.TickSecond(tick)
	}

	body := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/v1/status", ""))
	assert.Equal(t, 4.0, body["tick"])
	assert.Equal(t, float64(engine.MissCooldownTicks-4), body["cooldown"])
}

func TestCreateAccount(t *testing.T) {
	h := newTestServer(t, entropy.NewFixed(0)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/account", `{"username":"  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/account", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/account", `{"username":" clipper "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	acct := decode[map[string]string](t, rec)
	assert.Equal(t, "clipper", acct["username"])
	assert.Equal(t, catalog.Streamers[0].ImgSrc, acct["avatar"])

	rec = do(t, h, http.MethodPost, "/api/v1/account", `{"username":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	body := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/v1/status", ""))
	assert.Equal(t, "clipper", body["username"])
	assert.Equal(t, catalog.Streamers[0].ImgSrc, body["avatar"])
}

func TestClipToPostFlow(t *testing.T) {
	// Draws of 0.5 keep the post clear of random events.
	h := newTestServer(t, entropy.NewFixed(0.5)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/clips", `{"streamer_id":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	raw := decode[player.Clip](t, rec)
	assert.Equal(t, "Kai Cenat", raw.StreamerName)

	rec = do(t, h, http.MethodPost, "/api/v1/clips/"+raw.ID+"/edit", `{"tasks_completed":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/clips/"+raw.ID+"/edit", `{"tasks_completed":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[player.Clip](t, rec)
	assert.Equal(t, 1.0, edited.Quality)

	rec = do(t, h, http.MethodPost, "/api/v1/posts", `{"clip_id":"`+edited.ID+`"}`)
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/account", `{"username":"clipper"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/posts", `{"clip_id":"`+edited.ID+`","title":"W","hashtags":["#fyp"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[postView](t, rec)
	assert.Equal(t, 3, post.StreamerID)
	assert.Equal(t, []string{"#fyp"}, post.Hashtags)
	assert.Zero(t, post.Progress)
	assert.False(t, post.Settled)

	rec = do(t, h, http.MethodPost, "/api/v1/posts", `{"clip_id":"`+edited.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/posts", `{"streamer_id":1,"title":"direct"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	posts := decode[[]postView](t, do(t, h, http.MethodGet, "/api/v1/posts", ""))
	require.Len(t, posts, 2)
	assert.Equal(t, "direct", posts[0].Title)
	assert.Equal(t, "W", posts[1].Title)

	posts = decode[[]postView](t, do(t, h, http.MethodGet, "/api/v1/posts?limit=1", ""))
	assert.Len(t, posts, 1)
}

func TestCreatePostErrors(t *testing.T) {
	h := newTestServer(t, entropy.NewSeeded(1)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/posts", `{"streamer_id":99}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/posts", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissedClipCooldown(t *testing.T) {
	h := newTestServer(t, entropy.NewSeeded(1)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/clips", `{"streamer_id":1,"hit":false}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/clips", `{"streamer_id":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "cooldown")
}

func TestJoinCampaignAndLogin(t *testing.T) {
	h := newTestServer(t, entropy.NewSeeded(1)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/campaigns/4/join", "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/campaigns/abc/join", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/campaigns/77/join", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	login := decode[map[string]any](t, do(t, h, http.MethodPost, "/api/v1/login", ""))
	assert.Equal(t, true, login["granted"])
	assert.Equal(t, 60.0, login["bonus"])
	assert.Equal(t, 70.0, login["money"])

	login = decode[map[string]any](t, do(t, h, http.MethodPost, "/api/v1/login", ""))
	assert.Equal(t, false, login["granted"])

	rec = do(t, h, http.MethodPost, "/api/v1/campaigns/4/join", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 20.0, decode[map[string]any](t, rec)["money"])

	rec = do(t, h, http.MethodPost, "/api/v1/campaigns/4/join", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	var campaigns []struct {
		ID     int  `json:"id"`
		Joined bool `json:"joined"`
	}
	require.NoError(t, json.Unmarshal(do(t, h, http.MethodGet, "/api/v1/campaigns", "").Body.Bytes(), &campaigns))
	require.Len(t, campaigns, 4)
	for _, c := range campaigns {
		assert.Equal(t, c.ID == 4, c.Joined, "campaign %d", c.ID)
	}
}

func TestReadEndpoints(t *testing.T) {
	s := newTestServer(t, entropy.NewSeeded(3))
	h := s.Handler()

	_, err := s.Sim.CreatePost(outcome.Request{StreamerID: 2, Quality: 1})
	require.NoError(t, err)
	for tick := uint64(1); tick <= 10; tick++ {
		s.Sim.TickSecond(tick)
	}

	history := decode[[]player.DailyStat](t, do(t, h, http.MethodGet, "/api/v1/stats/history?days=3", ""))
	require.Len(t, history, 1)
	assert.Equal(t, "2026-05-01", history[0].Date)

	analytics := decode[map[string]json.RawMessage](t, do(t, h, http.MethodGet, "/api/v1/analytics", ""))
	assert.Contains(t, analytics, "followers")
	assert.Contains(t, analytics, "earnings")

	goals := decode[[]map[string]any](t, do(t, h, http.MethodGet, "/api/v1/goals", ""))
	assert.Len(t, goals, 4)

	streamers := decode[[]catalog.LiveStreamer](t, do(t, h, http.MethodGet, "/api/v1/streamers", ""))
	require.Len(t, streamers, len(catalog.Streamers))
	for _, ls := range streamers {
		assert.GreaterOrEqual(t, ls.Viewers, ls.MinViewers)
		assert.LessOrEqual(t, ls.Viewers, ls.MaxViewers)
	}

	hashtags := decode[[]string](t, do(t, h, http.MethodGet, "/api/v1/hashtags", ""))
	assert.Equal(t, catalog.ViralHashtags, hashtags)

	events := decode[[]engine.Event](t, do(t, h, http.MethodGet, "/api/v1/events", ""))
	require.NotEmpty(t, events)
	assert.Equal(t, "post", events[0].Category)

	rec := do(t, h, http.MethodDelete, "/api/v1/posts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t, entropy.NewSeeded(1))
	db, err := persistence.Open(persistence.DialectSQLite, filepath.Join(t.TempDir(), "tycoon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s.DB = db
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":5}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":5000}`, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":5}`, "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5.0, s.Eng.Speed())

	rec = do(t, h, http.MethodGet, "/api/v1/speed", "")
	assert.Equal(t, 5.0, decode[map[string]float64](t, rec)["speed"])

	has, err := db.HasState()
	require.NoError(t, err)
	assert.False(t, has)
	rec = do(t, h, http.MethodPost, "/api/v1/snapshot", "", "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	has, err = db.HasState()
	require.NoError(t, err)
	assert.True(t, has)

	s.AdminKey = ""
	rec = do(t, s.Handler(), http.MethodPost, "/api/v1/snapshot", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSnapshotWithoutDatabase(t *testing.T) {
	h := newTestServer(t, entropy.NewSeeded(1)).Handler()
	rec := do(t, h, http.MethodPost, "/api/v1/snapshot", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestActionRateLimit(t *testing.T) {
	s := newTestServer(t, entropy.NewSeeded(1))
	s.ActionLimit = 2
	h := s.Handler()

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/api/v1/login", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/v1/login", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads are never limited.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/status", "").Code)

	// A different client has its own bucket.
	rec = do(t, h, http.MethodPost, "/api/v1/login", "", "X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, entropy.NewSeeded(1))
	s.CORSOrigins = []string{"https://clips.example"}
	h := s.Handler()

	rec := do(t, h, http.MethodOptions, "/api/v1/posts", "", "Origin", "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/api/v1/status", "", "Origin", "https://clips.example")
	assert.Equal(t, "https://clips.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/api/v1/status", "", "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	at := now
	rl.now = func() time.Time { return at }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 61, rl.RetryAfter("a"))
	assert.True(t, rl.Allow("b"))

	at = at.Add(time.Minute)
	assert.True(t, rl.Allow("a"))

	at = at.Add(3 * time.Minute)
	rl.Allow("c")
	rl.mu.Lock()
	_, stale := rl.buckets["b"]
	rl.mu.Unlock()
	assert.False(t, stale)
}
