// Package api provides the HTTP API for playing the game and observing the
// player record. GET endpoints are read-only. Game actions are POST and rate
// limited per IP. Speed and snapshot control require a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/clip-tycoon/internal/catalog"
	"github.com/talgya/clip-tycoon/internal/engine"
	"github.com/talgya/clip-tycoon/internal/ledger"
	"github.com/talgya/clip-tycoon/internal/persistence"
	"github.com/talgya/clip-tycoon/internal/player"
	"github.com/talgya/clip-tycoon/internal/progression"
	"github.com/talgya/clip-tycoon/internal/reveal"
)

// Server serves the player state over HTTP.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine
	DB          *persistence.DB // nil disables snapshots
	Audience    *catalog.Audience
	Clock       engine.Clock
	Port        int
	AdminKey    string   // Bearer token for admin endpoints. Empty = admin disabled.
	CORSOrigins []string // Extra allowed origins on top of the localhost dev servers.

	// ActionLimit caps game actions per IP per minute. Zero uses the default.
	ActionLimit int

	httpServer *http.Server
}

const defaultActionLimit = 120

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	if s.Clock == nil {
		s.Clock = engine.RealClock{}
	}
	limit := s.ActionLimit
	if limit <= 0 {
		limit = defaultActionLimit
	}
	actions := NewRateLimiter(limit, time.Minute)

	mux := http.NewServeMux()

	// Public read endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/posts", s.handlePosts)
	mux.HandleFunc("GET /api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("GET /api/v1/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/v1/goals", s.handleGoals)
	mux.HandleFunc("GET /api/v1/streamers", s.handleStreamers)
	mux.HandleFunc("GET /api/v1/campaigns", s.handleCampaigns)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/hashtags", s.handleHashtags)

	// Game actions.
	mux.HandleFunc("POST /api/v1/account", RateLimitMiddleware(actions, s.handleCreateAccount))
	mux.HandleFunc("POST /api/v1/clips", RateLimitMiddleware(actions, s.handleCaptureClip))
	mux.HandleFunc("POST /api/v1/clips/{id}/edit", RateLimitMiddleware(actions, s.handleEditClip))
	mux.HandleFunc("POST /api/v1/posts", RateLimitMiddleware(actions, s.handleCreatePost))
	mux.HandleFunc("POST /api/v1/campaigns/{id}/join", RateLimitMiddleware(actions, s.handleJoinCampaign))
	mux.HandleFunc("POST /api/v1/login", RateLimitMiddleware(actions, s.handleLogin))

	// Admin endpoints (POST requires bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux, s.CORSOrigins)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler, extra []string) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range extra {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no TYCOON_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.Sim.Status()
	st := status.State

	next, hasNext := progression.NextThreshold(st.Level)
	levelInfo := map[string]any{
		"level":   st.Level,
		"xp":      st.XP,
		"max":     !hasNext,
		"next_xp": nil,
	}
	if hasNext {
		levelInfo["next_xp"] = next
	}

	writeJSON(w, map[string]any{
		"name":          "Clip Tycoon",
		"tick":          status.Tick,
		"speed":         s.Eng.Speed(),
		"running":       s.Eng.Running(),
		"username":      st.Username,
		"avatar":        st.Avatar,
		"money":         st.Money,
		"followers":     st.Followers,
		"is_partner":    st.IsPartner,
		"level":         levelInfo,
		"posts":         len(st.Posts),
		"pending_posts": reveal.Pending(&st),
		"raw_clips":     len(st.RawClips),
		"edited_clips":  len(st.EditedClips),
		"cooldown":      status.Cooldown,
		"random_event":  st.RandomEvent,
		"last_login":    st.LastLogin,
	})
}

// handlePosts returns posts newest first.
func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	st := s.Sim.Snapshot()

	out := make([]postView, 0, min(limit, len(st.Posts)))
	for i := len(st.Posts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, newPostView(st.Posts[i]))
	}
	writeJSON(w, out)
}

type postView struct {
	player.Post
	Progress float64 `json:"progress"`
	Settled  bool    `json:"settled"`
}

func newPostView(p player.Post) postView {
	return postView{Post: p, Progress: p.Progress(), Settled: p.Settled()}
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7, 1, ledger.MaxDays)
	st := s.Sim.Snapshot()
	rows := ledger.Window(st.DailyStats, days)
	if rows == nil {
		rows = []player.DailyStat{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Snapshot()
	writeJSON(w, map[string]any{
		"followers": ledger.Followers(&st),
		"earnings":  ledger.Earnings(&st),
	})
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Snapshot()
	writeJSON(w, progression.GoalProgress(st.Progression))
}

func (s *Server) handleStreamers(w http.ResponseWriter, r *http.Request) {
	if s.Audience == nil {
		writeJSON(w, catalog.Streamers)
		return
	}
	writeJSON(w, s.Audience.Live(s.Clock.Now()))
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Snapshot()

	type campaignView struct {
		player.Campaign
		Joined     bool `json:"joined"`
		Affordable bool `json:"affordable"`
	}
	joined := make(map[int]bool, len(st.ActiveCampaigns))
	for _, c := range st.ActiveCampaigns {
		joined[c.ID] = true
	}
	out := make([]campaignView, 0, len(st.AvailableCampaigns))
	for _, c := range st.AvailableCampaigns {
		out = append(out, campaignView{
			Campaign:   c,
			Joined:     joined[c.ID],
			Affordable: st.Money >= c.Fee,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	writeJSON(w, s.Sim.Events(limit))
}

// handleHashtags lists the suggested hashtags for clip captions.
func (s *Server) handleHashtags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, catalog.ViralHashtags)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveSimulation(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// queryInt reads an integer query parameter, keeping def when it is missing
// or outside [lo, hi].
func queryInt(r *http.Request, key string, def, lo, hi int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= lo && n <= hi {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
