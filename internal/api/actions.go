package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/talgya/clip-tycoon/internal/engine"
	"github.com/talgya/clip-tycoon/internal/outcome"
	"github.com/talgya/clip-tycoon/internal/player"
)

// actionError maps a game error to an HTTP status.
func actionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownStreamer),
		errors.Is(err, engine.ErrUnknownClip),
		errors.Is(err, engine.ErrUnknownCampaign):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, engine.ErrAlreadyJoined),
		errors.Is(err, engine.ErrAccountExists):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrCooldownActive):
		status = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrClipMissed),
		errors.Is(err, engine.ErrUnfinishedEdit),
		errors.Is(err, engine.ErrInvalidUsername):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNoAccount):
		status = http.StatusPreconditionRequired
	}
	http.Error(w, err.Error(), status)
}

func writeCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	st, err := s.Sim.CreateAccount(req.Username)
	if err != nil {
		actionError(w, err)
		return
	}
	writeCreated(w, map[string]string{
		"username": st.Username,
		"avatar":   st.Avatar,
	})
}

// handleCaptureClip attempts to clip a live stream. "hit" defaults to true;
// the client sends false when the player missed the moment.
func (s *Server) handleCaptureClip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamerID int   `json:"streamer_id"`
		Hit        *bool `json:"hit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	hit := req.Hit == nil || *req.Hit

	clip, err := s.Sim.CaptureClip(req.StreamerID, hit)
	if err != nil {
		actionError(w, err)
		return
	}
	writeCreated(w, clip)
}

func (s *Server) handleEditClip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TasksCompleted int `json:"tasks_completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	clip, err := s.Sim.EditClip(r.PathValue("id"), req.TasksCompleted)
	if err != nil {
		actionError(w, err)
		return
	}
	writeJSON(w, clip)
}

// handleCreatePost publishes an edited clip when clip_id is set. Otherwise it
// creates a post straight from a streamer and quality score.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClipID     string   `json:"clip_id"`
		StreamerID int      `json:"streamer_id"`
		Quality    *float64 `json:"quality"`
		Title      string   `json:"title"`
		Hashtags   []string `json:"hashtags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var (
		post player.Post
		err  error
	)
	if req.ClipID != "" {
		post, err = s.Sim.PostClip(req.ClipID, req.Title, req.Hashtags)
	} else {
		quality := 1.0
		if req.Quality != nil {
			quality = *req.Quality
		}
		post, err = s.Sim.CreatePost(outcome.Request{
			StreamerID: req.StreamerID,
			Quality:    quality,
			Title:      req.Title,
			Hashtags:   req.Hashtags,
		})
	}
	if err != nil {
		actionError(w, err)
		return
	}
	writeCreated(w, newPostView(post))
}

func (s *Server) handleJoinCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	c, err := s.Sim.JoinCampaign(id)
	if err != nil {
		actionError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"campaign": c,
		"money":    s.Sim.Snapshot().Money,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	bonus, granted := s.Sim.DailyLogin()
	writeJSON(w, map[string]any{
		"granted": granted,
		"bonus":   bonus,
		"money":   s.Sim.Snapshot().Money,
	})
}
