package engine

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/clip-tycoon/internal/catalog"
	"github.com/talgya/clip-tycoon/internal/entropy"
	"github.com/talgya/clip-tycoon/internal/ledger"
	"github.com/talgya/clip-tycoon/internal/outcome"
	"github.com/talgya/clip-tycoon/internal/player"
)

// Clip pipeline tuning.
const (
	MaxRawClips       = 50
	MissCooldownTicks = 30
	randomEventTicks  = 5
)

// MaxUsernameLength bounds account names.
const MaxUsernameLength = 24

// Random event odds rolled after each published clip.
const (
	viralBonusChance = 0.05
	crashChance      = 0.08
)

// CreatePost generates a post from a quality score and adds it to the
// in-flight set. Progression is untouched until later ticks reveal it.
func (s *Simulation) CreatePost(req outcome.Request) (player.Post, error) {
	if req.StreamerName == "" {
		st, ok := catalog.StreamerByID(req.StreamerID)
		if !ok {
			return player.Post{}, fmt.Errorf("create post: %w: %d", ErrUnknownStreamer, req.StreamerID)
		}
		req.StreamerName = st.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPostLocked(req), nil
}

func (s *Simulation) createPostLocked(req outcome.Request) player.Post {
	post := outcome.NewPost(s.src, &s.state, req, s.clock.Now())
	s.state.Posts = append(s.state.Posts, post)

	slog.Info("post created",
		"id", post.ID,
		"index", len(s.state.Posts)-1,
		"streamer", post.StreamerName,
		"quality", post.Quality,
		"target_views", humanize.Comma(post.Target.Views),
		"target_earnings", humanize.FormatFloat("#,###.##", post.Target.Earnings),
	)
	s.record(s.lastTick, "post", fmt.Sprintf("Posted %q (%s)", post.Title, post.StreamerName))
	return post
}

// CreateAccount names the player's account and picks a streamer photo as its
// avatar. Publishing clips requires an account; it can be created once.
func (s *Simulation) CreateAccount(username string) (player.State, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return player.State{}, fmt.Errorf("create account: %w: %q", ErrInvalidUsername, username)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Username != "" {
		return player.State{}, fmt.Errorf("create account: %w as %q", ErrAccountExists, s.state.Username)
	}

	pick := entropy.IntRange(s.src, 0, int64(len(catalog.Streamers)-1))
	s.state.Username = username
	s.state.Avatar = catalog.Streamers[pick].ImgSrc

	slog.Info("account created", "username", username)
	s.record(s.lastTick, "account", fmt.Sprintf("Created account @%s", username))
	return s.state.Clone(), nil
}

// CaptureClip records an attempt to clip a live stream. A miss starts the
// cooldown; while it runs every attempt is refused.
func (s *Simulation) CaptureClip(streamerID int, hit bool) (player.Clip, error) {
	streamer, ok := catalog.StreamerByID(streamerID)
	if !ok {
		return player.Clip{}, fmt.Errorf("capture clip: %w: %d", ErrUnknownStreamer, streamerID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cooldown > 0 {
		return player.Clip{}, fmt.Errorf("capture clip: %w (%ds left)", ErrCooldownActive, s.cooldown)
	}
	if !hit {
		s.cooldown = MissCooldownTicks
		return player.Clip{}, ErrClipMissed
	}

	clip := player.Clip{
		ID:           uuid.NewString(),
		StreamerID:   streamer.ID,
		StreamerName: streamer.Name,
		CapturedAt:   s.clock.Now(),
	}
	s.state.RawClips = append([]player.Clip{clip}, s.state.RawClips...)
	if len(s.state.RawClips) > MaxRawClips {
		s.state.RawClips = s.state.RawClips[:MaxRawClips]
	}
	return clip, nil
}

// EditQuality maps completed editing tasks (out of three) to a quality score.
func EditQuality(tasksCompleted int) (float64, error) {
	switch {
	case tasksCompleted >= 3:
		return 1.0, nil
	case tasksCompleted == 2:
		return 0.9, nil
	default:
		return 0, ErrUnfinishedEdit
	}
}

// EditClip turns a raw clip into an edited one.
func (s *Simulation) EditClip(clipID string, tasksCompleted int) (player.Clip, error) {
	quality, err := EditQuality(tasksCompleted)
	if err != nil {
		return player.Clip{}, fmt.Errorf("edit clip: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOfClip(s.state.RawClips, clipID)
	if i < 0 {
		return player.Clip{}, fmt.Errorf("edit clip: %w: %s", ErrUnknownClip, clipID)
	}
	clip := s.state.RawClips[i]
	clip.Quality = quality

	s.state.RawClips = append(s.state.RawClips[:i:i], s.state.RawClips[i+1:]...)
	s.state.EditedClips = append([]player.Clip{clip}, s.state.EditedClips...)
	return clip, nil
}

// PostClip publishes an edited clip and then rolls for a random event. It
// needs an account; CreatePost does not, so hosts can generate posts directly.
func (s *Simulation) PostClip(clipID, title string, hashtags []string) (player.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Username == "" {
		return player.Post{}, fmt.Errorf("post clip: %w", ErrNoAccount)
	}

	i := indexOfClip(s.state.EditedClips, clipID)
	if i < 0 {
		return player.Post{}, fmt.Errorf("post clip: %w: %s", ErrUnknownClip, clipID)
	}
	clip := s.state.EditedClips[i]
	s.state.EditedClips = append(s.state.EditedClips[:i:i], s.state.EditedClips[i+1:]...)

	post := s.createPostLocked(outcome.Request{
		StreamerID:   clip.StreamerID,
		StreamerName: clip.StreamerName,
		Quality:      clip.Quality,
		Title:        title,
		Hashtags:     hashtags,
	})
	s.rollRandomEvent()
	return post, nil
}

func (s *Simulation) rollRandomEvent() {
	roll := s.src.Float64()
	var msg string
	switch {
	case roll < viralBonusChance:
		bonus := math.Floor(50 + s.src.Float64()*500)
		s.state.Money += bonus
		msg = fmt.Sprintf("Your clip went viral overnight! You earned an extra $%.2f!", bonus)
		slog.Info("random event", "kind", "viral_bonus", "bonus", bonus)
		s.record(s.lastTick, "bonus", msg)
	case roll < crashChance:
		msg = "Editing software crash! You lost a raw clip and some time."
		slog.Info("random event", "kind", "crash")
		s.record(s.lastTick, "random", msg)
	default:
		return
	}
	s.state.RandomEvent = player.RandomEvent{Message: msg, Active: true}
	s.eventExpires = s.lastTick + randomEventTicks
}

// JoinCampaign pays a campaign's fee and activates it.
func (s *Simulation) JoinCampaign(id int) (player.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.state.ActiveCampaigns {
		if c.ID == id {
			return player.Campaign{}, fmt.Errorf("join campaign %d: %w", id, ErrAlreadyJoined)
		}
	}

	var campaign player.Campaign
	found := false
	for _, c := range s.state.AvailableCampaigns {
		if c.ID == id {
			campaign, found = c, true
			break
		}
	}
	if !found {
		return player.Campaign{}, fmt.Errorf("join campaign %d: %w", id, ErrUnknownCampaign)
	}
	if s.state.Money < campaign.Fee {
		return player.Campaign{}, fmt.Errorf("join campaign %d: %w: need $%.2f", id, ErrInsufficientFunds, campaign.Fee)
	}

	s.state.Money -= campaign.Fee
	campaign.Active = true
	s.state.ActiveCampaigns = append(s.state.ActiveCampaigns, campaign)

	slog.Info("campaign joined", "id", id, "name", campaign.Name, "fee", campaign.Fee)
	s.record(s.lastTick, "campaign", fmt.Sprintf("Joined %s", campaign.Name))
	return campaign, nil
}

// DailyLoginBonus is the cash granted on the first login of a day.
func DailyLoginBonus(level int) float64 {
	return 50 + float64(level)*10
}

// DailyLogin grants the login bonus once per UTC day.
func (s *Simulation) DailyLogin() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := ledger.DateKey(s.clock.Now())
	if s.state.LastLogin == today {
		return 0, false
	}
	bonus := DailyLoginBonus(s.state.Level)
	s.state.Money += bonus
	s.state.LastLogin = today

	slog.Info("daily login bonus", "bonus", bonus, "date", today)
	s.record(s.lastTick, "bonus", fmt.Sprintf("Daily login bonus: $%.2f", bonus))
	return bonus, true
}

func indexOfClip(clips []player.Clip, id string) int {
	for i, c := range clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}
