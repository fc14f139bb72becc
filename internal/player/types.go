// Package player provides the persisted player aggregate: progression, posts,
// clips, campaigns and the daily statistics ledger.
package player

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// StartingMoney is the cash a brand new account begins with.
const StartingMoney = 10

// Progression is the player's cumulative standing. Only the tick simulator
// and explicit spends (campaign fees) change it.
type Progression struct {
	Money     float64 `json:"money"`
	Followers int64   `json:"followers"`
	XP        int64   `json:"xp"`
	Level     int     `json:"level"`      // >= 1
	IsPartner bool    `json:"is_partner"` // one-way latch
}

// Metrics is one bundle of post statistics. A post carries two of them: the
// target it will eventually reach and the currently revealed values.
type Metrics struct {
	Views           int64   `json:"views"`
	Likes           int64   `json:"likes"`
	Comments        int64   `json:"comments"`
	Shares          int64   `json:"shares"`
	Earnings        float64 `json:"earnings"`
	FollowersGained int64   `json:"followers_gained"`
}

// Clip is a captured stream moment. Quality is zero until the clip is edited.
type Clip struct {
	ID           string    `json:"id"`
	StreamerID   int       `json:"streamer_id"`
	StreamerName string    `json:"streamer_name"`
	CapturedAt   time.Time `json:"captured_at"`
	Quality      float64   `json:"quality,omitempty"`
}

// Post is a published clip. Target is fixed at creation; Current only moves
// toward it and only the tick simulator moves it.
type Post struct {
	ID           string    `json:"id"`
	StreamerID   int       `json:"streamer_id"`
	StreamerName string    `json:"streamer_name"`
	Title        string    `json:"title"`
	Hashtags     []string  `json:"hashtags"`
	Quality      float64   `json:"quality"`
	CreatedAt    time.Time `json:"created_at"`

	Target  Metrics `json:"target"`
	Current Metrics `json:"current"`
}

// Progress returns the fraction of target views revealed so far. A post with
// zero target views counts as fully revealed.
func (p *Post) Progress() float64 {
	if p.Target.Views <= 0 {
		return 1
	}
	return float64(p.Current.Views) / float64(p.Target.Views)
}

// Settled reports whether the post has reached its target view count.
func (p *Post) Settled() bool {
	return p.Current.Views >= p.Target.Views
}

// Campaign is a sponsorship deal that pays a bonus per 1000 views on posts
// clipped from one streamer.
type Campaign struct {
	ID                 int     `json:"id"`
	Name               string  `json:"name"`
	StreamerID         int     `json:"streamer_id"`
	PayoutPer1000Views float64 `json:"payout_per_1000_views"`
	Fee                float64 `json:"fee"`
	Description        string  `json:"description"`
	Active             bool    `json:"active"`
}

// DailyStat is one calendar day (UTC, YYYY-MM-DD) of accumulated gains.
type DailyStat struct {
	Date            string  `json:"date"`
	FollowersGained int64   `json:"followers_gained"`
	MoneyGained     float64 `json:"money_gained"`
}

// RandomEvent is the transient announcement shown after a lucky or unlucky post.
type RandomEvent struct {
	Message string `json:"message"`
	Active  bool   `json:"active"`
}

// State is the whole persisted player record.
type State struct {
	Progression

	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`

	Posts       []Post `json:"posts"` // creation order; index = post sequence number
	RawClips    []Clip `json:"raw_clips"`
	EditedClips []Clip `json:"edited_clips"`

	ActiveCampaigns    []Campaign `json:"active_campaigns"`
	AvailableCampaigns []Campaign `json:"available_campaigns"`

	LastLogin   string      `json:"last_login,omitempty"`
	RandomEvent RandomEvent `json:"random_event"`
	DailyStats  []DailyStat `json:"daily_stats"`
}

// NewState returns the starting record for a fresh account.
func NewState(available ...Campaign) State {
	campaigns := make([]Campaign, len(available))
	copy(campaigns, available)
	return State{
		Progression: Progression{
			Money: StartingMoney,
			Level: 1,
		},
		AvailableCampaigns: campaigns,
	}
}

// Clone returns a deep copy so snapshots never share slices with live state.
func (s State) Clone() State {
	out := s
	if s.Posts != nil {
		out.Posts = make([]Post, len(s.Posts))
		for i, p := range s.Posts {
			p.Hashtags = slices.Clone(p.Hashtags)
			out.Posts[i] = p
		}
	}
	out.RawClips = slices.Clone(s.RawClips)
	out.EditedClips = slices.Clone(s.EditedClips)
	out.ActiveCampaigns = slices.Clone(s.ActiveCampaigns)
	out.AvailableCampaigns = slices.Clone(s.AvailableCampaigns)
	out.DailyStats = slices.Clone(s.DailyStats)
	return out
}

// ActiveCampaignFor returns the first active campaign for a streamer, if any.
func (s *State) ActiveCampaignFor(streamerID int) (Campaign, bool) {
	for _, c := range s.ActiveCampaigns {
		if c.StreamerID == streamerID {
			return c, true
		}
	}
	return Campaign{}, false
}

// TotalCurrentEarnings sums revealed earnings over all posts in creation order.
func (s *State) TotalCurrentEarnings() float64 {
	total := 0.0
	for i := range s.Posts {
		total += s.Posts[i].Current.Earnings
	}
	return total
}

var errInvalidState = errors.New("invalid player state")

// Validate reports whether a restored record is usable as-is. A zero-valued
// record is valid; callers replace an invalid one with NewState.
func (s *State) Validate() error {
	if s.Money < 0 || s.Followers < 0 || s.XP < 0 || s.Level < 0 {
		return fmt.Errorf("%w: negative progression", errInvalidState)
	}
	seen := make(map[string]bool, len(s.Posts))
	for i := range s.Posts {
		p := &s.Posts[i]
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate post %q", errInvalidState, p.ID)
		}
		seen[p.ID] = true
		if !withinTarget(p.Current, p.Target) {
			return fmt.Errorf("%w: post %q current metrics outside target", errInvalidState, p.ID)
		}
	}
	for i := 1; i < len(s.DailyStats); i++ {
		if s.DailyStats[i].Date <= s.DailyStats[i-1].Date {
			return fmt.Errorf("%w: daily stats out of order at %s", errInvalidState, s.DailyStats[i].Date)
		}
	}
	return nil
}

// Normalize fills zero values left by an empty or default-initialized record.
func (s *State) Normalize() {
	if s.Level < 1 {
		s.Level = 1
	}
}

func withinTarget(cur, tgt Metrics) bool {
	if cur.Views < 0 || cur.Likes < 0 || cur.Comments < 0 || cur.Shares < 0 ||
		cur.Earnings < 0 || cur.FollowersGained < 0 {
		return false
	}
	return cur.Views <= tgt.Views &&
		cur.Likes <= tgt.Likes &&
		cur.Comments <= tgt.Comments &&
		cur.Shares <= tgt.Shares &&
		cur.Earnings <= tgt.Earnings &&
		cur.FollowersGained <= tgt.FollowersGained
}
