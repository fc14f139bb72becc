// Package outcome decides how a new post will eventually perform. Every draw
// comes from an injected entropy.Source, so a seeded source reproduces the
// same targets exactly.
package outcome

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/clip-tycoon/internal/entropy"
	"github.com/talgya/clip-tycoon/internal/player"
)

// MinQuality is the floor applied to out-of-range quality scores.
const MinQuality = 0.01

// Tier is one step of the follower-based reach table used after the
// tutorial posts.
type Tier struct {
	MinFollowers  int64
	SuccessChance float64
	MinViews      int64
	MaxViews      int64
}

// Tiers is ordered by MinFollowers ascending.
var Tiers = []Tier{
	{MinFollowers: 0, SuccessChance: 0.30, MinViews: 100, MaxViews: 1000},
	{MinFollowers: 1000, SuccessChance: 0.40, MinViews: 100, MaxViews: 3000},
	{MinFollowers: 2000, SuccessChance: 0.50, MinViews: 100, MaxViews: 5000},
	{MinFollowers: 5000, SuccessChance: 0.60, MinViews: 100, MaxViews: 8000},
	{MinFollowers: 10000, SuccessChance: 0.75, MinViews: 100, MaxViews: 10000},
}

// Flop range used when a post fails its reach roll.
const (
	flopMinViews = 10
	flopMaxViews = 100
)

// Payout rates in dollars per 1000 views.
const (
	PartnerPayoutRate = 2.0
	BasePayoutRate    = 0.5
)

// TierFor returns the reach tier for a follower count.
func TierFor(followers int64) Tier {
	t := Tiers[0]
	for _, tier := range Tiers {
		if followers >= tier.MinFollowers {
			t = tier
		}
	}
	return t
}

// BaseViews picks the raw view count for the post at index, before any
// multipliers. The first three posts follow a fixed tutorial script.
func BaseViews(src entropy.Source, index int, followers int64) int64 {
	switch index {
	case 0:
		return entropy.IntRange(src, 100, 200)
	case 1:
		return entropy.IntRange(src, 350, 450)
	case 2:
		return entropy.IntRange(src, 20000, 30000)
	}

	tier := TierFor(followers)
	if src.Float64() < tier.SuccessChance {
		return entropy.IntRange(src, tier.MinViews, tier.MaxViews)
	}
	return entropy.IntRange(src, flopMinViews, flopMaxViews)
}

// Input is everything the generator reads about the player and the clip.
type Input struct {
	Index     int // number of posts made before this one
	Level     int
	IsPartner bool
	Followers int64
	Quality   float64

	// CampaignRate is the bonus per 1000 views from a matching active
	// campaign; zero when none applies.
	CampaignRate float64
}

// ClampQuality forces a quality score into [MinQuality, 1].
func ClampQuality(q float64) float64 {
	if math.IsNaN(q) || q < MinQuality {
		return MinQuality
	}
	if q > 1 {
		return 1
	}
	return q
}

// Generate returns the target metrics for a new post.
func Generate(src entropy.Source, in Input) player.Metrics {
	level := in.Level
	if level < 1 {
		level = 1
	}
	levelMultiplier := 1 + float64(level-1)*0.1
	partnershipMultiplier := 1.0
	payoutRate := BasePayoutRate
	if in.IsPartner {
		partnershipMultiplier = 1.5
		payoutRate = PartnerPayoutRate
	}

	base := BaseViews(src, in.Index, in.Followers)
	views := int64(math.Floor(float64(base) * levelMultiplier * partnershipMultiplier * ClampQuality(in.Quality)))

	thousands := float64(views) / 1000
	earnings := thousands * payoutRate
	if in.CampaignRate > 0 {
		earnings += thousands * in.CampaignRate
	}

	followers := int64(math.Floor(float64(views) / entropy.Uniform(src, 20, 50)))

	return player.Metrics{
		Views:           views,
		Likes:           ratio(src, views, 0.6, 0.9),
		Comments:        ratio(src, views, 0.01, 0.06),
		Shares:          ratio(src, views, 0.005, 0.025),
		Earnings:        earnings,
		FollowersGained: followers,
	}
}

func ratio(src entropy.Source, views int64, lo, hi float64) int64 {
	return int64(math.Floor(float64(views) * entropy.Uniform(src, lo, hi)))
}

// Request describes a clip about to be posted.
type Request struct {
	StreamerID   int
	StreamerName string
	Quality      float64
	Title        string
	Hashtags     []string
}

// NewPost materializes a post for the player without changing the player.
// Current metrics start at zero; only the tick simulator reveals them.
func NewPost(src entropy.Source, st *player.State, req Request, now time.Time) player.Post {
	in := Input{
		Index:     len(st.Posts),
		Level:     st.Level,
		IsPartner: st.IsPartner,
		Followers: st.Followers,
		Quality:   req.Quality,
	}
	if c, ok := st.ActiveCampaignFor(req.StreamerID); ok {
		in.CampaignRate = c.PayoutPer1000Views
	}

	return player.Post{
		ID:           uuid.NewString(),
		StreamerID:   req.StreamerID,
		StreamerName: req.StreamerName,
		Title:        strings.TrimSpace(req.Title),
		Hashtags:     append([]string(nil), req.Hashtags...),
		Quality:      ClampQuality(req.Quality),
		CreatedAt:    now,
		Target:       Generate(src, in),
	}
}
