// Package progression derives level, XP and partner status from the money and
// follower deltas produced by each simulation tick.
package progression

import (
	"math"

	"github.com/talgya/clip-tycoon/internal/player"
)

// LevelThresholds holds the XP needed for each level. Level = 1 + number of
// thresholds met after the first.
var LevelThresholds = []int64{0, 100, 300, 700, 1500, 3000, 6000, 10000, 15000, 25000}

const (
	// PartnerFollowers is the follower count that unlocks partner status.
	PartnerFollowers = 10000

	// XPPerDollar converts earned money into experience.
	XPPerDollar = 10
)

// MaxLevel is the highest reachable level with the default thresholds.
func MaxLevel() int { return len(LevelThresholds) }

// XPToLevel returns the level after gaining experience. It moves at most one
// level per call even when several thresholds are crossed at once.
func XPToLevel(xp int64, level int, thresholds []int64) int {
	if level < 1 {
		level = 1
	}
	if level < len(thresholds) && xp >= thresholds[level] {
		return level + 1
	}
	return level
}

// PartnerGate reports partner status. Once true it stays true.
func PartnerGate(followers int64, already bool) bool {
	return already || followers >= PartnerFollowers
}

// Delta is the aggregate gain of one tick.
type Delta struct {
	Followers int64
	Money     float64
}

// Outcome describes the transitions an Apply call triggered.
type Outcome struct {
	XPGained      int64
	LeveledUp     bool
	BecamePartner bool
}

// Apply folds a tick delta into progression. Followers and XP only grow;
// level and partner status follow from the new totals.
func Apply(p player.Progression, d Delta) (player.Progression, Outcome) {
	var out Outcome

	if d.Followers > 0 {
		p.Followers += d.Followers
	}

	out.XPGained = int64(math.Floor(d.Money * XPPerDollar))
	if out.XPGained < 0 {
		out.XPGained = 0
	}
	p.XP += out.XPGained

	next := XPToLevel(p.XP, p.Level, LevelThresholds)
	out.LeveledUp = next > p.Level
	p.Level = next

	partner := PartnerGate(p.Followers, p.IsPartner)
	out.BecamePartner = partner && !p.IsPartner
	p.IsPartner = partner

	p.Money += d.Money
	return p, out
}

// Goal is a long-term milestone shown to the player.
type Goal struct {
	Description string  `json:"description"`
	Target      float64 `json:"target"`
	Type        string  `json:"type"` // "followers" or "money"
}

// Goals are the milestones in the order they are presented.
var Goals = []Goal{
	{Description: "Reach 10,000 TikTok followers.", Target: 10000, Type: "followers"},
	{Description: "Earn your first $1,000.", Target: 1000, Type: "money"},
	{Description: "Reach 100,000 TikTok followers.", Target: 100000, Type: "followers"},
	{Description: "Become a millionaire!", Target: 1000000, Type: "money"},
}

// GoalStatus is a goal with the player's current standing against it.
type GoalStatus struct {
	Goal
	Current  float64 `json:"current"`
	Progress float64 `json:"progress"` // 0..1
	Complete bool    `json:"complete"`
}

// GoalProgress evaluates every goal against the player's progression.
func GoalProgress(p player.Progression) []GoalStatus {
	out := make([]GoalStatus, 0, len(Goals))
	for _, g := range Goals {
		cur := float64(p.Followers)
		if g.Type == "money" {
			cur = p.Money
		}
		frac := cur / g.Target
		if frac > 1 {
			frac = 1
		}
		if frac < 0 {
			frac = 0
		}
		out = append(out, GoalStatus{
			Goal:     g,
			Current:  cur,
			Progress: frac,
			Complete: cur >= g.Target,
		})
	}
	return out
}

// NextThreshold returns the XP needed for the next level, or false at max level.
func NextThreshold(level int) (int64, bool) {
	if level < 1 {
		level = 1
	}
	if level >= len(LevelThresholds) {
		return 0, false
	}
	return LevelThresholds[level], true
}
