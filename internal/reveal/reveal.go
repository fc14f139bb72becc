// Package reveal advances every post's revealed metrics toward its targets,
// one tick at a time, and folds the gains into player progression and the
// daily ledger.
package reveal

import (
	"math"
	"time"

	"github.com/talgya/clip-tycoon/internal/ledger"
	"github.com/talgya/clip-tycoon/internal/player"
	"github.com/talgya/clip-tycoon/internal/progression"
)

// CatchUpRate is the share of the remaining views revealed each tick.
const CatchUpRate = 0.05

// Result summarizes one tick.
type Result struct {
	Changed       bool
	PostsAdvanced int
	FollowerDelta int64
	MoneyDelta    float64
	XPGained      int64
	LeveledUp     bool
	BecamePartner bool
	Date          string
}

// Step advances one post by a single tick. It reports whether the views moved;
// a settled post comes back unchanged.
func Step(p player.Post) (player.Post, bool) {
	moved := false
	if p.Current.Views < p.Target.Views {
		remaining := p.Target.Views - p.Current.Views
		inc := int64(math.Ceil(float64(remaining) * CatchUpRate))
		if inc < 1 {
			inc = 1
		}
		p.Current.Views += inc
		if p.Current.Views > p.Target.Views {
			p.Current.Views = p.Target.Views
		}
		moved = true
	}
	if p.Current.Views < 0 {
		p.Current.Views = 0
	}
	Recompute(&p)
	return p, moved
}

// Recompute derives every non-view metric from view progress so that they
// always agree with views and never pass their targets.
func Recompute(p *player.Post) {
	progress := p.Progress()
	if progress > 1 {
		progress = 1
	}
	p.Current.Likes = scaled(progress, p.Target.Likes)
	p.Current.Comments = scaled(progress, p.Target.Comments)
	p.Current.Shares = scaled(progress, p.Target.Shares)
	p.Current.FollowersGained = scaled(progress, p.Target.FollowersGained)
	p.Current.Earnings = progress * p.Target.Earnings
}

func scaled(progress float64, target int64) int64 {
	v := int64(math.Floor(progress * float64(target)))
	if v < 0 {
		return 0
	}
	if v > target {
		return target
	}
	return v
}

// Advance runs one tick over a snapshot and returns the next snapshot. When no
// post moved the input is returned untouched.
func Advance(st player.State, now time.Time) (player.State, Result) {
	var res Result
	next := st.Clone()

	for i := range next.Posts {
		stepped, moved := Step(next.Posts[i])
		if !moved {
			continue
		}
		if gained := stepped.Current.FollowersGained - next.Posts[i].Current.FollowersGained; gained > 0 {
			res.FollowerDelta += gained
		}
		next.Posts[i] = stepped
		res.PostsAdvanced++
	}

	if res.PostsAdvanced == 0 {
		return st, res
	}
	res.Changed = true

	// Difference of full totals, each summed in post order.
	res.MoneyDelta = next.TotalCurrentEarnings() - st.TotalCurrentEarnings()

	prog, out := progression.Apply(next.Progression, progression.Delta{
		Followers: res.FollowerDelta,
		Money:     res.MoneyDelta,
	})
	next.Progression = prog
	res.XPGained = out.XPGained
	res.LeveledUp = out.LeveledUp
	res.BecamePartner = out.BecamePartner

	res.Date = ledger.DateKey(now)
	next.DailyStats = ledger.Upsert(next.DailyStats, res.Date, res.FollowerDelta, res.MoneyDelta)

	return next, res
}

// Pending counts posts that are still revealing.
func Pending(st *player.State) int {
	n := 0
	for i := range st.Posts {
		if !st.Posts[i].Settled() {
			n++
		}
	}
	return n
}
