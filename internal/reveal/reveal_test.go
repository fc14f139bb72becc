package reveal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clip-tycoon/internal/entropy"
	"github.com/talgya/clip-tycoon/internal/outcome"
	"github.com/talgya/clip-tycoon/internal/player"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func postWith(target player.Metrics) player.Post {
	return player.Post{ID: "p", Target: target}
}

func TestSingleTickScenario(t *testing.T) {
	st := player.NewState()
	st.Posts = []player.Post{postWith(player.Metrics{Views: 100, Likes: 80, Comments: 3, Shares: 2, Earnings: 0.05, FollowersGained: 4})}

	next, res := Advance(st, now)

	require.True(t, res.Changed)
	p := next.Posts[0]
	assert.Equal(t, int64(5), p.Current.Views)
	assert.InDelta(t, 0.05, p.Progress(), 1e-12)
	assert.Equal(t, int64(4), p.Current.Likes)
	assert.Equal(t, int64(0), p.Current.Comments)
	assert.InDelta(t, 0.0025, p.Current.Earnings, 1e-12)

	// Input snapshot untouched.
	assert.Zero(t, st.Posts[0].Current.Views)
}

func TestStepMinimumIncrement(t *testing.T) {
	p := postWith(player.Metrics{Views: 10})
	p.Current.Views = 9
	next, moved := Step(p)
	assert.True(t, moved)
	assert.Equal(t, int64(10), next.Current.Views)

	again, moved := Step(next)
	assert.False(t, moved)
	assert.Equal(t, next, again)
}

func TestZeroTargetIsSettled(t *testing.T) {
	st := player.NewState()
	st.Posts = []player.Post{postWith(player.Metrics{})}

	next, res := Advance(st, now)
	assert.False(t, res.Changed)
	assert.Equal(t, st, next)
}

func TestConvergence(t *testing.T) {
	st := player.NewState()
	st.Posts = []player.Post{postWith(player.Metrics{Views: 1000, Likes: 700, Comments: 40, Shares: 12, Earnings: 0.5, FollowersGained: 33})}

	ticks := 0
	for ; ticks < 1000; ticks++ {
		var res Result
		st, res = Advance(st, now)
		if !res.Changed {
			break
		}
	}

	assert.LessOrEqual(t, ticks, 90)
	p := st.Posts[0]
	assert.Equal(t, p.Target.Views, p.Current.Views)
	assert.Equal(t, p.Target.Likes, p.Current.Likes)
	assert.Equal(t, p.Target.FollowersGained, p.Current.FollowersGained)
	assert.InDelta(t, p.Target.Earnings, p.Current.Earnings, 1e-12)
	assert.Equal(t, 0, Pending(&st))

	settled := st
	for i := 0; i < 5; i++ {
		var res Result
		st, res = Advance(st, now)
		assert.False(t, res.Changed)
	}
	assert.Equal(t, settled, st)
}

func TestInvariantsHoldEveryTick(t *testing.T) {
	src := entropy.NewSeeded(11)
	st := player.NewState()
	for i := 0; i < 12; i++ {
		st.Posts = append(st.Posts, outcome.NewPost(src, &st, outcome.Request{StreamerID: 1, Quality: 0.9}, now))
	}

	prevLevel, prevFollowers, prevXP := st.Level, st.Followers, st.XP
	for tick := 0; tick < 300; tick++ {
		st, _ = Advance(st, now.Add(time.Duration(tick)*time.Second))

		for _, p := range st.Posts {
			require.GreaterOrEqual(t, p.Current.Views, int64(0))
			require.LessOrEqual(t, p.Current.Views, p.Target.Views)
			progress := p.Progress()
			require.Equal(t, int64(math.Floor(progress*float64(p.Target.Likes))), p.Current.Likes)
			require.Equal(t, int64(math.Floor(progress*float64(p.Target.Comments))), p.Current.Comments)
			require.Equal(t, int64(math.Floor(progress*float64(p.Target.Shares))), p.Current.Shares)
			require.Equal(t, int64(math.Floor(progress*float64(p.Target.FollowersGained))), p.Current.FollowersGained)
		}
		require.GreaterOrEqual(t, st.Level, prevLevel)
		require.GreaterOrEqual(t, st.Followers, prevFollowers)
		require.GreaterOrEqual(t, st.XP, prevXP)
		prevLevel, prevFollowers, prevXP = st.Level, st.Followers, st.XP
	}
	assert.Equal(t, 0, Pending(&st))
}

func TestPartnerFlipsInSameTick(t *testing.T) {
	st := player.NewState()
	st.Followers = 9999
	st.Posts = []player.Post{postWith(player.Metrics{Views: 100, FollowersGained: 100})}

	next, res := Advance(st, now)

	assert.Equal(t, int64(5), res.FollowerDelta)
	assert.Equal(t, int64(10004), next.Followers)
	assert.True(t, next.IsPartner)
	assert.True(t, res.BecamePartner)
}

func TestLevelMovesOneStepPerTick(t *testing.T) {
	st := player.NewState()
	st.Posts = []player.Post{postWith(player.Metrics{Views: 100, Earnings: 10000})}

	next, res := Advance(st, now)

	assert.InDelta(t, 500.0, res.MoneyDelta, 1e-9)
	assert.Equal(t, int64(5000), next.XP)
	assert.Equal(t, 2, next.Level)
	assert.True(t, res.LeveledUp)
	assert.InDelta(t, player.StartingMoney+500.0, next.Money, 1e-9)

	next, _ = Advance(next, now)
	assert.Equal(t, 3, next.Level)
}

func TestLedgerRecordsTickDeltas(t *testing.T) {
	st := player.NewState()
	st.Posts = []player.Post{postWith(player.Metrics{Views: 100, Earnings: 2, FollowersGained: 40})}

	st, _ = Advance(st, now)
	st, _ = Advance(st, now.Add(time.Second))

	require.Len(t, st.DailyStats, 1)
	d := st.DailyStats[0]
	assert.Equal(t, "2026-06-01", d.Date)
	assert.Equal(t, st.Followers, d.FollowersGained)
	assert.InDelta(t, st.Money-player.StartingMoney, d.MoneyGained, 1e-9)

	st, _ = Advance(st, now.Add(24*time.Hour))
	assert.Len(t, st.DailyStats, 2)
}

func TestSettledPostsDoNotContribute(t *testing.T) {
	done := postWith(player.Metrics{Views: 10, Earnings: 1, FollowersGained: 5})
	done.Current = done.Target
	active := postWith(player.Metrics{Views: 100, Earnings: 1, FollowersGained: 20})
	active.ID = "q"

	st := player.NewState()
	st.Posts = []player.Post{done, active}

	next, res := Advance(st, now)
	assert.Equal(t, 1, res.PostsAdvanced)
	assert.Equal(t, int64(1), res.FollowerDelta)
	assert.InDelta(t, 0.05, res.MoneyDelta, 1e-12)
	assert.Equal(t, done, next.Posts[0])
}
