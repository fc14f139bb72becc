// Package ledger maintains the rolling window of per-day follower and money
// gains and the analytics projections read from it.
package ledger

import (
	"sort"
	"time"

	"github.com/talgya/clip-tycoon/internal/player"
)

// MaxDays is how many distinct days the ledger keeps.
const MaxDays = 30

// DateLayout is the key format of a ledger day.
const DateLayout = "2006-01-02"

// DateKey returns the UTC calendar day of t.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Upsert adds the deltas to the entry for date, inserting a new entry in date
// order when none exists, then trims to the most recent MaxDays entries.
// The input slice is not modified.
func Upsert(l []player.DailyStat, date string, followers int64, money float64) []player.DailyStat {
	out := make([]player.DailyStat, len(l), len(l)+1)
	copy(out, l)

	i := sort.Search(len(out), func(i int) bool { return out[i].Date >= date })
	if i < len(out) && out[i].Date == date {
		out[i].FollowersGained += followers
		out[i].MoneyGained += money
	} else {
		out = append(out, player.DailyStat{})
		copy(out[i+1:], out[i:])
		out[i] = player.DailyStat{Date: date, FollowersGained: followers, MoneyGained: money}
	}

	if len(out) > MaxDays {
		out = out[len(out)-MaxDays:]
	}
	return out
}

// Window returns a copy of the last n entries (or fewer).
func Window(l []player.DailyStat, n int) []player.DailyStat {
	if n <= 0 {
		return []player.DailyStat{}
	}
	start := 0
	if len(l) > n {
		start = len(l) - n
	}
	out := make([]player.DailyStat, len(l)-start)
	copy(out, l[start:])
	return out
}

// Totals sums followers and money over the given entries.
func Totals(l []player.DailyStat) (followers int64, money float64) {
	for _, d := range l {
		followers += d.FollowersGained
		money += d.MoneyGained
	}
	return followers, money
}

// SevenDayGrowthRate compares follower gains of the last seven entries with
// the seven before them, as a percentage. With no prior gains it is 100 when
// anything was gained recently and 0 otherwise.
func SevenDayGrowthRate(l []player.DailyStat) float64 {
	recent, _ := Totals(Window(l, 7))

	end := len(l) - 7
	if end < 0 {
		end = 0
	}
	prev, _ := Totals(Window(l[:end], 7))

	switch {
	case prev > 0:
		return float64(recent-prev) / float64(prev) * 100
	case recent > 0:
		return 100
	default:
		return 0
	}
}
