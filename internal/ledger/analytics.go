package ledger

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/talgya/clip-tycoon/internal/player"
)

// FollowerSummary is the follower tab of the analytics screen.
type FollowerSummary struct {
	TotalFollowers  int64              `json:"total_followers"`
	NewLast7Days    int64              `json:"new_last_7_days"`
	GrowthRate      float64            `json:"growth_rate"`
	GrowthRateLabel string             `json:"growth_rate_label"`
	History         []player.DailyStat `json:"history"`
}

// EarningsSummary is the earnings tab of the analytics screen.
type EarningsSummary struct {
	TotalEarnings  float64            `json:"total_earnings"`
	Last30Days     float64            `json:"last_30_days"`
	QualifiedViews int64              `json:"qualified_views"`
	RPM            float64            `json:"rpm"`
	Display        map[string]string  `json:"display"`
	History        []player.DailyStat `json:"history"`
}

// Followers builds the follower summary for a player.
func Followers(st *player.State) FollowerSummary {
	recent, _ := Totals(Window(st.DailyStats, 7))
	rate := SevenDayGrowthRate(st.DailyStats)

	sign := ""
	if rate >= 0 {
		sign = "+"
	}
	return FollowerSummary{
		TotalFollowers:  st.Followers,
		NewLast7Days:    recent,
		GrowthRate:      rate,
		GrowthRateLabel: fmt.Sprintf("%s%.2f%%", sign, rate),
		History:         Window(st.DailyStats, MaxDays),
	}
}

// Earnings builds the earnings summary. Totals count target earnings and
// views of every post, so they include what has not been revealed yet.
func Earnings(st *player.State) EarningsSummary {
	var total float64
	var views int64
	for i := range st.Posts {
		total += st.Posts[i].Target.Earnings
		views += st.Posts[i].Target.Views
	}
	_, last30 := Totals(Window(st.DailyStats, MaxDays))

	rpm := 0.0
	if total > 0 && views > 0 {
		rpm = total / float64(views) * 1000
	}

	return EarningsSummary{
		TotalEarnings:  total,
		Last30Days:     last30,
		QualifiedViews: views,
		RPM:            rpm,
		Display: map[string]string{
			"total_earnings":  "$" + humanize.FormatFloat("#,###.##", total),
			"last_30_days":    "$" + humanize.FormatFloat("#,###.##", last30),
			"qualified_views": fmt.Sprintf("%.1fM", float64(views)/1_000_000),
			"rpm":             "$" + humanize.FormatFloat("#,###.##", rpm),
		},
		History: Window(st.DailyStats, MaxDays),
	}
}
