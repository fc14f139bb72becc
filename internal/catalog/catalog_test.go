package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignsAreFreshCopies(t *testing.T) {
	a := Campaigns()
	a[0].Active = true
	assert.False(t, Campaigns()[0].Active)
	assert.Len(t, a, 4)
}

func TestCampaignStreamersExist(t *testing.T) {
	for _, c := range Campaigns() {
		_, ok := StreamerByID(c.StreamerID)
		assert.True(t, ok, "campaign %d", c.ID)
	}
	_, ok := StreamerByID(99)
	assert.False(t, ok)
}

func TestViewersStayInRange(t *testing.T) {
	a := NewAudience(42)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		ts := start.Add(time.Duration(i) * 37 * time.Second)
		for _, s := range Streamers {
			v := a.Viewers(s, ts)
			require.GreaterOrEqual(t, v, s.MinViewers)
			require.LessOrEqual(t, v, s.MaxViewers)
		}
	}
}

func TestViewersAreDeterministic(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	assert.Equal(t, NewAudience(7).Live(ts), NewAudience(7).Live(ts))
}

func TestViewersDriftSmoothly(t *testing.T) {
	a := NewAudience(1)
	s := Streamers[1]
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := a.Viewers(s, ts)
	span := s.MaxViewers - s.MinViewers
	for i := 1; i < 60; i++ {
		v := a.Viewers(s, ts.Add(time.Duration(i)*time.Second))
		diff := v - prev
		if diff < 0 {
			diff = -diff
		}
		require.Less(t, diff, span/4)
		prev = v
	}
}
