// Package catalog holds the streamers a player can clip and the sponsorship
// campaigns on offer, plus the drifting live audience of each stream.
package catalog

import (
	"math"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/clip-tycoon/internal/player"
)

// Streamer is a channel the player can clip from.
type Streamer struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	ImgSrc     string `json:"img_src"`
	Popularity int    `json:"popularity"` // 1-10
	MinViewers int64  `json:"min_viewers"`
	MaxViewers int64  `json:"max_viewers"`
}

// Streamers is the fixed roster.
var Streamers = []Streamer{
	{ID: 1, Name: "iShowSpeed", ImgSrc: "https://i.imgur.com/a8Rs1hS.jpg", Popularity: 10, MinViewers: 80000, MaxViewers: 100000},
	{ID: 2, Name: "xQc", ImgSrc: "https://i.imgur.com/4D4bxDu.png", Popularity: 9, MinViewers: 20000, MaxViewers: 50000},
	{ID: 3, Name: "Kai Cenat", ImgSrc: "https://i.imgur.com/EslwjyG.jpg", Popularity: 10, MinViewers: 90000, MaxViewers: 120000},
	{ID: 4, Name: "Pokimane", ImgSrc: "https://i.imgur.com/PihoScn.jpg", Popularity: 8, MinViewers: 10000, MaxViewers: 20000},
}

// Campaigns returns a fresh copy of the campaigns offered to a new account.
func Campaigns() []player.Campaign {
	return []player.Campaign{
		{ID: 1, Name: "Speed Reacts Collab", StreamerID: 1, PayoutPer1000Views: 5, Fee: 100, Description: "Clip Speed's funniest reactions."},
		{ID: 2, Name: "xQc Juicer Moments", StreamerID: 2, PayoutPer1000Views: 6, Fee: 250, Description: `Find the best "juicer" clips from xQc.`},
		{ID: 3, Name: "Kai Cenat Mafia Highlights", StreamerID: 3, PayoutPer1000Views: 7, Fee: 500, Description: "Clip the most intense Mafia game moments."},
		{ID: 4, Name: "Poki's Wholesome Clips", StreamerID: 4, PayoutPer1000Views: 3, Fee: 50, Description: "Share wholesome and funny clips."},
	}
}

// ViralHashtags are suggested when composing a post.
var ViralHashtags = []string{
	"#fyp", "#gaming", "#viral", "#streamer", "#funny", "#fail", "#fortnite", "#minecraft", "#live", "#react",
}

// StreamerByID looks up a streamer.
func StreamerByID(id int) (Streamer, bool) {
	for _, s := range Streamers {
		if s.ID == id {
			return s, true
		}
	}
	return Streamer{}, false
}

// Audience produces live viewer counts that wander smoothly inside each
// streamer's range over wall-clock time.
type Audience struct {
	noise opensimplex.Noise

	// Period is roughly how long one swing of the audience takes.
	Period time.Duration
}

// NewAudience creates an audience model from seed.
func NewAudience(seed int64) *Audience {
	return &Audience{
		noise:  opensimplex.NewNormalized(seed),
		Period: 10 * time.Minute,
	}
}

// Viewers returns the live viewer count for a streamer at t.
func (a *Audience) Viewers(s Streamer, t time.Time) int64 {
	if s.MaxViewers <= s.MinViewers {
		return s.MinViewers
	}
	x := float64(t.UnixNano()) / float64(a.Period)
	n := octaveNoise(a.noise, x, float64(s.ID)*7.3, 3, 1.0, 0.5)
	span := float64(s.MaxViewers - s.MinViewers + 1)
	v := s.MinViewers + int64(math.Floor(n*span))
	if v > s.MaxViewers {
		v = s.MaxViewers
	}
	if v < s.MinViewers {
		v = s.MinViewers
	}
	return v
}

// LiveStreamer is a streamer with its current audience.
type LiveStreamer struct {
	Streamer
	Viewers int64 `json:"viewers"`
}

// Live returns the roster with viewer counts at t.
func (a *Audience) Live(t time.Time) []LiveStreamer {
	out := make([]LiveStreamer, 0, len(Streamers))
	for _, s := range Streamers {
		out = append(out, LiveStreamer{Streamer: s, Viewers: a.Viewers(s, t)})
	}
	return out
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
