// Simulation owns the player state and serializes every change to it.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/clip-tycoon/internal/entropy"
	"github.com/talgya/clip-tycoon/internal/ledger"
	"github.com/talgya/clip-tycoon/internal/player"
	"github.com/talgya/clip-tycoon/internal/reveal"
)

// Errors returned by player actions.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyJoined     = errors.New("campaign already joined")
	ErrUnknownCampaign   = errors.New("unknown campaign")
	ErrUnknownStreamer   = errors.New("unknown streamer")
	ErrUnknownClip       = errors.New("unknown clip")
	ErrCooldownActive    = errors.New("clipping on cooldown")
	ErrClipMissed        = errors.New("clip missed")
	ErrUnfinishedEdit    = errors.New("edit needs at least two completed tasks")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrAccountExists     = errors.New("account already created")
	ErrNoAccount         = errors.New("create an account before posting")
)

const maxEvents = 1000

// Event is a notable occurrence in the game.
type Event struct {
	Tick        uint64 `json:"tick" db:"tick"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category" db:"category"` // "post", "level", "partner", "campaign", "bonus", "random"
}

// Simulation holds the complete player state. All reads return copies and all
// writes happen under one lock, so a tick and a new post never interleave.
type Simulation struct {
	mu    sync.Mutex
	state player.State
	src   entropy.Source
	clock Clock

	lastTick     uint64
	cooldown     int    // ticks until clipping is allowed again
	eventExpires uint64 // tick at which the random event message clears
	day          string // ledger day of the last report
	events       []Event
}

// NewSimulation wraps a restored or fresh state.
func NewSimulation(st player.State, src entropy.Source, clock Clock) *Simulation {
	if clock == nil {
		clock = RealClock{}
	}
	st.Normalize()
	return &Simulation{
		state: st.Clone(),
		src:   src,
		clock: clock,
		day:   ledger.DateKey(clock.Now()),
	}
}

// Snapshot returns a copy of the current state.
func (s *Simulation) Snapshot() player.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Checkpoint returns the state, event log and tick under one lock, so a save
// never mixes two different ticks.
func (s *Simulation) Checkpoint() (player.State, []Event, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), append([]Event(nil), s.events...), s.lastTick
}

// Status is a read of the state and the tick counters taken under one lock.
type Status struct {
	State    player.State
	Tick     uint64
	Cooldown int
}

// Status returns the state together with the tick and clip cooldown it
// belongs to.
func (s *Simulation) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state.Clone(), Tick: s.lastTick, Cooldown: s.cooldown}
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// SetLastTick restores the tick counter after a load.
func (s *Simulation) SetLastTick(t uint64) {
	s.mu.Lock()
	s.lastTick = t
	s.mu.Unlock()
}

// Cooldown returns the ticks left before the next clip attempt.
func (s *Simulation) Cooldown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldown
}

// Events returns up to limit of the most recent events.
func (s *Simulation) Events(limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// RestoreEvents seeds the event log from storage.
func (s *Simulation) RestoreEvents(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append([]Event(nil), events...)
	s.trimEvents()
}

// TickSecond runs every tick: reveal post metrics, count down the clip
// cooldown and expire the random event banner.
func (s *Simulation) TickSecond(tick uint64) reveal.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTick = tick
	now := s.clock.Now()

	if s.cooldown > 0 {
		s.cooldown--
	}
	if s.state.RandomEvent.Active && tick >= s.eventExpires {
		s.state.RandomEvent = player.RandomEvent{}
	}

	next, res := reveal.Advance(s.state, now)
	if !res.Changed {
		s.reportDay()
		return res
	}
	s.state = next

	if res.LeveledUp {
		slog.Info("level up", "level", next.Level, "xp", humanize.Comma(next.XP))
		s.record(tick, "level", fmt.Sprintf("Reached level %d", next.Level))
	}
	if res.BecamePartner {
		slog.Info("partner status unlocked", "followers", humanize.Comma(next.Followers))
		s.record(tick, "partner", "You are now a partner! Payouts and reach increased.")
	}

	s.reportDay()
	return res
}

// reportDay logs a summary of the previous day when the calendar rolls over.
func (s *Simulation) reportDay() {
	today := ledger.DateKey(s.clock.Now())
	if today == s.day {
		return
	}
	prev := s.day
	s.day = today

	for _, d := range s.state.DailyStats {
		if d.Date != prev {
			continue
		}
		slog.Info("daily report",
			"date", d.Date,
			"followers_gained", humanize.Comma(d.FollowersGained),
			"money_gained", humanize.FormatFloat("#,###.##", d.MoneyGained),
			"followers", humanize.Comma(s.state.Followers),
			"money", humanize.FormatFloat("#,###.##", s.state.Money),
			"level", s.state.Level,
			"posts", len(s.state.Posts),
		)
	}
}

func (s *Simulation) record(tick uint64, category, desc string) {
	s.events = append(s.events, Event{Tick: tick, Description: desc, Category: category})
	s.trimEvents()
}

func (s *Simulation) trimEvents() {
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}
