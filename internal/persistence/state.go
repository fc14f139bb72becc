package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/clip-tycoon/internal/engine"
	"github.com/talgya/clip-tycoon/internal/player"
)

const (
	metaMoney       = "money"
	metaFollowers   = "followers"
	metaXP          = "xp"
	metaLevel       = "level"
	metaPartner     = "is_partner"
	metaUsername    = "username"
	metaAvatar      = "avatar"
	metaLastLogin   = "last_login"
	metaRandomEvent = "random_event"
	metaLastTick    = "last_tick"
)

type postRow struct {
	Seq          int64   `db:"seq"`
	ID           string  `db:"id"`
	StreamerID   int64   `db:"streamer_id"`
	StreamerName string  `db:"streamer_name"`
	Title        string  `db:"title"`
	HashtagsJSON string  `db:"hashtags_json"`
	Quality      float64 `db:"quality"`
	CreatedAt    string  `db:"created_at"`

	TargetViews     int64   `db:"target_views"`
	TargetLikes     int64   `db:"target_likes"`
	TargetComments  int64   `db:"target_comments"`
	TargetShares    int64   `db:"target_shares"`
	TargetEarnings  float64 `db:"target_earnings"`
	TargetFollowers int64   `db:"target_followers"`

	CurrentViews     int64   `db:"current_views"`
	CurrentLikes     int64   `db:"current_likes"`
	CurrentComments  int64   `db:"current_comments"`
	CurrentShares    int64   `db:"current_shares"`
	CurrentEarnings  float64 `db:"current_earnings"`
	CurrentFollowers int64   `db:"current_followers"`
}

type clipRow struct {
	ID           string  `db:"id"`
	Kind         string  `db:"kind"`
	Seq          int64   `db:"seq"`
	StreamerID   int64   `db:"streamer_id"`
	StreamerName string  `db:"streamer_name"`
	CapturedAt   string  `db:"captured_at"`
	Quality      float64 `db:"quality"`
}

type campaignRow struct {
	Kind          string  `db:"kind"`
	ID            int64   `db:"id"`
	Seq           int64   `db:"seq"`
	Name          string  `db:"name"`
	StreamerID    int64   `db:"streamer_id"`
	PayoutPer1000 float64 `db:"payout_per_1000"`
	Fee           float64 `db:"fee"`
	Description   string  `db:"description"`
	Active        int     `db:"active"`
}

type dailyRow struct {
	Date            string  `db:"date"`
	FollowersGained int64   `db:"followers_gained"`
	MoneyGained     float64 `db:"money_gained"`
}

// SaveState performs a full save of the player record, the event log and the
// tick counter in one transaction.
func (db *DB) SaveState(st player.State, events []engine.Event, tick uint64) error {
	slog.Info("saving player state", "posts", len(st.Posts), "daily_stats", len(st.DailyStats), "tick", tick)

	tx, err := db.conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := db.saveMeta(tx, st, tick); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.savePosts(tx, st.Posts); err != nil {
		return fmt.Errorf("save posts: %w", err)
	}
	if err := db.saveClips(tx, st.RawClips, st.EditedClips); err != nil {
		return fmt.Errorf("save clips: %w", err)
	}
	if err := db.saveCampaigns(tx, st.AvailableCampaigns, st.ActiveCampaigns); err != nil {
		return fmt.Errorf("save campaigns: %w", err)
	}
	if err := db.saveDailyStats(tx, st.DailyStats); err != nil {
		return fmt.Errorf("save daily stats: %w", err)
	}
	if err := db.saveEvents(tx, events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Info("player state saved")
	return nil
}

func (db *DB) saveMeta(tx *sqlx.Tx, st player.State, tick uint64) error {
	eventJSON, err := json.Marshal(st.RandomEvent)
	if err != nil {
		return err
	}
	partner := "0"
	if st.IsPartner {
		partner = "1"
	}

	values := [][2]string{
		{metaMoney, strconv.FormatFloat(st.Money, 'g', -1, 64)},
		{metaFollowers, strconv.FormatInt(st.Followers, 10)},
		{metaXP, strconv.FormatInt(st.XP, 10)},
		{metaLevel, strconv.Itoa(st.Level)},
		{metaPartner, partner},
		{metaUsername, st.Username},
		{metaAvatar, st.Avatar},
		{metaLastLogin, st.LastLogin},
		{metaRandomEvent, string(eventJSON)},
		{metaLastTick, strconv.FormatUint(tick, 10)},
	}
	q := tx.Rebind(upsertMeta)
	for _, kv := range values {
		if _, err := tx.Exec(q, kv[0], kv[1]); err != nil {
			return fmt.Errorf("meta %s: %w", kv[0], err)
		}
	}
	return nil
}

func (db *DB) savePosts(tx *sqlx.Tx, posts []player.Post) error {
	if _, err := tx.Exec("DELETE FROM posts"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO posts
		(seq, id, streamer_id, streamer_name, title, hashtags_json, quality, created_at,
		 target_views, target_likes, target_comments, target_shares, target_earnings, target_followers,
		 current_views, current_likes, current_comments, current_shares, current_earnings, current_followers)
		VALUES (:seq, :id, :streamer_id, :streamer_name, :title, :hashtags_json, :quality, :created_at,
		 :target_views, :target_likes, :target_comments, :target_shares, :target_earnings, :target_followers,
		 :current_views, :current_likes, :current_comments, :current_shares, :current_earnings, :current_followers)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range posts {
		tags, _ := json.Marshal(p.Hashtags)
		row := postRow{
			Seq:          int64(i),
			ID:           p.ID,
			StreamerID:   int64(p.StreamerID),
			StreamerName: p.StreamerName,
			Title:        p.Title,
			HashtagsJSON: string(tags),
			Quality:      p.Quality,
			CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339Nano),

			TargetViews:     p.Target.Views,
			TargetLikes:     p.Target.Likes,
			TargetComments:  p.Target.Comments,
			TargetShares:    p.Target.Shares,
			TargetEarnings:  p.Target.Earnings,
			TargetFollowers: p.Target.FollowersGained,

			CurrentViews:     p.Current.Views,
			CurrentLikes:     p.Current.Likes,
			CurrentComments:  p.Current.Comments,
			CurrentShares:    p.Current.Shares,
			CurrentEarnings:  p.Current.Earnings,
			CurrentFollowers: p.Current.FollowersGained,
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert post %s: %w", p.ID, err)
		}
	}
	return nil
}

func (db *DB) saveClips(tx *sqlx.Tx, raw, edited []player.Clip) error {
	if _, err := tx.Exec("DELETE FROM clips"); err != nil {
		return err
	}
	q := tx.Rebind(`INSERT INTO clips (id, kind, seq, streamer_id, streamer_name, captured_at, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for kind, clips := range map[string][]player.Clip{"raw": raw, "edited": edited} {
		for i, c := range clips {
			_, err := tx.Exec(q, c.ID, kind, i, c.StreamerID, c.StreamerName,
				c.CapturedAt.UTC().Format(time.RFC3339Nano), c.Quality)
			if err != nil {
				return fmt.Errorf("insert clip %s: %w", c.ID, err)
			}
		}
	}
	return nil
}

func (db *DB) saveCampaigns(tx *sqlx.Tx, available, active []player.Campaign) error {
	if _, err := tx.Exec("DELETE FROM campaigns"); err != nil {
		return err
	}
	q := tx.Rebind(`INSERT INTO campaigns
		(kind, id, seq, name, streamer_id, payout_per_1000, fee, description, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for kind, list := range map[string][]player.Campaign{"available": available, "active": active} {
		for i, c := range list {
			on := 0
			if c.Active {
				on = 1
			}
			_, err := tx.Exec(q, kind, c.ID, i, c.Name, c.StreamerID, c.PayoutPer1000Views, c.Fee, c.Description, on)
			if err != nil {
				return fmt.Errorf("insert campaign %d: %w", c.ID, err)
			}
		}
	}
	return nil
}

func (db *DB) saveDailyStats(tx *sqlx.Tx, stats []player.DailyStat) error {
	if _, err := tx.Exec("DELETE FROM daily_stats"); err != nil {
		return err
	}
	q := tx.Rebind("INSERT INTO daily_stats (date, followers_gained, money_gained) VALUES (?, ?, ?)")
	for _, d := range stats {
		if _, err := tx.Exec(q, d.Date, d.FollowersGained, d.MoneyGained); err != nil {
			return fmt.Errorf("insert daily stat %s: %w", d.Date, err)
		}
	}
	return nil
}

func (db *DB) saveEvents(tx *sqlx.Tx, events []engine.Event) error {
	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		return err
	}
	q := tx.Rebind("INSERT INTO events (tick, description, category) VALUES (?, ?, ?)")
	for _, e := range events {
		if _, err := tx.Exec(q, int64(e.Tick), e.Description, e.Category); err != nil {
			return err
		}
	}
	return nil
}

// SaveSimulation saves a consistent checkpoint of a running simulation.
func (db *DB) SaveSimulation(sim *engine.Simulation) error {
	st, events, tick := sim.Checkpoint()
	return db.SaveState(st, events, tick)
}

// LoadState reads the saved player record and tick counter.
func (db *DB) LoadState() (player.State, uint64, error) {
	var st player.State

	meta := make(map[string]string)
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := db.conn.Select(&rows, "SELECT key, value FROM player_meta"); err != nil {
		return st, 0, fmt.Errorf("load meta: %w", err)
	}
	for _, r := range rows {
		meta[r.Key] = r.Value
	}

	var err error
	if st.Money, err = strconv.ParseFloat(meta[metaMoney], 64); err != nil {
		return st, 0, fmt.Errorf("%w: parse money: %v", ErrCorruptState, err)
	}
	if st.Followers, err = strconv.ParseInt(meta[metaFollowers], 10, 64); err != nil {
		return st, 0, fmt.Errorf("%w: parse followers: %v", ErrCorruptState, err)
	}
	if st.XP, err = strconv.ParseInt(meta[metaXP], 10, 64); err != nil {
		return st, 0, fmt.Errorf("%w: parse xp: %v", ErrCorruptState, err)
	}
	if st.Level, err = strconv.Atoi(meta[metaLevel]); err != nil {
		return st, 0, fmt.Errorf("%w: parse level: %v", ErrCorruptState, err)
	}
	st.IsPartner = meta[metaPartner] == "1"
	st.Username = meta[metaUsername]
	st.Avatar = meta[metaAvatar]
	st.LastLogin = meta[metaLastLogin]
	if raw := meta[metaRandomEvent]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &st.RandomEvent); err != nil {
			return st, 0, fmt.Errorf("%w: parse random event: %v", ErrCorruptState, err)
		}
	}

	var tick uint64
	if raw := meta[metaLastTick]; raw != "" {
		if tick, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return st, 0, fmt.Errorf("%w: parse last tick: %v", ErrCorruptState, err)
		}
	}

	if st.Posts, err = db.loadPosts(); err != nil {
		return st, 0, fmt.Errorf("load posts: %w", err)
	}
	if st.RawClips, st.EditedClips, err = db.loadClips(); err != nil {
		return st, 0, fmt.Errorf("load clips: %w", err)
	}
	if st.AvailableCampaigns, st.ActiveCampaigns, err = db.loadCampaigns(); err != nil {
		return st, 0, fmt.Errorf("load campaigns: %w", err)
	}
	if st.DailyStats, err = db.loadDailyStats(); err != nil {
		return st, 0, fmt.Errorf("load daily stats: %w", err)
	}

	return st, tick, nil
}

func (db *DB) loadPosts() ([]player.Post, error) {
	var rows []postRow
	if err := db.conn.Select(&rows, "SELECT * FROM posts ORDER BY seq"); err != nil {
		return nil, err
	}
	posts := make([]player.Post, 0, len(rows))
	for _, r := range rows {
		created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: post %s created_at: %v", ErrCorruptState, r.ID, err)
		}
		var tags []string
		if err := json.Unmarshal([]byte(r.HashtagsJSON), &tags); err != nil {
			return nil, fmt.Errorf("%w: post %s hashtags: %v", ErrCorruptState, r.ID, err)
		}
		posts = append(posts, player.Post{
			ID:           r.ID,
			StreamerID:   int(r.StreamerID),
			StreamerName: r.StreamerName,
			Title:        r.Title,
			Hashtags:     tags,
			Quality:      r.Quality,
			CreatedAt:    created,
			Target: player.Metrics{
				Views:           r.TargetViews,
				Likes:           r.TargetLikes,
				Comments:        r.TargetComments,
				Shares:          r.TargetShares,
				Earnings:        r.TargetEarnings,
				FollowersGained: r.TargetFollowers,
			},
			Current: player.Metrics{
				Views:           r.CurrentViews,
				Likes:           r.CurrentLikes,
				Comments:        r.CurrentComments,
				Shares:          r.CurrentShares,
				Earnings:        r.CurrentEarnings,
				FollowersGained: r.CurrentFollowers,
			},
		})
	}
	return posts, nil
}

func (db *DB) loadClips() (raw, edited []player.Clip, err error) {
	var rows []clipRow
	if err := db.conn.Select(&rows, "SELECT * FROM clips ORDER BY kind, seq"); err != nil {
		return nil, nil, err
	}
	for _, r := range rows {
		captured, err := time.Parse(time.RFC3339Nano, r.CapturedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: clip %s captured_at: %v", ErrCorruptState, r.ID, err)
		}
		c := player.Clip{
			ID:           r.ID,
			StreamerID:   int(r.StreamerID),
			StreamerName: r.StreamerName,
			CapturedAt:   captured,
			Quality:      r.Quality,
		}
		switch r.Kind {
		case "raw":
			raw = append(raw, c)
		case "edited":
			edited = append(edited, c)
		default:
			return nil, nil, fmt.Errorf("%w: clip %s has unknown kind %q", ErrCorruptState, r.ID, r.Kind)
		}
	}
	return raw, edited, nil
}

func (db *DB) loadCampaigns() (available, active []player.Campaign, err error) {
	var rows []campaignRow
	if err := db.conn.Select(&rows, "SELECT * FROM campaigns ORDER BY kind, seq"); err != nil {
		return nil, nil, err
	}
	for _, r := range rows {
		c := player.Campaign{
			ID:                 int(r.ID),
			Name:               r.Name,
			StreamerID:         int(r.StreamerID),
			PayoutPer1000Views: r.PayoutPer1000,
			Fee:                r.Fee,
			Description:        r.Description,
			Active:             r.Active == 1,
		}
		switch r.Kind {
		case "available":
			available = append(available, c)
		case "active":
			active = append(active, c)
		default:
			return nil, nil, fmt.Errorf("%w: campaign %d has unknown kind %q", ErrCorruptState, r.ID, r.Kind)
		}
	}
	return available, active, nil
}

func (db *DB) loadDailyStats() ([]player.DailyStat, error) {
	var rows []dailyRow
	if err := db.conn.Select(&rows, "SELECT date, followers_gained, money_gained FROM daily_stats ORDER BY date"); err != nil {
		return nil, err
	}
	var out []player.DailyStat
	for _, r := range rows {
		out = append(out, player.DailyStat{Date: r.Date, FollowersGained: r.FollowersGained, MoneyGained: r.MoneyGained})
	}
	return out, nil
}

// RecentEvents returns the most recent N events in chronological order.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		db.conn.Rebind("SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?"),
		limit,
	)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// ErrCorruptState marks a saved record that was read but cannot be decoded.
var ErrCorruptState = errors.New("corrupt saved state")

// LoadOrNew restores the saved record. A missing, corrupt or invalid record
// is replaced wholesale by fresh(); restored reports which happened. Database
// failures are returned so a saved record is never overwritten by mistake.
func (db *DB) LoadOrNew(fresh func() player.State) (st player.State, tick uint64, restored bool, err error) {
	has, err := db.HasState()
	if err != nil {
		return st, 0, false, err
	}
	if !has {
		return fresh(), 0, false, nil
	}

	st, tick, err = db.LoadState()
	if errors.Is(err, ErrCorruptState) {
		slog.Warn("saved state unreadable, starting fresh", "error", err)
		return fresh(), 0, false, nil
	}
	if err != nil {
		return st, 0, false, err
	}
	if err := st.Validate(); err != nil {
		slog.Warn("saved state invalid, starting fresh", "error", err)
		return fresh(), 0, false, nil
	}
	st.Normalize()
	return st, tick, true, nil
}
