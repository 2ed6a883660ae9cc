package leaderboard

import (
	"context"
	"fmt"
	"time"
)

// previousTopSize is how many of the previous period's leaders a board shows
const previousTopSize = 3

// BoardView is one window and bucket's ranking, as seen by an athlete
type BoardView struct {
	Window            Window     `json:"window"`
	WindowKey         string     `json:"window_key"`
	PreviousWindowKey string     `json:"previous_window_key"`
	Bucket            string     `json:"bucket"`
	Standings         []Standing `json:"standings"`
	Me                *Standing  `json:"me,omitempty"`
	TotalAthletes     int        `json:"total_athletes"`
	PreviousTop       []Standing `json:"previous_top"`
}

// BoardRequest selects a board
type BoardRequest struct {
	Window    Window
	Bucket    string
	AthleteID int64 // 0 omits Me
	Limit     int
	Offset    int
}

// Boards answers ranking requests for one metric
type Boards struct {
	store  StandingsStore
	metric string
}

// NewBoards creates a ranking reader for metric, defaulting to distance
func NewBoards(store StandingsStore, metric string) *Boards {
	if metric == "" {
		metric = MetricDistance
	}
	return &Boards{store: store, metric: metric}
}

// Board returns the current window's standings relative to now
func (b *Boards) Board(ctx context.Context, req BoardRequest, now time.Time) (*BoardView, error) {
	if !ValidBucket(req.Bucket) {
		return nil, fmt.Errorf("unknown bucket %q", req.Bucket)
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	key := CurrentWindowKey(req.Window, now)
	previousKey, err := PreviousWindowKey(req.Window, key)
	if err != nil {
		return nil, err
	}

	q := Query{WindowKey: key, Metric: b.metric, Bucket: req.Bucket}
	view := &BoardView{
		Window:            req.Window,
		WindowKey:         key,
		PreviousWindowKey: previousKey,
		Bucket:            req.Bucket,
	}

	if view.Standings, err = b.store.TopStandings(ctx, q, req.Limit, req.Offset); err != nil {
		return nil, fmt.Errorf("failed to read standings: %w", err)
	}

	if view.TotalAthletes, err = b.store.CountAthletes(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to count athletes: %w", err)
	}

	if req.AthleteID != 0 {
		if view.Me, err = b.store.AthleteRank(ctx, q, req.AthleteID); err != nil {
			return nil, fmt.Errorf("failed to read rank for athlete %d: %w", req.AthleteID, err)
		}
	}

	previous := Query{WindowKey: previousKey, Metric: b.metric, Bucket: req.Bucket}
	if view.PreviousTop, err = b.store.TopStandings(ctx, previous, previousTopSize, 0); err != nil {
		return nil, fmt.Errorf("failed to read previous standings: %w", err)
	}

	return view, nil
}
