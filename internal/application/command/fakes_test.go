package command

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/beatrank/ppcron/internal/domain/scoring"
)

var errWrite = errors.New("write failed")

// ─────────────────────────────────────────────────────────────────────────────
// Batch writer
// ─────────────────────────────────────────────────────────────────────────────

type writeCall struct {
	Table   string
	Columns []string
	Rows    []scoring.RowUpdate
}

type recordingWriter struct {
	mu sync.Mutex
	// failures left per table; "*" applies to any table.
	failures map[string]int
	calls    []writeCall
	written  []writeCall
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{failures: make(map[string]int)}
}

func (w *recordingWriter) failNext(table string, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[table] = n
}

func (w *recordingWriter) UpdateColumns(ctx context.Context, table string, columns []string, rows []scoring.RowUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	call := writeCall{Table: table, Columns: columns, Rows: rows}
	w.calls = append(w.calls, call)
	for _, key := range []string{table, "*"} {
		if w.failures[key] > 0 {
			w.failures[key]--
			return errWrite
		}
	}
	w.written = append(w.written, call)
	return nil
}

// values returns the last written value of a column per key.
func (w *recordingWriter) values(table, column string) map[any]any {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[any]any)
	for _, call := range w.written {
		if call.Table != table {
			continue
		}
		for _, row := range call.Rows {
			if v, ok := row.Values[column]; ok {
				out[row.Key] = v
			}
		}
	}
	return out
}

func (w *recordingWriter) writtenTo(table string) []writeCall {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []writeCall
	for _, call := range w.written {
		if call.Table == table {
			out = append(out, call)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Leaderboards
// ─────────────────────────────────────────────────────────────────────────────

type fakeLeaderboards struct {
	items []*scoring.Leaderboard
	err   error
}

func (f *fakeLeaderboards) List(ctx context.Context, filter scoring.LeaderboardFilter) ([]*scoring.Leaderboard, error) {
	if f.err != nil {
		return nil, f.err
	}
	sorted := append([]*scoring.Leaderboard(nil), f.items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []*scoring.Leaderboard
	for _, lb := range sorted {
		if filter.ID != "" && lb.ID != filter.ID {
			continue
		}
		if filter.AfterID != "" && lb.ID <= filter.AfterID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, lb.Status) {
			continue
		}
		copied := *lb
		out = append(out, &copied)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func containsStatus(list []scoring.DifficultyStatus, s scoring.DifficultyStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Scores
// ─────────────────────────────────────────────────────────────────────────────

type fakeScores struct {
	byLeaderboard map[string][]*scoring.Score
	candidates    map[scoring.Context]map[string][]*scoring.RankCandidate
	weighted      map[scoring.Context][]*scoring.WeightedScore
	stats         map[string][]scoring.StatScore

	failLeaderboards map[string]bool
	failCandidates   bool
}

func newFakeScores() *fakeScores {
	return &fakeScores{
		byLeaderboard:    make(map[string][]*scoring.Score),
		candidates:       make(map[scoring.Context]map[string][]*scoring.RankCandidate),
		weighted:         make(map[scoring.Context][]*scoring.WeightedScore),
		stats:            make(map[string][]scoring.StatScore),
		failLeaderboards: make(map[string]bool),
	}
}

// ListForRefresh returns copies so every run starts from stored values.
func (f *fakeScores) ListForRefresh(ctx context.Context, leaderboardID string) ([]*scoring.Score, error) {
	if f.failLeaderboards[leaderboardID] {
		return nil, errors.New("read failed")
	}
	var out []*scoring.Score
	for _, s := range f.byLeaderboard[leaderboardID] {
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeScores) ListRankCandidates(ctx context.Context, c scoring.Context, ids []string) (map[string][]*scoring.RankCandidate, error) {
	if f.failCandidates {
		return nil, errors.New("read failed")
	}
	out := make(map[string][]*scoring.RankCandidate)
	for _, id := range ids {
		for _, cand := range f.candidates[c][id] {
			copied := *cand
			out[id] = append(out[id], &copied)
		}
	}
	return out, nil
}

func (f *fakeScores) ListWeighted(ctx context.Context, c scoring.Context, playerIDs []string) ([]*scoring.WeightedScore, error) {
	var out []*scoring.WeightedScore
	for _, s := range f.weighted[c] {
		if len(playerIDs) > 0 && !containsString(playerIDs, s.PlayerID) {
			continue
		}
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeScores) ListForStats(ctx context.Context, c scoring.Context, playerID string) ([]scoring.StatScore, error) {
	return f.stats[playerID], nil
}

func (f *fakeScores) ListForStatsBatch(ctx context.Context, c scoring.Context, playerIDs []string) (map[string][]scoring.StatScore, error) {
	out := make(map[string][]scoring.StatScore)
	for _, id := range playerIDs {
		out[id] = f.stats[id]
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Players
// ─────────────────────────────────────────────────────────────────────────────

type fakePlayers struct {
	mu sync.Mutex

	extIDs   map[scoring.Context]map[string]any
	rankable map[scoring.Context][]*scoring.RankablePlayer
	totals   []*scoring.PlayerPpTotals
	ids      []string
	states   map[string]scoring.StatsState

	saveFailures int
	saved        []*scoring.PlayerScoreStats
}

func newFakePlayers() *fakePlayers {
	return &fakePlayers{
		extIDs:   make(map[scoring.Context]map[string]any),
		rankable: make(map[scoring.Context][]*scoring.RankablePlayer),
		states:   make(map[string]scoring.StatsState),
	}
}

func (f *fakePlayers) ContextExtensionIDs(ctx context.Context, c scoring.Context, playerIDs []string) (map[string]any, error) {
	out := make(map[string]any)
	for id, key := range f.extIDs[c] {
		if len(playerIDs) == 0 || containsString(playerIDs, id) {
			out[id] = key
		}
	}
	return out, nil
}

func (f *fakePlayers) ListRankable(ctx context.Context, c scoring.Context) ([]*scoring.RankablePlayer, error) {
	var out []*scoring.RankablePlayer
	for _, p := range f.rankable[c] {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakePlayers) ListPpTotals(ctx context.Context) ([]*scoring.PlayerPpTotals, error) {
	return f.totals, nil
}

func (f *fakePlayers) ListIDs(ctx context.Context, c scoring.Context, afterID string, limit int) ([]string, error) {
	sorted := append([]string(nil), f.ids...)
	sort.Strings(sorted)
	var out []string
	for _, id := range sorted {
		if id <= afterID {
			continue
		}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePlayers) StatsStates(ctx context.Context, c scoring.Context, playerIDs []string) (map[string]scoring.StatsState, error) {
	out := make(map[string]scoring.StatsState)
	for _, id := range playerIDs {
		if s, ok := f.states[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakePlayers) SaveStats(ctx context.Context, stats []*scoring.PlayerScoreStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveFailures > 0 {
		f.saveFailures--
		return errWrite
	}
	f.saved = append(f.saved, stats...)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Publisher & metrics
// ─────────────────────────────────────────────────────────────────────────────

type fakePublisher struct {
	published map[scoring.Context][]*scoring.RankablePlayer
	err       error
}

func (f *fakePublisher) PublishRanking(ctx context.Context, c scoring.Context, players []*scoring.RankablePlayer) error {
	if f.err != nil {
		return f.err
	}
	if f.published == nil {
		f.published = make(map[scoring.Context][]*scoring.RankablePlayer)
	}
	f.published[c] = players
	return nil
}

type countingMetrics struct {
	noopMetrics
	mu        sync.Mutex
	overflows int
	nans      int
	dropped   map[string]int
}

func (m *countingMetrics) AccuracyOverflow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overflows++
}

func (m *countingMetrics) OracleNaN() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nans++
}

func (m *countingMetrics) BatchDropped(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped == nil {
		m.dropped = make(map[string]int)
	}
	m.dropped[table]++
}

// linearOracle pays 100 PP per unit of accuracy.
var linearOracle = scoring.RatingOracleFunc(func(in scoring.PpInput) scoring.PpBreakdown {
	return scoring.PpBreakdown{Pp: in.Accuracy * 100, AccPP: in.Accuracy * 50}
})
