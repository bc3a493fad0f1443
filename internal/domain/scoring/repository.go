package scoring

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// BATCH WRITER
// ══════════════════════════════════════════════════════════════════════════════

// Table names accepted by the batch writer.
const (
	TableScores                  = "scores"
	TableScoreContextExtensions  = "score_context_extensions"
	TableLeaderboards            = "leaderboards"
	TablePlayers                 = "players"
	TablePlayerContextExtensions = "player_context_extensions"
)

// Column names shared by the tables above.
const (
	ColRank          = "rank"
	ColCountryRank   = "country_rank"
	ColWeight        = "weight"
	ColModifiedScore = "modified_score"
	ColAccuracy      = "accuracy"
	ColPp            = "pp"
	ColFcPp          = "fc_pp"
	ColBonusPp       = "bonus_pp"
	ColPassPP        = "pass_pp"
	ColAccPP         = "acc_pp"
	ColTechPP        = "tech_pp"
	ColQualification = "qualification"
	ColPriority      = "priority"
	ColPlays         = "plays"
	ColAllContextsPp = "all_contexts_pp"
)

// NormalizedScoreColumns are written by the score normalizer.
var NormalizedScoreColumns = []string{
	ColRank, ColModifiedScore, ColAccuracy, ColPp, ColFcPp, ColBonusPp,
	ColPassPP, ColAccPP, ColTechPP, ColQualification, ColPriority,
}

// PlayerPpColumns are written by the weighted PP aggregator.
var PlayerPpColumns = []string{ColPp, ColAccPP, ColTechPP, ColPassPP}

// RowUpdate is one keyed row of a partial update.
// Key is an int64 or a string depending on the table's primary key.
type RowUpdate struct {
	Key    any
	Values map[string]any
}

// BatchWriter updates only the named columns of existing rows, by primary key.
// It may fail as a whole; callers retry once and then drop the batch.
type BatchWriter interface {
	UpdateColumns(ctx context.Context, table string, columns []string, rows []RowUpdate) error
}

// ContextTables names where a context stores its score and player rows.
type ContextTables struct {
	Scores  string
	Players string
}

// TablesFor returns the target tables of a context.
func TablesFor(c Context) ContextTables {
	if c.IsGeneral() {
		return ContextTables{Scores: TableScores, Players: TablePlayers}
	}
	return ContextTables{Scores: TableScoreContextExtensions, Players: TablePlayerContextExtensions}
}

// ══════════════════════════════════════════════════════════════════════════════
// READERS
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardFilter selects leaderboards for a recompute pass.
type LeaderboardFilter struct {
	// ID restricts the pass to one leaderboard when set.
	ID string
	// Statuses restricts by status when non-empty.
	Statuses []DifficultyStatus
	// AfterID and Limit page through leaderboards ordered by id.
	AfterID string
	Limit   int
}

// LeaderboardRepository reads leaderboards.
type LeaderboardRepository interface {
	// List returns leaderboards matching the filter, ordered by id.
	List(ctx context.Context, filter LeaderboardFilter) ([]*Leaderboard, error)
}

// ScoreRepository reads scores and their context projections.
type ScoreRepository interface {
	// ListForRefresh returns the non-banned, non-bot scores of a leaderboard
	// that are valid in the General context.
	ListForRefresh(ctx context.Context, leaderboardID string) ([]*Score, error)

	// ListRankCandidates returns the rankable rows of the given leaderboards in
	// one context, grouped by leaderboard id.
	ListRankCandidates(ctx context.Context, c Context, leaderboardIDs []string) (map[string][]*RankCandidate, error)

	// ListWeighted returns the rows eligible for the weighted PP aggregate.
	// An empty playerIDs means every player.
	ListWeighted(ctx context.Context, c Context, playerIDs []string) ([]*WeightedScore, error)

	// ListForStats returns a player's non-ignored scores in a context.
	ListForStats(ctx context.Context, c Context, playerID string) ([]StatScore, error)

	// ListForStatsBatch is ListForStats for many players at once.
	ListForStatsBatch(ctx context.Context, c Context, playerIDs []string) (map[string][]StatScore, error)
}

// PlayerRepository reads players and persists wholly recomputed stats.
type PlayerRepository interface {
	// ContextExtensionIDs maps player id to the context extension row id.
	// For General every player maps to itself.
	ContextExtensionIDs(ctx context.Context, c Context, playerIDs []string) (map[string]any, error)

	// ListRankable returns non-banned players (or extensions) with PP > 0.
	ListRankable(ctx context.Context, c Context) ([]*RankablePlayer, error)

	// ListPpTotals returns every player's General PP and per-context PP.
	ListPpTotals(ctx context.Context) ([]*PlayerPpTotals, error)

	// ListIDs pages through player ids ordered by id.
	ListIDs(ctx context.Context, c Context, afterID string, limit int) ([]string, error)

	// StatsStates returns the current rank and stored peak rank of players
	// in a context. Players without a row are absent from the map.
	StatsStates(ctx context.Context, c Context, playerIDs []string) (map[string]StatsState, error)

	// SaveStats upserts stats records keyed by (player, context).
	SaveStats(ctx context.Context, stats []*PlayerScoreStats) error
}

// StatsState is what the aggregator needs to carry a player's peak rank over.
type StatsState struct {
	CurrentRank int
	PeakRank    int
}

// RankingPublisher mirrors a context's player ranking to a read cache.
type RankingPublisher interface {
	PublishRanking(ctx context.Context, c Context, players []*RankablePlayer) error
}
