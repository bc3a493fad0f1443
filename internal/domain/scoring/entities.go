package scoring

// ══════════════════════════════════════════════════════════════════════════════
// SCORE
// ══════════════════════════════════════════════════════════════════════════════

// Score is one player's result on one leaderboard in the General context.
// Derived fields are owned by the normalizer and the ranker; this package
// never deletes scores.
type Score struct {
	ID            int64
	PlayerID      string
	LeaderboardID string

	BaseScore     int
	ModifiedScore int
	Accuracy      float64
	FcAccuracy    float64
	Modifiers     string

	Pp      float64
	FcPp    float64
	BonusPp float64
	PassPP  float64
	AccPP   float64
	TechPP  float64

	Rank          int
	Weight        float64
	Priority      int
	Qualification bool

	// ValidContexts is the set of contexts the score counts in.
	ValidContexts Context

	// Timepost is the submission time in unix seconds.
	Timepost  int64
	Platform  string
	Hmd       int
	MaxStreak int
	AccLeft   float64
	AccRight  float64
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// Leaderboard identifies a (song, difficulty, mode) triple together with the
// rating parameters consumed by the rating oracle.
type Leaderboard struct {
	ID     string
	Status DifficultyStatus

	AccRating  float64
	PassRating float64
	TechRating float64

	ModifierValues  *ModifiersMap
	ModifiersRating *ModifiersRating

	// MaxScore overrides the note-count derived maximum when positive.
	MaxScore int
	Notes    int

	// Plays counts valid General context scores. Written by the ranker only.
	Plays int
}

// Modifiers returns the leaderboard's multiplier table, or the default one.
func (l *Leaderboard) Modifiers() *ModifiersMap {
	if l.ModifierValues != nil {
		return l.ModifierValues
	}
	return DefaultModifiersMap()
}

// EffectiveMaxScore returns the stored max score when set, else the note-count derived one.
func (l *Leaderboard) EffectiveMaxScore() int {
	if l.MaxScore > 0 {
		return l.MaxScore
	}
	return MaxScoreForNotes(l.Notes)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODELS
// ══════════════════════════════════════════════════════════════════════════════

// RankCandidate is the minimal row the leaderboard ranker orders.
// For General it mirrors a score, otherwise a context extension.
type RankCandidate struct {
	ID            int64
	LeaderboardID string
	Pp            float64
	Accuracy      float64
	ModifiedScore int
	Priority      int
	Timepost      int64
	Rank          int
}

// WeightedScore is an eligible row of the weighted PP aggregator.
// ID addresses a score (General) or a context extension.
type WeightedScore struct {
	ID       int64
	PlayerID string
	Pp       float64
	AccPP    float64
	PassPP   float64
	TechPP   float64
	Weight   float64
}

// RankablePlayer is a player (or player context extension) with positive PP.
type RankablePlayer struct {
	// Key addresses the row to update: the player id for General, the
	// extension id otherwise.
	Key         any
	PlayerID    string
	Country     string
	Pp          float64
	Rank        int
	CountryRank int
}

// ContextPp is one context's total PP of a player.
type ContextPp struct {
	Context Context
	Pp      float64
}

// PlayerPpTotals is the input of the all-contexts PP sum.
type PlayerPpTotals struct {
	PlayerID      string
	Pp            float64
	AllContextsPp float64
	Contexts      []ContextPp
}

// StatScore is the flattened row the player aggregator folds.
// For alternate contexts the PP fields come from the extension and the
// gameplay fields from the joined score.
type StatScore struct {
	ScoreID       int64
	Pp            float64
	BonusPp       float64
	PassPP        float64
	AccPP         float64
	TechPP        float64
	Accuracy      float64
	ModifiedScore int
	Rank          int
	Qualification bool
	Timepost      int64
	Platform      string
	Hmd           int
	MaxStreak     int
	AccLeft       float64
	AccRight      float64
}

// IsRanked reports whether the score counts as ranked for statistics.
func (s StatScore) IsRanked() bool {
	return s.Pp != 0 && !s.Qualification
}
