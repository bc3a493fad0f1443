// Package scoring contains the domain model of the score & ranking recomputation
// pipeline: scores, leaderboards, players, scoring contexts and the pure
// functions that normalize, order and weight them.
//
// Nothing in this package performs I/O. Readers and the batch writer are
// declared as interfaces in repository.go and implemented in the
// infrastructure layer.
package scoring

import (
	"strings"

	"github.com/beatrank/ppcron/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// Context is an alternate scoring rule set applied to the same raw scores.
// Values are bit flags so a score can declare every context it is valid for.
type Context int

const (
	ContextNone    Context = 0
	ContextGeneral Context = 1 << 1
	ContextNoMods  Context = 1 << 2
	ContextNoPause Context = 1 << 3
	ContextGolf    Context = 1 << 4
	ContextSCPM    Context = 1 << 5
)

// JokeContext is excluded from the all-contexts PP sum.
const JokeContext = ContextGolf

// AllContexts lists every context that keeps its own ranks, in processing order.
var AllContexts = []Context{
	ContextGeneral,
	ContextNoMods,
	ContextNoPause,
	ContextGolf,
	ContextSCPM,
}

// NonGeneralContexts lists contexts stored as extension rows.
func NonGeneralContexts() []Context {
	result := make([]Context, 0, len(AllContexts)-1)
	for _, c := range AllContexts {
		if c != ContextGeneral {
			result = append(result, c)
		}
	}
	return result
}

// IsGeneral reports whether scores of this context live on the score rows themselves.
func (c Context) IsGeneral() bool {
	return c == ContextGeneral
}

// IsSpecialMode reports whether the rating oracle must invert accuracy for this context.
func (c Context) IsSpecialMode() bool {
	return c == ContextGolf
}

// IgnoresModifiers reports whether modifiers are dropped before computing PP.
func (c Context) IgnoresModifiers() bool {
	return c == ContextNoMods
}

// Has reports whether the flag set contains ctx.
func (c Context) Has(ctx Context) bool {
	return c&ctx != 0
}

// IsValid reports whether c is exactly one known context.
func (c Context) IsValid() bool {
	for _, known := range AllContexts {
		if c == known {
			return true
		}
	}
	return false
}

// String returns the lowercase name used in config, CLI flags and cache keys.
func (c Context) String() string {
	switch c {
	case ContextNone:
		return "none"
	case ContextGeneral:
		return "general"
	case ContextNoMods:
		return "nomods"
	case ContextNoPause:
		return "nopause"
	case ContextGolf:
		return "golf"
	case ContextSCPM:
		return "scpm"
	default:
		return "unknown"
	}
}

// MarshalText encodes the context by name.
func (c Context) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseContext parses a context name, case-insensitively.
func ParseContext(s string) (Context, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "general":
		return ContextGeneral, nil
	case "nomods", "no_mods":
		return ContextNoMods, nil
	case "nopause", "no_pause":
		return ContextNoPause, nil
	case "golf":
		return ContextGolf, nil
	case "scpm":
		return ContextSCPM, nil
	default:
		return ContextNone, shared.WrapError("scoring", "ParseContext", shared.ErrInvalidInput, "unknown leaderboard context", shared.ErrInvalidContext)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DIFFICULTY STATUS
// ══════════════════════════════════════════════════════════════════════════════

// DifficultyStatus is the ranking state of a leaderboard.
type DifficultyStatus int

const (
	StatusUnranked   DifficultyStatus = 0
	StatusNominated  DifficultyStatus = 1
	StatusQualified  DifficultyStatus = 2
	StatusRanked     DifficultyStatus = 3
	StatusUnrankable DifficultyStatus = 4
	StatusOutdated   DifficultyStatus = 5
	StatusInEvent    DifficultyStatus = 6
)

// HasPp reports whether scores on a leaderboard with this status earn PP.
func (s DifficultyStatus) HasPp() bool {
	return s == StatusRanked || s == StatusQualified || s == StatusInEvent
}

// IsQualification reports whether PP earned under this status is provisional.
func (s DifficultyStatus) IsQualification() bool {
	return s == StatusQualified || s == StatusInEvent
}

// String returns the lowercase status name.
func (s DifficultyStatus) String() string {
	switch s {
	case StatusUnranked:
		return "unranked"
	case StatusNominated:
		return "nominated"
	case StatusQualified:
		return "qualified"
	case StatusRanked:
		return "ranked"
	case StatusUnrankable:
		return "unrankable"
	case StatusOutdated:
		return "outdated"
	case StatusInEvent:
		return "inevent"
	default:
		return "unknown"
	}
}

// ParseStatus parses a status name.
func ParseStatus(s string) (DifficultyStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unranked":
		return StatusUnranked, nil
	case "nominated":
		return StatusNominated, nil
	case "qualified":
		return StatusQualified, nil
	case "ranked":
		return StatusRanked, nil
	case "unrankable":
		return StatusUnrankable, nil
	case "outdated":
		return StatusOutdated, nil
	case "inevent":
		return StatusInEvent, nil
	default:
		return StatusUnranked, shared.WrapError("scoring", "ParseStatus", shared.ErrInvalidInput, "unknown difficulty status "+s, shared.ErrInvalidStatus)
	}
}
