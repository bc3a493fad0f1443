package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beatrank/ppcron/internal/domain/shared"
)

func TestModifiersMap_Multipliers(t *testing.T) {
	m := DefaultModifiersMap()

	assert.Equal(t, 1.0, m.PositiveMultiplier(""))
	assert.InDelta(t, 1.115, m.PositiveMultiplier("DA,FS"), 1e-12)
	assert.InDelta(t, 1.0, m.PositiveMultiplier("NF,NO"), 1e-12)

	assert.InDelta(t, 0.3, m.NegativeMultiplier("NF,NO", false), 1e-12)
	assert.InDelta(t, 0.6, m.NegativeMultiplier("SS,NB", false), 1e-12)
	assert.InDelta(t, 0.9, m.NegativeMultiplier("SS,NB", true), 1e-12)
	assert.Equal(t, 1.0, m.NegativeMultiplier("FS,GN", false))
}

func TestModifiersMap_NilIsNeutral(t *testing.T) {
	var m *ModifiersMap
	assert.Equal(t, 1.0, m.PositiveMultiplier("FS"))
	assert.Equal(t, 1.0, m.NegativeMultiplier("NF", false))
}

func TestParseModifiers(t *testing.T) {
	assert.Nil(t, ParseModifiers(""))
	assert.Equal(t, []string{"DA", "FS"}, ParseModifiers("da, FS,,"))
	assert.Equal(t, ModFasterSong, SpeedModifier("DA,FS"))
	assert.Equal(t, "", SpeedModifier("DA,GN"))
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 3, Priority("NB,NF"))
	assert.Equal(t, 2, Priority("NO,NB"))
	assert.Equal(t, 2, Priority("NA"))
	assert.Equal(t, 1, Priority("NO"))
	assert.Equal(t, 0, Priority("DA,FS"))
}

func TestModifiersRating_ForSpeed(t *testing.T) {
	r := &ModifiersRating{FSAccRating: 9, FSPassRating: 7, FSTechRating: 3}

	acc, pass, tech, ok := r.ForSpeed(ModFasterSong)
	assert.True(t, ok)
	assert.Equal(t, [3]float64{9, 7, 3}, [3]float64{acc, pass, tech})

	_, _, _, ok = r.ForSpeed(ModSlowerSong)
	assert.False(t, ok)
}

func TestParseContext(t *testing.T) {
	for _, c := range AllContexts {
		parsed, err := ParseContext(c.String())
		assert.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := ParseContext("standard")
	assert.True(t, errors.Is(err, shared.ErrInvalidContext))
	assert.True(t, shared.IsValidation(err))

	assert.Len(t, NonGeneralContexts(), len(AllContexts)-1)
	assert.True(t, ContextGolf.IsSpecialMode())
	assert.True(t, (ContextGeneral | ContextSCPM).Has(ContextSCPM))
}

func TestDifficultyStatus(t *testing.T) {
	for _, s := range []DifficultyStatus{StatusRanked, StatusQualified, StatusInEvent} {
		assert.True(t, s.HasPp(), s.String())
	}
	for _, s := range []DifficultyStatus{StatusUnranked, StatusNominated, StatusUnrankable, StatusOutdated} {
		assert.False(t, s.HasPp(), s.String())
	}
	assert.True(t, StatusInEvent.IsQualification())
	assert.False(t, StatusRanked.IsQualification())

	parsed, err := ParseStatus("Qualified")
	assert.NoError(t, err)
	assert.Equal(t, StatusQualified, parsed)
}

func TestAllContextsPp(t *testing.T) {
	totals := &PlayerPpTotals{
		PlayerID: "p",
		Pp:       1000,
		Contexts: []ContextPp{
			{Context: ContextNoMods, Pp: 800},
			{Context: ContextGolf, Pp: 5000},
			{Context: ContextSCPM, Pp: 200},
		},
	}

	assert.Equal(t, 2000.0, AllContextsPp(totals))
}
