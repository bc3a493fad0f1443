package scoring

// AllContextsPp sums a player's General PP and the PP of every alternate
// context except the joke context.
func AllContextsPp(t *PlayerPpTotals) float64 {
	total := t.Pp
	for _, c := range t.Contexts {
		if c.Context == JokeContext || c.Context.IsGeneral() {
			continue
		}
		total += c.Pp
	}
	return total
}
