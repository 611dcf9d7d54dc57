package prequel

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinedex/pkg/schema"
)

func mcu() schema.PrequelMap {
	return schema.PrequelMap{
		"Iron Man":          nil,
		"Iron Man 2":        {"Iron Man"},
		"Thor":              nil,
		"Captain America":   nil,
		"The Avengers":      {"Iron Man 2", "Thor", "Captain America"},
		"Iron Man 3":        {"The Avengers"},
		"Avengers: Endgame": {"The Avengers", "Iron Man 3"},
		"Guardians":         nil,
	}
}

func releaseDates() map[string]time.Time {
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }
	return map[string]time.Time{
		"Iron Man":          d(2008, 5, 2),
		"Iron Man 2":        d(2010, 5, 7),
		"Thor":              d(2011, 5, 6),
		"Captain America":   d(2011, 7, 22),
		"The Avengers":      d(2012, 5, 4),
		"Iron Man 3":        d(2013, 5, 3),
		"Avengers: Endgame": d(2019, 4, 26),
	}
}

func staticDates(m map[string]time.Time) Dates {
	return func(context.Context) (map[string]time.Time, error) { return m, nil }
}

func failingDates(context.Context) (map[string]time.Time, error) {
	return nil, errors.New("metadata unavailable")
}

// TestAllPrequels_Transitive verifies the closure and its exclusions.
func TestAllPrequels_Transitive(t *testing.T) {
	got := AllPrequels("Avengers: Endgame", mcu())
	assert.ElementsMatch(t, []string{"The Avengers", "Iron Man 2", "Iron Man", "Thor", "Captain America", "Iron Man 3"}, got)
	assert.NotContains(t, got, "Avengers: Endgame")
	assert.NotContains(t, got, "Guardians")
}

// TestAllPrequels_NoPrequels verifies leaves and unknown titles yield nothing.
func TestAllPrequels_NoPrequels(t *testing.T) {
	assert.Empty(t, AllPrequels("Iron Man", mcu()))
	assert.Empty(t, AllPrequels("Blade", mcu()))
}

// TestAllPrequels_NormalisedLookup verifies loose title spelling resolves.
func TestAllPrequels_NormalisedLookup(t *testing.T) {
	got := AllPrequels("iron man 3", mcu())
	assert.Contains(t, got, "The Avengers")
	assert.Contains(t, got, "Iron Man")
}

// TestAllPrequels_Cycle verifies termination and the target exclusion on cycles.
func TestAllPrequels_Cycle(t *testing.T) {
	m := schema.PrequelMap{
		"A": {"B"},
		"B": {"C"},
		"C": {"A", "B"},
	}
	got := AllPrequels("A", m)
	assert.ElementsMatch(t, []string{"B", "C"}, got)

	self := schema.PrequelMap{"Loop": {"Loop"}}
	assert.Empty(t, AllPrequels("Loop", self))
}

// TestViewingOrder_ByRelease verifies the date strategy.
func TestViewingOrder_ByRelease(t *testing.T) {
	o := ViewingOrder(context.Background(), "Iron Man 3", mcu(), staticDates(releaseDates()))
	assert.Equal(t, ByRelease, o.Strategy)
	assert.Equal(t, "Iron Man 3", o.Title)
	assert.Equal(t, []string{"Iron Man", "Iron Man 2", "Thor", "Captain America", "The Avengers", "Iron Man 3"}, o.Titles)
}

// TestViewingOrder_MissingDatesSortFirst verifies the epoch default.
func TestViewingOrder_MissingDatesSortFirst(t *testing.T) {
	dates := releaseDates()
	delete(dates, "Thor")
	o := ViewingOrder(context.Background(), "The Avengers", mcu(), staticDates(dates))
	require.NotEmpty(t, o.Titles)
	assert.Equal(t, "Thor", o.Titles[0])
	assert.Equal(t, "The Avengers", o.Titles[len(o.Titles)-1])
}

// TestViewingOrder_FallbackOnDateFailure verifies the topological fallback.
func TestViewingOrder_FallbackOnDateFailure(t *testing.T) {
	o := ViewingOrder(context.Background(), "Avengers: Endgame", mcu(), failingDates)
	assert.Equal(t, Topological, o.Strategy)
	assert.Equal(t, []string{"Captain America", "Iron Man", "Thor", "Iron Man 2", "The Avengers", "Iron Man 3", "Avengers: Endgame"}, o.Titles)

	o = ViewingOrder(context.Background(), "Iron Man 2", mcu(), nil)
	assert.Equal(t, Topological, o.Strategy)
	assert.Equal(t, []string{"Iron Man", "Iron Man 2"}, o.Titles)
}

// TestViewingOrder_FallbackWithCycle verifies every node is still emitted once.
func TestViewingOrder_FallbackWithCycle(t *testing.T) {
	m := schema.PrequelMap{
		"Root": {"A"},
		"A":    {"B"},
		"B":    {"A", "Z"},
		"Z":    nil,
	}
	o := ViewingOrder(context.Background(), "Root", m, failingDates)
	assert.Equal(t, []string{"Z", "A", "B", "Root"}, o.Titles)
}

// TestViewingOrder_UnknownTitle verifies a lone title is still returned.
func TestViewingOrder_UnknownTitle(t *testing.T) {
	o := ViewingOrder(context.Background(), "Blade", mcu(), staticDates(releaseDates()))
	assert.Equal(t, []string{"Blade"}, o.Titles)
	assert.Empty(t, o.Prequels)
}

// randomDAG builds a map whose edges always point from a higher to a lower
// index, so it is acyclic by construction.
func randomDAG(rng *rand.Rand, n int) (schema.PrequelMap, []string) {
	titles := make([]string, n)
	for i := range titles {
		titles[i] = fmt.Sprintf("Movie %03d", i)
	}
	m := schema.PrequelMap{}
	for i := 0; i < n; i++ {
		var ps []string
		for j := 0; j < i; j++ {
			if rng.Intn(4) == 0 {
				ps = append(ps, titles[j])
			}
		}
		m[titles[i]] = ps
	}
	return m, titles
}

func reachable(m schema.PrequelMap, from string) map[string]bool {
	seen := map[string]bool{}
	stack := slices.Clone(m[from])
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] || n == from {
			continue
		}
		seen[n] = true
		stack = append(stack, m[n]...)
	}
	return seen
}

// TestProperties_RandomDAGs checks ordering and uniqueness over generated maps.
func TestProperties_RandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		m, titles := randomDAG(rng, 3+rng.Intn(25))
		target := titles[rng.Intn(len(titles))]

		got := AllPrequels(target, m)
		want := reachable(m, target)
		require.Len(t, got, len(want), "round %d", round)
		for _, p := range got {
			assert.True(t, want[p], "round %d: %q not reachable", round, p)
		}

		dates := map[string]time.Time{}
		base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
		for _, i := range rng.Perm(len(titles)) {
			dates[titles[i]] = base.AddDate(0, 0, len(dates))
		}

		o := ViewingOrder(context.Background(), target, m, staticDates(dates))
		assertPermutation(t, append(slices.Clone(got), target), o.Titles)
		for i := 1; i < len(o.Titles); i++ {
			assert.True(t, dates[o.Titles[i-1]].Before(dates[o.Titles[i]]), "round %d: not sorted by release", round)
		}

		fb := ViewingOrder(context.Background(), target, m, failingDates)
		assertPermutation(t, append(slices.Clone(got), target), fb.Titles)
		pos := map[string]int{}
		for i, title := range fb.Titles {
			pos[title] = i
		}
		for _, movie := range fb.Titles {
			for _, p := range m[movie] {
				if _, in := pos[p]; in {
					assert.Less(t, pos[p], pos[movie], "round %d: %q must precede %q", round, p, movie)
				}
			}
		}
	}
}

// TestProperties_RandomCycles checks termination and uniqueness with cycles.
func TestProperties_RandomCycles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := 2 + rng.Intn(15)
		m := schema.PrequelMap{}
		for i := 0; i < n; i++ {
			var ps []string
			for j := 0; j < n; j++ {
				if rng.Intn(3) == 0 {
					ps = append(ps, fmt.Sprintf("N%d", j))
				}
			}
			m[fmt.Sprintf("N%d", i)] = ps
		}
		target := fmt.Sprintf("N%d", rng.Intn(n))

		got := AllPrequels(target, m)
		assert.LessOrEqual(t, len(got), n-1)
		assert.NotContains(t, got, target)

		o := ViewingOrder(context.Background(), target, m, failingDates)
		assertPermutation(t, append(slices.Clone(got), target), o.Titles)
	}
}

func assertPermutation(t *testing.T, want, got []string) {
	t.Helper()
	assert.ElementsMatch(t, want, got)
	seen := map[string]bool{}
	for _, g := range got {
		assert.False(t, seen[g], "%q emitted twice", g)
		seen[g] = true
	}
}
