package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinedex/pkg/diff"
	"cinedex/pkg/schema"
	"cinedex/pkg/source"
)

const marvelCSV = "Title,Release Date,Critic,Tier,Phase\n" +
	"Iron Man,2008-05-02,94%,S,Phase One\n" +
	"The Incredible Hulk,2008-06-13,67%,C,Phase One\n" +
	"Iron Man 2,2010-05-07,71%,B,Phase One\n" +
	"Thor,2011-05-06,77%,B+,Phase One\n" +
	"The Avengers,2012-05-04,91%,A+,Phase One\n" +
	"Iron Man 3,2013-05-03,79%,,Phase Two\n" +
	"Guardians of the Galaxy,2014-08-01,,A,Phase Two\n"

const marvelPrequelsCSV = "Movie,Iron Man,Iron Man 2,Thor,The Incredible Hulk,The Avengers\n" +
	"Iron Man 2,1,0,0,0,0\n" +
	"The Avengers,1,1,1,1,0\n" +
	"Iron Man 3,1,1,0,0,1\n"

const charactersCSV = "Character,Iron Man,Iron Man 2,The Avengers,Spider-Man: Homecoming\n" +
	"Tony Stark,1,1,1,1\n" +
	"Thor,0,0,1,0\n"

// dcCSV has no title column, so the franchise never loads.
const dcCSV = "Release,Tier\n2008,S\n"

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"marvel.csv":          marvelCSV,
		"marvel-prequels.csv": marvelPrequelsCSV,
		"characterMap.csv":    charactersCSV,
		"dc.csv":              dcCSV,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := writeFixtures(t)
	src := source.NewDir(dir)
	franchises, err := DiscoverFranchises(src, DefaultCharacterFile)
	require.NoError(t, err)

	s, err := NewStore(Options{Source: src, Franchises: franchises, CharacterFile: DefaultCharacterFile})
	require.NoError(t, err)
	return s, dir
}

func titles(ms []schema.Movie) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Title)
	}
	return out
}

func TestDiscoverFranchises(t *testing.T) {
	dir := writeFixtures(t)
	fs, err := DiscoverFranchises(source.NewDir(dir), DefaultCharacterFile)
	require.NoError(t, err)
	require.Len(t, fs, 2)

	assert.Equal(t, "dc", fs[0].Slug)
	assert.Equal(t, "", fs[0].Prequels)
	assert.Equal(t, "marvel", fs[1].Slug)
	assert.Equal(t, "Marvel", fs[1].Name)
	assert.Equal(t, "marvel.csv", fs[1].Movies)
	assert.Equal(t, "marvel-prequels.csv", fs[1].Prequels)

	assert.Equal(t, "Star Wars", displayName("star-wars"))
}

func TestNewStoreRejectsDuplicates(t *testing.T) {
	_, err := NewStore(Options{
		Source:     source.NewDir(t.TempDir()),
		Franchises: []schema.Franchise{{Slug: "marvel"}, {Slug: " Marvel "}},
	})
	assert.Error(t, err)

	_, err = NewStore(Options{})
	assert.Error(t, err)
}

func TestMovieLookup(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m, err := s.Movie(ctx, "marvel", "the avengers")
	require.NoError(t, err)
	assert.Equal(t, "The Avengers", m.Title)
	assert.Equal(t, "the-avengers.jpg", m.Poster)

	_, err = s.Movie(ctx, "marvel", "Ant-Man")
	assert.ErrorIs(t, err, ErrNoMovie)

	_, err = s.Movie(ctx, "pixar", "Up")
	assert.ErrorIs(t, err, ErrUnknownFranchise)

	_, err = s.Movies(ctx, "dc")
	assert.Error(t, err)
}

func TestMoviesReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Movies(ctx, "marvel")
	require.NoError(t, err)
	a[0].Title = "changed"

	b, err := s.Movies(ctx, "marvel")
	require.NoError(t, err)
	assert.Equal(t, "Iron Man", b[0].Title)
}

func TestBrowse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	got, err := s.Browse(ctx, "marvel", Query{Phase: "phase one", Sort: SortCritic, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Iron Man", "The Avengers", "Thor", "Iron Man 2", "The Incredible Hulk"}, titles(got))

	got, err = s.Browse(ctx, "marvel", Query{From: 2012})
	require.NoError(t, err)
	assert.Equal(t, []string{"The Avengers", "Iron Man 3", "Guardians of the Galaxy"}, titles(got))

	got, err = s.Browse(ctx, "marvel", Query{Text: "iron", To: 2010})
	require.NoError(t, err)
	assert.Equal(t, []string{"Iron Man", "Iron Man 2"}, titles(got))
}

func TestSortMissingValuesLast(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, desc := range []bool{false, true} {
		got, err := s.Browse(ctx, "marvel", Query{Sort: SortCritic, Desc: desc})
		require.NoError(t, err)
		assert.Equal(t, "Guardians of the Galaxy", got[len(got)-1].Title, "desc=%v", desc)

		got, err = s.Browse(ctx, "marvel", Query{Sort: SortTier, Desc: desc})
		require.NoError(t, err)
		assert.Equal(t, "Iron Man 3", got[len(got)-1].Title, "desc=%v", desc)
	}
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortRelease, k)

	k, err = ParseSortKey(" Audience ")
	require.NoError(t, err)
	assert.Equal(t, SortAudience, k)

	_, err = ParseSortKey("budget")
	assert.Error(t, err)
}

func TestTiers(t *testing.T) {
	s, _ := newTestStore(t)
	tiers, err := s.Tiers(context.Background(), "marvel")
	require.NoError(t, err)

	var names []string
	for _, tr := range tiers {
		names = append(names, tr.Tier)
	}
	assert.Equal(t, []string{"S", "A+", "A", "B+", "B", "C", Unranked}, names)

	assert.Less(t, TierRank("F"), TierRank("Z"))
	assert.Less(t, TierRank("Z"), TierRank(""))
}

func TestPhases(t *testing.T) {
	s, _ := newTestStore(t)
	phases, err := s.Phases(context.Background(), "marvel")
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, "Phase One", phases[0].Phase)
	assert.Len(t, phases[0].Movies, 5)
	assert.Equal(t, "Phase Two", phases[1].Phase)
	assert.Equal(t, "Iron Man 3", phases[1].Movies[0].Title)
}

func TestSearch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	hits := s.Search(ctx, "Iron Man", 0)
	require.Len(t, hits, 3)
	assert.Equal(t, "Iron Man", hits[0].Title)
	assert.Equal(t, "Iron Man 2", hits[1].Title)
	assert.True(t, hits[0].Exact)

	hits = s.Search(ctx, "thorr", 5)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Thor", hits[0].Title)
	assert.False(t, hits[0].Exact)

	assert.Len(t, s.Search(ctx, "iron man", 1), 1)
	assert.Empty(t, s.Search(ctx, "  ", 5))
}

func TestCharacters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	names, err := s.Appearances(ctx, "marvel", "the avengers")
	require.NoError(t, err)
	assert.Equal(t, []string{"Thor", "Tony Stark"}, names)

	f, err := s.Filmography(ctx, "tony stark")
	require.NoError(t, err)
	assert.Equal(t, "Tony Stark", f.Character)
	require.Len(t, f.Appearances, 4)
	require.NotNil(t, f.Appearances[0].Movie)
	assert.Equal(t, "marvel", f.Appearances[0].Movie.Franchise)
	assert.Nil(t, f.Appearances[3].Movie, "Spider-Man: Homecoming is not in the catalog")

	_, err = s.Filmography(ctx, "Nobody")
	assert.ErrorIs(t, err, ErrNoCharacter)
}

func TestCharactersMissingFile(t *testing.T) {
	dir := writeFixtures(t)
	require.NoError(t, os.Remove(filepath.Join(dir, DefaultCharacterFile)))
	s, err := NewStore(Options{
		Source:        source.NewDir(dir),
		Franchises:    []schema.Franchise{{Slug: "marvel"}},
		CharacterFile: DefaultCharacterFile,
	})
	require.NoError(t, err)

	names, err := s.Appearances(context.Background(), "marvel", "Iron Man")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestViewingOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	pre, err := s.AllPrequels(ctx, "marvel", "Iron Man 3")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Iron Man", "Iron Man 2", "The Avengers", "Thor", "The Incredible Hulk"}, pre)

	vo, err := s.ViewingOrder(ctx, "marvel", "iron man 3")
	require.NoError(t, err)
	assert.Equal(t, "release", vo.Strategy)
	var got []string
	for _, c := range vo.Order {
		got = append(got, c.Title)
	}
	assert.Equal(t, []string{"Iron Man", "The Incredible Hulk", "Iron Man 2", "Thor", "The Avengers", "Iron Man 3"}, got)
	assert.Equal(t, 2013, vo.Order[5].Year)

	vo, err = s.ViewingOrder(ctx, "marvel", "Guardians of the Galaxy")
	require.NoError(t, err)
	require.Len(t, vo.Order, 1)
	assert.Empty(t, vo.Prequels)

	_, err = s.ViewingOrder(ctx, "marvel", "Eternals")
	assert.ErrorIs(t, err, ErrNoMovie)
}

func TestViewingOrderFallsBackWithoutDates(t *testing.T) {
	dir := writeFixtures(t)
	s, err := NewStore(Options{
		Source:     source.NewDir(dir),
		Franchises: []schema.Franchise{{Slug: "broken", Movies: "missing.csv", Prequels: "marvel-prequels.csv"}},
	})
	require.NoError(t, err)

	vo, err := s.ViewingOrder(context.Background(), "broken", "Iron Man 3")
	require.NoError(t, err, "a release date failure never reaches the caller")
	assert.Equal(t, "topological", vo.Strategy)

	var got []string
	for _, c := range vo.Order {
		got = append(got, c.Title)
	}
	assert.Equal(t, []string{"Iron Man", "The Incredible Hulk", "Thor", "Iron Man 2", "The Avengers", "Iron Man 3"}, got)
}

func TestReload(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	_, err := s.Movies(ctx, "marvel")
	require.NoError(t, err)

	updated := marvelCSV + "Ant-Man,2015-07-17,83%,B,Phase Two\n"
	updated = strings.Replace(updated, "Thor,2011-05-06,77%,B+,Phase One", "Thor,2011-05-06,77%,B-,Phase One", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marvel.csv"), []byte(updated), 0o644))

	var seen []string
	res := s.Reload(ctx, func(st schema.LoadStatus) { seen = append(seen, st.Franchise) })
	assert.ElementsMatch(t, []string{"dc", "marvel"}, seen)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 1, res.Failed())

	require.Len(t, res.Diffs, 1)
	counts := res.Diffs[0].Counts()
	assert.Equal(t, 1, counts[diff.Added])
	assert.Equal(t, 1, counts[diff.Modified])
	assert.Equal(t, 6, counts[diff.Unchanged])

	movies, err := s.Movies(ctx, "marvel")
	require.NoError(t, err)
	assert.Len(t, movies, 8)

	status := s.Status()
	require.Len(t, status, 2)
	assert.False(t, status[0].OK())
	assert.True(t, status[1].OK())
	assert.Equal(t, 8, status[1].Movies)
}

func TestReloadFranchise(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st, d, err := s.ReloadFranchise(ctx, "marvel")
	require.NoError(t, err)
	assert.True(t, st.OK())
	assert.Nil(t, d, "no baseline before the first load")

	st, d, err = s.ReloadFranchise(ctx, "marvel")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.False(t, d.Changed())
	assert.NotEmpty(t, st.Snapshot)

	_, _, err = s.ReloadFranchise(ctx, "pixar")
	assert.ErrorIs(t, err, ErrUnknownFranchise)
}

func TestStateRoundTrip(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()
	_, err := s.Movies(ctx, "marvel")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, s.SaveState(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "marvel.csv"), []byte(marvelCSV+"Ant-Man,2015-07-17,83%,B,Phase Two\n"), 0o644))

	restored, err := NewStore(Options{Source: source.NewDir(dir), Franchises: s.Franchises()})
	require.NoError(t, err)
	require.NoError(t, restored.LoadState(path))

	_, d, err := restored.ReloadFranchise(ctx, "marvel")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1, d.Counts()[diff.Added])
}
