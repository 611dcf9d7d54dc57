// Package catalog owns the loaded franchise datasets and answers the
// browse, detail, tier, search, character and viewing-order queries.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/ksuid"

	"cinedex/pkg/flight"
	"cinedex/pkg/metrics"
	"cinedex/pkg/schema"
	"cinedex/pkg/sheet"
	"cinedex/pkg/source"
	"cinedex/pkg/utils"
)

var (
	ErrUnknownFranchise = errors.New("catalog: unknown franchise")
	ErrNoMovie          = errors.New("catalog: no such movie")
	ErrNoCharacter      = errors.New("catalog: no such character")
)

// DefaultCharacterFile is the shared character appearance matrix.
const DefaultCharacterFile = "characterMap.csv"

type Options struct {
	Source        source.Source
	Franchises    []schema.Franchise
	CharacterFile string
	// TTL is how long loaded datasets are held strongly; <= 0 holds forever.
	TTL time.Duration
}

type Store struct {
	src           source.Source
	franchises    []schema.Franchise
	bySlug        map[string]schema.Franchise
	characterFile string

	movies     *flight.Cache[string, schema.Dataset]
	prequels   *flight.Cache[string, schema.PrequelMap]
	characters *flight.Cache[string, schema.CharacterMap]

	status *utils.SyncMap[map[string]schema.LoadStatus, string, schema.LoadStatus]
	// prev keeps the last good movie list per franchise as the baseline
	// for reload diffs.
	prev *utils.SyncMap[map[string][]schema.Movie, string, []schema.Movie]
}

func NewStore(opts Options) (*Store, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("catalog: nil source")
	}
	s := &Store{
		src:           opts.Source,
		bySlug:        make(map[string]schema.Franchise, len(opts.Franchises)),
		characterFile: strings.TrimSpace(opts.CharacterFile),
		status:        utils.NewSyncMap[map[string]schema.LoadStatus](),
		prev:          utils.NewSyncMap[map[string][]schema.Movie](),
	}
	for _, f := range opts.Franchises {
		f.Slug = strings.ToLower(strings.TrimSpace(f.Slug))
		if f.Slug == "" {
			return nil, fmt.Errorf("catalog: franchise with empty slug")
		}
		if _, dup := s.bySlug[f.Slug]; dup {
			return nil, fmt.Errorf("catalog: duplicate franchise %q", f.Slug)
		}
		if f.Movies == "" {
			f.Movies = f.Slug + ".csv"
		}
		if f.Name == "" {
			f.Name = f.Slug
		}
		s.bySlug[f.Slug] = f
		s.franchises = append(s.franchises, f)
	}

	s.movies = flight.NewCache(s.loadMovies)
	s.prequels = flight.NewCache(s.loadPrequels)
	s.characters = flight.NewCache(s.loadCharacters)
	for _, c := range []interface{ Expiry(time.Duration) }{s.movies, s.prequels, s.characters} {
		c.Expiry(opts.TTL)
	}
	return s, nil
}

func (s *Store) Franchises() []schema.Franchise {
	return slices.Clone(s.franchises)
}

func (s *Store) Franchise(slug string) (schema.Franchise, error) {
	f, ok := s.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return schema.Franchise{}, fmt.Errorf("%w: %q", ErrUnknownFranchise, slug)
	}
	return f, nil
}

func (s *Store) loadMovies(ctx context.Context, slug string) (schema.Dataset, error) {
	f, err := s.Franchise(slug)
	if err != nil {
		return schema.Dataset{}, err
	}

	start := time.Now()
	ds, err := s.readMovies(ctx, f)
	metrics.DatasetLoadSeconds.WithLabelValues("movies").Observe(time.Since(start).Seconds())

	st := schema.LoadStatus{Franchise: f.Slug, LoadedAt: time.Now().UTC()}
	if err != nil {
		metrics.DatasetLoads.WithLabelValues("movies", "error").Inc()
		st.Error = err
		s.status.Store(f.Slug, st)
		log.Error("loading movies failed", "franchise", f.Slug, "file", f.Movies, "error", err)
		return schema.Dataset{}, err
	}

	metrics.DatasetLoads.WithLabelValues("movies", "ok").Inc()
	st.Snapshot = ksuid.New().String()
	st.Movies = len(ds.Movies)
	st.Warnings = ds.Warnings
	s.status.Store(f.Slug, st)
	for _, w := range ds.Warnings {
		log.Warn("dataset warning", "franchise", f.Slug, "warning", w)
	}
	log.Info("loaded movies", "franchise", f.Slug, "movies", len(ds.Movies), "snapshot", st.Snapshot)
	return ds, nil
}

func (s *Store) readMovies(ctx context.Context, f schema.Franchise) (schema.Dataset, error) {
	rc, err := s.src.Open(ctx, f.Movies)
	if err != nil {
		return schema.Dataset{}, fmt.Errorf("open %s: %w", f.Movies, err)
	}
	defer rc.Close()

	movies, warnings, err := sheet.ParseMovies(rc, f.Slug)
	if err != nil {
		return schema.Dataset{}, fmt.Errorf("parse %s: %w", f.Movies, err)
	}
	return schema.Dataset{Franchise: f, Movies: movies, Warnings: warnings}, nil
}

func (s *Store) loadPrequels(ctx context.Context, slug string) (schema.PrequelMap, error) {
	f, err := s.Franchise(slug)
	if err != nil {
		return nil, err
	}
	if f.Prequels == "" {
		return schema.PrequelMap{}, nil
	}
	rc, err := s.src.Open(ctx, f.Prequels)
	if err != nil {
		metrics.DatasetLoads.WithLabelValues("prequels", "error").Inc()
		return nil, fmt.Errorf("open %s: %w", f.Prequels, err)
	}
	defer rc.Close()

	m, err := sheet.ParsePrequels(rc)
	if err != nil {
		metrics.DatasetLoads.WithLabelValues("prequels", "error").Inc()
		return nil, fmt.Errorf("parse %s: %w", f.Prequels, err)
	}
	metrics.DatasetLoads.WithLabelValues("prequels", "ok").Inc()
	log.Debug("loaded prequel map", "franchise", f.Slug, "movies", len(m))
	return m, nil
}

func (s *Store) loadCharacters(ctx context.Context, name string) (schema.CharacterMap, error) {
	rc, err := s.src.Open(ctx, name)
	if err != nil {
		metrics.DatasetLoads.WithLabelValues("characters", "error").Inc()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	m, err := sheet.ParseCharacters(rc)
	if err != nil {
		metrics.DatasetLoads.WithLabelValues("characters", "error").Inc()
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	metrics.DatasetLoads.WithLabelValues("characters", "ok").Inc()
	log.Debug("loaded character map", "file", name, "characters", len(m))
	return m, nil
}

// Dataset returns the loaded dataset for a franchise, loading it on first use.
func (s *Store) Dataset(ctx context.Context, slug string) (schema.Dataset, error) {
	f, err := s.Franchise(slug)
	if err != nil {
		return schema.Dataset{}, err
	}
	ds, err := s.movies.Get(ctx, f.Slug)
	if err != nil {
		return schema.Dataset{}, err
	}
	s.remember(f.Slug, ds.Movies)
	return ds, nil
}

// Movies returns a copy of the franchise's movies in dataset order.
func (s *Store) Movies(ctx context.Context, slug string) ([]schema.Movie, error) {
	ds, err := s.Dataset(ctx, slug)
	if err != nil {
		return nil, err
	}
	return slices.Clone(ds.Movies), nil
}

// Movie finds a movie by title using the normalised matching key.
func (s *Store) Movie(ctx context.Context, slug, title string) (schema.Movie, error) {
	movies, err := s.Movies(ctx, slug)
	if err != nil {
		return schema.Movie{}, err
	}
	key := utils.NormalizeTitle(title)
	for _, m := range movies {
		if utils.NormalizeTitle(m.Title) == key {
			return m, nil
		}
	}
	return schema.Movie{}, fmt.Errorf("%w: %q in %s", ErrNoMovie, title, slug)
}

func (s *Store) Prequels(ctx context.Context, slug string) (schema.PrequelMap, error) {
	f, err := s.Franchise(slug)
	if err != nil {
		return nil, err
	}
	return s.prequels.Get(ctx, f.Slug)
}

// Characters returns the shared character map. A store without a
// character file, or whose file is missing, returns an empty map.
func (s *Store) Characters(ctx context.Context) (schema.CharacterMap, error) {
	if s.characterFile == "" {
		return schema.CharacterMap{}, nil
	}
	m, err := s.characters.Get(ctx, s.characterFile)
	if errors.Is(err, source.ErrNotFound) {
		log.Debug("no character map", "file", s.characterFile)
		return schema.CharacterMap{}, nil
	}
	return m, err
}

// Status returns the latest load status of every franchise, in configured
// order. Franchises never loaded are reported without a snapshot.
func (s *Store) Status() []schema.LoadStatus {
	snap := s.status.Snapshot()
	out := make([]schema.LoadStatus, 0, len(s.franchises))
	for _, f := range s.franchises {
		st, ok := snap[f.Slug]
		if !ok {
			st = schema.LoadStatus{Franchise: f.Slug}
		}
		out = append(out, st)
	}
	return out
}

// CachedAt reports when the franchise's movies were last stored in the
// cache, if they are still held.
func (s *Store) CachedAt(slug string) (time.Time, bool) {
	f, err := s.Franchise(slug)
	if err != nil {
		return time.Time{}, false
	}
	return s.movies.StoredAt(f.Slug)
}

func (s *Store) remember(slug string, movies []schema.Movie) {
	s.prev.Store(slug, movies)
}
