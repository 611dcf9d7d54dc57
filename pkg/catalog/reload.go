package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"cinedex/pkg/diff"
	"cinedex/pkg/metrics"
	"cinedex/pkg/schema"
	"cinedex/pkg/utils"
)

// reloadConcurrency bounds parallel dataset fetches during a reload.
const reloadConcurrency = 4

type ReloadResult struct {
	ID        string              `json:"id"`
	StartedAt time.Time           `json:"started_at"`
	Duration  string              `json:"duration"`
	Statuses  []schema.LoadStatus `json:"statuses"`
	Diffs     []diff.CatalogDiff  `json:"diffs"`
}

// Failed returns the number of franchises that did not load.
func (r ReloadResult) Failed() int {
	n := 0
	for _, st := range r.Statuses {
		if !st.OK() {
			n++
		}
	}
	return n
}

// Reload refetches every franchise concurrently and drops the cached
// prequel and character maps. A franchise that fails keeps serving its
// previous data (if still cached) and reports the error in its status.
// progress, if non-nil, is called once per franchise as it finishes.
func (s *Store) Reload(ctx context.Context, progress func(schema.LoadStatus)) ReloadResult {
	metrics.Reloads.Inc()
	res := ReloadResult{ID: ksuid.New().String(), StartedAt: time.Now().UTC()}

	s.prequels.Forget()
	s.characters.Forget()

	var mu sync.Mutex
	statuses := make([]schema.LoadStatus, len(s.franchises))
	diffs := make([]*diff.CatalogDiff, len(s.franchises))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reloadConcurrency)
	for i, f := range s.franchises {
		g.Go(func() error {
			st, d := s.reloadOne(gctx, f)
			mu.Lock()
			statuses[i] = st
			diffs[i] = d
			if progress != nil {
				progress(st)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res.Statuses = statuses
	for _, d := range diffs {
		if d != nil {
			res.Diffs = append(res.Diffs, *d)
		}
	}
	res.Duration = time.Since(res.StartedAt).Round(time.Millisecond).String()
	log.Info("catalog reloaded", "id", res.ID, "franchises", len(statuses), "failed", res.Failed(), "took", res.Duration)
	return res
}

// ReloadFranchise refetches one franchise and its prequel map.
func (s *Store) ReloadFranchise(ctx context.Context, slug string) (schema.LoadStatus, *diff.CatalogDiff, error) {
	f, err := s.Franchise(slug)
	if err != nil {
		return schema.LoadStatus{}, nil, err
	}
	if f.Prequels != "" {
		if _, err := s.prequels.Force(ctx, f.Slug); err != nil {
			log.Warn("reloading prequel map failed", "franchise", f.Slug, "error", err)
		}
	}
	st, d := s.reloadOne(ctx, f)
	return st, d, nil
}

func (s *Store) reloadOne(ctx context.Context, f schema.Franchise) (schema.LoadStatus, *diff.CatalogDiff) {
	old, hadOld := s.prev.Load(f.Slug)
	if !hadOld {
		if ds, ok := s.movies.Peek(f.Slug); ok {
			old, hadOld = ds.Movies, true
		}
	}
	ds, err := s.movies.Force(ctx, f.Slug)
	if err != nil {
		st, ok := s.status.Load(f.Slug)
		if !ok || st.Error == nil {
			st = schema.LoadStatus{Franchise: f.Slug, LoadedAt: time.Now().UTC(), Error: err}
		}
		return st, nil
	}
	s.remember(f.Slug, ds.Movies)

	st, _ := s.status.Load(f.Slug)
	if !hadOld {
		return st, nil
	}
	d := diff.Catalogs(f.Slug, old, ds.Movies)
	return st, &d
}

// State is the persisted baseline used to diff the first reload after a
// restart.
type State struct {
	SavedAt  time.Time                 `json:"saved_at"`
	Movies   map[string][]schema.Movie `json:"movies"`
	Statuses []schema.LoadStatus       `json:"statuses"`
}

// SaveState writes the last good movie lists and statuses to path.
func (s *Store) SaveState(path string) error {
	return utils.Save(path, State{
		SavedAt:  time.Now().UTC(),
		Movies:   s.prev.Snapshot(),
		Statuses: s.Status(),
	})
}

// LoadState restores a baseline written by SaveState. Entries for
// franchises that are no longer configured are ignored.
func (s *Store) LoadState(path string) error {
	st, err := utils.Load[State](path)
	if err != nil {
		return err
	}
	for slug, movies := range st.Movies {
		if _, ok := s.bySlug[slug]; ok {
			s.prev.Store(slug, movies)
		}
	}
	log.Info("restored catalog baseline", "path", path, "franchises", len(st.Movies), "saved_at", st.SavedAt)
	return nil
}
