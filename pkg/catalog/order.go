package catalog

import (
	"context"
	"fmt"
	"time"

	"cinedex/pkg/entities"
	"cinedex/pkg/metrics"
	"cinedex/pkg/prequel"
	"cinedex/pkg/schema"
	"cinedex/pkg/sheet"
	"cinedex/pkg/utils"
)

// AllPrequels returns every transitive prequel of a movie.
func (s *Store) AllPrequels(ctx context.Context, slug, title string) ([]string, error) {
	m, err := s.Prequels(ctx, slug)
	if err != nil {
		return nil, err
	}
	return prequel.AllPrequels(title, m), nil
}

// ViewingOrder recommends an order for watching a movie and its prequels.
// Release dates come from the franchise dataset; if that dataset cannot be
// loaded the resolver falls back to prequel order on its own.
func (s *Store) ViewingOrder(ctx context.Context, slug, title string) (entities.ViewingOrder, error) {
	f, err := s.Franchise(slug)
	if err != nil {
		return entities.ViewingOrder{}, err
	}
	m, err := s.Prequels(ctx, f.Slug)
	if err != nil {
		return entities.ViewingOrder{}, err
	}

	var byKey map[string]schema.Movie
	dates := func(ctx context.Context) (map[string]time.Time, error) {
		movies, err := s.Movies(ctx, f.Slug)
		if err != nil {
			return nil, err
		}
		byKey = make(map[string]schema.Movie, len(movies))
		out := make(map[string]time.Time, len(movies))
		for _, mv := range movies {
			byKey[mv.Title] = mv
			if !mv.Released.IsZero() {
				out[mv.Title] = mv.Released.Time
			}
		}
		return out, nil
	}

	r := prequel.NewResolver(m)
	o := r.ViewingOrder(ctx, title, dates)
	if _, inMap := r.Canonical(title); !inMap && byKey != nil && !hasTitle(byKey, title) {
		return entities.ViewingOrder{}, fmt.Errorf("%w: %q in %s", ErrNoMovie, title, f.Slug)
	}
	metrics.ViewingOrders.WithLabelValues(string(o.Strategy)).Inc()

	vo := entities.ViewingOrder{
		Title:    o.Title,
		Strategy: string(o.Strategy),
		Prequels: o.Prequels,
		Order:    make([]entities.Card, 0, len(o.Titles)),
	}
	for _, t := range o.Titles {
		vo.Order = append(vo.Order, s.cardFor(f.Slug, t, byKey))
	}
	return vo, nil
}

// cardFor builds a card for a title in the viewing order, falling back to
// a bare card when the title has no dataset row.
func (s *Store) cardFor(slug, title string, byKey map[string]schema.Movie) entities.Card {
	if mv, ok := byKey[title]; ok {
		return entities.CardOf(mv)
	}
	key := utils.NormalizeTitle(title)
	for _, mv := range byKey {
		if utils.NormalizeTitle(mv.Title) == key {
			return entities.CardOf(mv)
		}
	}
	return entities.Card{Title: title, Franchise: slug, Poster: sheet.PosterFile(title)}
}

func hasTitle(byKey map[string]schema.Movie, title string) bool {
	if _, ok := byKey[title]; ok {
		return true
	}
	key := utils.NormalizeTitle(title)
	for t := range byKey {
		if utils.NormalizeTitle(t) == key {
			return true
		}
	}
	return false
}
