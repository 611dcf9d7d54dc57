package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"cinedex/pkg/entities"
	"cinedex/pkg/utils"
)

// Appearances lists the characters appearing in a movie, sorted by name.
func (s *Store) Appearances(ctx context.Context, slug, title string) ([]string, error) {
	m, err := s.Movie(ctx, slug, title)
	if err != nil {
		return nil, err
	}
	chars, err := s.Characters(ctx)
	if err != nil {
		return nil, err
	}

	key := utils.NormalizeTitle(m.Title)
	var out []string
	for name, projects := range chars {
		if slices.ContainsFunc(projects, func(p string) bool { return utils.NormalizeTitle(p) == key }) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Filmography lists a character's projects, each linked to a catalog
// movie when one matches.
func (s *Store) Filmography(ctx context.Context, name string) (entities.Filmography, error) {
	chars, err := s.Characters(ctx)
	if err != nil {
		return entities.Filmography{}, err
	}

	canonical, projects, ok := "", []string(nil), false
	if p, found := chars[name]; found {
		canonical, projects, ok = name, p, true
	} else {
		key := utils.NormalizeTitle(name)
		for n, p := range chars {
			if utils.NormalizeTitle(n) == key {
				canonical, projects, ok = n, p, true
				break
			}
		}
	}
	if !ok {
		return entities.Filmography{}, fmt.Errorf("%w: %q", ErrNoCharacter, name)
	}

	index := map[string]entities.Card{}
	for _, f := range s.franchises {
		movies, err := s.Movies(ctx, f.Slug)
		if err != nil {
			log.Warn("filmography skipped franchise", "franchise", f.Slug, "error", err)
			continue
		}
		for _, m := range movies {
			k := utils.NormalizeTitle(m.Title)
			if _, dup := index[k]; !dup {
				index[k] = entities.CardOf(m)
			}
		}
	}

	out := entities.Filmography{Character: canonical, Appearances: make([]entities.Appearance, 0, len(projects))}
	for _, p := range projects {
		a := entities.Appearance{Project: p}
		if c, ok := index[utils.NormalizeTitle(p)]; ok {
			a.Movie = &c
		}
		out.Appearances = append(out.Appearances, a)
	}
	return out, nil
}
