package catalog

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"cinedex/pkg/entities"
	"cinedex/pkg/utils"
)

const (
	// fuzzyThreshold is the minimum title similarity for a non-substring hit.
	fuzzyThreshold = 0.6
	defaultLimit   = 20
)

// Search looks for q across every franchise. Titles containing q rank
// before fuzzy matches. Franchises that fail to load are skipped.
func (s *Store) Search(ctx context.Context, q string, limit int) []entities.SearchHit {
	key := utils.NormalizeTitle(q)
	if key == "" {
		return nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	var hits []entities.SearchHit
	for _, f := range s.franchises {
		movies, err := s.Movies(ctx, f.Slug)
		if err != nil {
			log.Warn("search skipped franchise", "franchise", f.Slug, "error", err)
			continue
		}
		for _, m := range movies {
			title := utils.NormalizeTitle(m.Title)
			if title == "" {
				continue
			}
			if strings.Contains(title, key) {
				hits = append(hits, entities.SearchHit{
					Card:  entities.CardOf(m),
					Score: float64(len(key)) / float64(len(title)),
					Exact: true,
				})
				continue
			}
			score := max(utils.Similarity(title, key), bestWindow(title, key))
			if score >= fuzzyThreshold {
				hits = append(hits, entities.SearchHit{Card: entities.CardOf(m), Score: score})
			}
		}
	}

	slices.SortStableFunc(hits, func(a, b entities.SearchHit) int {
		if a.Exact != b.Exact {
			if a.Exact {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// bestWindow compares key against every run of words in title with the
// same word count, so a typo in "spidr man" still finds a long title.
func bestWindow(title, key string) float64 {
	tw := strings.Fields(title)
	n := len(strings.Fields(key))
	if n == 0 || n >= len(tw) {
		return 0
	}
	best := 0.0
	for i := 0; i+n <= len(tw); i++ {
		best = max(best, utils.Similarity(strings.Join(tw[i:i+n], " "), key))
	}
	// A window match is weaker evidence than a whole-title match.
	return best * 0.9
}
