package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"cinedex/pkg/entities"
	"cinedex/pkg/schema"
	"cinedex/pkg/utils"
)

type SortKey string

const (
	SortRelease  SortKey = "release"
	SortTitle    SortKey = "title"
	SortCritic   SortKey = "critic"
	SortAudience SortKey = "audience"
	SortTier     SortKey = "tier"
)

// ParseSortKey accepts the query-string spelling of a sort key; blank
// means release order.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortRelease, nil
	case SortRelease, SortTitle, SortCritic, SortAudience, SortTier:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// Query filters and orders a franchise listing. Zero fields do not filter.
type Query struct {
	Text  string
	Tier  string
	Phase string
	From  int // first release year, inclusive
	To    int // last release year, inclusive
	Sort  SortKey
	Desc  bool
}

func (q Query) match(m schema.Movie) bool {
	if q.Text != "" && !strings.Contains(utils.NormalizeTitle(m.Title), utils.NormalizeTitle(q.Text)) {
		return false
	}
	if q.Tier != "" && !strings.EqualFold(m.Tier, strings.TrimSpace(q.Tier)) {
		return false
	}
	if q.Phase != "" && utils.NormalizeTitle(m.Phase) != utils.NormalizeTitle(q.Phase) {
		return false
	}
	if q.From > 0 && (m.Year() == 0 || m.Year() < q.From) {
		return false
	}
	if q.To > 0 && (m.Year() == 0 || m.Year() > q.To) {
		return false
	}
	return true
}

// Browse lists a franchise's movies after filtering and sorting.
func (s *Store) Browse(ctx context.Context, slug string, q Query) ([]schema.Movie, error) {
	movies, err := s.Movies(ctx, slug)
	if err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(movies, func(m schema.Movie) bool { return !q.match(m) })
	SortMovies(out, q.Sort, q.Desc)
	return out, nil
}

// SortMovies sorts in place. Movies missing the sort value go last in
// either direction; ties fall back to release date then title.
func SortMovies(ms []schema.Movie, key SortKey, desc bool) {
	primary := func(a, b schema.Movie) (int, bool) {
		switch key {
		case SortTitle:
			return cmp.Compare(utils.NormalizeTitle(a.Title), utils.NormalizeTitle(b.Title)), true
		case SortCritic:
			return comparePercent(a.Critic, b.Critic)
		case SortAudience:
			return comparePercent(a.Audience, b.Audience)
		case SortTier:
			an, bn := a.Tier == "", b.Tier == ""
			switch {
			case an && bn:
				return 0, true
			case an:
				return 1, false
			case bn:
				return -1, false
			}
			ra, rb := TierRank(a.Tier), TierRank(b.Tier)
			if ra != rb {
				return cmp.Compare(ra, rb), true
			}
			return cmp.Compare(a.Tier, b.Tier), true
		default:
			return compareRelease(a, b)
		}
	}
	slices.SortStableFunc(ms, func(a, b schema.Movie) int {
		c, both := primary(a, b)
		if !both {
			// one side missing: that side goes last regardless of direction
			return c
		}
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		if c, both := compareRelease(a, b); both && c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
}

// compareRelease reports (order, true) when both dates are known, or
// (missing-last order, false) otherwise.
func compareRelease(a, b schema.Movie) (int, bool) {
	az, bz := a.Released.IsZero(), b.Released.IsZero()
	switch {
	case az && bz:
		return 0, true
	case az:
		return 1, false
	case bz:
		return -1, false
	}
	return a.Released.Compare(b.Released.Time), true
}

func comparePercent(a, b schema.Score) (int, bool) {
	switch {
	case a.Percent == nil && b.Percent == nil:
		return 0, true
	case a.Percent == nil:
		return 1, false
	case b.Percent == nil:
		return -1, false
	}
	return cmp.Compare(*a.Percent, *b.Percent), true
}

// tierOrder is the canonical ranking, best first.
var tierOrder = []string{"SS", "S", "A+", "A", "A-", "B+", "B", "B-", "C+", "C", "C-", "D", "F"}

// Unranked labels movies without a tier.
const Unranked = "Unranked"

// TierRank orders tiers: canonical tiers by position, unknown tiers after
// them, blank last.
func TierRank(tier string) int {
	tier = strings.ToUpper(strings.TrimSpace(tier))
	if tier == "" || tier == strings.ToUpper(Unranked) {
		return len(tierOrder) + 1
	}
	if i := slices.Index(tierOrder, tier); i >= 0 {
		return i
	}
	return len(tierOrder)
}

// Tiers groups a franchise into its tier list. Within a tier, movies are
// in release order.
func (s *Store) Tiers(ctx context.Context, slug string) ([]entities.Tier, error) {
	movies, err := s.Movies(ctx, slug)
	if err != nil {
		return nil, err
	}
	SortMovies(movies, SortRelease, false)

	groups := map[string][]schema.Movie{}
	for _, m := range movies {
		t := m.Tier
		if t == "" {
			t = Unranked
		}
		groups[t] = append(groups[t], m)
	}

	names := make([]string, 0, len(groups))
	for t := range groups {
		names = append(names, t)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(TierRank(a), TierRank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	out := make([]entities.Tier, 0, len(names))
	for _, t := range names {
		out = append(out, entities.Tier{Tier: t, Movies: entities.Cards(groups[t])})
	}
	return out, nil
}

// Phases groups a franchise by phase/saga label, ordered by each group's
// first release. Movies without a label are grouped under "".
func (s *Store) Phases(ctx context.Context, slug string) ([]entities.Phase, error) {
	movies, err := s.Movies(ctx, slug)
	if err != nil {
		return nil, err
	}
	SortMovies(movies, SortRelease, false)

	var order []string
	groups := map[string][]schema.Movie{}
	for _, m := range movies {
		p := strings.TrimSpace(m.Phase)
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], m)
	}

	out := make([]entities.Phase, 0, len(order))
	for _, p := range order {
		out = append(out, entities.Phase{Phase: p, Movies: entities.Cards(groups[p])})
	}
	return out, nil
}
