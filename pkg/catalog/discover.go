package catalog

import (
	"slices"
	"strings"

	"cinedex/pkg/schema"
)

const prequelSuffix = "-prequels.csv"

// Lister is a source that can enumerate its CSV files.
type Lister interface {
	List() ([]string, error)
}

// DiscoverFranchises builds a franchise list from a directory listing.
// Every "<slug>.csv" is a franchise; "<slug>-prequels.csv" attaches to it
// and the character file is skipped.
func DiscoverFranchises(l Lister, characterFile string) ([]schema.Franchise, error) {
	names, err := l.List()
	if err != nil {
		return nil, err
	}

	prequels := map[string]string{}
	var movies []string
	for _, n := range names {
		lower := strings.ToLower(n)
		switch {
		case strings.EqualFold(n, characterFile):
		case strings.HasSuffix(lower, prequelSuffix):
			prequels[strings.TrimSuffix(lower, prequelSuffix)] = n
		default:
			movies = append(movies, n)
		}
	}
	slices.Sort(movies)

	out := make([]schema.Franchise, 0, len(movies))
	for _, n := range movies {
		slug := strings.TrimSuffix(strings.ToLower(n), ".csv")
		out = append(out, schema.Franchise{
			Slug:     slug,
			Name:     displayName(slug),
			Movies:   n,
			Prequels: prequels[slug],
		})
	}
	return out, nil
}

// displayName turns "star-wars" into "Star Wars".
func displayName(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
