// Package sheet reads the franchise CSV datasets: movie metadata, the
// prequel flag matrix and the character appearance matrix.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"cinedex/pkg/schema"
	"cinedex/pkg/utils"
)

var ErrNoTitleColumn = errors.New("sheet: no title column")

type column int

const (
	colUnknown column = iota
	colTitle
	colRelease
	colCritic
	colAudience
	colTier
	colPhase
	colTrailer
	colPoster
)

var headerAliases = map[string]column{
	"title":           colTitle,
	"movie":           colTitle,
	"movie title":     colTitle,
	"name":            colTitle,
	"film":            colTitle,
	"release date":    colRelease,
	"release":         colRelease,
	"released":        colRelease,
	"date":            colRelease,
	"us release date": colRelease,
	"critic":          colCritic,
	"critics":         colCritic,
	"critic score":    colCritic,
	"critic rating":   colCritic,
	"rotten tomatoes": colCritic,
	"rt":              colCritic,
	"tomatometer":     colCritic,
	"audience":        colAudience,
	"audience score":  colAudience,
	"audience rating": colAudience,
	"popcornmeter":    colAudience,
	"tier":            colTier,
	"my tier":         colTier,
	"my rating":       colTier,
	"rating":          colTier,
	"rank":            colTier,
	"personal rating": colTier,
	"phase":           colPhase,
	"saga":            colPhase,
	"era":             colPhase,
	"group":           colPhase,
	"trailer":         colTrailer,
	"trailer url":     colTrailer,
	"trailer link":    colTrailer,
	"youtube":         colTrailer,
	"poster":          colPoster,
	"poster url":      colPoster,
	"image":           colPoster,
	"poster image":    colPoster,
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	return cr
}

func cleanHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.TrimSpace(h)
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func readHeader(cr *csv.Reader) ([]string, error) {
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("sheet: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("sheet: read header: %w", err)
	}
	for i := range header {
		header[i] = cleanHeader(header[i])
	}
	return header, nil
}

// ParseMovies reads a franchise movie dataset. Rows without a title are
// skipped; duplicate titles keep the first row. Both are reported as
// warnings rather than errors.
func ParseMovies(r io.Reader, franchise string) ([]schema.Movie, []string, error) {
	cr := newReader(r)
	header, err := readHeader(cr)
	if err != nil {
		return nil, nil, err
	}

	cols := make([]column, len(header))
	titleIdx := -1
	for i, h := range header {
		c := headerAliases[strings.ToLower(h)]
		// The first column claiming a role wins; later aliases become extras.
		for j := 0; j < i; j++ {
			if c != colUnknown && cols[j] == c {
				c = colUnknown
				break
			}
		}
		cols[i] = c
		if c == colTitle {
			titleIdx = i
		}
	}
	if titleIdx < 0 {
		return nil, nil, ErrNoTitleColumn
	}

	var (
		movies   []schema.Movie
		warnings []string
		seen     = map[string]int{}
		line     = 1
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, warnings, fmt.Errorf("sheet: line %d: %w", line, err)
		}

		title := cell(rec, titleIdx)
		if title == "" {
			if strings.TrimSpace(strings.Join(rec, "")) != "" {
				warnings = append(warnings, fmt.Sprintf("line %d: missing title, row skipped", line))
			}
			continue
		}
		key := utils.NormalizeTitle(title)
		if first, dup := seen[key]; dup {
			warnings = append(warnings, fmt.Sprintf("line %d: duplicate title %q (first on line %d), row skipped", line, title, first))
			continue
		}
		seen[key] = line

		m := schema.Movie{Title: title, Franchise: franchise}
		for i, c := range cols {
			v := cell(rec, i)
			switch c {
			case colRelease:
				m.ReleaseRaw = v
				if t, ok := ParseDate(v); ok {
					m.Released = schema.NewDate(t)
				} else if v != "" {
					warnings = append(warnings, fmt.Sprintf("line %d: unrecognised release date %q", line, v))
				}
			case colCritic:
				m.Critic = toScore(v)
			case colAudience:
				m.Audience = toScore(v)
			case colTier:
				m.Tier = NormalizeTier(v)
			case colPhase:
				m.Phase = v
			case colTrailer:
				m.Trailer = v
			case colPoster:
				m.Poster = v
			case colUnknown:
				if v == "" || header[i] == "" {
					continue
				}
				if m.Extra == nil {
					m.Extra = map[string]string{}
				}
				m.Extra[header[i]] = v
			}
		}
		if m.Poster == "" {
			m.Poster = PosterFile(title)
		}
		movies = append(movies, m)
	}
	return movies, warnings, nil
}

func toScore(v string) schema.Score {
	s := schema.Score{Raw: v}
	if p, ok := ParseScore(v); ok {
		s.Percent = &p
	}
	return s
}

// PosterFile is the poster file name used when a dataset carries no URL.
func PosterFile(title string) string {
	return utils.Slug(title) + ".jpg"
}

// NormalizeTier upper-cases a tier label and trims decoration ("s tier" -> "S").
func NormalizeTier(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	up := strings.ToUpper(v)
	if strings.HasSuffix(up, "TIER") {
		up = strings.TrimSpace(strings.TrimSuffix(up, "TIER"))
		up = strings.TrimSpace(strings.TrimSuffix(up, "-"))
	}
	if up == "" {
		return strings.ToUpper(v)
	}
	return up
}

// ParsePrequels reads the prequel flag matrix: each row is a movie, every
// other column header is a candidate prequel, "1" marks a direct prequel.
func ParsePrequels(r io.Reader) (schema.PrequelMap, error) {
	cr := newReader(r)
	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	out := schema.PrequelMap{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet: prequels: %w", err)
		}
		movie := cell(rec, 0)
		if movie == "" {
			continue
		}
		key := utils.NormalizeTitle(movie)
		prequels := out[movie]
		for i := 1; i < len(header); i++ {
			candidate := header[i]
			if candidate == "" || cell(rec, i) != "1" {
				continue
			}
			if utils.NormalizeTitle(candidate) == key {
				continue
			}
			prequels = append(prequels, candidate)
		}
		out[movie] = prequels
	}
	return out, nil
}

// ParseCharacters reads the character appearance matrix: characters as
// rows, projects as columns, truthy cells mark an appearance.
func ParseCharacters(r io.Reader) (schema.CharacterMap, error) {
	cr := newReader(r)
	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	out := schema.CharacterMap{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet: characters: %w", err)
		}
		name := cell(rec, 0)
		if name == "" {
			continue
		}
		projects := out[name]
		for i := 1; i < len(header); i++ {
			if header[i] != "" && utils.IsTruthy(cell(rec, i)) {
				projects = append(projects, header[i])
			}
		}
		out[name] = projects
	}
	return out, nil
}
