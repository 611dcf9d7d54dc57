// Package diff compares two loads of a franchise catalog.
package diff

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/aryann/difflib"

	"cinedex/pkg/schema"
	"cinedex/pkg/utils"
)

type ChangeType int

const (
	Unchanged ChangeType = iota
	Added
	Removed
	Modified
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unchanged"
	}
}

func (c ChangeType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

type Op int

const (
	Equal Op = iota
	Insert
	Delete
)

type WordDelta struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

type StringDiff struct {
	Old    string      `json:"old"`
	New    string      `json:"new"`
	Deltas []WordDelta `json:"deltas"`
}

type FieldDiff struct {
	Path string     `json:"path"`
	Str  StringDiff `json:"diff"`
}

type MovieDiff struct {
	Title      string      `json:"title"`
	OldTitle   string      `json:"old_title,omitempty"`
	State      ChangeType  `json:"state"`
	FieldDiffs []FieldDiff `json:"fields,omitempty"`
}

type CatalogDiff struct {
	Franchise string      `json:"franchise"`
	Movies    []MovieDiff `json:"movies"`
}

// renameThreshold is the title similarity above which a removed and an
// added movie are paired as one renamed movie.
const renameThreshold = 0.85

// Changed reports whether anything other than Unchanged entries is present.
func (d CatalogDiff) Changed() bool {
	return slices.ContainsFunc(d.Movies, func(m MovieDiff) bool { return m.State != Unchanged })
}

// Counts returns the number of entries per change type.
func (d CatalogDiff) Counts() map[ChangeType]int {
	out := map[ChangeType]int{}
	for _, m := range d.Movies {
		out[m.State]++
	}
	return out
}

func Catalogs(franchise string, oldM, newM []schema.Movie) CatalogDiff {
	omap := map[string]schema.Movie{}
	nmap := map[string]schema.Movie{}
	keys := map[string]struct{}{}

	for _, m := range oldM {
		k := utils.NormalizeTitle(m.Title)
		omap[k] = m
		keys[k] = struct{}{}
	}
	for _, m := range newM {
		k := utils.NormalizeTitle(m.Title)
		nmap[k] = m
		keys[k] = struct{}{}
	}

	var removed, added []schema.Movie
	out := make([]MovieDiff, 0, len(keys))
	for k := range keys {
		o, okO := omap[k]
		n, okN := nmap[k]
		switch {
		case okO && !okN:
			removed = append(removed, o)
		case !okO && okN:
			added = append(added, n)
		default:
			fd := movieFieldDiffs(o, n)
			state := Unchanged
			if len(fd) > 0 {
				state = Modified
			}
			out = append(out, MovieDiff{Title: n.Title, State: state, FieldDiffs: fd})
		}
	}

	// pair renames by title similarity before declaring adds/dels
	slices.SortFunc(removed, byTitle)
	slices.SortFunc(added, byTitle)
	usedA := make([]bool, len(added))
	for _, o := range removed {
		bestJ, best := -1, 0.0
		for j, n := range added {
			if usedA[j] {
				continue
			}
			s := utils.Similarity(utils.NormalizeTitle(o.Title), utils.NormalizeTitle(n.Title))
			if s > best {
				bestJ, best = j, s
			}
		}
		if bestJ >= 0 && best >= renameThreshold {
			n := added[bestJ]
			usedA[bestJ] = true
			fd := append([]FieldDiff{{Path: "Title", Str: strDiff(o.Title, n.Title)}}, movieFieldDiffs(o, n)...)
			out = append(out, MovieDiff{Title: n.Title, OldTitle: o.Title, State: Modified, FieldDiffs: fd})
			continue
		}
		out = append(out, MovieDiff{Title: o.Title, State: Removed})
	}
	for j, n := range added {
		if usedA[j] {
			continue
		}
		out = append(out, MovieDiff{Title: n.Title, State: Added, FieldDiffs: addedFields(n)})
	}

	slices.SortFunc(out, func(a, b MovieDiff) int { return cmp.Compare(a.Title, b.Title) })
	return CatalogDiff{Franchise: franchise, Movies: out}
}

func byTitle(a, b schema.Movie) int { return cmp.Compare(a.Title, b.Title) }

func scoreText(s schema.Score) string {
	if s.Percent != nil {
		return strconv.FormatFloat(*s.Percent, 'f', -1, 64) + "%"
	}
	return s.Raw
}

type field struct {
	path string
	get  func(schema.Movie) string
}

var movieFields = []field{
	{"Released", func(m schema.Movie) string {
		if m.Released.IsZero() {
			return m.ReleaseRaw
		}
		return m.Released.String()
	}},
	{"Tier", func(m schema.Movie) string { return m.Tier }},
	{"Phase", func(m schema.Movie) string { return m.Phase }},
	{"Critic", func(m schema.Movie) string { return scoreText(m.Critic) }},
	{"Audience", func(m schema.Movie) string { return scoreText(m.Audience) }},
	{"Trailer", func(m schema.Movie) string { return m.Trailer }},
	{"Poster", func(m schema.Movie) string { return m.Poster }},
}

func movieFieldDiffs(o, n schema.Movie) []FieldDiff {
	var fd []FieldDiff
	for _, f := range movieFields {
		a, b := f.get(o), f.get(n)
		if a == b {
			continue
		}
		fd = append(fd, FieldDiff{Path: f.path, Str: strDiff(a, b)})
	}
	return fd
}

func addedFields(n schema.Movie) []FieldDiff {
	var fd []FieldDiff
	for _, f := range movieFields {
		if v := f.get(n); v != "" {
			fd = append(fd, FieldDiff{Path: f.path, Str: strEq("", v)})
		}
	}
	return fd
}

func strEq(a, b string) StringDiff {
	return StringDiff{Old: a, New: b, Deltas: []WordDelta{{Op: Insert, Text: b}}}
}

func strDiff(a, b string) StringDiff {
	if a == b {
		return StringDiff{Old: a, New: b, Deltas: []WordDelta{{Op: Equal, Text: a}}}
	}
	at := utils.TokenizeWords(a)
	bt := utils.TokenizeWords(b)
	recs := difflib.Diff(at, bt)
	deltas := make([]WordDelta, 0, len(recs))
	for _, r := range recs {
		switch r.Delta {
		case difflib.Common:
			deltas = append(deltas, WordDelta{Op: Equal, Text: r.Payload})
		case difflib.LeftOnly:
			deltas = append(deltas, WordDelta{Op: Delete, Text: r.Payload})
		case difflib.RightOnly:
			deltas = append(deltas, WordDelta{Op: Insert, Text: r.Payload})
		}
	}
	return StringDiff{Old: a, New: b, Deltas: coalesceSpaces(deltas)}
}

func coalesceSpaces(in []WordDelta) []WordDelta {
	out := make([]WordDelta, 0, len(in))
	flush := func(op Op, buf *strings.Builder) {
		if buf.Len() == 0 {
			return
		}
		out = append(out, WordDelta{Op: op, Text: buf.String()})
		buf.Reset()
	}
	var curOp Op = -1
	var buf strings.Builder
	for _, d := range in {
		if strings.TrimSpace(d.Text) == "" && d.Op == Equal {
			buf.WriteString(d.Text)
			continue
		}
		if curOp != d.Op && curOp != -1 {
			flush(curOp, &buf)
		}
		if curOp != d.Op {
			curOp = d.Op
		}
		buf.WriteString(d.Text)
	}
	flush(curOp, &buf)
	return out
}

const (
	ansiReset = "\x1b[0m"
	fgGreen   = "\x1b[32m"
	fgRed     = "\x1b[31m"
	fgYellow  = "\x1b[33m"
	fgCyan    = "\x1b[36m"
	faint     = "\x1b[2m"
	uline     = "\x1b[4m"
	strike    = "\x1b[9m"
)

func renderStringDiff(sd StringDiff) string {
	var b strings.Builder
	for _, d := range sd.Deltas {
		switch d.Op {
		case Equal:
			b.WriteString(d.Text)
		case Insert:
			fmt.Fprintf(&b, "%s%s%s%s", fgGreen, uline, d.Text, ansiReset)
		case Delete:
			fmt.Fprintf(&b, "%s%s%s%s", fgRed, strike, d.Text, ansiReset)
		}
	}
	return b.String()
}

var tags = map[ChangeType]string{
	Added:     fgGreen + "[+]" + ansiReset,
	Removed:   fgRed + "[-]" + ansiReset,
	Modified:  fgYellow + "[~]" + ansiReset,
	Unchanged: faint + "[=]" + ansiReset,
}

// Print renders the changed movies; unchanged ones are summarised in a count.
func (d CatalogDiff) Print(w io.Writer) {
	fmt.Fprintln(w, fgCyan+d.Franchise+ansiReset)
	unchanged := 0
	for _, m := range d.Movies {
		if m.State == Unchanged {
			unchanged++
			continue
		}
		name := m.Title
		if m.OldTitle != "" {
			name = m.OldTitle + " -> " + m.Title
		}
		fmt.Fprintf(w, "  %s %s\n", tags[m.State], name)
		for _, f := range m.FieldDiffs {
			fmt.Fprintf(w, "    %s: %s\n", f.Path, renderStringDiff(f.Str))
		}
	}
	if unchanged > 0 {
		fmt.Fprintf(w, "  %s%d unchanged%s\n", faint, unchanged, ansiReset)
	}
}
