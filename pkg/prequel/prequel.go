// Package prequel resolves prequel chains and recommends a viewing order.
//
// A prequel map sends a title to its direct prequels. The relation is
// acyclic by convention only; every traversal here tolerates cycles.
package prequel

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"cinedex/pkg/schema"
	"cinedex/pkg/utils"
)

// Strategy names how a viewing order was produced.
type Strategy string

const (
	ByRelease   Strategy = "release"
	Topological Strategy = "topological"
)

// Dates loads release dates keyed by title. It is called once per
// ViewingOrder; an error switches the ordering strategy.
type Dates func(ctx context.Context) (map[string]time.Time, error)

// Order is a recommended viewing order.
type Order struct {
	Title    string
	Prequels []string
	Titles   []string
	Strategy Strategy
}

// Resolver wraps a prequel map with title normalisation, so "spider-man:
// homecoming" finds the "Spider-Man: Homecoming" row.
type Resolver struct {
	m     schema.PrequelMap
	canon map[string]string
}

func NewResolver(m schema.PrequelMap) *Resolver {
	r := &Resolver{m: m, canon: make(map[string]string, len(m))}
	for title, prequels := range m {
		r.addCanon(title)
		for _, p := range prequels {
			r.addCanon(p)
		}
	}
	return r
}

func (r *Resolver) addCanon(title string) {
	key := utils.NormalizeTitle(title)
	// Prefer the spelling used as a row key.
	if cur, ok := r.canon[key]; ok {
		if _, isRow := r.m[cur]; isRow {
			return
		}
	}
	r.canon[key] = title
}

// Canonical returns the spelling of title used in the map.
func (r *Resolver) Canonical(title string) (string, bool) {
	if _, ok := r.m[title]; ok {
		return title, true
	}
	c, ok := r.canon[utils.NormalizeTitle(title)]
	return c, ok
}

func (r *Resolver) direct(title string) []string {
	if c, ok := r.Canonical(title); ok {
		return r.m[c]
	}
	return nil
}

// AllPrequels returns every title reachable from title through prequel
// edges, each exactly once and never title itself. Nodes are expanded only
// on first visit, so cycles terminate. The result is in discovery order.
func AllPrequels(title string, m schema.PrequelMap) []string {
	return NewResolver(m).AllPrequels(title)
}

func (r *Resolver) AllPrequels(title string) []string {
	root := title
	if c, ok := r.Canonical(title); ok {
		root = c
	}
	rootKey := utils.NormalizeTitle(root)

	visited := map[string]bool{rootKey: true}
	var out []string
	var visit func(string)
	visit = func(t string) {
		for _, p := range r.direct(t) {
			if c, ok := r.Canonical(p); ok {
				p = c
			}
			key := utils.NormalizeTitle(p)
			if visited[key] {
				continue
			}
			visited[key] = true
			out = append(out, p)
			visit(p)
		}
	}
	visit(root)
	return out
}

// ViewingOrder orders title and all of its prequels. Release dates from
// dates are the primary key; titles without a date sort as the epoch, i.e.
// first. If dates fails the failure is logged and a topological order over
// the prequel edges is returned instead. The error never reaches the caller.
func ViewingOrder(ctx context.Context, title string, m schema.PrequelMap, dates Dates) Order {
	return NewResolver(m).ViewingOrder(ctx, title, dates)
}

func (r *Resolver) ViewingOrder(ctx context.Context, title string, dates Dates) Order {
	root := title
	if c, ok := r.Canonical(title); ok {
		root = c
	}
	prequels := r.AllPrequels(root)
	set := append(slices.Clone(prequels), root)

	o := Order{Title: root, Prequels: prequels}

	var (
		known map[string]time.Time
		err   error
	)
	if dates == nil {
		err = errNoDates
	} else {
		known, err = dates(ctx)
	}
	if err != nil {
		log.Warn("release dates unavailable, falling back to prequel order", "title", root, "error", err)
		o.Titles = r.topological(set)
		o.Strategy = Topological
		return o
	}

	o.Titles = byRelease(set, known)
	o.Strategy = ByRelease
	return o
}

var errNoDates = errors.New("prequel: no release date source")

func byRelease(set []string, known map[string]time.Time) []string {
	norm := make(map[string]time.Time, len(known))
	for t, d := range known {
		norm[utils.NormalizeTitle(t)] = d
	}
	epoch := time.Unix(0, 0).UTC()
	when := func(t string) time.Time {
		if d, ok := known[t]; ok && !d.IsZero() {
			return d
		}
		if d, ok := norm[utils.NormalizeTitle(t)]; ok && !d.IsZero() {
			return d
		}
		return epoch
	}

	out := slices.Clone(set)
	sort.SliceStable(out, func(i, j int) bool {
		return when(out[i]).Before(when(out[j]))
	})
	return out
}

// topological runs Kahn's algorithm over the prequel-before edges inside
// set. Ready nodes are taken in lexical order. Nodes stuck on a cycle are
// appended in lexical order so every title is still emitted exactly once.
func (r *Resolver) topological(set []string) []string {
	inSet := make(map[string]string, len(set))
	for _, t := range set {
		inSet[utils.NormalizeTitle(t)] = t
	}

	inDegree := make(map[string]int, len(set))
	next := make(map[string][]string, len(set))
	for _, t := range set {
		seen := map[string]bool{}
		for _, p := range r.direct(t) {
			pt, ok := inSet[utils.NormalizeTitle(p)]
			if !ok || pt == t || seen[pt] {
				continue
			}
			seen[pt] = true
			next[pt] = append(next[pt], t)
			inDegree[t]++
		}
	}

	var queue []string
	for _, t := range set {
		if inDegree[t] == 0 {
			queue = append(queue, t)
		}
	}
	slices.Sort(queue)

	out := make([]string, 0, len(set))
	emitted := make(map[string]bool, len(set))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		out = append(out, node)
		emitted[node] = true

		var ready []string
		for _, n := range next[node] {
			inDegree[n]--
			if inDegree[n] == 0 {
				ready = append(ready, n)
			}
		}
		slices.Sort(ready)
		queue = append(queue, ready...)
	}

	if len(out) < len(set) {
		var rest []string
		for _, t := range set {
			if !emitted[t] {
				rest = append(rest, t)
			}
		}
		slices.Sort(rest)
		out = append(out, rest...)
	}
	return out
}
