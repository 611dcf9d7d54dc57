package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"cinedex/pkg/catalog"
	"cinedex/pkg/entities"
	"cinedex/pkg/poster"
	"cinedex/pkg/schema"
)

// param returns a path parameter with any remaining percent-encoding
// removed, so "Spider-Man%3A%20Homecoming" reaches the catalog intact.
func param(c echo.Context, name string) string {
	v := c.Param(name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (s *Server) handleGetRoot(c echo.Context) error {
	statuses := s.Catalog.Status()
	failed := 0
	for _, st := range statuses {
		if !st.OK() {
			failed++
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"service":    "cinedex",
		"status":     "ok",
		"franchises": len(statuses),
		"failed":     failed,
	})
}

type franchiseView struct {
	schema.Franchise
	Status   schema.LoadStatus `json:"status"`
	CachedAt *time.Time        `json:"cached_at,omitempty"`
}

// GET /api/franchises
func (s *Server) handleGetFranchises(c echo.Context) error {
	statuses := s.Catalog.Status()
	fs := s.Catalog.Franchises()
	out := make([]franchiseView, 0, len(fs))
	for i, f := range fs {
		v := franchiseView{Franchise: f, Status: statuses[i]}
		if at, ok := s.Catalog.CachedAt(f.Slug); ok {
			v.CachedAt = &at
		}
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, out)
}

type moviesResp struct {
	Franchise string          `json:"franchise"`
	Count     int             `json:"count"`
	Movies    []entities.Card `json:"movies"`
}

// GET /api/franchises/:franchise/movies?q=&tier=&phase=&from=&to=&sort=&order=
func (s *Server) handleGetMovies(c echo.Context) error {
	q, err := parseQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slug := param(c, "franchise")
	movies, err := s.Catalog.Browse(c.Request().Context(), slug, q)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, moviesResp{Franchise: slug, Count: len(movies), Movies: entities.Cards(movies)})
}

func parseQuery(c echo.Context) (catalog.Query, error) {
	q := catalog.Query{
		Text:  strings.TrimSpace(c.QueryParam("q")),
		Tier:  strings.TrimSpace(c.QueryParam("tier")),
		Phase: strings.TrimSpace(c.QueryParam("phase")),
	}

	var err error
	if q.From, err = yearParam(c, "from"); err != nil {
		return q, err
	}
	if q.To, err = yearParam(c, "to"); err != nil {
		return q, err
	}
	if q.From > 0 && q.To > 0 && q.From > q.To {
		return q, errors.New("from is after to")
	}
	if q.Sort, err = catalog.ParseSortKey(c.QueryParam("sort")); err != nil {
		return q, err
	}

	switch strings.ToLower(strings.TrimSpace(c.QueryParam("order"))) {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return q, errors.New("order must be asc or desc")
	}
	return q, nil
}

func yearParam(c echo.Context, name string) (int, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 9999 {
		return 0, errors.New(name + " must be a year")
	}
	return n, nil
}

type movieResp struct {
	Movie        schema.Movie           `json:"movie"`
	ViewingOrder *entities.ViewingOrder `json:"viewing_order,omitempty"`
	Characters   []string               `json:"characters"`
}

// GET /api/franchises/:franchise/movies/:title
func (s *Server) handleGetMovie(c echo.Context) error {
	ctx := c.Request().Context()
	slug, title := param(c, "franchise"), param(c, "title")

	m, err := s.Catalog.Movie(ctx, slug, title)
	if err != nil {
		return fail(err)
	}

	resp := movieResp{Movie: m, Characters: []string{}}
	if vo, err := s.Catalog.ViewingOrder(ctx, slug, m.Title); err != nil {
		log.Warn("viewing order unavailable", "franchise", slug, "title", m.Title, "error", err)
	} else {
		resp.ViewingOrder = &vo
	}
	if chars, err := s.Catalog.Appearances(ctx, slug, m.Title); err != nil {
		log.Warn("characters unavailable", "franchise", slug, "title", m.Title, "error", err)
	} else if chars != nil {
		resp.Characters = chars
	}
	return c.JSON(http.StatusOK, resp)
}

// GET /api/franchises/:franchise/movies/:title/prequels
func (s *Server) handleGetPrequels(c echo.Context) error {
	slug, title := param(c, "franchise"), param(c, "title")
	prequels, err := s.Catalog.AllPrequels(c.Request().Context(), slug, title)
	if err != nil {
		return fail(err)
	}
	if prequels == nil {
		prequels = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"title": title, "prequels": prequels})
}

// GET /api/franchises/:franchise/movies/:title/viewing-order
func (s *Server) handleGetViewingOrder(c echo.Context) error {
	vo, err := s.Catalog.ViewingOrder(c.Request().Context(), param(c, "franchise"), param(c, "title"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, vo)
}

// GET /api/franchises/:franchise/phases
func (s *Server) handleGetPhases(c echo.Context) error {
	phases, err := s.Catalog.Phases(c.Request().Context(), param(c, "franchise"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, phases)
}

// GET /api/franchises/:franchise/tiers
func (s *Server) handleGetTiers(c echo.Context) error {
	tiers, err := s.Catalog.Tiers(c.Request().Context(), param(c, "franchise"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, tiers)
}

// GET /api/search?q=&limit=
func (s *Server) handleGetSearch(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing q")
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	hits := s.Catalog.Search(c.Request().Context(), q, limit)
	if hits == nil {
		hits = []entities.SearchHit{}
	}
	return c.JSON(http.StatusOK, map[string]any{"query": q, "hits": hits})
}

// GET /api/characters/:name
func (s *Server) handleGetCharacter(c echo.Context) error {
	f, err := s.Catalog.Filmography(c.Request().Context(), param(c, "name"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, f)
}

// GET /api/schema/movie
func (s *Server) handleGetMovieSchema(c echo.Context) error {
	return c.JSON(http.StatusOK, schema.MovieSchema)
}

// GET /posters/:franchise/:file
func (s *Server) handleGetPoster(c echo.Context) error {
	if s.Posters == nil {
		return echo.NewHTTPError(http.StatusNotFound, "posters are not configured")
	}
	data, err := s.Posters.Thumbnail(c.Request().Context(), param(c, "franchise"), param(c, "file"))
	if err != nil {
		if statusOf(err) == http.StatusServiceUnavailable {
			c.Response().Header().Set("Retry-After", "1")
		}
		return fail(err)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Blob(http.StatusOK, poster.ContentType, data)
}
