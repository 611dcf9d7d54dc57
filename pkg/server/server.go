package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/ksuid"

	"cinedex/pkg/catalog"
	"cinedex/pkg/metrics"
	"cinedex/pkg/poster"
	"cinedex/pkg/utils"
)

type Server struct {
	Echo    *echo.Echo
	Catalog *catalog.Store
	Posters *poster.Service
	Ctx     context.Context

	// StateFile, when set, receives the catalog baseline on shutdown.
	StateFile string
}

func NewServer(ctx context.Context, store *catalog.Store, posters *poster.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return ksuid.New().String() },
	}))
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())

	s := &Server{
		Echo:    e,
		Catalog: store,
		Posters: posters,
		Ctx:     ctx,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/", s.handleGetRoot)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	s.Echo.GET("/posters/:franchise/:file", s.handleGetPoster)

	api := s.Echo.Group("/api")
	api.GET("/franchises", s.handleGetFranchises)
	api.GET("/search", s.handleGetSearch)
	api.GET("/characters/:name", s.handleGetCharacter)
	api.GET("/schema/movie", s.handleGetMovieSchema)
	api.POST("/reload", s.handlePostReload) // SSE: status per franchise, then done

	f := api.Group("/franchises/:franchise")
	f.GET("/movies", s.handleGetMovies)
	f.GET("/movies/:title", s.handleGetMovie)
	f.GET("/movies/:title/prequels", s.handleGetPrequels)
	f.GET("/movies/:title/viewing-order", s.handleGetViewingOrder)
	f.GET("/phases", s.handleGetPhases)
	f.GET("/tiers", s.handleGetTiers)
	f.POST("/reload", s.handlePostFranchiseReload)
}

func (s *Server) Start(addr string) error {
	utils.Logf("Server listening at %s", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	utils.Logf("Shutting down server...")

	var saveErr error
	if s.StateFile != "" {
		saveErr = s.Catalog.SaveState(s.StateFile)
	}
	shutDownErr := s.Echo.Shutdown(ctx)
	if shutDownErr != nil {
		return shutDownErr
	}

	return saveErr
}

// statusOf maps a domain error to the HTTP status the frontend expects.
func statusOf(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownFranchise),
		errors.Is(err, catalog.ErrNoMovie),
		errors.Is(err, catalog.ErrNoCharacter),
		errors.Is(err, poster.ErrNoPoster):
		return http.StatusNotFound
	case errors.Is(err, poster.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		// Anything else is a dataset that could not be fetched or parsed.
		return http.StatusBadGateway
	}
}

func fail(err error) error {
	return echo.NewHTTPError(statusOf(err), err.Error()).SetInternal(err)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := http.StatusInternalServerError, err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.Path(), "status", code, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, utils.ErrJSON(msg))
	}
	if err != nil {
		log.Error("writing error response", "error", err)
	}
}
