package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"cinedex/pkg/diff"
	"cinedex/pkg/schema"
	"cinedex/pkg/utils"
)

// POST /api/reload
func (s *Server) handlePostReload(c echo.Context) error {
	w, err := utils.NewSSEWriter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer w.Close()

	log.Info("reload requested", "request_id", c.Response().Header().Get(echo.HeaderXRequestID))
	res := s.Catalog.Reload(c.Request().Context(), func(st schema.LoadStatus) {
		if err := w.Event("status", st); err != nil {
			log.Warn("SSE write error", "error", err)
		}
	})
	return w.Event("done", res)
}

type franchiseReloadResp struct {
	Status schema.LoadStatus `json:"status"`
	Diff   *diff.CatalogDiff `json:"diff,omitempty"`
}

// POST /api/franchises/:franchise/reload
func (s *Server) handlePostFranchiseReload(c echo.Context) error {
	st, d, err := s.Catalog.ReloadFranchise(c.Request().Context(), param(c, "franchise"))
	if err != nil {
		return fail(err)
	}
	if !st.OK() {
		return fail(st.Error)
	}
	return c.JSON(http.StatusOK, franchiseReloadResp{Status: st, Diff: d})
}
