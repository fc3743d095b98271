// Package httpapi exposes the engine over HTTP. Every route is a thin
// adapter: resolution, execution, and error shaping all happen in the
// engine, so the HTTP surface carries no semantics of its own.
package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liminalcommons/chora-cvm/internal/engine"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// Server wraps the echo instance over one engine.
type Server struct {
	eng  *engine.Engine
	echo *echo.Echo
}

// New builds the HTTP adapter.
func New(eng *engine.Engine) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{eng: eng, echo: e}

	e.GET("/health", s.health)
	e.GET("/capabilities", s.capabilities)
	e.POST("/invoke/:intent", s.invoke)
	e.GET("/entities/:id", s.entity)
	e.GET("/search", s.search)
	e.GET("/states/:id", s.state)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Echo exposes the underlying router (used by tests and Start).
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start listens on addr until the process stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) health(c echo.Context) error {
	store, err := s.eng.Store(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  types.KindOf(err, types.ErrStorage),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"db":     store.Path(),
		"fts":    store.FTSEnabled(),
	})
}

func (s *Server) capabilities(c echo.Context) error {
	caps, err := s.eng.ListCapabilities(c.Request().Context())
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"capabilities": caps,
		"count":        len(caps),
	})
}

func (s *Server) invoke(c echo.Context) error {
	var inputs map[string]any
	if err := c.Bind(&inputs); err != nil {
		return c.JSON(http.StatusBadRequest, engine.DispatchResult{
			OK:           false,
			ErrorKind:    types.ErrMapping,
			ErrorMessage: "request body must be a JSON object",
		})
	}

	result := s.eng.Dispatch(c.Request().Context(), c.Param("intent"), inputs, engine.DispatchOptions{
		PersonaID: c.QueryParam("persona"),
	})

	status := http.StatusOK
	switch result.ErrorKind {
	case "":
	case types.ErrIntentNotFound:
		status = http.StatusNotFound
	case types.ErrDatabaseNotFound:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result)
}

func (s *Server) entity(c echo.Context) error {
	store, err := s.eng.Store(c.Request().Context())
	if err != nil {
		return s.errorJSON(c, err)
	}
	entity, err := store.LoadEntity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	if entity == nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "entity not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":   entity.ID,
		"type": entity.Type,
		"data": entity.Data,
	})
}

func (s *Server) search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "missing query parameter q"})
	}
	limit := 0
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "limit must be an integer"})
	}

	store, err := s.eng.Store(c.Request().Context())
	if err != nil {
		return s.errorJSON(c, err)
	}
	hits, err := store.SearchEntities(c.Request().Context(), query, limit)
	if err != nil {
		return s.errorJSON(c, err)
	}

	results := make([]map[string]any, 0, len(hits))
	for _, hit := range hits {
		results = append(results, map[string]any{
			"id":    hit.ID,
			"type":  hit.Type,
			"title": hit.Title,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) state(c echo.Context) error {
	store, err := s.eng.Store(c.Request().Context())
	if err != nil {
		return s.errorJSON(c, err)
	}
	state, err := store.LoadState(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	if state == nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "state not found"})
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) errorJSON(c echo.Context, err error) error {
	kind := types.KindOf(err, types.ErrStorage)
	status := http.StatusInternalServerError
	if kind == types.ErrDatabaseNotFound {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"error_kind":    kind,
		"error_message": err.Error(),
	})
}
