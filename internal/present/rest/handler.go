package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/floralog/floralog"
	"github.com/floralog/floralog/internal/domain"
	"github.com/floralog/floralog/internal/present/rest/presenter"
	"github.com/floralog/floralog/internal/service"
	"github.com/floralog/floralog/internal/usecase"
)

type Handler struct {
	config      domain.Config
	observation *usecase.ObservationUsecase
	signal      *service.SignalService
}

func NewHandler(
	config domain.Config,
	observation *usecase.ObservationUsecase,
	signal *service.SignalService,
) *Handler {
	return &Handler{
		config:      config,
		observation: observation,
		signal:      signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/.well-known/floralog", h.handleWellKnown)
	e.POST("/api/v1/observations", h.handleStore)
	e.GET("/api/v1/observations", h.handleList)
	e.GET("/api/v1/observations/count", h.handleCount)
	e.GET("/api/v1/observations/stats/monthly", h.handleStatsMonthly)
	e.GET("/api/v1/observations/:id", h.handleGet)
	e.POST("/api/v1/observations/:id/annotations", h.handleAnnotate)
	e.POST("/api/v1/observations/:id/verifications", h.handleVerify)
	e.POST("/api/v1/observations/:id/hide", h.handleHide)
	e.PUT("/api/v1/verifiers/:principal", h.handleSetVerifier)
	e.GET("/realtime", h.handleRealtime)
}

func requester(c echo.Context) string {
	principal, _ := c.Request().Context().Value(domain.RequesterIdCtxKey).(string)
	return principal
}

// presentError maps the domain error taxonomy onto status codes.
func presentError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return presenter.BadRequest(c, err)
	case errors.Is(err, domain.ErrNotFound):
		return presenter.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return presenter.Unauthorized(c, err)
	default:
		return presenter.InternalError(c, err)
	}
}

func (h *Handler) handleWellKnown(c echo.Context) error {
	return presenter.OK(c, echo.Map{
		"version": "1.0",
		"domain":  h.config.FQDN,
		"nodeId":  h.config.NodeID,
	})
}

type StoreRequest struct {
	Payload floralog.Payload `json:"payload"`
	CID     string           `json:"cid"`
}

func (h *Handler) handleStore(c echo.Context) error {
	ctx := c.Request().Context()

	submitter := requester(c)
	if submitter == "" {
		return presenter.Unauthorized(c, fmt.Errorf("authentication required"))
	}

	var req StoreRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	id, err := h.observation.Store(ctx, usecase.StoreInput{
		Submitter: submitter,
		Payload:   req.Payload,
		CID:       req.CID,
	})
	if err != nil {
		return presentError(c, err)
	}

	return presenter.OK(c, echo.Map{"id": id})
}

func (h *Handler) handleGet(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid id")
	}

	rec, err := h.observation.Get(ctx, id)
	if err != nil {
		return presentError(c, err)
	}

	// Absence is not an error here; the record key is just null.
	return presenter.OK(c, echo.Map{"record": rec})
}

func parseFilter(c echo.Context) (floralog.Filter, error) {
	var f floralog.Filter

	if species := c.QueryParam("species"); species != "" {
		f.Species = &species
	}
	if geo := c.QueryParam("geo"); geo != "" {
		f.GeoPrefix = &geo
	}
	if since := c.QueryParam("since"); since != "" {
		v, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid since parameter")
		}
		f.Start = &v
	}
	if until := c.QueryParam("until"); until != "" {
		v, err := strconv.ParseUint(until, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid until parameter")
		}
		f.End = &v
	}
	return f, nil
}

func (h *Handler) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	filter, err := parseFilter(c)
	if err != nil {
		return presenter.BadRequestMessage(c, err.Error())
	}

	q := floralog.ListQuery{Filter: filter}
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		v, err := strconv.ParseUint(limitStr, 10, 32)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit := uint32(v)
		q.Limit = &limit
	}
	if cursorStr := c.QueryParam("startAfter"); cursorStr != "" {
		v, err := strconv.ParseUint(cursorStr, 10, 64)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid startAfter parameter")
		}
		q.StartAfter = &v
	}

	page, err := h.observation.List(ctx, q)
	if err != nil {
		return presentError(c, err)
	}
	return presenter.OK(c, page)
}

func (h *Handler) handleCount(c echo.Context) error {
	ctx := c.Request().Context()

	filter, err := parseFilter(c)
	if err != nil {
		return presenter.BadRequestMessage(c, err.Error())
	}

	count, err := h.observation.Count(ctx, filter)
	if err != nil {
		return presentError(c, err)
	}
	return presenter.OK(c, echo.Map{"count": count})
}

func (h *Handler) handleStatsMonthly(c echo.Context) error {
	ctx := c.Request().Context()

	filter, err := parseFilter(c)
	if err != nil {
		return presenter.BadRequestMessage(c, err.Error())
	}

	yearStr := c.QueryParam("year")
	if yearStr == "" {
		return presenter.BadRequestMessage(c, "year parameter is required")
	}
	year, err := strconv.ParseUint(yearStr, 10, 32)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid year parameter")
	}

	months, err := h.observation.StatsMonthly(ctx, filter, uint32(year))
	if err != nil {
		return presentError(c, err)
	}
	return presenter.OK(c, echo.Map{"year": year, "months": months})
}

type AnnotateRequest struct {
	Note     *string   `json:"note"`
	PhotoCID *string   `json:"photoCid"`
	Tags     *[]string `json:"tags"`
}

func (h *Handler) handleAnnotate(c echo.Context) error {
	ctx := c.Request().Context()

	principal := requester(c)
	if principal == "" {
		return presenter.Unauthorized(c, fmt.Errorf("authentication required"))
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid id")
	}

	var req AnnotateRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	err = h.observation.Annotate(ctx, id, usecase.AnnotateInput{
		Requester: principal,
		Note:      req.Note,
		PhotoCID:  req.PhotoCID,
		Tags:      req.Tags,
	})
	if err != nil {
		return presentError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type VerifyRequest struct {
	TaxonID    string `json:"taxonId"`
	Confidence uint8  `json:"confidence"`
}

func (h *Handler) handleVerify(c echo.Context) error {
	ctx := c.Request().Context()

	principal := requester(c)
	if principal == "" {
		return presenter.Unauthorized(c, fmt.Errorf("authentication required"))
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid id")
	}

	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	err = h.observation.Verify(ctx, id, usecase.VerifyInput{
		Requester:  principal,
		TaxonID:    req.TaxonID,
		Confidence: req.Confidence,
	})
	if err != nil {
		return presentError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type HideRequest struct {
	Reason *string `json:"reason"`
}

func (h *Handler) handleHide(c echo.Context) error {
	ctx := c.Request().Context()

	principal := requester(c)
	if principal == "" {
		return presenter.Unauthorized(c, fmt.Errorf("authentication required"))
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid id")
	}

	var req HideRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.observation.Hide(ctx, id, principal, req.Reason); err != nil {
		return presentError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type SetVerifierRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) handleSetVerifier(c echo.Context) error {
	ctx := c.Request().Context()

	principal := requester(c)
	if principal == "" {
		return presenter.Unauthorized(c, fmt.Errorf("authentication required"))
	}

	var req SetVerifierRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	err := h.observation.SetVerifier(ctx, principal, c.Param("principal"), req.Enabled)
	if err != nil {
		return presentError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type     string   `json:"type"`
	Prefixes []string `json:"prefixes"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	// Cancellation tears down the Realtime subscription and unblocks the
	// reader goroutine; channels are left to the garbage collector so no
	// side can send on a closed channel.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan floralog.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{}, 1)

	go func() {
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				quit <- struct{}{}
				break
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Prefixes:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %s", req.Prefixes),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
