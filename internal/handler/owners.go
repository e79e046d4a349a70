package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradehook/internal/engine"
	"tradehook/internal/events"
	"tradehook/internal/metrics"
	"tradehook/internal/service"
	"tradehook/internal/strategy"
)

// OwnerHandler manages tenants, fans signals out across an owner's
// strategies and streams execution events.
type OwnerHandler struct {
	Owners    *service.OwnerService
	Directory *strategy.Directory
	Engine    *engine.Engine
	Journal   *service.Journal
	Events    *events.Hub
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type ownerRequest struct {
	BrokerURL string `json:"broker_url"`
}

type broadcastRequest struct {
	Signal string `json:"signal"`
}

func (h *OwnerHandler) Register(r *gin.Engine) {
	users := r.Group("/api/users")
	users.GET("", h.list)
	users.GET("/:owner", h.get)
	users.PUT("/:owner", h.upsert)
	users.DELETE("/:owner", h.remove)
	users.POST("/:owner/broadcast", h.broadcast)
	r.GET("/api/events/ws", h.stream)
}

// @Summary List owners
// @Tags owners
// @Success 200 {object} map[string]any
// @Router /api/users [get]
func (h *OwnerHandler) list(c *gin.Context) {
	items, err := h.Owners.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Get an owner
// @Tags owners
// @Param owner path string true "owner"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/users/{owner} [get]
func (h *OwnerHandler) get(c *gin.Context) {
	item, err := h.Owners.Get(c.Request.Context(), c.Param("owner"))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Register an owner or change its broker URL
// @Tags owners
// @Accept json
// @Param owner path string true "owner"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/users/{owner} [put]
func (h *OwnerHandler) upsert(c *gin.Context) {
	var req ownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	item, err := h.Owners.Upsert(c.Request.Context(), c.Param("owner"), req.BrokerURL)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Delete an owner and its strategies
// @Tags owners
// @Param owner path string true "owner"
// @Success 200 {object} map[string]any
// @Router /api/users/{owner} [delete]
func (h *OwnerHandler) remove(c *gin.Context) {
	owner := strings.ToLower(strings.TrimSpace(c.Param("owner")))
	removed, err := h.Owners.Delete(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	h.Metrics.ForgetOwner(owner)
	h.Events.Publish(events.Event{Kind: events.KindStrategyDeleted, Owner: owner, Data: map[string]any{"strategies": removed}})
	Ok(c, gin.H{"deleted": true, "strategies": removed}, nil)
}

// @Summary Send one signal to every strategy of an owner
// @Description Waits for all executions and returns one result per strategy.
// @Tags owners
// @Accept json
// @Param owner path string true "owner"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/users/{owner}/broadcast [post]
func (h *OwnerHandler) broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sig, err := engine.ParseSignal(req.Signal)
	if err != nil {
		fail(c, err)
		return
	}
	items := h.Directory.List(c.Param("owner"))
	if len(items) == 0 {
		fail(c, errors.Join(strategy.ErrNotFound, errors.New("owner has no strategies")))
		return
	}

	// The fan-out outlives a dropped client so orders are never cut mid-flight.
	ctx := context.WithoutCancel(c.Request.Context())
	results := h.Engine.Broadcast(ctx, sig, items)
	counts := map[engine.Status]int{}
	for i, r := range results {
		counts[r.Result.Status]++
		h.Journal.Record(ctx, r.Result, false, items[i])
	}
	if h.Logger != nil {
		h.Logger.Info("broadcast finished",
			zap.String("owner", items[0].Owner()),
			zap.String("signal", string(sig)),
			zap.Int("strategies", len(items)),
			zap.Int("success", counts[engine.StatusSuccess]),
			zap.Int("ignored", counts[engine.StatusIgnored]),
			zap.Int("error", counts[engine.StatusError]),
		)
	}
	Ok(c, results, map[string]any{"total": len(results)})
}

// @Summary Stream execution and strategy events
// @Description Websocket; optional owner query parameter filters events.
// @Tags events
// @Param owner query string false "owner filter"
// @Router /api/events/ws [get]
func (h *OwnerHandler) stream(c *gin.Context) {
	if h.Events == nil {
		Error(c, http.StatusServiceUnavailable, "event stream disabled", nil)
		return
	}
	owner := strings.ToLower(strings.TrimSpace(c.Query("owner")))
	if err := h.Events.ServeWS(c.Request.Context(), c.Writer, c.Request, owner); err != nil && h.Logger != nil {
		h.Logger.Debug("event stream closed", zap.String("owner", owner), zap.Error(err))
	}
}
