package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradehook/internal/config"
	"tradehook/internal/cooldown"
	"tradehook/internal/events"
	"tradehook/internal/ledger"
	"tradehook/internal/metrics"
	"tradehook/internal/service"
	"tradehook/internal/strategy"
)

const maxLogPage = 100

// StrategyHandler is the per-owner strategy management API.
type StrategyHandler struct {
	Directory *strategy.Directory
	Persister *service.Persister
	Ledger    *ledger.Ledger
	Cooldown  *cooldown.Timer
	Journal   *service.Journal
	Events    *events.Hub
	Metrics   *metrics.Metrics
	Config    config.TradingConfig
	Logger    *zap.Logger
}

type strategyView struct {
	strategy.Snapshot
	Cooldown cooldown.Info `json:"cooldown"`
}

type createStrategyRequest struct {
	Name        string       `json:"name"`
	LongSymbol  string       `json:"long_symbol"`
	ShortSymbol string       `json:"short_symbol"`
	CashBalance *json.Number `json:"cash_balance"`
}

type updateStrategyRequest struct {
	LongSymbol  *string `json:"long_symbol"`
	ShortSymbol *string `json:"short_symbol"`
}

type cashRequest struct {
	CashBalance json.Number `json:"cash_balance"`
}

func (h *StrategyHandler) Register(r *gin.Engine) {
	group := r.Group("/api/users/:owner/strategies")
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:name", h.get)
	group.PUT("/:name", h.update)
	group.DELETE("/:name", h.remove)
	group.PUT("/:name/cash", h.setCash)
	group.GET("/:name/cooldown", h.cooldownInfo)
	group.DELETE("/:name/cooldown", h.stopCooldown)
	group.GET("/:name/logs", h.logs)
	group.GET("/:name/executions", h.executions)
}

// @Summary List an owner's strategies
// @Tags strategies
// @Param owner path string true "owner"
// @Success 200 {object} map[string]any
// @Router /api/users/{owner}/strategies [get]
func (h *StrategyHandler) list(c *gin.Context) {
	items := h.Directory.List(c.Param("owner"))
	out := make([]strategyView, 0, len(items))
	for _, s := range items {
		out = append(out, h.view(s))
	}
	Ok(c, out, map[string]any{"total": len(out)})
}

// @Summary Create a strategy
// @Tags strategies
// @Accept json
// @Param owner path string true "owner"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/users/{owner}/strategies [post]
func (h *StrategyHandler) create(c *gin.Context) {
	var req createStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	cash := decimal.NewFromFloat(h.Config.InitialCashBalance)
	if req.CashBalance != nil {
		v, err := decimal.NewFromString(req.CashBalance.String())
		if err != nil {
			fail(c, ledger.ErrInvalidAmount)
			return
		}
		cash = v
	}
	s, err := h.Directory.Create(c.Param("owner"), req.Name, req.LongSymbol, req.ShortSymbol, cash)
	if err != nil {
		fail(c, err)
		return
	}
	h.save(c, s)
	h.logger().Info("strategy created",
		zap.String("owner", s.Owner()),
		zap.String("strategy", s.Name()),
		zap.String("cash_balance", cash.String()),
	)
	Ok(c, h.view(s), nil)
}

// @Summary Get a strategy
// @Tags strategies
// @Param owner path string true "owner"
// @Param name path string true "strategy"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/users/{owner}/strategies/{name} [get]
func (h *StrategyHandler) get(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	Ok(c, h.view(s), nil)
}

// @Summary Change a strategy's symbols
// @Description An empty string clears a symbol; an omitted field is left alone.
// @Tags strategies
// @Param owner path string true "owner"
// @Param name path string true "strategy"
// @Success 200 {object} map[string]any
// @Router /api/users/{owner}/strategies/{name} [put]
func (h *StrategyHandler) update(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req updateStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.LongSymbol == nil && req.ShortSymbol == nil {
		Error(c, http.StatusBadRequest, "long_symbol or short_symbol required", nil)
		return
	}
	s.UpdateSymbols(req.LongSymbol, req.ShortSymbol)
	h.save(c, s)
	Ok(c, h.view(s), nil)
}

// @Summary Delete a strategy
// @Tags strategies
// @Param owner path string true "owner"
// @Param name path string true "strategy"
// @Success 200 {object} map[string]any
// @Router /api/users/{owner}/strategies/{name} [delete]
func (h *StrategyHandler) remove(c *gin.Context) {
	owner, name := c.Param("owner"), c.Param("name")
	if !h.Directory.Delete(owner, name) {
		fail(c, strategy.ErrNotFound)
		return
	}
	if err := h.Persister.Delete(c.Request.Context(), owner, name); err != nil {
		fail(c, err)
		return
	}
	h.Metrics.ForgetStrategy(strings.ToLower(owner), strings.ToLower(name))
	h.Events.Publish(events.Event{
		Kind:     events.KindStrategyDeleted,
		Owner:    strings.ToLower(owner),
		Strategy: strings.ToLower(name),
	})
	Ok(c, gin.H{"deleted": true}, nil)
}

// @Summary Override the cash balance
// @Tags strategies
// @Param owner path string true "owner"
// @Param name path string true "strategy"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/users/{owner}/strategies/{name}/cash [put]
func (h *StrategyHandler) setCash(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req cashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Join(ledger.ErrInvalidAmount, err))
		return
	}
	balance, err := h.Ledger.ApplyManual(req.CashBalance.String(), s)
	if err != nil {
		fail(c, err)
		return
	}
	h.save(c, s)
	Ok(c, gin.H{"cash_balance": balance}, nil)
}

// @Summary Cooldown status
// @Tags strategies
// @Param owner path string true "owner"
// @Param name path string true "strategy"
// @Success 200 {object} map[string]any
// @Router /api/users/{owner}/strategies/{name}/cooldown [get]
func (h *StrategyHandler) cooldownInfo(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	Ok(c, h.Cooldown.Info(s), nil)
}

// @Summary Stop the cooldown early
// @Tags strategies
// @Param owner path string true "owner"
// @Param name path string true "strategy"
// @Success 200 {object} map[string]any
// @Router /api/users/{owner}/strategies/{name}/cooldown [delete]
func (h *StrategyHandler) stopCooldown(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	h.Cooldown.Stop(s)
	h.save(c, s)
	Ok(c, h.Cooldown.Info(s), nil)
}

// @Summary Broker call history, newest first
// @Tags strategies
// @Param owner path string true "owner"
// @Param name path string true "strategy"
// @Param skip query int false "entries to skip"
// @Param limit query int false "page size (max 100)"
// @Success 200 {object} map[string]any
// @Router /api/users/{owner}/strategies/{name}/logs [get]
func (h *StrategyHandler) logs(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	skip, limit, ok := pageParams(c, "skip", 20)
	if !ok {
		return
	}
	Ok(c, s.APICallPage(skip, limit), nil)
}

// @Summary Journal of handled signals
// @Tags strategies
// @Param owner path string true "owner"
// @Param name path string true "strategy"
// @Param offset query int false "rows to skip"
// @Param limit query int false "page size (max 100)"
// @Success 200 {object} map[string]any
// @Router /api/users/{owner}/strategies/{name}/executions [get]
func (h *StrategyHandler) executions(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	offset, limit, ok := pageParams(c, "offset", 50)
	if !ok {
		return
	}
	items, total, err := h.Journal.List(c.Request.Context(), s.Owner(), s.Name(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": total, "limit": limit, "offset": offset})
}

func (h *StrategyHandler) lookup(c *gin.Context) (*strategy.Strategy, bool) {
	s := h.Directory.Get(c.Param("owner"), c.Param("name"))
	if s == nil {
		fail(c, strategy.ErrNotFound)
		return nil, false
	}
	return s, true
}

func (h *StrategyHandler) view(s *strategy.Strategy) strategyView {
	info := h.Cooldown.Info(s)
	return strategyView{Snapshot: s.Snapshot(), Cooldown: info}
}

// save writes through immediately; a failure is left to the periodic flush.
func (h *StrategyHandler) save(c *gin.Context, s *strategy.Strategy) {
	if err := h.Persister.Save(c.Request.Context(), s); err != nil {
		h.logger().Warn("strategy save failed, will retry on flush",
			zap.String("owner", s.Owner()),
			zap.String("strategy", s.Name()),
			zap.Error(err),
		)
	}
	h.Events.Publish(events.Event{
		Kind:     events.KindStrategyUpdated,
		Owner:    s.Owner(),
		Strategy: s.Name(),
		Data:     map[string]any{"cash_balance": s.CashBalance().String()},
	})
}

func (h *StrategyHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func pageParams(c *gin.Context, skipKey string, defaultLimit int) (int, int, bool) {
	skip, err := strconv.Atoi(c.DefaultQuery(skipKey, "0"))
	if err != nil || skip < 0 {
		Error(c, http.StatusBadRequest, skipKey+" must be a non-negative integer", nil)
		return 0, 0, false
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		Error(c, http.StatusBadRequest, "limit must be a positive integer", nil)
		return 0, 0, false
	}
	if limit > maxLogPage {
		limit = maxLogPage
	}
	return skip, limit, true
}
