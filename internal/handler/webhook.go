package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradehook/internal/engine"
	"tradehook/internal/service"
	"tradehook/internal/strategy"
)

// WebhookHandler accepts trading signals. Validation happens inline; the
// execution itself runs in the background so the sender gets an immediate
// acknowledgment.
type WebhookHandler struct {
	Directory *strategy.Directory
	Engine    *engine.Engine
	Journal   *service.Journal
	Limiter   *IPRateLimiter
	Logger    *zap.Logger

	inflight sync.WaitGroup
}

type webhookRequest struct {
	Signal string   `json:"signal"`
	Buy    string   `json:"buy"`
	Sell   []string `json:"sell"`
}

type webhookAck struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	Signal           string `json:"signal"`
	Owner            string `json:"owner"`
	Strategy         string `json:"strategy"`
	Force            bool   `json:"force"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
}

func (h *WebhookHandler) Register(r *gin.Engine) {
	group := r.Group("/webhook")
	if h.Limiter != nil {
		group.Use(h.Limiter.Middleware(h.Logger))
	}
	group.POST("/:owner/:strategy", h.handle(false))
	group.POST("/:owner/:strategy/force", h.handle(true))
}

// Wait blocks until background executions finish or ctx is done.
func (h *WebhookHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// @Summary Receive a trading signal
// @Description Body is {"signal":"long|short|close"} or {"buy":"SYM","sell":["A","B"]}.
// @Tags webhook
// @Accept json
// @Produce json
// @Param owner path string true "owner"
// @Param strategy path string true "strategy"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /webhook/{owner}/{strategy} [post]
func (h *WebhookHandler) handle(force bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		received := time.Now()
		owner, name := c.Param("owner"), c.Param("strategy")
		s := h.Directory.Get(owner, name)
		if s == nil {
			Error(c, http.StatusNotFound, "strategy not found", nil)
			return
		}

		var req webhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid JSON payload: "+err.Error(), nil)
			return
		}
		run, label, err := h.dispatch(req, s, force)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}

		log := h.logger().With(
			zap.String("owner", s.Owner()),
			zap.String("strategy", s.Name()),
			zap.String("signal", label),
			zap.Bool("force", force),
			zap.String(requestIDKey, c.GetString(requestIDKey)),
		)
		ctx := context.WithoutCancel(c.Request.Context())
		h.inflight.Add(1)
		go func() {
			defer h.inflight.Done()
			res := run(ctx)
			h.Journal.Record(ctx, res, force, s)
			log.Info("webhook execution finished",
				zap.String("execution_id", res.ExecutionID),
				zap.String("status", string(res.Status)),
				zap.String("reason", res.Reason),
				zap.String("detail", res.Detail),
			)
		}()

		ack := webhookAck{
			Status:           "accepted",
			Message:          "processing " + label + " signal",
			Signal:           label,
			Owner:            s.Owner(),
			Strategy:         s.Name(),
			Force:            force,
			ProcessingTimeMS: time.Since(received).Milliseconds(),
		}
		log.Info("webhook accepted", zap.Int64("processing_time_ms", ack.ProcessingTimeMS))
		Ok(c, ack, nil)
	}
}

// dispatch validates the payload and binds it to the engine entry point.
func (h *WebhookHandler) dispatch(req webhookRequest, s *strategy.Strategy, force bool) (func(context.Context) engine.Result, string, error) {
	if raw := strings.TrimSpace(req.Signal); raw != "" {
		sig, err := engine.ParseSignal(raw)
		if err != nil {
			return nil, "", err
		}
		return func(ctx context.Context) engine.Result {
			if force {
				return h.Engine.ForceExecute(ctx, sig, s)
			}
			return h.Engine.Execute(ctx, sig, s)
		}, string(sig), nil
	}

	plan := engine.MultiPlan(req.Buy, req.Sell)
	if plan.Empty() {
		return nil, "", errors.New("signal or buy/sell symbols required")
	}
	return func(ctx context.Context) engine.Result {
		if force {
			return h.Engine.ForceExecutePlan(ctx, plan, s)
		}
		return h.Engine.ExecutePlan(ctx, plan, s)
	}, plan.Label(), nil
}

func (h *WebhookHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
