package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"tradehook/internal/audit"
	"tradehook/internal/broker"
	"tradehook/internal/config"
	"tradehook/internal/cooldown"
	cronrunner "tradehook/internal/cron"
	"tradehook/internal/db"
	"tradehook/internal/engine"
	"tradehook/internal/events"
	"tradehook/internal/handler"
	"tradehook/internal/ledger"
	"tradehook/internal/logger"
	"tradehook/internal/metrics"
	"tradehook/internal/repository"
	gormrepository "tradehook/internal/repository/gorm"
	"tradehook/internal/service"
	"tradehook/internal/strategy"

	_ "tradehook/docs"
)

func main() {
	cfgPath := os.Getenv("TH_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TH_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var (
		repo   repository.Repository
		dbConn *db.DB
	)
	if cfg.Persist.Enabled {
		dbConn, err = db.Open(cfg.DB, logger)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		repo = gormrepository.New(dbConn.Gorm)
	} else {
		logger.Warn("persistence disabled, strategies live in memory only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditClient := initAuditClient(ctx, cfg.Audit, logger)
	baseCtx := audit.WithClient(ctx, auditClient)

	directory := strategy.NewDirectory()
	persister := &service.Persister{Repo: repo, Directory: directory, Logger: logger}
	if _, err := persister.Load(baseCtx); err != nil {
		logger.Fatal("strategy load failed", zap.Error(err))
	}
	owners := &service.OwnerService{
		Repo:      repo,
		Static:    cfg.Broker.Endpoints,
		Directory: directory,
		Persister: persister,
		Logger:    logger,
	}
	journal := &service.Journal{Repo: repo, Logger: logger}

	m := metrics.Default()
	var brokerLimiter *rate.Limiter
	if cfg.Broker.RPS > 0 {
		brokerLimiter = rate.NewLimiter(rate.Limit(cfg.Broker.RPS), max(cfg.Broker.Burst, 1))
	}
	brokerClient := &broker.Client{
		HTTP:        &http.Client{Timeout: cfg.Broker.Timeout},
		Resolver:    owners,
		MaxAttempts: cfg.Broker.MaxAttempts,
		RetryDelay:  cfg.Broker.RetryDelay,
		Limiter:     brokerLimiter,
		Logger:      logger,
		Metrics:     m,
	}
	timer := &cooldown.Timer{Logger: logger}
	cashLedger := &ledger.Ledger{
		MinimumCashBalance: decimal.NewFromFloat(cfg.Trading.MinimumCashBalance),
		Logger:             logger,
	}
	hub := events.NewHub(cfg.Events.Buffer, cfg.Events.WriteTimeout, logger)
	hub.OriginPatterns = events.ParseOrigins(cfg.Server.CORSOrigins)

	eng := &engine.Engine{
		Broker:   brokerClient,
		Ledger:   cashLedger,
		Cooldown: timer,
		Config:   cfg.Trading,
		Logger:   logger,
		Metrics:  m,
		Events:   hub,
		Audit:    auditClient,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestID())
	router.Use(handler.CORS(cfg.Server.CORSOrigins))
	router.Use(handler.AccessLog(logger))
	router.Use(audit.RequireBearerMiddleware(cfg.Auth.APIKey))
	router.Use(audit.InjectClientMiddleware(auditClient))
	router.Use(audit.WriteAuditMiddleware(auditClient))

	var gormDB *gorm.DB
	if dbConn != nil {
		gormDB = dbConn.Gorm
	}
	(&handler.HealthHandler{DB: gormDB, Directory: directory, Events: hub}).Register(router)

	webhookLimiter := &handler.IPRateLimiter{RPS: cfg.Server.WebhookRPS, Burst: cfg.Server.WebhookBurst}
	webhooks := &handler.WebhookHandler{
		Directory: directory,
		Engine:    eng,
		Journal:   journal,
		Limiter:   webhookLimiter,
		Logger:    logger,
	}
	webhooks.Register(router)
	(&handler.StrategyHandler{
		Directory: directory,
		Persister: persister,
		Ledger:    cashLedger,
		Cooldown:  timer,
		Journal:   journal,
		Events:    hub,
		Metrics:   m,
		Config:    cfg.Trading,
		Logger:    logger,
	}).Register(router)
	(&handler.OwnerHandler{
		Owners:    owners,
		Directory: directory,
		Engine:    eng,
		Journal:   journal,
		Events:    hub,
		Metrics:   m,
		Logger:    logger,
	}).Register(router)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cronRunner := cronrunner.New(logger, baseCtx)
	if cfg.Cron.Enabled {
		if repo != nil {
			if _, err := cronRunner.Add("persist_flush", cfg.Cron.PersistFlush, func(ctx context.Context) error {
				_, err := persister.Flush(ctx)
				if err != nil {
					audit.LogBestEffort(ctx, "persist_flush", "error", map[string]any{"error": err.Error()})
				}
				return err
			}); err != nil {
				logger.Warn("cron register failed", zap.Error(err))
			}
		}
		if _, err := cronRunner.Add("cooldown_sweep", cfg.Cron.CooldownSweep, func(ctx context.Context) error {
			if n := timer.Sweep(directory.All()); n > 0 {
				logger.Info("expired cooldowns cleared", zap.Int("count", n))
			}
			return nil
		}); err != nil {
			logger.Warn("cron register failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("rate_limiter_prune", "@every 10m", func(ctx context.Context) error {
			webhookLimiter.Prune(10 * time.Minute)
			return nil
		}); err != nil {
			logger.Warn("cron register failed", zap.Error(err))
		}
	}
	cronRunner.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.Int("strategies", len(directory.All())),
			zap.Bool("persistence", repo != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := webhooks.Wait(shutdownCtx); err != nil {
		logger.Warn("executions still running at shutdown", zap.Error(err))
	}
	cronRunner.Stop()
	if n, err := persister.Flush(shutdownCtx); err != nil {
		logger.Error("final flush failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("final flush done", zap.Int("strategies", n))
	}
}

func initAuditClient(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) *audit.Client {
	base := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if base == "" || apiKey == "" {
		return nil
	}

	p := &audit.Client{BaseURL: base, APIKey: apiKey, Agent: cfg.Agent, Timeout: cfg.Timeout, Logger: logger}
	loginCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.Login(loginCtx); err != nil {
		logger.Warn("audit login failed (audit disabled)", zap.Error(err))
		return nil
	}
	logger.Info("audit login ok")
	return p
}
