package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickdesk/internal/authz"
	"pickdesk/internal/config"
	cronrunner "pickdesk/internal/cron"
	"pickdesk/internal/db"
	"pickdesk/internal/guardrail"
	"pickdesk/internal/handler"
	"pickdesk/internal/logger"
	"pickdesk/internal/repository"
	gormrepository "pickdesk/internal/repository/gorm"
	"pickdesk/internal/service"
	"pickdesk/internal/stream"
)

func main() {
	cfgPath := os.Getenv("PD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PD_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
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

	store := gormrepository.New(dbConn.Gorm)

	machine := &guardrail.Machine{
		Config: cfg.Policy.HardStops,
		Store:  store,
		Logger: logger,
	}
	if err := machine.Reload(context.Background()); err != nil {
		// The machine stays halted until a clean checkpoint loads; serving
		// blocked decisions beats refusing to start.
		logger.Error("guardrail state load failed, starting halted", zap.Error(err))
	}

	authorizer := &authz.Authorizer{
		Audit:  repository.AuditSink{Repo: store},
		Logger: logger,
	}
	hub := &stream.Hub{Logger: logger}
	evaluator := &service.Evaluator{
		Policy:    cfg.Policy,
		Repo:      store,
		Guardrail: machine,
		Logger:    logger,
		Broadcast: hub,
	}
	settlementSvc := &service.SettlementService{
		Repo:      store,
		Guardrail: machine,
		Logger:    logger,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.IdentityMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn}
	healthHandler.Register(engine)
	decisionHandler := &handler.DecisionHandler{
		Repo:      store,
		Evaluator: evaluator,
		Hub:       hub,
		Authz:     authorizer,
		Logger:    logger,
	}
	decisionHandler.Register(engine)
	settlementHandler := &handler.SettlementHandler{
		Service: settlementSvc,
		Authz:   authorizer,
		Logger:  logger,
	}
	settlementHandler.Register(engine)
	guardrailHandler := &handler.GuardrailHandler{
		Machine: machine,
		Authz:   authorizer,
		Logger:  logger,
	}
	guardrailHandler.Register(engine)
	auditHandler := &handler.AuditHandler{Repo: store, Authz: authorizer}
	auditHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)

	cutoverSpec, err := cutoverCronSpec(cfg.Policy.HardStops.DailyCutover)
	if err != nil {
		logger.Fatal("invalid daily cutover", zap.Error(err))
	}
	_, err = cronRunner.Add(cutoverSpec, func(ctx context.Context) {
		machine.DailyCutover(ctx, time.Now().UTC())
		if err := machine.Checkpoint(ctx); err != nil {
			logger.Warn("guardrail checkpoint failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("cron register daily cutover failed", zap.Error(err))
	}

	_, err = cronRunner.Add(cfg.Cron.GuardrailCheckpoint, func(ctx context.Context) {
		if err := machine.Checkpoint(ctx); err != nil {
			logger.Warn("guardrail checkpoint failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("cron register guardrail checkpoint failed", zap.Error(err))
	}

	_, err = cronRunner.Add(cfg.Cron.RetentionCleanup, func(ctx context.Context) {
		now := time.Now().UTC()
		if cfg.Retention.AuditDays > 0 {
			cutoff := now.AddDate(0, 0, -cfg.Retention.AuditDays)
			if n, err := store.DeleteAuditEventsBefore(ctx, cutoff); err != nil {
				logger.Warn("audit retention cleanup failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("deleted expired audit events", zap.Int64("count", n))
			}
		}
		if cfg.Retention.SettlementDays > 0 {
			cutoff := now.AddDate(0, 0, -cfg.Retention.SettlementDays)
			if n, err := store.DeleteSettlementsBefore(ctx, cutoff); err != nil {
				logger.Warn("settlement retention cleanup failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("deleted expired settlements", zap.Int64("count", n))
			}
		}
	})
	if err != nil {
		logger.Warn("cron register retention cleanup failed", zap.Error(err))
	}

	if cfg.Cron.Enabled {
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Last checkpoint so a restart resumes from the state it shut down with.
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSave()
	if err := machine.Checkpoint(saveCtx); err != nil {
		logger.Warn("final guardrail checkpoint failed", zap.Error(err))
	}
}

// cutoverCronSpec turns the configured HH:MM cutover into a six-field cron
// spec firing once per day.
func cutoverCronSpec(value string) (string, error) {
	d, err := config.ParseCutover(value)
	if err != nil {
		return "", err
	}
	hour := int(d.Hours())
	minute := int(d.Minutes()) % 60
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-User-Id,X-User-Role,X-Trace-Id")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
