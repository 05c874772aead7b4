package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/civmanager/api/rest"
	"github.com/kasuganosora/civmanager/api/sse"
	"github.com/kasuganosora/civmanager/audit"
	"github.com/kasuganosora/civmanager/auth"
	"github.com/kasuganosora/civmanager/cache"
	"github.com/kasuganosora/civmanager/catalog"
	"github.com/kasuganosora/civmanager/config"
	dbadapter "github.com/kasuganosora/civmanager/db"
	"github.com/kasuganosora/civmanager/game/assignment"
	"github.com/kasuganosora/civmanager/game/civilization"
	"github.com/kasuganosora/civmanager/game/ledger"
	"github.com/kasuganosora/civmanager/metrics"
	mw "github.com/kasuganosora/civmanager/middleware"
	"github.com/kasuganosora/civmanager/model"
	"github.com/kasuganosora/civmanager/scheduler"
	"github.com/kasuganosora/civmanager/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		log.Fatalf("config: security.jwt_secret must be set")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))
	st := store.New(db)

	// ---- Job catalog ----
	entries := catalog.Defaults()
	if cfg.Catalog.JobsFile != "" {
		if entries, err = catalog.Load(cfg.Catalog.JobsFile); err != nil {
			log.Fatalf("catalog: %v", err)
		}
	}
	if err := catalog.Seed(rootCtx, st, entries, logger); err != nil {
		log.Fatalf("catalog: %v", err)
	}

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Services ----
	provider := auth.NewProvider(db, c, pubsub, cfg.Security, cfg.Server.PublicURL, auth.NewLogMailer(logger), logger)
	civs := civilization.NewService(st, cfg.Game, logger)
	led := ledger.New(st, cfg.Game.LedgerRetries, logger)
	led.SetObserver(metrics.ObserveLedger)
	roster := assignment.NewManager(st, cfg.Game.MaxCharacters, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.AddTicker("purge_password_resets", 15*time.Minute, func(ctx context.Context) error {
		n, err := provider.PurgeExpiredResets(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("purged password resets", zap.Int64("count", n))
		}
		return nil
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), metrics.Middleware())
	r.Use(mw.RateLimit(rootCtx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	corsConfig := cors.DefaultConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Security.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
		logger.Warn("security.allowed_origins is empty; allowing every origin")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", mw.TraceIDHeader}
	corsConfig.ExposeHeaders = []string{mw.TraceIDHeader, "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsConfig))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	apirest.Register(r.Group("/api"), apirest.Deps{
		Server:   cfg.Server,
		Security: cfg.Security,
		Store:    st,
		Cache:    c,
		Auth:     provider,
		Civs:     civs,
		Ledger:   led,
		Roster:   roster,
		Audit:    auditSvc,
		Sched:    sched,
		Logger:   logger,
	})

	// ---- SSE ----
	sseH := sse.NewHandler(provider, cfg.Security.AllowedOrigins, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	sched.Stop()
	auditSvc.Stop(shutdownCtx)
	logger.Info("Server stopped")
}
