package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mark3748/sla-notifier/cmd/api/agents"
	app "github.com/mark3748/sla-notifier/cmd/api/app"
	"github.com/mark3748/sla-notifier/cmd/api/auth"
	"github.com/mark3748/sla-notifier/cmd/api/events"
	"github.com/mark3748/sla-notifier/cmd/api/exports"
	"github.com/mark3748/sla-notifier/cmd/api/handlers"
	"github.com/mark3748/sla-notifier/cmd/api/tracking"
	"github.com/mark3748/sla-notifier/cmd/api/ws"
	"github.com/mark3748/sla-notifier/internal/calendar"
	"github.com/mark3748/sla-notifier/internal/config"
	"github.com/mark3748/sla-notifier/internal/ratelimit"
	"github.com/mark3748/sla-notifier/internal/sla"
	"github.com/mark3748/sla-notifier/internal/store"
)

const jwksRefresh = 10 * time.Minute

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	cfg.SetupLogging()
	if cfg.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := store.Open(ctx, store.Options{
		Backend:        cfg.StoreBackend,
		DataDir:        cfg.DataDir,
		DatabaseURL:    cfg.DatabaseURL,
		ReloadInterval: cfg.StoreReloadInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer stores.Close()

	cal, err := cfg.Calendar()
	if err != nil {
		log.Fatal().Err(err).Msg("business hours")
	}
	resolver := calendar.NewResolver(cal, nil)
	reporter := sla.NewReporter(stores.Records, stores.Assignments)

	var keyf jwt.Keyfunc
	switch {
	case cfg.AuthSecret != "":
		keyf = auth.HMACKeyfunc(cfg.AuthSecret)
	case cfg.OIDCJWKSURL != "":
		jwks, err := auth.FetchJWKS(ctx, cfg.OIDCJWKSURL, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			log.Fatal().Err(err).Str("jwks_url", cfg.OIDCJWKSURL).Msg("fetch jwks")
		}
		go jwks.Watch(ctx, jwksRefresh)
		keyf = jwks.Keyfunc
	case !cfg.TestBypassAuth:
		log.Warn().Msg("no AUTH_SECRET or OIDC_JWKS_URL; authenticated routes will fail")
	}

	var objects app.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		mc, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("minio init")
		}
		objects = mc
	} else if cfg.FileStorePath != "" {
		if err := os.MkdirAll(cfg.FileStorePath, 0o755); err != nil {
			log.Fatal().Err(err).Str("path", cfg.FileStorePath).Msg("create filestore path")
		}
		objects = &app.FsObjectStore{Base: cfg.FileStorePath}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
		}
		defer rdb.Close()
	}

	a := app.NewApp(cfg, reporter, resolver, keyf, objects, rdb)
	hub := ws.NewHub(rdb)
	go hub.Run(ctx)
	routes(a, hub, ratelimit.New(rdb, cfg.RateLimitPerMin, time.Minute, "api:"))

	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        a.R,
		ReadTimeout:    15 * time.Second,
		// no WriteTimeout: /ws and /sla/events hold the response open
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()
	log.Info().Str("addr", cfg.Addr).Str("store", cfg.StoreBackend).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("listen")
	}
}

func routes(a *app.App, hub *ws.Hub, rl *ratelimit.Limiter) {
	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	a.R.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := a.R.Group("/")
	authed.Use(auth.Middleware(a))
	authed.GET("/me", auth.Me)
	authed.GET("/ws", ws.Handler(hub))
	authed.GET("/features", handlers.Features(a))

	rep := authed.Group("/sla")
	rep.Use(rl.Middleware("sla", ratelimit.ByClientIP))
	rep.GET("/tickets", tracking.ListTickets(a))
	rep.GET("/tickets/:id", tracking.GetTicket(a))
	rep.GET("/stats", tracking.Stats(a))
	rep.GET("/assignments", tracking.Assignments(a))
	rep.GET("/business-hours", tracking.BusinessHours(a))
	rep.GET("/events", events.Stream(a))
	rep.POST("/exports", auth.RequireRole(auth.RoleSupervisor), exports.Records(a))

	ag := authed.Group("/agents/:email")
	ag.GET("/opt-in", agents.Status(a))
	ag.PUT("/opt-in", agents.OptIn(a))
	ag.DELETE("/opt-in", agents.OptOut(a))
}
