package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"academy/internal/accounts"
	"academy/internal/attendance"
	"academy/internal/audit"
	"academy/internal/auth"
	"academy/internal/catalog"
	"academy/internal/config"
	"academy/internal/enrollment"
	"academy/internal/handler"
	"academy/internal/metrics"
	"academy/internal/queue"
	"academy/internal/ratelimit"
	"academy/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var sessions auth.SessionStore
	if cfg.SessionBackend == "memory" {
		sessions = auth.NewMemoryStore()
	} else {
		sessions = auth.NewRedisStore(redisClient.Client)
	}

	var counters ratelimit.CounterStore
	if cfg.LimiterBackend == "memory" {
		counters = ratelimit.NewMemoryCounter()
	} else {
		counters = ratelimit.NewRedisCounter(redisClient.Client)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "academy:events")
	}

	limiter := ratelimit.New(counters)
	auditLog := audit.NewPublisher(q)

	accountsSvc := accounts.NewService(accounts.NewRepository(db.Client), limiter, auditLog, cfg.RegisterPerHour, cfg.LoginPerHour)
	catalogSvc := catalog.NewService(catalog.NewRepository(db.Client))
	enrollmentSvc := enrollment.NewService(enrollment.NewRepository(db.Client), limiter, auditLog, cfg.EnrollPerHour)
	attendanceSvc := attendance.NewService(attendance.NewRepository(db.Client))
	auditRepo := audit.NewRepository(db.Client)

	h := handler.New(cfg, accountsSvc, catalogSvc, enrollmentSvc, attendanceSvc, auditRepo, sessions, db, redisClient)

	r := gin.New()

	r.Use(gin.Recovery())

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(cors.New(corsConfig(cfg)))
	r.Use(securityHeaders())
	r.Use(metrics.Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// corsConfig allows the configured frontend origins with credentials, so the
// session cookie and CSRF header survive cross-origin calls.
func corsConfig(cfg config.App) cors.Config {
	var origins []string
	for _, o := range strings.Split(cfg.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", auth.CSRFHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
