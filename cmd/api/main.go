package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolboard/internal/attendance"
	"schoolboard/internal/auth"
	"schoolboard/internal/blob"
	"schoolboard/internal/cloudinary"
	"schoolboard/internal/config"
	"schoolboard/internal/courses"
	"schoolboard/internal/credentials"
	"schoolboard/internal/feed"
	"schoolboard/internal/handler"
	"schoolboard/internal/httpmiddleware"
	"schoolboard/internal/logger"
	"schoolboard/internal/metrics"
	"schoolboard/internal/roster"
	"schoolboard/internal/schedule"
	"schoolboard/internal/staff"
	"schoolboard/internal/store"
)

// build is set with -ldflags "-X main.build=..."
var build = "develop"

func main() {
	cfg := config.Load()

	host, _ := os.Hostname()
	log := logger.New(os.Stdout, "API : ", logger.Options{Token: cfg.RollbarToken, Env: cfg.Env, Host: host, Version: build})
	defer log.Close()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", err)
	}
}

func runHTTP(cfg config.App, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base, err := store.Open(ctx, store.Options{Backend: cfg.DocStore, DatabaseURL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath})
	if err != nil {
		return errors.Wrap(err, "opening document store")
	}
	defer func() {
		_ = base.Close()
	}()

	var redisClient *store.Redis
	if cfg.FeedBackend == "redis" || cfg.RateLimitBackend == "redis" {
		if redisClient, err = store.NewRedis(cfg.RedisAddr); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var broker feed.Broker
	if cfg.FeedBackend == "redis" {
		broker = feed.NewRedis(redisClient.Client, "schoolboard:changes")
	} else {
		broker = feed.NewInMemory()
	}
	docs := store.WithFeed(metrics.Instrument(base), broker)

	blobs, err := photoStore(cfg, log)
	if err != nil {
		return err
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "schoolboard:ratelimit:", cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	holidays, err := attendance.ParseHolidays(cfg.Holidays)
	if err != nil {
		return err
	}

	schedules := schedule.NewManager(docs)
	if err := schedules.Refresh(ctx); err != nil {
		log.Warn("schedule cache not warmed", err)
	}
	go func() {
		if err := schedules.Follow(ctx, broker); err != nil {
			log.Error("schedule feed stopped", err)
		}
	}()

	checks := map[string]handler.HealthCheck{}
	if sqlStore, ok := base.(*store.SQLStore); ok {
		checks["db"] = func(ctx context.Context) bool { return sqlStore.DB().PingContext(ctx) == nil }
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Healthy
	}

	h := handler.New(handler.Deps{
		Roster:     roster.NewService(docs, blobs, broker),
		Schedules:  schedules,
		Registry:   credentials.NewRegistry(docs),
		Staff:      staff.NewService(docs, blobs),
		Courses:    courses.NewService(docs),
		Attendance: attendance.NewService(attendance.NewRepository(docs), holidays),
		Issuer: auth.Issuer{
			Name:       cfg.JWTIssuer,
			Key:        cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Log:    log,
		Checks: checks,
	})

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter))
	r.Use(metrics.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if disk, ok := blobs.(*blob.Disk); ok {
		r.Static("/uploads", disk.Dir)
	}
	h.Register(r)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the student stream is long-lived
		IdleTimeout:  60 * time.Second,
		ErrorLog:     log.Std(),
		// cancelling ctx ends open student streams before Shutdown waits on them
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting server on :" + cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	cancel()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced shutdown", err)
	}

	log.Info("Server exited")
	return nil
}

// photoStore picks Cloudinary when it is configured and the upload dir otherwise.
func photoStore(cfg config.App, log *logger.Logger) (blob.Store, error) {
	if cfg.CloudinaryURL != "" {
		c, err := cloudinary.NewFromURL(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			return nil, err
		}
		log.Info("Cloudinary configured: " + c.CloudName)
		return c, nil
	}
	if cfg.CloudinaryEnabled() {
		log.Info("Cloudinary configured: " + cfg.CloudinaryCloudName)
		return cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder), nil
	}
	log.Info("Cloudinary not configured, storing uploads in " + cfg.UploadDir)
	return blob.NewDisk(cfg.UploadDir, cfg.PublicBaseURL+"/uploads")
}

// CORS middleware for browser requests
func corsMiddleware(origins []string) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		conf.AllowOriginFunc = func(string) bool { return true }
	} else {
		conf.AllowOrigins = origins
	}
	return cors.New(conf)
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
