package main

import (
	"context"  // Context for Redis operations and shutdown
	"errors"   // http.ErrServerClosed check
	"net/http" // HTTP server
	"os/signal" // Shutdown signal handling
	"syscall"  // SIGTERM
	"time"     // Shutdown grace period

	"github.com/tenghuan/EaseBPMate/internal/api"        // Custom package for API handlers
	"github.com/tenghuan/EaseBPMate/internal/config"     // Custom package for configuration
	"github.com/tenghuan/EaseBPMate/internal/middleware" // Custom package for middleware
	"github.com/tenghuan/EaseBPMate/internal/store"      // Store implementations
	"github.com/tenghuan/EaseBPMate/internal/utils"      // Cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Connect to the database once for the whole process; TranslateError maps
	// driver constraint failures onto gorm's sentinel errors, which the store
	// layer relies on to report constraint violations
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}
	cache := utils.NewCache(redisClient) // Response cache

	// Build the stores over the shared DB handle
	users, readings := store.NewMySQL(db)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.New()                    // Gin router instance
	r.Use(middleware.RequestLogger()) // Structured request logging
	r.Use(gin.Recovery())             // Panic recovery

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// User routes
	r.POST("/user", api.CreateUserHandler(users, cache))       // Create user endpoint
	r.GET("/users", api.ListUsersHandler(users, cache))        // List users endpoint
	r.GET("/users/live", api.LiveUsersHandler(users))          // Live user list stream
	r.DELETE("/user/:id", api.DeleteUserHandler(users, cache)) // Cascade delete endpoint

	// Reading routes
	userGroup := r.Group("/user/:id")
	userGroup.POST("/reading", api.RecordReadingHandler(readings, cache)) // Dictated reading endpoint
	userGroup.GET("/readings", api.ListReadingsHandler(readings))         // Reading history endpoint
	userGroup.GET("/readings/live", api.LiveReadingsHandler(readings))    // Live reading stream
	userGroup.GET("/series", api.SeriesHandler(readings, cache))          // Chart series endpoint

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r} // HTTP server

	// Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		logrus.Info("Server running on " + cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done() // Wait for shutdown signal
	logrus.Info("Shutting down")

	// Drain in-flight requests, then terminate live queries and close the DB
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("shutdown incomplete: %v", err)
	}
	users.Close() // Deliver terminal errors to live subscribers
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close() // Close the database handle
	}
	_ = redisClient.Close() // Close the Redis client
}
