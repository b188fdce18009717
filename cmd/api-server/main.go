package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/configs"
	"github.com/enterprise/fraud-detection/internal/analytics"
	"github.com/enterprise/fraud-detection/internal/auth"
	"github.com/enterprise/fraud-detection/internal/detection"
	"github.com/enterprise/fraud-detection/internal/fraud"
	"github.com/enterprise/fraud-detection/internal/metrics"
	"github.com/enterprise/fraud-detection/internal/models"
	"github.com/enterprise/fraud-detection/internal/queue"
	"github.com/enterprise/fraud-detection/internal/repositories"
	"github.com/enterprise/fraud-detection/internal/services"
	"github.com/enterprise/fraud-detection/internal/transactions"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg := configs.Load()

	// Setup logging
	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting UPI Fraud Detection API Server")

	// Initialize database
	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	streamClient, err := queue.NewRedisStreamClient(cfg.Redis, cfg.Worker.DeadLetterStream)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}
	defer streamClient.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Cache")
	}
	defer cacheClient.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	txRepo := repositories.NewTransactionRepository(db)
	alertRepo := repositories.NewAlertRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Initialize the scoring pipeline
	fraudCfg := fraud.Config{
		Threshold:   cfg.Fraud.Threshold,
		AmountLimit: cfg.Fraud.AmountLimit,
		BatchLimit:  cfg.Fraud.BatchLimit,
	}
	adapter := fraud.NewModelAdapter(cfg.Fraud.Threshold)
	artifacts, err := fraud.LoadArtifacts(cfg.Fraud.ModelPath)
	if err != nil {
		log.Fatal().Err(err).Str("model_path", cfg.Fraud.ModelPath).Msg("Failed to load model artifacts")
	}
	adapter.Reload(artifacts)
	pipeline := fraud.NewPipeline(adapter, fraud.NewRuleEngine(fraudCfg), fraudCfg)

	// Initialize services
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	authService := services.NewAuthService(userRepo, jwtManager)
	detectionService := detection.NewService(pipeline, adapter, txRepo, auditRepo, streamClient, cacheClient, cacheClient, cfg.Fraud.ModelPath)
	txService := transactions.NewService(txRepo)
	analyticsService := analytics.NewService(txRepo, cacheClient)

	// Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())
	router.Use(metrics.Middleware())

	// Rate limiting: 100 requests per minute per IP
	rateLimiter := NewRateLimiter(100, time.Minute)
	router.Use(rateLimitMiddleware(rateLimiter))

	// Setup routes
	setupRoutes(router, jwtManager, authService, detectionService, txService, analyticsService, alertRepo, auditRepo, streamClient, cacheClient, db)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background pool stats sampling
	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	go metrics.StartPoolStatsCollector(statsCtx, db.Pool, 15*time.Second)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func setupRoutes(
	router *gin.Engine,
	jwtManager *auth.JWTManager,
	authService *services.AuthService,
	detectionService *detection.Service,
	txService *transactions.Service,
	analyticsService *analytics.Service,
	alertRepo *repositories.AlertRepository,
	auditRepo *repositories.AuditRepository,
	streamClient *queue.RedisStreamClient,
	cacheClient *queue.CacheClient,
	db *repositories.Database,
) {
	// Health check
	router.GET("/health", healthHandler(detectionService, cacheClient, db))

	// Prometheus metrics
	router.GET("/metrics", metrics.Handler())

	// API v1 routes
	v1 := router.Group("/api/v1")

	// Auth routes (public)
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", registerHandler(authService, auditRepo))
		authRoutes.POST("/login", loginHandler(authService, auditRepo))
		authRoutes.POST("/refresh", auth.AuthMiddleware(jwtManager), refreshTokenHandler(authService))
	}

	// Protected routes
	protected := v1.Group("")
	protected.Use(auth.AuthMiddleware(jwtManager))

	// Fraud routes
	fraudRoutes := protected.Group("/fraud")
	{
		fraudRoutes.POST("/check", checkHandler(detectionService))
		fraudRoutes.POST("/batch-check", batchCheckHandler(detectionService))
		fraudRoutes.POST("/feedback", feedbackHandler(detectionService))
		fraudRoutes.GET("/statistics", statisticsHandler(detectionService))
		fraudRoutes.GET("/model-info", modelInfoHandler(detectionService))
		fraudRoutes.GET("/model-health", modelHealthHandler(detectionService))
		fraudRoutes.POST("/model-reload", auth.RoleMiddleware(models.RoleAdmin), modelReloadHandler(detectionService))
	}

	// Transaction history routes
	txRoutes := protected.Group("/transactions")
	{
		txRoutes.GET("", listTransactionsHandler(txService))
		txRoutes.GET("/summary", transactionSummaryHandler(txService))
		txRoutes.GET("/export", exportTransactionsHandler(txService))
		txRoutes.GET("/:id", getTransactionHandler(txService))
	}

	// Analytics routes
	analyticsRoutes := protected.Group("/analytics")
	{
		analyticsRoutes.GET("/fraud-trends", fraudTrendsHandler(analyticsService))
		analyticsRoutes.GET("/risk-patterns", riskPatternsHandler(analyticsService))
		analyticsRoutes.GET("/metrics/system", auth.RoleMiddleware(models.RoleAdmin), systemMetricsHandler(analyticsService, streamClient, db))
	}

	// Alert routes (admin only)
	alertRoutes := protected.Group("/alerts")
	alertRoutes.Use(auth.RoleMiddleware(models.RoleAdmin))
	{
		alertRoutes.GET("", listAlertsHandler(alertRepo))
		alertRoutes.GET("/counts", alertCountsHandler(alertRepo))
		alertRoutes.PATCH("/:id/status", updateAlertStatusHandler(alertRepo))
	}

	// Audit routes (admin only)
	auditRoutes := protected.Group("/audit")
	auditRoutes.Use(auth.RoleMiddleware(models.RoleAdmin))
	{
		auditRoutes.GET("/recent", recentAuditHandler(auditRepo))
	}
}

// Middleware

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", c.GetString("request_id")).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter implements a simple in-memory rate limiter using token bucket algorithm
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Clean up old visitors periodically
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	// Refill tokens based on time elapsed
	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed / (rl.window / time.Duration(rl.rate)))
	v.tokens += refill
	if v.tokens > rl.rate {
		v.tokens = rl.rate
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

func rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Handlers

func healthHandler(detectionService *detection.Service, cacheClient *queue.CacheClient, db *repositories.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		components := gin.H{}
		healthy := true

		if err := db.HealthCheck(ctx); err != nil {
			components["database"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			components["database"] = "healthy"
		}

		if err := cacheClient.HealthCheck(ctx); err != nil {
			components["redis"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			components["redis"] = "healthy"
		}

		model := detectionService.ModelHealth()
		if model.Healthy {
			components["model"] = "healthy"
		} else {
			// Model degradation falls back to rule scoring; the service stays up.
			components["model"] = "degraded"
			components["model_issues"] = model.Issues
		}

		status := http.StatusOK
		overall := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":     overall,
			"components": components,
			"timestamp":  time.Now().Format(time.RFC3339),
		})
	}
}

func registerHandler(authService *services.AuthService, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrWeakPassword) || errors.Is(err, repositories.ErrUserAlreadyExists) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		auditAuthAction(c, auditRepo, models.AuditActionUserSignup, resp.User.ID)
		c.JSON(http.StatusCreated, resp)
	}
}

func loginHandler(authService *services.AuthService, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrInvalidCredentials) {
				status = http.StatusUnauthorized
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		auditAuthAction(c, auditRepo, models.AuditActionUserLogin, resp.User.ID)
		c.JSON(http.StatusOK, resp)
	}
}

func auditAuthAction(c *gin.Context, auditRepo *repositories.AuditRepository, action string, userID uuid.UUID) {
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		EntityType: "user",
		EntityID:   userID.String(),
		IPAddress:  c.ClientIP(),
		RequestID:  c.GetString("request_id"),
	}
	if err := auditRepo.Create(c.Request.Context(), entry); err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to create audit log")
	}
}

func refreshTokenHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if len(token) > 7 {
			token = token[7:] // Remove "Bearer "
		}

		resp, err := authService.RefreshToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func checkHandler(detectionService *detection.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req detection.CheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		decision, err := detectionService.Check(c.Request.Context(), userID, &req, c.GetString("request_id"), c.ClientIP())
		if err != nil {
			var vErr *fraud.ValidationError
			if errors.As(err, &vErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "field": vErr.Field})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, decision)
	}
}

func batchCheckHandler(detectionService *detection.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req detection.BatchCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := detectionService.CheckBatch(c.Request.Context(), userID, &req, c.GetString("request_id"), c.ClientIP())
		if err != nil {
			var vErr *fraud.ValidationError
			if errors.As(err, &vErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "field": vErr.Field})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func feedbackHandler(detectionService *detection.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req detection.FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := detectionService.Feedback(c.Request.Context(), userID, &req, c.GetString("request_id"), c.ClientIP()); err != nil {
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "feedback recorded"})
	}
}

func statisticsHandler(detectionService *detection.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		days := getIntParam(c, "days", 30)
		summary, err := detectionService.Statistics(c.Request.Context(), userID, days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

func modelInfoHandler(detectionService *detection.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, detectionService.ModelInfo())
	}
}

func modelHealthHandler(detectionService *detection.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := detectionService.ModelHealth()
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

func modelReloadHandler(detectionService *detection.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.GetUserIDFromContext(c)

		if err := detectionService.ReloadModel(c.Request.Context(), userID, c.GetString("request_id"), c.ClientIP()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "model reloaded",
			"model":   detectionService.ModelInfo(),
		})
	}
}

func listTransactionsHandler(txService *transactions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var q transactions.ListQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := txService.List(c.Request.Context(), userID, q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func transactionSummaryHandler(txService *transactions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		days := getIntParam(c, "days", 30)
		summary, err := txService.Summary(c.Request.Context(), userID, days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

func exportTransactionsHandler(txService *transactions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var q transactions.ListQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		filename := fmt.Sprintf("transactions-%s.csv", time.Now().Format("20060102-150405"))
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

		if err := txService.ExportCSV(c.Request.Context(), c.Writer, userID, q); err != nil {
			log.Error().Err(err).Msg("CSV export failed")
		}
	}
}

func getTransactionHandler(txService *transactions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		tx, err := txService.Get(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, tx)
	}
}

func fraudTrendsHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		days := getIntParam(c, "days", 30)
		report, err := analyticsService.GetFraudTrends(c.Request.Context(), userID, days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func riskPatternsHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		report, err := analyticsService.GetRiskPatterns(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func systemMetricsHandler(analyticsService *analytics.Service, streamClient *queue.RedisStreamClient, db *repositories.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := analyticsService.GetSystemMetrics(c.Request.Context(), db.Stats(), streamClient)
		c.JSON(http.StatusOK, snapshot)
	}
}

func listAlertsHandler(alertRepo *repositories.AlertRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		page := getIntParam(c, "page", 1)
		pageSize := getIntParam(c, "page_size", 20)

		alerts, total, err := alertRepo.List(c.Request.Context(), status, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"alerts": alerts,
			"pagination": gin.H{
				"page":      page,
				"page_size": pageSize,
				"total":     total,
			},
		})
	}
}

func alertCountsHandler(alertRepo *repositories.AlertRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := alertRepo.CountBySeverity(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"open_alerts": counts})
	}
}

func updateAlertStatusHandler(alertRepo *repositories.AlertRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
			return
		}

		var req struct {
			Status string `json:"status" binding:"required,oneof=open acknowledged resolved"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := alertRepo.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
			if errors.Is(err, repositories.ErrAlertNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "alert updated"})
	}
}

func recentAuditHandler(auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := getIntParam(c, "limit", 50)
		entries, err := auditRepo.GetRecent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

// Helper functions

func getIntParam(c *gin.Context, key string, defaultValue int) int {
	if val := c.Query(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil && result > 0 {
			return result
		}
	}
	return defaultValue
}
