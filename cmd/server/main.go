package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/saleslens/saleslens/internal/analytics"
	"github.com/saleslens/saleslens/internal/cache"
	"github.com/saleslens/saleslens/internal/config"
	"github.com/saleslens/saleslens/internal/crm"
	"github.com/saleslens/saleslens/internal/encoding"
	"github.com/saleslens/saleslens/internal/errors"
	"github.com/saleslens/saleslens/internal/export"
	"github.com/saleslens/saleslens/internal/middleware"
	"github.com/saleslens/saleslens/internal/monitoring"
	"github.com/saleslens/saleslens/internal/notify"
	"github.com/saleslens/saleslens/internal/ratelimit"
	"github.com/saleslens/saleslens/internal/resilience"
	"github.com/saleslens/saleslens/internal/scheduler"
	"github.com/saleslens/saleslens/internal/security"
	"github.com/saleslens/saleslens/internal/types"
	"github.com/saleslens/saleslens/internal/writeback"
)

// application bundles the wired service graph behind the HTTP surface.
type application struct {
	cfg    *config.Config
	logger *monitoring.Logger

	metrics       *monitoring.Metrics
	memoryMonitor *monitoring.MemoryMonitor

	source    crm.DataSource
	scorer    *analytics.LeadScorer
	analyser  *analytics.PipelineAnalyser
	predictor *analytics.ChurnPredictor
	notifier  *notify.Service
	writeback *writeback.Service
	exporter  *export.Writer
	runner    *scheduler.Runner
	sched     *scheduler.Scheduler

	redis       *ratelimit.RedisClient
	limiter     *ratelimit.RateLimiter
	cache       *cache.Cache
	compression *middleware.CompressionMiddleware
	security    *security.SecurityMiddleware
}

func newApplication(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: monitoring.NewMetrics(),
	}

	// Memory monitor nudges GC when analysis runs leave large result
	// sets behind.
	app.memoryMonitor = monitoring.NewMemoryMonitor(30*time.Second, 256*1024*1024, app.metrics, logger)

	app.source = crm.New(ctx, cfg.Salesforce)
	app.scorer = analytics.NewLeadScorer(cfg.Scoring.LeadWeights)
	app.analyser = analytics.NewPipelineAnalyser(cfg.Scoring.Stages, cfg.Scoring.CoverageQuota)
	app.predictor = analytics.NewChurnPredictor(analytics.ChurnThresholds{
		High:   cfg.Scoring.ChurnHighThreshold,
		Medium: cfg.Scoring.ChurnMediumThreshold,
	})

	app.notifier = notify.NewService(cfg.Notify)
	app.writeback = writeback.NewService(app.source)
	app.exporter = export.NewWriter(cfg.ExportDir)

	app.runner = scheduler.NewRunner(scheduler.RunnerOptions{
		Source:           app.source,
		Scorer:           app.scorer,
		Analyser:         app.analyser,
		Predictor:        app.predictor,
		Notifier:         app.notifier,
		Writeback:        app.writeback,
		Exporter:         app.exporter,
		WritebackEnabled: cfg.WritebackEnabled,
	})

	sched, err := scheduler.New(app.runner, cfg.AnalysisSchedule, cfg.SummarySchedule)
	if err != nil {
		return nil, err
	}
	app.sched = sched

	// Rate limiting: Redis sliding window when configured, in-process
	// token buckets otherwise.
	redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, "", 0)
	if err != nil {
		slog.Warn("Redis unavailable, using in-memory rate limiting", "error", err)
	}
	app.redis = redisClient
	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.IPLimitPerMin = cfg.RateLimitPerMinute
	app.limiter = ratelimit.NewRateLimiter(redisClient, limiterConfig, app.metrics)

	app.cache = cache.NewCache(cfg.CacheTTL)
	app.compression = middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())
	app.security = security.NewSecurityMiddleware(security.DefaultSecurityConfig())

	return app, nil
}

// shutdown releases background workers and external connections.
func (app *application) shutdown() {
	app.sched.Stop()
	app.limiter.Close()
	app.memoryMonitor.Stop()
	errors.SafeClose(app.source, "crm data source")
	if app.redis != nil {
		errors.SafeClose(app.redis, "redis client")
	}
}

// router builds the full middleware chain and route table.
func (app *application) router() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(security.DefaultSecurityConfig().TrustedProxies); err != nil {
		slog.Error("Failed to set trusted proxies", "error", err)
	}

	r.Use(app.compression.Handler())
	r.Use(monitoring.MonitoringMiddleware(app.metrics, app.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(app.logger))
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(security.SecurityHeadersMiddleware())
	r.Use(app.security.RequestTimeout)
	r.Use(app.security.ValidateContentType)
	r.Use(app.limiter.IPRateLimitMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(app.cfg.CORSOrigins) == 1 && app.cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = app.cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", app.handleHealth)

	// The /api group carries query validation plus the response cache;
	// analysis results only move when CRM data or scoring config does.
	api := r.Group("/api")
	api.Use(app.security.ValidateQueryParams)
	api.Use(app.cache.Middleware(app.metrics))

	api.GET("/leads/scores", app.handleLeadScores)
	api.GET("/leads/distribution", app.handleLeadDistribution)
	api.GET("/pipeline/health", app.handlePipelineHealth)
	api.GET("/pipeline/funnel", app.handlePipelineFunnel)
	api.GET("/churn/risk", app.handleChurnRisk)
	api.GET("/churn/accounts", app.handleChurnAccounts)
	api.GET("/dashboard/summary", app.handleDashboardSummary)
	api.GET("/alerts", app.handleAlerts)

	// Mutating endpoints get a tighter per-endpoint budget; a full
	// analysis or writeback run costs hundreds of CRM API calls.
	api.POST("/analysis/run", app.limiter.EndpointRateLimitMiddleware("analysis", 5), app.handleAnalysisRun)
	api.POST("/writeback/leads", app.limiter.EndpointRateLimitMiddleware("writeback", 5), app.handleWritebackLeads)
	api.POST("/writeback/churn", app.limiter.EndpointRateLimitMiddleware("writeback", 5), app.handleWritebackChurn)
	api.POST("/export", app.limiter.EndpointRateLimitMiddleware("export", 10), app.handleExport)

	r.GET("/metrics", app.handleMetrics)
	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.cache.Stats())
	})

	r.GET("/ratelimit/status", app.limiter.HandleRateLimitStatus())
	r.GET("/ratelimit/stats", app.limiter.HandleRateLimitStats())
	r.POST("/ratelimit/invalidate/:ip", app.limiter.HandleInvalidateIP())

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if os.Getenv("ENABLE_PPROF") == "true" {
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	return r
}

func (app *application) handleHealth(c *gin.Context) {
	services := resilience.GetAllServiceHealth()

	response := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
		"data_source": gin.H{
			"mock": app.cfg.Salesforce.UseMock,
		},
		"scheduler_jobs": app.sched.Jobs(),
		"services":       services,
	}

	for _, service := range services {
		if service.Level == resilience.LevelEmergency {
			response["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
	}

	c.JSON(http.StatusOK, response)
}

func (app *application) handleLeadScores(c *gin.Context) {
	leads, err := app.source.Leads(c.Request.Context(), 0)
	if err != nil {
		app.respondError(c, err)
		return
	}

	limit := parseLimit(c.Query("limit"))
	if limit <= 0 || limit > len(leads) {
		limit = len(leads)
	}
	scored := app.scorer.TopLeads(leads, limit)

	c.JSON(http.StatusOK, gin.H{
		"total_leads": len(leads),
		"returned":    len(scored),
		"leads":       encoding.Sanitize(scored),
	})
}

func (app *application) handleLeadDistribution(c *gin.Context) {
	leads, err := app.source.Leads(c.Request.Context(), 0)
	if err != nil {
		app.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, encoding.Sanitize(app.scorer.ScoreDistribution(leads)))
}

func (app *application) handlePipelineHealth(c *gin.Context) {
	opps, err := app.source.Opportunities(c.Request.Context(), 0)
	if err != nil {
		app.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, encoding.Sanitize(app.analyser.Analyse(opps)))
}

func (app *application) handlePipelineFunnel(c *gin.Context) {
	opps, err := app.source.Opportunities(c.Request.Context(), 0)
	if err != nil {
		app.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stages": app.analyser.Stages(),
		"funnel": encoding.Sanitize(app.analyser.StageFunnel(opps)),
	})
}

func (app *application) handleChurnRisk(c *gin.Context) {
	accounts, cases, opps, err := app.fetchAccountData(c.Request.Context())
	if err != nil {
		app.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, encoding.Sanitize(app.predictor.RiskSummary(accounts, cases, opps)))
}

func (app *application) handleChurnAccounts(c *gin.Context) {
	accounts, cases, opps, err := app.fetchAccountData(c.Request.Context())
	if err != nil {
		app.respondError(c, err)
		return
	}

	predicted := app.predictor.Predict(accounts, cases, opps)
	if level := c.Query("level"); level != "" {
		filtered := predicted[:0]
		for _, acc := range predicted {
			if string(acc.Level) == level {
				filtered = append(filtered, acc)
			}
		}
		predicted = filtered
	}
	if limit := parseLimit(c.Query("limit")); limit > 0 && limit < len(predicted) {
		predicted = predicted[:limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    len(predicted),
		"accounts": encoding.Sanitize(predicted),
	})
}

func (app *application) handleDashboardSummary(c *gin.Context) {
	ctx := c.Request.Context()
	leads, err := app.source.Leads(ctx, 0)
	if err != nil {
		app.respondError(c, err)
		return
	}
	accounts, cases, opps, err := app.fetchAccountData(ctx)
	if err != nil {
		app.respondError(c, err)
		return
	}

	report := app.analyser.Analyse(opps)
	c.JSON(http.StatusOK, gin.H{
		"generated_at":    time.Now().Format(time.RFC3339),
		"leads":           encoding.Sanitize(app.scorer.ScoreDistribution(leads)),
		"pipeline_health": encoding.Sanitize(report.HealthScore),
		"forecast":        encoding.Sanitize(report.Forecast),
		"churn":           encoding.Sanitize(app.predictor.RiskSummary(accounts, cases, opps)),
		"recent_alerts":   app.notifier.History(5),
	})
}

func (app *application) handleAlerts(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	alerts := app.notifier.History(limit)
	c.JSON(http.StatusOK, gin.H{
		"total":    len(alerts),
		"alerts":   alerts,
		"channels": app.notifier.Channels(),
	})
}

func (app *application) handleAnalysisRun(c *gin.Context) {
	result, err := app.runner.RunFull(c.Request.Context())
	if err != nil {
		app.respondError(c, err)
		return
	}
	app.metrics.IncrementAnalysisRuns()
	app.cache.Clear()

	c.JSON(http.StatusOK, gin.H{
		"started_at":   result.StartedAt.Format(time.RFC3339),
		"duration_ms":  result.DurationMS,
		"leads_scored": len(result.Leads),
		"distribution": encoding.Sanitize(result.Distribution),
		"pipeline":     encoding.Sanitize(result.Pipeline.HealthScore),
		"churn":        encoding.Sanitize(result.RiskSummary),
		"writeback":    result.Writeback,
		"export_paths": result.ExportPaths,
	})
}

func (app *application) handleWritebackLeads(c *gin.Context) {
	if !app.cfg.WritebackEnabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "writeback is disabled"})
		return
	}

	leads, err := app.source.Leads(c.Request.Context(), 0)
	if err != nil {
		app.respondError(c, err)
		return
	}

	scored := app.scorer.ScoreLeads(leads)
	result := app.writeback.UpdateLeadScores(c.Request.Context(), scored)
	tasks := app.writeback.CreateFollowUpTasks(c.Request.Context(), writeback.ActionableLeads(scored))
	app.metrics.AddWritebackRecords(result.Updated + tasks.Created)
	app.cache.Clear()

	c.JSON(http.StatusOK, gin.H{
		"lead_scores":     result,
		"follow_up_tasks": tasks,
	})
}

func (app *application) handleWritebackChurn(c *gin.Context) {
	if !app.cfg.WritebackEnabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "writeback is disabled"})
		return
	}

	accounts, cases, opps, err := app.fetchAccountData(c.Request.Context())
	if err != nil {
		app.respondError(c, err)
		return
	}

	predicted := app.predictor.Predict(accounts, cases, opps)
	result := app.writeback.UpdateChurnRisk(c.Request.Context(), predicted)
	tasks := app.writeback.CreateInterventionTasks(c.Request.Context(), writeback.HighRiskAccounts(predicted))
	app.metrics.AddWritebackRecords(result.Updated + tasks.Created)
	app.cache.Clear()

	c.JSON(http.StatusOK, gin.H{
		"churn_risk":         result,
		"intervention_tasks": tasks,
	})
}

func (app *application) handleExport(c *gin.Context) {
	var req struct {
		Format string `json:"format"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	format, err := export.ParseFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	leads, err := app.source.Leads(ctx, 0)
	if err != nil {
		app.respondError(c, err)
		return
	}
	accounts, cases, opps, err := app.fetchAccountData(ctx)
	if err != nil {
		app.respondError(c, err)
		return
	}

	paths, err := app.exporter.Write(export.Snapshot{
		GeneratedAt: time.Now().UTC(),
		Leads:       app.scorer.ScoreLeads(leads),
		Churn:       app.predictor.Predict(accounts, cases, opps),
		Funnel:      app.analyser.StageFunnel(opps),
		Pipeline:    app.analyser.Analyse(opps),
	}, format)
	if err != nil {
		app.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"format": string(format),
		"paths":  paths,
	})
}

func (app *application) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":     app.metrics.GetStats(),
		"memory":      app.memoryMonitor.GetStats(),
		"compression": app.compression.GetStats(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

// fetchAccountData pulls the three record sets churn prediction needs.
func (app *application) fetchAccountData(ctx context.Context) (accounts, cases, opps []types.Record, err error) {
	if accounts, err = app.source.Accounts(ctx, 0); err != nil {
		return nil, nil, nil, err
	}
	if cases, err = app.source.Cases(ctx, 0); err != nil {
		return nil, nil, nil, err
	}
	if opps, err = app.source.Opportunities(ctx, 0); err != nil {
		return nil, nil, nil, err
	}
	return accounts, cases, opps, nil
}

// respondError maps an error onto the API error envelope and logs it.
func (app *application) respondError(c *gin.Context, err error) {
	appErr := errors.ToAppError(err)
	errors.LogError(c, appErr)
	app.logger.APIErrorLogger(appErr, c.Request.Method, c.Request.URL.Path, c.ClientIP(), appErr.HTTPStatus)
	c.JSON(appErr.HTTPStatus, appErr)
}

// parseLimit parses a limit query value; bad or absent values mean no limit.
func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLogger(monitoring.ParseLevel(cfg.LogLevel))
	slog.SetDefault(appLogger.Logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		slog.Error("Failed to build application", "error", err)
		os.Exit(1)
	}

	app.memoryMonitor.Start()
	app.sched.Start()
	resilience.StartHealthChecks(ctx)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: app.router(),
	}

	go func() {
		slog.Info("Starting server", "addr", cfg.Addr, "mock_crm", cfg.Salesforce.UseMock)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
