package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/af-corp/querysmith/internal/api"
	"github.com/af-corp/querysmith/internal/auth"
	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/filter"
	"github.com/af-corp/querysmith/internal/filter/injection"
	"github.com/af-corp/querysmith/internal/filter/policy"
	"github.com/af-corp/querysmith/internal/filter/secrets"
	"github.com/af-corp/querysmith/internal/llm"
	"github.com/af-corp/querysmith/internal/pipeline"
	"github.com/af-corp/querysmith/internal/ratelimit"
	"github.com/af-corp/querysmith/internal/sqlfmt"
	"github.com/af-corp/querysmith/internal/store"
	"github.com/af-corp/querysmith/internal/store/postgres"
	"github.com/af-corp/querysmith/internal/telemetry"
)

var version = "dev"

const grpcServiceName = "querysmith.v1.SQL"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := newLogger("info", "json")
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg := loader.Config()
	logger = newLogger(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	slog.SetDefault(logger)

	ctx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()

	if err := loader.Watch(ctx); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Connect to PostgreSQL
	db, err := postgres.Open(ctx, postgres.DBConfig{
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable (caches and rate limits disabled)", "error", err)
			rdb.Close()
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Build provider registry
	registry := llm.BuildFromConfig(ctx, loader.Providers())
	logger.Info("providers registered", "providers", registry.Names())
	loader.OnReload(func() {
		next := llm.BuildFromConfig(context.Background(), loader.Providers())
		registry.Replace(next)
		logger.Info("provider registry reloaded", "providers", next.Names())
	})

	breakers := cfg.Routing.CircuitBreaker
	healthTracker := llm.NewHealthTracker(breakers.FailureThreshold, breakers.RecoveryProbeInterval)
	healthTracker.OnTransition(func(provider string, from, to llm.CircuitState) {
		metrics.RecordCircuitTransition(provider, to.String(), int(to))
		logger.Warn("provider circuit changed", "provider", provider, "from", from.String(), "to", to.String())
	})
	model := llm.NewClient(loader.Models, registry, healthTracker, cfg.Routing, metrics, logger)

	// Request screening
	policyEval := policy.NewEvaluator(func() config.PolicyFilterConfig { return loader.Config().Filter.Policy })
	if policyEval.Enabled() {
		if err := policyEval.Load(); err != nil {
			logger.Error("failed to load policies", "error", err)
			os.Exit(1)
		}
	}
	loader.OnReload(func() {
		if !policyEval.Enabled() {
			return
		}
		if err := policyEval.Load(); err != nil {
			logger.Error("policy reload failed, keeping previous", "error", err)
		}
	})
	guard := filter.NewChain(metrics,
		secrets.NewScanner(func() config.SecretsFilterConfig { return loader.Config().Filter.Secrets }),
		injection.NewScanner(func() config.InjectionFilterConfig { return loader.Config().Filter.Injection }),
		policyEval,
	)

	// Persistence
	schemas := store.NewCachedSchemaStore(postgres.NewSchemaRepository(db), rdb, logger)
	history := postgres.NewHistoryRepository(db)
	var quota interface {
		pipeline.QuotaTracker
		api.UsageReader
	}
	switch cfg.Pipeline.QuotaBackend {
	case "postgres":
		quota = postgres.NewUsageRepository(db)
	default:
		quota = ratelimit.NewQuotaTracker(rdb)
	}
	logger.Info("quota backend selected", "backend", cfg.Pipeline.QuotaBackend)

	svc := pipeline.NewService(pipeline.Deps{
		Model:     model,
		Schemas:   schemas,
		Quota:     quota,
		History:   history,
		Guard:     guard,
		Formatter: sqlfmt.New(),
		Config:    loader.Pipeline,
		Metrics:   metrics,
		Logger:    logger,
	})
	handler := api.NewHandler(svc, history, schemas, quota, loader.Pipeline)
	keyStore := auth.NewCachedKeyStore(db, rdb)
	limiter := ratelimit.NewLimiter(rdb)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/healthz", healthHandler(healthTracker))
	if cfg.Telemetry.MetricsPort == 0 || cfg.Telemetry.MetricsPort == cfg.Server.Port {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Use(ratelimit.Middleware(limiter, cfg.Server.DefaultRPM, metrics))
		r.Post("/v1/sql", handler.RunSQL)
		r.Get("/v1/history", handler.ListHistory)
		r.Get("/v1/schema", handler.GetSchema)
		r.Put("/v1/schema", handler.PutSchema)
		r.Get("/v1/modes", handler.ListModes)
		r.Get("/v1/usage", handler.GetUsage)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 3)

	var metricsSrv *http.Server
	if cfg.Telemetry.MetricsPort != 0 && cfg.Telemetry.MetricsPort != cfg.Server.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Telemetry.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics server starting", "addr", metricsSrv.Addr)
			errCh <- metricsSrv.ListenAndServe()
		}()
	}

	// gRPC health for orchestrators that probe over gRPC
	grpcSrv, healthSrv := newGRPCHealth()
	if cfg.Server.GRPCHealthPort != 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCHealthPort))
		if err != nil {
			logger.Error("failed to listen for grpc health", "error", err)
			os.Exit(1)
		}
		go func() {
			logger.Info("grpc health server starting", "addr", lis.Addr().String())
			errCh <- grpcSrv.Serve(lis)
		}()
	}

	// Graceful shutdown
	go func() {
		logger.Info("querysmith starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	healthSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	grpcSrv.GracefulStop()
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("querysmith stopped")
}

// newGRPCHealth registers a health service reporting SERVING for the server
// as a whole and for grpcServiceName.
func newGRPCHealth() (*grpc.Server, *health.Server) {
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
	return grpcSrv, healthSrv
}

// newLogger builds the process logger from the telemetry settings.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

type healthResponse struct {
	Status    string              `json:"status"`
	Version   string              `json:"version"`
	Providers []llm.ProviderState `json:"providers"`
}

// healthHandler reports "degraded" while any provider circuit is open. The
// status code stays 200 so a single failing provider does not pull the pod.
func healthHandler(ht *llm.HealthTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "healthy", Version: version, Providers: ht.Snapshot()}
		if ht.AnyOpen() {
			resp.Status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
