package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/finsight/semcache/pkg/cache"
	"github.com/finsight/semcache/pkg/logging"
)

const (
	sweepInterval = time.Hour
	sweepMaxAge   = 30 * 24 * time.Hour
)

func main() {
	// Configuration from environment
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	maxSize := getEnvInt("MAX_CACHE_SIZE", 1000)
	logLevel := getEnv("LOG_LEVEL", "info")

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Output: os.Stderr,
	})
	logger = logger.With().Str("component", "server").Logger()

	// Setup Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", redisURL).Msg("Connected to Redis")

	cfg := cache.DefaultConfig(cache.NewRedisStore(redisClient))
	cfg.MaxSize = maxSize
	manager, err := cache.NewManager(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache manager")
	}

	// Recover mirrored entries from the previous run, then keep stale
	// entries swept in the background.
	if err := manager.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("Restore from durable store incomplete")
	}
	manager.StartSweeper(ctx, sweepInterval, sweepMaxAge)

	addr := ":" + port
	logger.Info().Str("addr", addr).Int("max_size", maxSize).Msg("Starting semantic cache server")

	if err := http.ListenAndServe(addr, newMux(manager, logger)); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// newMux assembles the HTTP routes.
func newMux(manager *cache.Manager, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/cache/{domain}/get", getHandler(manager, logger))
	mux.HandleFunc("POST /v1/cache/{domain}/put", putHandler(manager, logger))
	mux.HandleFunc("POST /v1/expired", expiredHandler(manager))
	mux.HandleFunc("POST /v1/optimize", optimizeHandler(manager))
	mux.HandleFunc("GET /v1/metrics", metricsHandler(manager))
	mux.HandleFunc("GET /v1/analytics", analyticsHandler(manager))
	mux.HandleFunc("GET /health", healthHandler(manager))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// lookupRequest carries the key fields for all three cache domains plus
// the optional similarity inputs. Which fields matter depends on the
// domain in the URL.
type lookupRequest struct {
	Query        string    `json:"query,omitempty"`
	FirstMessage bool      `json:"first_message,omitempty"`
	Ticker       string    `json:"ticker,omitempty"`
	DataType     string    `json:"data_type,omitempty"`
	CompanyName  string    `json:"company_name,omitempty"`
	Embedding    []float64 `json:"embedding,omitempty"`
	Threshold    float64   `json:"threshold,omitempty"`

	// Result is the value to cache; used by put only.
	Result json.RawMessage `json:"result,omitempty"`
}

func (r lookupRequest) key(domain string) cache.Key {
	switch domain {
	case cache.DomainQuery:
		return cache.QueryKey{Query: r.Query, FirstMessage: r.FirstMessage}
	case cache.DomainFinancial:
		dataType := r.DataType
		if dataType == "" {
			dataType = cache.DefaultDataType
		}
		return cache.FinancialKey{Ticker: r.Ticker, DataType: dataType}
	default:
		return cache.TickerKey{CompanyName: r.CompanyName}
	}
}

func getHandler(manager *cache.Manager, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domain := r.PathValue("domain")

		var req lookupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		value, err := manager.Get(domain, req.key(domain), req.Embedding, req.Threshold)
		if err != nil {
			writeCacheError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(value); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
		}
	}
}

func putHandler(manager *cache.Manager, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domain := r.PathValue("domain")

		var req lookupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Result) == 0 {
			http.Error(w, "result is required", http.StatusBadRequest)
			return
		}

		if err := manager.Put(r.Context(), domain, req.key(domain), req.Result, req.Embedding); err != nil {
			writeCacheError(w, err)
			logger.Warn().Err(err).Str("domain", domain).Msg("Cache put failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func expiredHandler(manager *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MaxAgeDays int `json:"max_age_days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.MaxAgeDays <= 0 {
			http.Error(w, "max_age_days must be positive", http.StatusBadRequest)
			return
		}

		removed := manager.ClearExpired(r.Context(), time.Duration(req.MaxAgeDays)*24*time.Hour)
		writeJSON(w, map[string]any{"removed": removed})
	}
}

func optimizeHandler(manager *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager.Optimize(r.Context())
		writeJSON(w, map[string]string{"status": "optimized"})
	}
}

func metricsHandler(manager *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manager.Metrics())
	}
}

func analyticsHandler(manager *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manager.Analytics())
	}
}

func healthHandler(manager *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := manager.HealthCheck(r.Context())
		if report.Overall == cache.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeJSON(w, report)
	}
}

// writeCacheError maps the cache error taxonomy onto HTTP statuses:
// misses are 404, caller errors 400, everything else 500.
func writeCacheError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		http.Error(w, "cache miss", http.StatusNotFound)
	case errors.Is(err, cache.ErrUnknownCache),
		errors.Is(err, cache.ErrInvalidKey),
		errors.Is(err, cache.ErrInvalidThreshold):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		var cacheErr *cache.CacheError
		if errors.As(err, &cacheErr) && cacheErr.Class == cache.ErrorClassCaller {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
