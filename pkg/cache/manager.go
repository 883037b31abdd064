package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Cache domain names owned by the manager.
const (
	DomainQuery     = "query"
	DomainFinancial = "financial"
	DomainTicker    = "ticker"
)

// optimizeFillRatio is the fill level above which Optimize evicts early,
// before the hard capacity bound forces it.
const optimizeFillRatio = 0.8

// optimizeMaxAge is the expiry sweep age used by Optimize.
const optimizeMaxAge = 30 * 24 * time.Hour

// Config holds the manager configuration. All instances share it.
type Config struct {
	// Store is the durable backing store entries are mirrored to.
	Store Store

	// MaxSize bounds each cache instance.
	MaxSize int

	// SimilarityThreshold is the default threshold for similarity
	// fallback when the caller does not supply one. Must be in (0,1].
	SimilarityThreshold float64

	// Scoring is the popularity policy used for eviction ranking.
	Scoring ScoringPolicy

	// Index is the similarity strategy (default: LinearIndex).
	Index SimilarityIndex

	// Clock supplies time (default: SystemClock). Inject a manual
	// clock in tests.
	Clock Clock

	// WarmUpConcurrency bounds parallel seed puts during WarmUp.
	WarmUpConcurrency int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(store Store) Config {
	return Config{
		Store:               store,
		MaxSize:             1000,
		SimilarityThreshold: 0.9,
		Scoring:             DefaultScoringPolicy(),
		Index:               LinearIndex{},
		Clock:               SystemClock,
		WarmUpConcurrency:   4,
	}
}

// Manager owns the named cache instances and is the caller-facing
// boundary: typed per-domain accessors, aggregate metrics and analytics,
// optimization, expiry sweeps, warm-up and health checks. Construct one
// at process start and pass it by handle; there is no ambient global.
type Manager struct {
	config Config
	caches map[string]*Cache
	logger zerolog.Logger
}

// NewManager creates a manager with the three standard cache domains.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive (got %d)", cfg.MaxSize)
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidThreshold, cfg.SimilarityThreshold)
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("scoring policy: %w", err)
	}
	if cfg.Index == nil {
		cfg.Index = LinearIndex{}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.WarmUpConcurrency <= 0 {
		cfg.WarmUpConcurrency = 4
	}

	logger := log.With().Str("component", "cache-manager").Logger()

	m := &Manager{
		config: cfg,
		caches: make(map[string]*Cache),
		logger: logger,
	}
	for _, name := range []string{DomainQuery, DomainFinancial, DomainTicker} {
		m.caches[name] = newCache(name, cfg, logger)
	}

	logger.Info().Int("max_size", cfg.MaxSize).Msg("Cache manager initialized")
	return m, nil
}

// Cache returns the named instance.
func (m *Manager) Cache(domain string) (*Cache, error) {
	c, ok := m.caches[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCache, domain)
	}
	return c, nil
}

// Get routes a lookup to the named domain. A zero threshold selects the
// configured default.
func (m *Manager) Get(domain string, key Key, embedding []float64, threshold float64) (json.RawMessage, error) {
	c, err := m.Cache(domain)
	if err != nil {
		return nil, err
	}
	if threshold == 0 {
		threshold = m.config.SimilarityThreshold
	}
	return c.Get(key, embedding, threshold)
}

// Put routes an insert to the named domain.
func (m *Manager) Put(ctx context.Context, domain string, key Key, value json.RawMessage, embedding []float64) error {
	c, err := m.Cache(domain)
	if err != nil {
		return err
	}
	return c.Put(ctx, key, value, embedding)
}

// GetQuery looks up a cached analysis result for a query, with optional
// similarity fallback when an embedding is supplied. A zero threshold
// selects the configured default.
func (m *Manager) GetQuery(query string, firstMessage bool, embedding []float64, threshold float64) (json.RawMessage, error) {
	return m.Get(DomainQuery, QueryKey{Query: query, FirstMessage: firstMessage}, embedding, threshold)
}

// PutQuery caches an analysis result for a query.
func (m *Manager) PutQuery(ctx context.Context, query string, firstMessage bool, result json.RawMessage, embedding []float64) error {
	return m.Put(ctx, DomainQuery, QueryKey{Query: query, FirstMessage: firstMessage}, result, embedding)
}

// GetFinancial looks up a cached financial-data snapshot. An empty
// dataType selects DefaultDataType.
func (m *Manager) GetFinancial(ticker, dataType string) (json.RawMessage, error) {
	if dataType == "" {
		dataType = DefaultDataType
	}
	return m.Get(DomainFinancial, FinancialKey{Ticker: ticker, DataType: dataType}, nil, 0)
}

// PutFinancial caches a financial-data snapshot.
func (m *Manager) PutFinancial(ctx context.Context, ticker, dataType string, data json.RawMessage) error {
	if dataType == "" {
		dataType = DefaultDataType
	}
	return m.Put(ctx, DomainFinancial, FinancialKey{Ticker: ticker, DataType: dataType}, data, nil)
}

// GetTicker looks up a cached company-name-to-ticker resolution.
func (m *Manager) GetTicker(companyName string) (json.RawMessage, error) {
	return m.Get(DomainTicker, TickerKey{CompanyName: companyName}, nil, 0)
}

// PutTicker caches a ticker resolution record.
func (m *Manager) PutTicker(ctx context.Context, companyName string, data json.RawMessage) error {
	return m.Put(ctx, DomainTicker, TickerKey{CompanyName: companyName}, data, nil)
}

// ClearExpired sweeps every instance, removing entries idle longer than
// maxAge. Returns removals per domain.
func (m *Manager) ClearExpired(ctx context.Context, maxAge time.Duration) map[string]int {
	removed := make(map[string]int, len(m.caches))
	for name, c := range m.caches {
		removed[name] = c.ClearExpired(ctx, maxAge)
	}
	return removed
}

// OverallMetrics aggregates counters across all instances. Rates floor
// the denominator at 1, never skipping the computation.
type OverallMetrics struct {
	TotalHits           int64   `json:"total_hits"`
	TotalMisses         int64   `json:"total_misses"`
	TotalRequests       int64   `json:"total_requests"`
	TotalEvictions      int64   `json:"total_evictions"`
	TotalCacheSize      int     `json:"total_cache_size"`
	OverallHitRate      float64 `json:"overall_hit_rate"`
	OverallEvictionRate float64 `json:"overall_eviction_rate"`
}

// ManagerMetrics combines per-domain snapshots with the aggregate.
type ManagerMetrics struct {
	Caches  map[string]MetricsSnapshot `json:"caches"`
	Overall OverallMetrics             `json:"overall"`
}

// Metrics reports per-domain and aggregate counters.
func (m *Manager) Metrics() ManagerMetrics {
	out := ManagerMetrics{Caches: make(map[string]MetricsSnapshot, len(m.caches))}
	for name, c := range m.caches {
		snap := c.Metrics()
		out.Caches[name] = snap

		out.Overall.TotalHits += snap.Hits
		out.Overall.TotalMisses += snap.Misses
		out.Overall.TotalRequests += snap.Requests
		out.Overall.TotalEvictions += snap.Evictions
		out.Overall.TotalCacheSize += snap.Size
	}

	denom := float64(max(int64(1), out.Overall.TotalRequests))
	out.Overall.OverallHitRate = float64(out.Overall.TotalHits) / denom
	out.Overall.OverallEvictionRate = float64(out.Overall.TotalEvictions) / denom
	return out
}

// Analytics reports per-domain trend and efficiency summaries.
func (m *Manager) Analytics() map[string]AnalyticsSnapshot {
	out := make(map[string]AnalyticsSnapshot, len(m.caches))
	for name, c := range m.caches {
		out[name] = c.Analytics()
	}
	return out
}

// Optimize evicts early on any instance above 80% fill, then runs a
// 30-day expiry sweep everywhere.
func (m *Manager) Optimize(ctx context.Context) {
	m.logger.Info().Msg("Starting cache optimization")

	for name, c := range m.caches {
		target := int(float64(c.MaxSize()) * optimizeFillRatio)
		if c.Size() > target {
			evicted := c.Shrink(ctx, target)
			m.logger.Info().
				Str("cache", name).
				Int("evicted", evicted).
				Msg("Early eviction for over-filled cache")
		}
	}
	m.ClearExpired(ctx, optimizeMaxAge)

	m.logger.Info().Msg("Cache optimization completed")
}

// HealthCheck probes every instance with a put/get/delete round-trip and
// reports per-instance plus aggregate status. Probe entries are always
// removed, on success and failure paths alike.
func (m *Manager) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{
		Timestamp: m.config.Clock.Now(),
		Overall:   StatusHealthy,
		Caches:    make(map[string]InstanceHealth, len(m.caches)),
	}

	for name, c := range m.caches {
		health := m.probeInstance(ctx, c)
		report.Caches[name] = health
		report.Overall = worse(report.Overall, health.Status)

		if health.Status != StatusHealthy {
			m.logger.Warn().
				Str("cache", name).
				Str("status", string(health.Status)).
				Str("error", health.Error).
				Msg("Cache instance not healthy")
		}
	}
	return report
}

// probeInstance runs the round-trip for one instance.
func (m *Manager) probeInstance(ctx context.Context, c *Cache) InstanceHealth {
	probe := probeKey{id: fmt.Sprintf("check-%d", m.config.Clock.Now().UnixNano())}
	payload := json.RawMessage(fmt.Sprintf(`{"status":"ok","probe":%q}`, probe.id))

	defer func() {
		if err := c.Remove(ctx, probe); err != nil {
			m.logger.Warn().Err(err).Str("cache", c.Name()).Msg("Failed to remove health probe")
		}
	}()

	if err := c.Put(ctx, probe, payload, nil); err != nil {
		return InstanceHealth{Status: StatusUnhealthy, Error: err.Error(), Metrics: c.Metrics()}
	}

	got, err := c.Get(probe, nil, 0)
	if err != nil {
		return InstanceHealth{Status: StatusUnhealthy, Error: err.Error(), Metrics: c.Metrics()}
	}
	if !bytes.Equal(got, payload) {
		return InstanceHealth{
			Status:  StatusDegraded,
			Error:   "probe read returned unexpected payload",
			Metrics: c.Metrics(),
		}
	}

	// Round-trip succeeded; the mirror may still be degraded.
	return InstanceHealth{Status: c.health.status(), Metrics: c.Metrics()}
}

// SeedRequest is one warm-up seed: a query with its precomputed result
// and optional embedding.
type SeedRequest struct {
	Query        string          `json:"query"`
	FirstMessage bool            `json:"first_message"`
	Embedding    []float64       `json:"embedding,omitempty"`
	Result       json.RawMessage `json:"result"`
}

// WarmUp pre-populates the query cache from seed requests with bounded
// concurrency. Best-effort: per-seed failures are logged and skipped.
// Returns the number of seeds cached.
func (m *Manager) WarmUp(ctx context.Context, seeds []SeedRequest) int {
	m.logger.Info().Int("seeds", len(seeds)).Msg("Warming up query cache")

	var (
		wg     sync.WaitGroup
		sem    = make(chan struct{}, m.config.WarmUpConcurrency)
		mu     sync.Mutex
		cached int
	)

	for _, seed := range seeds {
		wg.Add(1)
		sem <- struct{}{}
		go func(seed SeedRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			if len(seed.Result) == 0 {
				m.logger.Warn().Str("query", seed.Query).Msg("Skipping seed without result")
				return
			}
			if err := m.PutQuery(ctx, seed.Query, seed.FirstMessage, seed.Result, seed.Embedding); err != nil {
				m.logger.Warn().Err(err).Str("query", seed.Query).Msg("Skipping failed warm-up seed")
				return
			}
			mu.Lock()
			cached++
			mu.Unlock()
		}(seed)
	}
	wg.Wait()

	m.logger.Info().Int("cached", cached).Msg("Warm-up completed")
	return cached
}

// Restore loads every instance from the durable store. Startup only.
func (m *Manager) Restore(ctx context.Context) error {
	var errs []error
	for _, c := range m.caches {
		if err := c.Restore(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartSweeper runs a periodic expiry sweep until the context is
// cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.logger.Info().Msg("Expiry sweeper stopped")
				return
			case <-ticker.C:
				m.ClearExpired(ctx, maxAge)
			}
		}
	}()
}
