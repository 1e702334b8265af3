// Package metrics exposes Prometheus metrics and the /healthz probe
// for the order gateway.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	OrdersTotal   *prometheus.CounterVec // labels: operation, status
	BrokerLatency prometheus.Histogram
	BatchSize     prometheus.Histogram

	AnalyzedTotal prometheus.Counter
	ModeState     prometheus.Gauge // 0=live, 1=analyze

	QueueDepth       *prometheus.GaugeVec // labels: tier
	PendingApprovals prometheus.Gauge
	AuditDropped     prometheus.Counter

	AuthFailures prometheus.Counter
	WSClients    prometheus.Gauge

	// Latency mirrors BrokerLatency with instant percentiles for the
	// health probe.
	Latency *LatencyTracker
}

// ObserveBrokerCall records one broker round-trip in both the histogram
// and the percentile tracker.
func (m *Metrics) ObserveBrokerCall(d time.Duration) {
	m.BrokerLatency.Observe(d.Seconds())
	m.Latency.Record(float64(d.Microseconds()) / 1000.0)
}

// New registers and returns all gateway metrics.
func New() *Metrics {
	m := &Metrics{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_orders_total",
			Help: "Order operations processed (by operation and status)",
		}, []string{"operation", "status"}),
		BrokerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_broker_latency_seconds",
			Help:    "Broker API round-trip latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_batch_size",
			Help:    "Child orders per basket/split/multi-leg batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		AnalyzedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_analyzed_orders_total",
			Help: "Orders captured in analyze mode without broker dispatch",
		}),
		ModeState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_mode_state",
			Help: "Execution mode (0=live, 1=analyze)",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_queue_depth",
			Help: "Deferred orders waiting per queue tier",
		}, []string{"tier"}),
		PendingApprovals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_pending_approvals",
			Help: "Orders parked in the approval queue",
		}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_dropped_total",
			Help: "Audit entries dropped because the buffer was full",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_auth_failures_total",
			Help: "Requests rejected for an invalid API key",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_ws_clients",
			Help: "Connected order-event WebSocket clients",
		}),
		Latency: NewLatencyTracker(10000),
	}

	prometheus.MustRegister(
		m.OrdersTotal,
		m.BrokerLatency,
		m.BatchSize,
		m.AnalyzedTotal,
		m.ModeState,
		m.QueueDepth,
		m.PendingApprovals,
		m.AuditDropped,
		m.AuthFailures,
		m.WSClients,
	)

	return m
}

// HealthStatus represents gateway health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool `json:"redis_connected"`
	SQLiteOK       bool `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// Submit, when set, adds broker submission percentiles to /healthz.
	Submit *LatencyTracker
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs dependency checks once immediately and then
// on the given interval, so /healthz is accurate from startup.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
		SubmitP50Ms     float64 `json:"submit_p50_ms"`
		SubmitP95Ms     float64 `json:"submit_p95_ms"`
		SubmitP99Ms     float64 `json:"submit_p99_ms"`
		SubmitSamples   int     `json:"submit_samples"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	if h.Submit != nil {
		status.SubmitP50Ms, status.SubmitP95Ms, status.SubmitP99Ms = h.Submit.Percentiles()
		status.SubmitSamples = h.Submit.Count()
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
