package monitoring

import (
	"context"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	stkPushRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_stk_push_requests_total",
			Help: "STK push initiations by outcome",
		},
		[]string{"outcome"},
	)

	callbacksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_callbacks_total",
			Help: "Provider callbacks processed by result",
		},
		[]string{"result"},
	)

	statusQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_status_queries_total",
			Help: "Status queries by whether a provider re-query ran",
		},
		[]string{"refreshed"},
	)

	tokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpesa_token_refreshes_total",
			Help: "Credential exchanges performed against the provider",
		},
	)

	expiredPending = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpesa_expired_pending_total",
			Help: "Stale pending transactions expired by the sweep",
		},
	)

	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpesa_provider_request_duration_seconds",
			Help:    "Duration of provider round trips",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"endpoint"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// TrackSTKPush records an initiation outcome ("accepted", "rejected", ...).
func TrackSTKPush(outcome string) {
	stkPushRequests.WithLabelValues(outcome).Inc()
}

// TrackCallback records a processed callback result ("completed", "failed",
// "duplicate", "unknown", "malformed").
func TrackCallback(result string) {
	callbacksProcessed.WithLabelValues(result).Inc()
}

// TrackStatusQuery records a status query; refreshed marks whether a
// provider re-query ran for it.
func TrackStatusQuery(refreshed bool) {
	label := "no"
	if refreshed {
		label = "yes"
	}
	statusQueries.WithLabelValues(label).Inc()
}

func TrackTokenRefresh() {
	tokenRefreshes.Inc()
}

func TrackExpiredPending(n int64) {
	expiredPending.Add(float64(n))
}

// ObserveProviderRequest records one provider round trip duration.
func ObserveProviderRequest(endpoint string, d time.Duration) {
	providerRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	return &Monitor{redis: redisClient}
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			goroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Serve exposes /metrics on its own port until ctx is cancelled. The
// background collector shares the same lifetime.
func (m *Monitor) Serve(ctx context.Context, port string) {
	go m.collectMetrics(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server: %v", err)
	}
}
