// Package metrics exposes the provider engine's Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelMethod      = "method"
	labelSubprovider = "subprovider"
	labelQuery       = "query"
)

type (
	Metrics struct {
		resolvedCounter *prometheus.CounterVec
		upstreamCounter *prometheus.CounterVec
		fetchCounter    *prometheus.CounterVec
		gateWait        prometheus.Histogram
	}
)

// NewCollector builds and registers the engine's collectors. Collectors that
// are already registered are reused rather than duplicated.
func NewCollector(prom prometheus.Registerer) (*Metrics, error) {
	resolvedCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_resolved",
			Help: "A counter for requests resolved locally, by method and subprovider.",
		},
		[]string{labelMethod, labelSubprovider},
	)

	upstreamCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_upstream_forwards",
			Help: "A counter for requests forwarded to the upstream transport.",
		},
		[]string{labelMethod},
	)

	fetchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_fallback_fetches",
			Help: "A counter for state fallback fetches issued upstream, by query kind.",
		},
		[]string{labelQuery},
	)

	gateWait := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_gate_wait_seconds",
			Help:    "Time spent waiting behind the execution gate.",
			Buckets: prometheus.DefBuckets,
		},
	)

	var err error
	if resolvedCounter, err = registerCollector(prom, resolvedCounter); err != nil {
		return nil, err
	}
	if upstreamCounter, err = registerCollector(prom, upstreamCounter); err != nil {
		return nil, err
	}
	if fetchCounter, err = registerCollector(prom, fetchCounter); err != nil {
		return nil, err
	}
	if gateWait, err = registerCollector(prom, gateWait); err != nil {
		return nil, err
	}

	return &Metrics{
		resolvedCounter: resolvedCounter,
		upstreamCounter: upstreamCounter,
		fetchCounter:    fetchCounter,
		gateWait:        gateWait,
	}, nil
}

func (c *Metrics) IncResolved(method, subprovider string) {
	c.resolvedCounter.With(prometheus.Labels{
		labelMethod:      method,
		labelSubprovider: subprovider,
	}).Inc()
}

func (c *Metrics) IncUpstreamForward(method string) {
	c.upstreamCounter.With(prometheus.Labels{labelMethod: method}).Inc()
}

func (c *Metrics) IncFallbackFetch(query string) {
	c.fetchCounter.With(prometheus.Labels{labelQuery: query}).Inc()
}

func (c *Metrics) ObserveGateWait(d time.Duration) {
	c.gateWait.Observe(d.Seconds())
}

var ErrWrongMetricType = errors.New("collector already registered with different type")

// registerCollector registers a Prometheus collector and returns the registered collector or an error
func registerCollector[T prometheus.Collector](prom prometheus.Registerer, c T) (T, error) {
	err := prom.Register(c)
	if err == nil {
		return c, nil // All good, returns the newly registered metric
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, err // Some other error
	}

	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return c, ErrWrongMetricType // Collector was already registered but with a different type
	}

	return existing, nil // Already registered, return it
}
