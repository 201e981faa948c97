package server

import (
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
)

// promMetrics holds the server's private registry so concurrent servers in
// one process never collide on registration.
type promMetrics struct {
	registry       *prom.Registry
	requestsTotal  *prom.CounterVec
	searchesTotal  *prom.CounterVec
	searchDuration prom.Histogram
}

func newPromMetrics(s *Server) *promMetrics {
	m := &promMetrics{registry: prom.NewRegistry()}

	m.requestsTotal = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "foundry",
		Name:      "http_requests_total",
		Help:      "HTTP requests by operation and status class",
	}, []string{"op", "status"})
	m.searchesTotal = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "foundry",
		Name:      "searches_total",
		Help:      "Search requests by effective mode",
	}, []string{"mode"})
	m.searchDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "foundry",
		Name:      "search_duration_seconds",
		Help:      "Search latency",
		Buckets:   prom.DefBuckets,
	})
	chunksGauge := prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: "foundry",
		Name:      "index_chunks",
		Help:      "Chunks in the served snapshot",
	}, func() float64 { return float64(s.engine.Len()) })
	vectorsGauge := prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: "foundry",
		Name:      "index_vectors",
		Help:      "Embedded chunks in the served snapshot",
	}, func() float64 { return float64(s.engine.VectorCount()) })

	m.registry.MustRegister(m.requestsTotal, m.searchesTotal, m.searchDuration, chunksGauge, vectorsGauge)
	m.registry.MustRegister(
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return m
}
