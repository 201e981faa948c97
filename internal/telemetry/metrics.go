// Package telemetry records per-query search metrics for the stats surface.
// All data stays local; nothing is reported anywhere.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// QueryEvent is one recorded search.
type QueryEvent struct {
	ProjectID string
	Mode      string // semantic | keyword | hybrid | keyword_fallback
	Query     string
	Results   int
	Latency   time.Duration
	At        time.Time
}

// LatencyBucket is a histogram bucket label.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// BucketFor maps a query latency to its histogram bucket.
func BucketFor(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Ring is a fixed-capacity FIFO buffer; when full, the oldest entry is
// evicted.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
	cap   int
}

// NewRing returns a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity), cap: capacity}
}

// Add appends an item, evicting the oldest when full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = item
	r.head = (r.head + 1) % r.cap
	if r.size < r.cap {
		r.size++
	}
}

// Items returns the contents oldest-first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, r.size)
	if r.size < r.cap {
		copy(out, r.items[:r.size])
		return out
	}
	copy(out, r.items[r.head:])
	copy(out[r.cap-r.head:], r.items[:r.head])
	return out
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Terms extracts countable terms from a query: lowercased whitespace fields
// of at least three characters, matching the keyword tokenizer.
func Terms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount pairs a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of the recorder.
type Snapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	ModeCounts        map[string]int64        `json:"mode_counts"`
	Latency           map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms          []TermCount             `json:"top_terms"`
	RecentZeroQueries []string                `json:"zero_result_queries"`
	Since             time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries with no hits.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Recorder aggregates query events in memory. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	modes   map[string]int64
	latency map[LatencyBucket]int64
	terms   map[string]int64
	zero    *Ring[string]
	total   int64
	zeroes  int64
	since   time.Time
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		modes:   make(map[string]int64),
		latency: make(map[LatencyBucket]int64),
		terms:   make(map[string]int64),
		zero:    NewRing[string](100),
		since:   time.Now().UTC(),
	}
}

// Record adds one event.
func (r *Recorder) Record(ev QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	r.modes[ev.Mode]++
	r.latency[BucketFor(ev.Latency)]++
	for _, term := range Terms(ev.Query) {
		r.terms[term]++
	}
	if ev.Results == 0 {
		r.zeroes++
		r.zero.Add(ev.Query)
	}
}

// Snapshot returns a copy of the current aggregates. topN bounds the term
// list; 0 means 10.
func (r *Recorder) Snapshot(topN int) Snapshot {
	if topN <= 0 {
		topN = 10
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		TotalQueries:      r.total,
		ZeroResultCount:   r.zeroes,
		ModeCounts:        make(map[string]int64, len(r.modes)),
		Latency:           make(map[LatencyBucket]int64, len(r.latency)),
		RecentZeroQueries: r.zero.Items(),
		Since:             r.since,
	}
	for mode, n := range r.modes {
		snap.ModeCounts[mode] = n
	}
	for bucket, n := range r.latency {
		snap.Latency[bucket] = n
	}

	terms := make([]TermCount, 0, len(r.terms))
	for term, n := range r.terms {
		terms = append(terms, TermCount{Term: term, Count: n})
	}
	sort.Slice(terms, func(a, b int) bool {
		if terms[a].Count != terms[b].Count {
			return terms[a].Count > terms[b].Count
		}
		return terms[a].Term < terms[b].Term
	})
	if len(terms) > topN {
		terms = terms[:topN]
	}
	snap.TopTerms = terms
	return snap
}

// Drain returns the current aggregates and resets the recorder, for
// periodic flushing into the persistent store.
func (r *Recorder) Drain() Snapshot {
	// Keep every term so the persistent counts stay exact.
	snap := r.Snapshot(1 << 30)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = make(map[string]int64)
	r.latency = make(map[LatencyBucket]int64)
	r.terms = make(map[string]int64)
	r.zero = NewRing[string](100)
	r.total = 0
	r.zeroes = 0
	r.since = time.Now().UTC()
	return snap
}
