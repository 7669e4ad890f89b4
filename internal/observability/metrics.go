package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters with latency totals.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	totalLatency map[string]time.Duration
}

// RouteStat is one aggregated route entry for the stats endpoint.
type RouteStat struct {
	Key        string        `json:"key"`
	Count      int64         `json:"count"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		totalLatency: make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.totalLatency[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Snapshot returns aggregated per-route stats sorted by key.
func (m *Metrics) Snapshot() []RouteStat {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]RouteStat, 0, len(m.requestCount))
	for key, count := range m.requestCount {
		avg := time.Duration(0)
		if count > 0 {
			avg = m.totalLatency[key] / time.Duration(count)
		}
		stats = append(stats, RouteStat{Key: key, Count: count, AvgLatency: avg})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
