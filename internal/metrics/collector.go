// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpEventReceived    = "event_received"
	OpDuplicateDropped = "duplicate_dropped"
	OpMalformedDropped = "malformed_dropped"
	OpAskSent          = "ask_sent"
	OpGroupJoin        = "group_join"
	OpReconnect        = "reconnect"
)

// Snapshot represents the full client statistics at a point in time.
type Snapshot struct {
	UptimeSeconds     float64
	EventsReceived    int64
	DuplicatesDropped int64
	MalformedDropped  int64
	AsksSent          int64
	GroupJoins        int64
	Reconnects        int64
}

// Collector aggregates in-memory counters for the hub client.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	counts    map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		counts:    make(map[string]int64),
	}
}

// Inc increments the counter for an operation.
func (c *Collector) Inc(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[op]++
}

// Count returns the current value of a single counter.
func (c *Collector) Count(op string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[op]
}

// Snapshot returns a point-in-time snapshot of all counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:     time.Since(c.startTime).Seconds(),
		EventsReceived:    c.counts[OpEventReceived],
		DuplicatesDropped: c.counts[OpDuplicateDropped],
		MalformedDropped:  c.counts[OpMalformedDropped],
		AsksSent:          c.counts[OpAskSent],
		GroupJoins:        c.counts[OpGroupJoin],
		Reconnects:        c.counts[OpReconnect],
	}
}
