// Package liveness tracks participant heartbeats and departs participants
// whose clients went away without saying goodbye. Heartbeat ingestion is a
// cheap map write; meeting state is only touched when a sweep finds a
// stale entry.
package liveness

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/registry"
	"github.com/npezzotti/go-meetsignal/internal/stats"
)

type key struct {
	meetingId string
	userId    string
}

type Monitor struct {
	log      *log.Logger
	reg      *registry.Registry
	stats    stats.StatsProvider
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	lastSeen map[key]time.Time

	stop chan struct{}
	done chan struct{}
}

func NewMonitor(logger *log.Logger, reg *registry.Registry, sp stats.StatsProvider, interval, timeout time.Duration) *Monitor {
	return &Monitor{
		log:      logger,
		reg:      reg,
		stats:    sp,
		interval: interval,
		timeout:  timeout,
		lastSeen: make(map[key]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Heartbeat records a liveness signal for a participant. It never touches
// meeting state, so clients can beat as often as they like.
func (m *Monitor) Heartbeat(meetingId, userId string) {
	m.mu.Lock()
	m.lastSeen[key{meetingId, userId}] = time.Now()
	m.mu.Unlock()

	m.stats.Incr(stats.HeartbeatsReceived)
}

// Forget drops a participant's liveness entry, e.g. after an explicit
// leave or kick.
func (m *Monitor) Forget(meetingId, userId string) {
	m.mu.Lock()
	delete(m.lastSeen, key{meetingId, userId})
	m.mu.Unlock()
}

// Run sweeps for stale participants until Shutdown is called.
func (m *Monitor) Run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// Shutdown stops the sweep loop and waits for it to exit.
func (m *Monitor) Shutdown() {
	close(m.stop)
	<-m.done
}

type staleEntry struct {
	k    key
	seen time.Time
}

func (m *Monitor) sweep() {
	cutoff := time.Now().Add(-m.timeout)

	m.mu.Lock()
	var stale []staleEntry
	for k, seen := range m.lastSeen {
		if seen.Before(cutoff) {
			stale = append(stale, staleEntry{k, seen})
			delete(m.lastSeen, k)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		m.log.Printf("user %q in meeting %q missed the heartbeat window", e.k.userId, e.k.meetingId)
		err := m.reg.Depart(e.k.meetingId, e.k.userId, database.ParticipantLeft, "", "")
		if err == nil {
			continue
		}
		m.log.Printf("departing stale user %q from meeting %q: %v", e.k.userId, e.k.meetingId, err)
		if errors.Is(err, registry.ErrMeetingNotFound) {
			continue
		}

		// transient failure: restore the entry so the next sweep retries,
		// unless a fresh heartbeat arrived in the meantime
		m.mu.Lock()
		if _, ok := m.lastSeen[e.k]; !ok {
			m.lastSeen[e.k] = e.seen
		}
		m.mu.Unlock()
	}
}
