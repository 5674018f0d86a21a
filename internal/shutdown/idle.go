// Package shutdown signals graceful exit after a period of inactivity, for
// platforms that stop idle machines.
package shutdown

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// IdleMonitor tracks request activity and closes Done once the server has
// seen no traffic and no background work for the configured timeout. A zero
// timeout disables it.
type IdleMonitor struct {
	timeout time.Duration
	busy    func() bool
	logger  *slog.Logger

	active       atomic.Int64
	lastActivity atomic.Int64 // unix nanos

	done chan struct{}
	stop chan struct{}
}

// NewIdleMonitor creates an idle monitor. busy may be nil; when set it keeps
// the server alive while background jobs are in flight.
func NewIdleMonitor(timeout time.Duration, busy func() bool, logger *slog.Logger) *IdleMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &IdleMonitor{
		timeout: timeout,
		busy:    busy,
		logger:  logger,
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	m.touch()
	return m
}

// Done is closed when the idle timeout is reached.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Middleware counts in-flight requests. Probe endpoints do not count as
// activity or the orchestrator would keep the machine alive forever.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if m.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}
		m.active.Add(1)
		m.touch()
		defer func() {
			m.active.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

// Start begins the idle check loop.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout)
	go m.run()
}

// Stop ends monitoring without signaling shutdown.
func (m *IdleMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}
	close(m.stop)
}

func (m *IdleMonitor) touch() {
	m.lastActivity.Store(time.Now().UnixNano())
}

func (m *IdleMonitor) run() {
	interval := m.timeout / 6
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.active.Load() > 0 || (m.busy != nil && m.busy()) {
				m.touch()
				continue
			}
			idle := time.Since(time.Unix(0, m.lastActivity.Load()))
			if idle >= m.timeout {
				m.logger.Info("idle timeout reached, signaling shutdown", "idle", idle)
				close(m.done)
				return
			}
		}
	}
}
