package workbench

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fidde/oxminer/internal/metrics"
)

// ManagerConfig bounds the live workbenches.
type ManagerConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	IdleTTL     time.Duration `yaml:"idle_ttl"`
	Session     Config        `yaml:"session"`
}

// Manager owns the live sessions.
type Manager struct {
	cfg     ManagerConfig
	backend Backend
	runs    RunRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig, backend Backend, runs RunRecorder, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		backend:  backend,
		runs:     runs,
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new workbench. Idle sessions are evicted first when the
// limit is reached.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.evictLocked(time.Now())
		if len(m.sessions) >= m.cfg.MaxSessions {
			return nil, ErrTooManySessions
		}
	}

	id := uuid.NewString()
	s := newSession(id, m.cfg.Session, m.backend, m.runs, m.logger, m.metrics)
	m.sessions[id] = s
	m.metrics.SetSessions(len(m.sessions))

	m.logger.Info("workbench created", "workbench", id, "live", len(m.sessions))
	return s, nil
}

// Get returns a live workbench.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Delete closes a workbench.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.metrics.SetSessions(len(m.sessions))
	m.logger.Info("workbench deleted", "workbench", id)
	return nil
}

// List returns snapshots of all live workbenches, most recently used first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out
}

// Len returns the number of live workbenches.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle drops sessions unused for longer than IdleTTL and returns how
// many were dropped.
func (m *Manager) EvictIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(now)
}

func (m *Manager) evictLocked(now time.Time) int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.cfg.IdleTTL {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.metrics.SetSessions(len(m.sessions))
		m.logger.Info("evicted idle workbenches", "count", evicted, "live", len(m.sessions))
	}
	return evicted
}

// Run evicts idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.cfg.IdleTTL <= 0 {
		return
	}
	interval := m.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.EvictIdle(now)
		}
	}
}
