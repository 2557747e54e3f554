package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DatasetProvider hands out the dataset new sessions are created over.
type DatasetProvider interface {
	Current() *common.Dataset
}

// Manager keeps the live sessions of a server process.
type Manager struct {
	data DatasetProvider
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(ctx context.Context, data DatasetProvider, opts Options) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		data:     data,
		opts:     opts.withDefaults(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session over the current dataset. Width and height
// override the default canvas size when positive.
func (m *Manager) Create(width, height float64) (*Session, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, fmt.Errorf("manager closed: %w", err)
	}
	data := m.data.Current()
	if data == nil {
		return nil, ErrNoDataset
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	opts := m.opts
	if width > 0 {
		opts.Width = width
	}
	if height > 0 {
		opts.Height = height
	}
	s := NewSession(id, data, opts)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := s.Run(m.ctx)
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("[Viewer] session loop ended with error", "session_id", id, "err", err)
		}
	}()

	logger.Info("[Viewer] session started", "session_id", id, "dataset", data.Name,
		"entities", len(data.Entities), "relationships", len(data.Relationships))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops a session and waits for its loop to clean up.
func (m *Manager) Close(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Close()
	<-s.Stopped()

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	logger.Info("[Viewer] session closed", "session_id", id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll stops every session and waits for all loops to exit. The manager
// refuses new sessions afterwards.
func (m *Manager) CloseAll() {
	m.cancel()
	m.wg.Wait()
}

// Reap closes sessions idle since before now - IdleTimeout and returns how
// many it closed. A zero IdleTimeout disables reaping.
func (m *Manager) Reap(now time.Time) int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.opts.IdleTimeout)

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if err := m.Close(id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		logger.Info("[Viewer] reaped idle sessions", "count", closed)
	}
	return closed
}

// RunReaper calls Reap every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}
