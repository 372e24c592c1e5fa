package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/metrics"
)

type TransportFactory func() Transport

// Manager owns the open sessions of the process. Sessions are kept in
// memory only.
type Manager struct {
	factory   TransportFactory
	publisher Publisher
	opts      Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(factory TransportFactory, publisher Publisher, opts Options) *Manager {
	return &Manager{
		factory:   factory,
		publisher: publisher,
		opts:      opts,
		sessions:  map[string]*Session{},
	}
}

func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.factory(), m.publisher, m.opts)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.SetActiveSessions(count)
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close cancels the session's turn, notifies subscribers and forgets it.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	metrics.SetActiveSessions(count)
	return s.close(ctx)
}

func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
