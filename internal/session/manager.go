package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/daicherr/orbis/internal/store"
)

// Repository persists serialized sessions.
type Repository interface {
	SaveSession(ctx context.Context, playerID int64, data []byte) error
	LoadSession(ctx context.Context, playerID int64) ([]byte, error)
}

// Manager caches one Context per player and writes them through to the
// repository.
type Manager struct {
	repo       Repository
	maxHistory int
	idlePause  int
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Context
}

func NewManager(repo Repository, maxHistory, idlePause int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:       repo,
		maxHistory: maxHistory,
		idlePause:  idlePause,
		logger:     logger,
		sessions:   make(map[int64]*Context),
	}
}

// Get returns the player's session, loading it from the repository or
// starting a new one at location.
func (m *Manager) Get(ctx context.Context, playerID int64, playerName, location string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[playerID]; ok {
		return c, nil
	}

	data, err := m.repo.LoadSession(ctx, playerID)
	switch {
	case err == nil:
		c, err := Unmarshal(data)
		if err != nil {
			m.logger.Warn("discarding unreadable session", "player_id", playerID, "err", err)
			break
		}
		m.sessions[playerID] = c
		return c, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load session %d: %w", playerID, err)
	}

	c := New(playerID, playerName, location)
	if m.maxHistory > 0 {
		c.MaxHistory = m.maxHistory
	}
	if m.idlePause > 0 {
		c.IdlePause = m.idlePause
	}
	m.sessions[playerID] = c
	m.logger.Info("session started", "player_id", playerID, "session_id", c.SessionID)
	return c, nil
}

// Save writes c through repo, which may be bound to an open transaction.
func (m *Manager) Save(ctx context.Context, repo Repository, c *Context) error {
	if repo == nil {
		repo = m.repo
	}
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("encode session %d: %w", c.PlayerID, err)
	}
	if err := repo.SaveSession(ctx, c.PlayerID, data); err != nil {
		return fmt.Errorf("save session %d: %w", c.PlayerID, err)
	}
	return nil
}

// Put replaces the cached session, e.g. with a copy after a commit.
func (m *Manager) Put(c *Context) {
	m.mu.Lock()
	m.sessions[c.PlayerID] = c
	m.mu.Unlock()
}

// Forget drops the cached session so the next Get reloads it.
func (m *Manager) Forget(playerID int64) {
	m.mu.Lock()
	delete(m.sessions, playerID)
	m.mu.Unlock()
}

// Clone deep-copies a context through its encoding.
func (c *Context) Clone() (*Context, error) {
	data, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
