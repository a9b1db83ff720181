package session

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Manager is the locked registry of connected sessions. It guards itself;
// the driver calls it from the tick without further locking. Network writes
// always happen outside the registry lock.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session
	byPlayer map[string]string // player id → session id
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		byPlayer: make(map[string]string),
	}
}

// Add registers a session. Already-bound sessions are indexed for tells.
func (m *Manager) Add(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	if pid := s.PlayerID(); pid != "" {
		m.byPlayer[pid] = s.ID()
	}
}

// BindPlayer binds a registered session to a world living id and indexes it
// for targeted delivery.
func (m *Manager) BindPlayer(sessionID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session: unknown session %q", sessionID)
	}
	if other, taken := m.byPlayer[playerID]; taken && other != sessionID {
		return fmt.Errorf("session: player %q is already bound to session %s", playerID, other)
	}
	s.BindPlayer(playerID)
	m.byPlayer[playerID] = sessionID
	return nil
}

// Get returns the session with the given id, or nil.
func (m *Manager) Get(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// ByPlayer returns the session controlling the given player, or nil.
func (m *Manager) ByPlayer(playerID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPlayer[playerID]
	if !ok {
		return nil
	}
	return m.sessions[id]
}

// SendToPlayer writes one line to the player's console. It reports false
// when the player has no live session.
func (m *Manager) SendToPlayer(playerID, text string) bool {
	s := m.ByPlayer(playerID)
	if s == nil || s.Closed() {
		return false
	}
	s.Send(text)
	return true
}

// All returns every registered session, ordered by id.
func (m *Manager) All() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sortByID(out)
	return out
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Remove unregisters and returns the session, or nil if absent. The caller
// owns the returned session's teardown.
func (m *Manager) Remove(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id)
}

// Prune removes every closed session and returns them, ordered by id, for
// cleanup (player despawn, trace detach, metric decrement).
func (m *Manager) Prune() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var gone []Session
	for id, s := range m.sessions {
		if s.Closed() {
			gone = append(gone, m.removeLocked(id))
		}
	}
	sortByID(gone)
	return gone
}

// Broadcast writes one line to every session.
func (m *Manager) Broadcast(text string) {
	for _, s := range m.All() {
		s.Send(text)
	}
}

func (m *Manager) removeLocked(id string) Session {
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	if pid := s.PlayerID(); pid != "" {
		delete(m.byPlayer, pid)
	}
	return s
}

func sortByID(sessions []Session) {
	slices.SortFunc(sessions, func(a, b Session) int {
		return cmp.Compare(a.ID(), b.ID())
	})
}
