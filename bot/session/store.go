// Package session keeps per-user pending photos awaiting an edit instruction.
// Sessions live only in process memory; durability is deliberately not provided.
package session

import (
	"sync"
	"time"
)

// Session links a received photo to the instruction expected next from the user.
type Session struct {
	UserID    int64
	PhotoRef  string
	CreatedAt time.Time
}

// Store holds at most one pending photo per user.
type Store interface {
	// Put records a pending photo for the user, replacing any previous one.
	Put(userID int64, photoRef string)
	// Take atomically removes and returns the user's pending session.
	// The second return value is false when no session exists.
	Take(userID int64) (Session, bool)
	// Clear drops the user's pending session if present.
	Clear(userID int64)
	// Has reports whether the user currently has a pending photo.
	Has(userID int64) bool
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStore constructs the in-memory Store used by the bot.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[int64]Session),
	}
}

// Put records a pending photo for the user. Last photo wins.
func (m *memoryStore) Put(userID int64, photoRef string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = Session{
		UserID:    userID,
		PhotoRef:  photoRef,
		CreatedAt: time.Now(),
	}
}

// Take removes and returns the session for the user in one step, so a
// concurrent duplicate text message consumes it at most once.
func (m *memoryStore) Take(userID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	return sess, ok
}

// Clear drops the user's pending session if present.
func (m *memoryStore) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Has reports whether the user currently has a pending photo.
func (m *memoryStore) Has(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[userID]
	return ok
}
