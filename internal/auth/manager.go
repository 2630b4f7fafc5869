// ===============================
// internal/auth/manager.go - Operator Allow-List
// ===============================

package auth

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Manager decides who may run admin commands. Static admins come from the
// environment and can never be removed at runtime; auth users are granted by
// admins and, when a database is attached, survive restarts.
type Manager struct {
	mu     sync.RWMutex
	admins map[int64]bool
	users  map[int64]bool
	db     *sqlx.DB // nil means in-memory grants only
}

// NewManager builds the allow-list. Pass a nil db to keep grants in memory.
func NewManager(admins []int64, db *sqlx.DB) (*Manager, error) {
	m := &Manager{
		admins: make(map[int64]bool, len(admins)),
		users:  make(map[int64]bool),
		db:     db,
	}
	for _, id := range admins {
		m.admins[id] = true
	}

	if db != nil {
		var ids []int64
		if err := db.Select(&ids, "SELECT user_id FROM auth_users ORDER BY user_id"); err != nil {
			return nil, fmt.Errorf("failed to load auth users: %w", err)
		}
		for _, id := range ids {
			m.users[id] = true
		}
		log.Printf("🔐 Loaded %d auth users (%d static admins)", len(ids), len(admins))
	}
	return m, nil
}

// IsAdmin reports whether the user is a static admin.
func (m *Manager) IsAdmin(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admins[userID]
}

// IsAuthorized reports whether the user may run operator commands.
func (m *Manager) IsAuthorized(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admins[userID] || m.users[userID]
}

// Grant adds a user to the allow-list. Idempotent.
func (m *Manager) Grant(ctx context.Context, userID int64) error {
	if m.db != nil {
		_, err := m.db.ExecContext(ctx,
			"INSERT INTO auth_users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID)
		if err != nil {
			return fmt.Errorf("failed to grant user %d: %w", userID, err)
		}
	}

	m.mu.Lock()
	m.users[userID] = true
	m.mu.Unlock()
	log.Printf("🔓 Granted operator access to user %d", userID)
	return nil
}

// Revoke removes a granted user. Static admins cannot be revoked.
func (m *Manager) Revoke(ctx context.Context, userID int64) error {
	if m.IsAdmin(userID) {
		return fmt.Errorf("user %d is a static admin", userID)
	}

	if m.db != nil {
		if _, err := m.db.ExecContext(ctx, "DELETE FROM auth_users WHERE user_id = $1", userID); err != nil {
			return fmt.Errorf("failed to revoke user %d: %w", userID, err)
		}
	}

	m.mu.Lock()
	delete(m.users, userID)
	m.mu.Unlock()
	log.Printf("🔒 Revoked operator access for user %d", userID)
	return nil
}

// GrantedUsers lists the non-admin grants, ascending.
func (m *Manager) GrantedUsers() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
