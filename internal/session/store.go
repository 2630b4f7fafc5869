// ===============================
// internal/session/store.go - Per-Operator Authoring Sessions
// ===============================

package session

import (
	"log"
	"sync"
	"time"

	"github.com/c-o-l-d-x/SeriesBoT/internal/models"
)

// Store holds at most one live authoring session per operator, in memory
// only. Sessions expire after a period of inactivity; expiry is checked
// lazily on access and a background sweep reclaims abandoned ones.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*models.Session
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions: make(map[int64]*models.Session),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Begin starts a fresh session for the operator, replacing any prior one.
func (s *Store) Begin(operatorID int64) *models.Session {
	sess := &models.Session{
		OperatorID:   operatorID,
		Step:         models.StepSelectingTarget,
		Level:        models.LevelSeries,
		LastActivity: time.Now(),
	}

	s.mu.Lock()
	s.sessions[operatorID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the operator's live session, or nil when there is none or it
// has expired. An expired session is dropped on the spot.
func (s *Store) Get(operatorID int64) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[operatorID]
	if !ok {
		return nil
	}
	if sess.Expired(s.ttl) {
		delete(s.sessions, operatorID)
		return nil
	}
	return sess
}

// Save touches and stores the session.
func (s *Store) Save(sess *models.Session) {
	sess.Touch()

	s.mu.Lock()
	s.sessions[sess.OperatorID] = sess
	s.mu.Unlock()
}

// End discards the operator's session, if any.
func (s *Store) End(operatorID int64) {
	s.mu.Lock()
	delete(s.sessions, operatorID)
	s.mu.Unlock()
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the background sweep.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			for id, sess := range s.sessions {
				if sess.Expired(s.ttl) {
					delete(s.sessions, id)
					log.Printf("🧹 Expired authoring session for operator %d", id)
				}
			}
			s.mu.Unlock()
		}
	}
}
