// Package stream implements the server side of the chunked-upload session
// protocol: a state machine Started -> Accumulating -> Finalized/Expired
// keyed by a server-issued session id, with an idle timeout bounding how
// long an abandoned session retains resources.
package stream

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State enum
type State string

const (
	StateStarted      State = "started"
	StateAccumulating State = "accumulating"
	StateFinalized    State = "finalized"
	StateExpired      State = "expired"
)

var (
	ErrSessionNotFound = errors.New("stream session not found")
	ErrSessionClosed   = errors.New("stream session already finalized or expired")
)

const defaultIdleTimeout = 2 * time.Minute

// Session is one accumulation context.
type Session struct {
	ID        string
	State     State
	Chunks    int
	StartedAt time.Time
	LastSeen  time.Time
}

// Manager owns all live sessions and their spooled chunks.
type Manager struct {
	spool       *Spool
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	done chan struct{}
	once sync.Once
}

func NewManager(spool *Spool, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	m := &Manager{
		spool:       spool,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*Session),
		done:        make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Start issues a fresh session id.
func (m *Manager) Start() *Session {
	s := &Session{
		ID:        uuid.New().String(),
		State:     StateStarted,
		StartedAt: m.now(),
		LastSeen:  m.now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// AppendChunk spools one slice and returns the running chunk count.
func (m *Manager) AppendChunk(sessionID string, data []byte) (int, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return 0, ErrSessionNotFound
	}
	if s.State == StateFinalized || s.State == StateExpired {
		m.mu.Unlock()
		return 0, ErrSessionClosed
	}
	s.State = StateAccumulating
	seq := s.Chunks
	s.Chunks++
	s.LastSeen = m.now()
	m.mu.Unlock()

	if err := m.spool.Put(sessionID, seq, data); err != nil {
		return 0, fmt.Errorf("spool chunk %d: %w", seq, err)
	}

	// The spool write runs outside the lock, so a finalize or expiry can
	// purge the session while the write is in flight. Re-check and clean up
	// so no chunk outlives its session.
	m.mu.Lock()
	s, ok = m.sessions[sessionID]
	closed := !ok || s.State == StateFinalized || s.State == StateExpired
	m.mu.Unlock()
	if closed {
		if err := m.spool.Purge(sessionID); err != nil {
			log.Printf("stream: purge late chunk for %s: %v", sessionID, err)
		}
		return 0, ErrSessionClosed
	}
	return seq + 1, nil
}

// Finalize closes the session and returns the stitched audio. The mutex is
// held across the spool read so the close is atomic: a failed read leaves
// the session open with its chunks intact, and only a successful read
// transitions the state and drops the spool entries.
func (m *Manager) Finalize(sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.State == StateFinalized || s.State == StateExpired {
		return nil, ErrSessionClosed
	}

	chunks, err := m.spool.ReadAll(sessionID)
	if err != nil {
		// session stays open so the caller can retry
		return nil, err
	}

	s.State = StateFinalized
	s.LastSeen = m.now()
	if err := m.spool.Purge(sessionID); err != nil {
		log.Printf("stream: purge spool for %s: %v", sessionID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("session %s has no chunks", sessionID)
	}
	return ConcatWAV(chunks), nil
}

// Get returns a copy of the session record.
func (m *Manager) Get(sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

// Active counts sessions still accepting chunks.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.State == StateStarted || s.State == StateAccumulating {
			n++
		}
	}
	return n
}

func (m *Manager) janitor() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.expireIdle()
		}
	}
}

// expireIdle transitions idle accumulating sessions to Expired and frees
// their spool. Finalized/expired records older than one idle period are
// dropped entirely.
func (m *Manager) expireIdle() {
	now := m.now()

	m.mu.Lock()
	var purge []string
	for id, s := range m.sessions {
		switch s.State {
		case StateStarted, StateAccumulating:
			if now.Sub(s.LastSeen) > m.idleTimeout {
				s.State = StateExpired
				purge = append(purge, id)
			}
		case StateFinalized, StateExpired:
			if now.Sub(s.LastSeen) > 2*m.idleTimeout {
				delete(m.sessions, id)
			}
		}
	}
	m.mu.Unlock()

	for _, id := range purge {
		if err := m.spool.Purge(id); err != nil {
			log.Printf("stream: purge expired session %s: %v", id, err)
		} else {
			log.Printf("stream: expired idle session %s", id)
		}
	}
}

// Close stops the janitor. The spool is owned by the caller.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.done) })
}
