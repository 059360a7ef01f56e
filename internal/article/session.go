package article

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"kjtimes/internal/logger"
)

// ErrSessionNotFound is returned for unknown or expired draft sessions.
var ErrSessionNotFound = errors.New("draft session not found")

type session struct {
	saver    *AutoSaver
	ownerID  string
	lastSeen time.Time
}

// SessionManager keeps one AutoSaver per open editor tab.
type SessionManager struct {
	saver   Saver
	opts    AutoSaveOptions
	idleTTL time.Duration
	log     logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	onCount  func(n int)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager starts a manager that closes sessions idle for idleTTL.
func NewSessionManager(saver Saver, opts AutoSaveOptions, idleTTL time.Duration) *SessionManager {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	m := &SessionManager{
		saver:    saver,
		opts:     opts,
		idleTTL:  idleTTL,
		log:      log,
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.sweep()
	return m
}

// OnCountChange registers fn to receive the open session count whenever a
// session is opened or closed, including idle sessions the sweeper drops.
func (m *SessionManager) OnCountChange(fn func(n int)) {
	m.mu.Lock()
	m.onCount = fn
	m.mu.Unlock()
	m.reportCount()
}

func (m *SessionManager) reportCount() {
	m.mu.Lock()
	fn, n := m.onCount, len(m.sessions)
	m.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (m *SessionManager) sweep() {
	defer close(m.done)

	interval := m.idleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.closeIdle(now)
		}
	}
}

func (m *SessionManager) closeIdle(now time.Time) {
	var stale []*AutoSaver
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) > m.idleTTL {
			stale = append(stale, s.saver)
			delete(m.sessions, id)
			m.log.Info("closing idle draft session", logger.String("session_id", id))
		}
	}
	m.mu.Unlock()

	for _, saver := range stale {
		saver.Close()
	}
	if len(stale) > 0 {
		m.reportCount()
	}
}

// Open starts a session for form and returns its id.
func (m *SessionManager) Open(form Form, ownerID string) (string, SessionState) {
	id := uuid.NewString()
	saver := NewAutoSaver(m.saver, form, ownerID, m.opts)

	m.mu.Lock()
	m.sessions[id] = &session{saver: saver, ownerID: ownerID, lastSeen: time.Now()}
	m.mu.Unlock()
	m.reportCount()

	return id, saver.State()
}

func (m *SessionManager) get(id, ownerID string) (*AutoSaver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.ownerID != ownerID {
		return nil, ErrSessionNotFound
	}
	s.lastSeen = time.Now()
	return s.saver, nil
}

// Update pushes new form contents into a session.
func (m *SessionManager) Update(id, ownerID string, form Form) (SessionState, error) {
	saver, err := m.get(id, ownerID)
	if err != nil {
		return SessionState{}, err
	}
	saver.Update(form)
	return saver.State(), nil
}

// State reports the session's auto-save status.
func (m *SessionManager) State(id, ownerID string) (SessionState, error) {
	saver, err := m.get(id, ownerID)
	if err != nil {
		return SessionState{}, err
	}
	return saver.State(), nil
}

// Save performs a manual save through the session.
func (m *SessionManager) Save(ctx context.Context, id, ownerID string, target Status) (SaveResult, error) {
	saver, err := m.get(id, ownerID)
	if err != nil {
		return SaveResult{}, err
	}
	return saver.ManualSave(ctx, target)
}

// Close ends a session.
func (m *SessionManager) Close(id, ownerID string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.ownerID != ownerID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	m.reportCount()

	s.saver.Close()
	return nil
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session and stops the sweeper.
func (m *SessionManager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})

	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range all {
		s.saver.Close()
	}
	m.reportCount()
}
