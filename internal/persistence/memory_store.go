package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/mkarling/intervu/pkg/api"
)

// MemoryStore is a goroutine-safe Store backed by maps. It is non-durable
// and intended for tests and local development.
//
// RunInTx holds the store lock for the whole unit of work, so transactions
// are fully serialized. Writes are staged on a transaction object and only
// applied to the maps when fn returns nil.
type MemoryStore struct {
	mu sync.Mutex

	sessions       map[string]*api.Session
	turns          map[string]*api.Turn
	turnsBySession map[string][]string
	attempts       map[string][]*api.Attempt
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:       make(map[string]*api.Session),
		turns:          make(map[string]*api.Turn),
		turnsBySession: make(map[string][]string),
		attempts:       make(map[string][]*api.Attempt),
	}
}

func cloneSession(s *api.Session) *api.Session {
	c := *s
	return &c
}

func cloneTurn(t *api.Turn) *api.Turn {
	c := *t
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		c.ClosedAt = &at
	}
	return &c
}

func cloneAttempt(a *api.Attempt) *api.Attempt {
	c := *a
	return &c
}

type memTx struct {
	store *MemoryStore

	stagedSessions map[string]*api.Session
	insertedIDs    map[string]bool
	newTurns       []*api.Turn
	closedTurns    map[string]time.Time
	newAttempts    []*api.Attempt
}

var _ Tx = (*memTx)(nil)

func (s *MemoryStore) RunInTx(ctx context.Context, sessionID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:          s,
		stagedSessions: make(map[string]*api.Session),
		insertedIDs:    make(map[string]bool),
		closedTurns:    make(map[string]time.Time),
	}

	if err := fn(tx); err != nil {
		return err
	}

	tx.apply()
	return nil
}

func (tx *memTx) apply() {
	s := tx.store
	for id, sess := range tx.stagedSessions {
		s.sessions[id] = cloneSession(sess)
	}
	for _, t := range tx.newTurns {
		s.turns[t.TurnID] = cloneTurn(t)
		s.turnsBySession[t.SessionID] = append(s.turnsBySession[t.SessionID], t.TurnID)
	}
	for id, at := range tx.closedTurns {
		closed := at
		s.turns[id].ClosedAt = &closed
	}
	for _, a := range tx.newAttempts {
		s.attempts[a.TurnID] = append(s.attempts[a.TurnID], cloneAttempt(a))
	}
}

func (tx *memTx) GetSession(id string) (*api.Session, error) {
	if staged, ok := tx.stagedSessions[id]; ok {
		return cloneSession(staged), nil
	}
	sess, ok := tx.store.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (tx *memTx) InsertSession(s *api.Session) error {
	if _, ok := tx.store.sessions[s.SessionID]; ok {
		return ErrDuplicateSession
	}
	if _, ok := tx.stagedSessions[s.SessionID]; ok {
		return ErrDuplicateSession
	}
	tx.stagedSessions[s.SessionID] = cloneSession(s)
	tx.insertedIDs[s.SessionID] = true
	return nil
}

func (tx *memTx) UpdateSession(s *api.Session) error {
	if _, ok := tx.store.sessions[s.SessionID]; !ok && !tx.insertedIDs[s.SessionID] {
		return ErrSessionNotFound
	}
	tx.stagedSessions[s.SessionID] = cloneSession(s)
	return nil
}

func (tx *memTx) OpenTurn(sessionID string) (*api.Turn, error) {
	for i := len(tx.newTurns) - 1; i >= 0; i-- {
		t := tx.newTurns[i]
		if t.SessionID == sessionID && t.ClosedAt == nil {
			if _, closed := tx.closedTurns[t.TurnID]; !closed {
				return cloneTurn(t), nil
			}
		}
	}
	for _, id := range tx.store.turnsBySession[sessionID] {
		t := tx.store.turns[id]
		if t.ClosedAt != nil {
			continue
		}
		if _, closed := tx.closedTurns[id]; closed {
			continue
		}
		return cloneTurn(t), nil
	}
	return nil, ErrTurnNotFound
}

func (tx *memTx) LastTurnIndex(sessionID string) (int, error) {
	last := -1
	for _, id := range tx.store.turnsBySession[sessionID] {
		if idx := tx.store.turns[id].TurnIndex; idx > last {
			last = idx
		}
	}
	for _, t := range tx.newTurns {
		if t.SessionID == sessionID && t.TurnIndex > last {
			last = t.TurnIndex
		}
	}
	return last, nil
}

func (tx *memTx) InsertTurn(t *api.Turn) error {
	tx.newTurns = append(tx.newTurns, cloneTurn(t))
	return nil
}

func (tx *memTx) CloseTurn(turnID string, at time.Time) error {
	for _, t := range tx.newTurns {
		if t.TurnID == turnID {
			tx.closedTurns[turnID] = at
			return nil
		}
	}
	if _, ok := tx.store.turns[turnID]; !ok {
		return ErrTurnNotFound
	}
	tx.closedTurns[turnID] = at
	return nil
}

func (tx *memTx) CountAttempts(turnID string) (int, error) {
	n := len(tx.store.attempts[turnID])
	for _, a := range tx.newAttempts {
		if a.TurnID == turnID {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) InsertAttempt(a *api.Attempt) error {
	tx.newAttempts = append(tx.newAttempts, cloneAttempt(a))
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*api.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*api.Session
	for _, sess := range s.sessions {
		if filter.State != "" && sess.State != filter.State {
			continue
		}
		result = append(result, cloneSession(sess))
	}
	return result, nil
}

func (s *MemoryStore) ListTurns(ctx context.Context, sessionID string) ([]*api.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*api.Turn
	for _, id := range s.turnsBySession[sessionID] {
		result = append(result, cloneTurn(s.turns[id]))
	}
	return result, nil
}

func (s *MemoryStore) ListAttempts(ctx context.Context, turnID string) ([]*api.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*api.Attempt
	for _, a := range s.attempts[turnID] {
		result = append(result, cloneAttempt(a))
	}
	return result, nil
}
