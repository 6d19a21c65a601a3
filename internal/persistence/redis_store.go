package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkarling/intervu/pkg/api"
)

// RedisStore is a Store backed by Redis. It uses a simple key structure:
//
//	<prefix>sess:<id>             => gob-encoded redisSessionPayload
//	<prefix>sess:<id>:turns       => LIST of turn IDs in presentation order
//	<prefix>sess:<id>:open        => turn ID of the open turn ("" when none)
//	<prefix>turn:<id>             => gob-encoded redisTurnPayload
//	<prefix>turn:<id>:attempts    => LIST of gob-encoded redisAttemptPayload
//	<prefix>idx:all               => SET of all session IDs
//	<prefix>idx:state:<state>     => SET of session IDs per state
//
// RunInTx maps the engine's optimistic-concurrency protocol onto a Redis
// WATCH on the session key: reads happen on the watched connection, writes
// are staged and flushed in one MULTI/EXEC pipeline. A conflicting write to
// the session between WATCH and EXEC aborts the transaction.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

type redisSessionPayload struct {
	SessionID      string
	CandidateID    string
	State          string
	CurrentNodeID  string
	GraphVersion   string
	RuntimeVersion int64
	StateUpdatedAt int64
}

type redisTurnPayload struct {
	TurnID      string
	SessionID   string
	NodeID      string
	TurnIndex   int
	PresentedAt int64
	ClosedAt    int64 // 0 while open
}

type redisAttemptPayload struct {
	AttemptID    string
	TurnID       string
	AttemptIndex int
	Payload      []byte
	IsFinal      bool
	SubmittedAt  int64
}

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "intervu:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "intervu:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keySession(id string) string { return s.prefix + "sess:" + id }
func (s *RedisStore) keyTurns(id string) string   { return s.prefix + "sess:" + id + ":turns" }
func (s *RedisStore) keyOpen(id string) string    { return s.prefix + "sess:" + id + ":open" }
func (s *RedisStore) keyTurn(id string) string    { return s.prefix + "turn:" + id }
func (s *RedisStore) keyAttempts(id string) string {
	return s.prefix + "turn:" + id + ":attempts"
}
func (s *RedisStore) keyAll() string { return s.prefix + "idx:all" }
func (s *RedisStore) keyState(state api.SessionState) string {
	return s.prefix + "idx:state:" + string(state)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func sessionToPayload(sess *api.Session) redisSessionPayload {
	return redisSessionPayload{
		SessionID:      sess.SessionID,
		CandidateID:    sess.CandidateID,
		State:          string(sess.State),
		CurrentNodeID:  sess.CurrentNodeID,
		GraphVersion:   sess.GraphVersion,
		RuntimeVersion: sess.RuntimeVersion,
		StateUpdatedAt: sess.StateUpdatedAt.UnixNano(),
	}
}

func payloadToSession(p redisSessionPayload) *api.Session {
	return &api.Session{
		SessionID:      p.SessionID,
		CandidateID:    p.CandidateID,
		State:          api.SessionState(p.State),
		CurrentNodeID:  p.CurrentNodeID,
		GraphVersion:   p.GraphVersion,
		RuntimeVersion: p.RuntimeVersion,
		StateUpdatedAt: time.Unix(0, p.StateUpdatedAt),
	}
}

func turnToPayload(t *api.Turn) redisTurnPayload {
	p := redisTurnPayload{
		TurnID:      t.TurnID,
		SessionID:   t.SessionID,
		NodeID:      t.NodeID,
		TurnIndex:   t.TurnIndex,
		PresentedAt: t.PresentedAt.UnixNano(),
	}
	if t.ClosedAt != nil {
		p.ClosedAt = t.ClosedAt.UnixNano()
	}
	return p
}

func payloadToTurn(p redisTurnPayload) *api.Turn {
	t := &api.Turn{
		TurnID:      p.TurnID,
		SessionID:   p.SessionID,
		NodeID:      p.NodeID,
		TurnIndex:   p.TurnIndex,
		PresentedAt: time.Unix(0, p.PresentedAt),
	}
	if p.ClosedAt != 0 {
		at := time.Unix(0, p.ClosedAt)
		t.ClosedAt = &at
	}
	return t
}

type redisTx struct {
	ctx   context.Context
	rtx   *redis.Tx
	store *RedisStore

	// ops are the staged writes, flushed in one MULTI/EXEC pipeline.
	ops []func(pipe redis.Pipeliner)

	// newTurns holds turns inserted earlier in this Tx; they are not yet
	// visible to reads on the watched connection, so CloseTurn consults
	// this map before Redis.
	newTurns map[string]redisTurnPayload
}

var _ Tx = (*redisTx)(nil)

func (s *RedisStore) RunInTx(ctx context.Context, sessionID string, fn func(tx Tx) error) error {
	return s.client.Watch(ctx, func(rtx *redis.Tx) error {
		t := &redisTx{ctx: ctx, rtx: rtx, store: s, newTurns: map[string]redisTurnPayload{}}

		if err := fn(t); err != nil {
			return err
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range t.ops {
				op(pipe)
			}
			return nil
		})
		return err
	}, s.keySession(sessionID))
}

func (t *redisTx) getSessionPayload(id string) (redisSessionPayload, error) {
	var p redisSessionPayload
	data, err := t.rtx.Get(t.ctx, t.store.keySession(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return p, ErrSessionNotFound
		}
		return p, err
	}
	if err := decodeGob(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

func (t *redisTx) GetSession(id string) (*api.Session, error) {
	p, err := t.getSessionPayload(id)
	if err != nil {
		return nil, err
	}
	return payloadToSession(p), nil
}

func (t *redisTx) InsertSession(s *api.Session) error {
	if _, err := t.getSessionPayload(s.SessionID); err == nil {
		return ErrDuplicateSession
	} else if !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	data, err := encodeGob(sessionToPayload(s))
	if err != nil {
		return err
	}

	store, state, id := t.store, s.State, s.SessionID
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, store.keySession(id), data, 0)
		pipe.SAdd(t.ctx, store.keyAll(), id)
		pipe.SAdd(t.ctx, store.keyState(state), id)
	})
	return nil
}

func (t *redisTx) UpdateSession(s *api.Session) error {
	old, err := t.getSessionPayload(s.SessionID)
	if err != nil {
		return err
	}

	data, err := encodeGob(sessionToPayload(s))
	if err != nil {
		return err
	}

	store, id := t.store, s.SessionID
	oldState := api.SessionState(old.State)
	newState := s.State
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, store.keySession(id), data, 0)
		if oldState != newState {
			pipe.SRem(t.ctx, store.keyState(oldState), id)
			pipe.SAdd(t.ctx, store.keyState(newState), id)
		}
	})
	return nil
}

func (t *redisTx) getTurnPayload(turnID string) (redisTurnPayload, error) {
	var p redisTurnPayload
	data, err := t.rtx.Get(t.ctx, t.store.keyTurn(turnID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return p, ErrTurnNotFound
		}
		return p, err
	}
	if err := decodeGob(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

func (t *redisTx) OpenTurn(sessionID string) (*api.Turn, error) {
	turnID, err := t.rtx.Get(t.ctx, t.store.keyOpen(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTurnNotFound
		}
		return nil, err
	}
	if turnID == "" {
		return nil, ErrTurnNotFound
	}

	p, err := t.getTurnPayload(turnID)
	if err != nil {
		return nil, err
	}
	return payloadToTurn(p), nil
}

func (t *redisTx) LastTurnIndex(sessionID string) (int, error) {
	// Turn indexes are contiguous from 0, so the list length determines
	// the highest index.
	n, err := t.rtx.LLen(t.ctx, t.store.keyTurns(sessionID)).Result()
	if err != nil {
		return -1, err
	}
	return int(n) - 1, nil
}

func (t *redisTx) InsertTurn(turn *api.Turn) error {
	p := turnToPayload(turn)
	data, err := encodeGob(p)
	if err != nil {
		return err
	}
	t.newTurns[turn.TurnID] = p

	store := t.store
	turnID, sessionID := turn.TurnID, turn.SessionID
	open := turn.ClosedAt == nil
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, store.keyTurn(turnID), data, 0)
		pipe.RPush(t.ctx, store.keyTurns(sessionID), turnID)
		if open {
			pipe.Set(t.ctx, store.keyOpen(sessionID), turnID, 0)
		}
	})
	return nil
}

func (t *redisTx) CloseTurn(turnID string, at time.Time) error {
	p, staged := t.newTurns[turnID]
	if !staged {
		var err error
		p, err = t.getTurnPayload(turnID)
		if err != nil {
			return err
		}
	}
	p.ClosedAt = at.UnixNano()

	data, err := encodeGob(p)
	if err != nil {
		return err
	}

	store, sessionID := t.store, p.SessionID
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, store.keyTurn(turnID), data, 0)
		pipe.Set(t.ctx, store.keyOpen(sessionID), "", 0)
	})
	return nil
}

func (t *redisTx) CountAttempts(turnID string) (int, error) {
	n, err := t.rtx.LLen(t.ctx, t.store.keyAttempts(turnID)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (t *redisTx) InsertAttempt(a *api.Attempt) error {
	payload, err := EncodeValue(a.Payload)
	if err != nil {
		return err
	}

	data, err := encodeGob(redisAttemptPayload{
		AttemptID:    a.AttemptID,
		TurnID:       a.TurnID,
		AttemptIndex: a.AttemptIndex,
		Payload:      payload,
		IsFinal:      a.IsFinal,
		SubmittedAt:  a.SubmittedAt.UnixNano(),
	})
	if err != nil {
		return err
	}

	store, turnID := t.store, a.TurnID
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.RPush(t.ctx, store.keyAttempts(turnID), data)
	})
	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*api.Session, error) {
	data, err := s.client.Get(ctx, s.keySession(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var p redisSessionPayload
	if err := decodeGob(data, &p); err != nil {
		return nil, err
	}
	return payloadToSession(p), nil
}

func (s *RedisStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error) {
	key := s.keyAll()
	if filter.State != "" {
		key = s.keyState(filter.State)
	}

	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var sessions []*api.Session
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				// Index can briefly lag the session keys; skip.
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *RedisStore) ListTurns(ctx context.Context, sessionID string) ([]*api.Turn, error) {
	ids, err := s.client.LRange(ctx, s.keyTurns(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var turns []*api.Turn
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.keyTurn(id)).Bytes()
		if err != nil {
			return nil, err
		}
		var p redisTurnPayload
		if err := decodeGob(data, &p); err != nil {
			return nil, err
		}
		turns = append(turns, payloadToTurn(p))
	}
	return turns, nil
}

func (s *RedisStore) ListAttempts(ctx context.Context, turnID string) ([]*api.Attempt, error) {
	entries, err := s.client.LRange(ctx, s.keyAttempts(turnID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var attempts []*api.Attempt
	for _, entry := range entries {
		var p redisAttemptPayload
		if err := decodeGob([]byte(entry), &p); err != nil {
			return nil, err
		}

		val, err := DecodeValue(p.Payload)
		if err != nil {
			return nil, err
		}

		attempts = append(attempts, &api.Attempt{
			AttemptID:    p.AttemptID,
			TurnID:       p.TurnID,
			AttemptIndex: p.AttemptIndex,
			Payload:      val,
			IsFinal:      p.IsFinal,
			SubmittedAt:  time.Unix(0, p.SubmittedAt),
		})
	}
	return attempts, nil
}
