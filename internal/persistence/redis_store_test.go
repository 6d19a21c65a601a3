package persistence

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mkarling/intervu/pkg/api"
)

const redisTestPrefix = "intervu:test:"

// RedisStoreTestSuite runs against a real Redis instance. Set REDIS_ADDR
// (e.g. localhost:6379) to enable it; otherwise the suite is skipped.
type RedisStoreTestSuite struct {
	suite.Suite
	client *redis.Client
	store  *RedisStore
	ctx    context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis store tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}

	ts := &RedisStoreTestSuite{
		client: client,
		store:  NewRedisStore(client, redisTestPrefix),
		ctx:    ctx,
	}
	suite.Run(t, ts)
}

func (r *RedisStoreTestSuite) SetupTest() {
	iter := r.client.Scan(r.ctx, 0, redisTestPrefix+"*", 0).Iterator()
	for iter.Next(r.ctx) {
		r.NoError(r.client.Del(r.ctx, iter.Val()).Err())
	}
	r.NoError(iter.Err())
}

func (r *RedisStoreTestSuite) TestSessionRoundTrip() {
	err := r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		return tx.InsertSession(&api.Session{
			SessionID:      "s1",
			CandidateID:    "cand-1",
			State:          api.StateCreated,
			GraphVersion:   "v1",
			StateUpdatedAt: time.Now(),
		})
	})
	r.NoError(err)

	got, err := r.store.GetSession(r.ctx, "s1")
	r.NoError(err)
	r.Equal("s1", got.SessionID)
	r.Equal(api.StateCreated, got.State)

	err = r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		sess, err := tx.GetSession("s1")
		if err != nil {
			return err
		}
		sess.State = api.StateRunning
		sess.CurrentNodeID = "N0"
		sess.RuntimeVersion = 1
		return tx.UpdateSession(sess)
	})
	r.NoError(err)

	got, err = r.store.GetSession(r.ctx, "s1")
	r.NoError(err)
	r.Equal(api.StateRunning, got.State)
	r.Equal("N0", got.CurrentNodeID)
	r.EqualValues(1, got.RuntimeVersion)
}

func (r *RedisStoreTestSuite) TestStateIndexFollowsUpdates() {
	err := r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		return tx.InsertSession(&api.Session{
			SessionID: "s1", CandidateID: "c", State: api.StateCreated, StateUpdatedAt: time.Now(),
		})
	})
	r.NoError(err)

	err = r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		sess, err := tx.GetSession("s1")
		if err != nil {
			return err
		}
		sess.State = api.StateRunning
		return tx.UpdateSession(sess)
	})
	r.NoError(err)

	running, err := r.store.ListSessions(r.ctx, SessionFilter{State: api.StateRunning})
	r.NoError(err)
	r.Len(running, 1)

	created, err := r.store.ListSessions(r.ctx, SessionFilter{State: api.StateCreated})
	r.NoError(err)
	r.Empty(created)
}

func (r *RedisStoreTestSuite) TestTurnAndAttemptLedger() {
	err := r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		if err := tx.InsertSession(&api.Session{
			SessionID: "s1", CandidateID: "c", State: api.StateRunning, StateUpdatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return tx.InsertTurn(&api.Turn{
			TurnID: "t1", SessionID: "s1", NodeID: "N0", TurnIndex: 0, PresentedAt: time.Now(),
		})
	})
	r.NoError(err)

	err = r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		open, err := tx.OpenTurn("s1")
		if err != nil {
			return err
		}
		r.Equal("t1", open.TurnID)

		count, err := tx.CountAttempts("t1")
		if err != nil {
			return err
		}
		r.Zero(count)

		return tx.InsertAttempt(&api.Attempt{
			AttemptID: "a1", TurnID: "t1", AttemptIndex: 0,
			Payload: map[string]any{"text": "answer"}, IsFinal: true, SubmittedAt: time.Now(),
		})
	})
	r.NoError(err)

	err = r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		if err := tx.CloseTurn("t1", time.Now()); err != nil {
			return err
		}
		last, err := tx.LastTurnIndex("s1")
		if err != nil {
			return err
		}
		r.Equal(0, last)
		return tx.InsertTurn(&api.Turn{
			TurnID: "t2", SessionID: "s1", NodeID: "N1", TurnIndex: 1, PresentedAt: time.Now(),
		})
	})
	r.NoError(err)

	turns, err := r.store.ListTurns(r.ctx, "s1")
	r.NoError(err)
	r.Len(turns, 2)
	r.False(turns[0].Open())
	r.True(turns[1].Open())

	attempts, err := r.store.ListAttempts(r.ctx, "t1")
	r.NoError(err)
	r.Len(attempts, 1)
	payload, ok := attempts[0].Payload.(map[string]any)
	r.True(ok)
	r.Equal("answer", payload["text"])
}

func (r *RedisStoreTestSuite) TestTurnCreatedAndClosedInOneTx() {
	err := r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		if err := tx.InsertSession(&api.Session{
			SessionID: "s1", CandidateID: "c", State: api.StateRunning, StateUpdatedAt: time.Now(),
		}); err != nil {
			return err
		}
		if err := tx.InsertTurn(&api.Turn{
			TurnID: "t1", SessionID: "s1", NodeID: "N0", TurnIndex: 0, PresentedAt: time.Now(),
		}); err != nil {
			return err
		}
		return tx.CloseTurn("t1", time.Now())
	})
	r.NoError(err)

	turns, err := r.store.ListTurns(r.ctx, "s1")
	r.NoError(err)
	r.Len(turns, 1)
	r.False(turns[0].Open())

	err = r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		_, err := tx.OpenTurn("s1")
		return err
	})
	r.ErrorIs(err, ErrTurnNotFound)
}

func (r *RedisStoreTestSuite) TestRollbackDiscardsStagedWrites() {
	boom := errors.New("boom")

	err := r.store.RunInTx(r.ctx, "s1", func(tx Tx) error {
		if err := tx.InsertSession(&api.Session{
			SessionID: "s1", CandidateID: "c", State: api.StateCreated, StateUpdatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	r.ErrorIs(err, boom)

	_, err = r.store.GetSession(r.ctx, "s1")
	r.ErrorIs(err, ErrSessionNotFound)
}
