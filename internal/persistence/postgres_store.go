package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/mkarling/intervu/pkg/api"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib" or "github.com/lib/pq").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			candidate_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			current_node_id TEXT NOT NULL DEFAULT '',
			graph_version TEXT NOT NULL DEFAULT '',
			runtime_version BIGINT NOT NULL DEFAULT 0,
			state_updated_at BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(session_id),
			node_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			presented_at BIGINT NOT NULL,
			closed_at BIGINT,
			UNIQUE (session_id, turn_index)
		);
		CREATE TABLE IF NOT EXISTS attempts (
			attempt_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL REFERENCES turns(turn_id),
			attempt_index INTEGER NOT NULL,
			answer_payload BYTEA,
			is_final BOOLEAN NOT NULL,
			submitted_at BIGINT NOT NULL,
			UNIQUE (turn_id, attempt_index)
		);
	`)
	return err
}

type postgresTx struct {
	tx *sql.Tx

	// readVersions records the runtime version each session had when this
	// transaction read it; UpdateSession pins its WHERE clause to it.
	readVersions map[string]int64
}

var _ Tx = (*postgresTx)(nil)

func (s *PostgresStore) RunInTx(ctx context.Context, sessionID string, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&postgresTx{tx: tx, readVersions: map[string]int64{}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (t *postgresTx) GetSession(id string) (*api.Session, error) {
	row := t.tx.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	t.readVersions[sess.SessionID] = sess.RuntimeVersion
	return sess, nil
}

func (t *postgresTx) InsertSession(s *api.Session) error {
	_, err := t.tx.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.SessionID,
		s.CandidateID,
		string(s.State),
		s.CurrentNodeID,
		s.GraphVersion,
		s.RuntimeVersion,
		s.StateUpdatedAt.UnixNano(),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateSession
	}
	return err
}

func (t *postgresTx) UpdateSession(s *api.Session) error {
	query := `
		UPDATE sessions
		SET candidate_id = $1, state = $2, current_node_id = $3, graph_version = $4, runtime_version = $5, state_updated_at = $6
		WHERE session_id = $7`
	args := []any{
		s.CandidateID,
		string(s.State),
		s.CurrentNodeID,
		s.GraphVersion,
		s.RuntimeVersion,
		s.StateUpdatedAt.UnixNano(),
		s.SessionID,
	}

	// Pin the update to the version this transaction read. Under READ
	// COMMITTED a blocked UPDATE re-evaluates its WHERE clause after the
	// competing writer commits, so the guard makes the loser affect zero
	// rows instead of silently overwriting the newer row.
	readVersion, guarded := t.readVersions[s.SessionID]
	if guarded {
		query += ` AND runtime_version = $8`
		args = append(args, readVersion)
	}

	res, err := t.tx.Exec(query, args...)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if guarded {
			return ErrVersionConflict
		}
		return ErrSessionNotFound
	}
	t.readVersions[s.SessionID] = s.RuntimeVersion
	return nil
}

func (t *postgresTx) OpenTurn(sessionID string) (*api.Turn, error) {
	row := t.tx.QueryRow(`
		SELECT `+turnColumns+` FROM turns
		WHERE session_id = $1 AND closed_at IS NULL`,
		sessionID,
	)
	return scanTurn(row)
}

func (t *postgresTx) LastTurnIndex(sessionID string) (int, error) {
	var last sql.NullInt64
	row := t.tx.QueryRow(`SELECT MAX(turn_index) FROM turns WHERE session_id = $1`, sessionID)
	if err := row.Scan(&last); err != nil {
		return -1, err
	}
	if !last.Valid {
		return -1, nil
	}
	return int(last.Int64), nil
}

func (t *postgresTx) InsertTurn(turn *api.Turn) error {
	_, err := t.tx.Exec(`
		INSERT INTO turns (`+turnColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULL)`,
		turn.TurnID,
		turn.SessionID,
		turn.NodeID,
		turn.TurnIndex,
		turn.PresentedAt.UnixNano(),
	)
	return err
}

func (t *postgresTx) CloseTurn(turnID string, at time.Time) error {
	res, err := t.tx.Exec(`UPDATE turns SET closed_at = $1 WHERE turn_id = $2`, at.UnixNano(), turnID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTurnNotFound
	}
	return nil
}

func (t *postgresTx) CountAttempts(turnID string) (int, error) {
	var n int
	row := t.tx.QueryRow(`SELECT COUNT(*) FROM attempts WHERE turn_id = $1`, turnID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *postgresTx) InsertAttempt(a *api.Attempt) error {
	payload, err := EncodeValue(a.Payload)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(`
		INSERT INTO attempts (attempt_id, turn_id, attempt_index, answer_payload, is_final, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.AttemptID,
		a.TurnID,
		a.AttemptIndex,
		payload,
		a.IsFinal,
		a.SubmittedAt.UnixNano(),
	)
	return err
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*api.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, id)
	return scanSession(row)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if filter.State != "" {
		query += ` WHERE state = $1`
		args = append(args, string(filter.State))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*api.Session
	for rows.Next() {
		var sess api.Session
		var state string
		var updatedAt int64

		if err := rows.Scan(
			&sess.SessionID,
			&sess.CandidateID,
			&state,
			&sess.CurrentNodeID,
			&sess.GraphVersion,
			&sess.RuntimeVersion,
			&updatedAt,
		); err != nil {
			return nil, err
		}

		sess.State = api.SessionState(state)
		sess.StateUpdatedAt = time.Unix(0, updatedAt)

		copied := sess
		sessions = append(sessions, &copied)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) ListTurns(ctx context.Context, sessionID string) ([]*api.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE session_id = $1
		ORDER BY turn_index ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []*api.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) ListAttempts(ctx context.Context, turnID string) ([]*api.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attempt_id, turn_id, attempt_index, answer_payload, is_final, submitted_at
		FROM attempts
		WHERE turn_id = $1
		ORDER BY attempt_index ASC`,
		turnID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*api.Attempt
	for rows.Next() {
		var a api.Attempt
		var payload []byte
		var submittedAt int64

		if err := rows.Scan(&a.AttemptID, &a.TurnID, &a.AttemptIndex, &payload, &a.IsFinal, &submittedAt); err != nil {
			return nil, err
		}

		val, err := DecodeValue(payload)
		if err != nil {
			return nil, err
		}
		a.Payload = val
		a.SubmittedAt = time.Unix(0, submittedAt)

		copied := a
		attempts = append(attempts, &copied)
	}
	return attempts, rows.Err()
}
