package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mkarling/intervu/pkg/api"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			candidate_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			current_node_id TEXT NOT NULL DEFAULT '',
			graph_version TEXT NOT NULL DEFAULT '',
			runtime_version INTEGER NOT NULL DEFAULT 0,
			state_updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(session_id),
			node_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			presented_at INTEGER NOT NULL,
			closed_at INTEGER,
			UNIQUE (session_id, turn_index)
		);
		CREATE TABLE IF NOT EXISTS attempts (
			attempt_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL REFERENCES turns(turn_id),
			attempt_index INTEGER NOT NULL,
			answer_payload BLOB,
			is_final INTEGER NOT NULL,
			submitted_at INTEGER NOT NULL,
			UNIQUE (turn_id, attempt_index)
		);`,
	)
	return err
}

type sqliteTx struct {
	tx *sql.Tx

	// readVersions records the runtime version each session had when this
	// transaction read it; UpdateSession pins its WHERE clause to it.
	readVersions map[string]int64
}

var _ Tx = (*sqliteTx)(nil)

func (s *SQLiteStore) RunInTx(ctx context.Context, sessionID string, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&sqliteTx{tx: tx, readVersions: map[string]int64{}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanSession(row *sql.Row) (*api.Session, error) {
	var sess api.Session
	var state string
	var updatedAt int64

	err := row.Scan(
		&sess.SessionID,
		&sess.CandidateID,
		&state,
		&sess.CurrentNodeID,
		&sess.GraphVersion,
		&sess.RuntimeVersion,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	sess.State = api.SessionState(state)
	sess.StateUpdatedAt = time.Unix(0, updatedAt)
	return &sess, nil
}

const sessionColumns = `session_id, candidate_id, state, current_node_id, graph_version, runtime_version, state_updated_at`

func (t *sqliteTx) GetSession(id string) (*api.Session, error) {
	row := t.tx.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	t.readVersions[sess.SessionID] = sess.RuntimeVersion
	return sess, nil
}

func (t *sqliteTx) InsertSession(s *api.Session) error {
	_, err := t.tx.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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

func (t *sqliteTx) UpdateSession(s *api.Session) error {
	query := `
		UPDATE sessions
		SET candidate_id = ?, state = ?, current_node_id = ?, graph_version = ?, runtime_version = ?, state_updated_at = ?
		WHERE session_id = ?`
	args := []any{
		s.CandidateID,
		string(s.State),
		s.CurrentNodeID,
		s.GraphVersion,
		s.RuntimeVersion,
		s.StateUpdatedAt.UnixNano(),
		s.SessionID,
	}

	// Pin the update to the version this transaction read. A concurrent
	// commit in between leaves zero rows affected instead of silently
	// overwriting the newer row.
	readVersion, guarded := t.readVersions[s.SessionID]
	if guarded {
		query += ` AND runtime_version = ?`
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

const turnColumns = `turn_id, session_id, node_id, turn_index, presented_at, closed_at`

func scanTurn(scanner interface{ Scan(...any) error }) (*api.Turn, error) {
	var turn api.Turn
	var presentedAt int64
	var closedAt sql.NullInt64

	err := scanner.Scan(
		&turn.TurnID,
		&turn.SessionID,
		&turn.NodeID,
		&turn.TurnIndex,
		&presentedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTurnNotFound
		}
		return nil, err
	}

	turn.PresentedAt = time.Unix(0, presentedAt)
	if closedAt.Valid {
		at := time.Unix(0, closedAt.Int64)
		turn.ClosedAt = &at
	}
	return &turn, nil
}

func (t *sqliteTx) OpenTurn(sessionID string) (*api.Turn, error) {
	row := t.tx.QueryRow(`
		SELECT `+turnColumns+` FROM turns
		WHERE session_id = ? AND closed_at IS NULL`,
		sessionID,
	)
	return scanTurn(row)
}

func (t *sqliteTx) LastTurnIndex(sessionID string) (int, error) {
	var last sql.NullInt64
	row := t.tx.QueryRow(`SELECT MAX(turn_index) FROM turns WHERE session_id = ?`, sessionID)
	if err := row.Scan(&last); err != nil {
		return -1, err
	}
	if !last.Valid {
		return -1, nil
	}
	return int(last.Int64), nil
}

func (t *sqliteTx) InsertTurn(turn *api.Turn) error {
	_, err := t.tx.Exec(`
		INSERT INTO turns (`+turnColumns+`)
		VALUES (?, ?, ?, ?, ?, NULL)`,
		turn.TurnID,
		turn.SessionID,
		turn.NodeID,
		turn.TurnIndex,
		turn.PresentedAt.UnixNano(),
	)
	return err
}

func (t *sqliteTx) CloseTurn(turnID string, at time.Time) error {
	res, err := t.tx.Exec(`UPDATE turns SET closed_at = ? WHERE turn_id = ?`, at.UnixNano(), turnID)
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

func (t *sqliteTx) CountAttempts(turnID string) (int, error) {
	var n int
	row := t.tx.QueryRow(`SELECT COUNT(*) FROM attempts WHERE turn_id = ?`, turnID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *sqliteTx) InsertAttempt(a *api.Attempt) error {
	payload, err := EncodeValue(a.Payload)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(`
		INSERT INTO attempts (attempt_id, turn_id, attempt_index, answer_payload, is_final, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.AttemptID,
		a.TurnID,
		a.AttemptIndex,
		payload,
		a.IsFinal,
		a.SubmittedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*api.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if filter.State != "" {
		query += ` WHERE state = ?`
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

func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string) ([]*api.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE session_id = ?
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

func (s *SQLiteStore) ListAttempts(ctx context.Context, turnID string) ([]*api.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attempt_id, turn_id, attempt_index, answer_payload, is_final, submitted_at
		FROM attempts
		WHERE turn_id = ?
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
