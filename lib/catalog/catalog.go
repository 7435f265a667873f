// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/gazelog/gazelog/lib/sqlitepool"
)

// ErrNotFound is returned when a session ID is unknown.
var ErrNotFound = errors.New("catalog: not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	participant_id INTEGER NOT NULL,
	pace           TEXT NOT NULL DEFAULT '',
	setup_file     TEXT NOT NULL DEFAULT '',
	setup_index    INTEGER NOT NULL DEFAULT 0,
	task_count     INTEGER NOT NULL,
	debug          INTEGER NOT NULL DEFAULT 0,
	started_at     INTEGER NOT NULL,
	finished_at    INTEGER,
	outcome        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS sessions_participant ON sessions (participant_id);

CREATE TABLE IF NOT EXISTS tasks (
	session_id        TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
	task_index        INTEGER NOT NULL,
	ctt_lambda_index  INTEGER NOT NULL,
	nback_task_index  INTEGER NOT NULL,
	outcome           TEXT NOT NULL,
	rating            INTEGER NOT NULL DEFAULT 0,
	gaze_samples      INTEGER NOT NULL DEFAULT 0,
	headset_total     INTEGER NOT NULL DEFAULT 0,
	headset_valid     INTEGER NOT NULL DEFAULT 0,
	topview_total     INTEGER NOT NULL DEFAULT 0,
	topview_valid     INTEGER NOT NULL DEFAULT 0,
	streamer_packets  INTEGER NOT NULL DEFAULT 0,
	log_path          TEXT NOT NULL DEFAULT '',
	log_digest        TEXT NOT NULL DEFAULT '',
	finished_at       INTEGER NOT NULL,
	PRIMARY KEY (session_id, task_index)
);
`

// Session is one row of the sessions table.
type Session struct {
	ID            string
	ParticipantID int
	Pace          string
	SetupFile     string
	SetupIndex    int
	TaskCount     int
	Debug         bool
	StartedAt     time.Time

	// FinishedAt is zero while the session is running or after a crash.
	FinishedAt time.Time
	Outcome    string
}

// Task is one row of the tasks table.
type Task struct {
	SessionID       string
	Index           int
	CttLambdaIndex  int
	NBackTaskIndex  int
	Outcome         string
	Rating          int
	GazeSamples     int
	HeadsetTotal    int
	HeadsetValid    int
	TopViewTotal    int
	TopViewValid    int
	StreamerPackets int
	LogPath         string
	LogDigest       string
	FinishedAt      time.Time
}

// Catalog is the session index. It is safe for concurrent use.
type Catalog struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens or creates the catalog database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}
	err = sqlitex.ExecuteScript(conn, schema, nil)
	pool.Put(conn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: creating schema: %w", err)
	}

	return &Catalog{pool: pool, logger: logger}, nil
}

// Close closes the underlying pool.
func (c *Catalog) Close() error {
	return c.pool.Close()
}

// BeginSession inserts a running session.
func (c *Catalog) BeginSession(ctx context.Context, session Session) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: begin session: %w", err)
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO sessions
			(id, participant_id, pace, setup_file, setup_index, task_count, debug, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			session.ID,
			session.ParticipantID,
			session.Pace,
			session.SetupFile,
			session.SetupIndex,
			session.TaskCount,
			session.Debug,
			session.StartedAt.UnixMicro(),
		},
	})
	if err != nil {
		return fmt.Errorf("catalog: begin session %s: %w", session.ID, err)
	}
	c.logger.Debug("catalog session begun", "session_id", session.ID)
	return nil
}

// RecordTask inserts or replaces the row of one task.
func (c *Catalog) RecordTask(ctx context.Context, task Task) (err error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: record task: %w", err)
	}
	defer c.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("catalog: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if _, err = lookupSession(conn, task.SessionID); err != nil {
		return err
	}

	err = sqlitex.Execute(conn, `
		INSERT OR REPLACE INTO tasks
			(session_id, task_index, ctt_lambda_index, nback_task_index, outcome, rating,
			 gaze_samples, headset_total, headset_valid, topview_total, topview_valid,
			 streamer_packets, log_path, log_digest, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			task.SessionID,
			task.Index,
			task.CttLambdaIndex,
			task.NBackTaskIndex,
			task.Outcome,
			task.Rating,
			task.GazeSamples,
			task.HeadsetTotal,
			task.HeadsetValid,
			task.TopViewTotal,
			task.TopViewValid,
			task.StreamerPackets,
			task.LogPath,
			task.LogDigest,
			task.FinishedAt.UnixMicro(),
		},
	})
	if err != nil {
		return fmt.Errorf("catalog: record task %d of %s: %w", task.Index, task.SessionID, err)
	}
	return nil
}

// FinishSession marks a session as ended with the given outcome.
func (c *Catalog) FinishSession(ctx context.Context, sessionID, outcome string, finishedAt time.Time) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: finish session: %w", err)
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE sessions SET finished_at = ?, outcome = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{finishedAt.UnixMicro(), outcome, sessionID}})
	if err != nil {
		return fmt.Errorf("catalog: finish session %s: %w", sessionID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("catalog: finish session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Session returns one session by ID.
func (c *Catalog) Session(ctx context.Context, sessionID string) (Session, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("catalog: session: %w", err)
	}
	defer c.pool.Put(conn)
	return lookupSession(conn, sessionID)
}

// Sessions returns the sessions of one participant, oldest first.
func (c *Catalog) Sessions(ctx context.Context, participantID int) ([]Session, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: sessions: %w", err)
	}
	defer c.pool.Put(conn)

	var sessions []Session
	err = sqlitex.Execute(conn, selectSessions+` WHERE participant_id = ? ORDER BY started_at, id`,
		&sqlitex.ExecOptions{
			Args: []any{participantID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sessions = append(sessions, scanSession(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("catalog: sessions of %d: %w", participantID, err)
	}
	return sessions, nil
}

// Unfinished returns sessions that never reached FinishSession.
func (c *Catalog) Unfinished(ctx context.Context) ([]Session, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: unfinished: %w", err)
	}
	defer c.pool.Put(conn)

	var sessions []Session
	err = sqlitex.Execute(conn, selectSessions+` WHERE finished_at IS NULL ORDER BY started_at, id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sessions = append(sessions, scanSession(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("catalog: unfinished sessions: %w", err)
	}
	return sessions, nil
}

// Tasks returns the tasks of one session in task order.
func (c *Catalog) Tasks(ctx context.Context, sessionID string) ([]Task, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: tasks: %w", err)
	}
	defer c.pool.Put(conn)

	var tasks []Task
	err = sqlitex.Execute(conn, `
		SELECT session_id, task_index, ctt_lambda_index, nback_task_index, outcome, rating,
		       gaze_samples, headset_total, headset_valid, topview_total, topview_valid,
		       streamer_packets, log_path, log_digest, finished_at
		FROM tasks WHERE session_id = ? ORDER BY task_index`, &sqlitex.ExecOptions{
		Args: []any{sessionID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			tasks = append(tasks, Task{
				SessionID:       stmt.ColumnText(0),
				Index:           stmt.ColumnInt(1),
				CttLambdaIndex:  stmt.ColumnInt(2),
				NBackTaskIndex:  stmt.ColumnInt(3),
				Outcome:         stmt.ColumnText(4),
				Rating:          stmt.ColumnInt(5),
				GazeSamples:     stmt.ColumnInt(6),
				HeadsetTotal:    stmt.ColumnInt(7),
				HeadsetValid:    stmt.ColumnInt(8),
				TopViewTotal:    stmt.ColumnInt(9),
				TopViewValid:    stmt.ColumnInt(10),
				StreamerPackets: stmt.ColumnInt(11),
				LogPath:         stmt.ColumnText(12),
				LogDigest:       stmt.ColumnText(13),
				FinishedAt:      time.UnixMicro(stmt.ColumnInt64(14)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: tasks of %s: %w", sessionID, err)
	}
	return tasks, nil
}

// LastParticipantID returns the highest participant ID recorded, or 0.
func (c *Catalog) LastParticipantID(ctx context.Context) (int, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: last participant: %w", err)
	}
	defer c.pool.Put(conn)

	last := 0
	err = sqlitex.Execute(conn, `SELECT COALESCE(MAX(participant_id), 0) FROM sessions`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				last = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("catalog: last participant: %w", err)
	}
	return last, nil
}

const selectSessions = `
	SELECT id, participant_id, pace, setup_file, setup_index, task_count, debug,
	       started_at, finished_at, outcome
	FROM sessions`

func lookupSession(conn *sqlite.Conn, sessionID string) (Session, error) {
	var session Session
	found := false
	err := sqlitex.Execute(conn, selectSessions+` WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{sessionID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			session = scanSession(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Session{}, fmt.Errorf("catalog: session %s: %w", sessionID, err)
	}
	if !found {
		return Session{}, fmt.Errorf("catalog: session %s: %w", sessionID, ErrNotFound)
	}
	return session, nil
}

func scanSession(stmt *sqlite.Stmt) Session {
	session := Session{
		ID:            stmt.ColumnText(0),
		ParticipantID: stmt.ColumnInt(1),
		Pace:          stmt.ColumnText(2),
		SetupFile:     stmt.ColumnText(3),
		SetupIndex:    stmt.ColumnInt(4),
		TaskCount:     stmt.ColumnInt(5),
		Debug:         stmt.ColumnBool(6),
		StartedAt:     time.UnixMicro(stmt.ColumnInt64(7)),
		Outcome:       stmt.ColumnText(9),
	}
	if stmt.ColumnType(8) != sqlite.TypeNull {
		session.FinishedAt = time.UnixMicro(stmt.ColumnInt64(8))
	}
	return session
}
