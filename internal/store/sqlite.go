package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"jackpotreels/internal/game"
)

// SQLite is the single-file store. One open connection serialises every
// writer, which is what gives Update its exclusive hold on a session.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS reel_sessions (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			phase TEXT NOT NULL DEFAULT 'idle',
			pending TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS reel_sessions_updated_at_idx ON reel_sessions (updated_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite: %w", err)
		}
	}
	return nil
}

type sqlQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func pendingText(enc encodedRecord) any {
	if enc.pending == nil {
		return nil
	}
	return string(enc.pending)
}

func (s *SQLite) Create(ctx context.Context, rec game.Record) error {
	enc, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	query := sq.Insert(table).
		Columns(colID, colState, colPhase, colPending, colCreatedAt, colUpdatedAt).
		Values(rec.ID, string(enc.state), string(rec.Phase), pendingText(enc), rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrSessionExists, rec.ID)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (game.Record, error) {
	return s.load(ctx, s.db, id)
}

func (s *SQLite) load(ctx context.Context, q sqlQueryer, id string) (game.Record, error) {
	sqlStr, args, err := sq.Select(colID, colState, colPhase, colPending, colCreatedAt, colUpdatedAt).
		From(table).
		Where(sq.Eq{colID: id}).
		ToSql()
	if err != nil {
		return game.Record{}, err
	}

	var (
		rowID     string
		state     string
		phase     string
		pending   sql.NullString
		createdAt int64
		updatedAt int64
	)
	err = q.QueryRowContext(ctx, sqlStr, args...).Scan(&rowID, &state, &phase, &pending, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.Record{}, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
		}
		return game.Record{}, fmt.Errorf("load session: %w", err)
	}
	var pendingJSON []byte
	if pending.Valid {
		pendingJSON = []byte(pending.String)
	}
	return decodeRecord(rowID, []byte(state), phase, pendingJSON, time.Unix(0, createdAt), time.Unix(0, updatedAt))
}

func (s *SQLite) Update(ctx context.Context, id string, fn func(rec *game.Record) error) (game.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return game.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := s.load(ctx, tx, id)
	if err != nil {
		return game.Record{}, err
	}
	if err := fn(&rec); err != nil {
		return game.Record{}, err
	}
	enc, err := encodeRecord(rec)
	if err != nil {
		return game.Record{}, err
	}

	sqlStr, args, err := sq.Update(table).
		Set(colState, string(enc.state)).
		Set(colPhase, string(rec.Phase)).
		Set(colPending, pendingText(enc)).
		Set(colUpdatedAt, rec.UpdatedAt.UnixNano()).
		Where(sq.Eq{colID: id}).
		ToSql()
	if err != nil {
		return game.Record{}, err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return game.Record{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return game.Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (s *SQLite) PruneIdle(ctx context.Context, before time.Time) (int64, error) {
	sqlStr, args, err := sq.Delete(table).
		Where(sq.Lt{colUpdatedAt: before.UnixNano()}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() {
	_ = s.db.Close()
}
