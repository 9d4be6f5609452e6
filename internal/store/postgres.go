package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jackpotreels/internal/game"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reel_sessions (
	id TEXT PRIMARY KEY,
	state JSONB NOT NULL,
	phase TEXT NOT NULL DEFAULT 'idle',
	pending JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS reel_sessions_updated_at_idx ON reel_sessions (updated_at);
`

// Postgres stores one row per session. Updates run in a transaction that
// holds the row lock until fn returns.
type Postgres struct {
	pool      *pgxpool.Pool
	txManager trm.Manager
	getter    *trmpgx.CtxGetter
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	m, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		return nil, fmt.Errorf("create tx manager: %w", err)
	}
	p := &Postgres{
		pool:      pool,
		txManager: m,
		getter:    trmpgx.DefaultCtxGetter,
	}
	if err := p.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) conn(ctx context.Context) trmpgx.Tr {
	return p.getter.DefaultTrOrDB(ctx, p.pool)
}

func (p *Postgres) Create(ctx context.Context, rec game.Record) error {
	enc, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	query := sq.Insert(table).
		Columns(colID, colState, colPhase, colPending, colCreatedAt, colUpdatedAt).
		Values(rec.ID, enc.state, string(rec.Phase), enc.pendingArg(), rec.CreatedAt, rec.UpdatedAt).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := p.conn(ctx).Exec(ctx, sqlStr, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrSessionExists, rec.ID)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (game.Record, error) {
	return p.load(ctx, id, false)
}

func (p *Postgres) load(ctx context.Context, id string, forUpdate bool) (game.Record, error) {
	query := sq.Select(colID, colState, colPhase, colPending, colCreatedAt, colUpdatedAt).
		From(table).
		Where(sq.Eq{colID: id}).
		PlaceholderFormat(sq.Dollar)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return game.Record{}, err
	}

	var (
		rowID     string
		state     []byte
		phase     string
		pending   []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err = p.conn(ctx).QueryRow(ctx, sqlStr, args...).Scan(&rowID, &state, &phase, &pending, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Record{}, fmt.Errorf("%w: %s", game.ErrSessionNotFound, id)
		}
		return game.Record{}, fmt.Errorf("load session: %w", err)
	}
	return decodeRecord(rowID, state, phase, pending, createdAt, updatedAt)
}

func (p *Postgres) Update(ctx context.Context, id string, fn func(rec *game.Record) error) (game.Record, error) {
	var out game.Record
	err := p.txManager.Do(ctx, func(txCtx context.Context) error {
		rec, err := p.load(txCtx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		enc, err := encodeRecord(rec)
		if err != nil {
			return err
		}

		query := sq.Update(table).
			Set(colState, enc.state).
			Set(colPhase, string(rec.Phase)).
			Set(colPending, enc.pendingArg()).
			Set(colUpdatedAt, rec.UpdatedAt).
			Where(sq.Eq{colID: id}).
			PlaceholderFormat(sq.Dollar)

		sqlStr, args, err := query.ToSql()
		if err != nil {
			return err
		}
		if _, err := p.conn(txCtx).Exec(txCtx, sqlStr, args...); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return game.Record{}, err
	}
	return out, nil
}

func (p *Postgres) PruneIdle(ctx context.Context, before time.Time) (int64, error) {
	query := sq.Delete(table).
		Where(sq.Lt{colUpdatedAt: before}).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := p.conn(ctx).Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
