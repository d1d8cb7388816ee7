package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/erauner12/listd/internal/node"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaSQL creates the nodes table and its invariant-enforcing indexes if
// they do not already exist. Exported so db.Open can run it as part of
// bringing up the connection pool, rather than requiring callers to
// remember a separate EnsureSchema round trip before their first query.
//
//go:embed schema.sql
var SchemaSQL string

// Postgres-specific SQLSTATEs that indicate a commit-time write-write
// conflict under SERIALIZABLE isolation. The mutation engine's retry driver
// treats these identically to a failed predicate.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// Postgres is the production storage.Adapter, backed by a pgx connection
// pool. Transactions run at SERIALIZABLE isolation, giving the commit-time
// write-conflict detection the mutation engine's predicate-update idiom
// depends on (spec §9, "transaction isolation requirement").
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema applies SchemaSQL against p's pool. db.Open already does this
// for a pool it opens; EnsureSchema remains exported for tests and tools
// that hand Postgres an already-open pool from elsewhere.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, SchemaSQL)
	return err
}

func (p *Postgres) Begin(ctx context.Context) (Session, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	return &pgSession{tx: tx}, nil
}

func (p *Postgres) ListAll(ctx context.Context) ([]node.Node, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, prev_id, next_id, version FROM nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []node.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both pgx.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (node.Node, error) {
	var n node.Node
	if err := row.Scan(&n.ID, &n.Prev, &n.Next, &n.Version); err != nil {
		return node.Node{}, err
	}
	return n, nil
}

type pgSession struct {
	tx pgx.Tx
}

func (s *pgSession) Find(ctx context.Context, id uuid.UUID) (*node.Node, error) {
	row := s.tx.QueryRow(ctx, `SELECT id, prev_id, next_id, version FROM nodes WHERE id = $1`, id)
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *pgSession) FindHead(ctx context.Context) (*node.Node, error) {
	row := s.tx.QueryRow(ctx, `SELECT id, prev_id, next_id, version FROM nodes WHERE prev_id IS NULL`)
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *pgSession) Insert(ctx context.Context, n node.Node) error {
	_, err := s.tx.Exec(ctx,
		`INSERT INTO nodes (id, prev_id, next_id, version) VALUES ($1, $2, $3, $4)`,
		n.ID, n.Prev, n.Next, n.Version)
	return err
}

// ConditionalUpdate builds a single parameterized UPDATE ... WHERE ...
// RETURNING statement so the predicate check and the mutation apply
// atomically in one round trip — it either returns the post-mutation row or
// zero rows, never a partial apply.
func (s *pgSession) ConditionalUpdate(ctx context.Context, id uuid.UUID, pred Predicate, mut Mutation) (*node.Node, error) {
	var set strings.Builder
	set.WriteString("version = version + 1")
	args := []any{id, pred.Version}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if mut.SetPrev {
		fmt.Fprintf(&set, ", prev_id = %s", arg(mut.Prev))
	}
	if mut.SetNext {
		fmt.Fprintf(&set, ", next_id = %s", arg(mut.Next))
	}

	var where strings.Builder
	where.WriteString("id = $1 AND version = $2")
	if pred.CheckPrev {
		if pred.Prev == nil {
			where.WriteString(" AND prev_id IS NULL")
		} else {
			fmt.Fprintf(&where, " AND prev_id = %s", arg(*pred.Prev))
		}
	}
	if pred.CheckNext {
		if pred.Next == nil {
			where.WriteString(" AND next_id IS NULL")
		} else {
			fmt.Fprintf(&where, " AND next_id = %s", arg(*pred.Next))
		}
	}

	query := fmt.Sprintf(
		`UPDATE nodes SET %s WHERE %s RETURNING id, prev_id, next_id, version`,
		set.String(), where.String(),
	)

	row := s.tx.QueryRow(ctx, query, args...)
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *pgSession) ConditionalDelete(ctx context.Context, id uuid.UUID, pred Predicate) (bool, error) {
	args := []any{id, pred.Version}
	var where strings.Builder
	where.WriteString("id = $1 AND version = $2")
	if pred.CheckPrev {
		if pred.Prev == nil {
			where.WriteString(" AND prev_id IS NULL")
		} else {
			args = append(args, *pred.Prev)
			fmt.Fprintf(&where, " AND prev_id = $%d", len(args))
		}
	}
	if pred.CheckNext {
		if pred.Next == nil {
			where.WriteString(" AND next_id IS NULL")
		} else {
			args = append(args, *pred.Next)
			fmt.Fprintf(&where, " AND next_id = $%d", len(args))
		}
	}

	ct, err := s.tx.Exec(ctx, `DELETE FROM nodes WHERE `+where.String(), args...)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *pgSession) Commit(ctx context.Context) error {
	err := s.tx.Commit(ctx)
	if isSerializationConflict(err) {
		return ErrSerializationConflict
	}
	return err
}

func (s *pgSession) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (s *pgSession) End(ctx context.Context) {
	// pgx.Tx has no separate release step beyond Commit/Rollback; the
	// underlying connection returns to the pool once the transaction
	// resolves either way.
}

func isSerializationConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
	}
	return false
}
