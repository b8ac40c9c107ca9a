package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/grocery-etl/internal/db"
	"github.com/sells-group/grocery-etl/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// queryRower is satisfied by both the pool and a transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const storeColumns = `id, name, location, website, created_at, updated_at`

func scanStore(row pgx.Row) (*model.Store, error) {
	var st model.Store
	var location, website *string
	if err := row.Scan(&st.ID, &st.Name, &location, &website, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.Location = derefString(location)
	st.Website = derefString(website)
	return &st, nil
}

// upsertStore inserts a store by name, or returns the existing row. The
// no-op DO UPDATE makes RETURNING yield the row on conflict.
func upsertStore(ctx context.Context, q queryRower, s model.Store) (*model.Store, error) {
	row := q.QueryRow(ctx,
		`INSERT INTO stores (name, location, website) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING `+storeColumns,
		s.Name, nullString(s.Location), nullString(s.Website),
	)
	st, err := scanStore(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get or create store %q", s.Name)
	}
	return st, nil
}

func upsertCategory(ctx context.Context, q queryRower, name string, parentID *int64) (*model.Category, error) {
	var c model.Category
	err := q.QueryRow(ctx,
		`INSERT INTO categories (name, parent_category_id) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, parent_category_id, created_at`,
		name, parentID,
	).Scan(&c.ID, &c.Name, &c.ParentCategoryID, &c.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get or create category %q", name)
	}
	return &c, nil
}

func (s *PostgresStore) GetOrCreateStore(ctx context.Context, st model.Store) (*model.Store, error) {
	if st.Name == "" {
		return nil, eris.New("postgres: store name is required")
	}
	return upsertStore(ctx, s.pool, st)
}

func (s *PostgresStore) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	st, err := scanStore(s.pool.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get store %d", id)
	}
	return st, nil
}

func (s *PostgresStore) GetStoreByName(ctx context.Context, name string) (*model.Store, error) {
	st, err := scanStore(s.pool.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get store %q", name)
	}
	return st, nil
}

func (s *PostgresStore) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stores")
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		stores = append(stores, *st)
	}
	return stores, eris.Wrap(rows.Err(), "postgres: list stores")
}

func (s *PostgresStore) UpdateStore(ctx context.Context, id int64, u model.StoreUpdate) (*model.Store, error) {
	if u.Empty() {
		st, err := s.GetStore(ctx, id)
		if err == nil && st == nil {
			return nil, ErrNotFound
		}
		return st, err
	}

	query := `UPDATE stores SET updated_at = now()`
	args := []any{}
	argIdx := 1
	if u.Name != nil {
		query += fmt.Sprintf(", name = $%d", argIdx)
		args = append(args, *u.Name)
		argIdx++
	}
	if u.Location != nil {
		query += fmt.Sprintf(", location = $%d", argIdx)
		args = append(args, nullString(*u.Location))
		argIdx++
	}
	if u.Website != nil {
		query += fmt.Sprintf(", website = $%d", argIdx)
		args = append(args, nullString(*u.Website))
		argIdx++
	}
	query += fmt.Sprintf(" WHERE id = $%d RETURNING %s", argIdx, storeColumns)
	args = append(args, id)

	st, err := scanStore(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update store %d", id)
	}
	return st, nil
}

// SeedStores upserts stores by name, refreshing their website.
func (s *PostgresStore) SeedStores(ctx context.Context, stores []model.Store) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(stores))
	for _, st := range stores {
		rows = append(rows, []any{st.Name, nullString(st.Location), nullString(st.Website), now})
	}
	n, err := db.UpsertRows(ctx, s.pool, db.UpsertConfig{
		Table:        "stores",
		Columns:      []string{"name", "location", "website", "updated_at"},
		ConflictKeys: []string{"name"},
		UpdateCols:   []string{"website", "updated_at"},
	}, rows)
	return n, eris.Wrap(err, "postgres: seed stores")
}

func (s *PostgresStore) GetOrCreateCategory(ctx context.Context, name string, parentID *int64) (*model.Category, error) {
	if name == "" {
		return nil, eris.New("postgres: category name is required")
	}
	return upsertCategory(ctx, s.pool, name, parentID)
}

func numericArg(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func numericValue(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return nil
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d
}
