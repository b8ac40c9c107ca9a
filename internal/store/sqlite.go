package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/grocery-etl/internal/identity"
	"github.com/sells-group/grocery-etl/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Decimals and dates
// are stored as TEXT; timestamps as RFC 3339 TEXT set from Go.
type SQLiteStore struct {
	db *sql.DB
}

var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// NewSQLite opens a SQLite database at the given path. Pragmas are passed
// through the DSN so every pooled connection gets them.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		dsn += sep + "_pragma=" + p
		sep = "&"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stores (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	location   TEXT,
	website    TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL UNIQUE,
	parent_category_id INTEGER REFERENCES categories(id),
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS grocery_deals (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid                TEXT NOT NULL UNIQUE,
	store_id            INTEGER NOT NULL REFERENCES stores(id),
	product_name        TEXT NOT NULL,
	category_id         INTEGER REFERENCES categories(id),
	regular_price       TEXT,
	sale_price          TEXT,
	unit                TEXT,
	quantity            TEXT,
	discount_percentage TEXT,
	valid_from          TEXT NOT NULL,
	valid_to            TEXT NOT NULL,
	source_url          TEXT,
	image_url           TEXT,
	description         TEXT,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	CHECK (valid_from <= valid_to)
);

CREATE INDEX IF NOT EXISTS idx_grocery_deals_store_id ON grocery_deals(store_id);
CREATE INDEX IF NOT EXISTS idx_grocery_deals_category_id ON grocery_deals(category_id);
CREATE INDEX IF NOT EXISTS idx_grocery_deals_window ON grocery_deals(valid_from, valid_to);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteStore(row scannable) (*model.Store, error) {
	var st model.Store
	var location, website sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&st.ID, &st.Name, &location, &website, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st.Location = location.String
	st.Website = website.String
	st.CreatedAt = parseTimestamp(createdAt)
	st.UpdatedAt = parseTimestamp(updatedAt)
	return &st, nil
}

func sqliteUpsertStore(ctx context.Context, q sqlQuerier, s model.Store) (*model.Store, error) {
	now := timestamp(time.Now())
	st, err := scanSQLiteStore(q.QueryRowContext(ctx,
		`INSERT INTO stores (name, location, website, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING `+storeColumns,
		s.Name, nullString(s.Location), nullString(s.Website), now, now,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get or create store %q", s.Name)
	}
	return st, nil
}

func sqliteUpsertCategory(ctx context.Context, q sqlQuerier, name string, parentID *int64) (*model.Category, error) {
	var c model.Category
	var parent sql.NullInt64
	var createdAt string
	err := q.QueryRowContext(ctx,
		`INSERT INTO categories (name, parent_category_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id, name, parent_category_id, created_at`,
		name, parentID, timestamp(time.Now()),
	).Scan(&c.ID, &c.Name, &parent, &createdAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get or create category %q", name)
	}
	if parent.Valid {
		c.ParentCategoryID = &parent.Int64
	}
	c.CreatedAt = parseTimestamp(createdAt)
	return &c, nil
}

func (s *SQLiteStore) GetOrCreateStore(ctx context.Context, st model.Store) (*model.Store, error) {
	if st.Name == "" {
		return nil, eris.New("sqlite: store name is required")
	}
	return sqliteUpsertStore(ctx, s.db, st)
}

func (s *SQLiteStore) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	st, err := scanSQLiteStore(s.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, eris.Wrapf(err, "sqlite: get store %d", id)
}

func (s *SQLiteStore) GetStoreByName(ctx context.Context, name string) (*model.Store, error) {
	st, err := scanSQLiteStore(s.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, eris.Wrapf(err, "sqlite: get store %q", name)
}

func (s *SQLiteStore) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stores")
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		st, err := scanSQLiteStore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store")
		}
		stores = append(stores, *st)
	}
	return stores, eris.Wrap(rows.Err(), "sqlite: list stores iterate")
}

func (s *SQLiteStore) UpdateStore(ctx context.Context, id int64, u model.StoreUpdate) (*model.Store, error) {
	if u.Empty() {
		st, err := s.GetStore(ctx, id)
		if err == nil && st == nil {
			return nil, ErrNotFound
		}
		return st, err
	}

	query := `UPDATE stores SET updated_at = ?`
	args := []any{timestamp(time.Now())}
	if u.Name != nil {
		query += `, name = ?`
		args = append(args, *u.Name)
	}
	if u.Location != nil {
		query += `, location = ?`
		args = append(args, nullString(*u.Location))
	}
	if u.Website != nil {
		query += `, website = ?`
		args = append(args, nullString(*u.Website))
	}
	query += ` WHERE id = ? RETURNING ` + storeColumns
	args = append(args, id)

	st, err := scanSQLiteStore(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update store %d", id)
	}
	return st, nil
}

// SeedStores upserts stores by name, refreshing their website.
func (s *SQLiteStore) SeedStores(ctx context.Context, stores []model.Store) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin seed stores")
	}
	defer tx.Rollback() //nolint:errcheck

	now := timestamp(time.Now())
	var total int64
	for _, st := range stores {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO stores (name, location, website, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET website = excluded.website, updated_at = excluded.updated_at`,
			st.Name, nullString(st.Location), nullString(st.Website), now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: seed store %q", st.Name)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit seed stores")
	}
	return total, nil
}

func (s *SQLiteStore) GetOrCreateCategory(ctx context.Context, name string, parentID *int64) (*model.Category, error) {
	if name == "" {
		return nil, eris.New("sqlite: category name is required")
	}
	return sqliteUpsertCategory(ctx, s.db, name, parentID)
}

const sqliteDealSelect = `SELECT d.id, d.uuid, d.store_id, d.product_name, d.category_id,
	d.regular_price, d.sale_price, d.unit, d.quantity, d.discount_percentage,
	d.valid_from, d.valid_to, d.source_url, d.image_url, d.description,
	d.created_at, d.updated_at, s.name, c.name
FROM grocery_deals d
JOIN stores s ON s.id = d.store_id
LEFT JOIN categories c ON c.id = d.category_id`

func scanSQLiteDeal(row scannable) (*model.Deal, error) {
	var (
		d                                    model.Deal
		category                             sql.NullInt64
		regular, sale, qty, discount         sql.NullString
		unit, source, image, desc, catName   sql.NullString
		validFrom, validTo, created, updated string
		storeName                            string
	)
	err := row.Scan(&d.ID, &d.UUID, &d.StoreID, &d.ProductName, &category,
		&regular, &sale, &unit, &qty, &discount,
		&validFrom, &validTo, &source, &image, &desc,
		&created, &updated, &storeName, &catName)
	if err != nil {
		return nil, err
	}

	if d.ValidFrom, err = model.ParseDate(validFrom); err != nil {
		return nil, eris.Wrapf(err, "sqlite: deal %s valid_from", d.UUID)
	}
	if d.ValidTo, err = model.ParseDate(validTo); err != nil {
		return nil, eris.Wrapf(err, "sqlite: deal %s valid_to", d.UUID)
	}
	d.RegularPrice = textDecimal(regular)
	d.SalePrice = textDecimal(sale)
	d.Quantity = textDecimal(qty)
	d.DiscountPercentage = textDecimal(discount)
	d.Unit = unit.String
	d.SourceURL = source.String
	d.ImageURL = image.String
	d.Description = desc.String
	createdAt, updatedAt := parseTimestamp(created), parseTimestamp(updated)
	d.CreatedAt = &createdAt
	d.UpdatedAt = &updatedAt
	d.Store = &model.Store{ID: d.StoreID, Name: storeName}
	if category.Valid {
		d.CategoryID = &category.Int64
		d.Category = &model.Category{ID: category.Int64, Name: catName.String}
	}
	return &d, nil
}

func (s *SQLiteStore) queryDeals(ctx context.Context, query string, args ...any) ([]model.Deal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanSQLiteDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// CreateDeal resolves reference snapshots and inserts the deal in one
// transaction. A uuid collision yields ErrDuplicateIdentity.
func (s *SQLiteStore) CreateDeal(ctx context.Context, d model.Deal) (*model.Deal, error) {
	if err := d.CheckPrecision(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: create deal %q", d.ProductName)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create deal")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := resolveRefs[sqlQuerier](ctx, tx, &d, sqliteUpsertStore, sqliteUpsertCategory); err != nil {
		return nil, err
	}
	if d.UUID == "" {
		d.UUID = identity.DealID(d.ProductName, d.StoreID, d.ValidFrom, d.ValidTo)
	}

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO grocery_deals (uuid, store_id, product_name, category_id,
			regular_price, sale_price, unit, quantity, discount_percentage,
			valid_from, valid_to, source_url, image_url, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uuid) DO NOTHING
		RETURNING id`,
		d.UUID, d.StoreID, d.ProductName, d.CategoryID,
		decimalText(d.RegularPrice, 2), decimalText(d.SalePrice, 2), nullString(d.Unit),
		decimalText(d.Quantity, 3), decimalText(d.DiscountPercentage, 2),
		d.ValidFrom.Format(model.DateLayout), d.ValidTo.Format(model.DateLayout),
		nullString(d.SourceURL), nullString(d.ImageURL), nullString(d.Description),
		timestamp(now), timestamp(now),
	).Scan(&d.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDuplicateIdentity
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert deal %s", d.UUID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit deal %s", d.UUID)
	}
	d.CreatedAt = &now
	d.UpdatedAt = &now
	return &d, nil
}

func (s *SQLiteStore) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	d, err := scanSQLiteDeal(s.db.QueryRowContext(ctx, sqliteDealSelect+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, eris.Wrapf(err, "sqlite: get deal %d", id)
}

func (s *SQLiteStore) GetDealByUUID(ctx context.Context, uuid string) (*model.Deal, error) {
	d, err := scanSQLiteDeal(s.db.QueryRowContext(ctx,
		sqliteDealSelect+` WHERE d.uuid = ?`, strings.ToLower(uuid)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, eris.Wrapf(err, "sqlite: get deal %s", uuid)
}

func (s *SQLiteStore) ListDeals(ctx context.Context, f model.DealFilter) ([]model.Deal, error) {
	query := sqliteDealSelect + ` WHERE 1=1`
	var args []any

	if f.StoreID != nil {
		query += ` AND d.store_id = ?`
		args = append(args, *f.StoreID)
	}
	if f.CategoryID != nil {
		query += ` AND d.category_id = ?`
		args = append(args, *f.CategoryID)
	}
	if f.MinDiscount != nil {
		query += ` AND CAST(d.discount_percentage AS REAL) >= ?`
		args = append(args, f.MinDiscount.InexactFloat64())
	}
	if f.MinSalePrice != nil {
		query += ` AND CAST(d.sale_price AS REAL) >= ?`
		args = append(args, f.MinSalePrice.InexactFloat64())
	}
	if f.MaxSalePrice != nil {
		query += ` AND CAST(d.sale_price AS REAL) <= ?`
		args = append(args, f.MaxSalePrice.InexactFloat64())
	}
	if f.ActiveFrom != nil {
		query += ` AND d.valid_to >= ?`
		args = append(args, f.ActiveFrom.Format(model.DateLayout))
	}
	if f.ActiveTo != nil {
		query += ` AND d.valid_from <= ?`
		args = append(args, f.ActiveTo.Format(model.DateLayout))
	}
	for _, tok := range strings.Fields(strings.ToLower(f.Search)) {
		query += ` AND lower(d.product_name) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(tok))
	}
	query += ` ORDER BY d.valid_from DESC, d.id DESC LIMIT ? OFFSET ?`
	args = append(args, f.EffectiveLimit(), f.Offset)

	deals, err := s.queryDeals(ctx, query, args...)
	return deals, eris.Wrap(err, "sqlite: list deals")
}

// SearchDeals matches every term against name or description and ranks
// name hits above description hits.
func (s *SQLiteStore) SearchDeals(ctx context.Context, term string, limit int) ([]model.Deal, error) {
	tokens := strings.Fields(strings.ToLower(term))
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = model.DefaultListLimit
	}

	var where, score []string
	var whereArgs, scoreArgs []any
	for _, tok := range tokens {
		p := likePattern(tok)
		where = append(where,
			`(lower(d.product_name) LIKE ? ESCAPE '\' OR lower(COALESCE(d.description, '')) LIKE ? ESCAPE '\')`)
		whereArgs = append(whereArgs, p, p)
		score = append(score,
			`(CASE WHEN lower(d.product_name) LIKE ? ESCAPE '\' THEN 2 ELSE 0 END)`,
			`(CASE WHEN lower(COALESCE(d.description, '')) LIKE ? ESCAPE '\' THEN 1 ELSE 0 END)`)
		scoreArgs = append(scoreArgs, p, p)
	}

	query := sqliteDealSelect + ` WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY (` + strings.Join(score, " + ") + `) DESC, d.id LIMIT ?`
	args := append(append(whereArgs, scoreArgs...), limit)

	deals, err := s.queryDeals(ctx, query, args...)
	return deals, eris.Wrapf(err, "sqlite: search deals %q", term)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	var (
		st               model.Stats
		avgDisc, avgSale sql.NullFloat64
		earliest, latest sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COUNT(DISTINCT store_id),
			COUNT(DISTINCT category_id),
			AVG(CAST(discount_percentage AS REAL)),
			AVG(CAST(sale_price AS REAL)),
			MIN(valid_from),
			MAX(valid_to)
		FROM grocery_deals`,
	).Scan(&st.TotalDeals, &st.UniqueStores, &st.UniqueCategories, &avgDisc, &avgSale, &earliest, &latest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	if avgDisc.Valid {
		st.AvgDiscount = model.Dec(decimal.NewFromFloat(avgDisc.Float64).Round(2))
	}
	if avgSale.Valid {
		st.AvgSalePrice = model.Dec(decimal.NewFromFloat(avgSale.Float64).Round(2))
	}
	if t, err := model.ParseDate(earliest.String); earliest.Valid && err == nil {
		st.EarliestDeal = &t
	}
	if t, err := model.ParseDate(latest.String); latest.Valid && err == nil {
		st.LatestDeal = &t
	}
	return &st, nil
}

// helpers

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func decimalText(d *decimal.Decimal, places int32) *string {
	if d == nil {
		return nil
	}
	s := d.Round(places).String()
	return &s
}

func textDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func likePattern(tok string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(tok) + "%"
}
