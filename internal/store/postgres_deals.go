package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grocery-etl/internal/db"
	"github.com/sells-group/grocery-etl/internal/identity"
	"github.com/sells-group/grocery-etl/internal/model"
)

// dealUUIDConstraint is the unique constraint arbitrating deal identity.
const dealUUIDConstraint = "grocery_deals_uuid_key"

const dealSelect = `SELECT d.id, d.uuid::text, d.store_id, d.product_name, d.category_id,
	d.regular_price, d.sale_price, d.unit, d.quantity, d.discount_percentage,
	d.valid_from, d.valid_to, d.source_url, d.image_url, d.description,
	d.created_at, d.updated_at, s.name, c.name
FROM grocery_deals d
JOIN stores s ON s.id = d.store_id
LEFT JOIN categories c ON c.id = d.category_id`

const searchVector = `to_tsvector('english', d.product_name || ' ' || COALESCE(d.description, ''))`

func scanDeal(row pgx.Row) (*model.Deal, error) {
	var (
		d                              model.Deal
		regular, sale, qty, discount   pgtype.Numeric
		unit, source, image, desc, cat *string
		createdAt, updatedAt           time.Time
		storeName                      string
	)
	err := row.Scan(&d.ID, &d.UUID, &d.StoreID, &d.ProductName, &d.CategoryID,
		&regular, &sale, &unit, &qty, &discount,
		&d.ValidFrom, &d.ValidTo, &source, &image, &desc,
		&createdAt, &updatedAt, &storeName, &cat)
	if err != nil {
		return nil, err
	}
	d.RegularPrice = numericValue(regular)
	d.SalePrice = numericValue(sale)
	d.Quantity = numericValue(qty)
	d.DiscountPercentage = numericValue(discount)
	d.Unit = derefString(unit)
	d.SourceURL = derefString(source)
	d.ImageURL = derefString(image)
	d.Description = derefString(desc)
	d.ValidFrom = model.Date(d.ValidFrom)
	d.ValidTo = model.Date(d.ValidTo)
	d.CreatedAt = &createdAt
	d.UpdatedAt = &updatedAt
	d.Store = &model.Store{ID: d.StoreID, Name: storeName}
	if cat != nil && d.CategoryID != nil {
		d.Category = &model.Category{ID: *d.CategoryID, Name: *cat}
	}
	return &d, nil
}

func collectDeals(rows pgx.Rows) ([]model.Deal, error) {
	defer rows.Close()
	var deals []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		deals = append(deals, *d)
	}
	return deals, eris.Wrap(rows.Err(), "postgres: iterate deals")
}

// CreateDeal resolves the deal's store and category snapshots and inserts
// the deal in one transaction. A uuid collision yields ErrDuplicateIdentity
// and leaves nothing written.
func (s *PostgresStore) CreateDeal(ctx context.Context, d model.Deal) (*model.Deal, error) {
	if err := d.CheckPrecision(); err != nil {
		return nil, eris.Wrapf(err, "postgres: create deal %q", d.ProductName)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create deal")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := resolveRefs[queryRower](ctx, tx, &d, upsertStore, upsertCategory); err != nil {
		return nil, err
	}
	if d.UUID == "" {
		d.UUID = identity.DealID(d.ProductName, d.StoreID, d.ValidFrom, d.ValidTo)
	}

	var createdAt, updatedAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO grocery_deals (uuid, store_id, product_name, category_id,
			regular_price, sale_price, unit, quantity, discount_percentage,
			valid_from, valid_to, source_url, image_url, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (uuid) DO NOTHING
		RETURNING id, created_at, updated_at`,
		d.UUID, d.StoreID, d.ProductName, d.CategoryID,
		numericArg(d.RegularPrice), numericArg(d.SalePrice), nullString(d.Unit),
		numericArg(d.Quantity), numericArg(d.DiscountPercentage),
		model.Date(d.ValidFrom), model.Date(d.ValidTo),
		nullString(d.SourceURL), nullString(d.ImageURL), nullString(d.Description),
	).Scan(&d.ID, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) || db.IsUniqueViolation(err, dealUUIDConstraint) {
		return nil, ErrDuplicateIdentity
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert deal %s", d.UUID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit deal %s", d.UUID)
	}
	d.CreatedAt = &createdAt
	d.UpdatedAt = &updatedAt
	return &d, nil
}

// resolveRefs get-or-creates the store and category named by the deal's
// snapshots, inside the caller's transaction.
func resolveRefs[Q any](
	ctx context.Context, q Q, d *model.Deal,
	getStore func(context.Context, Q, model.Store) (*model.Store, error),
	getCategory func(context.Context, Q, string, *int64) (*model.Category, error),
) error {
	if d.Store != nil && d.Store.Name != "" {
		st, err := getStore(ctx, q, *d.Store)
		if err != nil {
			return err
		}
		switch {
		case d.StoreID == 0:
			d.StoreID = st.ID
		case d.StoreID != st.ID:
			return eris.Errorf("store: deal store_id %d does not match store %q (id %d)", d.StoreID, st.Name, st.ID)
		}
		d.Store = st
	}
	if d.Category != nil && d.Category.Name != "" {
		c, err := getCategory(ctx, q, d.Category.Name, d.Category.ParentCategoryID)
		if err != nil {
			return err
		}
		d.CategoryID = &c.ID
		d.Category = c
	}
	return nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx, dealSelect+` WHERE d.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get deal %d", id)
	}
	return d, nil
}

func (s *PostgresStore) GetDealByUUID(ctx context.Context, uuid string) (*model.Deal, error) {
	if !identity.Valid(uuid) {
		return nil, nil
	}
	d, err := scanDeal(s.pool.QueryRow(ctx, dealSelect+` WHERE d.uuid = $1`, uuid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get deal %s", uuid)
	}
	return d, nil
}

func (s *PostgresStore) ListDeals(ctx context.Context, f model.DealFilter) ([]model.Deal, error) {
	query := dealSelect + ` WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.StoreID != nil {
		query += fmt.Sprintf(" AND d.store_id = $%d", argIdx)
		args = append(args, *f.StoreID)
		argIdx++
	}
	if f.CategoryID != nil {
		query += fmt.Sprintf(" AND d.category_id = $%d", argIdx)
		args = append(args, *f.CategoryID)
		argIdx++
	}
	if f.MinDiscount != nil {
		query += fmt.Sprintf(" AND d.discount_percentage >= $%d", argIdx)
		args = append(args, numericArg(f.MinDiscount))
		argIdx++
	}
	if f.MinSalePrice != nil {
		query += fmt.Sprintf(" AND d.sale_price >= $%d", argIdx)
		args = append(args, numericArg(f.MinSalePrice))
		argIdx++
	}
	if f.MaxSalePrice != nil {
		query += fmt.Sprintf(" AND d.sale_price <= $%d", argIdx)
		args = append(args, numericArg(f.MaxSalePrice))
		argIdx++
	}
	if f.ActiveFrom != nil {
		query += fmt.Sprintf(" AND d.valid_to >= $%d", argIdx)
		args = append(args, model.Date(*f.ActiveFrom))
		argIdx++
	}
	if f.ActiveTo != nil {
		query += fmt.Sprintf(" AND d.valid_from <= $%d", argIdx)
		args = append(args, model.Date(*f.ActiveTo))
		argIdx++
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		query += fmt.Sprintf(" AND to_tsvector('english', d.product_name) @@ plainto_tsquery('english', $%d)", argIdx)
		args = append(args, term)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY d.valid_from DESC, d.id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, f.EffectiveLimit(), f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	return collectDeals(rows)
}

// SearchDeals ranks deals by full-text relevance over name and description.
func (s *PostgresStore) SearchDeals(ctx context.Context, term string, limit int) ([]model.Deal, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = model.DefaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		dealSelect+` WHERE `+searchVector+` @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(`+searchVector+`, plainto_tsquery('english', $1)) DESC, d.id
		LIMIT $2`,
		term, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: search deals %q", term)
	}
	return collectDeals(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	var (
		st               model.Stats
		avgDisc, avgSale pgtype.Numeric
		earliest, latest pgtype.Date
	)
	err := s.pool.QueryRow(ctx, `SELECT
			COUNT(*),
			COUNT(DISTINCT store_id),
			COUNT(DISTINCT category_id),
			ROUND(AVG(discount_percentage), 2),
			ROUND(AVG(sale_price), 2),
			MIN(valid_from),
			MAX(valid_to)
		FROM grocery_deals`,
	).Scan(&st.TotalDeals, &st.UniqueStores, &st.UniqueCategories, &avgDisc, &avgSale, &earliest, &latest)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	st.AvgDiscount = numericValue(avgDisc)
	st.AvgSalePrice = numericValue(avgSale)
	if earliest.Valid {
		t := model.Date(earliest.Time)
		st.EarliestDeal = &t
	}
	if latest.Valid {
		t := model.Date(latest.Time)
		st.LatestDeal = &t
	}
	return &st, nil
}
