package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/grocery-etl/internal/identity"
	"github.com/sells-group/grocery-etl/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedStore(t *testing.T, st *SQLiteStore, name string) *model.Store {
	t.Helper()
	s, err := st.GetOrCreateStore(context.Background(), model.Store{Name: name})
	require.NoError(t, err)
	return s
}

func sqliteDeal(storeID int64, name, regular, sale string, from time.Time) model.Deal {
	d := model.Deal{
		StoreID:     storeID,
		ProductName: name,
		SalePrice:   model.Dec(decimal.RequireFromString(sale)),
		ValidFrom:   from,
		ValidTo:     from.AddDate(0, 0, 6),
	}
	if regular != "" {
		d.RegularPrice = model.Dec(decimal.RequireFromString(regular))
	}
	return d
}

var week = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

// --- Stores ---

func TestSQLite_GetOrCreateStore_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.GetOrCreateStore(ctx, model.Store{Name: "Hmart", Website: "https://www.hmart.com"})
	require.NoError(t, err)
	b, err := st.GetOrCreateStore(ctx, model.Store{Name: "Hmart"})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "https://www.hmart.com", b.Website)

	stores, err := st.ListStores(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestSQLite_GetOrCreateStore_RequiresName(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetOrCreateStore(context.Background(), model.Store{})
	assert.Error(t, err)
}

func TestSQLite_GetStore_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	s, err := st.GetStore(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = st.GetStoreByName(ctx, "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSQLite_UpdateStore(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	s := seedStore(t, st, "Hmart")

	loc := "Edison, NJ"
	got, err := st.UpdateStore(ctx, s.ID, model.StoreUpdate{Location: &loc})
	require.NoError(t, err)
	assert.Equal(t, "Edison, NJ", got.Location)
	assert.Equal(t, "Hmart", got.Name)
	assert.False(t, got.UpdatedAt.Before(s.UpdatedAt))

	_, err = st.UpdateStore(ctx, 999, model.StoreUpdate{Location: &loc})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.UpdateStore(ctx, 999, model.StoreUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_SeedStores(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.SeedStores(ctx, DefaultStores)
	require.NoError(t, err)
	assert.Equal(t, int64(len(DefaultStores)), n)

	// Reseeding refreshes rather than duplicates.
	_, err = st.SeedStores(ctx, DefaultStores)
	require.NoError(t, err)

	stores, err := st.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "Hmart", stores[0].Name)
	assert.Equal(t, "Stew Leonard's", stores[1].Name)
}

func TestSQLite_GetOrCreateStore_Concurrent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			s, err := st.GetOrCreateStore(ctx, model.Store{Name: "Stew Leonard's"})
			if err != nil {
				return err
			}
			ids[i] = s.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	stores, err := st.ListStores(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

// --- Categories ---

func TestSQLite_GetOrCreateCategory_Concurrent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			c, err := st.GetOrCreateCategory(ctx, "Seafood", nil)
			if err != nil {
				return err
			}
			ids[i] = c.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var n int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE name = ?`, "Seafood").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLite_GetOrCreateCategory_Parent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	parent, err := st.GetOrCreateCategory(ctx, "Produce", nil)
	require.NoError(t, err)
	child, err := st.GetOrCreateCategory(ctx, "Fruit", &parent.ID)
	require.NoError(t, err)
	require.NotNil(t, child.ParentCategoryID)
	assert.Equal(t, parent.ID, *child.ParentCategoryID)

	again, err := st.GetOrCreateCategory(ctx, "Fruit", nil)
	require.NoError(t, err)
	assert.Equal(t, child.ID, again.ID)
}

// --- Deals ---

func TestSQLite_CreateDeal_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	s := seedStore(t, st, "Hmart")

	d := sqliteDeal(s.ID, "Fuji Apples", "4.99", "2.99", week)
	d.Unit = "lb"
	d.Quantity = model.Dec(decimal.NewFromInt(3))
	d.DiscountPercentage = model.Dec(decimal.RequireFromString("40.08"))
	d.SourceURL = "https://www.hmart.com/apples"

	created, err := st.CreateDeal(ctx, d)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, identity.DealID("Fuji Apples", s.ID, week, week.AddDate(0, 0, 6)), created.UUID)

	got, err := st.GetDealByUUID(ctx, created.UUID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Fuji Apples", got.ProductName)
	assert.True(t, got.RegularPrice.Equal(decimal.RequireFromString("4.99")))
	assert.True(t, got.SalePrice.Equal(decimal.RequireFromString("2.99")))
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, got.DiscountPercentage.Equal(decimal.RequireFromString("40.08")))
	assert.Equal(t, "lb", got.Unit)
	assert.Equal(t, week, got.ValidFrom)
	assert.Equal(t, week.AddDate(0, 0, 6), got.ValidTo)
	assert.Equal(t, "Hmart", got.Store.Name)
	assert.Nil(t, got.CategoryID)

	byID, err := st.GetDeal(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.UUID, byID.UUID)
}

func TestSQLite_CreateDeal_Duplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	s := seedStore(t, st, "Hmart")

	_, err := st.CreateDeal(ctx, sqliteDeal(s.ID, "Fuji Apples", "4.99", "2.99", week))
	require.NoError(t, err)

	// Same identity with different casing and prices collapses.
	_, err = st.CreateDeal(ctx, sqliteDeal(s.ID, "  FUJI apples ", "5.99", "1.99", week))
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	deals, err := st.ListDeals(ctx, model.DealFilter{})
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.True(t, deals[0].SalePrice.Equal(decimal.RequireFromString("2.99")))
}

func TestSQLite_CreateDeal_ConcurrentSameIdentity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	s := seedStore(t, st, "Hmart")

	const workers = 8
	results := make([]error, workers)
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			_, results[i] = st.CreateDeal(ctx, sqliteDeal(s.ID, "Tuna Steak", "12.99", "9.99", week))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var created int
	for _, err := range results {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateIdentity)
	}
	assert.Equal(t, 1, created)

	deals, err := st.ListDeals(ctx, model.DealFilter{})
	require.NoError(t, err)
	assert.Len(t, deals, 1)
}

func TestSQLite_CreateDeal_RejectsSubCentPrices(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	s := seedStore(t, st, "Hmart")

	d := sqliteDeal(s.ID, "Fuji Apples", "2.499", "1.999", week)
	d.DiscountPercentage = model.Dec(decimal.RequireFromString("20.01"))
	_, err := st.CreateDeal(ctx, d)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)

	deals, err := st.ListDeals(ctx, model.DealFilter{})
	require.NoError(t, err)
	assert.Empty(t, deals, "nothing is written with silently rounded prices")
}

func TestSQLite_CreateDeal_NewWindowIsNewDeal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	s := seedStore(t, st, "Hmart")

	_, err := st.CreateDeal(ctx, sqliteDeal(s.ID, "Fuji Apples", "", "2.99", week))
	require.NoError(t, err)
	_, err = st.CreateDeal(ctx, sqliteDeal(s.ID, "Fuji Apples", "", "2.99", week.AddDate(0, 0, 7)))
	require.NoError(t, err)

	deals, err := st.ListDeals(ctx, model.DealFilter{})
	require.NoError(t, err)
	require.Len(t, deals, 2)
	// Newest window first.
	assert.Equal(t, week.AddDate(0, 0, 7), deals[0].ValidFrom)
}

func TestSQLite_CreateDeal_Snapshots(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := sqliteDeal(0, "Napa Cabbage", "", "1.49", week)
	d.Store = &model.Store{Name: "Hmart", Website: "https://www.hmart.com"}
	d.Category = &model.Category{Name: "Produce"}

	created, err := st.CreateDeal(ctx, d)
	require.NoError(t, err)
	assert.NotZero(t, created.StoreID)
	require.NotNil(t, created.CategoryID)

	s, err := st.GetStoreByName(ctx, "Hmart")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, s.ID, created.StoreID)

	got, err := st.GetDealByUUID(ctx, created.UUID)
	require.NoError(t, err)
	require.NotNil(t, got.Category)
	assert.Equal(t, "Produce", got.Category.Name)
}

func TestSQLite_CreateDeal_StoreMismatchWritesNothing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedStore(t, st, "Hmart")

	d := sqliteDeal(77, "Napa Cabbage", "", "1.49", week)
	d.Store = &model.Store{Name: "Stew Leonard's"}

	_, err := st.CreateDeal(ctx, d)
	require.Error(t, err)

	s, err := st.GetStoreByName(ctx, "Stew Leonard's")
	require.NoError(t, err)
	assert.Nil(t, s, "store snapshot must roll back with the deal")
}

func TestSQLite_CreateDeal_UnknownStore(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.CreateDeal(context.Background(), sqliteDeal(12345, "Ghost", "", "1.00", week))
	assert.Error(t, err)
}

func TestSQLite_GetDealByUUID_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	got, err := st.GetDealByUUID(context.Background(), "0b1e6f4c-7a53-5d51-9a8f-3f0d3c4b5a61")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ListDeals_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	hmart := seedStore(t, st, "Hmart")
	stew := seedStore(t, st, "Stew Leonard's")

	apples := sqliteDeal(hmart.ID, "Fuji Apples", "4.00", "2.00", week)
	apples.DiscountPercentage = model.Dec(decimal.NewFromInt(50))
	milk := sqliteDeal(stew.ID, "Whole Milk", "5.00", "4.50", week)
	milk.DiscountPercentage = model.Dec(decimal.NewFromInt(10))
	pears := sqliteDeal(hmart.ID, "Asian Pears_100%", "", "6.00", week.AddDate(0, 0, 14))

	for _, d := range []model.Deal{apples, milk, pears} {
		_, err := st.CreateDeal(ctx, d)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter model.DealFilter
		want   []string
	}{
		{"store", model.DealFilter{StoreID: &hmart.ID}, []string{"Asian Pears_100%", "Fuji Apples"}},
		{"min discount", model.DealFilter{MinDiscount: model.Dec(decimal.NewFromInt(20))}, []string{"Fuji Apples"}},
		{"max sale price", model.DealFilter{MaxSalePrice: model.Dec(decimal.NewFromInt(3))}, []string{"Fuji Apples"}},
		{"min sale price", model.DealFilter{MinSalePrice: model.Dec(decimal.NewFromInt(5))}, []string{"Asian Pears_100%"}},
		{"search", model.DealFilter{Search: "MILK"}, []string{"Whole Milk"}},
		{"search literal wildcard", model.DealFilter{Search: "_100%"}, []string{"Asian Pears_100%"}},
		{"active window", model.DealFilter{ActiveFrom: ptrTime(week.AddDate(0, 0, 3)), ActiveTo: ptrTime(week.AddDate(0, 0, 4))}, []string{"Whole Milk", "Fuji Apples"}},
		{"limit offset", model.DealFilter{Limit: 1, Offset: 1}, []string{"Whole Milk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deals, err := st.ListDeals(ctx, tt.filter)
			require.NoError(t, err)
			var names []string
			for _, d := range deals {
				names = append(names, d.ProductName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestSQLite_SearchDeals_RanksNameHits(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	s := seedStore(t, st, "Hmart")

	side := sqliteDeal(s.ID, "Napa Cabbage", "", "1.49", week)
	side.Description = "Great for homemade kimchi"
	dish := sqliteDeal(s.ID, "Jongga Kimchi", "", "7.99", week)
	other := sqliteDeal(s.ID, "Fuji Apples", "", "2.99", week)
	for _, d := range []model.Deal{side, dish, other} {
		_, err := st.CreateDeal(ctx, d)
		require.NoError(t, err)
	}

	deals, err := st.SearchDeals(ctx, "kimchi", 10)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, "Jongga Kimchi", deals[0].ProductName)
	assert.Equal(t, "Napa Cabbage", deals[1].ProductName)

	deals, err = st.SearchDeals(ctx, "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestSQLite_Stats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	empty, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalDeals)
	assert.Nil(t, empty.AvgSalePrice)
	assert.Nil(t, empty.EarliestDeal)

	hmart := seedStore(t, st, "Hmart")
	stew := seedStore(t, st, "Stew Leonard's")
	a := sqliteDeal(hmart.ID, "Fuji Apples", "4.00", "2.00", week)
	a.DiscountPercentage = model.Dec(decimal.NewFromInt(50))
	b := sqliteDeal(stew.ID, "Whole Milk", "5.00", "4.00", week.AddDate(0, 0, 7))
	b.DiscountPercentage = model.Dec(decimal.NewFromInt(20))
	for _, d := range []model.Deal{a, b} {
		_, err := st.CreateDeal(ctx, d)
		require.NoError(t, err)
	}

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDeals)
	assert.Equal(t, int64(2), stats.UniqueStores)
	assert.Equal(t, int64(0), stats.UniqueCategories)
	assert.True(t, stats.AvgDiscount.Equal(decimal.NewFromInt(35)))
	assert.True(t, stats.AvgSalePrice.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, week, *stats.EarliestDeal)
	assert.Equal(t, week.AddDate(0, 0, 13), *stats.LatestDeal)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestNewSQLite_AppendsPragmasToExistingQuery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "q.db") + "?_txlock=immediate"
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.NoError(t, st.Migrate(context.Background()))
}
