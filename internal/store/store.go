package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grocery-etl/internal/model"
)

var (
	// ErrDuplicateIdentity is returned by CreateDeal when a deal with the
	// same uuid already exists. Callers treat it as "already loaded".
	ErrDuplicateIdentity = eris.New("store: deal identity already exists")

	// ErrNotFound is returned by mutations addressing a missing row.
	ErrNotFound = eris.New("store: not found")
)

// Store defines the persistence interface for grocery deals.
type Store interface {
	// Stores
	GetOrCreateStore(ctx context.Context, s model.Store) (*model.Store, error)
	GetStore(ctx context.Context, id int64) (*model.Store, error)
	GetStoreByName(ctx context.Context, name string) (*model.Store, error)
	ListStores(ctx context.Context) ([]model.Store, error)
	UpdateStore(ctx context.Context, id int64, u model.StoreUpdate) (*model.Store, error)
	SeedStores(ctx context.Context, stores []model.Store) (int64, error)

	// Categories
	GetOrCreateCategory(ctx context.Context, name string, parentID *int64) (*model.Category, error)

	// Deals
	CreateDeal(ctx context.Context, d model.Deal) (*model.Deal, error)
	GetDeal(ctx context.Context, id int64) (*model.Deal, error)
	GetDealByUUID(ctx context.Context, uuid string) (*model.Deal, error)
	ListDeals(ctx context.Context, f model.DealFilter) ([]model.Deal, error)
	SearchDeals(ctx context.Context, term string, limit int) ([]model.Deal, error)
	Stats(ctx context.Context) (*model.Stats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// DefaultStores are the retailers seeded by "stores init".
var DefaultStores = []model.Store{
	{Name: "Hmart", Website: "https://www.hmart.com"},
	{Name: "Stew Leonard's", Website: "https://stewleonards.com"},
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
