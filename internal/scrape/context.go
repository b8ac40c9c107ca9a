package scrape

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grocery-etl/internal/model"
)

// RefStore resolves the store and category rows deals reference.
type RefStore interface {
	GetOrCreateStore(ctx context.Context, s model.Store) (*model.Store, error)
	GetOrCreateCategory(ctx context.Context, name string, parentID *int64) (*model.Category, error)
}

// RunContext carries state shared by every source in one run. Category ids
// are cached so concurrent sources resolve each name once.
type RunContext struct {
	refs RefStore

	mu         sync.Mutex
	categories map[string]*model.Category
}

// NewRunContext returns an empty run context backed by refs.
func NewRunContext(refs RefStore) *RunContext {
	return &RunContext{refs: refs, categories: make(map[string]*model.Category)}
}

// Category returns the category with the given name, creating it on first
// use. A blank name resolves to nil.
func (rc *RunContext) Category(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	key := strings.ToLower(name)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if c, ok := rc.categories[key]; ok {
		return c, nil
	}
	c, err := rc.refs.GetOrCreateCategory(ctx, name, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: resolve category %q", name)
	}
	rc.categories[key] = c
	return c, nil
}

// Store resolves a retailer row.
func (rc *RunContext) Store(ctx context.Context, s model.Store) (*model.Store, error) {
	st, err := rc.refs.GetOrCreateStore(ctx, s)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: resolve store %q", s.Name)
	}
	return st, nil
}
