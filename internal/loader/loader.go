// Package loader replays staged deal files into the persistent store.
// Loading is idempotent: a deal whose identity is already stored is reported
// as a duplicate success, so a directory can be loaded any number of times.
package loader

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grocery-etl/internal/extract"
	"github.com/sells-group/grocery-etl/internal/identity"
	"github.com/sells-group/grocery-etl/internal/model"
	"github.com/sells-group/grocery-etl/internal/resilience"
	"github.com/sells-group/grocery-etl/internal/staging"
	"github.com/sells-group/grocery-etl/internal/store"
)

// ErrStoreUnavailable aborts a load when the store cannot be reached before
// any record is processed.
var ErrStoreUnavailable = eris.New("loader: store unavailable")

// DealStore is the subset of store.Store the loader needs.
type DealStore interface {
	CreateDeal(ctx context.Context, d model.Deal) (*model.Deal, error)
	GetDealByUUID(ctx context.Context, uuid string) (*model.Deal, error)
	Ping(ctx context.Context) error
}

// Loader persists staged deals.
type Loader struct {
	store  DealStore
	dryRun bool
	dead   *resilience.DeadLetterLog
}

// Option configures a Loader.
type Option func(*Loader)

// WithDryRun stops every record at the validated state without writing.
func WithDryRun(dryRun bool) Option {
	return func(l *Loader) { l.dryRun = dryRun }
}

// WithDeadLetters records every failed record to dl.
func WithDeadLetters(dl *resilience.DeadLetterLog) Option {
	return func(l *Loader) { l.dead = dl }
}

// New creates a Loader. The store may be nil in dry-run mode.
func New(st DealStore, opts ...Option) *Loader {
	l := &Loader{store: st}
	for _, o := range opts {
		o(l)
	}
	return l
}

// DryRun reports whether the loader skips persistence.
func (l *Loader) DryRun() bool { return l.dryRun }

// Preflight verifies the store is reachable. Dry runs skip the check.
func (l *Loader) Preflight(ctx context.Context) error {
	if l.dryRun {
		return nil
	}
	if l.store == nil {
		return eris.Wrap(ErrStoreUnavailable, "loader: no store configured")
	}
	if err := l.store.Ping(ctx); err != nil {
		return eris.Wrapf(ErrStoreUnavailable, "loader: ping: %v", err)
	}
	return nil
}

// LoadFile loads a single staged file. The returned error is non-nil only
// when the store is unreachable; record-level failures are in the Outcome.
func (l *Loader) LoadFile(ctx context.Context, path string) (Outcome, error) {
	if err := l.Preflight(ctx); err != nil {
		return Outcome{Path: path, State: StatePending}, err
	}
	return l.load(ctx, path), nil
}

// LoadDir loads every staged file under dir in sorted order. Each record is
// independent: a failure never stops or undoes the others. report, when
// non-nil, is called once per record as it reaches a terminal state.
func (l *Loader) LoadDir(ctx context.Context, dir string, report func(Outcome)) (*Summary, error) {
	log := zap.L().With(zap.String("component", "loader"), zap.String("dir", dir))

	if err := l.Preflight(ctx); err != nil {
		return nil, err
	}

	paths, err := staging.ListDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: list %s", dir)
	}

	sum := &Summary{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "loader: interrupted")
		}
		o := l.load(ctx, path)
		sum.Add(o)
		if report != nil {
			report(o)
		}
	}

	log.Info("load complete",
		zap.Int("loaded", sum.Loaded),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("validated", sum.Validated),
		zap.Int("failed", sum.Failed),
		zap.Int("transient", sum.Transient),
		zap.Int("total", sum.Total),
		zap.Bool("dry_run", l.dryRun),
	)
	return sum, nil
}

// Replay reloads the transient failures among letters. Permanent ones are
// skipped: the same input would fail the same way.
func (l *Loader) Replay(ctx context.Context, letters []resilience.DeadLetter, report func(Outcome)) (*Summary, error) {
	if err := l.Preflight(ctx); err != nil {
		return nil, err
	}

	sum := &Summary{}
	skipped := 0
	for _, d := range letters {
		if !d.Replayable() {
			skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "loader: interrupted")
		}
		o := l.load(ctx, d.Key)
		sum.Add(o)
		if report != nil {
			report(o)
		}
	}

	zap.L().Info("replay complete",
		zap.String("component", "loader"),
		zap.Int("replayed", sum.Total),
		zap.Int("skipped_permanent", skipped),
		zap.Int("still_failed", sum.Failed),
	)
	return sum, nil
}

func (l *Loader) load(ctx context.Context, path string) Outcome {
	o := l.loadRecord(ctx, path)
	if o.State == StateFailed && l.dead != nil {
		if err := l.dead.Add(o.deadLetter()); err != nil {
			zap.L().Error("dead letter not recorded", zap.String("path", path), zap.Error(err))
		}
	}
	return o
}

func (l *Loader) loadRecord(ctx context.Context, path string) Outcome {
	log := zap.L().With(zap.String("component", "loader"), zap.String("path", path))
	o := Outcome{Path: path, State: StatePending}

	d, err := prepare(path)
	o.UUID, o.ProductName = d.UUID, d.ProductName
	if err != nil {
		log.Warn("record invalid", zap.Error(err))
		return o.fail(FailureValidation, err)
	}
	o.State = StateValidated
	if l.dryRun {
		return o
	}

	created, err := l.store.CreateDeal(ctx, d)
	switch {
	case errors.Is(err, store.ErrDuplicateIdentity):
		existing, lookupErr := l.store.GetDealByUUID(ctx, d.UUID)
		if lookupErr != nil {
			log.Warn("duplicate lookup failed", zap.String("uuid", d.UUID), zap.Error(lookupErr))
			return o.fail(FailurePersistence, eris.Wrapf(lookupErr, "loader: look up existing %s", d.UUID))
		}
		if existing == nil {
			// Rejected as a duplicate yet not readable back.
			return o.fail(FailurePersistence, eris.Errorf("loader: deal %s reported duplicate but not found", d.UUID))
		}
		o.DealID = existing.ID
		o.State = StateDuplicate
		log.Debug("deal already loaded", zap.String("uuid", d.UUID), zap.Int64("id", existing.ID))
	case err != nil:
		log.Warn("persist failed", zap.String("uuid", d.UUID), zap.Error(err))
		return o.fail(FailurePersistence, eris.Wrapf(err, "loader: persist %s", d.UUID))
	default:
		o.DealID = created.ID
		o.UUID = created.UUID
		o.State = StateNew
		log.Debug("deal loaded", zap.String("uuid", created.UUID), zap.Int64("id", created.ID))
	}
	return o
}

// prepare reads and validates a staged record. Prices are quantized to cents,
// identity is derived when absent, and a stated discount must agree with the
// quantized prices.
func prepare(path string) (model.Deal, error) {
	d, err := staging.Read(path)
	if err != nil {
		return d, err
	}
	if d.UUID == "" && d.StoreID > 0 {
		d.UUID = identity.DealID(d.ProductName, d.StoreID, d.ValidFrom, d.ValidTo)
	}
	d.Quantize()
	if d.DiscountPercentage != nil && !extract.DiscountConsistent(d.RegularPrice, d.SalePrice, d.DiscountPercentage) {
		want := "none"
		if w := extract.Discount(d.RegularPrice, d.SalePrice); w != nil {
			want = w.String()
		}
		return d, &model.ValidationError{Fields: []model.FieldError{{
			Field:  "discount_percentage",
			Reason: "stated " + d.DiscountPercentage.String() + " but prices give " + want,
		}}}
	}
	// A consistent stated discount is replaced by the canonical rounding.
	d.DiscountPercentage = extract.Discount(d.RegularPrice, d.SalePrice)
	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}
