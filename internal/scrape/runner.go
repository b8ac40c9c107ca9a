// Package scrape runs source adapters end to end: fetch, extract, normalize,
// deduplicate and stage one JSON record per deal.
package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/grocery-etl/internal/extract"
	"github.com/sells-group/grocery-etl/internal/fetcher"
	"github.com/sells-group/grocery-etl/internal/model"
	"github.com/sells-group/grocery-etl/internal/normalize"
	"github.com/sells-group/grocery-etl/internal/source"
)

// Stager writes normalized deals to the staging area.
type Stager interface {
	Put(d model.Deal, bucket string) (string, error)
}

// Runner drives a set of sources through the extraction pipeline.
type Runner struct {
	fetcher       fetcher.Fetcher
	refs          RefStore
	stage         Stager
	maxConcurrent int
	now           func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxConcurrent bounds how many sources run at once.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

// WithClock replaces time.Now for validity window resolution.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner returns a Runner that writes deals to stage, usually a
// *staging.FS.
func NewRunner(f fetcher.Fetcher, refs RefStore, stage Stager, opts ...Option) *Runner {
	r := &Runner{
		fetcher:       f,
		refs:          refs,
		stage:         stage,
		maxConcurrent: 2,
		now:           time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run extracts every source. A failing source is recorded in its report and
// does not stop the others; only context cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, sources []source.Source) (*Report, error) {
	if r.refs == nil {
		return nil, eris.New("scrape: no store configured")
	}
	rc := NewRunContext(r.refs)

	reports := make([]SourceReport, len(sources))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrent)
	for i, src := range sources {
		g.Go(func() error {
			reports[i] = r.runSource(ctx, rc, src)
			return nil
		})
	}
	_ = g.Wait()

	rep := &Report{Sources: reports}
	if err := ctx.Err(); err != nil {
		return rep, eris.Wrap(err, "scrape: run canceled")
	}
	zap.L().Info("scrape run complete",
		zap.Int("sources", len(sources)),
		zap.Int("staged", rep.Staged()),
		zap.Int("failed_sources", len(rep.Failed())),
	)
	return rep, nil
}

func (r *Runner) runSource(ctx context.Context, rc *RunContext, src source.Source) (rep SourceReport) {
	start := time.Now()
	rep = SourceReport{Source: src.Name()}
	log := zap.L().With(zap.String("component", "scrape"), zap.String("source", src.Name()))
	defer func() { rep.Duration = time.Since(start) }()

	st, err := rc.Store(ctx, src.Store())
	if err != nil {
		rep.Err = err
		log.Error("store lookup failed", zap.Error(err))
		return rep
	}
	rep.StoreID = st.ID

	listings, err := src.Collect(ctx, r.fetcher)
	if err != nil {
		rep.Err = eris.Wrapf(err, "scrape: collect %s", src.Name())
		log.Error("collect failed", zap.Error(err))
		return rep
	}

	run := &sourceRun{
		rc:    rc,
		src:   src,
		store: st,
		stage: r.stage,
		ex:    extract.New(src.Options()),
		dedup: normalize.NewDeduper(),
		rep:   &rep,
		log:   log,
	}
	today := r.now()

	for _, l := range listings {
		rep.Pages++
		window, err := l.Window.For(today)
		if err != nil {
			rep.Err = err
			return rep
		}
		for _, c := range l.Candidates {
			if err := ctx.Err(); err != nil {
				rep.Err = err
				return rep
			}
			rep.Candidates++
			run.candidate(ctx, l, window, c)
		}
	}

	log.Info("source complete",
		zap.Int("pages", rep.Pages),
		zap.Int("candidates", rep.Candidates),
		zap.Int("staged", rep.Staged),
		zap.Int("skipped", rep.Skipped),
		zap.Int("invalid", rep.Invalid),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("failed", rep.Failed),
	)
	return rep
}

// sourceRun is the per-source state of one run.
type sourceRun struct {
	rc    *RunContext
	src   source.Source
	store *model.Store
	stage Stager
	ex    *extract.Extractor
	dedup *normalize.Deduper
	rep   *SourceReport
	log   *zap.Logger
}

func (s *sourceRun) candidate(ctx context.Context, l source.Listing, window normalize.Window, c extract.Candidate) {
	rep, log := s.rep, s.log

	res, err := s.ex.Extract(c)
	if err != nil {
		var skip *extract.SkipError
		if errors.As(err, &skip) {
			rep.Skipped++
			log.Debug("candidate skipped", zap.String("name", c.Name), zap.String("reason", skip.Reason))
			return
		}
		rep.Invalid++
		log.Warn("extract failed", zap.String("name", c.Name), zap.Error(err))
		return
	}

	cat, err := s.rc.Category(ctx, res.Category)
	if err != nil {
		rep.Failed++
		log.Warn("category lookup failed", zap.String("category", res.Category), zap.Error(err))
		return
	}
	var catID *int64
	if cat != nil {
		catID = &cat.ID
	}

	d, err := normalize.Deal(normalize.Input{
		Result:              res,
		StoreID:             s.store.ID,
		Window:              window,
		CategoryID:          catID,
		DescriptionFallback: l.DescriptionFallback,
	})
	if err != nil {
		rep.Invalid++
		log.Warn("deal rejected", zap.String("name", res.Name), zap.Error(err))
		return
	}
	if !s.dedup.Admit(d) {
		rep.Duplicates++
		log.Debug("duplicate in run", zap.String("name", d.ProductName))
		return
	}

	d.Store = &model.Store{Name: s.store.Name, Location: s.store.Location, Website: s.store.Website}
	if cat != nil {
		d.Category = &model.Category{Name: cat.Name, ParentCategoryID: cat.ParentCategoryID}
	}

	path, err := s.stage.Put(d, s.src.Bucket())
	if err != nil {
		rep.Failed++
		log.Warn("stage failed", zap.String("uuid", d.UUID), zap.Error(err))
		return
	}
	rep.Staged++
	rep.Paths = append(rep.Paths, path)
}
