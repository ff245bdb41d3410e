// Package importer fills the database with products from Open Food Facts.
//
// PIPELINE:
//
//	categories ──► jobs ──► N fetch workers (rate limited) ──► results ──► writer
//
// Fetching is the slow part (one large HTTP response per category), so it
// runs on a small worker pool sharing one rate.Limiter. All database writes
// happen on the goroutine that called Run: SQLite has a single writer anyway,
// and get-or-create on one goroutine never races with itself.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/openfoodfacts"
)

// Source fetches the raw products of one category.
type Source interface {
	Search(ctx context.Context, category string) (*openfoodfacts.SearchResult, error)
}

// Store is the subset of the repository the importer writes to.
type Store interface {
	GetOrCreateCategory(ctx context.Context, name string) (int64, error)
	GetOrCreateStore(ctx context.Context, name string) (int64, error)
	GetOrCreate(ctx context.Context, p *model.Product) (int64, bool, error)
	AddCategory(ctx context.Context, productID, categoryID int64) error
	AddStore(ctx context.Context, productID, storeID int64) error
}

// Options tunes the fetch side of the pipeline.
type Options struct {
	Workers           int     // concurrent fetches (default 3, max 9)
	RequestsPerSecond float64 // shared rate limit (default 1)
}

// CategoryError records a category whose products could not be fetched.
type CategoryError struct {
	Category string
	Err      error
}

func (e CategoryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

// Summary reports what an import did.
type Summary struct {
	Categories   int // categories processed
	Fetched      int // products returned by Open Food Facts
	Kept         int // products passing the filters
	Created      int // products that were not in the database yet
	StoresLinked int // product-store links written
	Failures     []CategoryError
	Duration     time.Duration
}

// Importer runs imports.
type Importer struct {
	source Source
	store  Store
	logger *slog.Logger
	opts   Options
}

// New creates an Importer.
func New(source Source, store Store, logger *slog.Logger, opts Options) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.Workers > 9 {
		opts.Workers = 9
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	return &Importer{source: source, store: store, logger: logger, opts: opts}
}

type fetched struct {
	category string
	result   *openfoodfacts.SearchResult
	err      error
}

// Run imports the given categories. A category that cannot be fetched is
// recorded in Summary.Failures and the import goes on; a database error
// or a canceled context stops it.
func (im *Importer) Run(ctx context.Context, categories []string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	// Categories exist even when their products cannot be fetched.
	categoryIDs := make(map[string]int64, len(categories))
	for _, name := range categories {
		id, err := im.store.GetOrCreateCategory(ctx, name)
		if err != nil {
			return summary, fmt.Errorf("importer: creating category %s: %w", name, err)
		}
		categoryIDs[name] = id
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(im.opts.RequestsPerSecond), 1)
	jobs := make(chan string)
	results := make(chan fetched)

	var wg sync.WaitGroup
	for i := 0; i < im.opts.Workers; i++ {
		wg.Add(1)
		go im.fetchWorker(ctx, &wg, limiter, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, name := range categories {
			select {
			case jobs <- name:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var writeErr error
	for res := range results {
		if writeErr != nil {
			continue // drain so the workers can exit
		}
		summary.Categories++

		if res.err != nil {
			im.logger.Warn("category fetch failed",
				slog.String("category", res.category),
				slog.String("error", res.err.Error()),
			)
			summary.Failures = append(summary.Failures, CategoryError{Category: res.category, Err: res.err})
			continue
		}

		if err := im.write(ctx, categoryIDs[res.category], res, summary); err != nil {
			writeErr = err
			cancel()
		}
	}

	summary.Duration = time.Since(start)
	if writeErr != nil {
		return summary, writeErr
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("importer: %w", err)
	}
	return summary, nil
}

func (im *Importer) fetchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan string,
	results chan<- fetched,
) {
	defer wg.Done()
	for name := range jobs {
		res := fetched{category: name}
		if err := limiter.Wait(ctx); err != nil {
			res.err = err
		} else {
			res.result, res.err = im.source.Search(ctx, name)
		}

		select {
		case results <- res:
		case <-ctx.Done():
			return
		}
	}
}

// write stores the products of one category.
func (im *Importer) write(ctx context.Context, categoryID int64, res fetched, summary *Summary) error {
	if res.result.Total() == 0 {
		im.logger.Info("category is empty", slog.String("category", res.category))
		return nil
	}

	kept, created := 0, 0
	for _, raw := range res.result.Products {
		summary.Fetched++

		prod, ok := raw.ToProduct()
		if !ok {
			continue
		}
		kept++

		id, isNew, err := im.store.GetOrCreate(ctx, &prod)
		if err != nil {
			return fmt.Errorf("importer: saving product %s: %w", prod.Code, err)
		}
		if isNew {
			created++
		}
		if err := im.store.AddCategory(ctx, id, categoryID); err != nil {
			return fmt.Errorf("importer: linking product %s to %s: %w", prod.Code, res.category, err)
		}

		for _, storeName := range raw.StoreNames() {
			storeID, err := im.store.GetOrCreateStore(ctx, storeName)
			if err != nil {
				return fmt.Errorf("importer: saving store %q: %w", storeName, err)
			}
			if err := im.store.AddStore(ctx, id, storeID); err != nil {
				return fmt.Errorf("importer: linking product %s to store %q: %w", prod.Code, storeName, err)
			}
			summary.StoresLinked++
		}
	}

	summary.Kept += kept
	summary.Created += created
	im.logger.Info("category imported",
		slog.String("category", res.category),
		slog.Int("received", len(res.result.Products)),
		slog.Int("kept", kept),
		slog.Int("created", created),
	)
	return nil
}
