package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AnnaKryuchkova/product-console/internal/debounce"
	"github.com/AnnaKryuchkova/product-console/internal/errs"
	"github.com/AnnaKryuchkova/product-console/internal/model"
	"github.com/AnnaKryuchkova/product-console/internal/notify"
)

const (
	// DefaultPageSize is the fixed number of rows per page.
	DefaultPageSize = 10
	// DefaultSearchDebounce is the quiet period before a search is sent.
	DefaultSearchDebounce = 400 * time.Millisecond
)

// ErrPageOutOfRange is returned by SetPage for pages outside 1..PageCount.
var ErrPageOutOfRange = errors.New("page out of range")

// ProductsAPI is the remote side of the listing.
type ProductsAPI interface {
	FetchProducts(ctx context.Context, q model.ProductQuery) (model.ProductsPage, error)
}

// ListConfig configures a ProductList.
type ListConfig struct {
	PageSize       int
	SearchDebounce time.Duration
	Notifier       notify.Notifier
	Logger         *zap.Logger
	// Now is the clock used for local product ids.
	Now func() time.Time
}

// ProductList owns the listing state: filters, page, the fetched rows and
// local edits. Fetches run in the background; only the latest issued fetch
// may write its result.
type ProductList struct {
	api      ProductsAPI
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
	search   *debounce.Debouncer

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	idle     *sync.Cond
	state    model.ListingState
	seq      uint64
	cancel   context.CancelFunc
	inflight int
	lastID   int64
	closed   bool
	subs     map[int]func(model.ListingState)
	nextSub  int
	version  uint64

	// pubMu orders delivery; snapshots older than delivered are dropped.
	pubMu     sync.Mutex
	delivered uint64
}

// NewProductList returns a controller on page 1 sorted by title ascending.
// Nothing is fetched until Load is called.
func NewProductList(api ProductsAPI, cfg ListConfig) *ProductList {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.SearchDebounce <= 0 {
		cfg.SearchDebounce = DefaultSearchDebounce
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &ProductList{
		api:        api,
		notifier:   cfg.Notifier,
		log:        cfg.Logger,
		now:        cfg.Now,
		search:     debounce.New(cfg.SearchDebounce),
		baseCtx:    ctx,
		baseCancel: cancel,
		state: model.ListingState{
			Page:      1,
			PageSize:  cfg.PageSize,
			SortField: model.SortByTitle,
			SortDir:   model.SortAsc,
		},
		subs: map[int]func(model.ListingState){},
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// Snapshot returns a copy of the current state.
func (p *ProductList) Snapshot() model.ListingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Subscribe registers fn to receive state changes in order. A snapshot that
// is overtaken by a newer one may be skipped, so the last state fn sees is
// always the current one. The returned func unregisters it. fn runs without
// the state lock held and must not change the list.
func (p *ProductList) Subscribe(fn func(model.ListingState)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Load fetches page 1 with the current filters.
func (p *ProductList) Load() {
	p.mutate(func(s *model.ListingState) bool {
		s.Page = 1
		return true
	})
}

// ListOptions preselects filters and page for LoadWith. Zero fields keep
// the current value.
type ListOptions struct {
	Search    string
	SortField model.SortField
	SortDir   model.SortDirection
	Page      int
}

// LoadWith applies all options at once and issues a single fetch.
func (p *ProductList) LoadWith(o ListOptions) {
	p.search.Cancel()
	p.mutate(func(s *model.ListingState) bool {
		s.Search = o.Search
		if o.SortField != "" {
			s.SortField = o.SortField
		}
		if o.SortDir != "" {
			s.SortDir = o.SortDir
		}
		s.Page = max(o.Page, 1)
		return true
	})
}

// Refresh refetches the current page.
func (p *ProductList) Refresh() {
	p.mutate(func(*model.ListingState) bool { return true })
}

// SetSearch schedules a search once input has been quiet for the debounce
// period. A newer call replaces a pending one.
func (p *ProductList) SetSearch(text string) {
	p.search.Schedule(func() { p.applySearch(text) })
}

// Flush fires a pending debounced search right away. It reports whether
// there was one.
func (p *ProductList) Flush() bool {
	return p.search.Flush()
}

// SetSearchNow applies a search immediately, dropping any pending one.
func (p *ProductList) SetSearchNow(text string) {
	p.search.Cancel()
	p.applySearch(text)
}

func (p *ProductList) applySearch(text string) {
	p.mutate(func(s *model.ListingState) bool {
		if s.Search == text {
			return false
		}
		s.Search = text
		s.Page = 1
		return true
	})
}

// SetSort changes the ordering and goes back to page 1.
func (p *ProductList) SetSort(field model.SortField, dir model.SortDirection) {
	p.mutate(func(s *model.ListingState) bool {
		if s.SortField == field && s.SortDir == dir {
			return false
		}
		s.SortField, s.SortDir = field, dir
		s.Page = 1
		return true
	})
}

// ToggleSort behaves like clicking a column header: the active column flips
// direction, any other column becomes active ascending.
func (p *ProductList) ToggleSort(field model.SortField) {
	p.mutate(func(s *model.ListingState) bool {
		if s.SortField == field {
			s.SortDir = s.SortDir.Flip()
		} else {
			s.SortField, s.SortDir = field, model.SortAsc
		}
		s.Page = 1
		return true
	})
}

// SetPage moves to page n keeping the filters. Setting the current page is a no-op.
func (p *ProductList) SetPage(n int) error {
	p.mu.Lock()
	pages := p.state.PageCount()
	total := p.state.Total
	p.mu.Unlock()

	if n < 1 || (total > 0 && n > pages) {
		return fmt.Errorf("%w: %d (1..%d)", ErrPageOutOfRange, n, pages)
	}
	p.mutate(func(s *model.ListingState) bool {
		if s.Page == n {
			return false
		}
		s.Page = n
		return true
	})
	return nil
}

// mutate applies fn under the lock and, if it reports a change, issues a
// fetch for the resulting state.
func (p *ProductList) mutate(fn func(s *model.ListingState) bool) {
	p.mu.Lock()
	if p.closed || !fn(&p.state) {
		p.mu.Unlock()
		return
	}
	p.startFetchLocked()
	d := p.snapshotLocked()
	p.mu.Unlock()

	p.deliver(d)
}

func (p *ProductList) startFetchLocked() {
	p.seq++
	seq := p.seq
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(p.baseCtx)
	p.cancel = cancel
	p.state.Loading = true
	p.state.LastError = ""
	p.inflight++
	q := p.state.Query()

	go p.run(ctx, seq, q)
}

func (p *ProductList) run(ctx context.Context, seq uint64, q model.ProductQuery) {
	defer p.done()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("op", "fetch products"),
			)
			p.finish(seq, model.ProductsPage{}, fmt.Errorf("internal error: %v", r))
		}
	}()

	page, err := p.api.FetchProducts(ctx, q)
	p.finish(seq, page, err)
}

func (p *ProductList) done() {
	p.mu.Lock()
	p.inflight--
	if p.inflight == 0 {
		p.idle.Broadcast()
	}
	p.mu.Unlock()
}

// finish applies a fetch result if seq is still the latest issued fetch.
func (p *ProductList) finish(seq uint64, page model.ProductsPage, err error) {
	p.mu.Lock()
	if seq != p.seq {
		p.mu.Unlock()
		p.log.Debug("stale product page dropped", zap.Uint64("seq", seq))
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state.Loading = false
	var msg string
	if err != nil {
		msg = errorMessage(err, "Failed to load products")
		p.state.LastError = msg
	} else {
		p.state.Items = page.Products
		p.state.Total = page.Total
		p.state.LastError = ""
	}
	d := p.snapshotLocked()
	p.mu.Unlock()

	if err != nil {
		p.log.Warn("fetch products", zap.Error(err))
		p.notifier.Notify(notify.Notification{Level: notify.Error, Title: "Failed to load products", Message: msg})
	}
	p.deliver(d)
}

// CreateProductItem adds a product locally at the top of the list. The
// product is not sent to the remote service.
func (p *ProductList) CreateProductItem(ctx context.Context, in model.ProductCreateInput) (model.Product, error) {
	if err := ctx.Err(); err != nil {
		return model.Product{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Product{}, fmt.Errorf("%w: title is required", errs.ErrValidation)
	}
	if in.Price < 0 {
		return model.Product{}, fmt.Errorf("%w: price must be non-negative", errs.ErrValidation)
	}

	p.setSubmitting(true)
	defer p.setSubmitting(false)

	p.mu.Lock()
	id := p.now().UnixMilli()
	if id <= p.lastID {
		id = p.lastID + 1
	}
	p.lastID = id
	created := model.Product{
		ID:     id,
		Title:  title,
		Price:  in.Price,
		Brand:  in.Brand,
		SKU:    in.SKU,
		Images: []string{},
	}
	p.state.Items = append([]model.Product{created}, p.state.Items...)
	p.state.Total++
	p.mu.Unlock()

	p.notifier.Notify(notify.Notification{
		Level:   notify.Success,
		Title:   "Product created",
		Message: fmt.Sprintf("Product %q added", created.Title),
	})
	return created, nil
}

// UpdateProductItem merges patch into the loaded product with the given id.
// It reports whether the id was present; an absent id is not an error.
func (p *ProductList) UpdateProductItem(ctx context.Context, id int64, patch model.ProductPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.setSubmitting(true)
	defer p.setSubmitting(false)

	found := false
	p.mu.Lock()
	items := make([]model.Product, len(p.state.Items))
	for i, it := range p.state.Items {
		if it.ID == id {
			it = patch.Apply(it)
			found = true
		}
		items[i] = it
	}
	p.state.Items = items
	p.mu.Unlock()

	p.notifier.Notify(notify.Notification{Level: notify.Success, Title: "Product updated", Message: "Changes saved locally"})
	return found, nil
}

func (p *ProductList) setSubmitting(v bool) {
	p.mu.Lock()
	p.state.Submitting = v
	d := p.snapshotLocked()
	p.mu.Unlock()
	p.deliver(d)
}

// Wait blocks until no fetch is in flight. A pending debounced search that
// has not fired yet is not waited for.
func (p *ProductList) Wait() {
	p.mu.Lock()
	for p.inflight > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
}

// Close drops the pending search and cancels in-flight fetches. Results
// arriving afterwards are discarded.
func (p *ProductList) Close() {
	p.search.Cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.seq++
	p.cancel = nil
	p.state.Loading = false
	p.mu.Unlock()

	p.baseCancel()
}

// delivery is a state snapshot with the subscribers registered when it was taken.
type delivery struct {
	version uint64
	state   model.ListingState
	subs    []func(model.ListingState)
}

func (p *ProductList) snapshotLocked() delivery {
	p.version++
	d := delivery{
		version: p.version,
		state:   p.state.Clone(),
		subs:    make([]func(model.ListingState), 0, len(p.subs)),
	}
	for _, fn := range p.subs {
		d.subs = append(d.subs, fn)
	}
	return d
}

// deliver hands d to its subscribers unless a newer snapshot got there first.
// Snapshots are taken on several goroutines, so an older one may arrive late.
func (p *ProductList) deliver(d delivery) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	if d.version <= p.delivered {
		return
	}
	p.delivered = d.version
	for _, fn := range d.subs {
		fn(d.state)
	}
}
