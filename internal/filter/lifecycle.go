package filter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/observability"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/ogc"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/logger"
)

// FeatureFetcher issues one OAF items query.
type FeatureFetcher interface {
	FetchFeatures(ctx context.Context, baseURL, collection string, params url.Values) ([]*geojson.Feature, error)
}

// ExtentSource reports the currently visible map extent.
type ExtentSource interface {
	Extent() (orb.Bound, bool)
}

// ExtentFunc adapts a plain function to ExtentSource.
type ExtentFunc func() (orb.Bound, bool)

func (f ExtentFunc) Extent() (orb.Bound, bool) { return f() }

type token struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

// Lifecycle runs at most one cancellable request per filter id.
type Lifecycle struct {
	logger    *slog.Logger
	fetch     FeatureFetcher
	builder   ogc.QueryBuilder
	extent    ExtentSource
	normalize func([]*geojson.Feature) []model.Item
	now       func() time.Time

	mu     sync.Mutex
	tokens map[int]token
}

// NewLifecycle builds a lifecycle; extent may be nil.
func NewLifecycle(l *slog.Logger, fetch FeatureFetcher, builder ogc.QueryBuilder, extent ExtentSource) *Lifecycle {
	return &Lifecycle{
		logger:    l,
		fetch:     fetch,
		builder:   builder,
		extent:    extent,
		normalize: ogc.Normalize,
		now:       time.Now,
		tokens:    map[int]token{},
	}
}

// Filter emits the start frame synchronously and runs the request in the
// background. Frames arrive in page order 1, 99, 100. A request stopped via
// Stop or by ctx ends with one onError wrapping context.Canceled.
func (l *Lifecycle) Filter(
	ctx context.Context,
	q model.FilterQuestion,
	onAnswer func(model.FilterAnswer),
	onError func(error),
	ignoreRules bool,
) {
	emit := func(page int, items []model.Item) {
		if onAnswer == nil {
			return
		}
		onAnswer(model.FilterAnswer{
			Service:   q.Service,
			FilterID:  q.FilterID,
			SnippetID: q.SnippetID,
			Paging:    model.Paging{Page: page, Total: model.PagingTotal},
			Items:     items,
		})
	}
	emit(model.PageStarted, []model.Item{})

	if err := ValidateService(q.Service); err != nil {
		observability.ObserveFilter("errored", 0)
		if onError != nil {
			onError(err)
		}
		return
	}

	query := l.builder.Build(q.Rules, q.Commands.GeometryName, q.Commands.FilterGeometry, ignoreRules)
	var bbox *orb.Bound
	if q.Commands.SearchInMapExtent {
		bbox = l.mapExtent(q.Commands)
	}
	params := ogc.BuildItemsParams(ogc.ItemsQuery{
		Filter:  query,
		Limit:   q.Service.Limit,
		BBox:    bbox,
		SRSName: q.Service.SRSName,
	})

	reqCtx, cancel := context.WithCancel(ctx)
	tok := token{id: uuid.New(), cancel: cancel}
	reqCtx = logger.WithFilterID(logger.WithRequestID(reqCtx, tok.id.String()), q.FilterID)

	l.mu.Lock()
	l.tokens[q.FilterID] = tok
	l.mu.Unlock()

	l.logger.DebugContext(reqCtx, "filter request",
		"collection", q.Service.Collection,
		"query", query,
		"bbox", bbox != nil)

	go l.run(reqCtx, tok, q, params, emit, onAnswer != nil, onError)
}

func (l *Lifecycle) run(
	ctx context.Context,
	tok token,
	q model.FilterQuestion,
	params url.Values,
	emit func(int, []model.Item),
	hasHandler bool,
	onError func(error),
) {
	start := l.now()
	defer l.release(q.FilterID, tok)
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.ErrorContext(ctx, "filter panic recovered", "err", rec)
			observability.ObserveFilter("errored", time.Since(start).Seconds())
			if onError != nil {
				onError(fmt.Errorf("filter %d: panic: %v", q.FilterID, rec))
			}
		}
	}()

	feats, err := l.fetch.FetchFeatures(ctx, q.Service.URL, q.Service.Collection, params)
	if err != nil {
		if ctx.Err() != nil {
			l.logger.DebugContext(ctx, "filter cancelled")
			observability.ObserveFilter("cancelled", time.Since(start).Seconds())
			if onError != nil {
				onError(fmt.Errorf("filter %d: %w", q.FilterID, ctx.Err()))
			}
			return
		}
		l.logger.WarnContext(ctx, "filter request failed", "err", err)
		observability.ObserveFilter("errored", time.Since(start).Seconds())
		if onError != nil {
			onError(err)
		}
		return
	}

	if feats == nil || !hasHandler {
		observability.ObserveFilter("malformed", time.Since(start).Seconds())
		emit(model.PageCompleted, []model.Item{})
		return
	}

	emit(model.PageReceived, []model.Item{})
	items := l.normalize(feats)
	observability.ObserveFilter("delivered", time.Since(start).Seconds())
	l.logger.DebugContext(ctx, "filter delivered", "items", len(items))
	emit(model.PageCompleted, items)
}

// mapExtent prefers the extent carried by the question over the source.
func (l *Lifecycle) mapExtent(c model.Commands) *orb.Bound {
	if c.MapExtent != nil {
		b := *c.MapExtent
		return &b
	}
	if l.extent == nil {
		return nil
	}
	if b, ok := l.extent.Extent(); ok {
		return &b
	}
	return nil
}

// release drops tok unless a newer request has replaced it.
func (l *Lifecycle) release(filterID int, tok token) {
	l.mu.Lock()
	if cur, ok := l.tokens[filterID]; ok && cur.id == tok.id {
		delete(l.tokens, filterID)
	}
	l.mu.Unlock()
	tok.cancel()
}

// Stop cancels the in-flight request of filterID. Cancelling counts as
// success; stopping an unknown or finished filter calls onError.
func (l *Lifecycle) Stop(filterID int, onSuccess func(), onError func()) {
	l.mu.Lock()
	tok, ok := l.tokens[filterID]
	if ok {
		delete(l.tokens, filterID)
	}
	l.mu.Unlock()

	if !ok {
		observability.IncFilterStop("unknown")
		if onError != nil {
			onError()
		}
		return
	}
	tok.cancel()
	observability.IncFilterStop("cancelled")
	l.logger.Debug("filter stopped", "filter_id", filterID, "request_id", tok.id.String())
	if onSuccess != nil {
		onSuccess()
	}
}

// Active reports whether filterID has a request in flight.
func (l *Lifecycle) Active(filterID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tokens[filterID]
	return ok
}

// Busy reports whether any request is in flight.
func (l *Lifecycle) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tokens) > 0
}

// StopAll cancels every in-flight request.
func (l *Lifecycle) StopAll() {
	l.mu.Lock()
	toks := l.tokens
	l.tokens = map[int]token{}
	l.mu.Unlock()
	for _, t := range toks {
		t.cancel()
	}
}
