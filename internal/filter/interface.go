// Package filter runs OAF filter requests and serves attribute metadata for
// one service.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/ogc"
)

// QueryablesFetcher reads a collection's queryables as attribute type tags.
type QueryablesFetcher interface {
	FetchQueryables(ctx context.Context, baseURL, collection string) (map[string]string, error)
}

// Upstream is everything the interface needs from the OAF client.
type Upstream interface {
	FeatureFetcher
	PropertyFetcher
	QueryablesFetcher
}

// Options tunes an Interface. The zero value is usable.
type Options struct {
	Extent               ExtentSource
	Encoder              ogc.GeometryEncoder
	PropertyFetchTimeout time.Duration
}

// Interface is the public surface: filtering, stopping and metadata lookups.
type Interface struct {
	logger     *slog.Logger
	lifecycle  *Lifecycle
	cache      *PropertyCache
	queryables QueryablesFetcher
	ctx        context.Context
	cancel     context.CancelFunc
}

// New builds an interface whose property cache lives until Close.
func New(logger *slog.Logger, up Upstream, opts Options) *Interface {
	ctx, cancel := context.WithCancel(context.Background())
	return &Interface{
		logger:     logger,
		lifecycle:  NewLifecycle(logger, up, ogc.NewQueryBuilder(opts.Encoder), opts.Extent),
		cache:      NewPropertyCache(ctx, logger, up, opts.PropertyFetchTimeout),
		queryables: up,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Filter starts a filter request; see Lifecycle.Filter.
func (i *Interface) Filter(
	ctx context.Context,
	q model.FilterQuestion,
	onAnswer func(model.FilterAnswer),
	onError func(error),
	ignoreRules bool,
) {
	i.lifecycle.Filter(ctx, q, onAnswer, onError, ignoreRules)
}

// Stop cancels the in-flight request of filterID.
func (i *Interface) Stop(filterID int, onSuccess func(), onError func()) {
	i.lifecycle.Stop(filterID, onSuccess, onError)
}

// Active reports whether filterID has a request in flight.
func (i *Interface) Active(filterID int) bool {
	return i.lifecycle.Active(filterID)
}

// Busy reports whether any filter of this interface is in flight.
func (i *Interface) Busy() bool {
	return i.lifecycle.Busy()
}

// GetMinMax reports the numeric range of attr from the property cache.
func (i *Interface) GetMinMax(
	svc model.Service,
	attr string,
	onSuccess func(model.MinMax),
	onError func(error),
	minOnly, maxOnly bool,
) {
	if err := ValidateService(svc); err != nil {
		fail(onError, err)
		return
	}
	i.cache.GetMinMax(svc, attr, onSuccess, onError, minOnly, maxOnly)
}

func (i *Interface) GetUniqueValues(svc model.Service, attr string, onSuccess func([]any), onError func(error)) {
	if err := ValidateService(svc); err != nil {
		fail(onError, err)
		return
	}
	i.cache.GetUniqueValues(svc, attr, onSuccess, onError)
}

// GetAttrTypes reports the type tag of every queryable attribute. A malformed
// service fails before any request is made.
func (i *Interface) GetAttrTypes(svc model.Service, onSuccess func(map[string]string), onError func(error)) {
	if err := ValidateService(svc); err != nil {
		fail(onError, err)
		return
	}
	go func() {
		types, err := i.queryables.FetchQueryables(i.ctx, svc.URL, svc.Collection)
		if err != nil {
			i.logger.Warn("fetch queryables failed", "collection", svc.Collection, "err", err)
			fail(onError, fmt.Errorf("attribute types of %s: %w", svc.Collection, err))
			return
		}
		if onSuccess != nil {
			onSuccess(types)
		}
	}()
}

// Close cancels in-flight filters and any outstanding property load.
func (i *Interface) Close() {
	i.lifecycle.StopAll()
	i.cancel()
}

func fail(onError func(error), err error) {
	if onError != nil {
		onError(err)
	}
}
