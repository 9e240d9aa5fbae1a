package filter

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/observability"
)

type PropertyFetcher interface {
	FetchAllProperties(ctx context.Context, baseURL, collection string, limit int) (model.PropertyMap, error)
}

// cacheState is one of notFetched, fetching or ready.
type cacheState interface{ isCacheState() }

type (
	notFetched struct{}
	fetching   struct{}
	ready      struct{ props model.PropertyMap }
)

func (notFetched) isCacheState() {}
func (fetching) isCacheState()   {}
func (ready) isCacheState()      {}

type waiter func(model.PropertyMap, error)

// waitingList is a FIFO of continuations parked until the load finishes.
type waitingList struct {
	items []waiter
}

func (w *waitingList) push(f waiter) { w.items = append(w.items, f) }

func (w *waitingList) len() int { return len(w.items) }

// drain empties the list and returns its items in arrival order.
func (w *waitingList) drain() []waiter {
	out := w.items
	w.items = nil
	return out
}

// PropertyCache loads every property of a collection once and answers
// derived queries from that snapshot. Concurrent callers arriving while the
// load is outstanding share it.
type PropertyCache struct {
	logger  *slog.Logger
	fetch   PropertyFetcher
	base    context.Context
	timeout time.Duration

	mu      sync.Mutex
	state   cacheState
	waiting waitingList
}

// NewPropertyCache binds the cache to base; cancelling base aborts an
// outstanding load. timeout <= 0 means no deadline.
func NewPropertyCache(base context.Context, l *slog.Logger, fetch PropertyFetcher, timeout time.Duration) *PropertyCache {
	return &PropertyCache{
		logger:  l,
		fetch:   fetch,
		base:    base,
		timeout: timeout,
		state:   notFetched{},
	}
}

// GetMinMax reports the numeric range of attr. minOnly and maxOnly restrict
// the result to one bound; minOnly wins when both are set.
func (c *PropertyCache) GetMinMax(
	svc model.Service,
	attr string,
	onSuccess func(model.MinMax),
	onError func(error),
	minOnly, maxOnly bool,
) {
	c.lookup("min_max", svc, func(props model.PropertyMap) {
		if onSuccess != nil {
			onSuccess(minMax(props[attr], minOnly, maxOnly))
		}
	}, onError)
}

// GetUniqueValues reports the distinct values recorded for attr.
func (c *PropertyCache) GetUniqueValues(svc model.Service, attr string, onSuccess func([]any), onError func(error)) {
	c.lookup("unique_values", svc, func(props model.PropertyMap) {
		if onSuccess != nil {
			onSuccess(props[attr].Values())
		}
	}, onError)
}

func (c *PropertyCache) lookup(op string, svc model.Service, onReady func(model.PropertyMap), onError func(error)) {
	c.mu.Lock()
	if st, ok := c.state.(ready); ok {
		c.mu.Unlock()
		observability.IncPropertyCache(op, "hit")
		c.deliver(onReady, st.props)
		return
	}

	start := false
	if _, ok := c.state.(notFetched); ok {
		c.state = fetching{}
		start = true
	}
	c.waiting.push(func(props model.PropertyMap, err error) {
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onReady(props)
	})
	queued := c.waiting.len()
	c.mu.Unlock()

	if !start {
		observability.IncPropertyCache(op, "coalesced")
		c.logger.Debug("property lookup coalesced", "op", op, "waiting", queued)
		return
	}
	observability.IncPropertyCache(op, "fetch")
	go c.load(svc)
}

func (c *PropertyCache) load(svc model.Service) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(c.base, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(c.base)
	}
	defer cancel()

	start := time.Now()
	props, err := c.fetch.FetchAllProperties(ctx, svc.URL, svc.Collection, svc.Limit)
	observability.IncPropertyFetch(err)

	c.mu.Lock()
	if err != nil {
		// back to notFetched so a later lookup may try again
		c.state = notFetched{}
		props = nil
	} else {
		if props == nil {
			props = model.PropertyMap{}
		}
		c.state = ready{props: props}
	}
	waiters := c.waiting.drain()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("fetch all properties failed",
			"collection", svc.Collection, "waiting", len(waiters), "err", err)
	} else {
		c.logger.Debug("properties cached",
			"collection", svc.Collection,
			"attributes", len(props),
			"waiting", len(waiters),
			"duration", time.Since(start).String())
	}
	for _, w := range waiters {
		c.call(w, props, err)
	}
}

func (c *PropertyCache) deliver(onReady func(model.PropertyMap), props model.PropertyMap) {
	c.call(func(p model.PropertyMap, _ error) { onReady(p) }, props, nil)
}

// call runs one continuation; a panicking caller does not starve the rest.
func (c *PropertyCache) call(w waiter, props model.PropertyMap, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("property callback panic recovered", "err", rec)
		}
	}()
	w(props, err)
}

// Ready reports whether the properties have been loaded.
func (c *PropertyCache) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.state.(ready)
	return ok
}

func minMax(vs *model.ValueSet, minOnly, maxOnly bool) model.MinMax {
	lo, hi := math.Inf(1), math.Inf(-1)
	found := false
	for _, v := range vs.Values() {
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		found = true
		if !maxOnly || minOnly {
			lo = math.Min(lo, f)
		}
		if !minOnly {
			hi = math.Max(hi, f)
		}
	}
	if !found {
		return model.MinMax{}
	}
	switch {
	case minOnly:
		return model.MinMax{Min: &lo}
	case maxOnly:
		return model.MinMax{Max: &hi}
	default:
		return model.MinMax{Min: &lo, Max: &hi}
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), !math.IsNaN(float64(t))
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(t).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(t).Uint()), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}
