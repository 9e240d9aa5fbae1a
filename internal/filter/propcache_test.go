package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
)

type fakeProps struct {
	calls   atomic.Int32
	release chan struct{}
	errs    []error // returned by successive calls; nil entries succeed
	props   model.PropertyMap
}

func (f *fakeProps) FetchAllProperties(ctx context.Context, _, _ string, _ int) (model.PropertyMap, error) {
	n := int(f.calls.Add(1))
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= len(f.errs) && f.errs[n-1] != nil {
		return nil, f.errs[n-1]
	}
	return f.props, nil
}

func sampleProps() model.PropertyMap {
	p := model.PropertyMap{}
	for _, v := range []any{2.0, 4.0, "n/a", 1.0, 4.0} {
		p.Add("lanes", v)
	}
	for _, v := range []any{"primary", "secondary", "primary"} {
		p.Add("kind", v)
	}
	return p
}

var testService = model.Service{URL: "http://oaf.example", Collection: "roads", Limit: 500}

func newTestCache(f *fakeProps) *PropertyCache {
	return NewPropertyCache(context.Background(), discardLogger(), f, 0)
}

func TestPropertyCache_CoalescesConcurrentCallers(t *testing.T) {
	f := &fakeProps{release: make(chan struct{}), props: sampleProps()}
	c := newTestCache(f)

	const n = 16
	var results sync.WaitGroup
	results.Add(n)
	var issued sync.WaitGroup
	issued.Add(n)
	var mu sync.Mutex
	uniques := map[int][]any{}
	ranges := map[int]model.MinMax{}

	for i := range n {
		go func() {
			defer issued.Done()
			if i%2 == 0 {
				c.GetUniqueValues(testService, "kind", func(v []any) {
					mu.Lock()
					uniques[i] = v
					mu.Unlock()
					results.Done()
				}, func(err error) { t.Errorf("unexpected error: %v", err); results.Done() })
				return
			}
			c.GetMinMax(testService, "lanes", func(m model.MinMax) {
				mu.Lock()
				ranges[i] = m
				mu.Unlock()
				results.Done()
			}, func(err error) { t.Errorf("unexpected error: %v", err); results.Done() }, false, false)
		}()
	}
	issued.Wait()
	if c.Ready() {
		t.Fatalf("cache must not be ready before the fetch resolves")
	}
	close(f.release)
	waitGroup(t, &results)

	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls=%d want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range uniques {
		if fmt.Sprint(v) != "[primary secondary]" {
			t.Fatalf("caller %d unique values=%v", i, v)
		}
	}
	for i, m := range ranges {
		if m.Min == nil || m.Max == nil || *m.Min != 1 || *m.Max != 4 {
			t.Fatalf("caller %d min/max=%+v", i, m)
		}
	}
	if len(uniques)+len(ranges) != n {
		t.Fatalf("results=%d want %d", len(uniques)+len(ranges), n)
	}
}

func TestPropertyCache_ReadyAnswersSynchronously(t *testing.T) {
	f := &fakeProps{props: sampleProps()}
	c := newTestCache(f)

	done := make(chan struct{})
	c.GetUniqueValues(testService, "kind", func([]any) { close(done) }, nil)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for first lookup")
	}

	for range 5 {
		called := false
		c.GetMinMax(testService, "lanes", func(model.MinMax) { called = true }, nil, false, true)
		if !called {
			t.Fatalf("ready cache must answer before returning")
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls=%d want 1", got)
	}
}

func TestPropertyCache_WaitingListFIFO(t *testing.T) {
	f := &fakeProps{release: make(chan struct{}), props: sampleProps()}
	c := newTestCache(f)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		c.GetUniqueValues(testService, "kind", func([]any) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}, nil)
	}
	close(f.release)
	waitGroup(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(order) != "[0 1 2 3 4]" {
		t.Fatalf("drain order=%v want FIFO", order)
	}
}

func TestPropertyCache_FailureFailsWaitersAndResets(t *testing.T) {
	boom := errors.New("upstream down")
	f := &fakeProps{release: make(chan struct{}), errs: []error{boom}, props: sampleProps()}
	c := newTestCache(f)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for range 3 {
		wg.Add(1)
		c.GetUniqueValues(testService, "kind", func([]any) {
			t.Errorf("unexpected success")
			wg.Done()
		}, func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			wg.Done()
		})
	}
	close(f.release)
	waitGroup(t, &wg)

	mu.Lock()
	if len(errs) != 3 {
		t.Fatalf("errors=%d want 3", len(errs))
	}
	for _, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	mu.Unlock()
	if c.Ready() {
		t.Fatalf("failed load must not mark the cache ready")
	}

	got := make(chan []any, 1)
	c.GetUniqueValues(testService, "kind", func(v []any) { got <- v }, func(err error) { t.Errorf("retry failed: %v", err) })
	select {
	case v := <-got:
		if fmt.Sprint(v) != "[primary secondary]" {
			t.Fatalf("values after reload=%v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}
	if n := f.calls.Load(); n != 2 {
		t.Fatalf("fetch calls=%d want 2", n)
	}
}

func TestPropertyCache_PanickingCallerDoesNotStarveOthers(t *testing.T) {
	f := &fakeProps{release: make(chan struct{}), props: sampleProps()}
	c := newTestCache(f)

	got := make(chan []any, 1)
	c.GetUniqueValues(testService, "kind", func([]any) { panic("caller bug") }, nil)
	c.GetUniqueValues(testService, "kind", func(v []any) { got <- v }, nil)
	close(f.release)

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatalf("second waiter starved by panicking first waiter")
	}
}

func TestPropertyCache_BaseContextCancelAbortsLoad(t *testing.T) {
	f := &fakeProps{release: make(chan struct{}), props: sampleProps()}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewPropertyCache(ctx, discardLogger(), f, 0)

	errCh := make(chan error, 1)
	c.GetUniqueValues(testService, "kind", nil, func(err error) { errCh <- err })
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for aborted load")
	}
}

func TestMinMaxDerivation(t *testing.T) {
	props := sampleProps()
	cases := []struct {
		name             string
		attr             string
		minOnly, maxOnly bool
		wantMin, wantMax *float64
	}{
		{"both", "lanes", false, false, ptr(1), ptr(4)},
		{"min only", "lanes", true, false, ptr(1), nil},
		{"max only", "lanes", false, true, nil, ptr(4)},
		{"min wins", "lanes", true, true, ptr(1), nil},
		{"non numeric", "kind", false, false, nil, nil},
		{"missing", "nope", false, false, nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := minMax(props[tc.attr], tc.minOnly, tc.maxOnly)
			if !sameFloat(got.Min, tc.wantMin) || !sameFloat(got.Max, tc.wantMax) {
				t.Fatalf("got min=%v max=%v want min=%v max=%v",
					deref(got.Min), deref(got.Max), deref(tc.wantMin), deref(tc.wantMax))
			}
		})
	}
}

func TestMinMaxDerivation_AllNumericKinds(t *testing.T) {
	props := model.PropertyMap{}
	for _, v := range []any{int8(-3), int16(7), uint8(2), uint64(11), float32(1.5), json.Number("4"), math.NaN(), float32(math.NaN())} {
		props.Add("mixed", v)
	}
	got := minMax(props["mixed"], false, false)
	if !sameFloat(got.Min, ptr(-3)) || !sameFloat(got.Max, ptr(11)) {
		t.Fatalf("got min=%v max=%v want -3/11", deref(got.Min), deref(got.Max))
	}
}

func TestUniqueValues_MissingAttribute(t *testing.T) {
	f := &fakeProps{props: sampleProps()}
	c := newTestCache(f)

	got := make(chan []any, 1)
	c.GetUniqueValues(testService, "nope", func(v []any) { got <- v }, nil)
	select {
	case v := <-got:
		if v == nil || len(v) != 0 {
			t.Fatalf("want empty non-nil slice; got %#v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
	}
}

func ptr(f float64) *float64 { return &f }

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for callbacks")
	}
}
