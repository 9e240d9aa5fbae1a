package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/executor"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/observability"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/filter"
)

// Interfaces hands out the filter interface of a service. Handlers only
// call Get with a service that passed filter.ValidateService.
type Interfaces interface {
	Get(svc model.Service) *filter.Interface
	Lookup(svc model.Service) (*filter.Interface, bool)
}

type streamKey struct {
	fi       *filter.Interface
	filterID int
}

type Handlers struct {
	logger *slog.Logger
	ifaces Interfaces

	mu      sync.Mutex
	streams map[streamKey]chan struct{}
}

func New(logger *slog.Logger, ifaces Interfaces) *Handlers {
	return &Handlers{
		logger:  logger,
		ifaces:  ifaces,
		streams: map[streamKey]chan struct{}{},
	}
}

// Observe wraps h with request metrics for route.
func Observe(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

type filterRequest struct {
	model.FilterQuestion
	IgnoreRules bool `json:"ignoreRules"`

	// Extent is the visible map extent as [minx, miny, maxx, maxy], used
	// when commands.searchInMapExtent is set.
	Extent []float64 `json:"extent,omitempty"`
}

func (req *filterRequest) mapExtent() (*orb.Bound, error) {
	if len(req.Extent) == 0 {
		return nil, nil
	}
	if len(req.Extent) != 4 {
		return nil, fmt.Errorf("extent: want [minx,miny,maxx,maxy], got %d values", len(req.Extent))
	}
	b := orb.Bound{
		Min: orb.Point{req.Extent[0], req.Extent[1]},
		Max: orb.Point{req.Extent[2], req.Extent[3]},
	}
	if b.Min.X() > b.Max.X() || b.Min.Y() > b.Max.Y() {
		return nil, errors.New("extent: min exceeds max")
	}
	return &b, nil
}

type event struct {
	answer *model.FilterAnswer
	err    error
}

// Filter runs one filter and streams its progress frames as NDJSON. The
// stream ends with the terminal frame, an error line, or a cancelled line.
func (h *Handlers) Filter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode filter request: %w", err))
		return
	}
	if err := filter.ValidateService(req.Service); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	extent, err := req.mapExtent()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Commands.MapExtent = extent
	fi := h.ifaces.Get(req.Service)

	events := make(chan event, 4)
	stopped := h.openStream(fi, req.FilterID)
	defer h.closeStream(fi, req.FilterID, stopped)

	fi.Filter(r.Context(), req.FilterQuestion,
		func(a model.FilterAnswer) { events <- event{answer: &a} },
		func(err error) { events <- event{err: err} },
		req.IgnoreRules,
	)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	enc := json.NewEncoder(w)

	for {
		select {
		case ev := <-events:
			if errors.Is(ev.err, context.Canceled) {
				_ = enc.Encode(cancelledLine(req.FilterID))
				_ = rc.Flush()
				return
			}
			if ev.err != nil {
				_ = enc.Encode(errorLine(ev.err))
				_ = rc.Flush()
				return
			}
			if err := enc.Encode(ev.answer); err != nil {
				h.logger.Warn("write filter frame", "filter_id", req.FilterID, "err", err)
				return
			}
			_ = rc.Flush()
			if ev.answer.Paging.Page == model.PageCompleted {
				return
			}
		case <-stopped:
			_ = enc.Encode(cancelledLine(req.FilterID))
			_ = rc.Flush()
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handlers) openStream(fi *filter.Interface, id int) chan struct{} {
	ch := make(chan struct{})
	h.mu.Lock()
	h.streams[streamKey{fi, id}] = ch
	h.mu.Unlock()
	return ch
}

func (h *Handlers) closeStream(fi *filter.Interface, id int, ch chan struct{}) {
	h.mu.Lock()
	if cur, ok := h.streams[streamKey{fi, id}]; ok && cur == ch {
		delete(h.streams, streamKey{fi, id})
	}
	h.mu.Unlock()
}

func (h *Handlers) notifyStopped(fi *filter.Interface, id int) {
	h.mu.Lock()
	ch, ok := h.streams[streamKey{fi, id}]
	if ok {
		delete(h.streams, streamKey{fi, id})
	}
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

type stopRequest struct {
	Service  model.Service `json:"service"`
	FilterID int           `json:"filterId"`
}

func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode stop request: %w", err))
		return
	}
	fi, ok := h.ifaces.Lookup(req.Service)
	if !ok {
		writeError(w, http.StatusNotFound, filter.ErrNoActiveRequest)
		return
	}
	fi.Stop(req.FilterID,
		func() {
			h.notifyStopped(fi, req.FilterID)
			writeJSON(w, http.StatusOK, map[string]any{"filterId": req.FilterID, "stopped": true})
		},
		func() { writeError(w, http.StatusNotFound, filter.ErrNoActiveRequest) },
	)
}

func (h *Handlers) MinMax(w http.ResponseWriter, r *http.Request) {
	svc, attr, err := parseMetadataQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	minOnly, _ := strconv.ParseBool(r.URL.Query().Get("minOnly"))
	maxOnly, _ := strconv.ParseBool(r.URL.Query().Get("maxOnly"))

	res := make(chan model.MinMax, 1)
	errs := make(chan error, 1)
	h.ifaces.Get(svc).GetMinMax(svc, attr,
		func(m model.MinMax) { res <- m },
		func(err error) { errs <- err },
		minOnly, maxOnly)
	await(w, r, res, errs, func(m model.MinMax) any { return m })
}

func (h *Handlers) UniqueValues(w http.ResponseWriter, r *http.Request) {
	svc, attr, err := parseMetadataQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := make(chan []any, 1)
	errs := make(chan error, 1)
	h.ifaces.Get(svc).GetUniqueValues(svc, attr,
		func(v []any) { res <- v },
		func(err error) { errs <- err })
	await(w, r, res, errs, func(v []any) any { return map[string]any{"values": v} })
}

func (h *Handlers) AttrTypes(w http.ResponseWriter, r *http.Request) {
	svc := parseService(r)
	if err := filter.ValidateService(svc); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := make(chan map[string]string, 1)
	errs := make(chan error, 1)
	h.ifaces.Get(svc).GetAttrTypes(svc,
		func(m map[string]string) { res <- m },
		func(err error) { errs <- err })
	await(w, r, res, errs, func(m map[string]string) any { return map[string]any{"types": m} })
}

func await[T any](w http.ResponseWriter, r *http.Request, res <-chan T, errs <-chan error, body func(T) any) {
	select {
	case v := <-res:
		writeJSON(w, http.StatusOK, body(v))
	case err := <-errs:
		writeError(w, statusFor(err), err)
	case <-r.Context().Done():
	}
}

func parseService(r *http.Request) model.Service {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
	return model.Service{
		URL:        strings.TrimSpace(q.Get("url")),
		Collection: strings.TrimSpace(q.Get("collection")),
		Limit:      limit,
		SRSName:    strings.TrimSpace(q.Get("srsName")),
	}
}

func parseMetadataQuery(r *http.Request) (model.Service, string, error) {
	attr := strings.TrimSpace(r.URL.Query().Get("attr"))
	if attr == "" {
		return model.Service{}, "", errors.New("missing required parameter: attr")
	}
	svc := parseService(r)
	if err := filter.ValidateService(svc); err != nil {
		return model.Service{}, "", err
	}
	return svc, attr, nil
}

func statusFor(err error) int {
	var ce *filter.ConfigError
	var ne *executor.NetworkError
	switch {
	case errors.As(err, &ce):
		return http.StatusBadRequest
	case errors.As(err, &ne):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func cancelledLine(filterID int) map[string]any {
	return map[string]any{"filterId": filterID, "cancelled": true}
}

func errorLine(err error) map[string]any {
	kind := "internal"
	switch statusFor(err) {
	case http.StatusBadRequest:
		kind = "config"
	case http.StatusBadGateway:
		kind = "network"
	}
	return map[string]any{"error": err.Error(), "kind": kind}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
