// Package executor issues upstream OAF requests and decodes their responses.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/observability"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/ogc"
)

type Interface interface {
	FetchFeatures(ctx context.Context, baseURL, collection string, params url.Values) ([]*geojson.Feature, error)
	FetchAllProperties(ctx context.Context, baseURL, collection string, limit int) (model.PropertyMap, error)
	FetchQueryables(ctx context.Context, baseURL, collection string) (map[string]string, error)
}

type Option func(*Executor)

// WithPageSize sets the page size used when a caller gives no limit.
func WithPageSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithMaxPages bounds how many next links are followed per request.
func WithMaxPages(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	pageSize int
	maxPages int
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, opts ...Option) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Executor{
		logger:   logger,
		client:   client,
		pageSize: 1000,
		maxPages: 100,
		startNow: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
	Type string `json:"type"`
}

type itemsPage struct {
	Features []json.RawMessage `json:"features"`
	Links    []link            `json:"links"`
}

// FetchFeatures returns the features matching params. A response without a
// features array yields nil, nil.
func (e *Executor) FetchFeatures(ctx context.Context, baseURL, collection string, params url.Values) ([]*geojson.Feature, error) {
	limit, _ := strconv.Atoi(params.Get("limit"))
	next := ogc.ItemsEndpoint(baseURL, collection) + "?" + params.Encode()

	var out []*geojson.Feature
	for page := 0; next != "" && page < e.maxPages; page++ {
		p, err := e.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		if p.Features == nil {
			if page == 0 {
				return nil, nil
			}
			break
		}
		if out == nil {
			out = make([]*geojson.Feature, 0, len(p.Features))
		}
		for _, raw := range p.Features {
			f, err := geojson.UnmarshalFeature(raw)
			if err != nil {
				e.logger.Debug("skipping undecodable feature", "collection", collection, "err", err)
				continue
			}
			out = append(out, f)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		next = nextLink(next, p.Links)
	}
	return out, nil
}

// FetchAllProperties pages through every feature of the collection and
// records the distinct property values per attribute.
func (e *Executor) FetchAllProperties(ctx context.Context, baseURL, collection string, limit int) (model.PropertyMap, error) {
	if limit <= 0 {
		limit = e.pageSize
	}
	params := ogc.BuildItemsParams(ogc.ItemsQuery{Limit: limit})
	next := ogc.ItemsEndpoint(baseURL, collection) + "?" + params.Encode()

	props := model.PropertyMap{}
	seen := 0
	for page := 0; next != "" && page < e.maxPages; page++ {
		p, err := e.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, raw := range p.Features {
			var f struct {
				Properties map[string]any `json:"properties"`
			}
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			for k, v := range f.Properties {
				if v == nil {
					continue
				}
				props.Add(k, v)
			}
			seen++
		}
		if len(p.Features) == 0 {
			break
		}
		next = nextLink(next, p.Links)
	}
	e.logger.Debug("fetched all properties",
		"collection", collection,
		"features", seen,
		"attributes", len(props))
	return props, nil
}

// FetchQueryables maps each queryable of the collection to a type tag.
func (e *Executor) FetchQueryables(ctx context.Context, baseURL, collection string) (map[string]string, error) {
	u := ogc.QueryablesEndpoint(baseURL, collection) + "?f=json"
	body, err := e.get(ctx, u, "application/schema+json, application/json")
	if err != nil {
		return nil, err
	}
	var doc struct {
		Properties map[string]struct {
			Type   any    `json:"type"`
			Format string `json:"format"`
			Ref    string `json:"$ref"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &NetworkError{Op: "decode queryables", URL: u, Err: err}
	}
	out := make(map[string]string, len(doc.Properties))
	for name, p := range doc.Properties {
		out[name] = typeTag(p.Type, p.Format, p.Ref)
	}
	return out, nil
}

func typeTag(typ any, format, ref string) string {
	if strings.Contains(ref, "geojson.org") || strings.HasPrefix(format, "geometry") {
		return "geometry"
	}
	switch format {
	case "date", "date-time":
		return format
	}
	t, _ := typ.(string)
	if list, ok := typ.([]any); ok {
		// ["string","null"]
		for _, v := range list {
			if s, ok := v.(string); ok && s != "null" {
				t = s
				break
			}
		}
	}
	switch t {
	case "string", "number", "integer", "boolean":
		return t
	default:
		return "unknown"
	}
}

func (e *Executor) fetchPage(ctx context.Context, u string) (itemsPage, error) {
	var p itemsPage
	body, err := e.get(ctx, u, "application/geo+json, application/json")
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, &NetworkError{Op: "decode items", URL: u, Err: err}
	}
	return p, nil
}

func (e *Executor) get(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &NetworkError{Op: "build request", URL: u, Err: err}
	}
	req.Header.Set("Accept", accept)

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "do request", URL: u, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("oaf", dur.Seconds())
	e.logger.Debug("oaf request done", "url", u, "status", resp.StatusCode, "duration", dur.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &NetworkError{
			Op:         "upstream status",
			URL:        u,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))),
		}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read body", URL: u, Err: err}
	}
	return b, nil
}

// nextLink resolves the rel=next link of a page against the page URL.
func nextLink(current string, links []link) string {
	for _, l := range links {
		if l.Rel != "next" || l.Href == "" {
			continue
		}
		if l.Type != "" && !strings.Contains(l.Type, "json") {
			continue
		}
		base, err := url.Parse(current)
		if err != nil {
			return ""
		}
		ref, err := url.Parse(l.Href)
		if err != nil {
			return ""
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}
