package ogc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

const FilterLangCQL2Text = "cql2-text"

func CollectionEndpoint(base, collection string) string {
	return strings.TrimRight(base, "/") + "/collections/" + url.PathEscape(collection)
}

func ItemsEndpoint(base, collection string) string {
	return CollectionEndpoint(base, collection) + "/items"
}

func QueryablesEndpoint(base, collection string) string {
	return CollectionEndpoint(base, collection) + "/queryables"
}

// ItemsQuery holds the parameters of one OAF items request.
type ItemsQuery struct {
	Filter  string
	Limit   int
	BBox    *orb.Bound
	SRSName string
}

func BuildItemsParams(q ItemsQuery) url.Values {
	params := url.Values{}
	params.Set("f", "json")
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	crs := EPSGToURI(q.SRSName)
	if crs != "" {
		params.Set("crs", crs)
	}
	if q.BBox != nil && !q.BBox.IsEmpty() {
		params.Set("bbox", formatBBox(*q.BBox))
		if crs != "" {
			params.Set("bbox-crs", crs)
		}
	}
	if q.Filter != "" {
		params.Set("filter", q.Filter)
		params.Set("filter-lang", FilterLangCQL2Text)
	}
	return params
}

func formatBBox(b orb.Bound) string {
	vals := []float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
