package ogc

import (
	"net/url"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

func TestBuildItemsParams_WithBBox(t *testing.T) {
	b := orb.Bound{Min: orb.Point{11, 55}, Max: orb.Point{12, 56.5}}
	v := BuildItemsParams(ItemsQuery{
		Filter:  "foo='bar'",
		Limit:   50,
		BBox:    &b,
		SRSName: "EPSG:25832",
	})
	assertHas := func(k, want string) {
		if got := v.Get(k); got != want {
			t.Fatalf("param %q got %q want %q", k, got, want)
		}
	}
	assertHas("f", "json")
	assertHas("limit", "50")
	assertHas("bbox", "11,55,12,56.5")
	assertHas("bbox-crs", "http://www.opengis.net/def/crs/EPSG/0/25832")
	assertHas("crs", "http://www.opengis.net/def/crs/EPSG/0/25832")
	assertHas("filter", "foo='bar'")
	assertHas("filter-lang", "cql2-text")
}

func TestBuildItemsParams_Minimal(t *testing.T) {
	v := BuildItemsParams(ItemsQuery{})
	for _, k := range []string{"limit", "bbox", "bbox-crs", "crs", "filter", "filter-lang"} {
		if got := v.Get(k); got != "" {
			t.Fatalf("param %q must be absent; got %q", k, got)
		}
	}
}

func TestEndpoints(t *testing.T) {
	base := "https://example.org/oaf/"
	if got, want := ItemsEndpoint(base, "roads"), "https://example.org/oaf/collections/roads/items"; got != want {
		t.Fatalf("ItemsEndpoint got %q want %q", got, want)
	}
	if got, want := QueryablesEndpoint(base, "a b"), "https://example.org/oaf/collections/a%20b/queryables"; got != want {
		t.Fatalf("QueryablesEndpoint got %q want %q", got, want)
	}
	if _, err := url.Parse(ItemsEndpoint(base, "roads")); err != nil {
		t.Fatalf("invalid URL from ItemsEndpoint: %v", err)
	}
}

func TestEPSGToURI(t *testing.T) {
	cases := map[string]string{
		"EPSG:25832":                 "http://www.opengis.net/def/crs/EPSG/0/25832",
		"25832":                      "http://www.opengis.net/def/crs/EPSG/0/25832",
		"urn:ogc:def:crs:EPSG::4326": "http://www.opengis.net/def/crs/EPSG/0/4326",
		"CRS84":                      CRS84URI,
		"http://example.org/crs/1":   "http://example.org/crs/1",
		"":                           "",
		"EPSG:abc":                   "",
		"   EPSG:3857  ":             "http://www.opengis.net/def/crs/EPSG/0/3857",
	}
	for in, want := range cases {
		if got := EPSGToURI(in); got != want {
			t.Fatalf("EPSGToURI(%q) got %q want %q", in, got, want)
		}
	}
}

func TestEncodeGeometry(t *testing.T) {
	ls := orb.LineString{{0, 0}, {1, 1}}
	if got, want := EncodeGeometry(ls, "geom", RelWithin), "S_WITHIN(geom,"+wkt.MarshalString(ls)+")"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := EncodeGeometry(orb.Polygon{}, "geom", RelIntersects); got != "" {
		t.Fatalf("empty polygon must not encode; got %q", got)
	}
	if got := EncodeGeometry(orb.Point{1, 2}, "", RelIntersects); got != "" {
		t.Fatalf("missing attribute must not encode; got %q", got)
	}
}

func TestNormalize(t *testing.T) {
	f1 := geojson.NewFeature(orb.Point{1, 2})
	f1.ID = float64(7)
	f1.Properties["name"] = "a"
	f2 := geojson.NewFeature(orb.Point{3, 4})
	f2.ID = "road.2"

	items := Normalize([]*geojson.Feature{f1, nil, f2})
	if len(items) != 2 {
		t.Fatalf("items=%d want 2", len(items))
	}
	if items[0].ID != "7" || items[1].ID != "road.2" {
		t.Fatalf("unexpected ids: %q %q", items[0].ID, items[1].ID)
	}
	if items[0].Properties["name"] != "a" {
		t.Fatalf("properties not copied: %v", items[0].Properties)
	}
	f1.Properties["name"] = "changed"
	if items[0].Properties["name"] != "a" {
		t.Fatalf("normalized item must not alias the feature properties")
	}
}
