package ogc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
)

func TestBuild_OperatorTable(t *testing.T) {
	cases := []struct {
		name string
		rule model.Rule
		want string
	}{
		{"eq string", model.Rule{AttrName: "foo", Operator: model.OpEQ, Value: "bar"}, "foo='bar'"},
		{"eq number", model.Rule{AttrName: "foo", Operator: model.OpEQ, Value: 5}, "foo=5"},
		{"eq float", model.Rule{AttrName: "foo", Operator: model.OpEQ, Value: 1.5}, "foo=1.5"},
		{"eq bool", model.Rule{AttrName: "foo", Operator: model.OpEQ, Value: true}, "foo=true"},
		{"eq list", model.Rule{AttrName: "foo", Operator: model.OpEQ, Value: []any{"a", 2.0, "c"}}, "foo IN ('a',2,'c')"},
		{"eq typed list", model.Rule{AttrName: "foo", Operator: model.OpEQ, Value: []int{1, 2}}, "foo IN (1,2)"},
		{"eq date", model.Rule{AttrName: "d", Operator: model.OpEQ, Value: "2024-01-31", Format: model.DateFormat}, "T_EQUALS(d,DATE('2024-01-31'))"},
		{"eq invalid date", model.Rule{AttrName: "d", Operator: model.OpEQ, Value: "Invalid Date", Format: model.DateFormat}, "d='Invalid Date'"},
		{"ne string", model.Rule{AttrName: "foo", Operator: model.OpNE, Value: "bar"}, "NOT foo='bar'"},
		{"ne number", model.Rule{AttrName: "foo", Operator: model.OpNE, Value: 3}, "NOT foo=3"},
		{"ne bool", model.Rule{AttrName: "foo", Operator: model.OpNE, Value: false}, "NOT foo=false"},
		{"ne list", model.Rule{AttrName: "foo", Operator: model.OpNE, Value: []any{"x", "y"}}, "foo NOT IN ('x','y')"},
		{"between", model.Rule{AttrName: "foo", Operator: model.OpBetween, Value: []any{1, 2}}, "foo BETWEEN 1 AND 2"},
		{"startswith", model.Rule{AttrName: "foo", Operator: model.OpStartsWith, Value: "ab"}, "foo LIKE 'ab%'"},
		{"endswith", model.Rule{AttrName: "foo", Operator: model.OpEndsWith, Value: "ab"}, "foo LIKE '%ab'"},
		{"in", model.Rule{AttrName: "foo", Operator: model.OpIn, Value: "ab"}, "foo LIKE '%ab%'"},
		{"gt", model.Rule{AttrName: "foo", Operator: model.OpGT, Value: 5}, "foo>5"},
		{"ge", model.Rule{AttrName: "foo", Operator: model.OpGE, Value: 5}, "foo>=5"},
		{"lt", model.Rule{AttrName: "foo", Operator: model.OpLT, Value: 5}, "foo<5"},
		{"le", model.Rule{AttrName: "foo", Operator: model.OpLE, Value: 5}, "foo<=5"},
		{"json number", model.Rule{AttrName: "foo", Operator: model.OpGT, Value: json.Number("10.25")}, "foo>10.25"},
		{
			"intersects interval",
			model.Rule{AttrName: "t", Operator: model.OpIntersects, Value: []any{"2024-01-01", "2024-12-31"}, Format: model.DateFormat},
			"T_INTERSECTS(t,INTERVAL('2024-01-01','2024-12-31'))",
		},
		{"intersects without format", model.Rule{AttrName: "t", Operator: model.OpIntersects, Value: []any{"a", "b"}}, ""},
		{"between wrong shape", model.Rule{AttrName: "foo", Operator: model.OpBetween, Value: []any{1}}, ""},
		{"unknown operator", model.Rule{AttrName: "foo", Operator: "REGEX", Value: "x"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Build([]model.Rule{tc.rule}, "", nil, false)
			if got != tc.want {
				t.Fatalf("Build got %q want %q", got, tc.want)
			}
		})
	}
}

func TestBuild_JoinsInInputOrder(t *testing.T) {
	rules := []model.Rule{
		{AttrName: "foo", Operator: model.OpEQ, Value: "bar"},
		{AttrName: "skip", Operator: "NOPE", Value: 1},
		{AttrName: "baz", Operator: model.OpGT, Value: 10},
	}
	want := "foo='bar' AND baz>10"
	if got := Build(rules, "", nil, false); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuild_IgnoreRules(t *testing.T) {
	rules := []model.Rule{
		{AttrName: "foo", Operator: model.OpEQ, Value: "bar"},
		{AttrName: "baz", Operator: model.OpGT, Value: 10},
	}
	if got := Build(rules, "", nil, true); got != "" {
		t.Fatalf("ignoreRules must yield empty query; got %q", got)
	}

	pt := orb.Point{11, 55}
	want := "S_INTERSECTS(geom," + wkt.MarshalString(pt) + ")"
	if got := Build(rules, "geom", pt, true); got != want {
		t.Fatalf("geometry clause must survive ignoreRules; got %q want %q", got, want)
	}
}

func TestBuild_GeometryClauseLast(t *testing.T) {
	poly := orb.Polygon{{{11, 55}, {12, 55}, {12, 56}, {11, 56}, {11, 55}}}
	rules := []model.Rule{{AttrName: "foo", Operator: model.OpEQ, Value: "bar"}}

	got := Build(rules, "geom", poly, false)
	if !strings.HasPrefix(got, "foo='bar' AND S_INTERSECTS(geom,POLYGON") {
		t.Fatalf("unexpected query %q", got)
	}

	if got := Build(rules, "", poly, false); got != "foo='bar'" {
		t.Fatalf("geometry without name must be ignored; got %q", got)
	}
	if got := Build(rules, "geom", nil, false); got != "foo='bar'" {
		t.Fatalf("name without geometry must be ignored; got %q", got)
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	if got := Build(nil, "", nil, false); got != "" {
		t.Fatalf("got %q want empty", got)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	rules := []model.Rule{
		{AttrName: "a", Operator: model.OpEQ, Value: []any{"x", 1.0, true}},
		{AttrName: "b", Operator: model.OpBetween, Value: []any{0, 9}},
	}
	first := Build(rules, "geom", orb.Point{1, 2}, false)
	for range 20 {
		if got := Build(rules, "geom", orb.Point{1, 2}, false); got != first {
			t.Fatalf("non-deterministic output: %q vs %q", got, first)
		}
	}
}

func TestQueryBuilder_CustomEncoder(t *testing.T) {
	var gotAttr string
	var gotRel Relation
	b := NewQueryBuilder(func(_ orb.Geometry, attr string, rel Relation) string {
		gotAttr, gotRel = attr, rel
		return "GEOM"
	})
	if got := b.Build(nil, "the_geom", orb.Point{0, 0}, false); got != "GEOM" {
		t.Fatalf("got %q want GEOM", got)
	}
	if gotAttr != "the_geom" || gotRel != RelIntersects {
		t.Fatalf("encoder called with attr=%q rel=%q", gotAttr, gotRel)
	}
}
