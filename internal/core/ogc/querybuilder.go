package ogc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
)

const invalidDate = "Invalid Date"

// GeometryEncoder renders a spatial predicate on attrName.
type GeometryEncoder func(geom orb.Geometry, attrName string, rel Relation) string

// QueryBuilder turns filter rules into a cql2-text expression. It holds no
// mutable state.
type QueryBuilder struct {
	encode GeometryEncoder
}

func NewQueryBuilder(enc GeometryEncoder) QueryBuilder {
	if enc == nil {
		enc = EncodeGeometry
	}
	return QueryBuilder{encode: enc}
}

// Build renders rules with the default geometry encoder.
func Build(rules []model.Rule, geometryName string, filterGeometry orb.Geometry, ignoreRules bool) string {
	return NewQueryBuilder(nil).Build(rules, geometryName, filterGeometry, ignoreRules)
}

func (b QueryBuilder) Build(rules []model.Rule, geometryName string, filterGeometry orb.Geometry, ignoreRules bool) string {
	var clauses []string
	if !ignoreRules {
		for _, r := range rules {
			if c := ruleClause(r); c != "" {
				clauses = append(clauses, c)
			}
		}
	}
	if geometryName != "" && filterGeometry != nil {
		enc := b.encode
		if enc == nil {
			enc = EncodeGeometry
		}
		if c := enc(filterGeometry, geometryName, RelIntersects); c != "" {
			clauses = append(clauses, c)
		}
	}
	return strings.Join(clauses, " AND ")
}

func ruleClause(r model.Rule) string {
	attr := r.AttrName
	list, isList := asList(r.Value)

	switch r.Operator {
	case model.OpIntersects:
		if r.Format != model.DateFormat || !isList || len(list) != 2 {
			return ""
		}
		return fmt.Sprintf("T_INTERSECTS(%s,INTERVAL('%s','%s'))", attr, text(list[0]), text(list[1]))
	case model.OpEQ:
		if s, ok := r.Value.(string); ok && r.Format == model.DateFormat && s != invalidDate {
			return fmt.Sprintf("T_EQUALS(%s,DATE('%s'))", attr, s)
		}
		if isList {
			return fmt.Sprintf("%s IN (%s)", attr, literals(list))
		}
		if v, ok := literal(r.Value); ok {
			return attr + "=" + v
		}
	case model.OpNE:
		if isList {
			return fmt.Sprintf("%s NOT IN (%s)", attr, literals(list))
		}
		if v, ok := literal(r.Value); ok {
			return "NOT " + attr + "=" + v
		}
	case model.OpBetween:
		if !isList || len(list) != 2 {
			return ""
		}
		a, okA := literal(list[0])
		z, okZ := literal(list[1])
		if !okA || !okZ {
			return ""
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", attr, a, z)
	case model.OpStartsWith:
		if isList || r.Value == nil {
			return ""
		}
		return fmt.Sprintf("%s LIKE '%s%%'", attr, text(r.Value))
	case model.OpEndsWith:
		if isList || r.Value == nil {
			return ""
		}
		return fmt.Sprintf("%s LIKE '%%%s'", attr, text(r.Value))
	case model.OpIn:
		if isList || r.Value == nil {
			return ""
		}
		return fmt.Sprintf("%s LIKE '%%%s%%'", attr, text(r.Value))
	case model.OpGT, model.OpGE, model.OpLT, model.OpLE:
		if isList {
			return ""
		}
		if v, ok := literal(r.Value); ok {
			return attr + comparators[r.Operator] + v
		}
	}
	return ""
}

var comparators = map[model.Operator]string{
	model.OpGT: ">",
	model.OpGE: ">=",
	model.OpLT: "<",
	model.OpLE: "<=",
}

// asList reports whether v is a slice and returns its elements.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []any:
		return t, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func literals(vs []any) string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		if s, ok := literal(v); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}

// literal renders a scalar: strings quoted, numbers in shortest form.
func literal(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return "'" + t + "'", true
	case nil:
		return "", false
	}
	if n, ok := number(v); ok {
		return n, true
	}
	if b, ok := v.(bool); ok {
		return strconv.FormatBool(b), true
	}
	return "", false
}

func number(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(t).Int(), 10), true
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(t).Uint(), 10), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// text renders a scalar without quotes.
func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if n, ok := number(v); ok {
		return n
	}
	return fmt.Sprint(v)
}
