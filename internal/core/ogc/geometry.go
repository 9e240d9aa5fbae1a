package ogc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Relation is a cql2 spatial predicate.
type Relation string

const (
	RelIntersects Relation = "intersects"
	RelWithin     Relation = "within"
	RelContains   Relation = "contains"
	RelDisjoint   Relation = "disjoint"
)

func (r Relation) function() string {
	switch Relation(strings.ToLower(string(r))) {
	case RelWithin:
		return "S_WITHIN"
	case RelContains:
		return "S_CONTAINS"
	case RelDisjoint:
		return "S_DISJOINT"
	default:
		return "S_INTERSECTS"
	}
}

// EncodeGeometry renders geom as a cql2-text spatial clause on attrName.
// Empty or invalid geometries produce no clause.
func EncodeGeometry(geom orb.Geometry, attrName string, rel Relation) string {
	if geom == nil || attrName == "" {
		return ""
	}
	if err := validGeometry(geom); err != nil {
		return ""
	}
	return fmt.Sprintf("%s(%s,%s)", rel.function(), attrName, wkt.MarshalString(geom))
}

func validGeometry(geom orb.Geometry) error {
	switch g := geom.(type) {
	case orb.Point:
		return nil
	case orb.MultiPoint:
		if len(g) == 0 {
			return errors.New("empty multipoint")
		}
	case orb.LineString:
		if len(g) < 2 {
			return errors.New("linestring has <2 points")
		}
	case orb.MultiLineString:
		if len(g) == 0 {
			return errors.New("empty multilinestring")
		}
	case orb.Polygon:
		if len(g) == 0 {
			return errors.New("empty polygon")
		}
		for _, ring := range g {
			if len(ring) < 4 {
				return errors.New("polygon ring has <4 points")
			}
		}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return errors.New("empty multipolygon")
		}
		for _, p := range g {
			if err := validGeometry(p); err != nil {
				return err
			}
		}
	case orb.Bound:
		if g.IsEmpty() {
			return errors.New("empty bound")
		}
	case orb.Collection:
		if len(g) == 0 {
			return errors.New("empty collection")
		}
	default:
		return fmt.Errorf("unsupported geometry %T", geom)
	}
	return nil
}
