package ogc

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
)

// Normalize converts decoded OAF features into output items. Nil features
// are dropped; ids are rendered as strings.
func Normalize(features []*geojson.Feature) []model.Item {
	items := make([]model.Item, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}
		items = append(items, model.Item{
			ID:         featureID(f.ID),
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return items
}

func featureID(id any) string {
	switch t := id.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
