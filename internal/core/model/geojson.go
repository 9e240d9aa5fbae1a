package model

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

type itemJSON struct {
	Type       string            `json:"type"`
	ID         string            `json:"id,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

// MarshalJSON writes the item as a GeoJSON Feature.
func (i Item) MarshalJSON() ([]byte, error) {
	out := itemJSON{Type: "Feature", ID: i.ID, Properties: i.Properties}
	if i.Geometry != nil {
		out.Geometry = geojson.NewGeometry(i.Geometry)
	}
	if out.Properties == nil {
		out.Properties = map[string]any{}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal item %q: %w", i.ID, err)
	}
	return b, nil
}

type commandsJSON struct {
	SearchInMapExtent bool              `json:"searchInMapExtent"`
	GeometryName      string            `json:"geometryName,omitempty"`
	FilterGeometry    *geojson.Geometry `json:"filterGeometry,omitempty"`
}

func (c Commands) MarshalJSON() ([]byte, error) {
	out := commandsJSON{SearchInMapExtent: c.SearchInMapExtent, GeometryName: c.GeometryName}
	if c.FilterGeometry != nil {
		out.FilterGeometry = geojson.NewGeometry(c.FilterGeometry)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts filterGeometry as a GeoJSON geometry object.
func (c *Commands) UnmarshalJSON(b []byte) error {
	var in commandsJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("parse commands: %w", err)
	}
	c.SearchInMapExtent = in.SearchInMapExtent
	c.GeometryName = in.GeometryName
	c.FilterGeometry = nil
	if in.FilterGeometry != nil {
		c.FilterGeometry = in.FilterGeometry.Geometry()
	}
	return nil
}
