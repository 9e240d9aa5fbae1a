// Package model defines core domain types shared across the service.
package model

import (
	"fmt"

	"github.com/paulmach/orb"
)

type Operator string

const (
	OpIntersects Operator = "INTERSECTS"
	OpEQ         Operator = "EQ"
	OpNE         Operator = "NE"
	OpBetween    Operator = "BETWEEN"
	OpStartsWith Operator = "STARTSWITH"
	OpEndsWith   Operator = "ENDSWITH"
	OpIn         Operator = "IN"
	OpGT         Operator = "GT"
	OpGE         Operator = "GE"
	OpLT         Operator = "LT"
	OpLE         Operator = "LE"
)

// DateFormat is the only format understood by the temporal operators.
const DateFormat = "YYYY-MM-DD"

// Rule is one predicate contributed by a filter snippet. Value is a scalar
// or a slice of scalars.
type Rule struct {
	AttrName string   `json:"attrName"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
	Format   string   `json:"format,omitempty"`
}

type Service struct {
	URL        string `json:"url"`
	Collection string `json:"collection"`
	Limit      int    `json:"limit"`
	SRSName    string `json:"srsName,omitempty"`
}

func (s Service) String() string {
	return fmt.Sprintf("%s/collections/%s?limit=%d", s.URL, s.Collection, s.Limit)
}

type Commands struct {
	SearchInMapExtent bool         `json:"searchInMapExtent"`
	GeometryName      string       `json:"geometryName,omitempty"`
	FilterGeometry    orb.Geometry `json:"-"`

	// MapExtent is the caller's visible extent; when set it takes priority
	// over the lifecycle's extent source.
	MapExtent *orb.Bound `json:"-"`
}

type FilterQuestion struct {
	FilterID  int      `json:"filterId"`
	SnippetID int      `json:"snippetId"`
	Service   Service  `json:"service"`
	Rules     []Rule   `json:"rules"`
	Commands  Commands `json:"commands"`
}

// PagingTotal is the fixed denominator of every progress frame.
const PagingTotal = 100

const (
	PageStarted   = 1
	PageReceived  = 99
	PageCompleted = 100
)

type Paging struct {
	Page  int `json:"page"`
	Total int `json:"total"`
}

type FilterAnswer struct {
	Service   Service `json:"service"`
	FilterID  int     `json:"filterId"`
	SnippetID int     `json:"snippetId"`
	Paging    Paging  `json:"paging"`
	Items     []Item  `json:"items"`
}

// Item is a normalized feature ready for the caller.
type Item struct {
	ID         string         `json:"id,omitempty"`
	Geometry   orb.Geometry   `json:"-"`
	Properties map[string]any `json:"properties"`
}

type MinMax struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}
