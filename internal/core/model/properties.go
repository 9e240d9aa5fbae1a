package model

import "reflect"

// ValueSet holds the distinct values seen for one attribute in first-seen order.
type ValueSet struct {
	order []any
	seen  map[any]struct{}
}

func NewValueSet() *ValueSet {
	return &ValueSet{seen: map[any]struct{}{}}
}

// Add records v once. Values that cannot be map keys are ignored.
func (s *ValueSet) Add(v any) {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *ValueSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Values returns a copy of the distinct values.
func (s *ValueSet) Values() []any {
	if s == nil {
		return []any{}
	}
	out := make([]any, len(s.order))
	copy(out, s.order)
	return out
}

// PropertyMap maps attribute name to the values observed for it.
type PropertyMap map[string]*ValueSet

// Add records one observed value for attr.
func (m PropertyMap) Add(attr string, v any) {
	vs, ok := m[attr]
	if !ok {
		vs = NewValueSet()
		m[attr] = vs
	}
	vs.Add(v)
}
