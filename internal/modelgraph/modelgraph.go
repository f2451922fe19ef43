// Package modelgraph walks a flattened GraphQL selection against the model graph and
// reports which models, aliases and fields a query needs, so a single joined query
// can serve a nested selection.
package modelgraph

import (
	"errors"
	"fmt"
	"strings"

	"modelgraph/internal/model"
	"modelgraph/internal/selection"
)

const (
	edgesField = "edges"
	nodeField  = "node"
)

// ErrNotRelation is returned when a sub-selection is requested on a field that
// cannot be joined.
var ErrNotRelation = errors.New("field is not a joinable relation")

// NotRelationError reports a sub-selection on a scalar field.
type NotRelationError struct {
	Model string
	Field string
}

func (e *NotRelationError) Error() string {
	return fmt.Sprintf("field %q of model %s has a sub-selection but is not a forward relation", e.Field, e.Model)
}

func (e *NotRelationError) Unwrap() error {
	return ErrNotRelation
}

// AliasMap tracks the latest alias created for each model during one walk and
// hands out alias names t0, t1, ...
type AliasMap struct {
	aliases map[*model.Model]*model.Alias
	next    int
}

// NewAliasMap creates an empty alias map.
func NewAliasMap() *AliasMap {
	return &AliasMap{aliases: make(map[*model.Model]*model.Alias)}
}

// New creates a fresh alias for m and records it, replacing any earlier alias of m.
func (a *AliasMap) New(m *model.Model) *model.Alias {
	alias := m.Alias(fmt.Sprintf("t%d", a.next))
	a.next++
	a.aliases[m] = alias
	return alias
}

// Get returns the latest alias recorded for m.
func (a *AliasMap) Get(m *model.Model) (*model.Alias, bool) {
	alias, ok := a.aliases[m]
	return alias, ok
}

// Len returns the number of models with a recorded alias.
func (a *AliasMap) Len() int {
	return len(a.aliases)
}

// Result is one level of the walk: the alias of the level's model, the results of
// expanded forward relations and every non-reverse field requested at this level.
type Result struct {
	Alias    *model.Alias
	Children []*Result
	Fields   []model.FieldRef
	// Via is the relation on the parent level that led here; nil at the root.
	Via *model.FieldRef
}

// Child returns the child result reached through the named relation.
func (r *Result) Child(field string) (*Result, bool) {
	for _, child := range r.Children {
		if child.Via != nil && child.Via.Name == field {
			return child, true
		}
	}
	return nil, false
}

// FieldNames returns the names of the fields in result order.
func (r *Result) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		names = append(names, f.Name)
	}
	return names
}

// RequestedModels walks fields from m with a fresh alias map.
func RequestedModels(m *model.Model, fields selection.FieldMap) (*Result, error) {
	return Walk(m, fields, NewAliasMap())
}

// Walk resolves fields against m, creating a new alias for m in aliases and
// recursing into every forward relation that has a sub-selection. Reverse relations
// are skipped. Names are visited in sorted order.
func Walk(m *model.Model, fields selection.FieldMap, aliases *AliasMap) (*Result, error) {
	return walk(m, fields, aliases, nil)
}

func walk(m *model.Model, fields selection.FieldMap, aliases *AliasMap, via *model.FieldRef) (*Result, error) {
	if !model.IsModel(m) {
		return nil, errors.New("walk: nil model")
	}
	if aliases == nil {
		return nil, errors.New("walk: nil alias map")
	}
	if edges, ok := fields[edgesField]; ok {
		fields = edges[nodeField]
	}

	alias := aliases.New(m)
	result := &Result{Alias: alias, Via: via}

	for _, name := range fields.Names() {
		if strings.HasPrefix(name, "__") {
			continue
		}
		ref, err := alias.Field(name)
		if err != nil {
			return nil, err
		}
		if ref.IsReverseRelation() {
			continue
		}
		result.Fields = append(result.Fields, ref)

		child := fields[name]
		if child.IsLeaf() {
			continue
		}
		if !ref.IsForwardRelation() {
			return nil, &NotRelationError{Model: m.Name, Field: name}
		}
		sub, err := walk(ref.Related, child, aliases, &ref)
		if err != nil {
			return nil, err
		}
		result.Children = append(result.Children, sub)
	}
	return result, nil
}
