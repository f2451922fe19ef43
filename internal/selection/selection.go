// Package selection flattens GraphQL selection sets into plain nested field maps.
// Fragment spreads and inline fragments are expanded in place, so callers only see
// the field names that were requested at every level of the query.
package selection

import (
	"errors"
	"fmt"
	"sort"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// ErrUnknownFragment is returned when a spread names a fragment that is not defined.
var ErrUnknownFragment = errors.New("unknown fragment")

// ErrFragmentCycle is returned when a fragment spreads itself, directly or indirectly.
var ErrFragmentCycle = errors.New("fragment cycle")

// UnknownFragmentError reports the name of a missing fragment definition.
type UnknownFragmentError struct {
	Name string
}

func (e *UnknownFragmentError) Error() string {
	return fmt.Sprintf("unknown fragment %q", e.Name)
}

func (e *UnknownFragmentError) Unwrap() error {
	return ErrUnknownFragment
}

// FieldMap maps a field name to the fields requested beneath it.
// An empty map marks a leaf (scalar) field.
//
//	{"name": {}, "author": {"id": {}, "name": {}}}
type FieldMap map[string]FieldMap

// IsLeaf reports whether no sub-fields were requested.
func (m FieldMap) IsLeaf() bool {
	return len(m) == 0
}

// Has reports whether name was requested at this level.
func (m FieldMap) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// Child returns the sub-selection of name. Missing names yield a nil (leaf) map.
func (m FieldMap) Child(name string) FieldMap {
	return m[name]
}

// Names returns the field names at this level in sorted order.
func (m FieldMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Node is any AST node carrying an optional selection set: fields, inline fragments,
// fragment definitions and operations all qualify.
type Node interface {
	GetSelectionSet() *ast.SelectionSet
}

// CollectFields recursively collects the fields requested beneath node.
// Fragment spreads are resolved through fragments and merged into the level they
// appear on; a field repeated at the same level keeps its last sub-selection.
func CollectFields(node Node, fragments map[string]ast.Definition) (FieldMap, error) {
	c := collector{
		fragments: fragments,
		inFlight:  make(map[string]bool),
	}
	fields := FieldMap{}
	if err := c.collect(node, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

type collector struct {
	fragments map[string]ast.Definition
	inFlight  map[string]bool
}

func (c *collector) collect(node Node, into FieldMap) error {
	if isNilNode(node) {
		return nil
	}
	set := node.GetSelectionSet()
	if set == nil {
		return nil
	}

	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			if sel.Name == nil {
				continue
			}
			child := FieldMap{}
			if err := c.collect(sel, child); err != nil {
				return err
			}
			into[sel.Name.Value] = child
		case *ast.InlineFragment:
			if err := c.collect(sel, into); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if sel.Name == nil {
				continue
			}
			name := sel.Name.Value
			def, ok := c.fragments[name]
			if !ok || def == nil {
				return &UnknownFragmentError{Name: name}
			}
			if c.inFlight[name] {
				return fmt.Errorf("%w: %s", ErrFragmentCycle, name)
			}
			c.inFlight[name] = true
			err := c.collect(def, into)
			delete(c.inFlight, name)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// isNilNode catches typed nil pointers hidden inside the Node interface.
func isNilNode(node Node) bool {
	switch n := node.(type) {
	case nil:
		return true
	case *ast.Field:
		return n == nil
	case *ast.InlineFragment:
		return n == nil
	case *ast.FragmentDefinition:
		return n == nil
	case *ast.OperationDefinition:
		return n == nil
	}
	return false
}

// GetFields collects the fields requested beneath the field currently being resolved.
func GetFields(info graphql.ResolveInfo) (FieldMap, error) {
	if len(info.FieldASTs) == 0 {
		return FieldMap{}, nil
	}
	return CollectFields(info.FieldASTs[0], info.Fragments)
}
