// Package gqldoc parses GraphQL documents, selects the operation to run and converts
// AST argument values into Go values.
package gqldoc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// ErrEmptyDocument is returned when the query text is blank.
var ErrEmptyDocument = errors.New("empty GraphQL document")

// Document is a parsed GraphQL document with its selected operation.
type Document struct {
	AST       *ast.Document
	Operation *ast.OperationDefinition
	// Fragments has the shape graphql-go passes to resolvers in ResolveInfo.
	Fragments map[string]ast.Definition

	// OperationName is empty for an anonymous operation.
	OperationName string
	OperationType string
	// Hash identifies the operation and the fragments it references, independent of
	// whitespace and comments.
	Hash string
}

// Parse parses query and selects operationName, or the only operation when
// operationName is empty.
func Parse(query, operationName string) (*Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyDocument
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "graphql",
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	op, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	fragments := buildFragmentMap(doc)
	hash, err := operationHash(op, fragments)
	if err != nil {
		return nil, err
	}

	return &Document{
		AST:           doc,
		Operation:     op,
		Fragments:     fragments,
		OperationName: operationNameOf(op),
		OperationType: string(op.Operation),
		Hash:          hash,
	}, nil
}

// RootFields returns the top-level fields of the selected operation. Fragments at the
// root are expanded. Fields sharing a response key are returned once, at the position
// of the first, with their sub-selections concatenated in document order.
func (d *Document) RootFields() []*ast.Field {
	if d == nil || d.Operation == nil {
		return nil
	}
	var fields []*ast.Field
	collectRootFields(d.Operation.SelectionSet, d.Fragments, map[string]int{}, map[string]bool{}, &fields)
	return fields
}

// ResponseKey is the alias of a field, or its name when it has none.
func ResponseKey(field *ast.Field) string {
	if field == nil {
		return ""
	}
	if field.Alias != nil && field.Alias.Value != "" {
		return field.Alias.Value
	}
	if field.Name == nil {
		return ""
	}
	return field.Name.Value
}

func collectRootFields(set *ast.SelectionSet, fragments map[string]ast.Definition, index map[string]int, inFlight map[string]bool, out *[]*ast.Field) {
	if set == nil {
		return
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			key := ResponseKey(sel)
			if key == "" {
				continue
			}
			if i, ok := index[key]; ok {
				(*out)[i] = mergeFields((*out)[i], sel)
				continue
			}
			index[key] = len(*out)
			*out = append(*out, sel)
		case *ast.InlineFragment:
			collectRootFields(sel.SelectionSet, fragments, index, inFlight, out)
		case *ast.FragmentSpread:
			if sel.Name == nil || inFlight[sel.Name.Value] {
				continue
			}
			def, ok := fragments[sel.Name.Value]
			if !ok || def == nil {
				continue
			}
			inFlight[sel.Name.Value] = true
			collectRootFields(def.GetSelectionSet(), fragments, index, inFlight, out)
			delete(inFlight, sel.Name.Value)
		}
	}
}

// mergeFields returns a copy of first whose selection set also holds the selections
// of next. Arguments and directives of first are kept. The AST is not modified.
func mergeFields(first, next *ast.Field) *ast.Field {
	if next.SelectionSet == nil || len(next.SelectionSet.Selections) == 0 {
		return first
	}
	merged := *first
	var selections []ast.Selection
	if first.SelectionSet != nil {
		selections = append(selections, first.SelectionSet.Selections...)
	}
	selections = append(selections, next.SelectionSet.Selections...)
	merged.SelectionSet = ast.NewSelectionSet(&ast.SelectionSet{Selections: selections})
	return &merged
}

func operationNameOf(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil {
		return ""
	}
	return op.Name.Value
}

func buildFragmentMap(doc *ast.Document) map[string]ast.Definition {
	fragments := map[string]ast.Definition{}
	if doc == nil {
		return fragments
	}
	for _, def := range doc.Definitions {
		fragment, ok := def.(*ast.FragmentDefinition)
		if !ok || fragment == nil || fragment.Name == nil || fragment.Name.Value == "" {
			continue
		}
		fragments[fragment.Name.Value] = fragment
	}
	return fragments
}

func selectOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	operations := make([]*ast.OperationDefinition, 0)
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if ok && op != nil {
			operations = append(operations, op)
		}
	}

	if operationName != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == operationName {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	}

	if len(operations) == 1 {
		return operations[0], nil
	}
	if len(operations) == 0 {
		return nil, fmt.Errorf("document does not include an operation")
	}
	return nil, fmt.Errorf("operation name is required when the document has multiple operations")
}
