package gqldoc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperationName = "<anonymous>"

// operationHash prints the operation and its referenced fragments canonically and
// hashes the result together with the operation name.
func operationHash(op *ast.OperationDefinition, fragments map[string]ast.Definition) (string, error) {
	if op == nil {
		return "", fmt.Errorf("operation is nil")
	}

	names := referencedFragmentNames(op.SelectionSet, fragments)
	definitions := make([]ast.Node, 0, 1+len(names))
	definitions = append(definitions, op)
	for _, name := range names {
		fragment, ok := fragments[name]
		if !ok || fragment == nil {
			return "", fmt.Errorf("fragment %q not found", name)
		}
		definitions = append(definitions, fragment)
	}

	printed := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions}))
	canonical, ok := printed.(string)
	if !ok {
		return "", fmt.Errorf("unexpected canonical document type %T", printed)
	}
	return framedSHA256(canonical, effectiveOperationName(op)), nil
}

func referencedFragmentNames(root *ast.SelectionSet, fragments map[string]ast.Definition) []string {
	if root == nil {
		return nil
	}

	visited := map[string]bool{}
	collectReferencedFragments(root, fragments, visited)

	names := make([]string, 0, len(visited))
	for name := range visited {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collectReferencedFragments(set *ast.SelectionSet, fragments map[string]ast.Definition, visited map[string]bool) {
	if set == nil {
		return
	}

	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			collectReferencedFragments(sel.SelectionSet, fragments, visited)
		case *ast.InlineFragment:
			collectReferencedFragments(sel.SelectionSet, fragments, visited)
		case *ast.FragmentSpread:
			if sel.Name == nil || sel.Name.Value == "" || visited[sel.Name.Value] {
				continue
			}
			visited[sel.Name.Value] = true
			if fragment, ok := fragments[sel.Name.Value]; ok && fragment != nil {
				collectReferencedFragments(fragment.GetSelectionSet(), fragments, visited)
			}
		}
	}
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

func framedSHA256(parts ...string) string {
	hash := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(hash, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
