// Package lookup formats and parses lookup-style argument names such as
// "where__name__icontains" and turns lookups into SQL predicates.
package lookup

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"modelgraph/internal/sqlutil"
)

// Delim separates the prefix, field name and lookup operator in an argument name.
const Delim = "__"

// Lookup operators.
const (
	Eq          = "eq"
	Ne          = "ne"
	Lt          = "lt"
	Lte         = "lte"
	Gt          = "gt"
	Gte         = "gte"
	In          = "in"
	NotIn       = "notin"
	Contains    = "contains"
	IContains   = "icontains"
	StartsWith  = "startswith"
	IStartsWith = "istartswith"
	EndsWith    = "endswith"
	IEndsWith   = "iendswith"
	IsNull      = "isnull"
)

var operators = map[string]bool{
	Eq: true, Ne: true, Lt: true, Lte: true, Gt: true, Gte: true,
	In: true, NotIn: true,
	Contains: true, IContains: true,
	StartsWith: true, IStartsWith: true,
	EndsWith: true, IEndsWith: true,
	IsNull: true,
}

// ErrUnsupportedLookup is returned for operators Condition does not know.
var ErrUnsupportedLookup = errors.New("unsupported lookup")

// UnsupportedLookupError names the rejected operator.
type UnsupportedLookupError struct {
	Lookup string
}

func (e *UnsupportedLookupError) Error() string {
	return fmt.Sprintf("unsupported lookup %q", e.Lookup)
}

func (e *UnsupportedLookupError) Unwrap() error {
	return ErrUnsupportedLookup
}

// IsOperator reports whether op is a known lookup operator.
func IsOperator(op string) bool {
	return operators[op]
}

// ArgName formats prefix+name, followed by Delim and lookup when lookup is non-empty.
//
//	ArgName("where__", "name", "icontains") == "where__name__icontains"
//	ArgName("where__", "name", "")          == "where__name"
func ArgName(prefix, name, lookup string) string {
	if lookup == "" {
		return prefix + name
	}
	return prefix + name + Delim + lookup
}

// SplitArgName reverses ArgName. A trailing segment that is not a known operator
// belongs to the name and the lookup defaults to Eq. ok is false when arg does not
// carry prefix or has no name.
func SplitArgName(prefix, arg string) (name, lookup string, ok bool) {
	rest, found := strings.CutPrefix(arg, prefix)
	if !found || rest == "" {
		return "", "", false
	}
	if i := strings.LastIndex(rest, Delim); i > 0 {
		if op := rest[i+len(Delim):]; IsOperator(op) {
			return rest[:i], op, true
		}
	}
	return rest, Eq, true
}

// Condition builds the predicate for column (already quoted or qualified) under
// lookup. An empty lookup means Eq.
func Condition(column, lookup string, value any) (sq.Sqlizer, error) {
	switch lookup {
	case "", Eq:
		return sq.Eq{column: value}, nil
	case Ne:
		return sq.NotEq{column: value}, nil
	case Lt:
		return sq.Lt{column: value}, nil
	case Lte:
		return sq.LtOrEq{column: value}, nil
	case Gt:
		return sq.Gt{column: value}, nil
	case Gte:
		return sq.GtOrEq{column: value}, nil
	case In, NotIn:
		if !isList(value) {
			return nil, fmt.Errorf("%s lookup requires a list", lookup)
		}
		if lookup == In {
			return sq.Eq{column: value}, nil
		}
		return sq.NotEq{column: value}, nil
	case IsNull:
		isNull, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("isnull lookup requires a boolean")
		}
		if isNull {
			return sq.Eq{column: nil}, nil
		}
		return sq.NotEq{column: nil}, nil
	case Contains, IContains, StartsWith, IStartsWith, EndsWith, IEndsWith:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s lookup requires a string", lookup)
		}
		return likeCondition(column, lookup, sqlutil.EscapeLike(s)), nil
	default:
		return nil, &UnsupportedLookupError{Lookup: lookup}
	}
}

func likeCondition(column, lookup, escaped string) sq.Sqlizer {
	var pattern string
	switch lookup {
	case Contains, IContains:
		pattern = "%" + escaped + "%"
	case StartsWith, IStartsWith:
		pattern = escaped + "%"
	default:
		pattern = "%" + escaped
	}
	if strings.HasPrefix(lookup, "i") {
		return sq.Expr(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", column), pattern)
	}
	return sq.Like{column: pattern}
}

func isList(value any) bool {
	if value == nil {
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}
