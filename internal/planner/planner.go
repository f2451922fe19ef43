// Package planner renders a model graph walk into a single parameterized SELECT that
// joins every expanded forward relation, so a nested selection is served by one
// statement instead of one query per level.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"modelgraph/internal/lookup"
	"modelgraph/internal/model"
	"modelgraph/internal/modelgraph"
	"modelgraph/internal/sqlutil"
)

// DefaultListLimit is the row limit callers apply when a query names none.
const DefaultListLimit = 100

// ErrTooManyJoins is returned when a walk expands more relations than allowed.
var ErrTooManyJoins = errors.New("too many joins")

// ErrNoColumns is returned when a walk selects no column at all, as for a model
// without primary key whose selection holds only meta fields.
var ErrNoColumns = errors.New("selection has no columns")

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// Column describes one output column of a joined plan.
type Column struct {
	Alias  string // table alias, e.g. "t1"
	Model  string
	Field  string
	Column string
	// Label is the result column name: alias + "__" + column.
	Label string
}

// Plan is a joined SELECT plus the description of its output columns.
type Plan struct {
	Query   SQLQuery
	Columns []Column
	Joins   int
}

// Labels returns the output column names in select order.
func (p *Plan) Labels() []string {
	labels := make([]string, 0, len(p.Columns))
	for _, col := range p.Columns {
		labels = append(labels, col.Label)
	}
	return labels
}

// PlanOption configures PlanJoined.
type PlanOption func(*planOptions)

type planOptions struct {
	filterPrefix string
	filters      map[string]interface{}
	limit        *uint64
	offset       *uint64
	maxJoins     int
}

// WithFilters turns lookup arguments such as "where__name__icontains" into WHERE
// predicates. Arguments without prefix are ignored. A name may traverse expanded
// relations with "__", e.g. "where__author__name".
func WithFilters(prefix string, args map[string]interface{}) PlanOption {
	return func(o *planOptions) {
		o.filterPrefix = prefix
		o.filters = args
	}
}

// WithLimit caps the number of rows.
func WithLimit(n uint64) PlanOption {
	return func(o *planOptions) {
		o.limit = &n
	}
}

// WithOffset skips the first n rows.
func WithOffset(n uint64) PlanOption {
	return func(o *planOptions) {
		o.offset = &n
	}
}

// WithMaxJoins rejects plans with more than n joins. Zero disables the check.
func WithMaxJoins(n int) PlanOption {
	return func(o *planOptions) {
		o.maxJoins = n
	}
}

// PlanJoined builds one SELECT over the root alias with a LEFT JOIN per expanded
// forward relation. Every level selects its primary key and the columns of its
// requested fields; rows are ordered by the root primary key.
func PlanJoined(root *modelgraph.Result, opts ...PlanOption) (*Plan, error) {
	if root == nil || root.Alias == nil || root.Alias.Model == nil {
		return nil, errors.New("plan joined: empty walk result")
	}
	var options planOptions
	for _, opt := range opts {
		opt(&options)
	}

	joins := countJoins(root)
	if options.maxJoins > 0 && joins > options.maxJoins {
		return nil, fmt.Errorf("%w: %d joins exceed the maximum of %d", ErrTooManyJoins, joins, options.maxJoins)
	}

	plan := &Plan{Joins: joins}
	builder := sq.Select().
		From(tableRef(root.Alias)).
		PlaceholderFormat(sq.Question)

	var err error
	builder, err = addLevel(builder, plan, root)
	if err != nil {
		return nil, err
	}
	if len(plan.Columns) == 0 {
		return nil, fmt.Errorf("plan joined: %w for %s", ErrNoColumns, root.Alias.Model.Name)
	}

	if len(options.filters) > 0 {
		conditions, err := filterConditions(root, options.filterPrefix, options.filters)
		if err != nil {
			return nil, err
		}
		for _, cond := range conditions {
			builder = builder.Where(cond)
		}
	}

	for _, pk := range root.Alias.Model.PrimaryKey {
		builder = builder.OrderBy(sqlutil.QualifiedColumn(root.Alias.Name, pk))
	}
	if options.limit != nil {
		builder = builder.Limit(*options.limit)
	}
	if options.offset != nil {
		builder = builder.Offset(*options.offset)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	plan.Query = SQLQuery{SQL: query, Args: args}
	return plan, nil
}

// addLevel selects the columns of one level and joins its children depth first.
func addLevel(builder sq.SelectBuilder, plan *Plan, level *modelgraph.Result) (sq.SelectBuilder, error) {
	alias := level.Alias
	seen := make(map[string]bool)
	add := func(field, column string) {
		if seen[column] {
			return
		}
		seen[column] = true
		col := Column{
			Alias:  alias.Name,
			Model:  alias.Model.Name,
			Field:  field,
			Column: column,
			Label:  alias.Name + lookup.Delim + column,
		}
		plan.Columns = append(plan.Columns, col)
		builder = builder.Column(sqlutil.QualifiedColumn(alias.Name, column) + " AS " + sqlutil.QuoteIdentifier(col.Label))
	}

	for _, pk := range alias.Model.PrimaryKey {
		add(fieldForColumn(alias.Model, pk), pk)
	}
	for _, ref := range level.Fields {
		for _, column := range ref.Columns() {
			add(ref.Name, column)
		}
	}

	for _, child := range level.Children {
		via := child.Via
		if via == nil || !via.IsForwardRelation() {
			return builder, fmt.Errorf("plan joined: child %s of %s has no forward relation", child.Alias.Name, alias.Name)
		}
		on, err := joinCondition(alias.Name, child.Alias.Name, via.LocalColumns, via.RemoteColumns)
		if err != nil {
			return builder, fmt.Errorf("plan joined: relation %s.%s: %w", alias.Model.Name, via.Name, err)
		}
		builder = builder.LeftJoin(tableRef(child.Alias) + " ON " + on)

		var errChild error
		builder, errChild = addLevel(builder, plan, child)
		if errChild != nil {
			return builder, errChild
		}
	}
	return builder, nil
}

func tableRef(alias *model.Alias) string {
	return sqlutil.QuoteIdentifier(alias.Model.Table) + " AS " + sqlutil.QuoteIdentifier(alias.Name)
}

func joinCondition(leftAlias, rightAlias string, local, remote []string) (string, error) {
	if len(local) == 0 || len(local) != len(remote) {
		return "", fmt.Errorf("join requires equal local and remote columns")
	}
	parts := make([]string, len(local))
	for i := range local {
		parts[i] = sqlutil.QualifiedColumn(leftAlias, local[i]) + " = " + sqlutil.QualifiedColumn(rightAlias, remote[i])
	}
	return strings.Join(parts, " AND "), nil
}

// fieldForColumn returns the scalar field mapped to column, or the column itself.
func fieldForColumn(m *model.Model, column string) string {
	for _, f := range m.Fields() {
		if f.Kind == model.KindScalar && f.Column == column {
			return f.Name
		}
	}
	return column
}

func countJoins(level *modelgraph.Result) int {
	n := len(level.Children)
	for _, child := range level.Children {
		n += countJoins(child)
	}
	return n
}

// filterConditions resolves lookup arguments against the walk. Keys are visited in
// sorted order so the rendered SQL is stable.
func filterConditions(root *modelgraph.Result, prefix string, args map[string]interface{}) ([]sq.Sqlizer, error) {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var conditions []sq.Sqlizer
	for _, key := range keys {
		name, op, ok := lookup.SplitArgName(prefix, key)
		if !ok {
			continue
		}
		column, err := resolveFilterColumn(root, name)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", key, err)
		}
		cond, err := lookup.Condition(column, op, args[key])
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", key, err)
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

// resolveFilterColumn follows "__" separated relation names through expanded
// children and returns the qualified column of the final field.
func resolveFilterColumn(root *modelgraph.Result, path string) (string, error) {
	segments := strings.Split(path, lookup.Delim)
	level := root
	for _, relation := range segments[:len(segments)-1] {
		child, ok := level.Child(relation)
		if !ok {
			return "", fmt.Errorf("relation %q of %s is not part of the selection", relation, level.Alias.Model.Name)
		}
		level = child
	}

	ref, err := level.Alias.Field(segments[len(segments)-1])
	if err != nil {
		return "", err
	}
	columns := ref.Columns()
	if len(columns) != 1 {
		return "", fmt.Errorf("field %q of %s cannot be filtered", ref.Name, level.Alias.Model.Name)
	}
	return sqlutil.QualifiedColumn(level.Alias.Name, columns[0]), nil
}
