// Package model describes relational entities as a graph of models and field
// descriptors. It is the static metadata the model graph walker resolves GraphQL
// field names against: scalar columns, forward relations that can be joined, and
// reverse relations that point back at a model from elsewhere.
package model

import (
	"errors"
	"fmt"
)

// ErrFieldNotFound is returned when a field name does not exist on a model.
var ErrFieldNotFound = errors.New("field not found")

// FieldNotFoundError reports the model and field name of a failed lookup.
type FieldNotFoundError struct {
	Model string
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("model %s has no field %q", e.Model, e.Field)
}

func (e *FieldNotFoundError) Unwrap() error {
	return ErrFieldNotFound
}

// FieldKind classifies a field descriptor.
type FieldKind int

const (
	// KindScalar is a plain column.
	KindScalar FieldKind = iota
	// KindForeignKey is a forward (many-to-one) relation to another model.
	KindForeignKey
	// KindReverse is a reverse (one-to-many) relation from another model back to this one.
	KindReverse
)

func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindForeignKey:
		return "foreign_key"
	case KindReverse:
		return "reverse"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Field describes one field of a model.
type Field struct {
	Name string
	Kind FieldKind
	// Column is set for scalar fields.
	Column string
	// Related is the model on the other side of a relation.
	Related *Model
	// LocalColumns/RemoteColumns are positional join keys. For a forward relation the
	// local columns are the FK columns on the owning model; for a reverse relation they
	// are the referenced key columns on the owning model.
	LocalColumns  []string
	RemoteColumns []string

	owner *Model
}

// Model returns the model that declares the field.
func (f *Field) Model() *Model {
	return f.owner
}

// IsRelation reports whether the field points at another model.
func (f *Field) IsRelation() bool {
	return f.Kind == KindForeignKey || f.Kind == KindReverse
}

// IsForwardRelation reports whether the field can be expanded into a join.
func (f *Field) IsForwardRelation() bool {
	return f.Kind == KindForeignKey
}

// IsReverseRelation reports whether the field is a reverse relation.
func (f *Field) IsReverseRelation() bool {
	return f.Kind == KindReverse
}

// Columns returns the columns a field reads from its own table.
// Reverse relations have none.
func (f *Field) Columns() []string {
	switch f.Kind {
	case KindScalar:
		return []string{f.Column}
	case KindForeignKey:
		return f.LocalColumns
	default:
		return nil
	}
}

// Model is an entity type backed by a table.
type Model struct {
	Name       string
	Table      string
	PrimaryKey []string
	// QueryName and SingleQueryName are the GraphQL root field names for lists and
	// single rows of the model.
	QueryName       string
	SingleQueryName string

	fields []*Field
	byName map[string]*Field
}

// NewModel creates an empty model for table.
func NewModel(name, table string) *Model {
	return &Model{
		Name:   name,
		Table:  table,
		byName: make(map[string]*Field),
	}
}

// SetPrimaryKey records the primary key columns of the model.
func (m *Model) SetPrimaryKey(columns ...string) *Model {
	m.PrimaryKey = append([]string(nil), columns...)
	return m
}

// AddScalar declares a column field.
func (m *Model) AddScalar(name, column string) *Field {
	return m.add(&Field{Name: name, Kind: KindScalar, Column: column})
}

// AddForeignKey declares a forward relation whose local FK columns reference
// remote columns on related.
func (m *Model) AddForeignKey(name string, related *Model, localColumns, remoteColumns []string) *Field {
	return m.add(&Field{
		Name:          name,
		Kind:          KindForeignKey,
		Related:       related,
		LocalColumns:  append([]string(nil), localColumns...),
		RemoteColumns: append([]string(nil), remoteColumns...),
	})
}

// AddReverse declares a reverse relation: rows of related whose remote columns
// reference the local columns of this model.
func (m *Model) AddReverse(name string, related *Model, localColumns, remoteColumns []string) *Field {
	return m.add(&Field{
		Name:          name,
		Kind:          KindReverse,
		Related:       related,
		LocalColumns:  append([]string(nil), localColumns...),
		RemoteColumns: append([]string(nil), remoteColumns...),
	})
}

// add registers a field; a later field with the same name replaces the earlier one.
func (m *Model) add(f *Field) *Field {
	f.owner = m
	if m.byName == nil {
		m.byName = make(map[string]*Field)
	}
	if existing, ok := m.byName[f.Name]; ok {
		for i, candidate := range m.fields {
			if candidate == existing {
				m.fields[i] = f
				break
			}
		}
	} else {
		m.fields = append(m.fields, f)
	}
	m.byName[f.Name] = f
	return f
}

// Field looks up a field by name.
func (m *Model) Field(name string) (*Field, error) {
	if f, ok := m.byName[name]; ok {
		return f, nil
	}
	return nil, &FieldNotFoundError{Model: m.Name, Field: name}
}

// HasField reports whether name is a field of the model.
func (m *Model) HasField(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Fields returns the fields in declaration order.
func (m *Model) Fields() []*Field {
	return append([]*Field(nil), m.fields...)
}

// Alias returns a query-scoped reference to the model under the SQL alias name.
func (m *Model) Alias(name string) *Alias {
	return &Alias{Model: m, Name: name}
}

// IsModel reports whether v is a usable model.
func IsModel(v any) bool {
	m, ok := v.(*Model)
	return ok && m != nil
}

// ReverseFields returns the reverse relations of a model keyed by field name.
func ReverseFields(m *Model) map[string]*Field {
	fields := make(map[string]*Field)
	if m == nil {
		return fields
	}
	for _, f := range m.fields {
		if f.Kind == KindReverse {
			fields[f.Name] = f
		}
	}
	return fields
}

// Alias is a model bound to a SQL alias within one query, so the same table can be
// joined more than once.
type Alias struct {
	Model *Model
	Name  string
}

// Field resolves a field name against the aliased model.
func (a *Alias) Field(name string) (FieldRef, error) {
	f, err := a.Model.Field(name)
	if err != nil {
		return FieldRef{}, err
	}
	return FieldRef{Alias: a, Field: f}, nil
}

// FieldRef is a field descriptor bound to the alias it was resolved through.
type FieldRef struct {
	Alias *Alias
	*Field
}

// QualifiedColumns returns the field's own columns prefixed with the alias.
func (r FieldRef) QualifiedColumns() []string {
	cols := r.Columns()
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		out = append(out, r.Alias.Name+"."+col)
	}
	return out
}

func (r FieldRef) String() string {
	if r.Alias == nil || r.Field == nil {
		return "<nil>"
	}
	return r.Alias.Name + "." + r.Name
}
