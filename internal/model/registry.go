package model

import (
	"fmt"
	"sort"

	"modelgraph/internal/introspection"
	"modelgraph/internal/naming"
)

// Registry indexes models by name, table and root query field name.
type Registry struct {
	models  []*Model
	byName  map[string]*Model
	byTable map[string]*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Model),
		byTable: make(map[string]*Model),
	}
}

// Register adds a model. Model names and tables must be unique.
func (r *Registry) Register(m *Model) error {
	if m == nil {
		return fmt.Errorf("register model: nil model")
	}
	if _, ok := r.byName[m.Name]; ok {
		return fmt.Errorf("register model: duplicate model name %q", m.Name)
	}
	if _, ok := r.byTable[m.Table]; ok {
		return fmt.Errorf("register model %s: table %q already registered", m.Name, m.Table)
	}
	r.models = append(r.models, m)
	r.byName[m.Name] = m
	r.byTable[m.Table] = m
	return nil
}

// Model returns the model with the given type name.
func (r *Registry) Model(name string) (*Model, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// ByTable returns the model backed by table.
func (r *Registry) ByTable(table string) (*Model, bool) {
	m, ok := r.byTable[table]
	return m, ok
}

// Models returns the registered models in registration order.
func (r *Registry) Models() []*Model {
	return append([]*Model(nil), r.models...)
}

// ForRootField resolves a root query field to its model. The list query name,
// single-row query name and type name all match.
func (r *Registry) ForRootField(name string) (*Model, bool) {
	for _, m := range r.models {
		if m.QueryName == name || m.SingleQueryName == name {
			return m, true
		}
	}
	m, ok := r.byName[name]
	return m, ok
}

// FromSchema builds one model per introspected table. Columns become scalar fields,
// many-to-one relationships become forward relations and one-to-many relationships
// become reverse relations. A relation whose name is already taken on the model is
// suffixed with "Ref" (forward) or "Rel" (reverse). Tables deriving the same type
// name after the first get the next free numeric suffix.
func FromSchema(schema *introspection.Schema, namer *naming.Namer) (*Registry, error) {
	if schema == nil {
		return nil, fmt.Errorf("build registry: nil schema")
	}
	if namer == nil {
		namer = naming.Default()
	}

	// Natural type names are reserved up front so a suffixed name never takes the
	// name another table derives on its own.
	natural := make([]string, len(schema.Tables))
	reserved := make(map[string]bool, len(schema.Tables))
	for i, table := range schema.Tables {
		natural[i] = namer.TypeName(table.Name)
		reserved[natural[i]] = true
	}

	reg := NewRegistry()
	for i, table := range schema.Tables {
		typeName := natural[i]
		if _, ok := reg.Model(typeName); ok {
			typeName = namer.DisambiguateType(table.Name, typeName, func(name string) bool {
				_, used := reg.Model(name)
				return used || reserved[name]
			})
		}

		m := NewModel(typeName, table.Name)
		m.QueryName = namer.QueryName(table.Name)
		m.SingleQueryName = namer.SingleQueryName(table.Name)
		if m.SingleQueryName == m.QueryName {
			m.SingleQueryName += "ByPk"
		}

		var pk []string
		for _, col := range introspection.PrimaryKeyColumns(table) {
			pk = append(pk, col.Name)
		}
		m.SetPrimaryKey(pk...)

		for _, col := range table.Columns {
			name := namer.Disambiguate(typeName, namer.FieldName(col.Name), "Col", m.HasField)
			m.AddScalar(name, col.Name)
		}
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	// Relations are added once every model exists so targets can be resolved.
	for _, table := range schema.Tables {
		m, _ := reg.ByTable(table.Name)
		rels := append([]introspection.Relationship(nil), table.Relationships...)
		sort.SliceStable(rels, func(i, j int) bool {
			return rels[i].IsManyToOne && !rels[j].IsManyToOne
		})
		for _, rel := range rels {
			related, ok := reg.ByTable(rel.RemoteTable)
			if !ok {
				continue
			}
			switch {
			case rel.IsManyToOne:
				name := namer.Disambiguate(m.Name, rel.FieldName, "Ref", m.HasField)
				m.AddForeignKey(name, related, rel.LocalColumns, rel.RemoteColumns)
			case rel.IsOneToMany:
				name := namer.Disambiguate(m.Name, rel.FieldName, "Rel", m.HasField)
				m.AddReverse(name, related, rel.LocalColumns, rel.RemoteColumns)
			}
		}
	}
	return reg, nil
}
