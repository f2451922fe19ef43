package introspection

import (
	"context"
	"log/slog"

	"modelgraph/internal/naming"
)

// BuildRelationships clears and rebuilds relationship metadata from foreign keys.
// Every FK constraint yields a many-to-one relationship on the referencing table and a
// one-to-many relationship on the referenced table. Views take no part.
func BuildRelationships(ctx context.Context, schema *Schema, namer *naming.Namer) {
	_, span := startSpan(ctx, "introspection.build_relationships")
	defer span.End()

	if schema == nil {
		return
	}
	if namer == nil {
		namer = naming.Default()
	}
	for i := range schema.Tables {
		schema.Tables[i].Relationships = nil
	}

	// When several constraints of one table point at the same target, the reverse
	// field names are prefixed with the FK column to stay distinct.
	fkCount := make(map[string]map[string]int)
	for _, table := range schema.Tables {
		if table.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(table) {
			if fkCount[table.Name] == nil {
				fkCount[table.Name] = make(map[string]int)
			}
			fkCount[table.Name][fk.ReferencedTable]++
		}
	}

	byName := make(map[string]*Table, len(schema.Tables))
	for i := range schema.Tables {
		byName[schema.Tables[i].Name] = &schema.Tables[i]
	}

	for i := range schema.Tables {
		table := &schema.Tables[i]
		if table.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(*table) {
			if len(fk.ColumnNames) == 0 || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
				slog.Default().Warn("skipping invalid foreign key mapping",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
					slog.Any("columns", fk.ColumnNames),
					slog.Any("referenced_columns", fk.ReferencedColumns),
				)
				continue
			}
			target, ok := byName[fk.ReferencedTable]
			if !ok || target.IsView {
				continue
			}

			table.Relationships = append(table.Relationships, Relationship{
				IsManyToOne:   true,
				LocalColumns:  append([]string(nil), fk.ColumnNames...),
				RemoteTable:   fk.ReferencedTable,
				RemoteColumns: append([]string(nil), fk.ReferencedColumns...),
				FieldName:     namer.ManyToOneFieldName(fk.ColumnNames[0]),
			})

			isOnlyFK := fkCount[table.Name][target.Name] == 1
			target.Relationships = append(target.Relationships, Relationship{
				IsOneToMany:   true,
				LocalColumns:  append([]string(nil), fk.ReferencedColumns...),
				RemoteTable:   table.Name,
				RemoteColumns: append([]string(nil), fk.ColumnNames...),
				FieldName:     namer.OneToManyFieldName(table.Name, fk.ColumnNames[0], isOnlyFK),
			})
		}
	}
}
