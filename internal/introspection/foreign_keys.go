package introspection

import (
	"fmt"
	"sort"
)

// ForeignKeyConstraint is a foreign key with its columns in constraint order.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints groups the per-column FK rows of a table into constraints,
// sorted by constraint name. Rows without a constraint name stay separate.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	groups := make(map[string][]ForeignKey)
	var keys []string
	for i, fk := range table.ForeignKeys {
		key := fk.ConstraintName
		if key == "" {
			key = fmt.Sprintf("\x00unnamed_%04d", i)
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], fk)
	}
	sort.Strings(keys)

	result := make([]ForeignKeyConstraint, 0, len(keys))
	for _, key := range keys {
		rows := groups[key]
		sort.SliceStable(rows, func(i, j int) bool {
			return ordinalLess(rows[i].OrdinalPosition, rows[j].OrdinalPosition)
		})
		constraint := ForeignKeyConstraint{
			ConstraintName:  rows[0].ConstraintName,
			ReferencedTable: rows[0].ReferencedTable,
		}
		for _, row := range rows {
			constraint.ColumnNames = append(constraint.ColumnNames, row.ColumnName)
			constraint.ReferencedColumns = append(constraint.ReferencedColumns, row.ReferencedColumn)
		}
		result = append(result, constraint)
	}
	return result
}

// ordinalLess orders known ordinal positions first; zero means unknown.
func ordinalLess(a, b int) bool {
	switch {
	case a == b:
		return false
	case a == 0:
		return false
	case b == 0:
		return true
	default:
		return a < b
	}
}
