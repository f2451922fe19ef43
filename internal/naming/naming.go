package naming

import (
	"log/slog"
	"strconv"
	"strings"
)

// Namer converts SQL names to GraphQL names.
type Namer struct {
	config Config
	logger *slog.Logger
}

// New creates a Namer with the given configuration.
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{config: cfg, logger: logger}
}

// Default returns a Namer without overrides.
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// TypeName converts a table name to a singular PascalCase type name.
// Example: "user_profiles" -> "UserProfile"
func (n *Namer) TypeName(tableName string) string {
	return n.Singularize(toPascalCase(tableName))
}

// FieldName converts a column name to a camelCase field name.
// Example: "created_at" -> "createdAt"
func (n *Namer) FieldName(columnName string) string {
	return toCamelCase(columnName)
}

// QueryName is the list root field name of a table.
// Example: "blog_posts" -> "blogPosts"
func (n *Namer) QueryName(tableName string) string {
	return n.Pluralize(toCamelCase(tableName))
}

// SingleQueryName is the single-row root field name of a table.
// Example: "blog_posts" -> "blogPost"
func (n *Namer) SingleQueryName(tableName string) string {
	return n.Singularize(toCamelCase(tableName))
}

// ManyToOneFieldName names a forward relation after its FK column with common
// suffixes stripped.
// Example: "author_id" -> "author", "created_by_user_id" -> "createdByUser"
func (n *Namer) ManyToOneFieldName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.FieldName(name)
}

// OneToManyFieldName names a reverse relation. With a single FK from the source
// table the pluralized table name is used; otherwise the FK column prefixes it.
// Example: isOnlyFK=true: "comments" -> "comments"
// Example: isOnlyFK=false, fkColumn="editor_id": "posts" -> "editorPosts"
func (n *Namer) OneToManyFieldName(sourceTable, fkColumn string, isOnlyFK bool) string {
	plural := n.QueryName(sourceTable)
	if isOnlyFK {
		return plural
	}
	prefix := n.ManyToOneFieldName(fkColumn)
	if plural == "" {
		return prefix
	}
	return prefix + strings.ToUpper(plural[:1]) + plural[1:]
}

// Disambiguate returns name, or name+suffix when taken reports a collision.
func (n *Namer) Disambiguate(owner, name, suffix string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	renamed := name + suffix
	for i := 2; taken(renamed); i++ {
		renamed = name + suffix + strings.Repeat("_", i-1)
	}
	n.logger.Warn("field name collision, auto-suffixed",
		slog.String("type", owner),
		slog.String("original", name),
		slog.String("renamed", renamed),
	)
	return renamed
}

// DisambiguateType returns name, or name followed by the first numeric suffix from 2
// on that taken does not report.
func (n *Namer) DisambiguateType(tableName, name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	renamed := name
	for i := 2; taken(renamed); i++ {
		renamed = name + strconv.Itoa(i)
	}
	n.logger.Warn("type name collision, applying suffix",
		slog.String("table", tableName),
		slog.String("original", name),
		slog.String("renamed", renamed),
	)
	return renamed
}

func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
