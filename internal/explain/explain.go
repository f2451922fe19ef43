// Package explain turns a GraphQL document into the joined SQL statements that would
// serve each of its root fields.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"modelgraph/internal/gqldoc"
	"modelgraph/internal/logging"
	"modelgraph/internal/lookup"
	"modelgraph/internal/model"
	"modelgraph/internal/modelgraph"
	"modelgraph/internal/observability"
	"modelgraph/internal/planner"
	"modelgraph/internal/selection"
)

// DefaultFilterPrefix starts lookup arguments, as in "where__name__icontains".
const DefaultFilterPrefix = "where" + lookup.Delim

// ErrNotQuery is returned for mutations and subscriptions.
var ErrNotQuery = errors.New("only query operations can be explained")

// ErrUnknownRootField is returned when a root field maps to no model.
var ErrUnknownRootField = errors.New("unknown root field")

// Options configures an Explainer.
type Options struct {
	FilterPrefix string
	DefaultLimit int
	MaxJoins     int
}

// Request is a GraphQL document to explain.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]interface{}
}

// Statement is the plan for one root field.
type Statement struct {
	Field string        `json:"field"` // response key of the root field
	Model string        `json:"model"`
	SQL   string        `json:"sql"`
	Args  []interface{} `json:"args"`
	// Columns lists the output column labels in select order.
	Columns []string `json:"columns"`
	Joins   int      `json:"joins"`
}

// Explainer plans root fields against a model registry.
type Explainer struct {
	registry *model.Registry
	logger   *logging.Logger
	opts     Options
}

// New creates an Explainer. A nil logger discards output.
func New(registry *model.Registry, logger *logging.Logger, opts Options) *Explainer {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.FilterPrefix == "" {
		opts.FilterPrefix = DefaultFilterPrefix
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = planner.DefaultListLimit
	}
	return &Explainer{registry: registry, logger: logger, opts: opts}
}

// Explain plans every root field of the selected query operation.
func (e *Explainer) Explain(ctx context.Context, req Request) ([]Statement, error) {
	ctx, span := startSpan(ctx, "explain.document")
	defer span.End()

	doc, err := gqldoc.Parse(req.Query, req.OperationName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(observability.DocumentSpanAttributes(doc)...)
	if doc.Operation.Operation != ast.OperationTypeQuery {
		err := fmt.Errorf("%w: got %s", ErrNotQuery, doc.OperationType)
		recordSpanError(span, err)
		return nil, err
	}

	logger := e.logger.WithFields(observability.DocumentLogFields(ctx, doc)...)

	var statements []Statement
	for _, field := range doc.RootFields() {
		if field.Name == nil || strings.HasPrefix(field.Name.Value, "__") {
			continue
		}
		stmt, err := e.explainField(ctx, doc, field, req.Variables)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("root field %s: %w", gqldoc.ResponseKey(field), err)
		}
		logger.Debug("planned root field",
			slog.String("field", stmt.Field),
			slog.String("model", stmt.Model),
			slog.Int("joins", stmt.Joins),
			slog.String("sql", stmt.SQL),
		)
		statements = append(statements, stmt)
	}
	span.SetAttributes(attribute.Int("explain.statements", len(statements)))
	return statements, nil
}

func (e *Explainer) explainField(ctx context.Context, doc *gqldoc.Document, field *ast.Field, variables map[string]interface{}) (Statement, error) {
	name := field.Name.Value
	_, span := startSpan(ctx, "explain.root_field", attribute.String("graphql.field", name))
	defer span.End()

	m, ok := e.registry.ForRootField(name)
	if !ok {
		err := fmt.Errorf("%w %q", ErrUnknownRootField, name)
		recordSpanError(span, err)
		return Statement{}, err
	}

	fields, err := selection.CollectFields(field, doc.Fragments)
	if err != nil {
		recordSpanError(span, err)
		return Statement{}, err
	}
	result, err := modelgraph.RequestedModels(m, fields)
	if err != nil {
		recordSpanError(span, err)
		return Statement{}, err
	}
	args, err := gqldoc.ArgumentValues(field, variables)
	if err != nil {
		recordSpanError(span, err)
		return Statement{}, err
	}

	opts, err := e.planOptions(m, name, args)
	if err != nil {
		recordSpanError(span, err)
		return Statement{}, err
	}
	plan, err := planner.PlanJoined(result, opts...)
	if err != nil {
		recordSpanError(span, err)
		return Statement{}, err
	}

	span.SetAttributes(
		attribute.String("modelgraph.model", m.Name),
		attribute.Int("modelgraph.joins", plan.Joins),
	)
	return Statement{
		Field:   gqldoc.ResponseKey(field),
		Model:   m.Name,
		SQL:     plan.Query.SQL,
		Args:    plan.Query.Args,
		Columns: plan.Labels(),
		Joins:   plan.Joins,
	}, nil
}

// planOptions maps root field arguments to planner options. List fields take
// limit/first/offset and lookup filters; single-row fields treat arguments naming a
// model field as equality filters and return at most one row.
func (e *Explainer) planOptions(m *model.Model, name string, args map[string]interface{}) ([]planner.PlanOption, error) {
	opts := []planner.PlanOption{planner.WithMaxJoins(e.opts.MaxJoins)}

	if name == m.SingleQueryName && name != m.QueryName {
		filters := make(map[string]interface{})
		for arg, value := range args {
			if m.HasField(arg) {
				filters[lookup.ArgName(e.opts.FilterPrefix, arg, "")] = value
			}
		}
		return append(opts, planner.WithFilters(e.opts.FilterPrefix, filters), planner.WithLimit(1)), nil
	}

	limit := e.opts.DefaultLimit
	for _, key := range []string{"limit", "first"} {
		if value, ok := args[key]; ok {
			n, err := nonNegativeInt(key, value)
			if err != nil {
				return nil, err
			}
			limit = n
			break
		}
	}
	opts = append(opts, planner.WithLimit(uint64(limit)))

	if value, ok := args["offset"]; ok {
		n, err := nonNegativeInt("offset", value)
		if err != nil {
			return nil, err
		}
		opts = append(opts, planner.WithOffset(uint64(n)))
	}
	return append(opts, planner.WithFilters(e.opts.FilterPrefix, args)), nil
}

func nonNegativeInt(name string, value interface{}) (int, error) {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		n = int(v)
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be non-negative", name)
	}
	return n, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("modelgraph/explain")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
