package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"modelgraph/internal/gqldoc"
)

// DocumentSpanAttributes builds canonical span attributes for a parsed document.
func DocumentSpanAttributes(doc *gqldoc.Document) []attribute.KeyValue {
	if doc == nil {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, 6)
	if doc.OperationName != "" {
		attrs = append(attrs, attribute.String("graphql.operation.name", doc.OperationName))
	}
	if doc.OperationType != "" {
		attrs = append(attrs, attribute.String("graphql.operation.type", doc.OperationType))
	}
	if doc.Hash != "" {
		attrs = append(attrs, attribute.String("graphql.operation.hash", doc.Hash))
	}
	if doc.Operation != nil {
		attrs = append(attrs,
			attribute.Int("graphql.query.root_field_count", len(doc.RootFields())),
			attribute.Int("graphql.query.variable_count", len(doc.Operation.VariableDefinitions)),
		)
	}
	attrs = append(attrs, attribute.Int("graphql.document.fragment_count", len(doc.Fragments)))
	return attrs
}

// DocumentLogFields builds canonical structured log fields for a parsed document.
func DocumentLogFields(ctx context.Context, doc *gqldoc.Document) []any {
	fields := make([]any, 0, 4)
	if doc != nil {
		if doc.OperationName != "" {
			fields = append(fields, slog.String("operation_name", doc.OperationName))
		}
		if doc.OperationType != "" {
			fields = append(fields, slog.String("operation_type", doc.OperationType))
		}
		if doc.Hash != "" {
			fields = append(fields, slog.String("operation_hash", doc.Hash))
		}
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
