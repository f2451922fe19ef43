package explain

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"modelgraph/internal/logging"
	"modelgraph/internal/model"
	"modelgraph/internal/planner"
	"modelgraph/internal/selection"
)

func blogRegistry(t *testing.T) *model.Registry {
	t.Helper()
	user := model.NewModel("User", "users").SetPrimaryKey("id")
	post := model.NewModel("Post", "posts").SetPrimaryKey("id")
	user.QueryName, user.SingleQueryName = "users", "user"
	post.QueryName, post.SingleQueryName = "posts", "post"

	user.AddScalar("id", "id")
	user.AddScalar("name", "name")
	user.AddReverse("posts", post, []string{"id"}, []string{"author_id"})
	post.AddScalar("id", "id")
	post.AddScalar("title", "title")
	post.AddForeignKey("author", user, []string{"author_id"}, []string{"id"})

	reg := model.NewRegistry()
	require.NoError(t, reg.Register(user))
	require.NoError(t, reg.Register(post))
	return reg
}

func normalizeSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)

	oldProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(oldProvider)
	})
	return recorder
}

func TestExplain_ListWithFragmentsAndFilters(t *testing.T) {
	recorder := installSpanRecorder(t)
	var logs bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "debug", Format: "json", Output: &logs})

	e := New(blogRegistry(t), logger, Options{})
	statements, err := e.Explain(context.Background(), Request{
		Query: `
			query Feed($q: String) {
				feed: posts(first: 5, offset: 10, where__title__icontains: $q) {
					edges { node { ...PostFields } }
				}
			}
			fragment PostFields on Post {
				title
				author { name }
				__typename
			}
		`,
		Variables: map[string]interface{}{"q": "go"},
	})
	require.NoError(t, err)
	require.Len(t, statements, 1)

	stmt := statements[0]
	assert.Equal(t, "feed", stmt.Field)
	assert.Equal(t, "Post", stmt.Model)
	assert.Equal(t, 1, stmt.Joins)
	assert.Equal(t, []string{"t0__id", "t0__author_id", "t0__title", "t1__id", "t1__name"}, stmt.Columns)

	sql := normalizeSQL(stmt.SQL)
	assert.Contains(t, sql, "FROM `posts` AS `t0` LEFT JOIN `users` AS `t1` ON `t0`.`author_id` = `t1`.`id`")
	assert.Contains(t, sql, "WHERE LOWER(`t0`.`title`) LIKE LOWER(?)")
	assert.Equal(t, "%go%", stmt.Args[0])

	assert.Contains(t, logs.String(), "planned root field")
	assert.Contains(t, logs.String(), `"operation_name":"Feed"`)
	assert.Contains(t, logs.String(), `"trace_id":`)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "explain.document")
	assert.Contains(t, names, "explain.root_field")
}

func TestExplain_SingleRowField(t *testing.T) {
	e := New(blogRegistry(t), nil, Options{})
	statements, err := e.Explain(context.Background(), Request{
		Query: `{ user(id: 7) { name posts { title } } }`,
	})
	require.NoError(t, err)
	require.Len(t, statements, 1)

	stmt := statements[0]
	assert.Equal(t, "User", stmt.Model)
	assert.Equal(t, 0, stmt.Joins)
	assert.Contains(t, normalizeSQL(stmt.SQL), "WHERE `t0`.`id` = ?")
	assert.Equal(t, 7, stmt.Args[0])
}

func TestExplain_MultipleRootFields(t *testing.T) {
	e := New(blogRegistry(t), nil, Options{DefaultLimit: 20})
	statements, err := e.Explain(context.Background(), Request{
		Query: `{ users { id } posts { title } __typename }`,
	})
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, "users", statements[0].Field)
	assert.Equal(t, "posts", statements[1].Field)
}

func TestExplain_RepeatedRootFieldMergesSelections(t *testing.T) {
	e := New(blogRegistry(t), nil, Options{})
	statements, err := e.Explain(context.Background(), Request{
		Query: `{ users { id } users { name } }`,
	})
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Equal(t, []string{"t0__id", "t0__name"}, statements[0].Columns)
}

func TestExplain_Errors(t *testing.T) {
	e := New(blogRegistry(t), nil, Options{MaxJoins: 1})

	tests := []struct {
		name   string
		query  string
		target error
		substr string
	}{
		{name: "mutation", query: `mutation { createUser { id } }`, target: ErrNotQuery},
		{name: "unknown root", query: `{ comments { id } }`, target: ErrUnknownRootField},
		{name: "unknown field", query: `{ users { email } }`, target: model.ErrFieldNotFound},
		{name: "unknown fragment", query: `{ users { ...Missing } }`, substr: "not found"},
		{name: "fragment cycle", query: `{ users { ...A } } fragment A on User { ...B } fragment B on User { ...A }`, target: selection.ErrFragmentCycle},
		{name: "within join limit", query: `{ posts { author { id } } users { id } }`},
		{name: "bad limit", query: `{ users(first: "x") { id } }`, substr: "first must be an integer"},
		{name: "negative offset", query: `{ users(offset: -1) { id } }`, substr: "offset must be non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Explain(context.Background(), Request{Query: tt.query})
			if tt.target == nil && tt.substr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.substr != "" {
				assert.Contains(t, err.Error(), tt.substr)
			}
		})
	}
}

func TestExplain_MaxJoinsExceeded(t *testing.T) {
	user := model.NewModel("User", "users").SetPrimaryKey("id")
	user.QueryName = "users"
	user.AddScalar("id", "id")
	user.AddForeignKey("manager", user, []string{"manager_id"}, []string{"id"})
	reg := model.NewRegistry()
	require.NoError(t, reg.Register(user))

	e := New(reg, nil, Options{MaxJoins: 1})
	_, err := e.Explain(context.Background(), Request{
		Query: `{ users { manager { manager { id } } } }`,
	})
	assert.ErrorIs(t, err, planner.ErrTooManyJoins)
}
