package planner

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgraph/internal/lookup"
	"modelgraph/internal/model"
	"modelgraph/internal/modelgraph"
	"modelgraph/internal/selection"
)

func blogModels() (user, post, comment *model.Model) {
	user = model.NewModel("User", "users").SetPrimaryKey("id")
	post = model.NewModel("Post", "posts").SetPrimaryKey("id")
	comment = model.NewModel("Comment", "comments").SetPrimaryKey("id")

	user.AddScalar("id", "id")
	user.AddScalar("name", "name")
	user.AddForeignKey("manager", user, []string{"manager_id"}, []string{"id"})
	user.AddReverse("posts", post, []string{"id"}, []string{"author_id"})

	post.AddScalar("id", "id")
	post.AddScalar("title", "title")
	post.AddForeignKey("author", user, []string{"author_id"}, []string{"id"})
	post.AddReverse("comments", comment, []string{"id"}, []string{"post_id"})

	comment.AddScalar("id", "id")
	comment.AddScalar("body", "body")
	comment.AddForeignKey("post", post, []string{"post_id"}, []string{"id"})
	return user, post, comment
}

func walk(t *testing.T, m *model.Model, fields selection.FieldMap) *modelgraph.Result {
	t.Helper()
	result, err := modelgraph.RequestedModels(m, fields)
	require.NoError(t, err)
	return result
}

func TestPlanJoined_SingleLevel(t *testing.T) {
	user, _, _ := blogModels()
	root := walk(t, user, selection.FieldMap{"name": {}})

	plan, err := PlanJoined(root)
	require.NoError(t, err)
	assertSQLMatches(t, plan.Query.SQL,
		"SELECT `t0`.`id` AS `t0__id`, `t0`.`name` AS `t0__name` FROM `users` AS `t0` ORDER BY `t0`.`id`",
	)
	assert.Empty(t, plan.Query.Args)
	assert.Equal(t, 0, plan.Joins)
	assert.Equal(t, []string{"t0__id", "t0__name"}, plan.Labels())
	assert.Equal(t, Column{Alias: "t0", Model: "User", Field: "id", Column: "id", Label: "t0__id"}, plan.Columns[0])
}

func TestPlanJoined_ForwardRelation(t *testing.T) {
	_, post, _ := blogModels()
	root := walk(t, post, selection.FieldMap{
		"title":    {},
		"author":   {"name": {}},
		"comments": {"body": {}},
	})

	plan, err := PlanJoined(root)
	require.NoError(t, err)
	assertSQLMatches(t, plan.Query.SQL,
		"SELECT `t0`.`id` AS `t0__id`, `t0`.`author_id` AS `t0__author_id`, `t0`.`title` AS `t0__title`, "+
			"`t1`.`id` AS `t1__id`, `t1`.`name` AS `t1__name` "+
			"FROM `posts` AS `t0` "+
			"LEFT JOIN `users` AS `t1` ON `t0`.`author_id` = `t1`.`id` "+
			"ORDER BY `t0`.`id`",
	)
	assert.Equal(t, 1, plan.Joins)
	assert.Equal(t, "author", plan.Columns[1].Field)
}

func TestPlanJoined_UnexpandedRelationSelectsForeignKey(t *testing.T) {
	_, _, comment := blogModels()
	root := walk(t, comment, selection.FieldMap{"post": {}})

	plan, err := PlanJoined(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"t0__id", "t0__post_id"}, plan.Labels())
	assert.NotContains(t, plan.Query.SQL, "JOIN")
}

func TestPlanJoined_SelfJoinAndNesting(t *testing.T) {
	_, _, comment := blogModels()
	root := walk(t, comment, selection.FieldMap{
		"post": {"author": {"manager": {"name": {}}}},
	})

	plan, err := PlanJoined(root)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.Joins)
	sql := normalizeSQL(plan.Query.SQL)
	assert.Contains(t, sql, "LEFT JOIN `posts` AS `t1` ON `t0`.`post_id` = `t1`.`id`")
	assert.Contains(t, sql, "LEFT JOIN `users` AS `t2` ON `t1`.`author_id` = `t2`.`id`")
	assert.Contains(t, sql, "LEFT JOIN `users` AS `t3` ON `t2`.`manager_id` = `t3`.`id`")
	assert.Contains(t, plan.Labels(), "t3__name")
}

func TestPlanJoined_CompositeJoin(t *testing.T) {
	order := model.NewModel("Order", "orders").SetPrimaryKey("tenant_id", "id")
	order.AddScalar("id", "id")
	item := model.NewModel("OrderItem", "order_items").SetPrimaryKey("id")
	item.AddScalar("id", "id")
	item.AddForeignKey("order", order, []string{"tenant_id", "order_id"}, []string{"tenant_id", "id"})

	plan, err := PlanJoined(walk(t, item, selection.FieldMap{"order": {"id": {}}}))
	require.NoError(t, err)
	assert.Contains(t, normalizeSQL(plan.Query.SQL),
		"LEFT JOIN `orders` AS `t1` ON `t0`.`tenant_id` = `t1`.`tenant_id` AND `t0`.`order_id` = `t1`.`id`")
}

func TestPlanJoined_Filters(t *testing.T) {
	_, post, _ := blogModels()
	root := walk(t, post, selection.FieldMap{"title": {}, "author": {"name": {}}})

	plan, err := PlanJoined(root, WithFilters("where__", map[string]interface{}{
		lookup.ArgName("where__", "title", lookup.IContains): "go",
		lookup.ArgName("where__", "author__name", ""):        "ann",
		"first": 10,
	}))
	require.NoError(t, err)
	sql := normalizeSQL(plan.Query.SQL)
	assert.Contains(t, sql, "WHERE `t1`.`name` = ? AND LOWER(`t0`.`title`) LIKE LOWER(?)")
	assertArgsEqual(t, plan.Query.Args, []interface{}{"ann", "%go%"})
}

func TestPlanJoined_FilterErrors(t *testing.T) {
	_, post, _ := blogModels()
	root := walk(t, post, selection.FieldMap{"title": {}})

	_, err := PlanJoined(root, WithFilters("where__", map[string]interface{}{"where__rating": 5}))
	assert.ErrorIs(t, err, model.ErrFieldNotFound)

	_, err = PlanJoined(root, WithFilters("where__", map[string]interface{}{"where__author__name": "x"}))
	assert.ErrorContains(t, err, "not part of the selection")

	_, err = PlanJoined(root, WithFilters("where__", map[string]interface{}{"where__comments": 1}))
	assert.ErrorContains(t, err, "cannot be filtered")

	_, err = PlanJoined(root, WithFilters("where__", map[string]interface{}{"where__title__in": "x"}))
	assert.ErrorContains(t, err, "requires a list")
}

func TestPlanJoined_LimitOffset(t *testing.T) {
	user, _, _ := blogModels()
	plan, err := PlanJoined(walk(t, user, selection.FieldMap{"name": {}}), WithLimit(10), WithOffset(5))
	require.NoError(t, err)
	assertLimitOffsetArgs(t, plan.Query.SQL, plan.Query.Args, 10, 5)
}

func TestPlanJoined_MaxJoins(t *testing.T) {
	_, _, comment := blogModels()
	root := walk(t, comment, selection.FieldMap{"post": {"author": {"name": {}}}})

	_, err := PlanJoined(root, WithMaxJoins(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyJoins)

	_, err = PlanJoined(root, WithMaxJoins(2))
	assert.NoError(t, err)
}

func TestPlanJoined_QuotesIdentifiers(t *testing.T) {
	m := model.NewModel("Weird", "user`data").SetPrimaryKey("select")
	m.AddScalar("firstName", "first name")

	plan, err := PlanJoined(walk(t, m, selection.FieldMap{"firstName": {}}))
	require.NoError(t, err)
	assertSQLMatches(t, plan.Query.SQL,
		"SELECT `t0`.`select` AS `t0__select`, `t0`.`first name` AS `t0__first name` FROM `user``data` AS `t0` ORDER BY `t0`.`select`",
	)
}

func TestPlanJoined_NoColumns(t *testing.T) {
	events := model.NewModel("Event", "events")
	events.AddScalar("name", "name")

	_, err := PlanJoined(walk(t, events, selection.FieldMap{"__typename": {}}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoColumns)
	assert.Contains(t, err.Error(), "Event")
}

func TestPlanJoined_EmptyResult(t *testing.T) {
	_, err := PlanJoined(nil)
	assert.Error(t, err)
}

func assertSQLMatches(t *testing.T, got string, candidates ...string) {
	t.Helper()

	gotNorm := normalizeSQL(got)
	for _, candidate := range candidates {
		if gotNorm == normalizeSQL(candidate) {
			return
		}
	}

	assert.Fail(t, "SQL did not match any expected form", "got: %q candidates: %v", gotNorm, candidates)
}

// Accept either bound args or literal LIMIT/OFFSET in SQL.
func assertLimitOffsetArgs(t *testing.T, sql string, args []interface{}, limit, offset int) {
	t.Helper()

	if len(args) == 0 {
		normalized := normalizeSQL(sql)
		assert.Contains(t, normalized, fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset))
		return
	}

	expected := []interface{}{limit, offset}
	assertArgsEqual(t, args, expected)
}

// Compare args by string form to avoid int vs int64 differences.
func assertArgsEqual(t *testing.T, got []interface{}, expected []interface{}) {
	t.Helper()

	if len(got) != len(expected) {
		assert.Equal(t, len(expected), len(got))
		return
	}

	gotNorm := normalizeArgs(got)
	expectedNorm := normalizeArgs(expected)
	assert.Equal(t, expectedNorm, gotNorm)
}

// Normalize args to strings so numeric types compare consistently.
func normalizeArgs(args []interface{}) []string {
	normalized := make([]string, len(args))
	for i, arg := range args {
		normalized[i] = fmt.Sprintf("%v", arg)
	}
	return normalized
}

// Normalize SQL for stable comparisons across whitespace differences.
func normalizeSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
