package app

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgraph/internal/config"
	"modelgraph/internal/explain"
	"modelgraph/internal/logging"
	"modelgraph/internal/schemafilter"
)

const (
	tablesQuery      = "FROM INFORMATION_SCHEMA.TABLES"
	columnsQuery     = "FROM INFORMATION_SCHEMA.COLUMNS"
	primaryKeyQuery  = "CONSTRAINT_NAME = 'PRIMARY'"
	foreignKeysQuery = "REFERENCED_TABLE_NAME IS NOT NULL"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Output: &bytes.Buffer{}})
}

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Database: "blog"},
		Planner:  config.PlannerConfig{FilterPrefix: "where__", DefaultLimit: 50},
		SchemaFilters: schemafilter.Config{
			DenyTables: []string{"audit_*"},
		},
	}
}

func fkRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"})
}

func expectTable(mock sqlmock.Sqlmock, table string, columns [][]driver.Value, fks *sqlmock.Rows) {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_COMMENT"})
	for _, c := range columns {
		rows.AddRow(c...)
	}
	mock.ExpectQuery(columnsQuery).WithArgs("blog", table).WillReturnRows(rows)
	mock.ExpectQuery(primaryKeyQuery).WithArgs("blog", table).WillReturnRows(
		sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"),
	)
	mock.ExpectQuery(foreignKeysQuery).WithArgs("blog", table).WillReturnRows(fks)
}

func expectBlogSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(tablesQuery).WithArgs("blog").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("audit_log", "BASE TABLE", "").
			AddRow("posts", "BASE TABLE", "").
			AddRow("users", "BASE TABLE", ""),
	)
	expectTable(mock, "audit_log", [][]driver.Value{{"id", "bigint", "NO", ""}}, fkRows())
	expectTable(mock, "posts", [][]driver.Value{
		{"id", "bigint", "NO", ""},
		{"title", "varchar", "NO", ""},
		{"author_id", "bigint", "YES", ""},
	}, fkRows().AddRow("author_id", "users", "id", "fk_posts_author", 1))
	expectTable(mock, "users", [][]driver.Value{
		{"id", "bigint", "NO", ""},
		{"name", "varchar", "NO", ""},
	}, fkRows())
}

func newMockApp(t *testing.T, cfg *config.Config) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a, err := New(cfg, testLogger(), WithDB(db))
	require.NoError(t, err)
	return a, mock
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.ErrorContains(t, err, "config is required")

	_, err = New(testConfig(), nil)
	assert.ErrorContains(t, err, "logger is required")

	_, err = New(&config.Config{}, testLogger())
	assert.ErrorContains(t, err, "failed to resolve effective database configuration")
}

func TestApp_InitAndExplain(t *testing.T) {
	a, mock := newMockApp(t, testConfig())
	mock.ExpectPing()
	expectBlogSchema(mock)

	require.NoError(t, a.Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	_, ok := a.Registry().ByTable("audit_log")
	assert.False(t, ok)
	_, ok = a.Registry().ByTable("posts")
	assert.True(t, ok)

	statements, err := a.Explain(context.Background(), explain.Request{
		Query: `{ posts { title author { name } } }`,
	})
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Equal(t, "Post", statements[0].Model)
	assert.Equal(t, 1, statements[0].Joins)
	assert.Contains(t, statements[0].SQL, "LEFT JOIN `users` AS `t1`")

	assert.ErrorContains(t, a.Init(context.Background()), "already initialized")
	assert.NoError(t, a.Shutdown(context.Background()))
}

func TestApp_ExplainBeforeInit(t *testing.T) {
	a, _ := newMockApp(t, testConfig())
	_, err := a.Explain(context.Background(), explain.Request{Query: `{ users { id } }`})
	assert.ErrorContains(t, err, "app not initialized")
}

func TestApp_InitIntrospectionError(t *testing.T) {
	a, mock := newMockApp(t, testConfig())
	mock.ExpectPing()
	mock.ExpectQuery(tablesQuery).WillReturnError(sql.ErrConnDone)

	err := a.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "failed to introspect database blog")
}

func TestWaitForDatabase(t *testing.T) {
	orig := connectRetryInterval
	connectRetryInterval = time.Millisecond
	t.Cleanup(func() { connectRetryInterval = orig })

	t.Run("single attempt without deadline", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("refused"))
		err = waitForDatabase(context.Background(), testLogger(), db)
		assert.ErrorContains(t, err, "refused")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries until ping succeeds", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("refused"))
		mock.ExpectPing().WillReturnError(errors.New("refused"))
		mock.ExpectPing()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, waitForDatabase(ctx, testLogger(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCleanupStack_RunsInReverseOrder(t *testing.T) {
	var order []string
	var stack cleanupStack
	for _, name := range []string{"first", "second", "third"} {
		name := name
		stack.push(name, func(context.Context) error {
			order = append(order, name)
			if name == "second" {
				return errors.New("boom")
			}
			return nil
		})
	}

	stack.run(context.Background(), testLogger())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestApp_ShutdownOnce(t *testing.T) {
	a, _ := newMockApp(t, testConfig())
	calls := 0
	a.cleanup.push("counter", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestInitLogger_WithoutExports(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Logging = config.LoggingConfig{Level: "warn", Format: "json"}

	logger, provider, err := InitLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Nil(t, provider)
}

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := initTracing(testConfig(), testLogger())
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestConnectDB_InvalidDSN(t *testing.T) {
	cfg := testConfig()
	cfg.Database.ConnectionString = "garbage"
	_, err := connectDB(cfg, testLogger())
	assert.ErrorContains(t, err, "database.dsn is invalid")
}
