package introspect

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var columnHeader = []string{
	"table_schema", "table_name", "column_name", "data_type",
	"is_nullable", "column_default", "character_maximum_length", "is_primary",
}

var fkHeader = []string{
	"table_schema", "table_name", "column_name",
	"ref_schema", "ref_table", "ref_column",
}

func TestDescribePostgres(t *testing.T) {
	db, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns c`)).
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("public", "users", "id", "integer", "NO", "nextval('users_id_seq'::regclass)", nil, true).
			AddRow("public", "users", "email", "character varying", "NO", nil, int64(255), false).
			AddRow("public", "orders", "id", "bigint", "NO", nil, nil, true).
			AddRow("public", "orders", "user_id", "integer", "YES", nil, nil, false).
			AddRow("billing", "invoices", "id", "uuid", "NO", nil, nil, true))
	mock.ExpectQuery(regexp.QuoteMeta(`constraint_type = 'FOREIGN KEY'`)).
		WillReturnRows(sqlmock.NewRows(fkHeader).
			AddRow("public", "orders", "user_id", "public", "users", "id"))

	tables, err := Describe(context.Background(), db, "postgres")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(tables) != 3 {
		t.Fatalf("len(tables) = %d, want 3", len(tables))
	}

	names := []string{tables[0].QualifiedName(), tables[1].QualifiedName(), tables[2].QualifiedName()}
	if strings.Join(names, ",") != "billing.invoices,orders,users" {
		t.Fatalf("table order = %v", names)
	}

	users := tables[2]
	if users.Columns[1].DataType != "character varying(255)" {
		t.Errorf("email type = %q", users.Columns[1].DataType)
	}
	if !users.Columns[0].PrimaryKey || users.Columns[1].PrimaryKey {
		t.Errorf("primary key flags = %+v", users.Columns)
	}

	orders := tables[1]
	if len(orders.ForeignKeys) != 1 || orders.ForeignKeys[0].RefTable != "users" {
		t.Errorf("orders foreign keys = %+v", orders.ForeignKeys)
	}
	assertSQLMock(t, mock)
}

func TestDescribeMySQL(t *testing.T) {
	db, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE t.table_schema = DATABASE()`)).
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("", "products", "sku", "varchar", "NO", nil, int64(32), true).
			AddRow("", "products", "price", "decimal", "YES", "0.00", nil, false))
	mock.ExpectQuery(regexp.QuoteMeta(`k.referenced_table_name IS NOT NULL`)).
		WillReturnRows(sqlmock.NewRows(fkHeader))

	tables, err := Describe(context.Background(), db, "mysql")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(tables) != 1 || tables[0].Name != "products" {
		t.Fatalf("tables = %+v", tables)
	}
	if tables[0].Columns[0].DataType != "varchar(32)" {
		t.Errorf("sku type = %q", tables[0].Columns[0].DataType)
	}
	assertSQLMock(t, mock)
}

func TestDescribeUnknownDialect(t *testing.T) {
	db, _ := newSQLMock(t)
	if _, err := Describe(context.Background(), db, "oracle"); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
}

func TestRender(t *testing.T) {
	tables := []Table{
		{
			Name: "orders",
			Columns: []Column{
				{Name: "id", DataType: "bigint", PrimaryKey: true},
				{Name: "user_id", DataType: "integer", Nullable: true},
				{Name: "status", DataType: "text", Default: "'new'::text"},
			},
			ForeignKeys: []ForeignKey{{Column: "user_id", RefTable: "users", RefColumn: "id"}},
		},
		{
			Schema:  "billing",
			Name:    "invoices",
			Columns: []Column{{Name: "id", DataType: "uuid", Nullable: true}},
		},
	}

	want := `CREATE TABLE orders (
  id bigint NOT NULL,
  user_id integer,
  status text NOT NULL DEFAULT 'new'::text,
  PRIMARY KEY (id),
  FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE billing.invoices (
  id uuid
);
`
	if got := Render(tables); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
