// Package introspect reads table definitions from a live database and renders
// them as schema context text.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Column struct {
	Name       string
	DataType   string
	Nullable   bool
	Default    string
	PrimaryKey bool
}

type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

type Table struct {
	Schema      string
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// QualifiedName omits the schema for the dialect's default schema.
func (t Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Open connects to a database of the given dialect ("postgres" or "mysql").
func Open(ctx context.Context, dialect, dsn string) (*sql.DB, error) {
	d, err := lookup(dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

// Describe returns every base table visible to the connection, ordered by
// schema and name, with columns in ordinal order.
func Describe(ctx context.Context, db *sql.DB, dialect string) ([]Table, error) {
	d, err := lookup(dialect)
	if err != nil {
		return nil, err
	}

	tables, err := describeColumns(ctx, db, d)
	if err != nil {
		return nil, err
	}
	if err := describeForeignKeys(ctx, db, d, tables); err != nil {
		return nil, err
	}

	out := make([]Table, 0, len(tables))
	for _, t := range tables {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName() < out[j].QualifiedName()
	})
	return out, nil
}

func describeColumns(ctx context.Context, db *sql.DB, d dialect) (map[string]*Table, error) {
	rows, err := db.QueryContext(ctx, d.columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make(map[string]*Table)
	for rows.Next() {
		var schemaName, tableName, columnName, dataType, isNullable string
		var columnDefault sql.NullString
		var charLength sql.NullInt64
		var isPrimary bool

		if err := rows.Scan(&schemaName, &tableName, &columnName, &dataType, &isNullable,
			&columnDefault, &charLength, &isPrimary); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		if schemaName == d.defaultSchema {
			schemaName = ""
		}

		key := schemaName + "." + tableName
		table, ok := tables[key]
		if !ok {
			table = &Table{Schema: schemaName, Name: tableName}
			tables[key] = table
		}

		col := Column{
			Name:       columnName,
			DataType:   dataType,
			Nullable:   isNullable == "YES",
			PrimaryKey: isPrimary,
		}
		if columnDefault.Valid {
			col.Default = columnDefault.String
		}
		if charLength.Valid && d.sizedTypes[strings.ToLower(dataType)] {
			col.DataType = fmt.Sprintf("%s(%d)", dataType, charLength.Int64)
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return tables, nil
}

func describeForeignKeys(ctx context.Context, db *sql.DB, d dialect, tables map[string]*Table) error {
	rows, err := db.QueryContext(ctx, d.foreignKeysQuery)
	if err != nil {
		return fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var schemaName, tableName, columnName, refSchema, refTable, refColumn string
		if err := rows.Scan(&schemaName, &tableName, &columnName, &refSchema, &refTable, &refColumn); err != nil {
			return fmt.Errorf("scan foreign key row: %w", err)
		}
		if schemaName == d.defaultSchema {
			schemaName = ""
		}
		table, ok := tables[schemaName+"."+tableName]
		if !ok {
			continue
		}
		ref := refTable
		if refSchema != d.defaultSchema && refSchema != "" {
			ref = refSchema + "." + refTable
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			Column:    columnName,
			RefTable:  ref,
			RefColumn: refColumn,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate foreign key rows: %w", err)
	}
	return nil
}

// Render writes tables as CREATE TABLE statements, the form models ground
// identifiers on most reliably.
func Render(tables []Table) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.QualifiedName())

		var lines []string
		var pk []string
		for _, c := range t.Columns {
			line := "  " + c.Name + " " + c.DataType
			if !c.Nullable {
				line += " NOT NULL"
			}
			if c.Default != "" {
				line += " DEFAULT " + c.Default
			}
			lines = append(lines, line)
			if c.PrimaryKey {
				pk = append(pk, c.Name)
			}
		}
		if len(pk) > 0 {
			lines = append(lines, "  PRIMARY KEY ("+strings.Join(pk, ", ")+")")
		}
		for _, fk := range t.ForeignKeys {
			lines = append(lines, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s(%s)", fk.Column, fk.RefTable, fk.RefColumn))
		}
		b.WriteString(strings.Join(lines, ",\n"))
		b.WriteString("\n);\n")
	}
	return b.String()
}
