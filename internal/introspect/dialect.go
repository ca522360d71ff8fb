package introspect

import "fmt"

type dialect struct {
	driver           string
	defaultSchema    string
	sizedTypes       map[string]bool
	columnsQuery     string
	foreignKeysQuery string
}

var dialects = map[string]dialect{
	"postgres": {
		driver:        "pgx",
		defaultSchema: "public",
		sizedTypes:    map[string]bool{"character varying": true, "character": true},
		columnsQuery: `
SELECT
    c.table_schema,
    c.table_name,
    c.column_name,
    c.data_type,
    c.is_nullable,
    c.column_default,
    c.character_maximum_length,
    (pk.column_name IS NOT NULL) AS is_primary
FROM information_schema.columns c
JOIN information_schema.tables t
    ON t.table_schema = c.table_schema AND t.table_name = c.table_name
LEFT JOIN (
    SELECT kcu.table_schema, kcu.table_name, kcu.column_name
    FROM information_schema.key_column_usage kcu
    JOIN information_schema.table_constraints tc
        ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY'
) pk ON pk.table_schema = c.table_schema AND pk.table_name = c.table_name AND pk.column_name = c.column_name
WHERE t.table_type = 'BASE TABLE'
  AND c.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY c.table_schema, c.table_name, c.ordinal_position`,
		foreignKeysQuery: `
SELECT
    kcu.table_schema,
    kcu.table_name,
    kcu.column_name,
    ccu.table_schema,
    ccu.table_name,
    ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
    ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
    ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY kcu.table_schema, kcu.table_name, kcu.ordinal_position`,
	},
	"mysql": {
		driver:     "mysql",
		sizedTypes: map[string]bool{"varchar": true, "char": true},
		columnsQuery: `
SELECT
    '' AS table_schema,
    c.table_name,
    c.column_name,
    c.data_type,
    c.is_nullable,
    c.column_default,
    c.character_maximum_length,
    (c.column_key = 'PRI') AS is_primary
FROM information_schema.columns c
JOIN information_schema.tables t
    ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE t.table_schema = DATABASE()
  AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`,
		foreignKeysQuery: `
SELECT
    '' AS table_schema,
    k.table_name,
    k.column_name,
    '' AS referenced_table_schema,
    k.referenced_table_name,
    k.referenced_column_name
FROM information_schema.key_column_usage k
WHERE k.table_schema = DATABASE()
  AND k.referenced_table_name IS NOT NULL
ORDER BY k.table_name, k.ordinal_position`,
	},
}

func lookup(name string) (dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported dialect %q (want postgres or mysql)", name)
	}
	return d, nil
}

// Dialects lists the supported dialect names.
func Dialects() []string {
	return []string{"mysql", "postgres"}
}
