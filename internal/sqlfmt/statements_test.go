package sqlfmt

import (
	"slices"
	"testing"
)

func TestStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"single", "select 1", []string{"SELECT"}},
		{"several", "DROP TABLE a; create table b (id int);\nINSERT INTO b VALUES (1)", []string{"DROP", "CREATE", "INSERT"}},
		{"empty statements", ";; select 1;;", []string{"SELECT"}},
		{"leading comment", "-- nightly cleanup\n/* v2 */ DELETE FROM t", []string{"DELETE"}},
		{"cte select", "WITH recent AS (SELECT * FROM o WHERE d > now() - interval '1 day') SELECT count(*) FROM recent", []string{"SELECT"}},
		{"cte delete", "with old as (select id from t) delete from t where id in (select id from old)", []string{"DELETE"}},
		{"semicolon in string", "SELECT 'a;b'", []string{"SELECT"}},
		{"parenthesised", "(SELECT 1) UNION (SELECT 2)", []string{"UNKNOWN"}},
		{"nothing", "  -- only a comment\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Statements(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Statements() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatements_Unterminated(t *testing.T) {
	if _, err := Statements("SELECT 'open"); err == nil {
		t.Error("expected error for unterminated literal")
	}
}
