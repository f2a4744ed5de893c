package migrate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "two statements",
			sql:  "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);",
			want: []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name: "missing trailing semicolon",
			sql:  "SELECT 1",
			want: []string{"SELECT 1"},
		},
		{
			name: "comment only statements dropped",
			sql:  "-- header\n;\n/* block */;\nSELECT 1;\n-- trailing",
			want: []string{"SELECT 1"},
		},
		{
			name: "semicolon inside string",
			sql:  "INSERT INTO t VALUES ('a;b');SELECT 2;",
			want: []string{"INSERT INTO t VALUES ('a;b')", "SELECT 2"},
		},
		{
			name: "escaped quote",
			sql:  "INSERT INTO t VALUES ('it''s; fine');",
			want: []string{"INSERT INTO t VALUES ('it''s; fine')"},
		},
		{
			name: "semicolon inside line comment",
			sql:  "SELECT 1 -- a; b\n;",
			want: []string{"SELECT 1 -- a; b"},
		},
		{
			name: "dollar quoted body",
			sql:  "CREATE FUNCTION f() RETURNS void AS $$ BEGIN PERFORM 1; END; $$ LANGUAGE plpgsql;SELECT 3;",
			want: []string{
				"CREATE FUNCTION f() RETURNS void AS $$ BEGIN PERFORM 1; END; $$ LANGUAGE plpgsql",
				"SELECT 3",
			},
		},
		{
			name: "tagged dollar quote",
			sql:  "DO $body$ BEGIN RAISE NOTICE 'x;'; END $body$;",
			want: []string{"DO $body$ BEGIN RAISE NOTICE 'x;'; END $body$"},
		},
		{
			name: "leading comment kept with statement",
			sql:  "-- create users\nCREATE TABLE u (id INT);",
			want: []string{"-- create users\nCREATE TABLE u (id INT)"},
		},
		{
			name: "empty input",
			sql:  "  \n\t",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.sql)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SplitStatements() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
