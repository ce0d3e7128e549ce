package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/simplepos/shell/pkg/migration"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "plain statements",
			script: "CREATE TABLE a (id INTEGER);\nCREATE TABLE b (id INTEGER);",
			want:   []string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (id INTEGER)"},
		},
		{
			name:   "semicolon in string literal",
			script: "INSERT INTO t VALUES ('a;b', 'it''s; fine');",
			want:   []string{"INSERT INTO t VALUES ('a;b', 'it''s; fine')"},
		},
		{
			name:   "quoted identifiers",
			script: `CREATE TABLE "order" ("na;me" TEXT); SELECT [x;y] FROM t`,
			want:   []string{`CREATE TABLE "order" ("na;me" TEXT)`, "SELECT [x;y] FROM t"},
		},
		{
			name:   "comments dropped",
			script: "-- leading; comment\nSELECT 1; /* block; */ SELECT 2;\n-- trailing",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name: "trigger body",
			script: `CREATE TRIGGER touch AFTER UPDATE ON t BEGIN
				UPDATE t SET n = CASE WHEN n > 0 THEN n ELSE 0 END WHERE id = NEW.id;
				INSERT INTO log VALUES (NEW.id);
			END;
			SELECT 1;`,
			want: []string{
				`CREATE TRIGGER touch AFTER UPDATE ON t BEGIN
				UPDATE t SET n = CASE WHEN n > 0 THEN n ELSE 0 END WHERE id = NEW.id;
				INSERT INTO log VALUES (NEW.id);
			END`,
				"SELECT 1",
			},
		},
		{
			name:   "transaction keywords are not trigger bodies",
			script: "BEGIN TRANSACTION; SELECT 1; END;",
			want:   []string{"BEGIN TRANSACTION", "SELECT 1", "END"},
		},
		{
			name:   "empty",
			script: " ;\n; -- nothing\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, migration.Split(tt.script))
		})
	}
}
