package mysql

import (
	"context"
	"strings"
	"testing"
)

func TestInsertSQL(t *testing.T) {
	q, args, err := insertSQL("audit.v", []string{"a", "b"}, [][]any{{1, "x"}, {2, "y"}})
	if err != nil {
		t.Fatalf("insertSQL: %v", err)
	}
	if want := "INSERT INTO `audit`.`v` (`a`,`b`) VALUES (?,?),(?,?)"; q != want {
		t.Fatalf("q=%s; want %s", q, want)
	}
	if len(args) != 4 || args[3] != "y" {
		t.Fatalf("args=%v", args)
	}

	if _, _, err := insertSQL("v", []string{"a", "b"}, [][]any{{1}}); err == nil {
		t.Fatalf("short row: err=nil")
	}
}

func TestChunkRows(t *testing.T) {
	rows := make([][]any, 7)
	chunks := chunkRows(rows, 3)
	if len(chunks) != 3 || len(chunks[0]) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("chunks=%d sizes %d..%d", len(chunks), len(chunks[0]), len(chunks[len(chunks)-1]))
	}
	if got := chunkRows(rows, 0); len(got) != 7 {
		t.Fatalf("size 0 → %d chunks; want 7", len(got))
	}
}

func TestDialect(t *testing.T) {
	sql, err := Dialect.CreateViolationsTable("v")
	if err != nil || !strings.HasPrefix(sql, "CREATE TABLE IF NOT EXISTS `v`") || !strings.Contains(sql, "`code` VARCHAR(255) NOT NULL") {
		t.Fatalf("sql=%s err=%v", sql, err)
	}
}

func TestNewRepository_BadDSN(t *testing.T) {
	if _, err := NewRepository(context.Background(), "not a dsn", "v"); err == nil || !strings.Contains(err.Error(), "mysql dsn") {
		t.Fatalf("err=%v; want dsn error", err)
	}
}
