package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func csvFixture(t *testing.T) WorkDir {
	t.Helper()
	wd, err := NewWorkDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	data := "name,score\nalice,10\nbob,7\ncarol,\n"
	if err := os.WriteFile(filepath.Join(wd.Root(), "scores.csv"), []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return wd
}

func TestCSVReadHonorsMaxRows(t *testing.T) {
	wd := csvFixture(t)
	tool := NewCSVRead(wd)

	result, err := tool.Execute(context.Background(), map[string]any{
		"file_path": "scores.csv",
		"max_rows":  float64(2),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := result["total_rows"].(int); got != 3 {
		t.Fatalf("total_rows = %d, want 3", got)
	}
	if got := result["rows_returned"].(int); got != 2 {
		t.Fatalf("rows_returned = %d, want 2", got)
	}
	if !result["truncated"].(bool) {
		t.Fatal("expected truncated flag")
	}

	all, err := tool.Execute(context.Background(), map[string]any{
		"file_path": "scores.csv",
		"max_rows":  float64(-1),
	})
	if err != nil {
		t.Fatalf("Execute all rows: %v", err)
	}
	if got := all["rows_returned"].(int); got != 3 {
		t.Fatalf("max_rows=-1 rows_returned = %d, want 3", got)
	}
}

func TestCSVWriteThenRead(t *testing.T) {
	wd, err := NewWorkDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}

	write := NewCSVWrite(wd)
	result, err := write.Execute(context.Background(), map[string]any{
		"file_path": "out.csv",
		"headers":   []any{"id", "value"},
		"rows":      []any{[]any{"1", "a"}, []any{"2", "b"}},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := result["rows_written"].(int); got != 2 {
		t.Fatalf("rows_written = %d, want 2", got)
	}

	read := NewCSVRead(wd)
	back, err := read.Execute(context.Background(), map[string]any{"file_path": "out.csv"})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	headers := back["headers"].([]string)
	if len(headers) != 2 || headers[0] != "id" || headers[1] != "value" {
		t.Fatalf("headers = %v", headers)
	}
	rows := back["data"].([][]string)
	if len(rows) != 2 || rows[1][1] != "b" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestCSVToJSONPadsShortRows(t *testing.T) {
	wd, err := NewWorkDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	data := "a,b,c\n1,2\n"
	if err := os.WriteFile(filepath.Join(wd.Root(), "ragged.csv"), []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tool := NewCSVToJSON(wd)
	result, err := tool.Execute(context.Background(), map[string]any{"file_path": "ragged.csv"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	records := result["records"].([]map[string]string)
	if len(records) != 1 {
		t.Fatalf("records = %v", records)
	}
	if records[0]["a"] != "1" || records[0]["b"] != "2" || records[0]["c"] != "" {
		t.Fatalf("record = %v", records[0])
	}
}

func TestCSVStatsSamplesSkipEmptyValues(t *testing.T) {
	wd := csvFixture(t)
	tool := NewCSVStats(wd)

	result, err := tool.Execute(context.Background(), map[string]any{"file_path": "scores.csv"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := result["total_rows"].(int); got != 3 {
		t.Fatalf("total_rows = %d, want 3", got)
	}
	samples := result["column_samples"].(map[string][]string)
	if got := samples["score"]; len(got) != 2 || got[0] != "10" || got[1] != "7" {
		t.Fatalf("score samples = %v, empty values must be skipped", got)
	}
}

func TestCSVReadEmptyFile(t *testing.T) {
	wd, err := NewWorkDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wd.Root(), "empty.csv"), nil, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	tool := NewCSVRead(wd)
	if _, err := tool.Execute(context.Background(), map[string]any{"file_path": "empty.csv"}); err == nil {
		t.Fatal("expected empty file to error")
	}
}
