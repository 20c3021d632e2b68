package tools

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
)

// CSVRead returns headers and rows from a CSV file, capped at max_rows.
type CSVRead struct {
	workDir WorkDir
}

func NewCSVRead(workDir WorkDir) *CSVRead { return &CSVRead{workDir: workDir} }

func (t *CSVRead) Name() string { return "read_csv" }

func (t *CSVRead) Description() string {
	return "Read a CSV file from the working area and return headers, rows and metadata."
}

func (t *CSVRead) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "CSV file name"},
			"max_rows":  map[string]any{"type": "integer", "description": "Row cap (default 100, -1 for all)"},
		},
		"required":             []string{"file_path"},
		"additionalProperties": false,
	}
}

func (t *CSVRead) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	headers, rows, err := readCSVFile(t.workDir, args["file_path"])
	if err != nil {
		return nil, err
	}

	maxRows := 100
	if v, ok := args["max_rows"].(float64); ok {
		maxRows = int(v)
	}
	total := len(rows)
	truncated := false
	if maxRows != -1 && len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}

	return map[string]any{
		"headers":       headers,
		"data":          rows,
		"total_rows":    total,
		"columns":       len(headers),
		"truncated":     truncated,
		"rows_returned": len(rows),
	}, nil
}

// CSVWrite creates or overwrites a CSV file in the working area.
type CSVWrite struct {
	workDir WorkDir
}

func NewCSVWrite(workDir WorkDir) *CSVWrite { return &CSVWrite{workDir: workDir} }

func (t *CSVWrite) Name() string { return "write_csv" }

func (t *CSVWrite) Description() string {
	return "Write headers and rows to a CSV file in the working area."
}

func (t *CSVWrite) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "CSV file name"},
			"headers":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"rows": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		"required":             []string{"file_path", "headers", "rows"},
		"additionalProperties": false,
	}
}

func (t *CSVWrite) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["file_path"].(string)
	path, err := t.workDir.Resolve(name)
	if err != nil {
		return nil, err
	}
	headers := stringSlice(args["headers"])
	if len(headers) == 0 {
		return nil, fmt.Errorf("headers is required")
	}
	var rows [][]string
	if raw, ok := args["rows"].([]any); ok {
		for _, r := range raw {
			rows = append(rows, stringSlice(r))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("write headers: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}

	return map[string]any{
		"status":       "ok",
		"file":         name,
		"rows_written": len(rows),
	}, nil
}

// CSVToJSON converts CSV rows to objects keyed by header.
type CSVToJSON struct {
	workDir WorkDir
}

func NewCSVToJSON(workDir WorkDir) *CSVToJSON { return &CSVToJSON{workDir: workDir} }

func (t *CSVToJSON) Name() string { return "csv_to_json" }

func (t *CSVToJSON) Description() string {
	return "Convert a CSV file to an array of objects keyed by the header row."
}

func (t *CSVToJSON) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "CSV file name"},
		},
		"required":             []string{"file_path"},
		"additionalProperties": false,
	}
}

func (t *CSVToJSON) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	headers, rows, err := readCSVFile(t.workDir, args["file_path"])
	if err != nil {
		return nil, err
	}
	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		rec := map[string]string{}
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return map[string]any{"records": records}, nil
}

// CSVStats summarizes a CSV file: dimensions, headers and sample values.
type CSVStats struct {
	workDir WorkDir
}

func NewCSVStats(workDir WorkDir) *CSVStats { return &CSVStats{workDir: workDir} }

func (t *CSVStats) Name() string { return "csv_stats" }

func (t *CSVStats) Description() string {
	return "Summarize a CSV file: row/column counts, headers and sample values per column."
}

func (t *CSVStats) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "CSV file name"},
		},
		"required":             []string{"file_path"},
		"additionalProperties": false,
	}
}

func (t *CSVStats) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	headers, rows, err := readCSVFile(t.workDir, args["file_path"])
	if err != nil {
		return nil, err
	}

	samples := map[string][]string{}
	for i, h := range headers {
		var vals []string
		for _, row := range rows {
			if i < len(row) && row[i] != "" {
				vals = append(vals, row[i])
				if len(vals) >= 3 {
					break
				}
			}
		}
		samples[h] = vals
	}

	name, _ := args["file_path"].(string)
	return map[string]any{
		"file":           name,
		"total_rows":     len(rows),
		"total_columns":  len(headers),
		"headers":        headers,
		"column_samples": samples,
	}, nil
}

func readCSVFile(workDir WorkDir, fileArg any) (headers []string, rows [][]string, err error) {
	name, _ := fileArg.(string)
	path, err := workDir.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%s is empty", name)
	}
	return all[0], all[1:], nil
}
