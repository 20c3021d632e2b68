package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"taskchain/internal/config"
)

// The PDF tools shell out to the poppler utilities, same idiom as OCR.

type PDFText struct {
	workDir WorkDir
	bin     string
}

func NewPDFText(workDir WorkDir, cfg config.ToolsConfig) *PDFText {
	bin := cfg.PDFToTextBin
	if bin == "" {
		bin = "pdftotext"
	}
	return &PDFText{workDir: workDir, bin: bin}
}

func (t *PDFText) Name() string { return "extract_text_from_pdf" }

func (t *PDFText) Description() string {
	return "Extract text from a PDF in the working area, optionally limited to a page range."
}

func (t *PDFText) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path":  map[string]any{"type": "string", "description": "PDF file name"},
			"first_page": map[string]any{"type": "integer", "description": "1-based first page (optional)"},
			"last_page":  map[string]any{"type": "integer", "description": "1-based last page (optional)"},
		},
		"required":             []string{"file_path"},
		"additionalProperties": false,
	}
}

func (t *PDFText) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["file_path"].(string)
	path, err := t.workDir.Resolve(name)
	if err != nil {
		return nil, err
	}

	argv := []string{}
	if v, ok := args["first_page"].(float64); ok && v > 0 {
		argv = append(argv, "-f", strconv.Itoa(int(v)))
	}
	if v, ok := args["last_page"].(float64); ok && v > 0 {
		argv = append(argv, "-l", strconv.Itoa(int(v)))
	}
	argv = append(argv, path, "-")

	out, err := runPDFTool(ctx, t.bin, argv)
	if err != nil {
		return nil, err
	}
	return map[string]any{"text": out}, nil
}

type PDFInfo struct {
	workDir WorkDir
	bin     string
}

func NewPDFInfo(workDir WorkDir, cfg config.ToolsConfig) *PDFInfo {
	bin := cfg.PDFInfoBin
	if bin == "" {
		bin = "pdfinfo"
	}
	return &PDFInfo{workDir: workDir, bin: bin}
}

func (t *PDFInfo) Name() string { return "get_pdf_info" }

func (t *PDFInfo) Description() string {
	return "Return metadata for a PDF in the working area (title, pages, dimensions)."
}

func (t *PDFInfo) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "PDF file name"},
		},
		"required":             []string{"file_path"},
		"additionalProperties": false,
	}
}

func (t *PDFInfo) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["file_path"].(string)
	path, err := t.workDir.Resolve(name)
	if err != nil {
		return nil, err
	}
	out, err := runPDFTool(ctx, t.bin, []string{path})
	if err != nil {
		return nil, err
	}

	info := map[string]any{}
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		info[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return map[string]any{"file": name, "info": info}, nil
}

type PDFTables struct {
	workDir WorkDir
	bin     string
}

func NewPDFTables(workDir WorkDir, cfg config.ToolsConfig) *PDFTables {
	bin := cfg.PDFToTextBin
	if bin == "" {
		bin = "pdftotext"
	}
	return &PDFTables{workDir: workDir, bin: bin}
}

func (t *PDFTables) Name() string { return "extract_pdf_tables" }

func (t *PDFTables) Description() string {
	return "Extract tabular rows from a PDF using layout-preserving text extraction."
}

func (t *PDFTables) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "PDF file name"},
		},
		"required":             []string{"file_path"},
		"additionalProperties": false,
	}
}

func (t *PDFTables) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["file_path"].(string)
	path, err := t.workDir.Resolve(name)
	if err != nil {
		return nil, err
	}
	out, err := runPDFTool(ctx, t.bin, []string{"-layout", path, "-"})
	if err != nil {
		return nil, err
	}

	// Rows with two or more column gaps (runs of spaces) look tabular.
	var rows [][]string
	for _, line := range strings.Split(out, "\n") {
		cells := splitColumns(line)
		if len(cells) >= 2 {
			rows = append(rows, cells)
		}
	}
	return map[string]any{"rows": rows, "row_count": len(rows)}, nil
}

func splitColumns(line string) []string {
	var cells []string
	for _, cell := range strings.Split(line, "  ") {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			cells = append(cells, cell)
		}
	}
	return cells
}

type PDFImages struct {
	workDir WorkDir
	bin     string
}

func NewPDFImages(workDir WorkDir, cfg config.ToolsConfig) *PDFImages {
	bin := cfg.PDFToPPMBin
	if bin == "" {
		bin = "pdftoppm"
	}
	return &PDFImages{workDir: workDir, bin: bin}
}

func (t *PDFImages) Name() string { return "pdf_to_images" }

func (t *PDFImages) Description() string {
	return "Render PDF pages to PNG images in the working area and return their file names."
}

func (t *PDFImages) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "PDF file name"},
		},
		"required":             []string{"file_path"},
		"additionalProperties": false,
	}
}

func (t *PDFImages) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["file_path"].(string)
	path, err := t.workDir.Resolve(name)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(name, filepath.Ext(name)) + "-page"
	prefixPath, err := t.workDir.Resolve(prefix)
	if err != nil {
		return nil, err
	}
	if _, err := runPDFTool(ctx, t.bin, []string{"-png", path, prefixPath}); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(prefixPath + "*.png")
	if err != nil {
		return nil, fmt.Errorf("list page images: %w", err)
	}
	images := make([]string, 0, len(matches))
	for _, m := range matches {
		images = append(images, filepath.Base(m))
	}
	return map[string]any{"images": images, "count": len(images)}, nil
}

func runPDFTool(ctx context.Context, bin string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s failed: %v: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
