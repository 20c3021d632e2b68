package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// OCRImage extracts text from an image with the tesseract binary. The image
// may be a file name inside the working area or a data URL.
type OCRImage struct {
	workDir WorkDir
	bin     string
}

func NewOCRImage(workDir WorkDir, bin string) *OCRImage {
	if bin == "" {
		bin = "tesseract"
	}
	return &OCRImage{workDir: workDir, bin: bin}
}

func (t *OCRImage) Name() string { return "ocr_image" }

func (t *OCRImage) Description() string {
	return "Extract readable text from an image (file name in the working area or a data: URL)."
}

func (t *OCRImage) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"image": map[string]any{
				"type":        "string",
				"description": "Image file name or base64 data URL",
			},
			"lang": map[string]any{
				"type":        "string",
				"description": "OCR language code (default eng)",
			},
		},
		"required":             []string{"image"},
		"additionalProperties": false,
	}
}

func (t *OCRImage) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	image, _ := args["image"].(string)
	if strings.TrimSpace(image) == "" {
		return nil, fmt.Errorf("image is required")
	}
	lang, _ := args["lang"].(string)
	if lang == "" {
		lang = "eng"
	}

	path, cleanup, err := t.materialize(image)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	cmd := exec.CommandContext(ctx, t.bin, path, "stdout", "-l", lang)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ocr failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	return map[string]any{
		"text":   strings.TrimSpace(stdout.String()),
		"engine": "tesseract",
	}, nil
}

// materialize returns a readable file path for the image input, decoding
// data URLs into a temporary file when needed.
func (t *OCRImage) materialize(image string) (string, func(), error) {
	if !strings.HasPrefix(image, "data:") {
		path, err := t.workDir.Resolve(image)
		return path, nil, err
	}
	_, encoded, ok := strings.Cut(image, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	tmp, err := os.CreateTemp(t.workDir.Root(), "ocr-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("stage image: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("stage image: %w", err)
	}
	tmp.Close()
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
