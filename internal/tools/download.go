package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// DownloadFile streams a remote file into the working area.
type DownloadFile struct {
	client  *http.Client
	workDir WorkDir
}

func NewDownloadFile(client *http.Client, workDir WorkDir) *DownloadFile {
	if client == nil {
		client = http.DefaultClient
	}
	return &DownloadFile{client: client, workDir: workDir}
}

func (t *DownloadFile) Name() string { return "download_file" }

func (t *DownloadFile) Description() string {
	return "Download a remote file and save it under the given filename in the working area."
}

func (t *DownloadFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Remote file URL",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Name for the saved file",
			},
		},
		"required":             []string{"url", "filename"},
		"additionalProperties": false,
	}
}

func (t *DownloadFile) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	fileURL, _ := args["url"].(string)
	filename, _ := args["filename"].(string)
	if strings.TrimSpace(fileURL) == "" || strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("url and filename are required")
	}

	path, err := t.workDir.Resolve(filename)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error downloading file: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("error downloading file: status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error saving file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return nil, fmt.Errorf("error saving file: %w", err)
	}

	return map[string]any{"filename": filename}, nil
}
