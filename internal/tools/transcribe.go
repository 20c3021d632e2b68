package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// TranscribeAudio converts compressed audio to WAV with ffmpeg when needed
// and posts the WAV to a speech-to-text endpoint. Intermediate files are
// removed after use.
type TranscribeAudio struct {
	workDir   WorkDir
	ffmpegBin string
	endpoint  string
	client    *http.Client
}

func NewTranscribeAudio(workDir WorkDir, ffmpegBin, endpoint string, client *http.Client) *TranscribeAudio {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TranscribeAudio{workDir: workDir, ffmpegBin: ffmpegBin, endpoint: endpoint, client: client}
}

func (t *TranscribeAudio) Name() string { return "transcribe_audio" }

func (t *TranscribeAudio) Description() string {
	return "Transcribe an audio file (wav or compressed) from the working area to text."
}

func (t *TranscribeAudio) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Audio file name inside the working area",
			},
		},
		"required":             []string{"file_path"},
		"additionalProperties": false,
	}
}

func (t *TranscribeAudio) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["file_path"].(string)
	path, err := t.workDir.Resolve(name)
	if err != nil {
		return nil, err
	}
	if t.endpoint == "" {
		return nil, fmt.Errorf("no transcription endpoint configured")
	}

	wavPath := path
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		converted, err := t.toWAV(ctx, path)
		if err != nil {
			return nil, err
		}
		wavPath = converted
		defer os.Remove(converted)
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription call: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read transcription: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("transcription status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	text := strings.TrimSpace(string(body))
	var parsed struct {
		Text string `json:"text"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Text != "" {
		text = parsed.Text
	}
	return map[string]any{"text": text}, nil
}

func (t *TranscribeAudio) toWAV(ctx context.Context, path string) (string, error) {
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
	cmd := exec.CommandContext(ctx, t.ffmpegBin, "-y", "-i", path, out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("audio conversion failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
