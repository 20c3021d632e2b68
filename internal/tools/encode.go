package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"taskchain/internal/artifact"
)

// EncodeFile base64-encodes a file from the working area and stores the
// result in the artifact store. The model only ever sees the reference key;
// the submission protocol swaps in the encoded payload at transmission time.
type EncodeFile struct {
	workDir WorkDir
	store   *artifact.Store
}

func NewEncodeFile(workDir WorkDir, store *artifact.Store) *EncodeFile {
	return &EncodeFile{workDir: workDir, store: store}
}

func (t *EncodeFile) Name() string { return "encode_image_to_base64" }

func (t *EncodeFile) Description() string {
	return "Base64-encode a file from the working area. Returns a compact reference key, never the encoded content; use the key directly as an answer value."
}

func (t *EncodeFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"image_path": map[string]any{
				"type":        "string",
				"description": "File name inside the working area",
			},
		},
		"required":             []string{"image_path"},
		"additionalProperties": false,
	}
}

func (t *EncodeFile) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["image_path"].(string)
	path, err := t.workDir.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	ref := t.store.Put(base64.StdEncoding.EncodeToString(data))
	return map[string]any{"ref": ref}, nil
}
