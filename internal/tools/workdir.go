package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkDir is the isolated working area shared by the file-oriented tools.
// Model-supplied paths are resolved inside it; traversal outside is rejected.
type WorkDir struct {
	root string
}

func NewWorkDir(root string) (WorkDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return WorkDir{}, fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return WorkDir{}, fmt.Errorf("create work dir: %w", err)
	}
	return WorkDir{root: abs}, nil
}

func (w WorkDir) Root() string { return w.root }

// Resolve maps a model-supplied relative name to an absolute path inside the
// working area.
func (w WorkDir) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	full := filepath.Join(w.root, filepath.Clean("/"+name))
	rel, err := filepath.Rel(w.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working area", name)
	}
	return full, nil
}
