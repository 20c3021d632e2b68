package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"taskchain/internal/config"
)

const maxStreamChars = 10000

// RunCode writes submitted source to a script file in the working area and
// runs it with the configured interpreter in an isolated subprocess.
type RunCode struct {
	workDir WorkDir
	cfg     config.ToolsConfig
}

func NewRunCode(workDir WorkDir, cfg config.ToolsConfig) *RunCode {
	return &RunCode{workDir: workDir, cfg: cfg}
}

func (t *RunCode) Name() string { return "run_code" }

func (t *RunCode) Description() string {
	return "Execute source code in an isolated subprocess and return stdout, stderr and the exit code."
}

func (t *RunCode) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "Source code to execute",
			},
		},
		"required":             []string{"code"},
		"additionalProperties": false,
	}
}

func (t *RunCode) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	code, _ := args["code"].(string)
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code is required")
	}

	if len(t.cfg.Interpreter) == 0 {
		return nil, fmt.Errorf("no interpreter configured")
	}
	scriptName := t.cfg.ScriptFile
	if scriptName == "" {
		scriptName = "runner.py"
	}
	scriptPath, err := t.workDir.Resolve(scriptName)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(scriptPath, []byte(stripCodeFences(code)), 0o644); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}

	argv := append(append([]string(nil), t.cfg.Interpreter...), scriptName)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.workDir.Root()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return map[string]any{
				"stdout":      "",
				"stderr":      runErr.Error(),
				"return_code": -1,
			}, nil
		}
	}

	return map[string]any{
		"stdout":      truncateStream(stdout.String()),
		"stderr":      truncateStream(stderr.String()),
		"return_code": exitCode,
	}, nil
}

// Models frequently wrap code in markdown fences; strip them before running.
func stripCodeFences(code string) string {
	code = strings.TrimSpace(code)
	if strings.HasPrefix(code, "```") {
		if _, rest, ok := strings.Cut(code, "\n"); ok {
			code = rest
		}
	}
	if strings.HasSuffix(code, "```") {
		if idx := strings.LastIndex(code, "\n"); idx >= 0 {
			code = code[:idx]
		}
	}
	return strings.TrimSpace(code)
}

func truncateStream(s string) string {
	if len(s) < maxStreamChars {
		return s
	}
	return s[:maxStreamChars] + "...truncated due to large size"
}

// AddDependencies installs packages with the configured installer command.
type AddDependencies struct {
	workDir WorkDir
	cfg     config.ToolsConfig
}

func NewAddDependencies(workDir WorkDir, cfg config.ToolsConfig) *AddDependencies {
	return &AddDependencies{workDir: workDir, cfg: cfg}
}

func (t *AddDependencies) Name() string { return "add_dependencies" }

func (t *AddDependencies) Description() string {
	return "Install packages needed by submitted code."
}

func (t *AddDependencies) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dependencies": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Package names to install",
			},
		},
		"required":             []string{"dependencies"},
		"additionalProperties": false,
	}
}

func (t *AddDependencies) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	packages := stringSlice(args["dependencies"])
	if len(packages) == 0 {
		return nil, fmt.Errorf("dependencies is required")
	}
	if len(t.cfg.Installer) == 0 {
		return nil, fmt.Errorf("no installer configured")
	}

	argv := append(append([]string(nil), t.cfg.Installer...), packages...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.workDir.Root()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		result := map[string]any{
			"error":  fmt.Sprintf("dependency installation failed: %v", err),
			"stderr": truncateStream(stderr.String()),
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			result["exit_code"] = exitErr.ExitCode()
		}
		return result, nil
	}

	return map[string]any{
		"status":   "ok",
		"packages": packages,
	}, nil
}

func stringSlice(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
