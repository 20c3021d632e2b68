package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	Identity   IdentityConfig `yaml:"identity"`
	Provider   ProviderConfig `yaml:"provider"`
	Limits     LimitsConfig   `yaml:"limits"`
	Tools      ToolsConfig    `yaml:"tools"`
}

// IdentityConfig carries the credentials included in every submission payload
// and the shared secret the front door checks before launching a chain.
type IdentityConfig struct {
	Email  string `yaml:"email"`
	Secret string `yaml:"secret"`
}

type ProviderConfig struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	BaseURL   string            `yaml:"base_url"`
	APIKeyEnv string            `yaml:"api_key_env"`
	Model     string            `yaml:"model"`
	Headers   map[string]string `yaml:"headers"`
	TimeoutMS int               `yaml:"timeout_ms"`

	// Rate limiting for the model gateway: RequestsPerWindow calls per
	// WindowMS rolling window, with a burst allowance of Burst.
	RequestsPerWindow int `yaml:"requests_per_window"`
	WindowMS          int `yaml:"window_ms"`
	Burst             int `yaml:"burst"`
}

type LimitsConfig struct {
	TaskTimeoutSec   int `yaml:"task_timeout_sec"`
	OffsetTimeoutSec int `yaml:"offset_timeout_sec"`
	MaxAttempts      int `yaml:"max_attempts"`
	MaxTransitions   int `yaml:"max_transitions"`
	MaxContextTokens int `yaml:"max_context_tokens"`
}

func (l LimitsConfig) TaskTimeout() time.Duration {
	return time.Duration(l.TaskTimeoutSec) * time.Second
}

func (l LimitsConfig) OffsetTimeout() time.Duration {
	return time.Duration(l.OffsetTimeoutSec) * time.Second
}

type ToolsConfig struct {
	// WorkDir is the isolated working area shared by the file-oriented tools.
	WorkDir string `yaml:"work_dir"`

	// Interpreter runs submitted code, e.g. ["python3"] or ["uv", "run"].
	// The script filename is appended as the final argument.
	Interpreter []string `yaml:"interpreter"`
	ScriptFile  string   `yaml:"script_file"`

	// Installer installs packages, e.g. ["pip", "install"] or ["uv", "add"].
	Installer []string `yaml:"installer"`

	TesseractBin string `yaml:"tesseract_bin"`
	FFmpegBin    string `yaml:"ffmpeg_bin"`

	// TranscribeURL is the speech-to-text endpoint WAV audio is posted to.
	TranscribeURL string `yaml:"transcribe_url"`

	PDFToTextBin string `yaml:"pdftotext_bin"`
	PDFInfoBin   string `yaml:"pdfinfo_bin"`
	PDFToPPMBin  string `yaml:"pdftoppm_bin"`
}

func Default() Config {
	return Config{
		ListenAddr: ":7860",
		Provider: ProviderConfig{
			Name:              "primary",
			Type:              "chat",
			Model:             "gemini-2.5-flash",
			APIKeyEnv:         "TASKCHAIN_API_KEY",
			TimeoutMS:         120000,
			RequestsPerWindow: 4,
			WindowMS:          60000,
			Burst:             4,
		},
		Limits: LimitsConfig{
			TaskTimeoutSec:   180,
			OffsetTimeoutSec: 90,
			MaxAttempts:      4,
			MaxTransitions:   5000,
			MaxContextTokens: 60000,
		},
		Tools: ToolsConfig{
			WorkDir:      "agentfiles",
			Interpreter:  []string{"python3"},
			ScriptFile:   "runner.py",
			Installer:    []string{"pip", "install"},
			TesseractBin: "tesseract",
			FFmpegBin:    "ffmpeg",
			PDFToTextBin: "pdftotext",
			PDFInfoBin:   "pdfinfo",
			PDFToPPMBin:  "pdftoppm",
		},
	}
}

func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if strings.TrimSpace(c.Identity.Secret) == "" {
		return fmt.Errorf("identity.secret is required (set it in the config file or TASKCHAIN_SECRET)")
	}
	if c.Provider.Type != "chat" && c.Provider.Type != "mock" {
		return fmt.Errorf("provider.type %q is unsupported (want chat or mock)", c.Provider.Type)
	}
	if c.Provider.Type == "chat" && strings.TrimSpace(c.Provider.BaseURL) == "" {
		return fmt.Errorf("provider.base_url is required for chat provider")
	}
	if c.Limits.TaskTimeoutSec <= 0 || c.Limits.OffsetTimeoutSec <= 0 {
		return fmt.Errorf("limits timeouts must be > 0")
	}
	if c.Limits.MaxAttempts <= 0 {
		return fmt.Errorf("limits.max_attempts must be > 0")
	}
	if c.Limits.MaxTransitions <= 0 {
		return fmt.Errorf("limits.max_transitions must be > 0")
	}
	if c.Limits.MaxContextTokens <= 0 {
		return fmt.Errorf("limits.max_context_tokens must be > 0")
	}
	if len(c.Tools.Interpreter) == 0 {
		return fmt.Errorf("tools.interpreter is required")
	}
	return nil
}
