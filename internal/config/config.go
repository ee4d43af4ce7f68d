// Package config holds all toolforge configuration. Settings come from an
// optional YAML file, environment overrides, and CLI flags, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// OutputFormat names the rendering applied to the final answer.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
	FormatCSV      OutputFormat = "csv"
	FormatText     OutputFormat = "text"
)

// Extension returns the file extension for the answer file.
func (f OutputFormat) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatJSON:
		return ".json"
	case FormatCSV:
		return ".csv"
	case FormatText:
		return ".txt"
	}
	return ".txt"
}

func (f OutputFormat) valid() bool {
	switch f {
	case FormatMarkdown, FormatJSON, FormatCSV, FormatText:
		return true
	}
	return false
}

// LLMConfig configures the language-model collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// Settings is the full runtime configuration handed to the workflow engine.
type Settings struct {
	SandboxPath string `yaml:"sandbox_path"`
	CleanRun    bool   `yaml:"clean_run"`
	Branch      string `yaml:"branch"`

	Interactive bool `yaml:"interactive"`
	// ReviewTools forces a review pass over every planned tool, including
	// ones that already exist on disk.
	ReviewTools bool `yaml:"review_tools"`

	OutputFormat OutputFormat `yaml:"output_format"`
	OutputFile   string       `yaml:"output_file"`
	StatePath    string       `yaml:"state_path"`

	// MaxIterations bounds total node executions per run.
	MaxIterations int `yaml:"max_iterations"`

	Verbosity int `yaml:"verbosity"`

	LLM LLMConfig `yaml:"llm"`

	// BaseDependencies are module paths every sandbox carries regardless
	// of what the generated tools declare.
	BaseDependencies []string `yaml:"base_dependencies"`
}

// Default returns the settings used when nothing else is configured.
func Default() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		SandboxPath:   filepath.Join(home, ".toolforge", "sandbox"),
		OutputFormat:  FormatMarkdown,
		StatePath:     "state.json",
		MaxIterations: 25,
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
		},
	}
}

// Load reads settings from a YAML file, layered over the defaults.
// A missing file is not an error.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse config %s: %w", path, err)
	}
	return s, nil
}

// ApplyEnv overlays environment variables onto the settings.
func (s *Settings) ApplyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && s.LLM.APIKey == "" {
		s.LLM.APIKey = v
	}
	if v := os.Getenv("TOOLFORGE_API_KEY"); v != "" {
		s.LLM.APIKey = v
	}
	if v := os.Getenv("TOOLFORGE_MODEL"); v != "" {
		s.LLM.Model = v
	}
	if v := os.Getenv("TOOLFORGE_SANDBOX"); v != "" {
		s.SandboxPath = v
	}
	if v := os.Getenv("TOOLFORGE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxIterations = n
		}
	}
}

// Validate rejects settings the engine cannot run with.
func (s *Settings) Validate() error {
	if s.SandboxPath == "" {
		return fmt.Errorf("sandbox path is required")
	}
	if !s.OutputFormat.valid() {
		return fmt.Errorf("unknown output format %q", s.OutputFormat)
	}
	if s.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", s.MaxIterations)
	}
	return nil
}

// AnswerPath returns the path the final answer is written to.
func (s *Settings) AnswerPath() string {
	if s.OutputFile != "" {
		return s.OutputFile
	}
	return "final_result" + s.OutputFormat.Extension()
}
