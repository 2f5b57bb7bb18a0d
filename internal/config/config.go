// Package config loads the supervisor configuration from JSONC files and
// environment overrides. The result is an explicit struct handed to the
// components that need it; there is no package-level singleton.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// Config is the full supervisor configuration.
type Config struct {
	// AgentCommand is the child-process command line for the agent backend.
	AgentCommand []string `json:"agentCommand,omitempty"`
	// AgentEnv is extra environment passed to the agent process.
	AgentEnv map[string]string `json:"agentEnv,omitempty"`
	// AutoApprove enables the fully-automatic permission mode.
	AutoApprove bool `json:"autoApprove,omitempty"`
	// ContextBlocks are injected ahead of the first user message.
	ContextBlocks []string `json:"contextBlocks,omitempty"`
	// DataDir is the root of durable storage. Defaults to .agentgate under
	// the working directory.
	DataDir string `json:"dataDir,omitempty"`
	// HTTPAddr is the listen address of the HTTP surface. Empty disables it.
	HTTPAddr string `json:"httpAddr,omitempty"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty"`
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/agentgate/)
// 2. Project config (<directory>/agentgate.json[c] and .agentgate/)
// 3. AGENTGATE_CONFIG file
// 4. Environment variables
func Load(directory string) (*Config, error) {
	config := &Config{
		DataDir:  filepath.Join(directory, ".agentgate"),
		LogLevel: "info",
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadFile(path, config) == nil {
			loaded[absPath] = true
		}
	}

	if home := os.Getenv("HOME"); home != "" {
		globalDir := filepath.Join(home, ".config", "agentgate")
		loadOnce(filepath.Join(globalDir, "agentgate.json"))
		loadOnce(filepath.Join(globalDir, "agentgate.jsonc"))
	}

	if directory != "" {
		loadOnce(filepath.Join(directory, "agentgate.json"))
		loadOnce(filepath.Join(directory, "agentgate.jsonc"))
		projectDir := filepath.Join(directory, ".agentgate")
		loadOnce(filepath.Join(projectDir, "agentgate.json"))
		loadOnce(filepath.Join(projectDir, "agentgate.jsonc"))
	}

	if configPath := os.Getenv("AGENTGATE_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	applyEnvOverrides(config)

	return config, nil
}

// loadFile loads a single config file with {env:VAR} interpolation.
func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	merge(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate resolves {env:VAR_NAME} placeholders.
func interpolate(data []byte) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
	return []byte(str)
}

// merge overlays src onto dst. Later sources win per field.
func merge(dst, src *Config) {
	if len(src.AgentCommand) > 0 {
		dst.AgentCommand = src.AgentCommand
	}
	if len(src.AgentEnv) > 0 {
		if dst.AgentEnv == nil {
			dst.AgentEnv = make(map[string]string)
		}
		for k, v := range src.AgentEnv {
			dst.AgentEnv[k] = v
		}
	}
	if src.AutoApprove {
		dst.AutoApprove = true
	}
	if len(src.ContextBlocks) > 0 {
		dst.ContextBlocks = src.ContextBlocks
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.HTTPAddr != "" {
		dst.HTTPAddr = src.HTTPAddr
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// applyEnvOverrides applies AGENTGATE_* environment variables, the highest
// priority source.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("AGENTGATE_AGENT_COMMAND"); v != "" {
		config.AgentCommand = strings.Fields(v)
	}
	if v := os.Getenv("AGENTGATE_AUTO_APPROVE"); v != "" {
		config.AutoApprove = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("AGENTGATE_DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("AGENTGATE_HTTP_ADDR"); v != "" {
		config.HTTPAddr = v
	}
	if v := os.Getenv("AGENTGATE_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
}
