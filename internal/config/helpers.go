package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/target"
)

// HomeEnv overrides the default home directory.
const HomeEnv = "CRUCIBLE_HOME"

// DefaultHomeDir returns the default crucible home directory: $CRUCIBLE_HOME
// when set, otherwise ~/.crucible, or a temporary directory if the user home
// cannot be determined.
func DefaultHomeDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".crucible")
	}
	return filepath.Join(userHome, ".crucible")
}

// DefaultConfigPath returns the default config file path for a given home directory
func DefaultConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

const redactedValue = "********"

var secretHeaderHints = []string{"auth", "key", "token", "secret", "cookie"}

// Redacted returns a copy of cfg that is safe to print: provider API keys
// and credential-looking HTTP headers are masked. cfg is not modified.
func Redacted(cfg *Config) *Config {
	out := *cfg

	out.LLM.Providers = make(map[string]llm.ProviderConfig, len(cfg.LLM.Providers))
	for name, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			p.APIKey = redactedValue
		}
		out.LLM.Providers[name] = p
	}

	out.Targets = make(map[string]target.Spec, len(cfg.Targets))
	for name, spec := range cfg.Targets {
		if len(spec.HTTP.Headers) > 0 {
			headers := make(map[string]string, len(spec.HTTP.Headers))
			for k, v := range spec.HTTP.Headers {
				if isSecretHeader(k) {
					v = redactedValue
				}
				headers[k] = v
			}
			spec.HTTP.Headers = headers
		}
		out.Targets[name] = spec
	}
	return &out
}

func isSecretHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range secretHeaderHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
