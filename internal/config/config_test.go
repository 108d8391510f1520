package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/score"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/types"
)

const sampleConfig = `
core:
  home_dir: /tmp/crucible-test
database:
  path: /tmp/crucible-test/memory.db
  busy_timeout: 2s
logging:
  level: debug
  format: json
llm:
  providers:
    openai:
      type: openai
      api_key: ${CRUCIBLE_TEST_KEY}
      default_model: gpt-4o
      temperature: 0.7
    judge:
      type: mock
      responses:
        - '{"value": "True", "rationale": "ok", "description": "d"}'
targets:
  victim:
    type: chat
    provider: openai
    system_prompt_unused: ignored
  scorer_chat:
    type: chat
    provider: judge
  site:
    type: http
    http:
      url: https://example.com/chat
      method: POST
      body_template: '{"q": {{ .prompt | printf "%q" }}}'
      response_jsonpath: $.answer
scorers:
  jailbreak:
    type: true_false
    rubric: prompt_injection
    target: scorer_chat
transformers:
  - type: base64
  - type: case
    options:
      mode: upper
attack:
  target: victim
  attacker: victim
  attacker_mode: crescendo
  scorer: jailbreak
  max_turns: 8
  max_backtracks: 2
  threshold: 0.5
  labels:
    op: red
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("CRUCIBLE_TEST_KEY", "sk-test")

	cfg, err := NewConfigLoader(NewValidator()).Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/crucible-test", cfg.Core.HomeDir)
	assert.Equal(t, 2*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, 10, cfg.Database.MaxConnections, "unset fields keep their defaults")
	assert.Equal(t, "json", cfg.Logging.Format)

	openai := cfg.LLM.Providers["openai"]
	assert.Equal(t, llm.ProviderOpenAI, openai.Type)
	assert.Equal(t, "sk-test", openai.APIKey)
	assert.InDelta(t, 0.7, openai.Temperature, 1e-9)
	assert.Len(t, cfg.LLM.Providers["judge"].Responses, 1)

	require.Contains(t, cfg.Targets, "console", "default target survives")
	assert.Equal(t, target.TypeChat, cfg.Targets["victim"].Type)
	site := cfg.Targets["site"]
	assert.Equal(t, "https://example.com/chat", site.HTTP.URL)
	assert.Equal(t, "$.answer", site.HTTP.ResponseJSONPath)

	require.Contains(t, cfg.Scorers, "jailbreak")
	assert.Equal(t, "true_false", cfg.Scorers["jailbreak"].Type)
	assert.Equal(t, "prompt_injection", cfg.Scorers["jailbreak"].Rubric)
	assert.Equal(t, "scorer_chat", cfg.Scorers["jailbreak"].Target)

	require.Len(t, cfg.Transformers, 2)
	assert.Equal(t, "case", cfg.Transformers[1].Type)
	assert.Equal(t, "upper", cfg.Transformers[1].Options["mode"])

	assert.Equal(t, "crescendo", cfg.Attack.AttackerMode)
	assert.Equal(t, 8, cfg.Attack.MaxTurns)
	assert.Equal(t, 2, cfg.Attack.MaxBacktracks)
	assert.InDelta(t, 0.5, cfg.Attack.Threshold, 1e-9)
	assert.Equal(t, 4, cfg.Attack.Concurrency)
	assert.Equal(t, llm.DefaultRetryPolicy(), cfg.Attack.Retry)
	assert.Equal(t, map[string]string{"op": "red"}, cfg.Attack.Labels)
}

func TestLoad_UnsetVariableKeepsReference(t *testing.T) {
	assert.Equal(t, "key: ${CRUCIBLE_SURELY_UNSET}", interpolateString("key: ${CRUCIBLE_SURELY_UNSET}"))

	t.Setenv("CRUCIBLE_SET", "v")
	assert.Equal(t, "a=v b=v", interpolateString("a=${CRUCIBLE_SET} b=${CRUCIBLE_SET}"))
}

func TestLoad_Errors(t *testing.T) {
	loader := NewConfigLoader(NewValidator())

	_, err := loader.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, types.HasCode(err, types.CONFIG_NOT_FOUND))

	_, err = loader.Load(writeConfig(t, "core: [unterminated"))
	assert.True(t, types.HasCode(err, types.CONFIG_PARSE_FAILED))

	_, err = loader.Load(writeConfig(t, "attack:\n  max_turns: 0\n"))
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.CONFIG_VALIDATION_FAILED))
	assert.Contains(t, err.Error(), "attack.max_turns must be at least 1")
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := NewConfigLoader(NewValidator()).LoadWithDefaults(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Attack, cfg.Attack)
	assert.Equal(t, target.TypeText, cfg.Targets["console"].Type)
}

func TestValidate_References(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown attack target",
			mutate: func(c *Config) { c.Attack.Target = "nowhere" },
			want:   `attack.target refers to unknown entry "nowhere"`,
		},
		{
			name:   "unknown scorer",
			mutate: func(c *Config) { c.Attack.Scorer = "judge" },
			want:   `attack.scorer refers to unknown entry "judge"`,
		},
		{
			name: "scorer target missing",
			mutate: func(c *Config) {
				c.Scorers["judge"] = ScorerConfig{Spec: score.Spec{Type: "true_false"}, Target: "llm"}
			},
			want: `scorers.judge.target refers to unknown entry "llm"`,
		},
		{
			name:   "chat target without provider",
			mutate: func(c *Config) { c.Targets["bot"] = target.Spec{Type: target.TypeChat} },
			want:   "targets.bot.provider is required for chat targets",
		},
		{
			name:   "http target without url",
			mutate: func(c *Config) { c.Targets["site"] = target.Spec{Type: target.TypeHTTP} },
			want:   "targets.site.http.url is required for http targets",
		},
		{
			name:   "unknown transformer provider",
			mutate: func(c *Config) { c.LLM.Transformer = "gpt" },
			want:   `llm.transformer refers to unknown entry "gpt"`,
		},
		{
			name:   "bad attacker mode",
			mutate: func(c *Config) { c.Attack.AttackerMode = "tree" },
			want:   "attack.attacker_mode must be one of [chat crescendo]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			require.Error(t, err)
			assert.True(t, types.HasCode(err, types.CONFIG_VALIDATION_FAILED))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	assert.Error(t, NewValidator().Validate(nil))
}

func TestCamelToSnake(t *testing.T) {
	assert.Equal(t, "max_turns", camelToSnake("MaxTurns"))
	assert.Equal(t, "llm", camelToSnake("LLM"))
	assert.Equal(t, "http", camelToSnake("HTTP"))
	assert.Equal(t, "response_json_path", camelToSnake("ResponseJSONPath"))
	assert.Equal(t, "targets[site]", camelToSnake("Targets[site]"))
	assert.Equal(t, "attack.max_turns", formatFieldPath("Config.Attack.MaxTurns"))
}

func TestDefaultHomeDir(t *testing.T) {
	t.Setenv(HomeEnv, "/srv/crucible")
	assert.Equal(t, "/srv/crucible", DefaultHomeDir())
	assert.Equal(t, filepath.Join("/srv/crucible", "config.yaml"), DefaultConfigPath(DefaultHomeDir()))

	t.Setenv(HomeEnv, "")
	assert.Equal(t, ".crucible", filepath.Base(DefaultHomeDir()))
}

func TestRedacted(t *testing.T) {
	t.Setenv("CRUCIBLE_TEST_KEY", "sk-secret")
	cfg, err := NewConfigLoader(NewValidator()).Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	site := cfg.Targets["site"]
	site.HTTP.Headers = map[string]string{"Authorization": "Bearer abc", "X-Api-Key": "k", "Accept": "application/json"}
	cfg.Targets["site"] = site

	red := Redacted(cfg)
	assert.Equal(t, "********", red.LLM.Providers["openai"].APIKey)
	assert.Empty(t, red.LLM.Providers["judge"].APIKey)
	assert.Equal(t, map[string]string{
		"Authorization": "********",
		"X-Api-Key":     "********",
		"Accept":        "application/json",
	}, red.Targets["site"].HTTP.Headers)

	assert.Equal(t, "sk-secret", cfg.LLM.Providers["openai"].APIKey, "original is untouched")
	assert.Equal(t, "Bearer abc", cfg.Targets["site"].HTTP.Headers["Authorization"])
}

func TestLoad_APIKeyFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := NewConfigLoader(NewValidator()).Load(writeConfig(t, `
llm:
  providers:
    claude:
      type: anthropic
      default_model: claude-3-haiku-20240307
    gpt:
      type: openai
      api_key: sk-file
      default_model: gpt-4o
    local:
      type: ollama
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", cfg.LLM.Providers["claude"].APIKey)
	assert.Equal(t, "sk-file", cfg.LLM.Providers["gpt"].APIKey, "explicit key wins")
	assert.Empty(t, cfg.LLM.Providers["local"].APIKey)
}
