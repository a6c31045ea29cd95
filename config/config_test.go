package config

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "autolecture/pkg/errors"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfigPath(t *testing.T, configPath string) {
	t.Helper()
	old := resolveConfigPath
	resolveConfigPath = func() (string, error) { return configPath, nil }
	t.Cleanup(func() { resolveConfigPath = old })
}

func validConfig() Config {
	cfg := defaultConfig()
	cfg.Summary.ApiKey = "lilys-key"
	cfg.Llm.ApiKey = "gemini-key"
	return cfg
}

func TestLoadOrCreateConfigMissingCreatesDefault(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config", "config.toml")
	useConfigPath(t, configPath)

	created, err := LoadOrCreateConfig()
	require.NoError(t, err)
	assert.True(t, created)

	var got Config
	_, err = toml.DecodeFile(configPath, &got)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", got.Server.Host)
	assert.Equal(t, 8888, got.Server.Port)
	assert.Equal(t, 10, got.Summary.MaxPollAttempts)
	assert.Equal(t, ".pdf", got.Workflow.Slides.Site.Extension)
}

func TestLoadOrCreateConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	useConfigPath(t, configPath)

	content := `
[server]
port = 9999

[workflow.slides.site.locators]
generate = "css:button.generate"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	created, err := LoadOrCreateConfig()
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 9999, Conf.Server.Port)
	assert.Equal(t, "127.0.0.1", Conf.Server.Host)
	assert.Equal(t, "css:button.generate", Conf.Workflow.Slides.Site.Locators["generate"])
	assert.Equal(t, "rename", Conf.Output.Collision)
}

func TestLoadOrCreateConfigAppliesEnvironment(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	useConfigPath(t, configPath)

	t.Setenv("LILYS_AI_API_KEY", "from-env")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("AUTOLECTURE_REDIS_ADDR", "redis:6380")

	_, err := LoadOrCreateConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", Conf.Summary.ApiKey)
	assert.Equal(t, "google-key", Conf.Llm.ApiKey)
	assert.Equal(t, "redis:6380", Conf.Redis.Addr)
}

func TestLoadOrCreateConfigEnvironmentOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	useConfigPath(t, configPath)

	content := `
[summary]
api_key = "from-file"

[llm]
api_key = "llm-from-file"

[redis]
addr = "file-redis:6379"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	t.Setenv("LILYS_AI_API_KEY", "from-env")
	t.Setenv("GEMINI_API_KEY", "  ")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("AUTOLECTURE_REDIS_ADDR", "")

	_, err := LoadOrCreateConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", Conf.Summary.ApiKey)
	assert.Equal(t, "llm-from-file", Conf.Llm.ApiKey)
	assert.Equal(t, "file-redis:6379", Conf.Redis.Addr)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AUTOLECTURE_DOTENV_PROBE=loaded\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("AUTOLECTURE_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("AUTOLECTURE_DOTENV_PROBE"))
}

func TestSaveConfigCreatesParentDirs(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "deep", "nest", "config.toml")
	useConfigPath(t, configPath)

	Conf = defaultConfig()
	Conf.Server.Port = 9999
	require.NoError(t, SaveConfig())

	var got Config
	_, err := toml.DecodeFile(configPath, &got)
	require.NoError(t, err)
	assert.Equal(t, 9999, got.Server.Port)
}

func TestCheckConfig(t *testing.T) {
	original := Conf
	t.Cleanup(func() { Conf = original })

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode int
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing summary key", mutate: func(c *Config) { c.Summary.ApiKey = "" }, wantCode: apperrors.CodeMissingCredentials},
		{name: "missing llm key", mutate: func(c *Config) { c.Llm.ApiKey = " " }, wantCode: apperrors.CodeMissingCredentials},
		{name: "unknown backend", mutate: func(c *Config) { c.Cache.Backend = "etcd" }, wantCode: apperrors.CodeConfigInvalid},
		{name: "unknown collision", mutate: func(c *Config) { c.Output.Collision = "merge" }, wantCode: apperrors.CodeConfigInvalid},
		{name: "zero attempts", mutate: func(c *Config) { c.Summary.MaxPollAttempts = 0 }, wantCode: apperrors.CodeConfigInvalid},
		{name: "oss without bucket", mutate: func(c *Config) { c.Oss.Enabled = true }, wantCode: apperrors.CodeMissingCredentials},
		{name: "bad proxy", mutate: func(c *Config) { c.App.Proxy = "://bad" }, wantCode: apperrors.CodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Conf = validConfig()
			tt.mutate(&Conf)
			err := CheckConfig()
			if tt.wantCode == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tt.wantCode), "got %v", err)
			assert.True(t, apperrors.IsFatal(err))
		})
	}
}
