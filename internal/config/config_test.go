package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/canary/internal/config"
)

func TestLoadSettings(t *testing.T) {
	settingsToml := `projects_file = "canary-projects.yml"
cache_dir = "/var/cache/canary"
report_path = "report.json"
log_level = "DEBUG"

[linter]
name = "eslint"
format = "stylish"

[tools]
npm = "/usr/local/bin/npm"

[environment]
type = "docker"
image = "node:20"
cpus = 2
memory = "4G"
`

	fsys := fstest.MapFS{
		"canary.toml": &fstest.MapFile{Data: []byte(settingsToml)},
	}

	cfg, err := config.LoadSettings(fsys, "canary.toml")
	require.NoError(t, err)

	assert.Equal(t, "canary-projects.yml", cfg.ProjectsFile)
	assert.Equal(t, "/var/cache/canary", cfg.CacheDir)
	assert.Equal(t, "report.json", cfg.ReportPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "stylish", cfg.Linter.Format)
	assert.Equal(t, ".eslintrc.yml", cfg.Linter.MarkerFile)
	assert.Equal(t, "git", cfg.Tools.Git)
	assert.Equal(t, "/usr/local/bin/npm", cfg.Tools.NPM)
	assert.Equal(t, "docker", cfg.Environment.Type)
	assert.Equal(t, "node:20", cfg.Environment.Image)
	assert.Equal(t, 2, cfg.Environment.CPUs)
	assert.Equal(t, 4096, cfg.Environment.MemoryMB)
}

func TestLoadSettingsProviderConfig(t *testing.T) {
	settingsToml := `[environment]
type = "modal"

[environment.provider_config]
app_name = "canary"
regions = ["us-east"]
`
	fsys := fstest.MapFS{
		"canary.toml": &fstest.MapFile{Data: []byte(settingsToml)},
	}

	cfg, err := config.LoadSettings(fsys, "canary.toml")
	require.NoError(t, err)
	assert.Equal(t, "modal", cfg.Environment.Type)
	assert.Equal(t, "canary", cfg.Environment.ProviderConfig["app_name"])
}

func TestLoadSettingsErrors(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{
			name:        "unknown environment",
			content:     "[environment]\ntype = \"kubernetes\"\n",
			errContains: "Environment.Type",
		},
		{
			name:        "unknown log level",
			content:     "log_level = \"verbose\"\n",
			errContains: "LogLevel",
		},
		{
			name:        "empty linter name",
			content:     "[linter]\nname = \"\"\n",
			errContains: "Linter.Name",
		},
		{
			name:        "bad memory",
			content:     "[environment]\nmemory = \"4Q\"\n",
			errContains: "parsing memory",
		},
		{
			name:        "bad step timeout",
			content:     "step_timeout = \"soon\"\n",
			errContains: "parsing step_timeout",
		},
		{
			name:        "negative step timeout",
			content:     "step_timeout = \"-1m\"\n",
			errContains: "must not be negative",
		},
		{
			name:        "unknown key",
			content:     "parallelism = 4\n",
			errContains: "unknown keys: parallelism",
		},
		{
			name:        "invalid toml",
			content:     "projects_file = \n",
			errContains: "parsing canary.toml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"canary.toml": &fstest.MapFile{Data: []byte(tt.content)},
			}
			_, err := config.LoadSettings(fsys, "canary.toml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, err := config.LoadSettings(fstest.MapFS{}, "canary.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading canary.toml")
}

func TestDefaultSettings(t *testing.T) {
	cfg := config.DefaultSettings()

	assert.Equal(t, "projects.yml", cfg.ProjectsFile)
	assert.NotEmpty(t, cfg.CacheDir)
	assert.Equal(t, "eslint", cfg.Linter.Name)
	assert.Equal(t, "codeframe", cfg.Linter.Format)
	assert.Equal(t, "git", cfg.Tools.Git)
	assert.Equal(t, "npm", cfg.Tools.NPM)
	assert.Equal(t, "local", cfg.Environment.Type)

	require.NoError(t, config.Finalize(&cfg))
	assert.Zero(t, cfg.Environment.MemoryMB)
}

func TestReadSettingsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canary.toml")
	require.NoError(t, os.WriteFile(path, []byte(`projects_file = "corpus/projects.yml"
cache_dir = "/var/cache/canary"

[environment]
type = "not-yet-overridden"

[environment.env]
NODE_OPTIONS = "--max-old-space-size=4096"
`), 0644))

	cfg, err := config.ReadSettingsFile(path)
	require.NoError(t, err, "validation is left to Finalize")

	assert.Equal(t, filepath.Join(dir, "corpus", "projects.yml"), cfg.ProjectsFile)
	assert.Equal(t, "/var/cache/canary", cfg.CacheDir)
	assert.Empty(t, cfg.ReportPath)
	assert.Equal(t, "not-yet-overridden", cfg.Environment.Type)
	assert.Equal(t, map[string]string{"NODE_OPTIONS": "--max-old-space-size=4096"}, cfg.Environment.Env)

	require.Error(t, config.Finalize(&cfg))
}

func TestReadSettingsFileKeepsDefaultPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canary.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"warn\"\n"), 0644))

	cfg, err := config.ReadSettingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "projects.yml", cfg.ProjectsFile, "defaults stay relative to the working directory")
}
