package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/spachava753/canary/internal/models"
	"github.com/spachava753/canary/internal/util"
)

// SettingsFile is the settings file name looked up in the working directory.
const SettingsFile = "canary.toml"

var validate = validator.New()

// DefaultCacheDir returns the directory persistent working copies live in.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "lint-canary")
}

// DefaultSettings returns Settings with default values.
func DefaultSettings() models.Settings {
	return models.Settings{
		ProjectsFile: "projects.yml",
		CacheDir:     DefaultCacheDir(),
		LogLevel:     "info",
		Linter: models.LinterSettings{
			Name:       "eslint",
			Format:     "codeframe",
			MarkerFile: ".eslintrc.yml",
		},
		Tools: models.ToolSettings{
			Git: "git",
			NPM: "npm",
		},
		Environment: models.EnvironmentConfig{
			Type:  "local",
			Image: "node:lts",
		},
	}
}

// LoadSettings loads, finalizes and validates a canary.toml file from the
// given filesystem.
func LoadSettings(fsys fs.FS, name string) (models.Settings, error) {
	cfg, _, err := decodeSettings(fsys, name)
	if err != nil {
		return cfg, err
	}
	if err := Finalize(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ReadSettingsFile decodes the settings file at path without validating it,
// so command line overrides can be applied before Finalize. Relative paths
// set in the file are resolved against the file's directory.
func ReadSettingsFile(path string) (models.Settings, error) {
	dir := filepath.Dir(path)
	cfg, md, err := decodeSettings(os.DirFS(dir), filepath.Base(path))
	if err != nil {
		return cfg, err
	}

	for _, f := range []struct {
		key   string
		value *string
	}{
		{"projects_file", &cfg.ProjectsFile},
		{"cache_dir", &cfg.CacheDir},
		{"report_path", &cfg.ReportPath},
	} {
		if md.IsDefined(f.key) && *f.value != "" && !filepath.IsAbs(*f.value) {
			*f.value = filepath.Join(dir, *f.value)
		}
	}
	return cfg, nil
}

func decodeSettings(fsys fs.FS, name string) (models.Settings, toml.MetaData, error) {
	cfg := DefaultSettings()

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return cfg, toml.MetaData{}, fmt.Errorf("reading %s: %w", name, err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, md, fmt.Errorf("parsing %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return cfg, md, fmt.Errorf("parsing %s: unknown keys: %s", name, strings.Join(keys, ", "))
	}
	return cfg, md, nil
}

// Finalize fills in empty values, derives MemoryMB and validates the settings.
// It must be called again after flags have been applied on top of a loaded file.
func Finalize(cfg *models.Settings) error {
	defaults := DefaultSettings()

	if cfg.ProjectsFile == "" {
		cfg.ProjectsFile = defaults.ProjectsFile
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaults.CacheDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.Linter.MarkerFile == "" {
		cfg.Linter.MarkerFile = defaults.Linter.MarkerFile
	}
	if cfg.Environment.Type == "" {
		cfg.Environment.Type = defaults.Environment.Type
	}
	if cfg.Environment.Image == "" {
		cfg.Environment.Image = defaults.Environment.Image
	}

	cfg.StepTimeoutDuration = 0
	if cfg.StepTimeout != "" {
		d, err := time.ParseDuration(cfg.StepTimeout)
		if err != nil {
			return fmt.Errorf("parsing step_timeout %q: %w", cfg.StepTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("step_timeout must not be negative, got %q", cfg.StepTimeout)
		}
		cfg.StepTimeoutDuration = d
	}

	mb, err := util.ParseMemory(cfg.Environment.Memory)
	if err != nil {
		return fmt.Errorf("parsing memory %q: %w", cfg.Environment.Memory, err)
	}
	cfg.Environment.MemoryMB = mb

	if err := validate.Struct(cfg); err != nil {
		return settingsError(err)
	}
	return nil
}

func settingsError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating settings: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Settings.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (%s), got %q", field, fe.Tag(), fe.Param(), fmt.Sprint(fe.Value())))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
}
