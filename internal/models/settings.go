package models

import "time"

// Settings represents the parsed canary.toml configuration.
type Settings struct {
	ProjectsFile string `toml:"projects_file" json:"projects_file" validate:"required"`
	CacheDir     string `toml:"cache_dir" json:"cache_dir" validate:"required"`
	ReportPath   string `toml:"report_path" json:"report_path,omitempty"`
	LogLevel     string `toml:"log_level" json:"log_level" validate:"oneof=trace debug info warn error off"`

	// StepTimeout bounds each git, npm and linter command, e.g. "10m".
	StepTimeout         string        `toml:"step_timeout" json:"step_timeout,omitempty"`
	StepTimeoutDuration time.Duration `toml:"-" json:"-"`

	Linter      LinterSettings    `toml:"linter" json:"linter"`
	Tools       ToolSettings      `toml:"tools" json:"tools"`
	Environment EnvironmentConfig `toml:"environment" json:"environment"`
}

type LinterSettings struct {
	Name       string `toml:"name" json:"name" validate:"required"`
	Format     string `toml:"format" json:"format" validate:"required"`
	MarkerFile string `toml:"marker_file" json:"marker_file"`
}

type ToolSettings struct {
	Git string `toml:"git" json:"git" validate:"required"`
	NPM string `toml:"npm" json:"npm" validate:"required"`
}

// EnvironmentConfig selects and sizes the environment commands run in.
type EnvironmentConfig struct {
	Type     string `toml:"type" json:"type" validate:"oneof=local docker apple modal"`
	Image    string `toml:"image" json:"image"`
	CPUs     int    `toml:"cpus" json:"cpus" validate:"gte=0"`
	Memory   string `toml:"memory,omitempty" json:"memory,omitempty"`
	MemoryMB int    `toml:"-" json:"memory_mb,omitempty"`

	// Env is set in the environment of every command.
	Env            map[string]string `toml:"env,omitempty" json:"env,omitempty"`
	ProviderConfig map[string]any    `toml:"provider_config,omitempty" json:"provider_config,omitempty"`
}
