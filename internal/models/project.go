package models

// Project is one entry of projects.yml: an external project the candidate
// linter is run against.
type Project struct {
	Name         string   `yaml:"name" json:"name"`
	Repo         string   `yaml:"repo" json:"repo"`
	Commit       string   `yaml:"commit" json:"commit"`
	Args         []string `yaml:"args" json:"args"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}
