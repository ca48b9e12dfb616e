package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/spachava753/canary/internal/models"
)

var (
	projectNamePattern = regexp.MustCompile(`^[\w-]+$`)
	commitPattern      = regexp.MustCompile(`^[0-9a-f]{40}$`)
)

// ValidationError describes the first problem found in a project list.
// Index is -1 when the problem concerns the list as a whole.
type ValidationError struct {
	Index   int
	Project string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Index < 0:
		return e.Message
	case e.Project != "":
		return fmt.Sprintf("project %q (index %d): %s: %s", e.Project, e.Index, e.Field, e.Message)
	default:
		return fmt.Sprintf("project at index %d: %s: %s", e.Index, e.Field, e.Message)
	}
}

// LoadProjects reads a projects.yml file and validates its contents.
func LoadProjects(path string) ([]models.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading projects file: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing projects file: %w", err)
	}

	projects, err := ValidateProjects(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return projects, nil
}

// ValidateProjects checks a decoded project list and converts it into typed
// projects. The first violation found is returned.
func ValidateProjects(raw any) ([]models.Project, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, &ValidationError{Index: -1, Message: "projects must parse as an array"}
	}
	if len(list) == 0 {
		return nil, &ValidationError{Index: -1, Message: "projects must contain at least one project"}
	}

	projects := make([]models.Project, 0, len(list))
	for i, entry := range list {
		p, err := validateProject(i, entry)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	if !slices.Equal(names, sorted) {
		return nil, &ValidationError{
			Index:   -1,
			Message: fmt.Sprintf("project names should be sorted: got %v, want %v", names, sorted),
		}
	}
	for i := 1; i < len(names); i++ {
		if names[i] == names[i-1] {
			return nil, &ValidationError{Index: i, Project: names[i], Field: "name", Message: "duplicate project name"}
		}
	}

	return projects, nil
}

func validateProject(i int, entry any) (models.Project, error) {
	fields, ok := entry.(map[string]any)
	if !ok {
		return models.Project{}, &ValidationError{Index: i, Field: "project", Message: "must be a mapping"}
	}

	fail := func(name, field, format string, args ...any) error {
		return &ValidationError{Index: i, Project: name, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	name, ok := fields["name"].(string)
	if !ok {
		return models.Project{}, fail("", "name", "project names must be strings")
	}
	if !projectNamePattern.MatchString(name) {
		return models.Project{}, fail("", "name", "project name must only contain alphanumeric characters, underscores and dashes ('%s' contains special characters)", name)
	}

	repo, ok := fields["repo"].(string)
	if !ok {
		return models.Project{}, fail(name, "repo", "must be a string")
	}

	rawArgs, ok := fields["args"].([]any)
	if !ok {
		return models.Project{}, fail(name, "args", "expected the arguments for %s to be an array", name)
	}
	args := make([]string, 0, len(rawArgs))
	for _, a := range rawArgs {
		s, ok := a.(string)
		if !ok {
			return models.Project{}, fail(name, "args", "all project arguments must be strings (the project %s contains the argument %v)", name, a)
		}
		args = append(args, s)
	}

	var deps []string
	if rawDeps, present := fields["dependencies"]; present && rawDeps != nil {
		list, ok := rawDeps.([]any)
		if !ok {
			return models.Project{}, fail(name, "dependencies", "project dependencies must be in an array")
		}
		for _, d := range list {
			s, ok := d.(string)
			if !ok {
				return models.Project{}, fail(name, "dependencies", "project dependencies must be strings (got %v)", d)
			}
			deps = append(deps, s)
		}
	}

	commit, _ := fields["commit"].(string)
	if !commitPattern.MatchString(commit) {
		return models.Project{}, fail(name, "commit", "project commit must be a full commit hash (got %v)", fields["commit"])
	}

	return models.Project{
		Name:         name,
		Repo:         repo,
		Commit:       commit,
		Args:         args,
		Dependencies: deps,
	}, nil
}
