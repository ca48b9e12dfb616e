package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/spachava753/canary/internal/config"
)

const validCommit = "0123456789abcdef0123456789abcdef01234567"

func decode(t *testing.T, doc string) any {
	t.Helper()
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte(doc), &raw))
	return raw
}

func TestValidateProjects(t *testing.T) {
	raw := decode(t, `
- name: alpha
  repo: https://example/alpha.git
  commit: `+validCommit+`
  args: ["src", "--ext", ".js"]
- name: beta
  repo: https://example/beta.git
  commit: `+validCommit+`
  args: ["."]
  dependencies: ["custom-rules"]
`)

	projects, err := config.ValidateProjects(raw)
	require.NoError(t, err)
	require.Len(t, projects, 2)

	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, "https://example/alpha.git", projects[0].Repo)
	assert.Equal(t, validCommit, projects[0].Commit)
	assert.Equal(t, []string{"src", "--ext", ".js"}, projects[0].Args)
	assert.Nil(t, projects[0].Dependencies)
	assert.Equal(t, []string{"custom-rules"}, projects[1].Dependencies)
}

func TestValidateProjectsRejects(t *testing.T) {
	project := func(fields string) string {
		return "- " + fields + "\n"
	}

	tests := []struct {
		name    string
		doc     string
		index   int
		field   string
		message string
	}{
		{
			name:    "not an array",
			doc:     "name: alpha\n",
			index:   -1,
			message: "must parse as an array",
		},
		{
			name:    "empty list",
			doc:     "[]\n",
			index:   -1,
			message: "at least one project",
		},
		{
			name:    "entry not a mapping",
			doc:     "- alpha\n",
			index:   0,
			field:   "project",
			message: "must be a mapping",
		},
		{
			name:    "non-string name",
			doc:     project(`{name: 12, repo: r, commit: ` + validCommit + `, args: []}`),
			index:   0,
			field:   "name",
			message: "must be strings",
		},
		{
			name:    "name with special characters",
			doc:     project(`{name: "al/pha", repo: r, commit: ` + validCommit + `, args: []}`),
			index:   0,
			field:   "name",
			message: "'al/pha' contains special characters",
		},
		{
			name:    "non-string repo",
			doc:     project(`{name: alpha, repo: [r], commit: ` + validCommit + `, args: []}`),
			index:   0,
			field:   "repo",
			message: "must be a string",
		},
		{
			name:    "args not an array",
			doc:     project(`{name: alpha, repo: r, commit: ` + validCommit + `, args: src}`),
			index:   0,
			field:   "args",
			message: "to be an array",
		},
		{
			name:    "non-string arg",
			doc:     project(`{name: alpha, repo: r, commit: ` + validCommit + `, args: [src, 3]}`),
			index:   0,
			field:   "args",
			message: "contains the argument 3",
		},
		{
			name:    "dependencies not an array",
			doc:     project(`{name: alpha, repo: r, commit: ` + validCommit + `, args: [], dependencies: foo}`),
			index:   0,
			field:   "dependencies",
			message: "must be in an array",
		},
		{
			name:    "short commit",
			doc:     project(`{name: alpha, repo: r, commit: abc123, args: []}`),
			index:   0,
			field:   "commit",
			message: "full commit hash",
		},
		{
			name:    "uppercase commit",
			doc:     project(`{name: alpha, repo: r, commit: 0123456789ABCDEF0123456789ABCDEF01234567, args: []}`),
			index:   0,
			field:   "commit",
			message: "full commit hash",
		},
		{
			name:    "missing commit",
			doc:     project(`{name: alpha, repo: r, args: []}`),
			index:   0,
			field:   "commit",
			message: "full commit hash",
		},
		{
			name: "second project invalid",
			doc: project(`{name: alpha, repo: r, commit: `+validCommit+`, args: []}`) +
				project(`{name: beta, repo: r, commit: `+validCommit+`}`),
			index:   1,
			field:   "args",
			message: "beta",
		},
		{
			name: "unsorted",
			doc: project(`{name: b, repo: r, commit: `+validCommit+`, args: []}`) +
				project(`{name: a, repo: r, commit: `+validCommit+`, args: []}`),
			index:   -1,
			message: "should be sorted",
		},
		{
			name: "duplicate",
			doc: project(`{name: a, repo: r, commit: `+validCommit+`, args: []}`) +
				project(`{name: a, repo: r, commit: `+validCommit+`, args: []}`),
			index:   1,
			field:   "name",
			message: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.ValidateProjects(decode(t, tt.doc))
			require.Error(t, err)

			var verr *config.ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
			assert.Equal(t, tt.index, verr.Index)
			assert.Equal(t, tt.field, verr.Field)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateProjectsSortedIff(t *testing.T) {
	orders := [][]string{
		{"a", "b", "c"},
		{"a", "c", "b"},
		{"a-b", "a_b", "ab"},
		{"B", "a"},
		{"a", "B"},
		{"eslint", "eslint-plugin-react", "vue"},
	}

	for _, names := range orders {
		var doc string
		for _, n := range names {
			doc += "- {name: " + n + ", repo: r, commit: " + validCommit + ", args: []}\n"
		}
		sorted := true
		for i := 1; i < len(names); i++ {
			if names[i] < names[i-1] {
				sorted = false
			}
		}

		_, err := config.ValidateProjects(decode(t, doc))
		assert.Equal(t, sorted, err == nil, "names %v: err=%v", names, err)
	}
}

func TestLoadProjects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.yml")
	doc := "- name: alpha\n  repo: https://example/alpha.git\n  commit: " + validCommit + "\n  args: [src]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	projects, err := config.LoadProjects(path)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "alpha", projects[0].Name)

	_, err = config.LoadProjects(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading projects file")

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("- {name: b, repo: r, commit: "+validCommit+", args: []}\n- {name: a, repo: r, commit: "+validCommit+", args: []}\n"), 0644))
	_, err = config.LoadProjects(bad)
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), bad)
}
