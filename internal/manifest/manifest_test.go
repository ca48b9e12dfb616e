package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := []byte(`{
  "name": "alpha",
  "dependencies": {"lodash": "^4.0.0", "eslint-plugin-foo": "^1.0.0"},
  "devDependencies": {"eslint": "^8.0.0", "lodash": "4.17.21", "eslint-config-bar": "2.0.0"}
}`)

	deps, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []Dependency{
		{Name: "lodash", Version: "4.17.21"},
		{Name: "eslint-plugin-foo", Version: "^1.0.0"},
		{Name: "eslint", Version: "^8.0.0"},
		{Name: "eslint-config-bar", Version: "2.0.0"},
	}, deps)
}

func TestParseEdgeCases(t *testing.T) {
	deps, err := Parse([]byte(`{"name": "no-deps"}`))
	require.NoError(t, err)
	assert.Empty(t, deps)

	deps, err = Parse([]byte(`{"dependencies": null}`))
	require.NoError(t, err)
	assert.Empty(t, deps)

	deps, err = Parse([]byte(`{"dependencies": {"local": {"path": "x"}}}`))
	require.NoError(t, err)
	assert.Equal(t, []Dependency{{Name: "local"}}, deps)

	_, err = Parse([]byte(`{"dependencies": ["a"]}`))
	require.Error(t, err)

	_, err = Parse([]byte(`{not json`))
	require.Error(t, err)
}

func TestIsLinterPackage(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"eslint-plugin-react", true},
		{"eslint-config-airbnb", true},
		{"eslint", false},
		{"eslint-scope", false},
		{"eslint-plugin", false},
		{"lodash", false},
		{"@typescript-eslint/eslint-plugin", true},
		{"@scope/eslint-plugin-foo", true},
		{"@scope/eslint-config", true},
		{"@scope/eslint-configs", false},
		{"@typescript-eslint/parser", false},
		{"scope/eslint-plugin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLinterPackage("eslint", tt.name))
		})
	}
}

func TestInstallArgs(t *testing.T) {
	t.Run("plugins and forced dependencies", func(t *testing.T) {
		deps, err := Parse([]byte(`{"devDependencies": {"eslint-plugin-foo": "^1.0.0", "lodash": "^4.0.0"}}`))
		require.NoError(t, err)

		got := InstallArgs("eslint", deps, []string{"custom-rules"})
		assert.Equal(t, []string{"eslint-plugin-foo@^1.0.0", "custom-rules"}, got)
	})

	t.Run("forced dependency declared in manifest keeps manifest order and version", func(t *testing.T) {
		deps := []Dependency{
			{Name: "babel-eslint", Version: "^10.0.0"},
			{Name: "eslint-plugin-node", Version: "^11.0.0"},
		}
		got := InstallArgs("eslint", deps, []string{"eslint-plugin-node", "babel-eslint"})
		assert.Equal(t, []string{"babel-eslint@^10.0.0", "eslint-plugin-node@^11.0.0"}, got)
	})

	t.Run("bare linter is never installed from the manifest", func(t *testing.T) {
		deps := []Dependency{{Name: "eslint", Version: "^8.0.0"}}
		assert.Empty(t, InstallArgs("eslint", deps, nil))
	})

	t.Run("no manifest", func(t *testing.T) {
		got := InstallArgs("eslint", nil, []string{"b", "a", "b"})
		assert.Equal(t, []string{"b", "a"}, got)
	})

	t.Run("unpinned declaration is bare", func(t *testing.T) {
		deps := []Dependency{{Name: "eslint-plugin-local"}}
		assert.Equal(t, []string{"eslint-plugin-local"}, InstallArgs("eslint", deps, nil))
	})
}
