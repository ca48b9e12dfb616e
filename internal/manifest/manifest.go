// Package manifest reads a project's package.json and decides which of its
// packages have to be installed next to the candidate linter.
package manifest

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// FileName is the manifest file looked up in a working copy.
const FileName = "package.json"

// Dependency is a package declared in the manifest.
type Dependency struct {
	Name    string
	Version string
}

// Parse returns the dependencies and devDependencies declared in data, in
// document order. A name declared in both keeps its first position and takes
// the devDependencies version.
func Parse(data []byte) ([]Dependency, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parsing %s: invalid JSON", FileName)
	}

	var deps []Dependency
	index := make(map[string]int)

	for _, section := range []string{"dependencies", "devDependencies"} {
		r := gjson.GetBytes(data, section)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		if !r.IsObject() {
			return nil, fmt.Errorf("parsing %s: %s must be an object", FileName, section)
		}
		r.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			version := ""
			if value.Type == gjson.String {
				version = value.String()
			}
			if i, ok := index[name]; ok {
				deps[i].Version = version
				return true
			}
			index[name] = len(deps)
			deps = append(deps, Dependency{Name: name, Version: version})
			return true
		})
	}

	return deps, nil
}

// IsLinterPackage reports whether name is a plugin or shareable config of
// the linter, e.g. eslint-plugin-react or @typescript-eslint/eslint-plugin.
func IsLinterPackage(linter, name string) bool {
	if scope, rest, ok := strings.Cut(name, "/"); ok && strings.HasPrefix(scope, "@") {
		for _, kind := range []string{"plugin", "config"} {
			base := linter + "-" + kind
			if rest == base || strings.HasPrefix(rest, base+"-") {
				return true
			}
		}
		return false
	}
	return strings.HasPrefix(name, linter+"-plugin-") || strings.HasPrefix(name, linter+"-config-")
}

// InstallArgs returns the extra install arguments for a project: every
// declared linter plugin or config plus every name in extra. Names pinned in
// the manifest are rendered as name@version.
func InstallArgs(linter string, declared []Dependency, extra []string) []string {
	versions := make(map[string]string, len(declared))
	var names []string
	seen := make(map[string]bool)

	forced := make(map[string]bool, len(extra))
	for _, name := range extra {
		forced[name] = true
	}

	for _, d := range declared {
		versions[d.Name] = d.Version
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		if IsLinterPackage(linter, d.Name) || forced[d.Name] {
			names = append(names, d.Name)
		}
	}
	for _, name := range extra {
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	args := make([]string, 0, len(names))
	for _, name := range names {
		if v := versions[name]; v != "" {
			args = append(args, name+"@"+v)
		} else {
			args = append(args, name)
		}
	}
	return args
}
