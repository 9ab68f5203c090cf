package unit

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Manifest describes a unit's metadata. Dependencies only matter for plugins
// and name other plugins by their registry key on the same side.
type Manifest struct {
	// Name is the display name of the unit
	Name string `yaml:"name" toml:"name" json:"name"`
	// Description is a brief description of the unit
	Description string `yaml:"description,omitempty" toml:"description,omitempty" json:"description,omitempty"`
	// Version is the semantic version (e.g., "1.0.0")
	Version string `yaml:"version,omitempty" toml:"version,omitempty" json:"version,omitempty"`
	// Author is the unit author
	Author string `yaml:"author,omitempty" toml:"author,omitempty" json:"author,omitempty"`
	// Dependencies lists plugin names that must be enabled first
	Dependencies []string `yaml:"dependencies,omitempty" toml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// Clone returns a deep copy of the manifest. A nil manifest clones to nil.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	if m.Dependencies != nil {
		c.Dependencies = append([]string(nil), m.Dependencies...)
	}
	return &c
}

// DependenciesOf returns the declared dependencies of a possibly nil manifest.
func DependenciesOf(m *Manifest) []string {
	if m == nil {
		return nil
	}
	return m.Dependencies
}

// ValidateManifest checks that a manifest is well formed.
// A nil manifest is valid: manifests are optional.
func ValidateManifest(m *Manifest) error {
	if m == nil {
		return nil
	}

	ve := &ValidationError{}

	if strings.TrimSpace(m.Name) == "" {
		ve.Add("name is required. Example: name: kvcache")
	}

	if m.Version != "" && !IsSemver(m.Version) {
		ve.Addf("version %q is not valid semantic versioning. Examples: 1.0.0, 1.2.3-beta.1", m.Version)
	}

	seen := make(map[string]bool, len(m.Dependencies))
	for i, dep := range m.Dependencies {
		switch {
		case strings.TrimSpace(dep) == "":
			ve.Addf("dependencies[%d] is empty", i)
		case seen[dep]:
			ve.Addf("dependencies[%d]: %q is listed twice", i, dep)
		}
		seen[dep] = true
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// IsSemver reports whether v is a semantic version, with or without a "v" prefix.
func IsSemver(v string) bool {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v)
}

// String returns "name@version" or just the name when unversioned.
func (m *Manifest) String() string {
	if m == nil {
		return "<none>"
	}
	if m.Version == "" {
		return m.Name
	}
	return fmt.Sprintf("%s@%s", m.Name, m.Version)
}
