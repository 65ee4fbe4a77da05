// Package scanner turns a project's package.json (and, for monorepos,
// its workspace manifests) into the dependency forest the analysis
// pipeline consumes. It does not resolve transitive graphs; a
// pre-resolved tree can be supplied separately as JSON.
package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sambabib/dephealth/pkg/analyzer"
	"github.com/sambabib/dephealth/pkg/logger"
)

// packageJSON is the subset of a manifest the scanner reads.
type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	License         string            `json:"license"`
	Workspaces      []string          `json:"workspaces"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Scan reads the manifest at path and returns the project info for the
// pipeline. For workspace (monorepo) manifests, each sub-project's
// dependencies are scanned under their own workspace scope, and
// packages local to the workspace are marked internal.
func Scan(path string) (*analyzer.ProjectInfo, error) {
	manifestPath := filepath.Join(path, "package.json")
	logger.Debugf("scanner: reading %s", manifestPath)
	root, err := readManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	project := &analyzer.ProjectInfo{
		Name:    root.Name,
		License: root.License,
	}

	if len(root.Workspaces) == 0 {
		project.Roots = manifestDeps(root, "", nil)
		return project, nil
	}

	// monorepo: collect workspace manifests first so workspace-local
	// package names can be marked internal everywhere they appear
	members, err := resolveWorkspaces(path, root.Workspaces)
	if err != nil {
		return nil, err
	}
	internal := map[string]bool{}
	manifests := make(map[string]*packageJSON, len(members))
	for _, member := range members {
		m, err := readManifest(filepath.Join(path, member, "package.json"))
		if err != nil {
			logger.Warnf("scanner: skipping workspace %s: %v", member, err)
			continue
		}
		manifests[member] = m
		if m.Name != "" {
			internal[m.Name] = true
		}
	}

	project.Roots = manifestDeps(root, "", internal)
	memberPaths := make([]string, 0, len(manifests))
	for member := range manifests {
		memberPaths = append(memberPaths, member)
	}
	sort.Strings(memberPaths)
	for _, member := range memberPaths {
		project.Roots = append(project.Roots, manifestDeps(manifests[member], member, internal)...)
	}
	return project, nil
}

// LoadTree reads a pre-resolved dependency forest from JSON, the output
// shape of lockfile resolvers. Used when transitive analysis is wanted.
func LoadTree(path string) ([]*analyzer.Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dependency tree: %w", err)
	}
	var roots []*analyzer.Dependency
	if err := json.Unmarshal(data, &roots); err != nil {
		return nil, fmt.Errorf("invalid dependency tree: %w", err)
	}
	return roots, nil
}

func readManifest(path string) (*packageJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var m packageJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// manifestDeps flattens one manifest's dependency maps into Dependency
// roots, sorted by name for deterministic output.
func manifestDeps(m *packageJSON, scope string, internal map[string]bool) []*analyzer.Dependency {
	var deps []*analyzer.Dependency
	add := func(src map[string]string, isDev bool) {
		for name, constraint := range src {
			deps = append(deps, &analyzer.Dependency{
				Name:           name,
				Constraint:     constraint,
				Version:        resolveVersion(constraint),
				IsDev:          isDev,
				IsInternal:     internal[name] || isLocalConstraint(constraint),
				WorkspaceScope: scope,
			})
		}
	}
	add(m.Dependencies, false)
	add(m.DevDependencies, true)

	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps
}

// resolveVersion strips range sigils from a declared constraint to get
// a best-effort installed version. Lock files give exact versions; a
// bare manifest only has the constraint.
func resolveVersion(constraint string) string {
	for len(constraint) > 0 {
		switch constraint[0] {
		case '^', '~', '=', 'v', '>', '<', ' ':
			constraint = constraint[1:]
		default:
			return constraint
		}
	}
	return constraint
}

// isLocalConstraint recognizes file: and workspace: protocol versions,
// which point inside the repository.
func isLocalConstraint(constraint string) bool {
	for _, prefix := range []string{"file:", "link:", "workspace:", "portal:"} {
		if len(constraint) >= len(prefix) && constraint[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// resolveWorkspaces expands the workspace globs against the repo root.
func resolveWorkspaces(root string, globs []string) ([]string, error) {
	var members []string
	seen := map[string]bool{}
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(root, g))
		if err != nil {
			return nil, fmt.Errorf("bad workspace pattern %q: %w", g, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				continue
			}
			rel, err := filepath.Rel(root, match)
			if err != nil {
				continue
			}
			if !seen[rel] {
				seen[rel] = true
				members = append(members, rel)
			}
		}
	}
	sort.Strings(members)
	return members, nil
}
