// Package analyzer implements the dependency health pipeline: the four
// analysis dimensions (security, freshness, license, compatibility),
// the weighted health score, and the orchestrator that batches them
// over a dependency tree.
package analyzer

import (
	"fmt"
	"time"

	"github.com/sambabib/dephealth/pkg/license"
	"github.com/sambabib/dephealth/pkg/vulnsource"
)

// Dependency is one node of the input dependency forest. Constructed by
// the scanner (or supplied pre-resolved); read-only to the pipeline.
type Dependency struct {
	Name string `json:"name"`
	// Constraint is the declared version constraint, e.g. "^4.17.0".
	Constraint string `json:"constraint,omitempty"`
	// Version is the resolved installed version.
	Version      string `json:"version"`
	IsDev        bool   `json:"isDev,omitempty"`
	IsInternal   bool   `json:"isInternal,omitempty"`
	IsTransitive bool   `json:"isTransitive,omitempty"`
	// WorkspaceScope is empty for single-project repositories and the
	// owning sub-project path in monorepos.
	WorkspaceScope string        `json:"workspaceScope,omitempty"`
	Children       []*Dependency `json:"children,omitempty"`
}

// Key is the scoped identity used for deduplication: within one scope a
// name+version pair is analyzed exactly once.
func (d *Dependency) Key() string {
	return fmt.Sprintf("%s@%s@%s", d.Name, d.Version, d.WorkspaceScope)
}

// SecurityAnalysis is the security dimension for one dependency.
type SecurityAnalysis struct {
	Vulnerabilities []vulnsource.Vulnerability `json:"vulnerabilities,omitempty"`
	// Severity is the highest severity present: critical, high, medium,
	// low, or none.
	Severity string `json:"severity"`
}

// VersionGap classifies the distance between installed and latest.
type VersionGap string

const (
	GapCurrent VersionGap = "current"
	GapPatch   VersionGap = "patch"
	GapMinor   VersionGap = "minor"
	GapMajor   VersionGap = "major"
)

// MaintenanceSignal is evidence that a package is no longer maintained.
type MaintenanceSignal struct {
	// Kind is version-deprecation, package-deprecation, or doc-heuristic.
	Kind    string `json:"kind"`
	Excerpt string `json:"excerpt"`
}

// FreshnessAnalysis is the staleness/maintenance dimension.
type FreshnessAnalysis struct {
	CurrentVersion string     `json:"currentVersion"`
	LatestVersion  string     `json:"latestVersion"`
	VersionGap     VersionGap `json:"versionGap"`
	ReleaseDate    time.Time  `json:"releaseDate,omitzero"`
	IsOutdated     bool       `json:"isOutdated"`
	IsUnmaintained bool       `json:"isUnmaintained"`
	// UnmaintainedByAge is set when the latest publish date alone exceeds
	// the unmaintained threshold, independent of textual signals. The
	// compatibility analyzer uses it to suppress upgrade advice for
	// long-dead packages.
	UnmaintainedByAge  bool                `json:"unmaintainedByAge,omitempty"`
	MaintenanceSignals []MaintenanceSignal `json:"maintenanceSignals,omitempty"`
}

// LicenseAnalysis is the license dimension.
type LicenseAnalysis struct {
	License         license.License          `json:"license"`
	Classifications []license.Classification `json:"classifications,omitempty"`
	Compatible      bool                     `json:"compatible"`
	NeedsReview     bool                     `json:"needsReview,omitempty"`
	Conflicts       []string                 `json:"conflicts,omitempty"`
}

// CompatibilityStatus orders upgrade risk; precedence when several
// apply is version-deprecated > breaking-changes > safe.
type CompatibilityStatus string

const (
	CompatSafe              CompatibilityStatus = "safe"
	CompatBreakingChanges   CompatibilityStatus = "breaking-changes"
	CompatVersionDeprecated CompatibilityStatus = "version-deprecated"
	CompatUnknown           CompatibilityStatus = "unknown"
)

// CompatibilityAnalysis is the upgrade-risk dimension.
type CompatibilityAnalysis struct {
	Status            CompatibilityStatus `json:"status"`
	Issues            []string            `json:"issues,omitempty"`
	UpgradeWarnings   []string            `json:"upgradeWarnings,omitempty"`
	Recommendation    string              `json:"recommendation,omitempty"`
	MigrationGuideURL string              `json:"migrationGuideUrl,omitempty"`
}

// Classification is the single primary label per dependency, picked by
// priority: security severities first, then unmaintained, then
// outdated-ness, then healthy. Failed packages are unknown.
type Classification string

const (
	ClassCriticalSecurity Classification = "critical-security"
	ClassHighSecurity     Classification = "high-security"
	ClassMediumSecurity   Classification = "medium-security"
	ClassLowSecurity      Classification = "low-security"
	ClassUnmaintained     Classification = "unmaintained"
	ClassMajorOutdated    Classification = "major-outdated"
	ClassMinorOutdated    Classification = "minor-outdated"
	ClassPatchOutdated    Classification = "patch-outdated"
	ClassHealthy          Classification = "healthy"
	ClassUnknown          Classification = "unknown"
)

// DependencyAnalysis joins one dependency with its analysis dimensions.
// Created once per scoped identity per run; reused at multiple tree
// positions via shallow per-position copies (Children differs per
// position, the rest is shared by value).
type DependencyAnalysis struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	WorkspaceScope string `json:"workspaceScope,omitempty"`
	IsDev          bool   `json:"isDev,omitempty"`
	IsInternal     bool   `json:"isInternal,omitempty"`
	IsTransitive   bool   `json:"isTransitive,omitempty"`

	Security      SecurityAnalysis       `json:"security"`
	Freshness     FreshnessAnalysis      `json:"freshness"`
	License       LicenseAnalysis        `json:"license"`
	Compatibility *CompatibilityAnalysis `json:"compatibility,omitempty"`

	Classification Classification `json:"classification"`

	// IsFailed marks a dependency whose analysis could not complete; it
	// is excluded from scoring and summary counts but kept in the tree.
	IsFailed bool `json:"isFailed,omitempty"`
	// NotFound distinguishes a confirmed-absent package from a generic
	// analysis failure.
	NotFound bool   `json:"notFound,omitempty"`
	Error    string `json:"error,omitempty"`

	Children []*DependencyAnalysis `json:"children,omitempty"`
}

// cloneForPosition returns a per-tree-position shallow copy, so sibling
// positions sharing one underlying analysis never share a Children slice.
func (a *DependencyAnalysis) cloneForPosition() *DependencyAnalysis {
	cp := *a
	cp.Children = nil
	return &cp
}

// HealthScore is the weighted 0-100 composite and its sub-scores.
type HealthScore struct {
	Overall       int                           `json:"overall"`
	Security      int                           `json:"security"`
	Freshness     int                           `json:"freshness"`
	Compatibility int                           `json:"compatibility"`
	License       int                           `json:"license"`
	Breakdown     map[string]DimensionBreakdown `json:"breakdown"`
}

// DimensionBreakdown explains one sub-score.
type DimensionBreakdown struct {
	Base     float64 `json:"base"`
	Penalty  float64 `json:"penalty"`
	BadCount int     `json:"badCount"`
	Total    int     `json:"total"`
}

// AnalysisSummary holds top-line counts over direct, non-internal,
// non-failed dependencies, bucketed by primary classification.
type AnalysisSummary struct {
	TotalDependencies int                    `json:"totalDependencies"`
	ByClassification  map[Classification]int `json:"byClassification"`
	Errors            int                    `json:"errors"`
	NotFound          int                    `json:"notFound"`
}

// FailedPackage records a dependency whose analysis did not complete.
type FailedPackage struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	WorkspaceScope string `json:"workspaceScope,omitempty"`
	Reason         string `json:"reason"`
	NotFound       bool   `json:"notFound,omitempty"`
}

// RunMetadata is the performance/network telemetry attached to a result.
type RunMetadata struct {
	RunID           string        `json:"runId"`
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
	AnalyzedCount   int           `json:"analyzedCount"`
	ChunkCount      int           `json:"chunkCount"`
	CacheHits       int64         `json:"cacheHits"`
	CacheRequests   int64         `json:"cacheRequests"`
	AllocBytes      uint64        `json:"allocBytes"`
	NetworkDegraded bool          `json:"networkDegraded"`
	DegradedSources []string      `json:"degradedSources,omitempty"`
}

// AnalysisResult is the top-level report. Immutable after return.
type AnalysisResult struct {
	Tree           []*DependencyAnalysis `json:"tree"`
	HealthScore    HealthScore           `json:"healthScore"`
	Summary        AnalysisSummary       `json:"summary"`
	FailedPackages []FailedPackage       `json:"failedPackages,omitempty"`
	Metadata       RunMetadata           `json:"metadata"`
}

// AnalysisStatus is pollable while a run is in flight.
type AnalysisStatus struct {
	IsRunning bool `json:"isRunning"`
	// Progress runs 0-100.
	Progress    int    `json:"progress"`
	CurrentItem string `json:"currentItem,omitempty"`
}

// ProjectInfo is the pipeline input: a dependency forest plus the
// consuming project's own identity for license policy.
type ProjectInfo struct {
	Name string `json:"name"`
	// License is the project's own license, consulted by the license
	// conflict matrix.
	License string        `json:"license,omitempty"`
	Roots   []*Dependency `json:"roots"`
}

// Options tune one analysis run.
type Options struct {
	// BypassCache skips cache reads; successful fetches still write.
	BypassCache bool
	// IncludeTransitive carries child analyses into the output tree.
	IncludeTransitive bool
}
