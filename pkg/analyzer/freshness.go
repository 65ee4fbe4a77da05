package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/sambabib/dephealth/pkg/logger"
	"github.com/sambabib/dephealth/pkg/registry"
)

// FreshnessConfig carries the temporal policy knobs.
type FreshnessConfig struct {
	// GracePeriod is how long after a major release the gap is not yet
	// counted as outdated.
	GracePeriod time.Duration
	// UnmaintainedAfter is the publish age past which a package counts
	// as unmaintained regardless of textual signals.
	UnmaintainedAfter time.Duration
}

// DefaultFreshnessConfig returns the stock policy: 90-day grace period,
// 730-day unmaintained threshold.
func DefaultFreshnessConfig() FreshnessConfig {
	return FreshnessConfig{
		GracePeriod:       90 * 24 * time.Hour,
		UnmaintainedAfter: 730 * 24 * time.Hour,
	}
}

// FreshnessAnalyzer computes version-gap classification, grace-period
// logic, and maintenance-signal heuristics.
type FreshnessAnalyzer struct {
	registry registry.Client
	cfg      FreshnessConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewFreshnessAnalyzer builds an analyzer over the (typically cached)
// registry client.
func NewFreshnessAnalyzer(reg registry.Client, cfg FreshnessConfig) *FreshnessAnalyzer {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultFreshnessConfig().GracePeriod
	}
	if cfg.UnmaintainedAfter <= 0 {
		cfg.UnmaintainedAfter = DefaultFreshnessConfig().UnmaintainedAfter
	}
	return &FreshnessAnalyzer{registry: reg, cfg: cfg, now: time.Now}
}

// Analyze computes the freshness dimension. info may be nil, in which
// case the analyzer fetches it through its registry client; the fetched
// info is returned so downstream analyzers can reuse it. Internal
// dependencies classify as current without an external call.
func (f *FreshnessAnalyzer) Analyze(ctx context.Context, dep *Dependency, info *registry.PackageInfo) (FreshnessAnalysis, *registry.PackageInfo, error) {
	if dep.IsInternal {
		return FreshnessAnalysis{
			CurrentVersion: dep.Version,
			LatestVersion:  dep.Version,
			VersionGap:     GapCurrent,
		}, nil, nil
	}

	if info == nil {
		var err error
		info, err = f.registry.GetPackageInfo(ctx, dep.Name)
		if err != nil {
			return FreshnessAnalysis{}, nil, err
		}
	}

	analysis := FreshnessAnalysis{
		CurrentVersion: dep.Version,
		LatestVersion:  info.Version,
		ReleaseDate:    info.PublishedAt,
		VersionGap:     classifyGap(dep.Version, info.Version),
	}

	switch analysis.VersionGap {
	case GapCurrent:
	case GapMajor:
		// new major releases get a buffer before being flagged
		if !info.PublishedAt.IsZero() && f.now().Sub(info.PublishedAt) < f.cfg.GracePeriod {
			logger.Debugf("freshness: %s major gap inside grace period", dep.Name)
		} else {
			analysis.IsOutdated = true
		}
	default:
		analysis.IsOutdated = true
	}

	if !info.PublishedAt.IsZero() && f.now().Sub(info.PublishedAt) > f.cfg.UnmaintainedAfter {
		analysis.IsUnmaintained = true
		analysis.UnmaintainedByAge = true
	}

	if sig, ok := f.extractSignal(ctx, dep, info); ok {
		analysis.MaintenanceSignals = append(analysis.MaintenanceSignals, sig)
		analysis.IsUnmaintained = true
	}

	return analysis, info, nil
}

// extractSignal checks maintenance evidence in priority order, stopping
// at the first hit: a version-specific deprecation notice for the
// installed version, a package-level notice on the latest version, then
// the free-text heuristic over the readme. Registry errors here degrade
// to "no signal"; the freshness dimension already has its answer.
func (f *FreshnessAnalyzer) extractSignal(ctx context.Context, dep *Dependency, info *registry.PackageInfo) (MaintenanceSignal, bool) {
	notice, err := f.registry.GetVersionDeprecation(ctx, dep.Name, dep.Version)
	if err != nil {
		logger.Debugf("freshness: deprecation lookup failed for %s@%s: %v", dep.Name, dep.Version, err)
	} else if notice != "" {
		return MaintenanceSignal{Kind: "version-deprecation", Excerpt: trimExcerpt(notice)}, true
	}

	if info.DeprecatedMessage != "" {
		return MaintenanceSignal{Kind: "package-deprecation", Excerpt: trimExcerpt(info.DeprecatedMessage)}, true
	}

	return ExtractMaintenanceSignal(info.Readme)
}

func trimExcerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxExcerptLen {
		s = strings.TrimSpace(s[:maxExcerptLen])
	}
	return s
}

// classifyGap compares installed against latest as full semantic
// versions: current when installed >= latest, otherwise the smallest
// component that differs. Unparseable versions classify as current so a
// bad version string never inflates staleness.
func classifyGap(installed, latest string) VersionGap {
	cur, err := semver.NewVersion(cleanVersion(installed))
	if err != nil {
		return GapCurrent
	}
	lat, err := semver.NewVersion(cleanVersion(latest))
	if err != nil {
		return GapCurrent
	}
	if !lat.GreaterThan(cur) {
		return GapCurrent
	}
	switch {
	case lat.Major() != cur.Major():
		return GapMajor
	case lat.Minor() != cur.Minor():
		return GapMinor
	default:
		return GapPatch
	}
}

func cleanVersion(v string) string {
	return strings.TrimLeft(strings.TrimSpace(v), "^~=v ")
}
