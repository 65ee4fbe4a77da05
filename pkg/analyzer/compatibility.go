package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sambabib/dephealth/pkg/logger"
	"github.com/sambabib/dephealth/pkg/registry"
)

const npmPackagePageURL = "https://www.npmjs.com/package"

// DefaultProbeTimeout bounds each migration-guide URL probe.
const DefaultProbeTimeout = 5 * time.Second

// CompatibilityAnalyzer detects version deprecation and major-version
// breaking-change risk. Its signal is best-effort: every external
// failure is recovered locally to a safe default, never surfaced.
type CompatibilityAnalyzer struct {
	registry registry.Client

	// Probe checks whether a candidate URL exists. Swappable for tests;
	// defaults to a HEAD request with a short timeout and a bounded
	// redirect count.
	Probe func(ctx context.Context, url string) bool
}

// NewCompatibilityAnalyzer builds an analyzer over the registry client
// with the default probe timeout.
func NewCompatibilityAnalyzer(reg registry.Client) *CompatibilityAnalyzer {
	return NewCompatibilityAnalyzerWithTimeout(reg, DefaultProbeTimeout)
}

// NewCompatibilityAnalyzerWithTimeout builds an analyzer with an
// explicit probe timeout.
func NewCompatibilityAnalyzerWithTimeout(reg registry.Client, probeTimeout time.Duration) *CompatibilityAnalyzer {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	probeClient := &http.Client{
		Timeout: probeTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return &CompatibilityAnalyzer{
		registry: reg,
		Probe: func(ctx context.Context, url string) bool {
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
			if err != nil {
				return false
			}
			resp, err := probeClient.Do(req)
			if err != nil {
				return false
			}
			resp.Body.Close()
			return resp.StatusCode >= 200 && resp.StatusCode < 400
		},
	}
}

// Analyze computes the upgrade-risk dimension. Status precedence is
// version-deprecated > breaking-changes > safe. Internal dependencies
// are always safe. Never returns an error.
func (c *CompatibilityAnalyzer) Analyze(ctx context.Context, dep *Dependency, info *registry.PackageInfo, freshness FreshnessAnalysis) CompatibilityAnalysis {
	if dep.IsInternal {
		return CompatibilityAnalysis{Status: CompatSafe}
	}

	// A version-specific deprecation notice always wins.
	notice, err := c.registry.GetVersionDeprecation(ctx, dep.Name, dep.Version)
	if err != nil {
		logger.Debugf("compatibility: deprecation lookup failed for %s@%s: %v", dep.Name, dep.Version, err)
	} else if notice != "" {
		return CompatibilityAnalysis{
			Status:         CompatVersionDeprecated,
			Issues:         []string{fmt.Sprintf("installed version %s is deprecated: %s", dep.Version, trimExcerpt(notice))},
			Recommendation: fmt.Sprintf("upgrade %s to %s", dep.Name, freshness.LatestVersion),
		}
	}

	// Package-level deprecation on the latest version also deprecates
	// the line the installed version is on.
	if info != nil && info.DeprecatedMessage != "" {
		return CompatibilityAnalysis{
			Status:         CompatVersionDeprecated,
			Issues:         []string{fmt.Sprintf("package is deprecated: %s", trimExcerpt(info.DeprecatedMessage))},
			Recommendation: fmt.Sprintf("replace %s; it is no longer supported upstream", dep.Name),
		}
	}

	if freshness.VersionGap == GapMajor && freshness.IsOutdated && !freshness.UnmaintainedByAge {
		guide := c.resolveMigrationGuide(ctx, dep, info, freshness)
		analysis := CompatibilityAnalysis{
			Status: CompatBreakingChanges,
			Issues: []string{fmt.Sprintf("major version gap: %s installed, %s available", freshness.CurrentVersion, freshness.LatestVersion)},
			Recommendation: fmt.Sprintf("review breaking changes before upgrading %s from %s to %s",
				dep.Name, freshness.CurrentVersion, freshness.LatestVersion),
			MigrationGuideURL: guide,
		}
		if dep.IsDev {
			analysis.UpgradeWarnings = append(analysis.UpgradeWarnings, "dev dependency: breaking changes affect the build toolchain, not production code")
		}
		return analysis
	}

	return CompatibilityAnalysis{Status: CompatSafe}
}

// resolveMigrationGuide probes an ordered candidate list and returns
// the first URL that exists: version-tagged release notes on the source
// repository, then the version-specific registry page, then the
// package's general registry page. When nothing answers, the last
// (most generic) candidate is returned as a best-effort fallback.
// Probe failures are logged and skipped, never raised.
func (c *CompatibilityAnalyzer) resolveMigrationGuide(ctx context.Context, dep *Dependency, info *registry.PackageInfo, freshness FreshnessAnalysis) string {
	var candidates []string
	if info != nil && info.RepositoryURL != "" {
		if repo, ok := normalizeRepoURL(info.RepositoryURL); ok {
			candidates = append(candidates, fmt.Sprintf("%s/releases/tag/v%s", repo, freshness.LatestVersion))
		}
	}
	candidates = append(candidates,
		fmt.Sprintf("%s/%s/v/%s", npmPackagePageURL, dep.Name, freshness.LatestVersion),
		fmt.Sprintf("%s/%s", npmPackagePageURL, dep.Name),
	)

	for _, url := range candidates {
		if c.Probe(ctx, url) {
			return url
		}
		logger.Debugf("compatibility: migration guide candidate unreachable: %s", url)
	}
	return candidates[len(candidates)-1]
}

var repoURLRe = regexp.MustCompile(`(?:git\+)?(?:https?|git|ssh)://(?:[^@/]+@)?([^/]+)/(.+?)(?:\.git)?/?$`)

// normalizeRepoURL turns registry repository notations
// ("git+https://github.com/a/b.git", "git://github.com/a/b") into a
// browsable https URL.
func normalizeRepoURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if m := repoURLRe.FindStringSubmatch(raw); m != nil {
		return "https://" + m[1] + "/" + m[2], true
	}
	// shorthand "owner/repo"
	if strings.Count(raw, "/") == 1 && !strings.Contains(raw, ":") && !strings.Contains(raw, " ") {
		return "https://github.com/" + raw, true
	}
	return "", false
}
