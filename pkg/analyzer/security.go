package analyzer

import (
	"context"
	"fmt"

	"github.com/sambabib/dephealth/pkg/logger"
	"github.com/sambabib/dephealth/pkg/versionrange"
	"github.com/sambabib/dephealth/pkg/vulnsource"
)

// SecurityAnalyzer filters vulnerability records against installed
// versions and aggregates severity. The fetch strategy (batched or
// per-item) is resolved once at construction from the source's
// capability, never probed per call.
type SecurityAnalyzer struct {
	fetch      func(ctx context.Context, queries []vulnsource.Query) (map[string][]vulnsource.Vulnerability, error)
	sourceName string
}

// NewSecurityAnalyzer builds an analyzer over a per-item source; batch
// requests fan out to one call per dependency.
func NewSecurityAnalyzer(src vulnsource.Source) *SecurityAnalyzer {
	return &SecurityAnalyzer{
		sourceName: src.Name(),
		fetch: func(ctx context.Context, queries []vulnsource.Query) (map[string][]vulnsource.Vulnerability, error) {
			out := make(map[string][]vulnsource.Vulnerability, len(queries))
			for _, q := range queries {
				vulns, err := src.GetVulnerabilities(ctx, q.Name, q.Version)
				if err != nil {
					return nil, fmt.Errorf("fetching vulnerabilities for %s: %w", q.Name, err)
				}
				out[q.Key()] = vulns
			}
			return out, nil
		},
	}
}

// NewBatchSecurityAnalyzer builds an analyzer over a batch-capable source.
func NewBatchSecurityAnalyzer(src vulnsource.BatchSource) *SecurityAnalyzer {
	return &SecurityAnalyzer{
		sourceName: src.Name(),
		fetch:      src.GetBatchVulnerabilities,
	}
}

// securityKey matches vulnsource.Query.Key for a dependency, so the
// batch maps distinguish the same package installed at two versions.
func securityKey(dep *Dependency) string {
	return dep.Name + "@" + dep.Version
}

// Analyze computes the security dimension for one dependency.
func (s *SecurityAnalyzer) Analyze(ctx context.Context, dep *Dependency) (SecurityAnalysis, error) {
	res, err := s.AnalyzeBatch(ctx, []*Dependency{dep})
	if err != nil {
		return SecurityAnalysis{}, err
	}
	return res[securityKey(dep)], nil
}

// AnalyzeBatch computes the security dimension for a whole chunk with
// one batched fetch. Results are keyed by name@version (securityKey).
// Internal dependencies short-circuit to severity none without an
// external call. A fetch failure is returned to the caller: security
// data is load-bearing and not recoverable locally.
func (s *SecurityAnalyzer) AnalyzeBatch(ctx context.Context, deps []*Dependency) (map[string]SecurityAnalysis, error) {
	out := make(map[string]SecurityAnalysis, len(deps))

	queries := make([]vulnsource.Query, 0, len(deps))
	for _, dep := range deps {
		if dep.IsInternal {
			out[securityKey(dep)] = SecurityAnalysis{Severity: vulnsource.SeverityNone}
			continue
		}
		queries = append(queries, vulnsource.Query{Name: dep.Name, Version: dep.Version})
	}

	var records map[string][]vulnsource.Vulnerability
	if len(queries) > 0 {
		var err error
		records, err = s.fetch(ctx, queries)
		if err != nil {
			return nil, fmt.Errorf("batch vulnerability fetch (%s): %w", s.sourceName, err)
		}
	}

	for _, dep := range deps {
		if dep.IsInternal {
			continue
		}
		matched := filterByVersion(records[securityKey(dep)], dep.Version)
		out[securityKey(dep)] = SecurityAnalysis{
			Vulnerabilities: matched,
			Severity:        aggregateSeverity(matched),
		}
		if len(matched) > 0 {
			logger.Debugf("security: %s@%s has %d applicable vulnerabilities", dep.Name, dep.Version, len(matched))
		}
	}
	return out, nil
}

// filterByVersion keeps records whose affected range contains the
// installed version. A record with no stated range, or an unparseable
// range or version, is kept: report rather than silently hide.
func filterByVersion(records []vulnsource.Vulnerability, version string) []vulnsource.Vulnerability {
	var matched []vulnsource.Vulnerability
	for _, rec := range records {
		if len(rec.AffectedRanges) == 0 {
			matched = append(matched, rec)
			continue
		}
		for _, r := range rec.AffectedRanges {
			if versionrange.Matches(version, r) {
				matched = append(matched, rec)
				break
			}
		}
	}
	return matched
}

// aggregateSeverity returns the highest canonical severity present; a
// malformed severity string counts as medium.
func aggregateSeverity(records []vulnsource.Vulnerability) string {
	rank := 0
	for _, rec := range records {
		if r := vulnsource.SeverityRank(rec.Severity); r > rank {
			rank = r
		}
	}
	switch rank {
	case 4:
		return vulnsource.SeverityCritical
	case 3:
		return vulnsource.SeverityHigh
	case 2:
		return vulnsource.SeverityMedium
	case 1:
		return vulnsource.SeverityLow
	}
	return vulnsource.SeverityNone
}
