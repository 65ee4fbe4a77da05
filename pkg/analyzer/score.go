package analyzer

import (
	"math"

	"github.com/sambabib/dephealth/pkg/logger"
	"github.com/sambabib/dephealth/pkg/vulnsource"
)

// Weights distribute the overall score across the four dimensions.
type Weights struct {
	Security      float64 `yaml:"security" json:"security"`
	Freshness     float64 `yaml:"freshness" json:"freshness"`
	Compatibility float64 `yaml:"compatibility" json:"compatibility"`
	License       float64 `yaml:"license" json:"license"`
}

// DefaultWeights returns the stock 0.4/0.3/0.2/0.1 split.
func DefaultWeights() Weights {
	return Weights{Security: 0.4, Freshness: 0.3, Compatibility: 0.2, License: 0.1}
}

// ScoreConfig holds the per-issue point costs and caps. All of it is
// policy, exposed as configuration.
type ScoreConfig struct {
	Weights Weights `yaml:"weights" json:"weights"`

	SecurityCritical float64 `yaml:"securityCritical" json:"securityCritical"`
	SecurityHigh     float64 `yaml:"securityHigh" json:"securityHigh"`
	SecurityMedium   float64 `yaml:"securityMedium" json:"securityMedium"`
	SecurityLow      float64 `yaml:"securityLow" json:"securityLow"`
	SecurityCap      float64 `yaml:"securityCap" json:"securityCap"`

	FreshnessUnmaintained float64 `yaml:"freshnessUnmaintained" json:"freshnessUnmaintained"`
	FreshnessMajor        float64 `yaml:"freshnessMajor" json:"freshnessMajor"`
	FreshnessMinor        float64 `yaml:"freshnessMinor" json:"freshnessMinor"`
	FreshnessPatch        float64 `yaml:"freshnessPatch" json:"freshnessPatch"`
	// FreshnessCapFloor and FreshnessCapShare form the freshness cap:
	// max(floor, share x base).
	FreshnessCapFloor float64 `yaml:"freshnessCapFloor" json:"freshnessCapFloor"`
	FreshnessCapShare float64 `yaml:"freshnessCapShare" json:"freshnessCapShare"`

	CompatDeprecated      float64 `yaml:"compatDeprecated" json:"compatDeprecated"`
	CompatBreaking        float64 `yaml:"compatBreaking" json:"compatBreaking"`
	CompatVersionConflict float64 `yaml:"compatVersionConflict" json:"compatVersionConflict"`
	CompatCap             float64 `yaml:"compatCap" json:"compatCap"`
}

// DefaultScoreConfig returns the stock point costs and caps.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		Weights:          DefaultWeights(),
		SecurityCritical: 8, SecurityHigh: 4, SecurityMedium: 2, SecurityLow: 0.5,
		SecurityCap:           60,
		FreshnessUnmaintained: 3, FreshnessMajor: 2, FreshnessMinor: 1, FreshnessPatch: 0.1,
		FreshnessCapFloor: 10, FreshnessCapShare: 0.3,
		CompatDeprecated: 8, CompatBreaking: 4, CompatVersionConflict: 6,
		CompatCap: 50,
	}
}

// HealthScoreCalculator turns the analysis dimensions into one weighted
// explainable composite.
type HealthScoreCalculator struct {
	cfg ScoreConfig
}

// NewHealthScoreCalculator validates the weights (warn, not fail, on
// drift from 1.0) and returns a calculator.
func NewHealthScoreCalculator(cfg ScoreConfig) *HealthScoreCalculator {
	sum := cfg.Weights.Security + cfg.Weights.Freshness + cfg.Weights.Compatibility + cfg.Weights.License
	if math.Abs(sum-1.0) > 0.01 {
		logger.Warnf("health score weights sum to %.3f, expected 1.0", sum)
	}
	return &HealthScoreCalculator{cfg: cfg}
}

// Calculate computes the composite over the given analyses. Failed
// analyses are excluded first; an empty input scores a perfect 100
// across all dimensions by convention.
func (h *HealthScoreCalculator) Calculate(analyses []*DependencyAnalysis) HealthScore {
	var active []*DependencyAnalysis
	for _, a := range analyses {
		if !a.IsFailed {
			active = append(active, a)
		}
	}

	score := HealthScore{Breakdown: make(map[string]DimensionBreakdown, 4)}
	if len(active) == 0 {
		score.Overall, score.Security, score.Freshness, score.Compatibility, score.License = 100, 100, 100, 100, 100
		for _, dim := range []string{"security", "freshness", "compatibility", "license"} {
			score.Breakdown[dim] = DimensionBreakdown{Base: 100}
		}
		return score
	}

	score.Security = h.securityScore(active, score.Breakdown)
	score.Freshness = h.freshnessScore(active, score.Breakdown)
	score.Compatibility = h.compatibilityScore(active, score.Breakdown)
	score.License = h.licenseScore(active, score.Breakdown)

	w := h.cfg.Weights
	score.Overall = int(math.Round(
		float64(score.Security)*w.Security +
			float64(score.Freshness)*w.Freshness +
			float64(score.Compatibility)*w.Compatibility +
			float64(score.License)*w.License))
	return score
}

// finish applies the shared two-stage shape: a percentage base reduced
// by a capped penalty, floored at zero.
func finish(breakdown map[string]DimensionBreakdown, dim string, bad, total int, penalty, cap float64) int {
	base := 100 * (1 - float64(bad)/float64(total))
	penalty = math.Min(penalty, cap)
	breakdown[dim] = DimensionBreakdown{Base: base, Penalty: penalty, BadCount: bad, Total: total}
	return int(math.Max(0, math.Round(base-penalty)))
}

func (h *HealthScoreCalculator) securityScore(analyses []*DependencyAnalysis, breakdown map[string]DimensionBreakdown) int {
	bad := 0
	penalty := 0.0
	for _, a := range analyses {
		if len(a.Security.Vulnerabilities) == 0 {
			continue
		}
		bad++
		for _, v := range a.Security.Vulnerabilities {
			switch v.Severity {
			case vulnsource.SeverityCritical:
				penalty += h.cfg.SecurityCritical
			case vulnsource.SeverityHigh:
				penalty += h.cfg.SecurityHigh
			case vulnsource.SeverityMedium:
				penalty += h.cfg.SecurityMedium
			case vulnsource.SeverityLow:
				penalty += h.cfg.SecurityLow
			default:
				penalty += h.cfg.SecurityMedium
			}
		}
	}
	return finish(breakdown, "security", bad, len(analyses), penalty, h.cfg.SecurityCap)
}

func (h *HealthScoreCalculator) freshnessScore(analyses []*DependencyAnalysis, breakdown map[string]DimensionBreakdown) int {
	bad := 0
	penalty := 0.0
	for _, a := range analyses {
		f := a.Freshness
		// patch-level gaps are low risk and excluded from the bad count
		if f.IsUnmaintained || (f.IsOutdated && f.VersionGap != GapPatch) {
			bad++
		}
		if f.IsUnmaintained {
			penalty += h.cfg.FreshnessUnmaintained
		}
		if f.IsOutdated {
			switch f.VersionGap {
			case GapMajor:
				penalty += h.cfg.FreshnessMajor
			case GapMinor:
				penalty += h.cfg.FreshnessMinor
			case GapPatch:
				penalty += h.cfg.FreshnessPatch
			}
		}
	}
	base := 100 * (1 - float64(bad)/float64(len(analyses)))
	cap := math.Max(h.cfg.FreshnessCapFloor, h.cfg.FreshnessCapShare*base)
	return finish(breakdown, "freshness", bad, len(analyses), penalty, cap)
}

func (h *HealthScoreCalculator) compatibilityScore(analyses []*DependencyAnalysis, breakdown map[string]DimensionBreakdown) int {
	bad := 0
	penalty := 0.0
	for _, a := range analyses {
		if a.Compatibility == nil {
			continue
		}
		switch a.Compatibility.Status {
		case CompatVersionDeprecated:
			bad++
			penalty += h.cfg.CompatDeprecated
		case CompatBreakingChanges:
			bad++
			penalty += h.cfg.CompatBreaking
		}
	}
	return finish(breakdown, "compatibility", bad, len(analyses), penalty, h.cfg.CompatCap)
}

// licenseScore is purely linear: 100 points divided evenly among the
// analyzed dependencies, lost per incompatible one. No cap.
func (h *HealthScoreCalculator) licenseScore(analyses []*DependencyAnalysis, breakdown map[string]DimensionBreakdown) int {
	bad := 0
	for _, a := range analyses {
		if !a.License.Compatible {
			bad++
		}
	}
	base := 100 * (1 - float64(bad)/float64(len(analyses)))
	breakdown["license"] = DimensionBreakdown{Base: base, BadCount: bad, Total: len(analyses)}
	return int(math.Max(0, math.Round(base)))
}
