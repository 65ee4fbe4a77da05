package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambabib/dephealth/pkg/analyzer"
	"github.com/sambabib/dephealth/pkg/license"
	"github.com/sambabib/dephealth/pkg/vulnsource"
)

func sampleResult() *analyzer.AnalysisResult {
	return &analyzer.AnalysisResult{
		Tree: []*analyzer.DependencyAnalysis{
			{
				Name:    "lodash",
				Version: "4.17.0",
				Security: analyzer.SecurityAnalysis{
					Severity: vulnsource.SeverityHigh,
					Vulnerabilities: []vulnsource.Vulnerability{
						{ID: "GHSA-xxxx", Severity: vulnsource.SeverityHigh},
					},
				},
				Freshness: analyzer.FreshnessAnalysis{
					CurrentVersion: "4.17.0",
					LatestVersion:  "4.17.21",
					VersionGap:     analyzer.GapPatch,
					IsOutdated:     true,
				},
				License:        analyzer.LicenseAnalysis{License: license.Parse("MIT"), Compatible: true},
				Compatibility:  &analyzer.CompatibilityAnalysis{Status: analyzer.CompatSafe},
				Classification: analyzer.ClassHighSecurity,
				Children: []*analyzer.DependencyAnalysis{
					{
						Name:           "lodash.merge",
						Version:        "4.6.2",
						IsTransitive:   true,
						Security:       analyzer.SecurityAnalysis{Severity: vulnsource.SeverityNone},
						Freshness:      analyzer.FreshnessAnalysis{CurrentVersion: "4.6.2", LatestVersion: "4.6.2", VersionGap: analyzer.GapCurrent},
						License:        analyzer.LicenseAnalysis{License: license.Parse("MIT"), Compatible: true},
						Classification: analyzer.ClassHealthy,
					},
				},
			},
			{
				Name:           "express",
				Version:        "4.18.2",
				Security:       analyzer.SecurityAnalysis{Severity: vulnsource.SeverityNone},
				Freshness:      analyzer.FreshnessAnalysis{CurrentVersion: "4.18.2", LatestVersion: "4.18.2", VersionGap: analyzer.GapCurrent},
				License:        analyzer.LicenseAnalysis{License: license.Parse("MIT"), Compatible: true},
				Compatibility:  &analyzer.CompatibilityAnalysis{Status: analyzer.CompatSafe},
				Classification: analyzer.ClassHealthy,
			},
			{
				Name:           "@acme/utils",
				Version:        "1.0.0",
				IsInternal:     true,
				Classification: analyzer.ClassHealthy,
				License:        analyzer.LicenseAnalysis{License: license.Parse(nil), Compatible: true},
			},
			{
				Name:           "left-pad",
				Version:        "0.0.1",
				IsFailed:       true,
				NotFound:       true,
				License:        analyzer.LicenseAnalysis{License: license.Parse(nil)},
				Classification: analyzer.ClassUnknown,
			},
		},
		HealthScore: analyzer.HealthScore{
			Overall:       72,
			Security:      60,
			Freshness:     90,
			Compatibility: 100,
			License:       100,
		},
		Summary: analyzer.AnalysisSummary{
			TotalDependencies: 2,
			ByClassification: map[analyzer.Classification]int{
				analyzer.ClassHighSecurity: 1,
				analyzer.ClassHealthy:      1,
			},
			NotFound: 1,
		},
		FailedPackages: []analyzer.FailedPackage{
			{Name: "left-pad", Version: "0.0.1", Reason: "not found", NotFound: true},
		},
		Metadata: analyzer.RunMetadata{
			RunID:     "test-run",
			StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Duration:  3 * time.Second,
		},
	}
}

func TestPrintTextReport(t *testing.T) {
	var buf bytes.Buffer
	PrintTextReport(&buf, sampleResult(), false)
	out := buf.String()

	assert.Contains(t, out, "lodash")
	assert.Contains(t, out, "high-security")
	assert.Contains(t, out, "1 vulnerabilities")
	assert.Contains(t, out, "Health score: 72/100")
	assert.Contains(t, out, "Analyzed 2 direct dependencies")
	assert.Contains(t, out, "(0 errors, 1 not found)")
	assert.Contains(t, out, "left-pad@0.0.1: not found in registry")
	// Tree is collapsed unless requested.
	assert.NotContains(t, out, "lodash.merge")
}

func TestPrintTextReport_Tree(t *testing.T) {
	var buf bytes.Buffer
	PrintTextReport(&buf, sampleResult(), true)

	assert.Contains(t, buf.String(), "lodash.merge")
}

func TestGenerateJSONReport(t *testing.T) {
	data, err := GenerateJSONReport(sampleResult())
	require.NoError(t, err)

	var decoded analyzer.AnalysisResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 72, decoded.HealthScore.Overall)
	assert.Len(t, decoded.Tree, 4)
	assert.Equal(t, "test-run", decoded.Metadata.RunID)
}

func TestGenerateSarifReport(t *testing.T) {
	data, err := GenerateSarifReport(sampleResult(), "package.json", "1.2.3")
	require.NoError(t, err)

	var report SarifReport
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report.Runs, 1)

	run := report.Runs[0]
	assert.Equal(t, "dephealth", run.Tool.Driver.Name)
	assert.Equal(t, "1.2.3", run.Tool.Driver.Version)

	// Healthy and internal dependencies produce no results; the failed
	// and the vulnerable ones do.
	require.Len(t, run.Results, 2)
	assert.Equal(t, string(analyzer.ClassHighSecurity), run.Results[0].RuleID)
	assert.Equal(t, "error", run.Results[0].Level)
	assert.Contains(t, run.Results[0].Message.Text, "lodash")
	assert.Equal(t, string(analyzer.ClassUnknown), run.Results[1].RuleID)

	require.Len(t, run.Invocations, 1)
	assert.Equal(t, "2025-06-01T12:00:00Z", run.Invocations[0].StartTimeUtc)
	assert.Equal(t, "2025-06-01T12:00:03Z", run.Invocations[0].EndTimeUtc)
}

func TestGenerateSarifReport_AllHealthy(t *testing.T) {
	result := &analyzer.AnalysisResult{
		Tree: []*analyzer.DependencyAnalysis{
			{Name: "express", Version: "4.18.2", Classification: analyzer.ClassHealthy},
		},
		Metadata: analyzer.RunMetadata{StartedAt: time.Now()},
	}

	data, err := GenerateSarifReport(result, "package.json", "dev")
	require.NoError(t, err)

	var report SarifReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Empty(t, report.Runs[0].Results)
	// results must be an empty array, not null, for SARIF consumers.
	assert.Contains(t, string(data), `"results": []`)
}
