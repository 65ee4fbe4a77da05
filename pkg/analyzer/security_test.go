package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambabib/dephealth/pkg/vulnsource"
)

func TestSecurityAnalyzer_FiltersByInstalledVersion(t *testing.T) {
	src := &fakeVulnSource{vulns: map[string][]vulnsource.Vulnerability{
		"lodash": {
			{ID: "GHSA-old", Severity: vulnsource.SeverityHigh, AffectedRanges: []string{"< 4.17.21"}},
			{ID: "GHSA-newer", Severity: vulnsource.SeverityLow, AffectedRanges: []string{">=5.0.0"}},
		},
	}}
	sec := NewSecurityAnalyzer(src)

	analysis, err := sec.Analyze(context.Background(), &Dependency{Name: "lodash", Version: "4.17.20"})
	require.NoError(t, err)
	require.Len(t, analysis.Vulnerabilities, 1)
	assert.Equal(t, "GHSA-old", analysis.Vulnerabilities[0].ID)
	assert.Equal(t, vulnsource.SeverityHigh, analysis.Severity)
}

func TestSecurityAnalyzer_RangeScenarios(t *testing.T) {
	t.Run("installed 1.0.0, range for another version matches", func(t *testing.T) {
		src := &fakeVulnSource{vulns: map[string][]vulnsource.Vulnerability{
			"pkg": {{ID: "V1", Severity: vulnsource.SeverityMedium, AffectedRanges: []string{"< 4.17.21"}}},
		}}
		sec := NewSecurityAnalyzer(src)
		analysis, err := sec.Analyze(context.Background(), &Dependency{Name: "pkg", Version: "1.0.0"})
		require.NoError(t, err)
		assert.Len(t, analysis.Vulnerabilities, 1, "1.0.0 is inside < 4.17.21")
	})

	t.Run("installed 4.18.0, range < 4.17.0 excluded", func(t *testing.T) {
		src := &fakeVulnSource{vulns: map[string][]vulnsource.Vulnerability{
			"pkg": {{ID: "V1", Severity: vulnsource.SeverityMedium, AffectedRanges: []string{"< 4.17.0"}}},
		}}
		sec := NewSecurityAnalyzer(src)
		analysis, err := sec.Analyze(context.Background(), &Dependency{Name: "pkg", Version: "4.18.0"})
		require.NoError(t, err)
		assert.Empty(t, analysis.Vulnerabilities)
		assert.Equal(t, vulnsource.SeverityNone, analysis.Severity)
	})
}

func TestSecurityAnalyzer_SafeDefaults(t *testing.T) {
	src := &fakeVulnSource{vulns: map[string][]vulnsource.Vulnerability{
		"pkg": {
			{ID: "no-range", Severity: vulnsource.SeverityLow},
			{ID: "bad-range", Severity: vulnsource.SeverityMedium, AffectedRanges: []string{"total gibberish"}},
		},
	}}
	sec := NewSecurityAnalyzer(src)

	analysis, err := sec.Analyze(context.Background(), &Dependency{Name: "pkg", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Len(t, analysis.Vulnerabilities, 2, "records without a usable range are reported, not hidden")
	assert.Equal(t, vulnsource.SeverityMedium, analysis.Severity)
}

func TestSecurityAnalyzer_InternalShortCircuits(t *testing.T) {
	src := &fakeVulnSource{err: errors.New("must not be called")}
	sec := NewSecurityAnalyzer(src)

	res, err := sec.AnalyzeBatch(context.Background(), []*Dependency{
		{Name: "@acme/internal", Version: "1.0.0", IsInternal: true},
	})
	require.NoError(t, err)
	assert.Equal(t, vulnsource.SeverityNone, res["@acme/internal@1.0.0"].Severity)
}

func TestSecurityAnalyzer_BatchUsesOneCall(t *testing.T) {
	src := &fakeBatchSource{fakeVulnSource: fakeVulnSource{vulns: map[string][]vulnsource.Vulnerability{}}}
	sec := NewBatchSecurityAnalyzer(src)

	deps := []*Dependency{
		{Name: "a", Version: "1.0.0"},
		{Name: "b", Version: "2.0.0"},
		{Name: "c", Version: "3.0.0"},
	}
	_, err := sec.AnalyzeBatch(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, src.batchSizes, "whole chunk covered by one batched call")
}

// One chunk can carry the same package at two versions (distinct
// workspace scopes); each version must keep its own filtered result.
func TestSecurityAnalyzer_SamePackageTwoVersionsInOneBatch(t *testing.T) {
	src := &fakeBatchSource{fakeVulnSource: fakeVulnSource{vulns: map[string][]vulnsource.Vulnerability{
		"lodash": {{ID: "GHSA-legacy", Severity: vulnsource.SeverityCritical, AffectedRanges: []string{"<4.0.0"}}},
	}}}
	sec := NewBatchSecurityAnalyzer(src)

	res, err := sec.AnalyzeBatch(context.Background(), []*Dependency{
		{Name: "lodash", Version: "3.0.0", WorkspaceScope: "packages/api"},
		{Name: "lodash", Version: "4.17.21", WorkspaceScope: "packages/web"},
	})
	require.NoError(t, err)

	old := res["lodash@3.0.0"]
	require.Len(t, old.Vulnerabilities, 1, "advisory on the older version must survive the batch")
	assert.Equal(t, vulnsource.SeverityCritical, old.Severity)

	current := res["lodash@4.17.21"]
	assert.Empty(t, current.Vulnerabilities)
	assert.Equal(t, vulnsource.SeverityNone, current.Severity)
}

func TestSecurityAnalyzer_FetchFailureIsReturned(t *testing.T) {
	src := &fakeVulnSource{err: vulnsource.ErrUnavailable}
	sec := NewSecurityAnalyzer(src)

	_, err := sec.AnalyzeBatch(context.Background(), []*Dependency{{Name: "a", Version: "1.0.0"}})
	assert.ErrorIs(t, err, vulnsource.ErrUnavailable)
}
