package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sambabib/dephealth/pkg/analyzer"
)

// SARIF format specification: https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html

// SarifReport represents the top-level SARIF report structure
type SarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []SarifRun `json:"runs"`
}

// SarifRun represents a single run of the analysis tool
type SarifRun struct {
	Tool        SarifTool         `json:"tool"`
	Results     []SarifResult     `json:"results"`
	Invocations []SarifInvocation `json:"invocations"`
}

// SarifTool represents the tool that performed the analysis
type SarifTool struct {
	Driver SarifDriver `json:"driver"`
}

// SarifDriver represents the driver of the tool
type SarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []SarifRule `json:"rules"`
}

// SarifRule represents a rule that was evaluated during the analysis
type SarifRule struct {
	ID               string            `json:"id"`
	ShortDescription SarifMessage      `json:"shortDescription"`
	FullDescription  SarifMessage      `json:"fullDescription"`
	Help             SarifMessage      `json:"help"`
	Properties       map[string]string `json:"properties,omitempty"`
}

// SarifResult represents a result of the analysis
type SarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   SarifMessage    `json:"message"`
	Locations []SarifLocation `json:"locations"`
}

// SarifMessage represents a message in the SARIF report
type SarifMessage struct {
	Text string `json:"text"`
}

// SarifLocation represents a location in the code
type SarifLocation struct {
	PhysicalLocation SarifPhysicalLocation `json:"physicalLocation"`
}

// SarifPhysicalLocation represents a physical location in the code
type SarifPhysicalLocation struct {
	ArtifactLocation SarifArtifactLocation `json:"artifactLocation"`
	Region           SarifRegion           `json:"region,omitempty"`
}

// SarifArtifactLocation represents the location of an artifact
type SarifArtifactLocation struct {
	URI string `json:"uri"`
}

// SarifRegion represents a region in the code
type SarifRegion struct {
	StartLine int `json:"startLine,omitempty"`
}

// SarifInvocation represents an invocation of the tool
type SarifInvocation struct {
	ExecutionSuccessful bool   `json:"executionSuccessful"`
	StartTimeUtc        string `json:"startTimeUtc"`
	EndTimeUtc          string `json:"endTimeUtc"`
}

// sarifLevels maps each classification to a SARIF reporting level.
var sarifLevels = map[analyzer.Classification]string{
	analyzer.ClassCriticalSecurity: "error",
	analyzer.ClassHighSecurity:     "error",
	analyzer.ClassMediumSecurity:   "warning",
	analyzer.ClassLowSecurity:      "note",
	analyzer.ClassUnmaintained:     "warning",
	analyzer.ClassMajorOutdated:    "warning",
	analyzer.ClassMinorOutdated:    "note",
	analyzer.ClassPatchOutdated:    "note",
	analyzer.ClassUnknown:          "warning",
}

// GenerateSarifReport converts an analysis result to SARIF format. One
// rule per classification; one result per non-healthy direct dependency.
func GenerateSarifReport(result *analyzer.AnalysisResult, projectPath string, toolVersion string) ([]byte, error) {
	rules := []SarifRule{
		{
			ID:               string(analyzer.ClassCriticalSecurity),
			ShortDescription: SarifMessage{Text: "Critical severity vulnerability"},
			FullDescription:  SarifMessage{Text: "This dependency has at least one known vulnerability of critical severity affecting the installed version."},
			Help:             SarifMessage{Text: "Update to a fixed version immediately or remove the dependency."},
		},
		{
			ID:               string(analyzer.ClassHighSecurity),
			ShortDescription: SarifMessage{Text: "High severity vulnerability"},
			FullDescription:  SarifMessage{Text: "This dependency has at least one known vulnerability of high severity affecting the installed version."},
			Help:             SarifMessage{Text: "Update to a fixed version as soon as possible."},
		},
		{
			ID:               string(analyzer.ClassMediumSecurity),
			ShortDescription: SarifMessage{Text: "Medium severity vulnerability"},
			FullDescription:  SarifMessage{Text: "This dependency has at least one known vulnerability of medium severity affecting the installed version."},
			Help:             SarifMessage{Text: "Plan an update to a fixed version."},
		},
		{
			ID:               string(analyzer.ClassLowSecurity),
			ShortDescription: SarifMessage{Text: "Low severity vulnerability"},
			FullDescription:  SarifMessage{Text: "This dependency has at least one known vulnerability of low severity affecting the installed version."},
			Help:             SarifMessage{Text: "Update when convenient."},
		},
		{
			ID:               string(analyzer.ClassUnmaintained),
			ShortDescription: SarifMessage{Text: "Unmaintained dependency"},
			FullDescription:  SarifMessage{Text: "This dependency shows signals of being unmaintained: a deprecation notice, a documentation warning, or no releases for a prolonged period."},
			Help:             SarifMessage{Text: "Consider finding an alternative or replacement package."},
		},
		{
			ID:               string(analyzer.ClassMajorOutdated),
			ShortDescription: SarifMessage{Text: "Major version behind"},
			FullDescription:  SarifMessage{Text: "The installed version is at least one major version behind latest, which may include breaking changes."},
			Help:             SarifMessage{Text: "Review the changelog and migration guide before updating."},
		},
		{
			ID:               string(analyzer.ClassMinorOutdated),
			ShortDescription: SarifMessage{Text: "Minor version behind"},
			FullDescription:  SarifMessage{Text: "The installed version is behind latest by a minor version."},
			Help:             SarifMessage{Text: "Consider updating to get new features."},
		},
		{
			ID:               string(analyzer.ClassPatchOutdated),
			ShortDescription: SarifMessage{Text: "Patch behind"},
			FullDescription:  SarifMessage{Text: "The installed version is behind latest by a patch release."},
			Help:             SarifMessage{Text: "Consider updating to get bug fixes."},
		},
		{
			ID:               string(analyzer.ClassUnknown),
			ShortDescription: SarifMessage{Text: "Analysis failed"},
			FullDescription:  SarifMessage{Text: "The analysis of this dependency did not complete, so its health is unknown."},
			Help:             SarifMessage{Text: "Check the package name and registry availability, then re-run."},
		},
	}

	var results []SarifResult
	for _, node := range result.Tree {
		if node.Classification == analyzer.ClassHealthy || node.IsInternal {
			continue
		}

		messageText := fmt.Sprintf("%s: installed %s, latest %s",
			node.Name, node.Version, node.Freshness.LatestVersion)
		if issues := summarizeIssues(node); issues != "" {
			messageText += fmt.Sprintf(" (%s)", issues)
		}

		level := sarifLevels[node.Classification]
		if level == "" {
			level = "note"
		}

		results = append(results, SarifResult{
			RuleID:  string(node.Classification),
			Level:   level,
			Message: SarifMessage{Text: messageText},
			Locations: []SarifLocation{
				{
					PhysicalLocation: SarifPhysicalLocation{
						ArtifactLocation: SarifArtifactLocation{
							URI: projectPath,
						},
					},
				},
			},
		})
	}
	if results == nil {
		results = []SarifResult{}
	}

	end := result.Metadata.StartedAt.Add(result.Metadata.Duration)
	sarifReport := SarifReport{
		Schema:  "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json",
		Version: "2.1.0",
		Runs: []SarifRun{
			{
				Tool: SarifTool{
					Driver: SarifDriver{
						Name:           "dephealth",
						Version:        toolVersion,
						InformationURI: "https://github.com/sambabib/dephealth",
						Rules:          rules,
					},
				},
				Results: results,
				Invocations: []SarifInvocation{
					{
						ExecutionSuccessful: true,
						StartTimeUtc:        result.Metadata.StartedAt.UTC().Format(time.RFC3339),
						EndTimeUtc:          end.UTC().Format(time.RFC3339),
					},
				},
			},
		},
	}

	return json.MarshalIndent(sarifReport, "", "  ")
}
