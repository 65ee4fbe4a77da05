package output

import (
	"encoding/json"

	"github.com/sambabib/dephealth/pkg/analyzer"
)

// GenerateJSONReport renders the full analysis result as indented JSON.
func GenerateJSONReport(result *analyzer.AnalysisResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}
