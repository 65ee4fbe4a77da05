package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sambabib/dephealth/pkg/analyzer"
)

// PrintTextReport prints the analysis tree in a tabular text format,
// followed by the summary counts and the health score block.
func PrintTextReport(w io.Writer, result *analyzer.AnalysisResult, showTree bool) {
	const issuesLimit = 60 // Max characters for the issues column

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) // minwidth, tabwidth, padding, padchar, flags

	fmt.Fprintln(tw, "NAME\tVERSION\tLATEST\tCLASS\tSEVERITY\tLICENSE\tISSUES")
	fmt.Fprintln(tw, "----\t-------\t------\t-----\t--------\t-------\t------")

	for _, node := range result.Tree {
		printNode(tw, node, 0, showTree, issuesLimit)
	}
	tw.Flush()

	fmt.Fprintln(w)
	printSummary(w, result)
	fmt.Fprintln(w)
	printScore(w, result.HealthScore)

	if len(result.FailedPackages) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Failed packages (%d):\n", len(result.FailedPackages))
		for _, f := range result.FailedPackages {
			reason := f.Reason
			if f.NotFound {
				reason = "not found in registry"
			}
			fmt.Fprintf(w, "  %s@%s: %s\n", f.Name, f.Version, reason)
		}
	}
}

func printNode(tw *tabwriter.Writer, node *analyzer.DependencyAnalysis, depth int, showTree bool, issuesLimit int) {
	name := node.Name
	if depth > 0 {
		name = strings.Repeat("  ", depth) + "└ " + name
	}
	if node.IsInternal {
		name += " (internal)"
	}

	issues := summarizeIssues(node)
	if len(issues) > issuesLimit {
		issues = issues[:issuesLimit-3] + "..."
	}
	issues = strings.ReplaceAll(issues, "\t", " ") // Replace tabs to avoid breaking alignment

	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		name,
		node.Version,
		node.Freshness.LatestVersion,
		node.Classification,
		node.Security.Severity,
		node.License.License.Expression(),
		issues,
	)

	if showTree {
		for _, child := range node.Children {
			printNode(tw, child, depth+1, showTree, issuesLimit)
		}
	}
}

func summarizeIssues(node *analyzer.DependencyAnalysis) string {
	if node.IsFailed {
		if node.NotFound {
			return "not found"
		}
		return node.Error
	}

	var parts []string
	if n := len(node.Security.Vulnerabilities); n > 0 {
		parts = append(parts, fmt.Sprintf("%d vulnerabilities", n))
	}
	if node.Freshness.IsUnmaintained {
		parts = append(parts, "unmaintained")
	}
	if node.Compatibility != nil && node.Compatibility.Status != analyzer.CompatSafe {
		parts = append(parts, string(node.Compatibility.Status))
	}
	if !node.License.Compatible {
		parts = append(parts, "license conflict")
	} else if node.License.NeedsReview {
		parts = append(parts, "license needs review")
	}
	return strings.Join(parts, ", ")
}

func printSummary(w io.Writer, result *analyzer.AnalysisResult) {
	s := result.Summary
	fmt.Fprintf(w, "Analyzed %d direct dependencies", s.TotalDependencies)
	if s.Errors > 0 || s.NotFound > 0 {
		fmt.Fprintf(w, " (%d errors, %d not found)", s.Errors, s.NotFound)
	}
	fmt.Fprintln(w)

	// Stable, severity-first order so the worst buckets print first.
	order := []analyzer.Classification{
		analyzer.ClassCriticalSecurity,
		analyzer.ClassHighSecurity,
		analyzer.ClassMediumSecurity,
		analyzer.ClassLowSecurity,
		analyzer.ClassUnmaintained,
		analyzer.ClassMajorOutdated,
		analyzer.ClassMinorOutdated,
		analyzer.ClassPatchOutdated,
		analyzer.ClassHealthy,
	}
	for _, c := range order {
		if n := s.ByClassification[c]; n > 0 {
			fmt.Fprintf(w, "  %-18s %d\n", c, n)
		}
	}
}

func printScore(w io.Writer, score analyzer.HealthScore) {
	fmt.Fprintf(w, "Health score: %d/100\n", score.Overall)
	fmt.Fprintf(w, "  security      %3d\n", score.Security)
	fmt.Fprintf(w, "  freshness     %3d\n", score.Freshness)
	fmt.Fprintf(w, "  compatibility %3d\n", score.Compatibility)
	fmt.Fprintf(w, "  license       %3d\n", score.License)
}
