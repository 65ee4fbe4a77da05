package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sambabib/dephealth/pkg/analyzer"
	"github.com/sambabib/dephealth/pkg/cache"
	"github.com/sambabib/dephealth/pkg/config"
	"github.com/sambabib/dephealth/pkg/logger"
	"github.com/sambabib/dephealth/pkg/netstatus"
	"github.com/sambabib/dephealth/pkg/output"
	"github.com/sambabib/dephealth/pkg/registry"
	"github.com/sambabib/dephealth/pkg/scanner"
	"github.com/sambabib/dephealth/pkg/vulnsource"
)

var (
	analyzePath       string
	format            string // output format: text, json, or sarif
	configPath        string
	outputFile        string
	treeFile          string
	noCache           bool
	includeTransitive bool
	showTree          bool
)

// analyzeCmd represents the analyze subcommand
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze project dependency health",
	Long:  "Analyze the project's dependency tree and report vulnerabilities, stale or unmaintained packages, license conflicts, and upgrade risk, with a composite health score.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg *config.Config
		var err error
		if configPath != "" {
			cfg, err = config.LoadConfig(configPath)
		} else {
			cfg, err = config.FindAndLoadConfig(analyzePath)
		}
		if err != nil {
			return err
		}
		if format == "" {
			format = cfg.Output.Format
		}
		if outputFile == "" {
			outputFile = cfg.Output.File
		}
		switch format {
		case "text", "json", "sarif":
		default:
			return fmt.Errorf("unsupported format %q (expected text, json, or sarif)", format)
		}

		var project *analyzer.ProjectInfo
		if treeFile != "" {
			roots, err := scanner.LoadTree(treeFile)
			if err != nil {
				return fmt.Errorf("loading dependency tree: %w", err)
			}
			project = &analyzer.ProjectInfo{Name: analyzePath, Roots: roots}
		} else {
			project, err = scanner.Scan(analyzePath)
			if err != nil {
				return fmt.Errorf("scanning project: %w", err)
			}
		}
		if cfg.License.Project != "" {
			project.License = cfg.License.Project
		}
		project.Roots = filterIgnored(project.Roots, cfg)

		logger.Infof("Analyzing %d direct dependencies in %s", len(project.Roots), analyzePath)

		status := netstatus.NewTracker()
		store := cache.New(cfg.PositiveTTL(), cfg.NegativeTTL())

		npm := registry.NewNpmClient(status)
		if cfg.Registries.Npm != "" {
			npm.RegistryURL = cfg.Registries.Npm
		}
		cached := registry.NewCachedClient(npm, store)

		osv := vulnsource.NewOSVClient("npm", status)
		if cfg.Registries.OSV != "" {
			osv.BaseURL = cfg.Registries.OSV
		}

		freshCfg := analyzer.FreshnessConfig{
			GracePeriod:       cfg.GracePeriod(),
			UnmaintainedAfter: cfg.UnmaintainedAfter(),
		}
		orch := analyzer.NewOrchestrator(
			analyzer.NewBatchSecurityAnalyzer(vulnsource.NewAggregator(osv)),
			analyzer.NewFreshnessAnalyzer(cached, freshCfg),
			analyzer.NewCompatibilityAnalyzerWithTimeout(cached, cfg.ProbeTimeout()),
			analyzer.NewHealthScoreCalculator(cfg.Score),
			cached,
			store,
			status,
			analyzer.OrchestratorConfig{
				ChunkSize:       cfg.ChunkSize,
				AllowedLicenses: cfg.License.Allowed,
			},
		)

		result, err := orch.Analyze(cmd.Context(), project, analyzer.Options{
			BypassCache:       noCache,
			IncludeTransitive: includeTransitive,
		})
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		if result.Metadata.NetworkDegraded {
			logger.Warnf("Network degraded during run: %v", result.Metadata.DegradedSources)
		}

		return render(result)
	},
}

// filterIgnored drops ignore-listed packages from the forest, at every
// depth.
func filterIgnored(roots []*analyzer.Dependency, cfg *config.Config) []*analyzer.Dependency {
	if len(cfg.IgnorePackages) == 0 {
		return roots
	}
	kept := make([]*analyzer.Dependency, 0, len(roots))
	for _, dep := range roots {
		if cfg.IsPackageIgnored(dep.Name) {
			logger.Debugf("Ignoring package %s per configuration", dep.Name)
			continue
		}
		dep.Children = filterIgnored(dep.Children, cfg)
		kept = append(kept, dep)
	}
	return kept
}

func render(result *analyzer.AnalysisResult) error {
	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "json":
		data, err := output.GenerateJSONReport(result)
		if err != nil {
			return fmt.Errorf("failed to marshal report to JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "sarif":
		data, err := output.GenerateSarifReport(result, analyzePath, Version)
		if err != nil {
			return fmt.Errorf("failed to generate SARIF report: %w", err)
		}
		fmt.Fprintln(out, string(data))
	default:
		output.PrintTextReport(out, result, showTree)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzePath, "path", "p", ".", "Path to project directory to analyze")
	analyzeCmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json, or sarif")
	analyzeCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	analyzeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the report to a file instead of stdout")
	analyzeCmd.Flags().StringVar(&treeFile, "tree-file", "", "Analyze a pre-resolved dependency tree (JSON) instead of scanning")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass cached registry responses")
	analyzeCmd.Flags().BoolVar(&includeTransitive, "include-transitive", false, "Carry transitive dependencies into the report tree")
	analyzeCmd.Flags().BoolVar(&showTree, "tree", false, "Print the dependency tree in text output")
}
