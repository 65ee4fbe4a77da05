package analyzer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sambabib/dephealth/pkg/cache"
	"github.com/sambabib/dephealth/pkg/license"
	"github.com/sambabib/dephealth/pkg/logger"
	"github.com/sambabib/dephealth/pkg/netstatus"
	"github.com/sambabib/dephealth/pkg/registry"
	"github.com/sambabib/dephealth/pkg/vulnsource"
)

// ErrRunning is returned when an analysis is started while another is
// still in flight on the same orchestrator.
var ErrRunning = errors.New("analysis already in progress")

// DefaultChunkSize bounds how many dependencies are in flight at once.
const DefaultChunkSize = 50

// OrchestratorConfig tunes the scheduler and license policy.
type OrchestratorConfig struct {
	ChunkSize       int
	AllowedLicenses []string
}

// Orchestrator drives the per-dimension analyzers over a dependency
// forest: deduplicated work list, sequential chunks, concurrent
// in-chunk fan-out, tree reconstruction, summary, and score.
type Orchestrator struct {
	security  *SecurityAnalyzer
	freshness *FreshnessAnalyzer
	compat    *CompatibilityAnalyzer
	score     *HealthScoreCalculator

	cached *registry.CachedClient
	store  *cache.Store
	status *netstatus.Tracker

	cfg OrchestratorConfig

	mu      sync.Mutex
	running bool
	state   AnalysisStatus
}

// NewOrchestrator wires the pipeline together. The cached client must
// wrap the same registry client the freshness and compatibility
// analyzers use, so their lookups share the store.
func NewOrchestrator(
	sec *SecurityAnalyzer,
	fresh *FreshnessAnalyzer,
	compat *CompatibilityAnalyzer,
	score *HealthScoreCalculator,
	cached *registry.CachedClient,
	store *cache.Store,
	status *netstatus.Tracker,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Orchestrator{
		security:  sec,
		freshness: fresh,
		compat:    compat,
		score:     score,
		cached:    cached,
		store:     store,
		status:    status,
		cfg:       cfg,
	}
}

// Status reports progress of the in-flight run, pollable concurrently.
func (o *Orchestrator) Status() AnalysisStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setStatus(progress int, item string) {
	o.mu.Lock()
	o.state.Progress = progress
	o.state.CurrentItem = item
	o.mu.Unlock()
}

// Analyze runs the full pipeline over the project's dependency forest.
func (o *Orchestrator) Analyze(ctx context.Context, project *ProjectInfo, opts Options) (*AnalysisResult, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrRunning
	}
	o.running = true
	o.state = AnalysisStatus{IsRunning: true}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.state.IsRunning = false
		o.state.CurrentItem = ""
		o.mu.Unlock()
	}()

	started := time.Now()
	if o.store != nil {
		o.store.ResetStats()
	}
	if o.cached != nil {
		o.cached.Bypass = opts.BypassCache
	}

	work := flatten(project.Roots)
	logger.Infof("analyzing %d unique dependencies for %s", len(work), project.Name)

	results := make(map[string]*DependencyAnalysis, len(work))
	var failed []FailedPackage
	processed := 0

	chunkCount := 0
	for chunkStart := 0; chunkStart < len(work); chunkStart += o.cfg.ChunkSize {
		end := chunkStart + o.cfg.ChunkSize
		if end > len(work) {
			end = len(work)
		}
		chunk := work[chunkStart:end]
		chunkCount++

		chunkResults, chunkFailed, err := o.processChunk(ctx, project, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunkCount, err)
		}
		for k, v := range chunkResults {
			results[k] = v
		}
		failed = append(failed, chunkFailed...)

		processed += len(chunk)
		o.setStatus(processed*100/len(work), "")
	}
	if len(work) == 0 {
		o.setStatus(100, "")
	}

	tree := rebuildTree(project.Roots, results, opts.IncludeTransitive)
	summary := summarize(work, results)

	var scored []*DependencyAnalysis
	for _, a := range results {
		scored = append(scored, a)
	}
	healthScore := o.score.Calculate(scored)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	meta := RunMetadata{
		RunID:         uuid.NewString(),
		StartedAt:     started,
		Duration:      time.Since(started),
		AnalyzedCount: len(work),
		ChunkCount:    chunkCount,
		AllocBytes:    mem.Alloc,
	}
	if o.store != nil {
		stats := o.store.Stats()
		meta.CacheHits = stats.Hits
		meta.CacheRequests = stats.Requests
	}
	if o.status != nil {
		meta.NetworkDegraded = o.status.Degraded()
		meta.DegradedSources = o.status.Sources()
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].Name < failed[j].Name })
	return &AnalysisResult{
		Tree:           tree,
		HealthScore:    healthScore,
		Summary:        summary,
		FailedPackages: failed,
		Metadata:       meta,
	}, nil
}

// AnalyzeIncremental re-analyzes only the changed dependencies,
// treating them as a flat forest.
func (o *Orchestrator) AnalyzeIncremental(ctx context.Context, project *ProjectInfo, changed []*Dependency, opts Options) (*AnalysisResult, error) {
	sub := &ProjectInfo{Name: project.Name, License: project.License, Roots: changed}
	return o.Analyze(ctx, sub, opts)
}

// processChunk fans out the three analysis families concurrently:
// one batched security call for the whole chunk, and per-dependency
// freshness followed by compatibility (compatibility consumes the
// freshness result, a data dependency). Per-item failures are isolated;
// a failed batched security fetch aborts the run.
func (o *Orchestrator) processChunk(ctx context.Context, project *ProjectInfo, chunk []*Dependency) (map[string]*DependencyAnalysis, []FailedPackage, error) {
	type itemResult struct {
		freshness FreshnessAnalysis
		compat    *CompatibilityAnalysis
		license   LicenseAnalysis
		notFound  bool
		err       error
	}

	items := make([]itemResult, len(chunk))
	var security map[string]SecurityAnalysis

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		security, err = o.security.AnalyzeBatch(gctx, chunk)
		return err
	})

	for i, dep := range chunk {
		i, dep := i, dep
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					items[i].err = fmt.Errorf("panic analyzing %s: %v", dep.Name, r)
				}
			}()
			o.setStatusItem(dep)

			freshness, info, err := o.freshness.Analyze(gctx, dep, nil)
			if err != nil {
				if errors.Is(err, registry.ErrNotFound) {
					items[i].notFound = true
				}
				items[i].err = err
				return nil // isolated: never aborts siblings
			}
			items[i].freshness = freshness
			items[i].license = o.analyzeLicense(project, dep, info)
			compat := o.compat.Analyze(gctx, dep, info, freshness)
			items[i].compat = &compat
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// only the batched security fetch returns an error; it is fatal
		return nil, nil, err
	}

	results := make(map[string]*DependencyAnalysis, len(chunk))
	var failed []FailedPackage
	for i, dep := range chunk {
		item := items[i]
		analysis := &DependencyAnalysis{
			Name:           dep.Name,
			Version:        dep.Version,
			WorkspaceScope: dep.WorkspaceScope,
			IsDev:          dep.IsDev,
			IsInternal:     dep.IsInternal,
			IsTransitive:   dep.IsTransitive,
			Security:       security[securityKey(dep)],
			Freshness:      item.freshness,
			License:        item.license,
			Compatibility:  item.compat,
		}

		switch {
		case item.notFound:
			analysis.IsFailed = true
			analysis.NotFound = true
			analysis.Error = item.err.Error()
			analysis.Classification = ClassUnknown
			failed = append(failed, FailedPackage{
				Name: dep.Name, Version: dep.Version, WorkspaceScope: dep.WorkspaceScope,
				Reason: item.err.Error(), NotFound: true,
			})
		case item.err != nil:
			// generic failure: counted as an error, kept in the tree with
			// conservative default sub-analyses
			analysis.IsFailed = true
			analysis.Error = item.err.Error()
			analysis.Classification = ClassUnknown
			analysis.Freshness = FreshnessAnalysis{
				CurrentVersion: dep.Version, LatestVersion: dep.Version, VersionGap: GapCurrent,
			}
			analysis.Compatibility = &CompatibilityAnalysis{Status: CompatSafe}
			failed = append(failed, FailedPackage{
				Name: dep.Name, Version: dep.Version, WorkspaceScope: dep.WorkspaceScope,
				Reason: item.err.Error(),
			})
			logger.Warnf("analysis failed for %s@%s: %v", dep.Name, dep.Version, item.err)
		default:
			analysis.Classification = classify(analysis)
		}
		results[dep.Key()] = analysis
	}
	return results, failed, nil
}

func (o *Orchestrator) setStatusItem(dep *Dependency) {
	o.mu.Lock()
	o.state.CurrentItem = dep.Name + "@" + dep.Version
	o.mu.Unlock()
}

// analyzeLicense runs the license dimension from the registry metadata.
// Internal dependencies are compatible by convention.
func (o *Orchestrator) analyzeLicense(project *ProjectInfo, dep *Dependency, info *registry.PackageInfo) LicenseAnalysis {
	if dep.IsInternal || info == nil {
		return LicenseAnalysis{
			License:    license.Parse(nil),
			Compatible: dep.IsInternal,
		}
	}
	parsed := license.Parse(info.License)
	check := license.Check(parsed, license.Policy{
		Allowed:        o.cfg.AllowedLicenses,
		ProjectLicense: project.License,
	})
	analysis := LicenseAnalysis{
		License:     parsed,
		Compatible:  check.Compatible,
		NeedsReview: check.NeedsReview,
		Conflicts:   check.Conflicts,
	}
	for _, id := range parsed.Identifiers {
		analysis.Classifications = append(analysis.Classifications, license.Classify(id))
	}
	return analysis
}

// classify picks the single primary label, highest priority first:
// security severities, unmaintained, outdated-ness, healthy.
func classify(a *DependencyAnalysis) Classification {
	switch a.Security.Severity {
	case vulnsource.SeverityCritical:
		return ClassCriticalSecurity
	case vulnsource.SeverityHigh:
		return ClassHighSecurity
	case vulnsource.SeverityMedium:
		return ClassMediumSecurity
	case vulnsource.SeverityLow:
		return ClassLowSecurity
	}
	if a.Freshness.IsUnmaintained {
		return ClassUnmaintained
	}
	if a.Freshness.IsOutdated || a.Freshness.VersionGap == GapPatch {
		switch a.Freshness.VersionGap {
		case GapMajor:
			return ClassMajorOutdated
		case GapMinor:
			return ClassMinorOutdated
		case GapPatch:
			return ClassPatchOutdated
		}
	}
	return ClassHealthy
}

// flatten walks the forest into a deduplicated work list keyed by
// scoped identity, preserving first-seen order. When a package appears
// as both direct and transitive within one scope, the direct
// classification wins.
func flatten(roots []*Dependency) []*Dependency {
	index := map[string]int{}
	var work []*Dependency

	var walk func(dep *Dependency)
	walk = func(dep *Dependency) {
		key := dep.Key()
		if i, seen := index[key]; seen {
			if work[i].IsTransitive && !dep.IsTransitive {
				work[i] = dep
			}
		} else {
			index[key] = len(work)
			work = append(work, dep)
		}
		for _, child := range dep.Children {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return work
}

// rebuildTree walks the input forest substituting each node's cached
// analysis, producing per-position shallow copies so sibling-shared
// packages never share a mutable children slice.
func rebuildTree(roots []*Dependency, results map[string]*DependencyAnalysis, includeTransitive bool) []*DependencyAnalysis {
	var build func(dep *Dependency) *DependencyAnalysis
	build = func(dep *Dependency) *DependencyAnalysis {
		analysis, ok := results[dep.Key()]
		if !ok {
			return nil
		}
		node := analysis.cloneForPosition()
		if includeTransitive {
			for _, child := range dep.Children {
				if childNode := build(child); childNode != nil {
					node.Children = append(node.Children, childNode)
				}
			}
		}
		return node
	}

	tree := make([]*DependencyAnalysis, 0, len(roots))
	for _, root := range roots {
		if node := build(root); node != nil {
			tree = append(tree, node)
		}
	}
	return tree
}

// summarize computes top-line counts over direct, non-internal
// dependencies only; transitive dependencies inform detail but not the
// counts, including the failure counters. Run-level failure detail
// lives in FailedPackages.
func summarize(work []*Dependency, results map[string]*DependencyAnalysis) AnalysisSummary {
	summary := AnalysisSummary{ByClassification: map[Classification]int{}}
	for _, dep := range work {
		if dep.IsTransitive || dep.IsInternal {
			continue
		}
		analysis, ok := results[dep.Key()]
		if !ok {
			continue
		}
		if analysis.NotFound {
			summary.NotFound++
			continue
		}
		if analysis.IsFailed {
			summary.Errors++
			continue
		}
		summary.TotalDependencies++
		summary.ByClassification[analysis.Classification]++
	}
	return summary
}
