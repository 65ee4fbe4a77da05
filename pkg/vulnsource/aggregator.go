package vulnsource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sambabib/dephealth/pkg/logger"
)

// Aggregator fans a query out to several underlying sources and merges
// the answers. It implements BatchSource: a batch is served by querying
// every (source, package) pair with bounded concurrency.
//
// Duplicate advisory IDs are merged, whether they come from different
// sources or from one source splitting an advisory into several
// affected-range entries: the merged record carries the union of all
// ranges, the highest severity seen, and every corroborating source.
type Aggregator struct {
	sources []Source
	// MaxConcurrent bounds in-flight queries across the batch.
	MaxConcurrent int
}

// NewAggregator combines the given sources. At least one is required.
func NewAggregator(sources ...Source) *Aggregator {
	return &Aggregator{sources: sources, MaxConcurrent: 8}
}

// Name implements Source.
func (a *Aggregator) Name() string { return "aggregate" }

// GetVulnerabilities queries every source for one package and merges.
func (a *Aggregator) GetVulnerabilities(ctx context.Context, name, version string) ([]Vulnerability, error) {
	q := Query{Name: name, Version: version}
	res, err := a.GetBatchVulnerabilities(ctx, []Query{q})
	if err != nil {
		return nil, err
	}
	return res[q.Key()], nil
}

// GetBatchVulnerabilities serves a whole chunk. It fails only when a
// package gets no answer from any source; a single source failing while
// another answers degrades with a warning.
func (a *Aggregator) GetBatchVulnerabilities(ctx context.Context, queries []Query) (map[string][]Vulnerability, error) {
	type answer struct {
		key    string
		source string
		vulns  []Vulnerability
		err    error
	}

	answers := make([]answer, 0, len(queries)*len(a.sources))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.MaxConcurrent)
	for _, q := range queries {
		for _, src := range a.sources {
			q, src := q, src
			g.Go(func() error {
				vulns, err := src.GetVulnerabilities(ctx, q.Name, q.Version)
				mu.Lock()
				answers = append(answers, answer{key: q.Key(), source: src.Name(), vulns: vulns, err: err})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := map[string]int{}
	merged := map[string]map[string]*Vulnerability{}
	for _, ans := range answers {
		if ans.err != nil {
			logger.Warnf("vulnerability source %s failed for %s: %v", ans.source, ans.key, ans.err)
			failed[ans.key]++
			continue
		}
		byID := merged[ans.key]
		if byID == nil {
			byID = map[string]*Vulnerability{}
			merged[ans.key] = byID
		}
		for _, v := range ans.vulns {
			mergeAdvisory(byID, v, ans.source)
		}
	}

	// a package every source failed on means we cannot vouch for the
	// chunk's security data at all
	for key, n := range failed {
		if _, ok := merged[key]; !ok && n == len(a.sources) {
			return nil, fmt.Errorf("%w: all sources failed for %s", ErrUnavailable, key)
		}
	}

	out := make(map[string][]Vulnerability, len(merged))
	for key, byID := range merged {
		list := make([]Vulnerability, 0, len(byID))
		for _, v := range byID {
			list = append(list, *v)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		out[key] = list
	}
	return out, nil
}

func mergeAdvisory(byID map[string]*Vulnerability, v Vulnerability, source string) {
	existing, ok := byID[v.ID]
	if !ok {
		v.Sources = []string{source}
		byID[v.ID] = &v
		return
	}
	// union of ranges: a version matching any range matches the advisory
	existing.AffectedRanges = appendUnique(existing.AffectedRanges, v.AffectedRanges...)
	existing.References = appendUnique(existing.References, v.References...)
	existing.Sources = appendUnique(existing.Sources, source)
	if SeverityRank(v.Severity) > SeverityRank(existing.Severity) {
		existing.Severity = v.Severity
	}
	if existing.Description == "" {
		existing.Description = v.Description
	}
	if existing.PublishedDate == nil {
		existing.PublishedDate = v.PublishedDate
	}
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

var _ BatchSource = (*Aggregator)(nil)
