package analyzer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sambabib/dephealth/pkg/registry"
	"github.com/sambabib/dephealth/pkg/vulnsource"
)

// fakeRegistry is an in-memory registry.Client.
type fakeRegistry struct {
	infos        map[string]*registry.PackageInfo
	deprecations map[string]string // keyed by name@version
	infoErr      map[string]error
	deprecateErr error
	calls        atomic.Int64
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		infos:        map[string]*registry.PackageInfo{},
		deprecations: map[string]string{},
		infoErr:      map[string]error{},
	}
}

func (f *fakeRegistry) GetPackageInfo(_ context.Context, name string) (*registry.PackageInfo, error) {
	f.calls.Add(1)
	if err, ok := f.infoErr[name]; ok {
		return nil, err
	}
	info, ok := f.infos[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, registry.ErrNotFound)
	}
	return info, nil
}

func (f *fakeRegistry) GetVersionDeprecation(_ context.Context, name, version string) (string, error) {
	if f.deprecateErr != nil {
		return "", f.deprecateErr
	}
	return f.deprecations[name+"@"+version], nil
}

// fakeVulnSource is an in-memory vulnsource.Source.
type fakeVulnSource struct {
	vulns map[string][]vulnsource.Vulnerability
	err   error
}

func (f *fakeVulnSource) Name() string { return "fake" }

func (f *fakeVulnSource) GetVulnerabilities(_ context.Context, name, _ string) ([]vulnsource.Vulnerability, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vulns[name], nil
}

// fakeBatchSource adds batch capability and records batch sizes.
type fakeBatchSource struct {
	fakeVulnSource
	batchSizes []int
}

func (f *fakeBatchSource) GetBatchVulnerabilities(_ context.Context, queries []vulnsource.Query) (map[string][]vulnsource.Vulnerability, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batchSizes = append(f.batchSizes, len(queries))
	out := map[string][]vulnsource.Vulnerability{}
	for _, q := range queries {
		out[q.Key()] = f.vulns[q.Name]
	}
	return out, nil
}
