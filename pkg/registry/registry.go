// Package registry defines the package-registry contract the analysis
// pipeline consumes, plus the npm implementation and a caching
// decorator. Analyzers depend only on the Client interface so tests
// can substitute fakes.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound distinguishes a confirmed-absent package from transport
// failures. Callers test it with errors.Is.
var ErrNotFound = errors.New("package not found")

// PackageInfo is the registry metadata for the latest published version
// of a package. Immutable once fetched within one analysis run.
type PackageInfo struct {
	Name          string      `json:"name"`
	Version       string      `json:"version"`
	License       interface{} `json:"license,omitempty"`
	RepositoryURL string      `json:"repositoryUrl,omitempty"`
	PublishedAt   time.Time   `json:"publishedAt"`
	// DeprecatedMessage is the package-level deprecation notice on the
	// latest version, empty when not deprecated.
	DeprecatedMessage string `json:"deprecatedMessage,omitempty"`
	Readme            string `json:"readme,omitempty"`
}

// Client is the registry contract.
type Client interface {
	// GetPackageInfo fetches metadata for the latest published version.
	// Returns an error satisfying errors.Is(err, ErrNotFound) when the
	// package does not exist.
	GetPackageInfo(ctx context.Context, name string) (*PackageInfo, error)

	// GetVersionDeprecation returns the deprecation notice attached to
	// one specific published version, or "" when that version is not
	// deprecated.
	GetVersionDeprecation(ctx context.Context, name, version string) (string, error)
}
