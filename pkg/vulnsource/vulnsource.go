// Package vulnsource defines the vulnerability-source contract the
// security analyzer consumes, an OSV-backed implementation, and an
// aggregator that merges several sources into one batched view.
package vulnsource

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a source that could not be reached at all.
var ErrUnavailable = errors.New("vulnerability source unavailable")

// Severity levels, ordered none < low < medium < high < critical.
const (
	SeverityNone     = "none"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityRank orders severities for aggregation; unknown strings rank
// as medium so a malformed record is never silently downgraded to none.
func SeverityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityNone:
		return 0
	default:
		return 2
	}
}

// Vulnerability is one advisory affecting a package.
type Vulnerability struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	// AffectedRanges holds the advisory's affected-version ranges in the
	// source's textual grammar. An advisory split into several range
	// entries keeps them all: a version matching any range matches the
	// advisory.
	AffectedRanges []string   `json:"affectedRanges"`
	Description    string     `json:"description,omitempty"`
	References     []string   `json:"references,omitempty"`
	PublishedDate  *time.Time `json:"publishedDate,omitempty"`
	// Sources names the underlying feeds that corroborated this advisory.
	// Populated by the aggregator; single sources leave it with one entry.
	Sources []string `json:"sources,omitempty"`
}

// Query identifies one package@version to look up.
type Query struct {
	Name    string
	Version string
}

// Key is the map key batch answers are reported under. Keying by name
// alone would collide when one batch carries the same package at two
// versions (distinct workspace scopes).
func (q Query) Key() string {
	return q.Name + "@" + q.Version
}

// Source answers one package at a time.
type Source interface {
	// Name identifies the source in telemetry and corroboration lists.
	Name() string
	GetVulnerabilities(ctx context.Context, name, version string) ([]Vulnerability, error)
}

// BatchSource answers a whole chunk in one call. The result map is
// keyed by Query.Key.
type BatchSource interface {
	Source
	GetBatchVulnerabilities(ctx context.Context, queries []Query) (map[string][]Vulnerability, error)
}
