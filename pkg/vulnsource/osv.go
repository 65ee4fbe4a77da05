package vulnsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sambabib/dephealth/pkg/logger"
	"github.com/sambabib/dephealth/pkg/netstatus"
)

const defaultOSVURL = "https://api.osv.dev"

// OSVClient queries the OSV database (api.osv.dev).
type OSVClient struct {
	// BaseURL allows overriding the endpoint for testing.
	BaseURL string
	// Ecosystem is the OSV ecosystem tag, e.g. "npm".
	Ecosystem string

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	status     *netstatus.Tracker
}

// NewOSVClient creates a client for the given ecosystem. The tracker
// records degraded-network events for the run; it may be nil.
func NewOSVClient(ecosystem string, status *netstatus.Tracker) *OSVClient {
	c := &OSVClient{
		Ecosystem:  ecosystem,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		status:     status,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "osv",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("vulnerability source breaker %s: %s -> %s", name, from, to)
		},
	})
	return c
}

// Name implements Source.
func (c *OSVClient) Name() string { return "osv" }

type osvQuery struct {
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
	Version string `json:"version,omitempty"`
}

type osvAdvisory struct {
	ID        string   `json:"id"`
	Summary   string   `json:"summary"`
	Details   string   `json:"details"`
	Published string   `json:"published"`
	Aliases   []string `json:"aliases"`
	Affected  []struct {
		Package struct {
			Name      string `json:"name"`
			Ecosystem string `json:"ecosystem"`
		} `json:"package"`
		Ranges []struct {
			Type   string `json:"type"`
			Events []struct {
				Introduced string `json:"introduced"`
				Fixed      string `json:"fixed"`
				LastAffect string `json:"last_affected"`
			} `json:"events"`
		} `json:"ranges"`
		DatabaseSpecific map[string]interface{} `json:"database_specific"`
	} `json:"affected"`
	References []struct {
		URL string `json:"url"`
	} `json:"references"`
	DatabaseSpecific map[string]interface{} `json:"database_specific"`
}

func (c *OSVClient) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultOSVURL
}

func (c *OSVClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding OSV request: %w", err)
	}
	data, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: OSV returned %s", ErrUnavailable, resp.Status)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if c.status != nil {
			c.status.MarkDegraded("osv")
		}
		return nil, err
	}
	return data, nil
}

// GetVulnerabilities queries one package@version.
func (c *OSVClient) GetVulnerabilities(ctx context.Context, name, version string) ([]Vulnerability, error) {
	q := osvQuery{Version: strings.TrimLeft(version, "^~=v")}
	q.Package.Name = name
	q.Package.Ecosystem = c.Ecosystem

	logger.Debugf("osv: querying %s@%s", name, version)
	data, err := c.post(ctx, "/v1/query", q)
	if err != nil {
		return nil, err
	}

	var result struct {
		Vulns []osvAdvisory `json:"vulns"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding OSV response: %w", err)
	}

	out := make([]Vulnerability, 0, len(result.Vulns))
	for _, adv := range result.Vulns {
		out = append(out, convertAdvisory(adv, name))
	}
	return out, nil
}

// convertAdvisory projects an OSV record onto the pipeline's
// Vulnerability shape, rendering range events as comparator chains.
func convertAdvisory(adv osvAdvisory, pkgName string) Vulnerability {
	v := Vulnerability{
		ID:          adv.ID,
		Severity:    osvSeverity(adv),
		Description: firstNonEmpty(adv.Summary, adv.Details),
		Sources:     []string{"osv"},
	}
	if adv.Published != "" {
		if t, err := time.Parse(time.RFC3339, adv.Published); err == nil {
			v.PublishedDate = &t
		}
	}
	for _, ref := range adv.References {
		v.References = append(v.References, ref.URL)
	}
	for _, aff := range adv.Affected {
		if aff.Package.Name != "" && aff.Package.Name != pkgName {
			continue
		}
		for _, r := range aff.Ranges {
			var parts []string
			for _, e := range r.Events {
				switch {
				case e.Introduced != "" && e.Introduced != "0":
					parts = append(parts, ">="+e.Introduced)
				case e.Fixed != "":
					parts = append(parts, "<"+e.Fixed)
				case e.LastAffect != "":
					parts = append(parts, "<="+e.LastAffect)
				}
			}
			if len(parts) > 0 {
				v.AffectedRanges = append(v.AffectedRanges, strings.Join(parts, " "))
			}
		}
	}
	return v
}

// osvSeverity reads the database_specific severity tag; advisories
// without one rank as medium rather than disappearing.
func osvSeverity(adv osvAdvisory) string {
	if s, ok := adv.DatabaseSpecific["severity"].(string); ok {
		switch strings.ToLower(s) {
		case "critical":
			return SeverityCritical
		case "high":
			return SeverityHigh
		case "moderate", "medium":
			return SeverityMedium
		case "low":
			return SeverityLow
		}
	}
	return SeverityMedium
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Source = (*OSVClient)(nil)
