package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sambabib/dephealth/pkg/logger"
	"github.com/sambabib/dephealth/pkg/netstatus"
)

const defaultNpmRegistryURL = "https://registry.npmjs.org"

// NpmClient talks to an npm-compatible registry.
type NpmClient struct {
	// RegistryURL allows overriding the registry for testing.
	RegistryURL string

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	status     *netstatus.Tracker
}

// NewNpmClient creates a client against the public npm registry. The
// tracker records degraded-network events for the run; it may be nil.
func NewNpmClient(status *netstatus.Tracker) *NpmClient {
	c := &NpmClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		status:     status,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "npm-registry",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a confirmed-absent package is a valid answer, not a transport failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("registry breaker %s: %s -> %s", name, from, to)
		},
	})
	return c
}

// npmPackument is the subset of the registry document we read.
type npmPackument struct {
	Name     string `json:"name"`
	DistTags struct {
		Latest string `json:"latest"`
	} `json:"dist-tags"`
	Versions map[string]struct {
		Deprecated string      `json:"deprecated"`
		License    interface{} `json:"license"`
	} `json:"versions"`
	License    interface{}       `json:"license"`
	Readme     string            `json:"readme"`
	Time       map[string]string `json:"time"`
	Repository struct {
		URL string `json:"url"`
	} `json:"repository"`
}

func (c *NpmClient) baseURL() string {
	if c.RegistryURL != "" {
		return c.RegistryURL
	}
	return defaultNpmRegistryURL
}

func (c *NpmClient) get(ctx context.Context, path string) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("registry returned %s for %s", resp.Status, path)
		}
		return resp, nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		if c.status != nil {
			c.status.MarkDegraded("npm-registry")
		}
	}
	return resp, err
}

// GetPackageInfo fetches the registry document and projects the latest
// version's metadata into a PackageInfo.
func (c *NpmClient) GetPackageInfo(ctx context.Context, name string) (*PackageInfo, error) {
	logger.Debugf("registry: fetching %s", name)
	resp, err := c.get(ctx, "/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var doc npmPackument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid registry document for %s: %w", name, err)
	}

	latest := doc.DistTags.Latest
	if latest == "" {
		return nil, fmt.Errorf("registry document for %s has no latest tag", name)
	}

	info := &PackageInfo{
		Name:          name,
		Version:       latest,
		License:       doc.License,
		RepositoryURL: doc.Repository.URL,
		Readme:        doc.Readme,
	}
	if v, ok := doc.Versions[latest]; ok {
		info.DeprecatedMessage = v.Deprecated
		if v.License != nil {
			info.License = v.License
		}
	}
	if ts, ok := doc.Time[latest]; ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			info.PublishedAt = t
		}
	}
	return info, nil
}

// GetVersionDeprecation reads the deprecation notice on one published
// version via the registry's version endpoint.
func (c *NpmClient) GetVersionDeprecation(ctx context.Context, name, version string) (string, error) {
	resp, err := c.get(ctx, "/"+url.PathEscape(name)+"/"+url.PathEscape(version))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var doc struct {
		Deprecated string `json:"deprecated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("invalid version document for %s@%s: %w", name, version, err)
	}
	return doc.Deprecated, nil
}

var _ Client = (*NpmClient)(nil)
