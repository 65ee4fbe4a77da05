package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambabib/dephealth/pkg/cache"
)

// mockRegistry simulates an npm registry. Keys are URL paths without the
// leading slash ("lodash", "lodash/4.17.20").
func mockRegistry(t *testing.T, docs map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		doc, ok := docs[key]
		if !ok {
			t.Logf("mock registry: unexpected request for %s", key)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
}

func packumentDoc(name, latest, license, deprecated, published string) map[string]interface{} {
	return map[string]interface{}{
		"name":      name,
		"dist-tags": map[string]string{"latest": latest},
		"versions": map[string]interface{}{
			latest: map[string]interface{}{"deprecated": deprecated, "license": license},
		},
		"time":       map[string]string{latest: published},
		"repository": map[string]string{"url": "https://github.com/acme/" + name},
	}
}

func TestNpmClient_GetPackageInfo(t *testing.T) {
	server := mockRegistry(t, map[string]interface{}{
		"lodash": packumentDoc("lodash", "4.17.21", "MIT", "", "2021-02-20T15:42:16.891Z"),
	})
	defer server.Close()

	c := NewNpmClient(nil)
	c.RegistryURL = server.URL

	info, err := c.GetPackageInfo(context.Background(), "lodash")
	require.NoError(t, err)
	assert.Equal(t, "lodash", info.Name)
	assert.Equal(t, "4.17.21", info.Version)
	assert.Equal(t, "MIT", info.License)
	assert.Equal(t, "https://github.com/acme/lodash", info.RepositoryURL)
	assert.Equal(t, 2021, info.PublishedAt.Year())
	assert.Empty(t, info.DeprecatedMessage)
}

func TestNpmClient_NotFound(t *testing.T) {
	server := mockRegistry(t, nil)
	defer server.Close()

	c := NewNpmClient(nil)
	c.RegistryURL = server.URL

	_, err := c.GetPackageInfo(context.Background(), "no-such-package")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNpmClient_GetVersionDeprecation(t *testing.T) {
	server := mockRegistry(t, map[string]interface{}{
		"request/2.88.2": map[string]string{"deprecated": "request has been deprecated"},
		"lodash/4.17.21": map[string]string{},
	})
	defer server.Close()

	c := NewNpmClient(nil)
	c.RegistryURL = server.URL

	msg, err := c.GetVersionDeprecation(context.Background(), "request", "2.88.2")
	require.NoError(t, err)
	assert.Equal(t, "request has been deprecated", msg)

	msg, err = c.GetVersionDeprecation(context.Background(), "lodash", "4.17.21")
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestCachedClient_ServesFromCache(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(packumentDoc("react", "18.2.0", "MIT", "", "2022-06-14T00:00:00.000Z"))
	}))
	defer server.Close()

	inner := NewNpmClient(nil)
	inner.RegistryURL = server.URL
	c := NewCachedClient(inner, cache.New(0, 0))

	for i := 0; i < 3; i++ {
		info, err := c.GetPackageInfo(context.Background(), "react")
		require.NoError(t, err)
		assert.Equal(t, "18.2.0", info.Version)
	}
	assert.Equal(t, 1, requests, "second and third lookups served from cache")
	assert.Equal(t, int64(2), c.Stats().Hits)
}

func TestCachedClient_NegativeCache(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	inner := NewNpmClient(nil)
	inner.RegistryURL = server.URL
	c := NewCachedClient(inner, cache.New(0, 0))

	for i := 0; i < 3; i++ {
		_, err := c.GetPackageInfo(context.Background(), "ghost-pkg")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, requests, "repeat not-found lookups served by negative cache")
}

func TestCachedClient_BypassStillWrites(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(packumentDoc("vue", "3.4.0", "MIT", "", "2023-12-29T00:00:00.000Z"))
	}))
	defer server.Close()

	inner := NewNpmClient(nil)
	inner.RegistryURL = server.URL
	store := cache.New(0, 0)
	c := NewCachedClient(inner, store)

	// first run records a negative entry
	_, err := c.GetPackageInfo(context.Background(), "vue")
	require.ErrorIs(t, err, ErrNotFound)

	// bypass skips the negative entry, fetches, and repairs the cache
	c.Bypass = true
	info, err := c.GetPackageInfo(context.Background(), "vue")
	require.NoError(t, err)
	assert.Equal(t, "3.4.0", info.Version)

	// subsequent cached run sees the positive entry
	c.Bypass = false
	info, err = c.GetPackageInfo(context.Background(), "vue")
	require.NoError(t, err)
	assert.Equal(t, "3.4.0", info.Version)
	assert.Equal(t, 2, requests)

	// every lookup counts toward the request telemetry, bypassed included
	assert.Equal(t, int64(3), c.Stats().Requests)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestNpmClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewNpmClient(nil)
	c.RegistryURL = server.URL

	var lastErr error
	for i := 0; i < 8; i++ {
		_, lastErr = c.GetPackageInfo(context.Background(), fmt.Sprintf("pkg-%d", i))
	}
	assert.ErrorIs(t, lastErr, gobreaker.ErrOpenState)
}

func TestNpmClient_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewNpmClient(nil)
	c.RegistryURL = server.URL

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetPackageInfo(ctx, "slow-pkg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline"),
		"expected a deadline error, got %v", err)
}
