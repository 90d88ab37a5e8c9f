// Package fetcher downloads remote databases with ETag revalidation.
package fetcher

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xxxbrian/ruleset-builder/internal/cache"
)

const (
	DefaultGeoIPURL = "https://github.com/MetaCubeX/meta-rules-dat/releases/download/latest/geoip-lite.db"
	userAgent       = "Ruleset-Builder-Go/1.0"
)

// Fetcher downloads a single URL through a BlobCache
type Fetcher struct {
	client *http.Client
	url    string
	cache  *cache.BlobCache
}

// NewFetcher creates a new Fetcher
func NewFetcher(url string, blobCache *cache.BlobCache) *Fetcher {
	if url == "" {
		url = DefaultGeoIPURL
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		url:   url,
		cache: blobCache,
	}
}

// IsURL reports whether location should be downloaded rather than read from disk.
func IsURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// GetETag fetches the ETag without downloading the full file
func (f *Fetcher) GetETag() (string, error) {
	req, err := http.NewRequest(http.MethodHead, f.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HEAD request failed: %s", resp.Status)
	}

	etag := resp.Header.Get("ETag")
	// Clean up ETag (remove quotes and W/ prefix if present)
	etag = strings.ReplaceAll(etag, "\"", "")
	etag = strings.TrimPrefix(etag, "W/")

	return etag, nil
}

// Get returns cached or freshly downloaded data
func (f *Fetcher) Get() ([]byte, error) {
	data, etag, ok := f.cache.Get()
	if ok {
		log.WithField("url", f.url).Debug("using cached download")
		return data, nil
	}

	newETag, err := f.GetETag()
	if err != nil {
		// Stale data beats no data
		if data, _, ok := f.cache.GetAny(); ok {
			log.WithField("url", f.url).Warnf("ETag check failed, using stale cache: %v", err)
			return data, nil
		}
		return nil, fmt.Errorf("failed to get ETag: %w", err)
	}

	if newETag != "" && etag == newETag {
		if data, _, ok := f.cache.GetAny(); ok {
			if err := f.cache.Touch(); err != nil {
				return nil, fmt.Errorf("failed to set cache: %w", err)
			}
			return data, nil
		}
	}

	data, err = f.download()
	if err != nil {
		return nil, err
	}

	if err := f.cache.Set(data, newETag); err != nil {
		return nil, fmt.Errorf("failed to set cache: %w", err)
	}
	log.WithFields(log.Fields{
		"url":  f.url,
		"size": len(data),
	}).Info("downloaded")

	return data, nil
}

func (f *Fetcher) download() ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return data, nil
}
