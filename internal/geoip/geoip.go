// Package geoip indexes the networks of a MaxMind DB by country or category code.
package geoip

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oschwald/maxminddb-golang"
	log "github.com/sirupsen/logrus"
)

type GeoIP struct {
	mu    sync.RWMutex
	cidrs map[string][]string
}

func NewGeoIP() *GeoIP {
	return &GeoIP{
		cidrs: make(map[string][]string),
	}
}

// Load parses the MMDB bytes and builds the in-memory index
func (g *GeoIP) Load(data []byte) error {
	db, err := maxminddb.FromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to open mmdb: %w", err)
	}
	defer db.Close()

	log.WithFields(log.Fields{
		"size": len(data),
		"type": db.Metadata.DatabaseType,
	}).Debug("geoip database opened")

	newCIDRs := make(map[string][]string)

	networks := db.Networks(maxminddb.SkipAliasedNetworks)
	count := 0
	for networks.Next() {
		var record interface{}
		subnet, err := networks.Network(&record)
		if err != nil {
			continue
		}

		code := codeFromRecord(record)
		if code == "" {
			continue
		}

		newCIDRs[code] = append(newCIDRs[code], subnet.String())
		count++
	}
	if err := networks.Err(); err != nil {
		return fmt.Errorf("failed to walk mmdb networks: %w", err)
	}
	log.WithFields(log.Fields{
		"networks": count,
		"codes":    len(newCIDRs),
	}).Info("geoip database loaded")

	g.mu.Lock()
	g.cidrs = newCIDRs
	g.mu.Unlock()

	return nil
}

// codeFromRecord extracts the code from the record shapes seen in the wild:
// a bare string (geoip-lite), {"country": {"iso_code": ...}} (GeoLite2),
// {"iso_code": ...} or {"code": ...}.
func codeFromRecord(record interface{}) string {
	var code string
	switch v := record.(type) {
	case string:
		code = v
	case map[string]interface{}:
		if c, ok := v["country"].(map[string]interface{}); ok {
			if iso, ok := c["iso_code"].(string); ok {
				code = iso
			}
		} else if iso, ok := v["iso_code"].(string); ok {
			code = iso
		} else if s, ok := v["code"].(string); ok {
			code = s
		}
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// GetCIDRs returns the list of CIDRs for the given country code or category
func (g *GeoIP) GetCIDRs(code string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cidrs, ok := g.cidrs[strings.ToUpper(code)]
	return cidrs, ok
}

// Len returns the number of indexed codes.
func (g *GeoIP) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cidrs)
}
