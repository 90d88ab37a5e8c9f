package cmd

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xxxbrian/ruleset-builder/internal/builder"
	"github.com/xxxbrian/ruleset-builder/internal/cache"
	"github.com/xxxbrian/ruleset-builder/internal/config"
	"github.com/xxxbrian/ruleset-builder/internal/converter"
	"github.com/xxxbrian/ruleset-builder/internal/fetcher"
	"github.com/xxxbrian/ruleset-builder/internal/geoip"
	"github.com/xxxbrian/ruleset-builder/internal/mihomo"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build domain and classical rulesets",
	RunE:  runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	conv := converter.NewConverter(nil)
	if cfg.GeoIP.Database != "" {
		g, err := loadGeoIP(cfg)
		if err != nil {
			return err
		}
		conv = converter.NewConverter(g)
	}

	b := builder.New(builder.Options{
		SourceRoot:  cfg.Sources,
		OutputRoot:  cfg.Output,
		Only:        cfg.Build.Only,
		Include:     cfg.Build.Include,
		SkipCompile: cfg.Build.SkipCompile,
	}, conv, mihomo.NewBinary(cfg.Mihomo.Path))

	start := time.Now()
	built, err := b.Run(cmd.Context())
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"rulesets": len(built),
		"took":     time.Since(start),
	}).Info("done")
	return nil
}

func loadGeoIP(cfg *config.Config) (*geoip.GeoIP, error) {
	var data []byte
	if fetcher.IsURL(cfg.GeoIP.Database) {
		blobs := cache.NewBlobCache(cfg.GeoIP.TTL)
		if cfg.GeoIP.Cache != "" {
			blobs.SetPersistPath(cfg.GeoIP.Cache)
			if err := blobs.LoadFromFile(cfg.GeoIP.Cache); err != nil && !os.IsNotExist(err) {
				log.WithField("file", cfg.GeoIP.Cache).Warnf("failed to load geoip cache: %v", err)
			}
		}
		d, err := fetcher.NewFetcher(cfg.GeoIP.Database, blobs).Get()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch geoip database: %w", err)
		}
		data = d
	} else {
		d, err := os.ReadFile(cfg.GeoIP.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to read geoip database: %w", err)
		}
		data = d
	}

	g := geoip.NewGeoIP()
	if err := g.Load(data); err != nil {
		return nil, err
	}
	return g, nil
}
