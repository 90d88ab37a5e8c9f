// Package cmd implements the ruleset-builder command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	rotates "github.com/lestrrat-go/file-rotatelogs"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xxxbrian/ruleset-builder/internal/config"
	"github.com/xxxbrian/ruleset-builder/internal/fetcher"
)

var (
	cfgFile string
	quiet   bool
	debug   bool
)

// rootCmd builds every ruleset when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "ruleset-builder",
	Short: "Build mihomo rulesets from JSON rule sources",
	Long: `ruleset-builder reads domain and classical rule sources (JSON) and writes
mihomo rulesets: a payload YAML file, a flat list and a compiled .mrs file
produced by "mihomo convert-ruleset".

	ruleset-builder --sources sources --output output`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initLogging,
	RunE:              runBuild,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .ruleset-builder.yaml in the working or home directory)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Quiet output. Only errors are logged. Takes precedence over --debug.")
	flags.BoolVarP(&debug, "debug", "d", false, "Debug mode. Enable trace logging.")

	flags.String("sources", "sources", "Directory holding the domain/ and classical/ JSON sources.")
	flags.String("output", "output", "Directory receiving the generated rulesets.")
	flags.String("mihomo", "mihomo", "mihomo executable used for convert-ruleset.")
	flags.String("only", "", "Run a single pipeline: domain or classical.")
	flags.StringSlice("include", []string{}, "Only build sources whose name matches one of these globs.")
	flags.Bool("skip-compile", false, "Write .yaml/.list/.txt files without running mihomo.")
	flags.String("geoip-db", "", "MaxMind DB path or http(s) URL used to expand geoip rules, e.g. "+fetcher.DefaultGeoIPURL)
	flags.String("geoip-cache", "", "File used to persist a downloaded GeoIP database.")
	flags.String("log-file", "", "Also write logs to this file, rotated daily.")

	viper.BindPFlag("sources", flags.Lookup("sources"))
	viper.BindPFlag("output", flags.Lookup("output"))
	viper.BindPFlag("mihomo.path", flags.Lookup("mihomo"))
	viper.BindPFlag("build.only", flags.Lookup("only"))
	viper.BindPFlag("build.include", flags.Lookup("include"))
	viper.BindPFlag("build.skip_compile", flags.Lookup("skip-compile"))
	viper.BindPFlag("geoip.database", flags.Lookup("geoip-db"))
	viper.BindPFlag("geoip.cache", flags.Lookup("geoip-cache"))
	viper.BindPFlag("log.file", flags.Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".ruleset-builder")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RULESET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			log.Fatalf("failed to read config: %v", err)
		}
		return
	}
	log.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
}

func initLogging(cmd *cobra.Command, args []string) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stderr)

	level, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	switch {
	case quiet:
		level = log.ErrorLevel
	case debug:
		level = log.TraceLevel
	}
	log.SetLevel(level)

	if file := viper.GetString("log.file"); file != "" {
		writer, err := rotates.New(
			file+".%Y%m%d",
			rotates.WithLinkName(file),
			rotates.WithMaxAge(7*24*time.Hour),
			rotates.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return err
		}
		log.AddHook(lfshook.NewHook(lfshook.WriterMap{
			log.TraceLevel: writer,
			log.DebugLevel: writer,
			log.InfoLevel:  writer,
			log.WarnLevel:  writer,
			log.ErrorLevel: writer,
			log.FatalLevel: writer,
			log.PanicLevel: writer,
		}, &log.TextFormatter{FullTimestamp: true, DisableColors: true}))
	}
	return nil
}
