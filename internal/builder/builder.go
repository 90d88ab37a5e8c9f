// Package builder runs the domain and classical ruleset pipelines.
package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/xxxbrian/ruleset-builder/internal/converter"
	"github.com/xxxbrian/ruleset-builder/internal/mihomo"
	"github.com/xxxbrian/ruleset-builder/internal/source"
)

// Options configures a Builder.
type Options struct {
	// SourceRoot holds the domain/ and classical/ source directories.
	SourceRoot string
	// OutputRoot receives the domain/ and classical/ artifact directories.
	OutputRoot string
	// Only restricts the run to one pipeline; empty runs both.
	Only string
	// Include filters sources by glob on their name; empty keeps all.
	Include []string
	// SkipCompile writes the text artifacts but does not run mihomo.
	SkipCompile bool
}

// Artifacts are the files produced for one source.
type Artifacts struct {
	Payload string
	Flat    string
	Binary  string
}

type pipeline struct {
	behavior converter.Behavior
	flatExt  string
	format   string
	load     func(c *converter.Converter, name, path string) (*converter.Ruleset, error)
}

var pipelines = []pipeline{
	{
		behavior: converter.BehaviorDomain,
		flatExt:  ".list",
		format:   mihomo.FormatYAML,
		load: func(c *converter.Converter, name, path string) (*converter.Ruleset, error) {
			src, err := source.LoadDomain(path)
			if err != nil {
				return nil, err
			}
			return c.Domain(name, src), nil
		},
	},
	{
		behavior: converter.BehaviorClassical,
		flatExt:  ".txt",
		format:   mihomo.FormatText,
		load: func(c *converter.Converter, name, path string) (*converter.Ruleset, error) {
			src, err := source.LoadClassical(path)
			if err != nil {
				return nil, err
			}
			return c.Classical(name, src), nil
		},
	},
}

// Builder turns rule sources into mihomo ruleset artifacts.
type Builder struct {
	opts   Options
	conv   *converter.Converter
	runner mihomo.Runner
	logger log.FieldLogger
	stdout io.Writer
}

// New creates a Builder. runner may be nil when opts.SkipCompile is set.
func New(opts Options, conv *converter.Converter, runner mihomo.Runner) *Builder {
	return &Builder{
		opts:   opts,
		conv:   conv,
		runner: runner,
		logger: log.StandardLogger(),
		stdout: os.Stdout,
	}
}

// SetLogger replaces the logger used for warnings.
func (b *Builder) SetLogger(logger log.FieldLogger) {
	b.logger = logger
}

// SetOutput replaces the writer that receives success confirmations.
func (b *Builder) SetOutput(w io.Writer) {
	b.stdout = w
}

// Run executes the domain pipeline and then the classical pipeline. The
// first error aborts the run; artifacts already written are kept.
func (b *Builder) Run(ctx context.Context) ([]Artifacts, error) {
	if err := ensureDirectory(b.opts.OutputRoot); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var built []Artifacts
	for _, p := range pipelines {
		if b.opts.Only != "" && b.opts.Only != string(p.behavior) {
			continue
		}
		artifacts, err := b.runPipeline(ctx, p)
		built = append(built, artifacts...)
		if err != nil {
			return built, fmt.Errorf("%s pipeline: %w", p.behavior, err)
		}
	}
	return built, nil
}

func (b *Builder) runPipeline(ctx context.Context, p pipeline) ([]Artifacts, error) {
	sourceDir := filepath.Join(b.opts.SourceRoot, string(p.behavior))
	outputDir := filepath.Join(b.opts.OutputRoot, string(p.behavior))
	if err := ensureDirectory(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths, err := source.Discover(sourceDir, b.opts.Include)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources in %s: %w", sourceDir, err)
	}
	b.logger.WithFields(log.Fields{
		"pipeline": p.behavior,
		"dir":      sourceDir,
		"sources":  len(paths),
	}).Debug("discovered sources")

	var built []Artifacts
	for _, path := range paths {
		name := source.Name(path)
		logger := b.logger.WithFields(log.Fields{
			"pipeline": p.behavior,
			"file":     filepath.Base(path),
		})

		rs, err := p.load(b.conv, name, path)
		if err != nil {
			return built, err
		}
		if len(rs.Unresolved) > 0 {
			logger.WithField("codes", rs.Unresolved).Warn("geoip codes could not be resolved")
		}
		if rs.Empty() {
			logger.Warn("no entries, skipping")
			continue
		}

		artifacts, err := b.emit(ctx, p, outputDir, rs)
		if err != nil {
			return built, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		built = append(built, artifacts)
		logger.WithField("entries", len(rs.Rules)).Debug("ruleset written")
		fmt.Fprintf(b.stdout, "Built %s ruleset: %s\n", p.behavior, name)
	}
	return built, nil
}

func (b *Builder) emit(ctx context.Context, p pipeline, outputDir string, rs *converter.Ruleset) (Artifacts, error) {
	artifacts := Artifacts{
		Payload: filepath.Join(outputDir, rs.Name+".yaml"),
		Flat:    filepath.Join(outputDir, rs.Name+p.flatExt),
		Binary:  filepath.Join(outputDir, rs.Name+".mrs"),
	}
	lines := rs.Lines()

	payload, err := converter.RenderPayload(lines)
	if err != nil {
		return artifacts, fmt.Errorf("failed to render payload: %w", err)
	}
	if err := writeFile(artifacts.Payload, payload); err != nil {
		return artifacts, err
	}
	if err := writeFile(artifacts.Flat, converter.RenderList(lines)); err != nil {
		return artifacts, err
	}

	if b.opts.SkipCompile {
		artifacts.Binary = ""
		return artifacts, nil
	}

	src := artifacts.Payload
	if p.format == mihomo.FormatText {
		src = artifacts.Flat
	}
	if err := b.runner.ConvertRuleset(ctx, string(p.behavior), p.format, src, artifacts.Binary); err != nil {
		return artifacts, err
	}
	return artifacts, nil
}
