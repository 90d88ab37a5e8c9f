package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xxxbrian/ruleset-builder/internal/converter"
	"github.com/xxxbrian/ruleset-builder/internal/mihomo"
)

type call struct {
	behavior, format, src, dst string
}

// recordingRunner stands in for mihomo and writes a marker .mrs file.
type recordingRunner struct {
	calls []call
	err   error
}

func (r *recordingRunner) ConvertRuleset(ctx context.Context, behavior, format, src, dst string) error {
	r.calls = append(r.calls, call{behavior, format, src, dst})
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(dst, []byte("mrs:"+filepath.Base(src)), 0o644)
}

type fixture struct {
	root   string
	out    string
	runner *recordingRunner
	stdout *bytes.Buffer
	hook   *test.Hook
}

func newFixture(t *testing.T, sources map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	for name, content := range sources {
		path := filepath.Join(root, "sources", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return &fixture{
		root:   root,
		out:    filepath.Join(root, "output"),
		runner: &recordingRunner{},
		stdout: &bytes.Buffer{},
	}
}

func (f *fixture) builder(opts Options, runner mihomo.Runner) *Builder {
	opts.SourceRoot = filepath.Join(f.root, "sources")
	opts.OutputRoot = f.out
	b := New(opts, converter.NewConverter(nil), runner)
	logger, hook := test.NewNullLogger()
	f.hook = hook
	b.SetLogger(logger)
	b.SetOutput(f.stdout)
	return b
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.out, rel))
	require.NoError(t, err)
	return string(data)
}

func payloadEntries(t *testing.T, data string) []string {
	t.Helper()
	var doc struct {
		Payload []string `yaml:"payload"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(data), &doc))
	return doc.Payload
}

func flatLines(data string) []string {
	return strings.Split(strings.TrimSuffix(data, "\n"), "\n")
}

func TestRunDomain(t *testing.T) {
	f := newFixture(t, map[string]string{
		"domain/ads.json": `{"rules": [
			{"domain_suffix": ["Example.com", ".example.com"]},
			{"domain": ["foo.bar"]}
		]}`,
	})

	built, err := f.builder(Options{}, f.runner).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, built, 1)

	assert.Equal(t, "+.example.com\nfoo.bar\n", f.read(t, "domain/ads.list"))
	payload := f.read(t, "domain/ads.yaml")
	assert.Contains(t, payload, "'+.example.com'")
	assert.Equal(t, []string{"+.example.com", "foo.bar"}, payloadEntries(t, payload))

	require.Len(t, f.runner.calls, 1)
	assert.Equal(t, call{
		behavior: "domain",
		format:   "yaml",
		src:      filepath.Join(f.out, "domain", "ads.yaml"),
		dst:      filepath.Join(f.out, "domain", "ads.mrs"),
	}, f.runner.calls[0])
	assert.Equal(t, "mrs:ads.yaml", f.read(t, "domain/ads.mrs"))
	assert.Equal(t, "Built domain ruleset: ads\n", f.stdout.String())
}

func TestRunClassical(t *testing.T) {
	f := newFixture(t, map[string]string{
		"classical/lan.json": `{"rules": [
			{"ip_cidr": ["10.0.0.0/8"], "domain_keyword": ["Ads"]},
			{"ip_cidr": "10.0.0.0/8", "payload": "PROCESS-NAME,curl"}
		]}`,
	})

	_, err := f.builder(Options{}, f.runner).Run(context.Background())
	require.NoError(t, err)

	text := f.read(t, "classical/lan.txt")
	assert.Equal(t, []string{"DOMAIN-KEYWORD,ads", "IP-CIDR,10.0.0.0/8", "PROCESS-NAME,curl"}, flatLines(text))
	assert.Equal(t, flatLines(text), payloadEntries(t, f.read(t, "classical/lan.yaml")))

	require.Len(t, f.runner.calls, 1)
	assert.Equal(t, "classical", f.runner.calls[0].behavior)
	assert.Equal(t, "text", f.runner.calls[0].format)
	assert.Equal(t, filepath.Join(f.out, "classical", "lan.txt"), f.runner.calls[0].src)
	assert.Equal(t, "Built classical ruleset: lan\n", f.stdout.String())
}

func TestRunOrderAndCounts(t *testing.T) {
	f := newFixture(t, map[string]string{
		"domain/b.json":    `{"rules": [{"domain": ["b.com", "B.com", "c.com"]}]}`,
		"domain/a.json":    `{"rules": [{"domain_suffix": ["a.com"]}]}`,
		"classical/z.json": `{"rules": [{"domain": ["z.com"]}]}`,
	})

	built, err := f.builder(Options{}, f.runner).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, built, 3)

	assert.Equal(t, "Built domain ruleset: a\nBuilt domain ruleset: b\nBuilt classical ruleset: z\n", f.stdout.String())
	for _, a := range built {
		payload, err := os.ReadFile(a.Payload)
		require.NoError(t, err)
		flat, err := os.ReadFile(a.Flat)
		require.NoError(t, err)
		assert.Len(t, payloadEntries(t, string(payload)), len(flatLines(string(flat))), a.Payload)
	}
}

func TestRunSkipsEmptySource(t *testing.T) {
	f := newFixture(t, map[string]string{
		"domain/blank.json":    `{"rules": [{"domain": ["  ", "."]}, {}]}`,
		"classical/blank.json": `{"rules": []}`,
		"classical/ok.json":    `{"rules": [{"process_name": "curl"}]}`,
	})

	built, err := f.builder(Options{}, f.runner).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, built, 1)

	for _, rel := range []string{"domain/blank.yaml", "domain/blank.list", "domain/blank.mrs",
		"classical/blank.yaml", "classical/blank.txt", "classical/blank.mrs"} {
		assert.NoFileExists(t, filepath.Join(f.out, rel))
	}
	assert.FileExists(t, filepath.Join(f.out, "classical", "ok.mrs"))

	var warnings []string
	for _, entry := range f.hook.AllEntries() {
		if entry.Level == log.WarnLevel {
			warnings = append(warnings, entry.Data["file"].(string))
		}
	}
	assert.Equal(t, []string{"blank.json", "blank.json"}, warnings)
	assert.Equal(t, "Built classical ruleset: ok\n", f.stdout.String())
}

func TestRunMalformedSource(t *testing.T) {
	f := newFixture(t, map[string]string{
		"domain/a.json":    `{"rules": [{"domain": ["a.com"]}]}`,
		"domain/b.json":    `{"rules": [`,
		"domain/c.json":    `{"rules": [{"domain": ["c.com"]}]}`,
		"classical/d.json": `{"rules": [{"domain": ["d.com"]}]}`,
	})

	built, err := f.builder(Options{}, f.runner).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.json")
	assert.Len(t, built, 1)

	assert.FileExists(t, filepath.Join(f.out, "domain", "a.mrs"))
	assert.NoFileExists(t, filepath.Join(f.out, "domain", "c.yaml"))
	assert.NoFileExists(t, filepath.Join(f.out, "classical", "d.yaml"))
}

func TestRunMissingMihomo(t *testing.T) {
	f := newFixture(t, map[string]string{
		"domain/a.json": `{"rules": [{"domain": ["a.com"]}]}`,
		"domain/b.json": `{"rules": [{"domain": ["b.com"]}]}`,
	})
	runner := &recordingRunner{err: fmt.Errorf("%w: exec: not found", mihomo.ErrNotFound)}

	_, err := f.builder(Options{}, runner).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mihomo.ErrNotFound)
	assert.Contains(t, err.Error(), "install the binary before building")

	assert.Len(t, runner.calls, 1, "no source after the failing one is processed")
	assert.NoFileExists(t, filepath.Join(f.out, "domain", "b.yaml"))
	assert.Empty(t, f.stdout.String())
}

func TestRunMissingMihomoBinary(t *testing.T) {
	f := newFixture(t, map[string]string{
		"domain/a.json": `{"rules": [{"domain": ["a.com"]}]}`,
	})

	_, err := f.builder(Options{}, mihomo.NewBinary("ruleset-builder-no-such-mihomo")).Run(context.Background())
	assert.ErrorIs(t, err, mihomo.ErrNotFound)
}

func TestRunOptions(t *testing.T) {
	sources := map[string]string{
		"domain/ads.json":     `{"rules": [{"domain": ["ads.com"]}]}`,
		"domain/cn.json":      `{"rules": [{"domain": ["cn.com"]}]}`,
		"classical/ads.json":  `{"rules": [{"domain": ["ads.com"]}]}`,
		"classical/misc.json": `{"rules": [{"domain": ["misc.com"]}]}`,
	}

	t.Run("only classical", func(t *testing.T) {
		f := newFixture(t, sources)
		built, err := f.builder(Options{Only: "classical"}, f.runner).Run(context.Background())
		require.NoError(t, err)
		assert.Len(t, built, 2)
		assert.NoDirExists(t, filepath.Join(f.out, "domain"))
	})

	t.Run("include", func(t *testing.T) {
		f := newFixture(t, sources)
		built, err := f.builder(Options{Include: []string{"ad*"}}, f.runner).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, built, 2)
		assert.Equal(t, filepath.Join(f.out, "domain", "ads.yaml"), built[0].Payload)
		assert.Equal(t, filepath.Join(f.out, "classical", "ads.yaml"), built[1].Payload)
	})

	t.Run("skip compile", func(t *testing.T) {
		f := newFixture(t, sources)
		built, err := f.builder(Options{SkipCompile: true}, nil).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, built, 4)
		for _, a := range built {
			assert.Empty(t, a.Binary)
			assert.FileExists(t, a.Payload)
			assert.FileExists(t, a.Flat)
		}
		assert.NoFileExists(t, filepath.Join(f.out, "domain", "ads.mrs"))
	})
}

func TestRunMissingSourceDirs(t *testing.T) {
	f := newFixture(t, nil)

	built, err := f.builder(Options{}, f.runner).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, built)
	assert.DirExists(t, filepath.Join(f.out, "domain"))
	assert.DirExists(t, filepath.Join(f.out, "classical"))
}

func TestRunBracketedSourceRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "src[1]")
	path := filepath.Join(root, "domain", "x.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"rules":[{"domain":["x.com"]}]}`), 0o644))

	out := filepath.Join(t.TempDir(), "output")
	b := New(Options{SourceRoot: root, OutputRoot: out, SkipCompile: true}, converter.NewConverter(nil), nil)
	b.SetOutput(&bytes.Buffer{})

	built, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, built, 1)
	data, err := os.ReadFile(filepath.Join(out, "domain", "x.list"))
	require.NoError(t, err)
	assert.Equal(t, "x.com\n", string(data))
}
