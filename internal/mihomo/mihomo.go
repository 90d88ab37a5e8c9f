// Package mihomo runs the mihomo binary to compile rulesets into .mrs files.
package mihomo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultBinary is the executable looked up on PATH when none is configured.
const DefaultBinary = "mihomo"

// Input formats accepted by convert-ruleset.
const (
	FormatYAML = "yaml"
	FormatText = "text"
)

// ErrNotFound is returned when the mihomo executable is not on PATH.
var ErrNotFound = errors.New("mihomo not found in PATH, install the binary before building")

// ExitError is returned when convert-ruleset exits with a non-zero status.
type ExitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("mihomo convert-ruleset failed: %v", e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner compiles a ruleset source file into a binary ruleset.
type Runner interface {
	ConvertRuleset(ctx context.Context, behavior, format, src, dst string) error
}

// Binary invokes a mihomo executable.
type Binary struct {
	path string
}

// NewBinary creates a Binary for the given executable name or path.
func NewBinary(path string) *Binary {
	if path == "" {
		path = DefaultBinary
	}
	return &Binary{path: path}
}

// ConvertRuleset runs `<mihomo> convert-ruleset behavior format src dst`
// and blocks until it exits.
func (b *Binary) ConvertRuleset(ctx context.Context, behavior, format, src, dst string) error {
	bin, err := exec.LookPath(b.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	args := []string{"convert-ruleset", behavior, format, src, dst}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &ExitError{
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return nil
}
