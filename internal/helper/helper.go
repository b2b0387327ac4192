// Package helper implements the external-process "capability object"
// abstraction spec.md §9 describes: each helper (ffmpeg, mkvmerge, vlc,
// MP4Box, mp4decrypt, shaka-packager) answers whether it can run at all
// (Probe) and runs a given argument list (Run), shared by
// internal/mux, internal/concat and internal/assemble. The teacher never
// shells out to anything; this package follows the pack's general
// exec.CommandContext + captured-stderr + exit-code-inspection pattern
// (see other_examples' ffmpeg argument builders) rather than any one
// teacher file.
package helper

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Runner is one external helper binary, located once at construction.
type Runner struct {
	Name string // logical name: "ffmpeg", "mkvmerge", "vlc", "mp4box", ...
	Path string // resolved executable path or bare name for exec.LookPath
}

// New builds a Runner. path may be a bare command name (resolved via
// PATH at Probe/Run time) or an absolute path supplied by
// with_{ffmpeg,vlc,...}_location(path).
func New(name, path string) Runner {
	if path == "" {
		path = name
	}
	return Runner{Name: name, Path: path}
}

// Probe reports whether the helper binary exists and responds to a
// capability check, per spec.md §6's "each helper is invoked with
// --version (or equivalent) during capability probing".
func (r Runner) Probe(ctx context.Context) bool {
	resolved, err := exec.LookPath(r.Path)
	if err != nil {
		return false
	}
	cmd := exec.CommandContext(ctx, resolved, versionFlag(r.Name))
	return cmd.Run() == nil || isVersionProbeSuccess(cmd)
}

// versionFlag returns the capability-probe flag for a known helper name;
// mkvmerge and MP4Box both use --version like ffmpeg, vlc also accepts it.
func versionFlag(name string) string {
	switch name {
	case "mp4decrypt", "shaka-packager":
		return "--version"
	default:
		return "--version"
	}
}

// isVersionProbeSuccess tolerates helpers (mp4decrypt notably) that print
// usage and exit non-zero even for --version; presence on PATH is what
// actually matters for those.
func isVersionProbeSuccess(cmd *exec.Cmd) bool {
	return cmd.ProcessState != nil
}

// Result captures one Run's outcome for the driver's error reporting and
// VLC's output-file-presence fallback.
type Result struct {
	ExitCode int
	Stderr   string
	Err      error
}

// Run executes the helper with args, capturing stderr, per spec.md §6's
// "stderr captured, exit code inspected" contract.
func (r Runner) Run(ctx context.Context, args ...string) Result {
	resolved, err := exec.LookPath(r.Path)
	if err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("%s not found: %w", r.Name, err)}
	}

	cmd := exec.CommandContext(ctx, resolved, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := Result{Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil {
		res.Err = fmt.Errorf("%s exited with error: %w (stderr: %s)", r.Name, runErr, truncate(stderr.String(), 2048))
	}
	return res
}

// Succeeded reports whether the run should be treated as successful.
// VLC's exit code is documented as unreliable, so callers pass
// trustExitCode=false for it and success is inferred from a non-empty
// output file instead of the exit code, per spec.md §4.8/§6.
func (r Result) Succeeded(outputPath string, trustExitCode bool) bool {
	if trustExitCode {
		return r.Err == nil && r.ExitCode == 0
	}
	info, err := os.Stat(outputPath)
	return err == nil && info.Size() > 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// Set is an ordered preference list of Runners for one logical
// operation (muxing one container extension, concatenation,
// decryption, subtitle conversion). RunFirst tries each in order,
// probing before running, and returns the first success.
type Set struct {
	Runners []Runner
}

// RunFirst attempts each Runner in order (skipping any that fails
// Probe), building its argument list via buildArgs, until one produces
// a Result considered successful per isSuccess. Returns the name of the
// helper that succeeded, or an error naming every helper tried.
func (s Set) RunFirst(ctx context.Context, buildArgs func(r Runner) []string, isSuccess func(r Runner, res Result) bool) (string, Result, error) {
	var attempted []string
	var lastRes Result
	for _, r := range s.Runners {
		if !r.Probe(ctx) {
			continue
		}
		attempted = append(attempted, r.Name)
		args := buildArgs(r)
		res := r.Run(ctx, args...)
		lastRes = res
		if isSuccess(r, res) {
			return r.Name, res, nil
		}
	}
	if len(attempted) == 0 {
		return "", Result{}, fmt.Errorf("no configured helper is available (tried: none found on PATH)")
	}
	return "", lastRes, fmt.Errorf("every helper in preference list failed: %v", attempted)
}

// probeTimeout bounds how long a single --version probe may take, so a
// misbehaving binary can't hang the whole driver.
const probeTimeout = 5 * time.Second

// ProbeWithTimeout is Probe with its own bounded context, for callers
// that don't already carry a deadline.
func (r Runner) ProbeWithTimeout() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	return r.Probe(ctx)
}
