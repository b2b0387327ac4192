package helper_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/dashget/internal/helper"
)

func TestRunner_ProbeMissingBinary(t *testing.T) {
	r := helper.New("nonexistent-helper", "definitely-not-a-real-binary-xyz")
	assert.False(t, r.Probe(context.Background()))
}

func TestRunner_ProbeExistingBinary(t *testing.T) {
	r := helper.New("true", "true")
	assert.True(t, r.Probe(context.Background()))
}

func TestRunner_RunSuccess(t *testing.T) {
	r := helper.New("true", "true")
	res := r.Run(context.Background())
	assert.NoError(t, res.Err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunner_RunFailureCapturesStderr(t *testing.T) {
	r := helper.New("sh", "sh")
	res := r.Run(context.Background(), "-c", "echo boom 1>&2; exit 1")
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "boom")
}

func TestResult_SucceededByOutputFilePresence(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(out, []byte("data"), 0o644))

	res := helper.Result{ExitCode: 1, Err: assertError()} // VLC-style unreliable nonzero exit
	assert.True(t, res.Succeeded(out, false))
}

func TestResult_SucceededFalseWhenOutputMissing(t *testing.T) {
	res := helper.Result{ExitCode: 0}
	assert.False(t, res.Succeeded(filepath.Join(t.TempDir(), "missing.mp4"), false))
}

func TestSet_RunFirstSkipsMissingAndUsesFirstWorking(t *testing.T) {
	set := helper.Set{Runners: []helper.Runner{
		helper.New("missing", "definitely-not-a-real-binary-xyz"),
		helper.New("true", "true"),
	}}

	name, res, err := set.RunFirst(context.Background(),
		func(r helper.Runner) []string { return nil },
		func(r helper.Runner, res helper.Result) bool { return res.Err == nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "true", name)
	assert.NoError(t, res.Err)
}

func TestSet_RunFirstAllFail(t *testing.T) {
	set := helper.Set{Runners: []helper.Runner{
		helper.New("false", "false"),
	}}

	_, _, err := set.RunFirst(context.Background(),
		func(r helper.Runner) []string { return nil },
		func(r helper.Runner, res helper.Result) bool { return res.Err == nil },
	)
	assert.Error(t, err)
}

func assertError() error {
	return context.DeadlineExceeded
}
