package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvtrace/hitrate-sim/sim/workload"
)

func TestRoot_InvalidLogLevel_Errors(t *testing.T) {
	t.Cleanup(func() { logLevel = "warn" })
	rootCmd.SetArgs([]string{"--log", "loud", "generate", "-o", filepath.Join(t.TempDir(), "x.jsonl")})
	assert.Error(t, rootCmd.Execute())
}

func TestGenerateCommand_WritesLoadableTrace(t *testing.T) {
	// GIVEN the generate command with a call override
	path := filepath.Join(t.TempDir(), "gen", "agent.jsonl")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })
	rootCmd.SetArgs([]string{"--log", "error", "generate", "--calls", "5", "--seed", "9", "-o", path})

	// WHEN executed
	require.NoError(t, rootCmd.Execute())

	// THEN the trace loads with the requested number of calls
	tr, err := workload.LoadTrace(path)
	require.NoError(t, err)
	assert.Len(t, tr.Entries, 5)
	assert.Empty(t, tr.Rejected)
	assert.Contains(t, out.String(), path)
}
