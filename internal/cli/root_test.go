package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/grumpy/internal/cli/commands"
	"github.com/leapstack-labs/grumpy/internal/cli/config"
	"github.com/leapstack-labs/grumpy/internal/cli/output"
	clitest "github.com/leapstack-labs/grumpy/internal/cli/testutil"
)

func runRoot(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	root := NewRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(errOut)
	code := run(context.Background(), root, args)
	return code, out.String(), errOut.String()
}

func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd()
	assert.Equal(t, "grumpy", root.Use)

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"check", "watch", "rules", "history", "version", "completion"} {
		assert.True(t, names[want], "missing command %q", want)
	}
	for _, flag := range []string{"config", "root", "grumpiness-level", "output", "max-complexity", "no-state"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	dir := clitest.SetupTestProject(t, "no_state: true\n")
	t.Chdir(dir)

	code, stdout, stderr := runRoot(t, "check", "-o", "json", "--max-complexity", "5")
	assert.Equal(t, commands.ExitOK, code, stderr)

	var out output.CheckOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "warning", out.Findings[0].Severity)

	clitest.WriteFile(t, dir, "rules.yaml", "rules:\n  - id: max-complexity\n    severity: error\n")
	code, _, stderr = runRoot(t, "check", "--rules-file", "rules.yaml", "--max-complexity", "5", "-g", "sarcastic")
	assert.Equal(t, commands.ExitFindings, code)
	assert.NotContains(t, stderr, "Error:", "findings are not reported as a failure")
}

func TestRun_FlagsOverrideConfigFile(t *testing.T) {
	dir := clitest.SetupTestProject(t, "no_state: true\nmax_complexity: 5\nrules:\n  max-complexity:\n    severity: error\n")
	t.Chdir(dir)

	code, _, _ := runRoot(t, "check", "-o", "json")
	assert.Equal(t, commands.ExitFindings, code)

	code, _, _ = runRoot(t, "check", "-o", "json", "--max-complexity", "10")
	assert.Equal(t, commands.ExitOK, code)
}

func TestRun_InvalidConfigIsInternal(t *testing.T) {
	dir := clitest.SetupTestProject(t, "grumpiness_level: furious\n")
	t.Chdir(dir)

	code, _, stderr := runRoot(t, "check")
	assert.Equal(t, commands.ExitInternal, code)
	assert.Contains(t, stderr, "grumpiness_level")
}

func TestRun_MissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	code, _, stderr := runRoot(t, "--config", "nope.yaml", "check")
	assert.Equal(t, commands.ExitInternal, code)
	assert.Contains(t, stderr, "Error:")
}

func TestRun_Version(t *testing.T) {
	t.Chdir(t.TempDir())

	code, stdout, _ := runRoot(t, "version")
	assert.Equal(t, commands.ExitOK, code)
	assert.Contains(t, stdout, "grumpy v"+Version)
}

func TestRun_Completion(t *testing.T) {
	code, stdout, _ := runRoot(t, "completion", "bash")
	assert.Equal(t, commands.ExitOK, code)
	assert.Contains(t, stdout, "grumpy")
}
