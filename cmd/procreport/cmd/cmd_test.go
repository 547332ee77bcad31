package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/procreport/internal/catalog"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// testWorkspace writes a config that keeps reports and the catalog inside a
// temporary directory.
func testWorkspace(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()
	configPath = filepath.Join(dir, "procreport.yaml")
	content := fmt.Sprintf(`log:
  level: error
  format: text
report:
  directory: %s
catalog:
  path: %s
  max_files: 10
monitor:
  enabled: false
`, dir, filepath.Join(dir, "catalog.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return dir, configPath
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, dumpDirectory, signalName = "", "", ""
	reportsJSON, reportsKeep, reportsLimit = false, -1, 20
	configInitForce = false
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2026-01-15")
	t.Cleanup(func() { SetVersion("dev", "none", "unknown") })
	_, configPath := testWorkspace(t)

	output, err := executeCommand(t, "--config", configPath, "version")
	require.NoError(t, err)

	assert.Contains(t, output, "procreport v1.2.3")
	assert.Contains(t, output, "commit: abc123def")
	assert.Contains(t, output, "built:  2026-01-15")
	assert.Contains(t, output, "go:")
}

func TestConfigInit(t *testing.T) {
	dir, configPath := testWorkspace(t)
	target := filepath.Join(dir, "generated.yaml")

	output, err := executeCommand(t, "--config", configPath, "config", "init", target)
	require.NoError(t, err)
	assert.Contains(t, output, "Wrote "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "events: exception+fatalerror+signal+apicall")

	_, err = executeCommand(t, "--config", configPath, "config", "init", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = executeCommand(t, "--config", configPath, "config", "init", "--force", target)
	assert.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	dir, configPath := testWorkspace(t)

	output, err := executeCommand(t, "--config", configPath, "--log-level", "warn", "config", "show")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "# from "+configPath), output)

	var shown map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(output), &shown))
	assert.Equal(t, dir, shown["report"]["directory"])
	assert.Equal(t, "warn", shown["log"]["level"], "flag overrides file")
	assert.Equal(t, "127.0.0.1:7190", shown["server"]["addr"])
}

func TestConfigInvalidFileFails(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine:\n  unhandled: ignore\n"), 0o600))

	_, err := executeCommand(t, "--config", configPath, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.unhandled")
}

func TestBadReportTokensDoNotBlockStartup(t *testing.T) {
	dir, configPath := testWorkspace(t)
	t.Setenv("PROCREPORT_EVENTS", "apicall+bogus")
	t.Setenv("PROCREPORT_COREDUMP", "maybe")

	output, err := executeCommand(t, "--config", configPath, "dump", "-d", dir, "after-bad-token.txt")
	require.NoError(t, err)
	assert.Contains(t, output, filepath.Join(dir, "after-bad-token.txt"))
	assert.FileExists(t, filepath.Join(dir, "after-bad-token.txt"))

	output, err = executeCommand(t, "--config", configPath, "doctor")
	require.NoError(t, err)
	assert.Contains(t, output, "report.events")
	assert.Contains(t, output, "report.coredump")
}

func TestDumpAndReports(t *testing.T) {
	dir, configPath := testWorkspace(t)

	output, err := executeCommand(t, "--config", configPath, "dump")
	require.NoError(t, err)
	assert.Contains(t, output, "Report written to "+dir)

	output, err = executeCommand(t, "--config", configPath, "dump", "named.txt")
	require.NoError(t, err)
	assert.Contains(t, output, filepath.Join(dir, "named.txt"))

	content, err := os.ReadFile(filepath.Join(dir, "named.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "==== Process Report")
	assert.Contains(t, string(content), "Trigger: apicall")

	output, err = executeCommand(t, "--config", configPath, "reports", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "CREATED")
	assert.Contains(t, output, "named.txt")

	output, err = executeCommand(t, "--config", configPath, "reports", "list", "--json")
	require.NoError(t, err)
	var entries []catalog.Entry
	require.NoError(t, json.Unmarshal([]byte(output), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "named.txt", entries[0].Filename)
	assert.True(t, report.IsGeneratedName(entries[1].Filename))

	output, err = executeCommand(t, "--config", configPath, "reports", "show")
	require.NoError(t, err)
	assert.Equal(t, string(content), output)

	output, err = executeCommand(t, "--config", configPath, "reports", "show", entries[1].ReportID)
	require.NoError(t, err)
	assert.Contains(t, output, "==== Process Report")

	_, err = executeCommand(t, "--config", configPath, "reports", "show", "no-such-id")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	output, err = executeCommand(t, "--config", configPath, "reports", "prune", "--keep", "0")
	require.NoError(t, err)
	assert.Contains(t, output, "Removed 1 report(s)")
	assert.NoFileExists(t, entries[1].Path)
	assert.FileExists(t, filepath.Join(dir, "named.txt"))
}

func TestReportsListEmpty(t *testing.T) {
	_, configPath := testWorkspace(t)

	output, err := executeCommand(t, "--config", configPath, "reports", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "No reports recorded")
}

func TestDoctor(t *testing.T) {
	dir, configPath := testWorkspace(t)

	output, err := executeCommand(t, "--config", configPath, "doctor")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ configuration: "+configPath)
	assert.Contains(t, output, "✓ report directory: "+dir+" is writable")
	assert.Contains(t, output, "Host:")
	assert.Contains(t, output, "Reports can be written")
}

func TestSignalRejectsBadPID(t *testing.T) {
	_, configPath := testWorkspace(t)

	_, err := executeCommand(t, "--config", configPath, "signal", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pid")
}
