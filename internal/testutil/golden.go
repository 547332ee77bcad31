// Package testutil compares rendered reports against golden files.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var update = flag.Bool("update", false, "update golden files")

// Golden provides golden file testing utilities.
type Golden struct {
	t       *testing.T
	baseDir string
}

// NewGolden creates a golden file helper reading from baseDir.
func NewGolden(t *testing.T, baseDir string) *Golden {
	return &Golden{
		t:       t,
		baseDir: baseDir,
	}
}

// Assert compares actual output against the golden file name.golden. With
// -update the golden file is rewritten instead.
func (g *Golden) Assert(name string, actual []byte) {
	g.t.Helper()

	goldenPath := filepath.Join(g.baseDir, name+".golden")

	if *update {
		g.updateGolden(goldenPath, actual)
		return
	}

	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		g.t.Fatalf("reading golden file %s: %v", goldenPath, err)
	}

	if Normalize(string(actual)) != Normalize(string(expected)) {
		g.t.Errorf("output mismatch for %s:\n--- expected ---\n%s\n--- actual ---\n%s",
			name, expected, actual)
	}
}

// AssertString compares string output against a golden file.
func (g *Golden) AssertString(name, actual string) {
	g.t.Helper()
	g.Assert(name, []byte(actual))
}

func (g *Golden) updateGolden(path string, actual []byte) {
	g.t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		g.t.Fatalf("creating golden directory: %v", err)
	}
	if err := os.WriteFile(path, actual, 0o644); err != nil {
		g.t.Fatalf("writing golden file: %v", err)
	}
	g.t.Logf("updated golden file: %s", path)
}

// Normalize converts line endings and drops trailing whitespace so golden
// files survive editors and checkouts on other platforms.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

var (
	reportTimeRe = regexp.MustCompile(`\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}`)
	uuidRe       = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	generatedRe  = regexp.MustCompile(`ProcReport\.\d{8}\.\d{6}\.\d+\.\d{3,}\.txt`)
	pidRe        = regexp.MustCompile(`(?m)^Process ID: \d+$`)
)

// ScrubReport replaces the values that change between runs of the same
// report: dump and load times, report ids, generated filenames and the
// process id.
func ScrubReport(s string) string {
	s = generatedRe.ReplaceAllString(s, "[FILENAME]")
	s = reportTimeRe.ReplaceAllString(s, "[TIMESTAMP]")
	s = uuidRe.ReplaceAllString(s, "[UUID]")
	s = pidRe.ReplaceAllString(s, "Process ID: [PID]")
	return s
}

// ScrubPaths replaces basePath with a placeholder.
func ScrubPaths(s, basePath string) string {
	return strings.ReplaceAll(s, basePath, "[WORKDIR]")
}
