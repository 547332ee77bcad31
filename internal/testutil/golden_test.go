package testutil_test

import (
	"testing"

	"github.com/hugo-lorenzo-mato/procreport/internal/testutil"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"CRLF to LF", "line1\r\nline2\r\n", "line1\nline2"},
		{"trailing whitespace", "line1   \nline2\t\n", "line1\nline2"},
		{"trailing newlines", "line1\nline2\n\n\n", "line1\nline2"},
		{"empty string", "", ""},
		{"already clean", "line1\nline2", "line1\nline2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScrubReport(t *testing.T) {
	in := "Filename: ProcReport.20260102.030405.4242.017.txt\n" +
		"Report ID: 3f2b8c1e-9a4d-4e2f-8b6a-1c2d3e4f5a6b\n" +
		"Dump event time:  2026/01/02 03:04:05\n" +
		"Process ID: 4242\n" +
		"Thread ID: 4242\n"
	want := "Filename: [FILENAME]\n" +
		"Report ID: [UUID]\n" +
		"Dump event time:  [TIMESTAMP]\n" +
		"Process ID: [PID]\n" +
		"Thread ID: 4242\n"

	if got := testutil.ScrubReport(in); got != want {
		t.Errorf("ScrubReport() =\n%s\nwant\n%s", got, want)
	}
}

func TestScrubPaths(t *testing.T) {
	got := testutil.ScrubPaths("/tmp/x/reports/a.txt", "/tmp/x")
	if got != "[WORKDIR]/reports/a.txt" {
		t.Errorf("ScrubPaths() = %q", got)
	}
}
