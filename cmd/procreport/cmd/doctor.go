package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/procreport/internal/config"
	"github.com/hugo-lorenzo-mato/procreport/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that reports can be written on this host",
	Long: `Verify the configuration, the report directory, signal support and the
report catalog, and print the host facts a report will contain.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	name     string
	required bool
	run      func() (string, error)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	checks := []doctorCheck{
		{"configuration", true, checkConfigFile},
		{"report options", false, checkReportOptions},
		{"report directory", true, checkReportDirectory},
		{"report signal", false, checkReportSignal},
		{"report catalog", false, checkCatalog},
		{"file descriptors", false, checkFDs},
	}

	fmt.Fprintln(out, "Checking report prerequisites...")
	fmt.Fprintln(out)

	requiredOk := true
	for _, check := range checks {
		detail, err := check.run()
		switch {
		case err == nil:
			fmt.Fprintf(out, "  ✓ %s: %s\n", check.name, detail)
		case check.required:
			requiredOk = false
			fmt.Fprintf(out, "  ✗ %s: %v\n", check.name, err)
		default:
			fmt.Fprintf(out, "  ○ %s: %v (optional)\n", check.name, err)
		}
	}
	fmt.Fprintln(out)

	printHost(out, diagnostics.NewHostCollector("").Collect())

	if !requiredOk {
		return errors.New("doctor check failed")
	}
	fmt.Fprintln(out, "Reports can be written")
	return nil
}

func checkConfigFile() (string, error) {
	if used := appLoader.ConfigFile(); used != "" {
		return used, nil
	}
	return "defaults and environment", nil
}

func checkReportOptions() (string, error) {
	if warns := config.ReportWarnings(appConfig); len(warns) > 0 {
		return "", fmt.Errorf("%w; defaults kept", warns)
	}
	return "valid", nil
}

func checkReportDirectory() (string, error) {
	dir := appConfig.Report.Directory
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		dir = wd
	}
	f, err := os.CreateTemp(dir, ".procreport-doctor-*")
	if err != nil {
		return "", fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return "", fmt.Errorf("removing test file: %w", err)
	}
	return dir + " is writable", nil
}

func checkReportSignal() (string, error) {
	if _, err := report.ParseSignal(appConfig.Report.Signal); err != nil {
		return "", err
	}
	return appConfig.Report.Signal, nil
}

func checkCatalog() (string, error) {
	store, err := openCatalog()
	if err != nil {
		return "", err
	}
	defer store.Close()
	entries, err := store.List(context.Background(), 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%d reports)", store.Path(), len(entries)), nil
}

func checkFDs() (string, error) {
	open, limit := diagnostics.CountFDs()
	if limit == 0 {
		return "", errors.New("descriptor counts unavailable on this platform")
	}
	return fmt.Sprintf("%d open, limit %d", open, limit), nil
}

func printHost(out io.Writer, h diagnostics.HostInfo) {
	fmt.Fprintln(out, "Host:")
	fmt.Fprintf(out, "  %s (%s %s, kernel %s %s)\n", h.Hostname, h.Platform, h.PlatformVersion, h.KernelVersion, h.KernelArch)
	if h.CPUModel != "" {
		fmt.Fprintf(out, "  CPU: %s, %d cores, %d threads\n", h.CPUModel, h.CPUCores, h.CPUThreads)
	}
	if h.MemTotal > 0 {
		fmt.Fprintf(out, "  Memory: %s total, %s available\n", humanize.IBytes(h.MemTotal), humanize.IBytes(h.MemAvailable))
	}
	for _, gpu := range h.GPUs {
		fmt.Fprintf(out, "  GPU %d: %s\n", gpu.Index, gpu.Name)
	}
	fmt.Fprintln(out)
}
