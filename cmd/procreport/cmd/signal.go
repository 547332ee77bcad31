package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

var signalCmd = &cobra.Command{
	Use:   "signal <pid>",
	Short: "Ask a running procreport process for a report",
	Long: `Send the configured report signal (report.signal, SIGUSR2 by default)
to a running procreport process. The target writes the report to its own
report directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runSignal,
}

var signalName string

func init() {
	rootCmd.AddCommand(signalCmd)

	signalCmd.Flags().StringVarP(&signalName, "signal", "s", "",
		"signal to send (default from report.signal)")
}

func runSignal(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid pid %q", args[0])
	}

	name := appConfig.Report.Signal
	if signalName != "" {
		name = signalName
	}
	sig, err := report.ParseSignal(name)
	if err != nil {
		return fmt.Errorf("parsing signal: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signalling process %d: %w", pid, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %d\n", name, pid)
	return nil
}
