package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [filename]",
	Short: "Write a report for this process now",
	Long: `Write a diagnostic report for the procreport process itself.

The filename may be a plain name, stdout or stderr. Without one the
configured filename or a generated ProcReport.<date>.<time>.<pid>.<seq>.txt
name is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDump,
}

var (
	dumpDirectory string
	dumpTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpDirectory, "directory", "d", "",
		"directory for the report (default from report.directory)")
	dumpCmd.Flags().DurationVar(&dumpTimeout, "timeout", 30*time.Second,
		"maximum time to wait for the report")
}

func runDump(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg := appConfig
	if dumpDirectory != "" {
		cfg.Report.Directory = dumpDirectory
	}
	// An on-demand dump is always an API call report.
	cfg.Report.Events = "apicall"

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), dumpTimeout)
	defer cancel()
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- a.loop.Run(loopCtx) }()

	var filename string
	if len(args) == 1 {
		filename = args[0]
	}
	res, dumpErr := a.dump(ctx, filename)

	stopLoop()
	<-loopDone
	closeErr := a.close(context.Background())

	if dumpErr != nil {
		return errors.Join(fmt.Errorf("writing report: %w", dumpErr), closeErr)
	}
	if res.Path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s (%s, %s)\n",
			res.Path, humanize.IBytes(uint64(max(res.Bytes, 0))), res.Duration.Round(time.Millisecond))
	}
	return closeErr
}
