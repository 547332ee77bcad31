package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/procreport/internal/catalog"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List and prune cataloged reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List written reports, newest first",
	RunE:  runReportsList,
}

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete generated reports beyond the newest --keep",
	RunE:  runReportsPrune,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show [report-id]",
	Short: "Print a cataloged report (the latest when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReportsShow,
}

var (
	reportsLimit int
	reportsJSON  bool
	reportsKeep  int
)

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd, reportsPruneCmd, reportsShowCmd)

	reportsListCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "maximum number of reports")
	reportsListCmd.Flags().BoolVar(&reportsJSON, "json", false, "print JSON")
	reportsPruneCmd.Flags().IntVar(&reportsKeep, "keep", -1,
		"generated reports to keep (default from catalog.max_files)")
}

func openCatalog() (*catalog.Store, error) {
	if !appConfig.Catalog.Enabled {
		return nil, errors.New("report catalog is disabled (catalog.enabled)")
	}
	return catalog.Open(appConfig.Catalog.Path, catalog.WithLogger(newLogger().Logger))
}

func runReportsList(cmd *cobra.Command, _ []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), reportsLimit)
	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if reportsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []catalog.Entry{}
		}
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No reports recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tEVENT\tSIZE\tFILE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			humanize.Time(e.CreatedAt), e.Event, humanize.IBytes(uint64(max(e.Bytes, 0))), e.Path)
	}
	return tw.Flush()
}

func runReportsPrune(cmd *cobra.Command, _ []string) error {
	keep := reportsKeep
	if keep < 0 {
		keep = appConfig.Catalog.MaxFiles
		if keep == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Pruning disabled (catalog.max_files is 0); pass --keep")
			return nil
		}
	}

	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(cmd.Context(), keep)
	if err != nil {
		return fmt.Errorf("pruning reports: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d report(s), kept the newest %d generated\n", n, keep)
	return nil
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	var id string
	if len(args) == 1 {
		id = args[0]
	} else {
		latest, err := store.Latest(cmd.Context())
		if err != nil {
			return fmt.Errorf("finding latest report: %w", err)
		}
		id = latest.ReportID
	}

	_, data, err := store.Content(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("reading report %s: %w", id, err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
