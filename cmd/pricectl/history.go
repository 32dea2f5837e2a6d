package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/printworks/storefront/internal/history"
)

var (
	historyLimit int
	historyTZ    string
)

var historyCmd = &cobra.Command{
	Use:   "history <slug>",
	Short: "Show the change history of a service, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		loc, err := time.LoadLocation(historyTZ)
		if err != nil {
			return eris.Wrapf(err, "time zone %q", historyTZ)
		}
		stack, cleanup, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		_, entries, err := stack.Admin.History(ctx, args[0], historyLimit)
		if err != nil {
			return eris.Wrap(err, "history")
		}
		return printHistory(cmd.OutOrStdout(), entries, loc)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultLimit, "number of entries to show")
	historyCmd.Flags().StringVar(&historyTZ, "tz", "UTC", "IANA time zone for timestamps")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(w io.Writer, entries []history.Entry, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tTYPE\tROW\tDESCRIPTION")
	for _, e := range entries {
		row := "-"
		if e.RowID != nil {
			row = fmt.Sprint(*e.RowID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.In(loc).Format("2006-01-02 15:04:05 MST"), e.Type, row, e.Description)
	}
	return tw.Flush()
}
