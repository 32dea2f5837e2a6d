package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/printworks/storefront/internal/pricing/importer"
)

const importLockTTL = 5 * time.Minute

var importJSON bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a CSV or XLSX price sheet",
	Long: `Import a price sheet. Files ending in .xlsx are read as workbooks (first
sheet only); anything else is parsed as CSV with a header row.

Bad rows are skipped and listed; the rest are saved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "read %s", path)
		}

		stack, cleanup, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		unlock, ok, err := stack.Cache.LockImport(ctx, importLockTTL)
		if err != nil {
			return eris.Wrap(err, "import lock")
		}
		if !ok {
			return eris.New("another price import is running")
		}
		defer unlock()

		res, err := stack.Importer.ImportFile(ctx, importer.DetectFormat(filepath.Base(path), ""), data)
		var recErr *importer.RecordError
		if err != nil && !errors.As(err, &recErr) {
			return eris.Wrap(err, "import")
		}
		if err := printImportResult(cmd.OutOrStdout(), res, importJSON); err != nil {
			return err
		}
		if recErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", recErr)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(importCmd)
}

func printImportResult(w io.Writer, res importer.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "run %s\n", res.RunID)
	fmt.Fprintf(w, "rows: %d  imported: %d (created %d, updated %d)  skipped: %d\n",
		res.Total, res.Imported, res.Created, res.Updated, res.Skipped)
	for _, rowErr := range res.Errors {
		fmt.Fprintf(w, "  row %d: %s\n", rowErr.Row, rowErr.Reason)
	}
	return nil
}
