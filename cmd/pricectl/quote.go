package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/printworks/storefront/internal/pricing"
)

var (
	quoteQty     int64
	quoteOptions map[string]string
	quoteLocale  string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <slug>",
	Short: "Price a selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tag, err := language.Parse(quoteLocale)
		if err != nil {
			return eris.Wrapf(err, "locale %q", quoteLocale)
		}
		stack, cleanup, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		q, err := stack.Engine.Quote(ctx, args[0], pricing.Selection(quoteOptions), quoteQty)
		if err != nil {
			return eris.Wrap(err, "quote")
		}
		return printQuote(cmd.OutOrStdout(), q, tag)
	},
}

var optionsCmd = &cobra.Command{
	Use:   "options <slug>",
	Short: "List the selectable options of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stack, cleanup, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		catalog, err := stack.Engine.Options(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "options")
		}
		printCatalog(cmd.OutOrStdout(), catalog)
		return nil
	},
}

var (
	servicesCategory string
	servicesActive   bool
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List services",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		stack, cleanup, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		services, err := stack.Store.ListServices(ctx, pricing.ListFilters{Category: servicesCategory, ActiveOnly: servicesActive})
		if err != nil {
			return eris.Wrap(err, "list services")
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSLUG\tNAME\tCATEGORY\tACTIVE")
		for _, svc := range services {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", svc.ID, svc.Slug, svc.Name, svc.Category, svc.IsActive)
		}
		return tw.Flush()
	},
}

func init() {
	quoteCmd.Flags().Int64Var(&quoteQty, "qty", 1, "quantity to price")
	quoteCmd.Flags().StringToStringVarP(&quoteOptions, "opt", "o", nil, "selected option as Key=Value (repeatable)")
	quoteCmd.Flags().StringVar(&quoteLocale, "locale", "en-GB", "locale for formatted amounts")
	servicesCmd.Flags().StringVar(&servicesCategory, "category", "", "only services in this category")
	servicesCmd.Flags().BoolVar(&servicesActive, "active", false, "only active services")
	rootCmd.AddCommand(quoteCmd, optionsCmd, servicesCmd)
}

func printQuote(w io.Writer, q pricing.Quote, tag language.Tag) error {
	shown := q.DisplayAmounts(tag)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "service\t%s\n", q.Service.Slug)
	fmt.Fprintf(tw, "matched\t%s\n", q.MatchedAttrs)
	fmt.Fprintf(tw, "rule\t%s\n", q.RuleKind)
	if q.Tier != nil {
		fmt.Fprintf(tw, "tier\t%d+ @ %s\n", q.Tier.Qty, q.Tier.UnitPrice.String())
	}
	fmt.Fprintf(tw, "quantity\t%d\n", q.Quantity)
	fmt.Fprintf(tw, "net\t%s\n", shown["net"])
	fmt.Fprintf(tw, "vat\t%s\n", shown["vat"])
	fmt.Fprintf(tw, "gross\t%s\n", shown["gross"])
	return tw.Flush()
}

func printCatalog(w io.Writer, c pricing.Catalog) {
	for _, key := range c.OptionKeys {
		fmt.Fprintf(w, "%s: %s\n", key, strings.Join(c.Options[key], ", "))
	}
}
