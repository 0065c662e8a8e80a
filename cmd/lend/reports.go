package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/and161185/lendclient/internal/access"
	"github.com/and161185/lendclient/internal/reports"
)

func newReportsCmd(a *app) *cobra.Command {
	svc := func() *reports.Service {
		return reports.New(a.client, func() access.Grants { return a.state.Snapshot().Auth.Grants() }, a.log.Named("reports"))
	}
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse backend reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var (
		page int
		kind string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List one page of reports",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if page < 1 {
				return usagef("reports list: --page must be at least 1")
			}
			p, err := svc().List(cmd.Context(), page, kind)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tCREATED\tTITLE")
			for _, r := range p.Results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.CreatedAt.Format("2006-01-02"), r.Title)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "page %d, %d report(s) in total\n", page, p.Count)
			return nil
		},
	}
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().StringVar(&kind, "kind", "", "only reports of this kind (PORTFOLIO, RISK, PERFORMANCE)")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one report",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := svc().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}
