package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newFeedsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List configured feeds",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			feeds, err := a.cfg.Feeds()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tACTIVE\tSOURCE\tPREFIX\tINCLUDE\tEXCLUDE")
			for _, f := range feeds {
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\n",
					f.ID(), f.Active(), f.SourceURI(), orDash(f.DestinationPrefix()),
					orDash(strings.Join(f.IncludePatterns(), ",")),
					orDash(strings.Join(f.ExcludePatterns(), ",")))
			}
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
