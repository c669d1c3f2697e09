package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/relay/internal/model"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		feedID    string
		statusStr string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show journaled file records for a feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if feedID == "" {
				return errors.New("--feed is required")
			}
			var want model.FileStatus
			if statusStr != "" {
				var err error
				if want, err = model.ParseFileStatus(statusStr); err != nil {
					return err
				}
			}

			tr, err := buildTracker(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("open tracker: %w", err)
			}
			defer tr.Close()

			recs, err := tr.ListByFeed(cmd.Context(), feedID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STATUS\tATTEMPTS\tSIZE\tCOPIED AT\tSOURCE\tDEST")
			for _, rec := range recs {
				if want != "" && rec.Status != want {
					continue
				}
				copiedAt := "-"
				if rec.CopiedAt != nil {
					copiedAt = rec.CopiedAt.UTC().Format(time.RFC3339)
				}
				dest := rec.DestURI
				if dest == "" {
					dest = "-"
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
					rec.Status, rec.Attempts, rec.SizeBytes, copiedAt, rec.SourcePath, dest)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&feedID, "feed", "", "feed id")
	cmd.Flags().StringVar(&statusStr, "status", "", "only show records in this status")
	return cmd
}
