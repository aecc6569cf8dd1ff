package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newIndexCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the generated paper index",
	}
	cmd.AddCommand(newIndexRebuildCmd(root), newIndexListCmd(root))
	return cmd
}

func newIndexRebuildCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-scan the papers folder and rewrite the index note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			index := a.synchronizer(nil)
			defer index.Stop()
			if err := index.Rebuild(cmd.Context()); err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "%d papers indexed in %s", index.Len(), index.IndexPath())
			return nil
		},
	}
}

func newIndexListCmd(root *rootOptions) *cobra.Command {
	var sector string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the papers the index would contain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			index := a.synchronizer(nil)
			defer index.Stop()
			if _, err := index.BuildFullIndex(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			records := index.Records()
			shown := 0
			t := newTable(out, "Sector", "Title", "Year", "Path")
			for _, r := range records {
				if sector != "" && !strings.EqualFold(r.Sector, sector) {
					continue
				}
				shown++
				t.row(r.Sector, r.Title(), r.Year(), mutedStyle.Render(r.Path))
			}
			if shown == 0 {
				printHeader(out, "No papers under %s", index.Root())
				return nil
			}
			return t.flush()
		},
	}
	cmd.Flags().StringVar(&sector, "sector", "", "Only list papers of this sector")
	return cmd
}
