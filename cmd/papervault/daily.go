package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeuxFois/papervault/internal/dailynotes"
)

func newDailyCmd(root *rootOptions) *cobra.Command {
	var today bool
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "List daily notes, newest first",
		Long: `Print the daily notes as a list of links, newest first. With --today the
note for the current date is created first when it does not exist yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			folder, format := a.cfg.DailyFolder, a.cfg.DailyFormat
			out := cmd.OutOrStdout()
			if today {
				notePath, created, err := dailynotes.Today(a.vault, folder, format, time.Now())
				if err != nil {
					return err
				}
				if created {
					printDone(out, "created %s", notePath)
				} else {
					printHeader(out, "Today: %s", notePath)
				}
			}
			notes, err := dailynotes.List(a.vault, folder, format)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, dailynotes.Render(notes))
			return err
		},
	}
	cmd.Flags().BoolVar(&today, "today", false, "Create today's note when missing")
	return cmd
}
