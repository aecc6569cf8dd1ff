package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DeuxFois/papervault/internal/feeds"
	"github.com/DeuxFois/papervault/internal/llm"
)

func newFeedsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Import feeds and clip web pages",
	}
	cmd.AddCommand(newFeedsImportCmd(root), newFeedsClipCmd(root))
	return cmd
}

func newFeedsImportCmd(root *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <file.csv|file.json>",
		Short: "Turn a CSV or JSON feed into a table note",
		Long: `Parse a CSV file (header row required) or a JSON array of objects and
write it as a markdown table under the feeds folder. Importing the same name
again replaces the earlier note.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			indexer := feeds.NewIndexer(a.vault, a.cfg.FeedsFolder, a.logger)
			res, err := indexer.Import(cmd.Context(), args[0], name, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printDone(out, "%d items written to %s", res.Items, res.NotePath)
			for _, skipped := range res.Skipped {
				fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("skipped: "+skipped.Error()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Note name (default: the file's base name)")
	return cmd
}

func newFeedsClipCmd(root *rootOptions) *cobra.Command {
	var (
		summarize bool
		extract   bool
	)
	cmd := &cobra.Command{
		Use:   "clip <url>",
		Short: "Save a web page as a bookmark note",
		Long: `Fetch a page, keep its main content as markdown and write a bookmark
note under the clip folder. --summarize and --extract ask the configured LLM
for a summary and for tags; an LLM failure still leaves the note in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var client llm.Client
			if summarize || extract {
				if client, err = a.llmClient(); err != nil {
					return err
				}
			}
			clipper := feeds.NewClipper(a.vault, a.doc.Feeds.ClipFolder, nil, client, a.logger)
			res, err := clipper.Clip(cmd.Context(), args[0], feeds.ClipOptions{Summarize: summarize, Extract: extract})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printDone(out, "%s", res.NotePath)
			if len(res.Tags) > 0 {
				printHeader(out, "tags: %s", strings.Join(res.Tags, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&summarize, "summarize", false, "Add an LLM summary")
	cmd.Flags().BoolVar(&extract, "extract", false, "Extract tags and authors with the LLM")
	return cmd
}
