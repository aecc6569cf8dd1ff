package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/vault"
)

func newDiscussionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "discussions",
		Aliases: []string{"disc"},
		Short:   "Inspect stored discussions",
	}
	cmd.AddCommand(
		newDiscussionsListCmd(root),
		newDiscussionsExportCmd(root),
		newDiscussionsDeleteCmd(root),
	)
	return cmd
}

func newDiscussionsListCmd(root *rootOptions) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discussions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			store, err := a.loadStore(cmd.Context(), discussions.Options{})
			if err != nil {
				return err
			}
			defer store.Close()

			var summaries []discussions.Summary
			if note != "" {
				for _, d := range store.DiscussionsFor(vault.Clean(note)) {
					summaries = append(summaries, discussions.Summary{
						ID:           d.ID,
						Title:        d.Title,
						NoteFile:     d.NotePath,
						LastUpdated:  d.LastUpdated,
						MessageCount: len(d.History),
					})
				}
			} else {
				summaries = store.GlobalHistory()
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				printHeader(out, "No discussions found")
				return nil
			}
			printHeader(out, "%d discussion(s)", len(summaries))
			t := newTable(out, "ID", "Title", "Note", "Messages", "Updated")
			for _, s := range summaries {
				t.row(
					mutedStyle.Render(s.ID),
					s.Title,
					s.NoteFile,
					strconv.Itoa(s.MessageCount),
					s.LastUpdated.Local().Format("2006-01-02 15:04"),
				)
			}
			return t.flush()
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Only list discussions of this note")
	return cmd
}

func newDiscussionsExportCmd(root *rootOptions) *cobra.Command {
	var (
		note   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Render a discussion as markdown",
		Long: `Print a discussion as a markdown document, or write it into the vault
with --output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			store, err := a.loadStore(cmd.Context(), discussions.Options{})
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := findDiscussion(store, args[0], cleanHint(note))
			if err != nil {
				return err
			}
			rendered := discussions.ExportMarkdown(d)
			if output == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), rendered)
				return err
			}
			target := vault.Clean(output)
			if !strings.HasSuffix(target, ".md") {
				target += ".md"
			}
			if _, err := a.vault.Write(target, rendered); err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "exported to %s", target)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Note the discussion belongs to, when known")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this vault path instead of stdout")
	return cmd
}

func newDiscussionsDeleteCmd(root *rootOptions) *cobra.Command {
	var (
		note string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a discussion after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			store, err := a.loadStore(cmd.Context(), discussions.Options{})
			if err != nil {
				return err
			}
			defer store.Close()

			in := bufio.NewReader(cmd.InOrStdin())
			confirm := func(s discussions.Summary) bool {
				if yes {
					return true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Delete %q (%d messages)? [y/N] ", s.Title, s.MessageCount)
				answer, _ := in.ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				return answer == "y" || answer == "yes"
			}
			err = store.DeleteDiscussion(cmd.Context(), args[0], cleanHint(note), confirm)
			if errors.Is(err, discussions.ErrNotConfirmed) {
				printHeader(cmd.OutOrStdout(), "Kept %s", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "deleted %s", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Note the discussion belongs to, when known")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// findDiscussion resolves id through the store's index, then the discussions
// of hint, then every other note.
func findDiscussion(store *discussions.Store, id, hint string) (discussions.Discussion, error) {
	var notes []string
	if entry, ok := store.Locate(id); ok {
		notes = append(notes, entry.NotePath)
	}
	if hint != "" {
		notes = append(notes, hint)
	}
	notes = append(notes, store.Notes()...)
	for _, notePath := range notes {
		for _, d := range store.DiscussionsFor(notePath) {
			if d.ID == id {
				return d, nil
			}
		}
	}
	return discussions.Discussion{}, fmt.Errorf("%w: %s", discussions.ErrNotFound, id)
}

func cleanHint(note string) string {
	if strings.TrimSpace(note) == "" {
		return ""
	}
	return vault.Clean(note)
}
