package main

import (
	"github.com/spf13/cobra"

	"github.com/DeuxFois/papervault/internal/papers"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import papers into the vault",
	}
	cmd.AddCommand(newImportArxivCmd(root))
	return cmd
}

func newImportArxivCmd(root *rootOptions) *cobra.Command {
	var sector string
	cmd := &cobra.Command{
		Use:   "arxiv <id-or-url>",
		Short: "Create a paper note and download its PDF from arXiv",
		Long: `Fetch the arXiv metadata of a paper, store its PDF under the papers
folder and write a note with title, authors, year and abstract. The index
note is rebuilt afterwards. An existing note is left untouched.`,
		Example: `  papervault import arxiv 1706.03762 --sector NLP
  papervault import arxiv https://arxiv.org/abs/2106.09685`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			importer := papers.NewImporter(a.vault, a.arxivClient(), a.cfg.PapersRoot, a.logger)
			res, err := importer.ImportArxiv(ctx, args[0], sector)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Created {
				printHeader(out, "Already imported: %s", res.NotePath)
				return nil
			}

			index := a.synchronizer(nil)
			defer index.Stop()
			if err := index.Rebuild(ctx); err != nil {
				return err
			}
			printDone(out, "%s", res.Paper.Title)
			printDone(out, "note %s", res.NotePath)
			printDone(out, "pdf %s", res.PDFPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&sector, "sector", "", "Sector folder under the papers root")
	return cmd
}
