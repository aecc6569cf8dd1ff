package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DeuxFois/papervault/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootOptions carries the persistent flags down to each subcommand.
type rootOptions struct {
	overrides config.Overrides
}

// newRootCmd builds the command tree. Tests call it once per case so flag
// state never leaks between runs.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "papervault",
		Short: "Manage a vault of research papers and chat with them",
		Long: `papervault keeps a Markdown vault of research papers organized.

It maintains a generated paper index, imports papers from arXiv, turns CSV and
JSON feeds into tables, clips web pages as bookmark notes and keeps per-note
discussions with a local or hosted LLM.

Quick Start:
  papervault index rebuild               # Regenerate the paper index
  papervault import arxiv 1706.03762     # Import a paper with its PDF
  papervault chat                        # Open the chat interface`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadDotEnv()
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.overrides.VaultPath, "vault", "", "Vault directory (default $PAPERVAULT_VAULT or .)")
	flags.StringVar(&opts.overrides.SettingsPath, "settings", "", "Settings file, relative to the vault")
	flags.StringVar(&opts.overrides.LogFile, "log-file", "", "Write logs to this file")
	flags.BoolVarP(&opts.overrides.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.overrides.LLMProvider, "llm-provider", "", "LLM provider: ollama or openai")
	flags.StringVar(&opts.overrides.LLMModel, "llm-model", "", "Override the LLM model")
	flags.StringVar(&opts.overrides.LLMEndpoint, "llm-endpoint", "", "Override the LLM endpoint")

	root.AddCommand(
		newChatCmd(opts),
		newIndexCmd(opts),
		newImportCmd(opts),
		newFeedsCmd(opts),
		newDiscussionsCmd(opts),
		newDailyCmd(opts),
		newBackupCmd(opts),
	)
	return root
}

// open builds the shared components for cmd, logging to its stderr.
func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	return openApp(cmd.Context(), o.overrides, cmd.ErrOrStderr(), false)
}
