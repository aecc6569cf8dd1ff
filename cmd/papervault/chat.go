package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/papers"
	"github.com/DeuxFois/papervault/internal/tui"
	"github.com/DeuxFois/papervault/internal/vault"
)

const eventBuffer = 64

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		note        string
		noAltScreen bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat interface",
		Long: `Open the terminal interface listing the vault's notes next to the
discussion panel of the selected note. Logs go to a file because the
interface owns the terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), root.overrides, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd.Context(), a, note, noAltScreen)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Open this note first")
	cmd.Flags().BoolVar(&noAltScreen, "no-alt-screen", false, "Disable the alternate screen buffer")
	return cmd
}

func runChat(ctx context.Context, a *app, note string, noAltScreen bool) error {
	client, err := a.llmClient()
	if err != nil {
		a.logger.Warn("LLM disabled", "err", err)
	}

	events := make(chan tea.Msg, eventBuffer)
	push := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
			a.logger.Debug("dropping UI event", "type", fmt.Sprintf("%T", msg))
		}
	}

	index := a.synchronizer(func(res papers.RebuildResult) {
		push(tui.RebuildMsg{Result: res})
	})
	defer index.Stop()
	if _, err := index.BuildFullIndex(); err != nil {
		return err
	}
	unsubscribe := a.vault.Subscribe(func(ev vault.Event) {
		index.Handle(ev)
		push(tui.EventMsg{Event: ev})
	})
	defer unsubscribe()

	store, err := a.loadStore(ctx, discussions.Options{
		OnChange: func() { push(tui.StoreChangedMsg{}) },
		Notify:   func(err error) { push(tui.NoticeMsg{Err: err}) },
	})
	if err != nil {
		return err
	}
	defer store.Close()

	panel := a.panel(store, index, client)
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if !noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(tui.New(tui.Config{
		Panel:       panel,
		Vault:       a.vault,
		Papers:      index,
		Events:      events,
		InitialNote: note,
		Logger:      a.logger,
		Context:     ctx,
	}), opts...)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	if index.FlushRebuild() {
		a.logger.Debug("flushed pending index rebuild")
	}
	return nil
}
