package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/DeuxFois/papervault/internal/tuitest"
)

func TestChatHelpOverlay(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	binary := buildBinary(t, moduleDir(t))
	dir := t.TempDir()
	writeFile(t, dir, "Papers/ML/attention.md", "---\ntitle: Attention Is All You Need\n---\n")
	writeFile(t, dir, "Inbox.md", "loose\n")

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "chat", "--no-alt-screen", "--vault", dir},
		Dir:     dir,
		Width:   100,
		Height:  32,
		Steps: []tuitest.Step{
			{WaitFor: "Talk to your papers."},
			{Input: tuitest.Text("?")},
			{WaitFor: "Delete discussion", Input: tuitest.KeyCtrlC},
		},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run chat: %v", err)
	}
	frame, ok := rec.LastFrameContaining("Keys")
	if !ok {
		t.Fatalf("help never drawn:\n%s", rec.Plain())
	}
	for _, want := range []string{"Attention Is All You Need", "Inbox", "Ctrl+N", "New discussion", "Rebuild index"} {
		if !strings.Contains(frame.Plain, want) {
			t.Fatalf("frame missing %q:\n%s", want, frame.Plain)
		}
	}
}

func TestChatSendsPromptAndPersistsReply(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"It introduces the Transformer."},"done":true}`))
	}))
	t.Cleanup(ollama.Close)

	binary := buildBinary(t, moduleDir(t))
	dir := t.TempDir()
	writeFile(t, dir, "Papers/attention.md", "---\ntitle: Attention Is All You Need\n---\nSelf-attention only.\n")

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "chat", "--no-alt-screen", "--vault", dir,
			"--llm-provider", "ollama", "--llm-endpoint", ollama.URL},
		Dir:    dir,
		Width:  100,
		Height: 32,
		Steps: []tuitest.Step{
			{WaitFor: "Talk to your papers.", Input: tuitest.KeyEnter},
			{Delay: 500 * time.Millisecond, Input: tuitest.KeyTab},
			{Input: tuitest.Text("What is new here?")},
			{Input: tuitest.KeyEnter},
			{WaitFor: "It introduces the Transformer.", Input: tuitest.KeyCtrlC},
		},
		Timeout: 15 * time.Second,
	})
	if err != nil {
		t.Fatalf("run chat: %v", err)
	}
	if !strings.Contains(rec.Plain(), "What is new here?") {
		t.Fatalf("prompt never rendered:\n%s", rec.Plain())
	}

	stored := readFile(t, dir, ".papervault/settings.json")
	for _, want := range []string{"What is new here?", "It introduces the Transformer.", "Papers/attention.md"} {
		if !strings.Contains(stored, want) {
			t.Fatalf("settings missing %q:\n%s", want, stored)
		}
	}
}

func moduleDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Dir(file)
}

func buildBinary(t *testing.T, cmdDir string) string {
	t.Helper()
	name := "papervault-integration"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binPath := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build CLI: %v\n%s", err, output)
	}
	return binPath
}
