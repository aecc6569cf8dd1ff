package tuitest

import (
	"bytes"
	"testing"
)

func TestParseFramesSplitsOnClearScreen(t *testing.T) {
	raw := []byte("\x1b[2J\x1b[H\x1b[1mfirst\x1b[0m   \r\n\x1b[2Jsecond\x1b[2J   ")
	frames := parseFrames(raw)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %#v", len(frames), frames)
	}
	if frames[0].Plain != "first" || frames[1].Plain != "second" {
		t.Fatalf("unexpected frames %q, %q", frames[0].Plain, frames[1].Plain)
	}
	rec := &Recording{Raw: raw, Frames: frames}
	if f, ok := rec.LastFrameContaining("fir"); !ok || f.Index != 0 {
		t.Fatalf("LastFrameContaining = %#v, %v", f, ok)
	}
	if _, ok := rec.LastFrameContaining("third"); ok {
		t.Fatalf("found a frame that was never drawn")
	}
	if final, ok := rec.FinalFrame(); !ok || final.Plain != "second" {
		t.Fatalf("FinalFrame = %#v", final)
	}
}

func TestResponderAnswersQueriesInOrder(t *testing.T) {
	var replies bytes.Buffer
	tr := newTerminalResponder(&replies)
	tr.Process([]byte("noise\x1b]11;?\x07more\x1b["))
	tr.Process([]byte("6n"))
	want := "\x1b]11;rgb:0000/0000/0000\x07\x1b[1;1R"
	if replies.String() != want {
		t.Fatalf("replies = %q, want %q", replies.String(), want)
	}

	replies.Reset()
	tr.Process(bytes.Repeat([]byte("x"), 1000))
	if replies.Len() != 0 || len(tr.buf) != responderTail {
		t.Fatalf("buffer not trimmed: %d bytes kept, %q written", len(tr.buf), replies.String())
	}
}
