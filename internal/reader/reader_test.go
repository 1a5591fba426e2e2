package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func collectLines(t *testing.T, events <-chan Event, want int, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("channel closed early, got %d of %d events", len(got), want)
			}
			if ev.Kind == EventLine {
				got = append(got, ev)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %d line events, got %d", want, len(got))
		}
	}
	return got
}

func TestReaderSpoolsExistingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte("a\nbb\nccc\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(path)
	events := r.Run(ctx)

	got := collectLines(t, events, 3, 2*time.Second)
	want := []string{"a", "bb", "ccc"}
	for i, ev := range got {
		if ev.Content != want[i] || ev.Partial {
			t.Errorf("line %d: got %+v, want content=%q partial=false", i, ev, want[i])
		}
	}
}

func TestReaderEmitsPartialThenComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(path)
	events := r.Run(ctx)

	got := collectLines(t, events, 1, 2*time.Second)
	if !got[0].Partial || got[0].Content != "hello" {
		t.Errorf("got %+v, want partial content=%q", got[0], "hello")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(" world\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got = collectLines(t, events, 2, 5*time.Second)
	if got[1].Partial || got[1].Content != "hello world" {
		t.Errorf("got %+v, want complete content=%q", got[1], "hello world")
	}
}

func TestReaderDetectsTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(path)
	events := r.Run(ctx)
	collectLines(t, events, 3, 2*time.Second)

	if err := os.WriteFile(path, []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("channel closed before Truncated observed")
			}
			if ev.Kind == EventTruncated {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for Truncated event")
		}
	}
}
