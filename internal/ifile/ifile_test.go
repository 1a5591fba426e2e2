package ifile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/frank-taylor-lieder/otail/internal/core"
)

func waitForLine(t *testing.T, resp <-chan core.Response, lineNo uint64, timeout time.Duration) core.Response {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case r := <-resp:
			if r.IsLine() && r.Line.LineNo == lineNo {
				return r
			}
		case <-deadline:
			t.Fatalf("timed out waiting for line %d", lineNo)
		}
	}
}

func waitForStats(t *testing.T, resp <-chan core.Response, fileLines uint64, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case r := <-resp:
			if r.IsStats() && r.Stats.FileLines == fileLines {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for file_lines=%d", fileLines)
		}
	}
}

func TestRegisterClientAndGetLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte("a\nbb\nccc\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	resp := make(chan core.Response, core.ChannelBuffer)
	f.Requests() <- core.NewRegisterClient("client-1", resp)

	// The first response is the Stats sent on registration; how many lines
	// it counts depends on how far the spool has got.
	initial := <-resp
	if !initial.IsStats() {
		t.Fatalf("expected initial response to be Stats, got %+v", initial)
	}

	waitForStats(t, resp, 3, 2*time.Second)

	f.Requests() <- core.NewGetLine("client-1", 1)
	line := waitForLine(t, resp, 1, 2*time.Second)
	if line.Line.Content != "bb" || line.Line.Partial {
		t.Errorf("got %+v, want content=bb partial=false", line.Line)
	}
}

func TestPartialLineCompletion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	resp := make(chan core.Response, core.ChannelBuffer)
	f.Requests() <- core.NewRegisterClient("client-1", resp)
	f.Requests() <- core.NewEnableTailing("client-1", 0)

	line := waitForLine(t, resp, 0, 2*time.Second)
	if !line.Line.Partial || line.Line.Content != "hello" {
		t.Fatalf("got %+v, want partial content=hello", line.Line)
	}

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fh.WriteString(" world\n"); err != nil {
		t.Fatal(err)
	}
	fh.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-resp:
			if r.IsLine() && r.Line.LineNo == 0 && !r.Line.Partial {
				if r.Line.Content != "hello world" {
					t.Fatalf("got content=%q, want %q", r.Line.Content, "hello world")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for completed line 0")
		}
	}
}

func TestTruncationResetsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	resp := make(chan core.Response, core.ChannelBuffer)
	f.Requests() <- core.NewRegisterClient("client-1", resp)
	waitForStats(t, resp, 3, 2*time.Second)

	if err := os.WriteFile(path, []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-resp:
			if r.IsTruncated() {
				waitForStats(t, resp, 1, 2*time.Second)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for Truncated")
		}
	}
}
