package paniclog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecoverWritesEntryAndRepanics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panic.log")
	if err := Init(path); err != nil {
		t.Fatal(err)
	}
	defer Close()

	func() {
		defer func() {
			r := recover()
			if r != "boom" {
				t.Fatalf("got recovered value %v, want %q", r, "boom")
			}
		}()
		func() {
			defer Recover()
			panic("boom")
		}()
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "boom") {
		t.Errorf("log file does not contain panic message: %s", data)
	}
	if !strings.Contains(string(data), "[PANIC]") {
		t.Errorf("log file missing [PANIC] marker: %s", data)
	}
}

func TestRecoverNoPanicIsNoop(t *testing.T) {
	func() {
		defer Recover()
	}()
}
