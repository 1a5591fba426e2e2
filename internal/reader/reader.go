// Package reader implements the two-phase spool-then-tail consumer of a
// file. It owns its own BackingFile — independent of IF's — and emits
// events on a bounded channel that IF multiplexes alongside client
// requests.
//
// The tail loop is grounded on the corpus's JSONL conversation tailer: an
// fsnotify watch on the containing directory with a poll-ticker fallback,
// an explicit offset cursor, and truncation detected by a shrinking file
// size between events. It generalizes that loop to guarantee ascending
// line order and correct partial-line handling while tailing.
package reader

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/frank-taylor-lieder/otail/internal/backingfile"
)

// ErrorKind distinguishes why the Reader stopped, so callers can tell file
// removal (expected, terminal) from other fatal I/O without parsing
// strings.
type ErrorKind int

const (
	ErrorKindRemoved ErrorKind = iota
	ErrorKindWatcher
	ErrorKindIO
)

// Event is one spool/tail update. Exactly one of the three shapes is
// populated at a time, selected by Kind.
type Event struct {
	Kind EventKind

	// Line
	Content   string
	Offset    int64
	LineBytes int
	Partial   bool
	FileBytes int64

	// FileError
	ErrorKind ErrorKind
	Reason    string
}

type EventKind int

const (
	EventLine EventKind = iota
	EventTruncated
	EventFileError
)

// pollFallback is how often the tail loop re-checks the file even without
// a filesystem notification, matching the corpus tailer's one-second
// poll-ticker fallback (fsnotify can miss events under heavy load or on
// some network filesystems).
const pollFallback = time.Second

// Reader spools a file from offset 0 and then tails it, emitting Line,
// Truncated and FileError events as it moves through its own
// Opening -> Spooling -> Tailing -> Terminated states.
type Reader struct {
	path string
}

// New creates a Reader for path. Opening happens lazily in Run so
// construction never fails.
func New(path string) *Reader {
	return &Reader{path: path}
}

// Run spools then tails the file, sending events on the returned channel
// until ctx is cancelled, the file is removed, or a fatal I/O error
// occurs. The channel is closed when Run returns.
func (r *Reader) Run(ctx context.Context) <-chan Event {
	events := make(chan Event, 1000)
	go func() {
		defer close(events)
		if err := r.run(ctx, events); err != nil {
			log.Printf("reader: %s: %v", r.path, err)
		}
	}()
	return events
}

func (r *Reader) run(ctx context.Context, events chan<- Event) error {
	bf, err := backingfile.Open(r.path)
	if err != nil {
		return r.emitFileError(ctx, events, ErrorKindIO, err.Error())
	}
	defer func() { bf.Close() }()

	var pos int64
	previousPartial := false

	emitLine := func(lineOffset int64, content string, lineBytes int, partial bool, fileBytes int64) bool {
		select {
		case events <- Event{Kind: EventLine, Content: content, Offset: lineOffset, LineBytes: lineBytes, Partial: partial, FileBytes: fileBytes}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Phase 1: spool from offset 0 to EOF.
	if err := spoolOrTailOnce(bf, &pos, &previousPartial, emitLine); err != nil {
		return r.emitFileError(ctx, events, ErrorKindIO, err.Error())
	}

	// Phase 2: tail.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return r.emitFileError(ctx, events, ErrorKindWatcher, fmt.Sprintf("watcher init: %v", err))
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return r.emitFileError(ctx, events, ErrorKindWatcher, fmt.Sprintf("watch %s: %v", dir, err))
	}

	ticker := time.NewTicker(pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					if removed(r.path) {
						return r.emitFileError(ctx, events, ErrorKindRemoved, "File removed")
					}
				}
				continue
			}
			if event.Name != r.path && filepath.Base(event.Name) != filepath.Base(r.path) {
				continue
			}
			if removed(r.path) {
				return r.emitFileError(ctx, events, ErrorKindRemoved, "File removed")
			}
			if err := r.tailTick(ctx, &bf, &pos, &previousPartial, events); err != nil {
				return r.emitFileError(ctx, events, ErrorKindIO, err.Error())
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return r.emitFileError(ctx, events, ErrorKindWatcher, fmt.Sprintf("watcher: %v", werr))

		case <-ticker.C:
			if removed(r.path) {
				return r.emitFileError(ctx, events, ErrorKindRemoved, "File removed")
			}
			if err := r.tailTick(ctx, &bf, &pos, &previousPartial, events); err != nil {
				return r.emitFileError(ctx, events, ErrorKindIO, err.Error())
			}
		}
	}
}

// tailTick checks for truncation and then reads forward. On truncation the
// Backing File is reopened by path rather than seeked back to 0 on the
// existing handle: a shrink can equally be a truncate-in-place (same
// inode, new length) or a rename-then-recreate rotation (old file
// unlinked, a new file created at the same path). Reusing the stale
// handle would keep reading the unlinked file forever in the second case,
// so the handle is always reopened, exactly as the original reader does.
func (r *Reader) tailTick(ctx context.Context, bfp **backingfile.BackingFile, pos *int64, previousPartial *bool, events chan<- Event) error {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil // transient — file may be mid-rotation; next tick retries
	}
	newSize := info.Size()

	if newSize < *pos {
		// A truncation whose post-truncation size reaches or exceeds the
		// prior size within a single watcher tick is indistinguishable from
		// an append, and is therefore treated as an append. Known, accepted
		// limitation.
		select {
		case events <- Event{Kind: EventTruncated}:
		case <-ctx.Done():
			return nil
		}

		reopened, err := backingfile.Open(r.path)
		if err != nil {
			return err
		}
		(*bfp).Close()
		*bfp = reopened
		*pos = 0
		*previousPartial = false
	}
	bf := *bfp

	if newSize == *pos {
		return nil
	}

	if err := bf.Seek(*pos); err != nil {
		return err
	}

	emitLine := func(lineOffset int64, content string, lineBytes int, partial bool, fileBytes int64) bool {
		select {
		case events <- Event{Kind: EventLine, Content: content, Offset: lineOffset, LineBytes: lineBytes, Partial: partial, FileBytes: fileBytes}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	return spoolOrTailOnce(bf, pos, previousPartial, emitLine)
}

// spoolOrTailOnce reads forward from the BackingFile's current cursor
// until EOF, emitting one event per line (partial lines included). It is
// shared between the spool phase and every tail tick — both are "read
// forward to EOF" with the same partial-line bookkeeping.
func spoolOrTailOnce(bf *backingfile.BackingFile, pos *int64, previousPartial *bool, emit func(lineOffset int64, content string, lineBytes int, partial bool, fileBytes int64) bool) error {
	var line []byte
	lineBytes := 0
	lineOffset := *pos

	for {
		if !*previousPartial {
			line = line[:0]
			lineBytes = 0
			lineOffset = *pos
		}

		n, partial, err := bf.IncrementalRead(&line)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		lineBytes += n
		*pos += int64(n)

		content := line
		if n := len(content); n > 0 && content[n-1] == '\n' {
			content = content[:n-1]
		}
		if n := len(content); n > 0 && content[n-1] == '\r' {
			content = content[:n-1]
		}
		if !emit(lineOffset, string(content), lineBytes, partial, *pos) {
			return nil
		}

		*previousPartial = partial
	}
}

func (r *Reader) emitFileError(ctx context.Context, events chan<- Event, kind ErrorKind, reason string) error {
	select {
	case events <- Event{Kind: EventFileError, ErrorKind: kind, Reason: reason}:
	case <-ctx.Done():
	}
	return fmt.Errorf("%s", reason)
}

func removed(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}
