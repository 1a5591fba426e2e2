// Package backingfile implements the seekable line reader over the raw
// file on disk. It is the one place in the system that touches the file
// with byte offsets; everything above it (IF, Reader) deals in line
// numbers and content.
package backingfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// BackingFile is a forward-only line reader with random-access seeking:
// one open *os.File, one reusable line buffer, offsets are absolute file
// positions.
type BackingFile struct {
	path string
	f    *os.File
	br   *bufio.Reader
	pos  int64 // current read position, set by Seek and advanced by IncrementalRead
}

// Open opens path for reading, returning a wrapped error if the file
// cannot be opened.
func Open(path string) (*BackingFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backingfile: open %s: %w", path, err)
	}
	return &BackingFile{
		path: path,
		f:    f,
		br:   bufio.NewReader(f),
	}, nil
}

// Close releases the underlying file handle.
func (bf *BackingFile) Close() error {
	return bf.f.Close()
}

// Path returns the path this BackingFile was opened with.
func (bf *BackingFile) Path() string { return bf.path }

// ReadLineAt seeks to offset, reads up to and including the next newline
// (or EOF), and returns the decoded text with trailing "\n" and an
// optional preceding "\r" stripped. Tabs are preserved — substitution for
// display is a view-layer concern.
func (bf *BackingFile) ReadLineAt(offset int64) (string, error) {
	if _, err := bf.f.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("backingfile: seek %s: %w", bf.path, err)
	}
	bf.br.Reset(bf.f)

	line, err := bf.br.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("backingfile: read %s: %w", bf.path, err)
	}
	return trimLineEnd(line), nil
}

// Seek repositions the forward-only cursor used by IncrementalRead.
func (bf *BackingFile) Seek(offset int64) error {
	if _, err := bf.f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("backingfile: seek %s: %w", bf.path, err)
	}
	bf.br.Reset(bf.f)
	bf.pos = offset
	return nil
}

// IncrementalRead appends bytes up to the next newline or EOF into buf,
// starting from the current cursor. It returns the number of bytes
// consumed from the file and whether the read is partial (no terminating
// newline seen — i.e. the tail of the file, not yet complete). Used by
// Reader while tailing; it never reads past the current EOF.
func (bf *BackingFile) IncrementalRead(buf *[]byte) (bytesRead int, partial bool, err error) {
	chunk, readErr := bf.br.ReadBytes('\n')
	if len(chunk) > 0 {
		*buf = append(*buf, chunk...)
		bf.pos += int64(len(chunk))
	}

	if readErr == io.EOF {
		return len(chunk), len(chunk) > 0, nil
	}
	if readErr != nil {
		return len(chunk), false, fmt.Errorf("backingfile: incremental read %s: %w", bf.path, readErr)
	}
	return len(chunk), false, nil
}

// trimLineEnd strips a trailing "\n" and an optional preceding "\r".
func trimLineEnd(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
