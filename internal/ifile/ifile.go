// Package ifile implements the Indexed File actor: it owns the line
// index (line number -> byte offset) and the exclusive Backing File
// handle, and multiplexes Reader events with client requests onto a
// single serialized event loop.
//
// The actor shape — one goroutine owning a private channel, every
// mutation serialized through it, responses handed out over capability
// channels stored at registration time — is the same shape as the
// session-owning control-mode actor and the per-session pipe-pane
// manager in the corpus: a single owner of an exclusive resource,
// reached only through its inbound channel.
package ifile

import (
	"context"
	"fmt"
	"log"

	"github.com/frank-taylor-lieder/otail/internal/backingfile"
	"github.com/frank-taylor-lieder/otail/internal/core"
	"github.com/frank-taylor-lieder/otail/internal/reader"
)

// fileLine is IF's private per-line record: the byte offset the line
// starts at, its cached byte length, and whether it is still missing its
// terminating newline.
type fileLine struct {
	offset  int64
	length  int
	partial bool
}

type clientState struct {
	resp     chan<- core.Response
	interest map[uint64]struct{}
	tailing  bool
}

// IF is the Indexed File actor. Construct with New and send requests on
// Requests(); it runs until ctx is cancelled, its request channel is
// closed, or a Backing File read fails while serving a GetLine. It keeps
// running after the Reader terminates.
type IF struct {
	path     string
	bf       *backingfile.BackingFile
	requests chan core.Request

	lines           []fileLine
	fileBytes       uint64
	previousPartial bool
	clients         map[core.ClientID]*clientState

	fatal error
}

// New opens the file's Backing File, starts a Reader against the same
// path, and launches the actor's event loop. The returned *IF is ready to
// accept requests immediately; RegisterClient calls made before the
// initial spool completes simply see file_lines=0 until the first events
// arrive.
func New(ctx context.Context, path string) (*IF, error) {
	bf, err := backingfile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ifile: %w", err)
	}

	f := &IF{
		path:     path,
		bf:       bf,
		requests: make(chan core.Request, core.ChannelBuffer),
		clients:  make(map[core.ClientID]*clientState),
	}

	rd := reader.New(path)
	events := rd.Run(ctx)

	go f.run(ctx, events)
	return f, nil
}

// Requests returns the channel clients send requests on.
func (f *IF) Requests() chan<- core.Request { return f.requests }

// run is the actor's single event loop: a non-preferential select between
// the client-request channel and the Reader's event channel.
func (f *IF) run(ctx context.Context, events <-chan reader.Event) {
	defer f.bf.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case req, ok := <-f.requests:
			if !ok {
				return
			}
			f.handleRequest(req)
			if f.fatal != nil {
				return
			}

		case ev, ok := <-events:
			if !ok {
				// Reader terminated; no further line events will arrive, but
				// IF keeps serving already-indexed lines to requests.
				events = nil
				continue
			}
			f.handleReaderEvent(ev)
		}
	}
}

func (f *IF) handleRequest(req core.Request) {
	switch {
	case req.IsRegisterClient():
		cs := &clientState{resp: req.RespChan, interest: make(map[uint64]struct{})}
		f.clients[req.ID] = cs
		f.send(cs, core.StatsResponse(f.stats()))

	case req.IsGetLine():
		cs, ok := f.clients[req.ID]
		if !ok {
			log.Printf("ifile: GetLine from unknown client %q", req.ID)
			return
		}
		f.handleGetLine(cs, req.LineNo)

	case req.IsCancelLine():
		cs, ok := f.clients[req.ID]
		if !ok {
			log.Printf("ifile: CancelLine from unknown client %q", req.ID)
			return
		}
		if _, present := cs.interest[req.LineNo]; !present {
			log.Printf("ifile: CancelLine for unregistered interest %d from %q", req.LineNo, req.ID)
			return
		}
		delete(cs.interest, req.LineNo)

	case req.IsEnableTailing():
		cs, ok := f.clients[req.ID]
		if !ok {
			log.Printf("ifile: EnableTailing from unknown client %q", req.ID)
			return
		}
		cs.tailing = true
		for ln := req.LastSeenLine; ln < uint64(len(f.lines)); ln++ {
			f.sendLine(cs, ln)
		}

	case req.IsDisableTailing():
		cs, ok := f.clients[req.ID]
		if !ok {
			log.Printf("ifile: DisableTailing from unknown client %q", req.ID)
			return
		}
		cs.tailing = false
	}
}

func (f *IF) handleGetLine(cs *clientState, lineNo uint64) {
	if lineNo >= uint64(len(f.lines)) {
		cs.interest[lineNo] = struct{}{}
		return
	}
	if !f.sendLine(cs, lineNo) {
		f.fatal = fmt.Errorf("ifile: %s: read failed serving GetLine %d", f.path, lineNo)
	}
}

// sendLine reads lineNo from the Backing File at its indexed offset and
// sends it to cs. Returns false on a Backing File read failure, which is
// fatal for the actor — a corrupt index is worse than a dropped session.
func (f *IF) sendLine(cs *clientState, lineNo uint64) bool {
	fl := f.lines[lineNo]
	content, err := f.bf.ReadLineAt(fl.offset)
	if err != nil {
		log.Printf("ifile: %s: %v", f.path, err)
		return false
	}
	delete(cs.interest, lineNo)
	f.send(cs, core.LineResponse(core.Line{LineNo: lineNo, Content: content, Partial: fl.partial}))
	return true
}

func (f *IF) handleReaderEvent(ev reader.Event) {
	switch ev.Kind {
	case reader.EventLine:
		f.applyLine(ev)

	case reader.EventTruncated:
		f.lines = f.lines[:0]
		f.fileBytes = 0
		f.previousPartial = false
		for _, cs := range f.clients {
			cs.interest = make(map[uint64]struct{})
			f.send(cs, core.TruncatedResponse())
		}

	case reader.EventFileError:
		for _, cs := range f.clients {
			cs.interest = make(map[uint64]struct{})
			f.send(cs, core.FileErrorResponse(ev.Reason))
		}
	}
}

func (f *IF) applyLine(ev reader.Event) {
	var idx uint64
	if f.previousPartial {
		idx = uint64(len(f.lines) - 1)
		f.lines[idx] = fileLine{offset: ev.Offset, length: ev.LineBytes, partial: ev.Partial}
	} else {
		idx = uint64(len(f.lines))
		f.lines = append(f.lines, fileLine{offset: ev.Offset, length: ev.LineBytes, partial: ev.Partial})
	}
	f.previousPartial = ev.Partial
	f.fileBytes = uint64(ev.FileBytes)

	stats := core.StatsResponse(f.stats())
	for _, cs := range f.clients {
		f.send(cs, stats)

		_, interested := cs.interest[idx]
		if interested || cs.tailing {
			delete(cs.interest, idx)
			f.send(cs, core.LineResponse(core.Line{LineNo: idx, Content: ev.Content, Partial: ev.Partial}))
		}
	}
}

func (f *IF) stats() core.Stats {
	n := uint64(len(f.lines))
	return core.Stats{FileLines: n, FileBytes: f.fileBytes, ViewLines: n}
}

// send delivers resp to cs without blocking the actor: a full or closed
// client channel is dropped and logged rather than stalling every other
// client, the refinement the corpus's own broadcast points (the
// conversation buffer's fan-out, the pipe-pane manager's per-subscriber
// send) already use in place of a blocking send.
func (f *IF) send(cs *clientState, resp core.Response) {
	select {
	case cs.resp <- resp:
	default:
		log.Printf("ifile: dropping response, client channel full or slow")
	}
}
