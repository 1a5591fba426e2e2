// Package ffile implements the Filtered File actor: it sits downstream of
// an Indexed File, mirrors its client protocol, but numbers lines by
// match index rather than original line number. It owns no file handle
// of its own — every line it ever sees arrives as a GetLine response from
// IF, which it itself issues as a client of IF.
package ffile

import (
	"context"
	"log"

	"github.com/frank-taylor-lieder/otail/internal/core"
	"github.com/frank-taylor-lieder/otail/internal/filterspec"
)

// spoolingBatchSize bounds how many outstanding GetLine requests FF keeps
// in flight against IF at once, so the spool keeps the pipeline full
// without monopolizing IF.
const spoolingBatchSize = 10

type clientState struct {
	resp     chan<- core.Response
	interest map[uint64]struct{}
	tailing  bool
}

// filterState holds the live match index for an installed filter.
type filterState struct {
	spec             filterspec.Spec
	matches          []uint64 // match number -> original line number
	lineToMatch      map[uint64]uint64
	nextLineExpected uint64
	nextLineToRequest uint64
}

// setFilterMsg is FF's control request, delivered on the same inbound
// channel as client requests so it is serialized with everything else.
type setFilterMsg struct {
	spec    *filterspec.Spec
	errChan chan<- error
}

// FF is the Filtered File actor.
type FF struct {
	requests  chan core.Request
	setFilter chan setFilterMsg

	ifRequests chan<- core.Request
	ifResp     chan core.Response
	ifClientID core.ClientID

	state   *filterState
	clients map[core.ClientID]*clientState
}

// New creates an FF downstream of ifRequests (IF's request channel). It
// registers itself as a client of IF under ifClientID before returning.
func New(ctx context.Context, ifRequests chan<- core.Request, ifClientID core.ClientID) *FF {
	f := &FF{
		requests:   make(chan core.Request, core.ChannelBuffer),
		setFilter:  make(chan setFilterMsg),
		ifRequests: ifRequests,
		ifResp:     make(chan core.Response, core.ChannelBuffer),
		ifClientID: ifClientID,
		clients:    make(map[core.ClientID]*clientState),
	}

	ifRequests <- core.NewRegisterClient(ifClientID, f.ifResp)

	go f.run(ctx)
	return f
}

// Requests returns the channel clients send requests on.
func (f *FF) Requests() chan<- core.Request { return f.requests }

// SetFilter installs, replaces (spec != nil), or clears (spec == nil) the
// filter and blocks until the actor has processed it. Regex compilation
// happens earlier, in filterspec.New, so a spec passed here is already
// valid; the acknowledgement channel just gives a front end a
// synchronous point to wait on.
func (f *FF) SetFilter(ctx context.Context, spec *filterspec.Spec) error {
	errCh := make(chan error, 1)
	select {
	case f.setFilter <- setFilterMsg{spec: spec, errChan: errCh}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FF) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case req, ok := <-f.requests:
			if !ok {
				return
			}
			f.handleClientRequest(req)

		case msg := <-f.setFilter:
			f.handleSetFilter(msg)

		case resp, ok := <-f.ifResp:
			if !ok {
				return
			}
			f.handleIFResponse(resp)
		}
	}
}

func (f *FF) handleClientRequest(req core.Request) {
	switch {
	case req.IsRegisterClient():
		cs := &clientState{resp: req.RespChan, interest: make(map[uint64]struct{})}
		f.clients[req.ID] = cs
		f.send(cs, core.StatsResponse(f.stats()))

	case req.IsGetLine():
		cs, ok := f.clients[req.ID]
		if !ok {
			log.Printf("ffile: GetLine from unknown client %q", req.ID)
			return
		}
		f.handleGetLine(cs, req.LineNo)

	case req.IsCancelLine():
		cs, ok := f.clients[req.ID]
		if !ok {
			log.Printf("ffile: CancelLine from unknown client %q", req.ID)
			return
		}
		if _, present := cs.interest[req.LineNo]; !present {
			log.Printf("ffile: CancelLine for unregistered interest %d from %q", req.LineNo, req.ID)
			return
		}
		delete(cs.interest, req.LineNo)

	case req.IsEnableTailing():
		cs, ok := f.clients[req.ID]
		if !ok {
			log.Printf("ffile: EnableTailing from unknown client %q", req.ID)
			return
		}
		cs.tailing = true
		if f.state == nil {
			return
		}
		for matchNo := req.LastSeenLine; matchNo < uint64(len(f.state.matches)); matchNo++ {
			f.requestMatch(matchNo)
		}

	case req.IsDisableTailing():
		cs, ok := f.clients[req.ID]
		if !ok {
			log.Printf("ffile: DisableTailing from unknown client %q", req.ID)
			return
		}
		cs.tailing = false
	}
}

func (f *FF) handleGetLine(cs *clientState, matchNo uint64) {
	if f.state == nil || matchNo >= uint64(len(f.state.matches)) {
		cs.interest[matchNo] = struct{}{}
		return
	}
	f.requestMatch(matchNo)
}

// requestMatch asks IF for the original line behind matchNo. The line
// content is not cached in FF, so every fetch (spooled or on-demand)
// round-trips through IF; the reverse-lookup map is what lets FF tell the
// two kinds of response apart when they come back, and fans the result
// out to every interested/tailing client in handleIFResponse.
func (f *FF) requestMatch(matchNo uint64) {
	lineNo := f.state.matches[matchNo]
	f.state.lineToMatch[lineNo] = matchNo
	f.ifRequests <- core.NewGetLine(f.ifClientID, lineNo)
}

func (f *FF) handleSetFilter(msg setFilterMsg) {
	defer close(msg.errChan)

	if msg.spec == nil {
		if f.state == nil {
			return // absent -> still no filter: no-op
		}
		f.state = nil
		f.broadcastClear()
		return
	}

	if f.state != nil && f.state.spec.Equal(*msg.spec) {
		return // equal to installed: no-op
	}

	f.state = &filterState{
		spec:        *msg.spec,
		lineToMatch: make(map[uint64]uint64),
	}
	f.broadcastClear()
	f.startSpooling()
}

func (f *FF) broadcastClear() {
	for _, cs := range f.clients {
		cs.interest = make(map[uint64]struct{})
		f.send(cs, core.ClearResponse())
	}
}

func (f *FF) startSpooling() {
	for i := 0; i < spoolingBatchSize; i++ {
		f.issueNextSpoolRequest()
	}
}

func (f *FF) issueNextSpoolRequest() {
	lineNo := f.state.nextLineToRequest
	f.state.nextLineToRequest++
	f.ifRequests <- core.NewGetLine(f.ifClientID, lineNo)
}

func (f *FF) handleIFResponse(resp core.Response) {
	switch {
	case resp.IsLine():
		f.handleIFLine(resp.Line)
	case resp.IsTruncated():
		f.handleIFTruncated()
	case resp.IsFileError():
		for _, cs := range f.clients {
			cs.interest = make(map[uint64]struct{})
			f.send(cs, core.FileErrorResponse(resp.ErrReason))
		}
	}
	// IF's Stats responses to FF-as-client are not forwarded: FF computes
	// its own Stats from the match index, per the shared core.Stats shape.
}

func (f *FF) handleIFLine(line core.Line) {
	if f.state == nil {
		return
	}

	if line.LineNo < f.state.nextLineExpected {
		f.resolveReverseLookup(line)
		return
	}

	if line.LineNo != f.state.nextLineExpected {
		log.Printf("ffile: out-of-order spool response: got line %d, expected %d", line.LineNo, f.state.nextLineExpected)
	}
	f.state.nextLineExpected = line.LineNo + 1

	if f.state.spec.Matches(line.Content) {
		matchNo := uint64(len(f.state.matches))
		f.state.matches = append(f.state.matches, line.LineNo)

		stats := core.StatsResponse(f.stats())
		for _, cs := range f.clients {
			f.send(cs, stats)

			_, interested := cs.interest[matchNo]
			if interested || cs.tailing {
				delete(cs.interest, matchNo)
				f.send(cs, core.LineResponse(core.Line{LineNo: matchNo, Content: line.Content, Partial: line.Partial}))
			}
		}
	}

	f.issueNextSpoolRequest()
}

// resolveReverseLookup forwards a line IF was asked to resolve on behalf
// of a client's GetLine(matchNo) (or a tailing/interest fetch issued from
// handleIFLine above) to every client waiting on that match.
func (f *FF) resolveReverseLookup(line core.Line) {
	matchNo, ok := f.state.lineToMatch[line.LineNo]
	if !ok {
		return
	}
	delete(f.state.lineToMatch, line.LineNo)

	for _, cs := range f.clients {
		_, interested := cs.interest[matchNo]
		if interested || cs.tailing {
			delete(cs.interest, matchNo)
			f.send(cs, core.LineResponse(core.Line{LineNo: matchNo, Content: line.Content, Partial: line.Partial}))
		}
	}
}

func (f *FF) handleIFTruncated() {
	if f.state == nil {
		for _, cs := range f.clients {
			f.send(cs, core.TruncatedResponse())
		}
		return
	}

	spec := f.state.spec
	f.state = &filterState{spec: spec, lineToMatch: make(map[uint64]uint64)}

	for _, cs := range f.clients {
		cs.interest = make(map[uint64]struct{})
		f.send(cs, core.TruncatedResponse())
	}
	f.startSpooling()
}

func (f *FF) stats() core.Stats {
	var n uint64
	if f.state != nil {
		n = uint64(len(f.state.matches))
	}
	return core.Stats{FileLines: n, FileBytes: 0, ViewLines: n}
}

func (f *FF) send(cs *clientState, resp core.Response) {
	select {
	case cs.resp <- resp:
	default:
		log.Printf("ffile: dropping response, client channel full or slow")
	}
}
