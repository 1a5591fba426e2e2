// Package view implements a per-pane viewport and sparse line cache that
// sits above IF or FF. It registers once with its upstream actor and then
// drives prefetch purely by diffing viewport changes against what it
// already has cached — it never re-requests a line it holds.
package view

import (
	"github.com/frank-taylor-lieder/otail/internal/core"
)

// View is one pane's viewport + cache. It is not safe for concurrent use
// from multiple goroutines; a front end drives it from a single event
// loop, same as every other actor in this system.
type View struct {
	id       core.ClientID
	upstream chan<- core.Request
	resp     chan core.Response

	firstLine uint64
	numLines  uint64
	slots     []*core.Line // sparse: nil means not yet delivered

	current    uint64
	startPoint int
	longest    int
	tailing    bool

	stats core.Stats

	fileErr string
}

// New constructs a View and registers it with upstream (IF's or FF's
// request channel) under id. The caller owns pumping Responses() into
// HandleResponse; New does not start a goroutine of its own.
func New(id core.ClientID, upstream chan<- core.Request) *View {
	v := &View{
		id:       id,
		upstream: upstream,
		resp:     make(chan core.Response, core.ChannelBuffer),
	}
	upstream <- core.NewRegisterClient(id, v.resp)
	return v
}

// Responses returns the channel upstream responses arrive on.
func (v *View) Responses() <-chan core.Response { return v.resp }

// Stats returns the most recently cached Stats.
func (v *View) Stats() core.Stats { return v.stats }

// FileError returns the most recent file-error reason, or "" if none.
func (v *View) FileError() string { return v.fileErr }

// Current returns the cursor line.
func (v *View) Current() uint64 { return v.current }

// StartPoint returns the horizontal pan offset.
func (v *View) StartPoint() int { return v.startPoint }

// Line returns the cached content for lineNo, if present in the current
// viewport and already delivered.
func (v *View) Line(lineNo uint64) (core.Line, bool) {
	if lineNo < v.firstLine || lineNo >= v.firstLine+v.numLines {
		return core.Line{}, false
	}
	slot := v.slots[lineNo-v.firstLine]
	if slot == nil {
		return core.Line{}, false
	}
	return *slot, true
}

// Reset clears the cursor and pan, and reissues the current viewport —
// every visible line is re-requested from scratch.
func (v *View) Reset() {
	v.current = 0
	v.startPoint = 0
	v.longest = 0
	for i := range v.slots {
		v.slots[i] = nil
	}
	v.requestMissing(0, len(v.slots))
}

// SetCurrent moves the cursor. If the cursor would land outside the
// viewport, the viewport shifts minimally to keep it visible, preferring
// to scroll down; first_line never goes negative.
func (v *View) SetCurrent(lineNo uint64) {
	v.current = lineNo
	if v.numLines == 0 {
		return
	}
	if lineNo < v.firstLine {
		v.SetViewport(lineNo, v.numLines)
		return
	}
	if lineNo >= v.firstLine+v.numLines {
		v.SetViewport(lineNo-v.numLines+1, v.numLines)
	}
}

// CenterCurrentLine repositions the viewport so the cursor sits at
// roughly the middle of the pane.
func (v *View) CenterCurrentLine() {
	if v.numLines == 0 {
		return
	}
	half := v.numLines / 2
	var first uint64
	if v.current > half {
		first = v.current - half
	}
	v.SetViewport(first, v.numLines)
}

// SetHeight grows or shrinks the viewport. If the cursor remains visible
// at the existing first_line, first_line is preserved; otherwise the
// viewport shifts so the cursor becomes the last visible line.
func (v *View) SetHeight(height uint64) {
	if height == v.numLines {
		return
	}
	first := v.firstLine
	if v.current >= first+height {
		if v.current+1 >= height {
			first = v.current - height + 1
		} else {
			first = 0
		}
	}
	v.SetViewport(first, height)
}

// Pan shifts the horizontal offset by delta, clamped to
// [0, max(0, longest_line_length - display_width)].
func (v *View) Pan(delta int, displayWidth int) {
	v.setStartPoint(v.startPoint+delta, displayWidth)
}

// PanStart resets the horizontal offset to 0.
func (v *View) PanStart() { v.startPoint = 0 }

// PanEnd pans fully right, clamped to the longest cached line.
func (v *View) PanEnd(displayWidth int) {
	v.setStartPoint(v.longest, displayWidth)
}

func (v *View) setStartPoint(candidate int, displayWidth int) {
	max := v.longest - displayWidth
	if max < 0 {
		max = 0
	}
	if candidate < 0 {
		candidate = 0
	}
	if candidate > max {
		candidate = max
	}
	v.startPoint = candidate
}

// SetTail toggles live tailing against the upstream actor, keeping the
// cursor at the last known line while tailing is on.
func (v *View) SetTail(on bool) {
	v.tailing = on
	if on {
		last := uint64(0)
		if v.stats.FileLines > 0 {
			last = v.stats.FileLines - 1
		}
		v.upstream <- core.NewEnableTailing(v.id, last)
		v.SetCurrent(last)
	} else {
		v.upstream <- core.NewDisableTailing(v.id)
	}
}

// SetViewport moves the window to [newFirst, newFirst+newNumLines),
// preserving overlapping slots and requesting only the lines newly
// brought into view.
func (v *View) SetViewport(newFirst, newNumLines uint64) {
	newSlots := make([]*core.Line, newNumLines)

	oldFirst, oldLast := v.firstLine, v.firstLine+v.numLines
	newLast := newFirst + newNumLines

	overlapStart := max64(oldFirst, newFirst)
	overlapEnd := min64(oldLast, newLast)
	for ln := overlapStart; ln < overlapEnd; ln++ {
		newSlots[ln-newFirst] = v.slots[ln-oldFirst]
	}

	v.firstLine = newFirst
	v.numLines = newNumLines
	v.slots = newSlots
	v.recomputeLongest()

	for i, slot := range v.slots {
		if slot == nil {
			v.upstream <- core.NewGetLine(v.id, newFirst+uint64(i))
		}
	}
}

func (v *View) requestMissing(from, to int) {
	for i := from; i < to; i++ {
		if v.slots[i] == nil {
			v.upstream <- core.NewGetLine(v.id, v.firstLine+uint64(i))
		}
	}
}

// HandleResponse applies one upstream Response to the cache. Call this
// from the owning goroutine's select loop as responses arrive on
// Responses().
func (v *View) HandleResponse(resp core.Response) {
	switch {
	case resp.IsStats():
		v.stats = resp.Stats

	case resp.IsLine():
		v.applyLine(resp.Line)

	case resp.IsTruncated(), resp.IsClear():
		v.Reset()

	case resp.IsFileError():
		v.fileErr = resp.ErrReason
	}
}

func (v *View) applyLine(line core.Line) {
	if line.LineNo >= v.firstLine && line.LineNo < v.firstLine+v.numLines {
		l := line
		v.slots[line.LineNo-v.firstLine] = &l
		if v.tailing && line.LineNo > v.current {
			v.current = line.LineNo
		}
		if n := len(l.Content); n > v.longest {
			v.longest = n
		}
		return
	}

	if v.tailing && line.LineNo == v.firstLine+v.numLines {
		// New line arrived exactly at the tail of the viewport: shift the
		// window up by one rather than treating it as out of range.
		if v.numLines == 0 {
			return
		}
		copy(v.slots, v.slots[1:])
		l := line
		v.slots[v.numLines-1] = &l
		v.firstLine++
		v.current = line.LineNo
		if n := len(l.Content); n > v.longest {
			v.longest = n
		}
		return
	}

	// Out-of-range update for a viewport that has since moved on; ignored.
}

// recomputeLongest rescans the retained slots after a viewport resize.
// Viewport sizes are small (tens to low hundreds of lines), so a full
// rescan here is cheap enough to avoid tracking per-eviction decrements.
func (v *View) recomputeLongest() {
	longest := 0
	for _, slot := range v.slots {
		if slot != nil && len(slot.Content) > longest {
			longest = len(slot.Content)
		}
	}
	v.longest = longest
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
