// Package core holds the wire types shared by the indexed-file and
// filtered-file actors and the views that talk to them. Keeping these in
// one place means a View can be written against either actor without
// caring which one is on the other end of the channel.
package core

// ClientID identifies a registered client (a View, or FF acting as a
// client of IF) on an actor's request channel.
type ClientID string

// ChannelBuffer is the recommended bounded-MPSC capacity for every actor
// inbox and client response channel in the system.
const ChannelBuffer = 1000

// Stats is the line/byte summary an actor reports to its clients. Both IF
// and FF populate ViewLines so a View can paginate without knowing which
// actor it is subscribed to: IF sets ViewLines equal to FileLines, FF sets
// it equal to its current match count.
type Stats struct {
	FileLines uint64
	FileBytes uint64
	ViewLines uint64
}

// Line is delivered for a specific line number (IF) or match number (FF).
type Line struct {
	LineNo  uint64
	Content string
	Partial bool
}

// Request is the request-side protocol shared by IF and FF. LineNo means
// "original line number" for IF and "match number" for FF.
type Request struct {
	Kind universalKind

	// RegisterClient
	ID       ClientID
	RespChan chan<- Response

	// GetLine / CancelLine / EnableTailing
	LineNo       uint64
	LastSeenLine uint64
}

type universalKind int

const (
	KindRegisterClient universalKind = iota
	KindGetLine
	KindCancelLine
	KindEnableTailing
	KindDisableTailing
)

// NewRegisterClient builds a RegisterClient request.
func NewRegisterClient(id ClientID, resp chan<- Response) Request {
	return Request{Kind: KindRegisterClient, ID: id, RespChan: resp}
}

// NewGetLine builds a GetLine request.
func NewGetLine(id ClientID, lineNo uint64) Request {
	return Request{Kind: KindGetLine, ID: id, LineNo: lineNo}
}

// NewCancelLine builds a CancelLine request.
func NewCancelLine(id ClientID, lineNo uint64) Request {
	return Request{Kind: KindCancelLine, ID: id, LineNo: lineNo}
}

// NewEnableTailing builds an EnableTailing request.
func NewEnableTailing(id ClientID, lastSeenLine uint64) Request {
	return Request{Kind: KindEnableTailing, ID: id, LastSeenLine: lastSeenLine}
}

// NewDisableTailing builds a DisableTailing request.
func NewDisableTailing(id ClientID) Request {
	return Request{Kind: KindDisableTailing, ID: id}
}

func (r Request) IsRegisterClient() bool  { return r.Kind == KindRegisterClient }
func (r Request) IsGetLine() bool         { return r.Kind == KindGetLine }
func (r Request) IsCancelLine() bool      { return r.Kind == KindCancelLine }
func (r Request) IsEnableTailing() bool   { return r.Kind == KindEnableTailing }
func (r Request) IsDisableTailing() bool  { return r.Kind == KindDisableTailing }

// Response is the response/event side of the protocol: Stats and Line
// updates, plus the Truncated/Clear/FileError lifecycle events.
type Response struct {
	Kind      responseKind
	Stats     Stats
	Line      Line
	ErrReason string
}

type responseKind int

const (
	RespStats responseKind = iota
	RespLine
	RespTruncated
	RespClear
	RespFileError
)

func StatsResponse(s Stats) Response { return Response{Kind: RespStats, Stats: s} }
func LineResponse(l Line) Response   { return Response{Kind: RespLine, Line: l} }
func TruncatedResponse() Response    { return Response{Kind: RespTruncated} }
func ClearResponse() Response        { return Response{Kind: RespClear} }
func FileErrorResponse(reason string) Response {
	return Response{Kind: RespFileError, ErrReason: reason}
}

func (r Response) IsStats() bool     { return r.Kind == RespStats }
func (r Response) IsLine() bool      { return r.Kind == RespLine }
func (r Response) IsTruncated() bool { return r.Kind == RespTruncated }
func (r Response) IsClear() bool     { return r.Kind == RespClear }
func (r Response) IsFileError() bool { return r.Kind == RespFileError }
