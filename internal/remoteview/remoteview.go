// Package remoteview is an optional, off-by-default extra: it exposes
// the IF/FF client protocol over a WebSocket as JSON, so a remote
// front end (or a second terminal) can watch the same file without
// running its own Reader/IF. It is not part of the core; the core never
// imports it.
//
// The connection lifecycle — a per-client goroutine pair (readPump,
// writePump) talking over a best-effort send queue, a critical queue for
// protocol messages that must not be starved by ordinary traffic, bearer
// or query-string token auth before the upgrade — is carried over from
// the corpus's own WebSocket bridge for streaming conversation events,
// adapted here to forward IF/FF Requests/Responses instead of
// conversation events.
package remoteview

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/frank-taylor-lieder/otail/internal/core"
)

// Server upgrades HTTP requests to WebSocket connections and bridges
// each one to a single upstream actor's request channel (IF's or FF's).
type Server struct {
	upstream       chan<- core.Request
	token          string
	originPatterns []string
}

// NewServer builds a Server bridging to upstream. token, if non-empty, is
// required as either a "Bearer <token>" Authorization header or a
// "token" query parameter. originPatterns is passed straight through to
// websocket.AcceptOptions.
func NewServer(upstream chan<- core.Request, token string, originPatterns []string) *Server {
	return &Server{upstream: upstream, token: token, originPatterns: originPatterns}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.isAuthorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		log.Printf("remoteview: accept: %v", err)
		return
	}

	c := newClient(conn, s.upstream)
	c.run()
}

func (s *Server) isAuthorized(r *http.Request) bool {
	token := strings.TrimSpace(s.token)
	if token == "" {
		return true
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if bearer, ok := strings.CutPrefix(auth, "Bearer "); ok && tokensEqual(token, strings.TrimSpace(bearer)) {
		return true
	}
	return tokensEqual(token, strings.TrimSpace(r.URL.Query().Get("token")))
}

func tokensEqual(expected, actual string) bool {
	if expected == "" || actual == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}

// wireRequest is the JSON shape a remote client sends.
type wireRequest struct {
	Kind         string `json:"kind"`
	LineNo       uint64 `json:"line_no,omitempty"`
	LastSeenLine uint64 `json:"last_seen_line,omitempty"`
}

// wireResponse is the JSON shape pushed back to a remote client.
type wireResponse struct {
	Kind      string      `json:"kind"`
	Stats     *core.Stats `json:"stats,omitempty"`
	Line      *core.Line  `json:"line,omitempty"`
	ErrReason string      `json:"err_reason,omitempty"`
}

type outMsg struct {
	data []byte
}

type client struct {
	conn   *websocket.Conn
	id     core.ClientID
	upstream chan<- core.Request
	resp   chan core.Response

	send         chan outMsg
	sendCritical chan outMsg
	ctx          context.Context
	cancel       context.CancelFunc
}

func newClient(conn *websocket.Conn, upstream chan<- core.Request) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		conn:         conn,
		id:           core.ClientID(newClientID()),
		upstream:     upstream,
		resp:         make(chan core.Response, core.ChannelBuffer),
		send:         make(chan outMsg, 256),
		sendCritical: make(chan outMsg, 128),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *client) run() {
	c.upstream <- core.NewRegisterClient(c.id, c.resp)
	go c.pumpUpstream()
	go c.writePump()
	c.readPump()
}

func (c *client) pumpUpstream() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case resp, ok := <-c.resp:
			if !ok {
				return
			}
			c.sendJSON(toWireResponse(resp))
		}
	}
}

func (c *client) readPump() {
	defer c.cancel()
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var wr wireRequest
		if err := json.Unmarshal(data, &wr); err != nil {
			log.Printf("remoteview: malformed request: %v", err)
			continue
		}
		req, ok := fromWireRequest(c.id, wr)
		if !ok {
			log.Printf("remoteview: unknown request kind %q", wr.Kind)
			continue
		}
		c.upstream <- req
	}
}

func (c *client) writePump() {
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "") }()

	writeOut := func(msg outMsg) bool {
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, msg.data)
		cancel()
		return err == nil
	}

	for {
		select {
		case msg, ok := <-c.sendCritical:
			if !ok || !writeOut(msg) {
				return
			}
			continue
		default:
		}

		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.sendCritical:
			if !ok || !writeOut(msg) {
				return
			}
		case msg, ok := <-c.send:
			if !ok || !writeOut(msg) {
				return
			}
		}
	}
}

func (c *client) sendJSON(v wireResponse) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("remoteview: marshal: %v", err)
		return
	}
	queue := c.send
	if v.Kind == "truncated" || v.Kind == "clear" || v.Kind == "file_error" {
		queue = c.sendCritical
	}
	select {
	case queue <- outMsg{data: data}:
	default:
		log.Printf("remoteview: dropping %s message for slow client", v.Kind)
	}
}

func toWireResponse(resp core.Response) wireResponse {
	switch {
	case resp.IsStats():
		s := resp.Stats
		return wireResponse{Kind: "stats", Stats: &s}
	case resp.IsLine():
		l := resp.Line
		return wireResponse{Kind: "line", Line: &l}
	case resp.IsTruncated():
		return wireResponse{Kind: "truncated"}
	case resp.IsClear():
		return wireResponse{Kind: "clear"}
	case resp.IsFileError():
		return wireResponse{Kind: "file_error", ErrReason: resp.ErrReason}
	default:
		return wireResponse{Kind: "unknown"}
	}
}

func fromWireRequest(id core.ClientID, wr wireRequest) (core.Request, bool) {
	switch wr.Kind {
	case "get_line":
		return core.NewGetLine(id, wr.LineNo), true
	case "cancel_line":
		return core.NewCancelLine(id, wr.LineNo), true
	case "enable_tailing":
		return core.NewEnableTailing(id, wr.LastSeenLine), true
	case "disable_tailing":
		return core.NewDisableTailing(id), true
	default:
		return core.Request{}, false
	}
}

var clientSeq atomic.Uint64

func newClientID() string {
	return "remote-" + strconv.FormatUint(clientSeq.Add(1), 10)
}
