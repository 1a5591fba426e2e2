package remoteview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/frank-taylor-lieder/otail/internal/core"
)

func TestIsAuthorizedNoToken(t *testing.T) {
	s := NewServer(nil, "", nil)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if !s.isAuthorized(r) {
		t.Error("a server with no configured token should authorize every request")
	}
}

func TestIsAuthorizedBearerHeader(t *testing.T) {
	s := NewServer(nil, "secret", nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer secret")
	if !s.isAuthorized(r) {
		t.Error("expected a matching Bearer token to authorize")
	}

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("Authorization", "Bearer wrong")
	if s.isAuthorized(r2) {
		t.Error("expected a mismatched Bearer token to be rejected")
	}
}

func TestIsAuthorizedQueryToken(t *testing.T) {
	s := NewServer(nil, "secret", nil)

	r := httptest.NewRequest(http.MethodGet, "/?token=secret", nil)
	if !s.isAuthorized(r) {
		t.Error("expected a matching query token to authorize")
	}

	r2 := httptest.NewRequest(http.MethodGet, "/?token=wrong", nil)
	if s.isAuthorized(r2) {
		t.Error("expected a mismatched query token to be rejected")
	}
}

func TestIsAuthorizedMissingToken(t *testing.T) {
	s := NewServer(nil, "secret", nil)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if s.isAuthorized(r) {
		t.Error("expected a request with no token at all to be rejected")
	}
}

func TestTokensEqualRejectsEmpty(t *testing.T) {
	if tokensEqual("", "") {
		t.Error("two empty tokens should never be considered equal")
	}
	if tokensEqual("a", "") || tokensEqual("", "a") {
		t.Error("an empty side should never match a non-empty side")
	}
}

func TestFromWireRequestKinds(t *testing.T) {
	cases := []struct {
		wr       wireRequest
		wantKind string
	}{
		{wireRequest{Kind: "get_line", LineNo: 7}, "get_line"},
		{wireRequest{Kind: "cancel_line", LineNo: 7}, "cancel_line"},
		{wireRequest{Kind: "enable_tailing", LastSeenLine: 3}, "enable_tailing"},
		{wireRequest{Kind: "disable_tailing"}, "disable_tailing"},
	}
	for _, c := range cases {
		req, ok := fromWireRequest("client-1", c.wr)
		if !ok {
			t.Errorf("fromWireRequest(%q) reported unknown kind", c.wantKind)
			continue
		}
		switch c.wantKind {
		case "get_line":
			if !req.IsGetLine() || req.LineNo != 7 {
				t.Errorf("got %+v, want a GetLine(7) request", req)
			}
		case "cancel_line":
			if !req.IsCancelLine() || req.LineNo != 7 {
				t.Errorf("got %+v, want a CancelLine(7) request", req)
			}
		case "enable_tailing":
			if !req.IsEnableTailing() || req.LastSeenLine != 3 {
				t.Errorf("got %+v, want an EnableTailing(3) request", req)
			}
		case "disable_tailing":
			if !req.IsDisableTailing() {
				t.Errorf("got %+v, want a DisableTailing request", req)
			}
		}
	}

	if _, ok := fromWireRequest("client-1", wireRequest{Kind: "bogus"}); ok {
		t.Error("expected an unrecognized kind to report ok=false")
	}
}

func TestToWireResponseKinds(t *testing.T) {
	if wr := toWireResponse(core.StatsResponse(core.Stats{FileLines: 3})); wr.Kind != "stats" || wr.Stats == nil || wr.Stats.FileLines != 3 {
		t.Errorf("got %+v, want a stats wire response with file_lines=3", wr)
	}
	if wr := toWireResponse(core.LineResponse(core.Line{LineNo: 2, Content: "x"})); wr.Kind != "line" || wr.Line == nil || wr.Line.Content != "x" {
		t.Errorf("got %+v, want a line wire response", wr)
	}
	if wr := toWireResponse(core.TruncatedResponse()); wr.Kind != "truncated" {
		t.Errorf("got %+v, want kind=truncated", wr)
	}
	if wr := toWireResponse(core.ClearResponse()); wr.Kind != "clear" {
		t.Errorf("got %+v, want kind=clear", wr)
	}
	if wr := toWireResponse(core.FileErrorResponse("gone")); wr.Kind != "file_error" || wr.ErrReason != "gone" {
		t.Errorf("got %+v, want a file_error wire response reason=gone", wr)
	}
}

func TestNewClientIDsAreUnique(t *testing.T) {
	a := newClientID()
	b := newClientID()
	if a == b {
		t.Errorf("expected distinct client ids, got %q twice", a)
	}
	if !strings.HasPrefix(a, "remote-") || !strings.HasPrefix(b, "remote-") {
		t.Errorf("expected remote- prefixed ids, got %q and %q", a, b)
	}
}

// TestServeHTTPRoundTrip drives a Server end to end over a real WebSocket:
// a client connects, sends a get_line request, and the upstream's
// RegisterClient/GetLine requests are observed and answered by hand.
func TestServeHTTPRoundTrip(t *testing.T) {
	upstream := make(chan core.Request, core.ChannelBuffer)
	srv := NewServer(upstream, "", nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	reg := <-upstream
	if !reg.IsRegisterClient() {
		t.Fatalf("got %+v, want RegisterClient as the first upstream message", reg)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"kind":"get_line","line_no":5}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	req := <-upstream
	if !req.IsGetLine() || req.LineNo != 5 {
		t.Fatalf("got %+v, want GetLine(5)", req)
	}

	reg.RespChan <- core.LineResponse(core.Line{LineNo: 5, Content: "hello"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"hello"`) {
		t.Errorf("got %s, want it to contain the line content", data)
	}
}

func TestServeHTTPRejectsUnauthorized(t *testing.T) {
	upstream := make(chan core.Request, core.ChannelBuffer)
	srv := NewServer(upstream, "secret", nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "?token=" + url.QueryEscape("wrong"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
