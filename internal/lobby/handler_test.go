package lobby

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mozzwald/fujinet-midimaze-connect/internal/config"
)

func testHandler() (*Handler, config.Config) {
	cfg := config.Config{
		HostName:          "127.0.0.1",
		LobbyPort:         0,
		GamePortMin:       20300,
		GamePortMax:       20320,
		MaxGames:          2,
		MaxPlayersDefault: 4,
		JoinTimeoutSec:    5,
		DropTimeoutSec:    2,
		IdleTimeoutSec:    5,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := NewCoordinator(cfg, logger)
	return NewHandler(coord, cfg, logger), cfg
}

func newTestServer(h *Handler) *httptest.Server {
	mux := http.NewServeMux()
	h.Routes(mux)
	return httptest.NewServer(mux)
}

func TestHandlerHelloAndList(t *testing.T) {
	h, _ := testHandler()
	srv := newTestServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/hello?name=HOST")
	if err != nil {
		t.Fatalf("GET /hello: %v", err)
	}
	defer resp.Body.Close()

	var hello helloResponse
	if err := json.NewDecoder(resp.Body).Decode(&hello); err != nil {
		t.Fatalf("decode /hello: %v", err)
	}
	if !hello.OK || hello.ClientID == "" {
		t.Fatalf("hello response = %+v", hello)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	if resp.Header.Get("Content-Length") == "" {
		t.Fatalf("Content-Length header missing")
	}

	listResp, err := http.Get(srv.URL + "/list?client_id=" + hello.ClientID)
	if err != nil {
		t.Fatalf("GET /list: %v", err)
	}
	defer listResp.Body.Close()
	var list listResponse
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode /list: %v", err)
	}
	if !list.OK || len(list.Games) != 0 {
		t.Fatalf("list response = %+v, want no games yet", list)
	}
}

func TestHandlerCreateJoinFlow(t *testing.T) {
	h, _ := testHandler()
	srv := newTestServer(h)
	defer srv.Close()

	host := mustHello(t, srv.URL, "HOST")
	guest := mustHello(t, srv.URL, "GUEST")

	createResp, err := http.Get(fmt.Sprintf("%s/create?client_id=%s&name=Arena&max_players=2", srv.URL, host))
	if err != nil {
		t.Fatalf("GET /create: %v", err)
	}
	defer createResp.Body.Close()
	var created createResponse
	if err := json.NewDecoder(createResp.Body).Decode(&created); err != nil {
		t.Fatalf("decode /create: %v", err)
	}
	if !created.OK || created.GameID == "" || created.Status != "waiting" || created.Transport != "tcp" {
		t.Fatalf("create response = %+v", created)
	}

	listResp, _ := http.Get(srv.URL + "/list?client_id=" + host)
	defer listResp.Body.Close()
	var list listResponse
	json.NewDecoder(listResp.Body).Decode(&list)
	if len(list.Games) != 1 || list.Games[0].ID != created.GameID || list.Games[0].Active {
		t.Fatalf("list after create = %+v", list)
	}

	joinResp, err := http.Get(fmt.Sprintf("%s/join?client_id=%s&game_id=%s", srv.URL, guest, created.GameID))
	if err != nil {
		t.Fatalf("GET /join: %v", err)
	}
	defer joinResp.Body.Close()
	var join joinResponse
	if err := json.NewDecoder(joinResp.Body).Decode(&join); err != nil {
		t.Fatalf("decode /join: %v", err)
	}
	if !join.OK || join.Status != "waiting" {
		t.Fatalf("join response = %+v", join)
	}

	// The game just filled and activated; it stays listed, now flagged
	// active rather than joinable.
	var list2 listResponse
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		listResp2, _ := http.Get(srv.URL + "/list?client_id=" + host)
		json.NewDecoder(listResp2.Body).Decode(&list2)
		listResp2.Body.Close()
		if len(list2.Games) == 1 && list2.Games[0].Active {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(list2.Games) != 1 || !list2.Games[0].Active {
		t.Fatalf("list after activation = %+v, want one active game", list2)
	}
}

func TestHandlerUnknownClientErrors(t *testing.T) {
	h, _ := testHandler()
	srv := newTestServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping?client_id=ghost")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	defer resp.Body.Close()

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.OK || errResp.Error != "bad_client" {
		t.Fatalf("ping error response = %+v", errResp)
	}
}

// TestHandlerNonGETClosesWithoutResponse exercises the raw-socket
// contract directly: a non-GET request must see the connection closed
// with no HTTP response at all, not a 405 status line.
func TestHandlerNonGETClosesWithoutResponse(t *testing.T) {
	h, _ := testHandler()
	srv := newTestServer(h)
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("POST /hello?name=X HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(conn)
	b, err := reader.ReadByte()
	if err == nil {
		t.Fatalf("expected connection to close with no bytes, got byte %q", b)
	} else if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func mustHello(t *testing.T, baseURL, name string) string {
	t.Helper()
	resp, err := http.Get(baseURL + "/hello?name=" + name)
	if err != nil {
		t.Fatalf("GET /hello: %v", err)
	}
	defer resp.Body.Close()
	var hello helloResponse
	if err := json.NewDecoder(resp.Body).Decode(&hello); err != nil {
		t.Fatalf("decode /hello: %v", err)
	}
	return hello.ClientID
}
