package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"arena-server/internal/protocol"
)

// ---------- helpers ----------

const testAdminPassword = "correct horse"

// startTestServer spins up an httptest.Server with a Hub backed by a temp
// database. The game loop is not started; tests call hub.game.Step.
func startTestServer(t *testing.T, mutate func(*Config)) (*httptest.Server, string, *Hub) {
	t.Helper()

	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644)

	cfg := testConfig()
	cfg.Admin = adminConfig(t, testAdminPassword)
	if mutate != nil {
		mutate(&cfg)
	}

	db := openTestDB(t)
	analytics := NewAnalytics(db)
	game := newTestGame(t, cfg, analytics)
	hub := NewHub(cfg, game, db, NewAuth(db, cfg.Admin), analytics)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub, tmpDir))
	t.Cleanup(func() {
		srv.Close()
		analytics.Stop()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, hub
}

// dialWS opens a WebSocket connection and consumes the ServerInfo frame.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if out := readFrame(t, conn); out.Info == nil {
		t.Fatalf("first frame should be server info, got op %d", out.Op)
	}
	return conn
}

// readFrame reads and decodes one binary frame.
func readFrame(t *testing.T, conn *websocket.Conn) protocol.Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("expected a binary frame, got type %d", msgType)
	}
	out, err := protocol.DecodeOutbound(raw)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return out
}

// sendCommand writes one inbound command frame.
func sendCommand(t *testing.T, conn *websocket.Conn, cmd protocol.Command) {
	t.Helper()
	if err := conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeCommand(cmd)); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// syncConn sends a ping and waits for its pong, so every earlier command has
// been applied.
func syncConn(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	sendCommand(t, conn, protocol.Ping{})
	for {
		if out := readFrame(t, conn); out.Op == protocol.OpPong {
			return
		}
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// expectClosed reads until the server closes the connection.
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				t.Fatal("connection was not closed")
			}
			return
		}
	}
}

func adminToken(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": testAdminPassword})
	resp, err := http.Post(srv.URL+"/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["token"] == "" {
		t.Fatal("no token in login response")
	}
	return out["token"]
}

func adminRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, url, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ---------- websocket ----------

func TestWSServerInfoFirst(t *testing.T) {
	_, wsURL, _ := startTestServer(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	out := readFrame(t, conn)
	if out.Op != protocol.OpServerInfo || out.Info == nil {
		t.Fatalf("expected server info, got op %d", out.Op)
	}
	if out.Info.TickRate != 25 || out.Info.ArenaWidth != 4000 {
		t.Errorf("info = %+v", out.Info)
	}
}

func TestWSPingPong(t *testing.T) {
	_, wsURL, _ := startTestServer(t, nil)
	conn := dialWS(t, wsURL)
	sendCommand(t, conn, protocol.Ping{})
	if out := readFrame(t, conn); out.Op != protocol.OpPong {
		t.Errorf("expected pong, got op %d", out.Op)
	}
}

func TestWSSpawnAndUpdate(t *testing.T) {
	_, wsURL, hub := startTestServer(t, nil)
	conn := dialWS(t, wsURL)

	sendCommand(t, conn, protocol.Spawn{Name: "  Ada  "})
	sendCommand(t, conn, protocol.Input{Flags: protocol.InputRight, MouseX: 3000, MouseY: 2000})
	syncConn(t, conn)

	hub.game.Step()
	out := readFrame(t, conn)
	if out.Update == nil {
		t.Fatalf("expected an update, got op %d", out.Op)
	}
	self := out.Update.Self
	if self.Name != "Ada" {
		t.Errorf("name = %q, want Ada", self.Name)
	}
	if self.Health <= 0 || self.Health != self.MaxHealth {
		t.Errorf("health = %v/%v", self.Health, self.MaxHealth)
	}
	if self.VX <= 0 {
		t.Errorf("moving right should give positive velocity, got %v", self.VX)
	}
}

func TestWSTwoPlayersSeeEachOther(t *testing.T) {
	_, wsURL, hub := startTestServer(t, func(c *Config) {
		c.Arena.Width, c.Arena.Height = 1200, 1200
	})
	a := dialWS(t, wsURL)
	b := dialWS(t, wsURL)
	sendCommand(t, a, protocol.Spawn{Name: "A"})
	sendCommand(t, b, protocol.Spawn{Name: "B"})
	syncConn(t, a)
	syncConn(t, b)

	hub.game.Step()
	ua := readFrame(t, a).Update
	ub := readFrame(t, b).Update
	if ua == nil || ub == nil {
		t.Fatal("both players should get an update")
	}
	if len(ua.Others) != 1 || ua.Others[0].ID != ub.SelfID {
		t.Errorf("A should see B, got %+v", ua.Others)
	}
}

func TestWSBadFrameDisconnects(t *testing.T) {
	_, wsURL, hub := startTestServer(t, nil)
	conn := dialWS(t, wsURL)
	conn.WriteMessage(websocket.BinaryMessage, []byte{0x7F})
	expectClosed(t, conn)
	waitFor(t, "tank removal", func() bool { return hub.game.PlayerCount() == 0 })

	// not banned unless configured
	if hub.IsBanned("127.0.0.1") {
		t.Error("address should not be banned")
	}
	dialWS(t, wsURL)
}

func TestWSTextFrameDisconnects(t *testing.T) {
	_, wsURL, _ := startTestServer(t, nil)
	conn := dialWS(t, wsURL)
	conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"input"}`))
	expectClosed(t, conn)
}

func TestWSProtocolErrorBans(t *testing.T) {
	_, wsURL, hub := startTestServer(t, func(c *Config) { c.BanOnProtocolError = true })
	conn := dialWS(t, wsURL)
	sendCommand(t, conn, protocol.Spawn{Name: "x"})
	conn.WriteMessage(websocket.BinaryMessage, append(protocol.EncodeCommand(protocol.Ping{}), 0x00))
	expectClosed(t, conn)

	if !hub.IsBanned("127.0.0.1") {
		t.Fatal("address should be banned")
	}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("banned address should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %+v", resp)
	}
}

func TestWSServerFull(t *testing.T) {
	_, wsURL, _ := startTestServer(t, func(c *Config) { c.MaxPlayers = 1 })
	dialWS(t, wsURL)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Errorf("expected a try-again-later close, got %v", err)
	}
}

func TestDisconnectRemovesTank(t *testing.T) {
	_, wsURL, hub := startTestServer(t, nil)
	conn := dialWS(t, wsURL)
	syncConn(t, conn)
	if hub.game.PlayerCount() != 1 {
		t.Fatalf("expected 1 player, got %d", hub.game.PlayerCount())
	}
	waitFor(t, "hub registration", func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, "tank removal", func() bool { return hub.game.PlayerCount() == 0 })
	waitFor(t, "hub cleanup", func() bool { return hub.ClientCount() == 0 && hub.TotalConns() == 0 })
}

func TestConnectionLimitPerIP(t *testing.T) {
	_, wsURL, _ := startTestServer(t, func(c *Config) { c.MaxPlayers = 10 })
	for i := 0; i < maxConnsPerIP; i++ {
		syncConn(t, dialWS(t, wsURL))
	}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("connection over the per-IP limit should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %+v", resp)
	}
}

// ---------- HTTP ----------

func TestInfoEndpoint(t *testing.T) {
	srv, _, _ := startTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/info")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/msgpack" {
		t.Errorf("content type = %q", ct)
	}
	raw, _ := io.ReadAll(resp.Body)
	var info protocol.ServerInfo
	if err := msgpack.Unmarshal(raw, &info); err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	if info.ArenaWidth != 4000 || info.MaxPlayers != 4 {
		t.Errorf("info = %+v", info)
	}

	resp2, err := http.Get(srv.URL + "/info?format=json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var jinfo protocol.ServerInfo
	if err := json.NewDecoder(resp2.Body).Decode(&jinfo); err != nil {
		t.Fatalf("json: %v", err)
	}
	if jinfo != info {
		t.Errorf("json info %+v differs from msgpack info %+v", jinfo, info)
	}
}

func TestQREndpoint(t *testing.T) {
	srv, _, _ := startTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/qr.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestStaticFilesNoCache(t *testing.T) {
	srv, _, _ := startTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
}

func TestAdminLoginEndpoint(t *testing.T) {
	srv, _, _ := startTestServer(t, nil)

	resp := adminRequest(t, http.MethodPost, srv.URL+"/admin/login", "",
		map[string]string{"username": "admin", "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", resp.StatusCode)
	}
	if adminToken(t, srv) == "" {
		t.Error("expected a token")
	}
}

func TestAdminBans(t *testing.T) {
	srv, _, hub := startTestServer(t, nil)

	if resp := adminRequest(t, http.MethodGet, srv.URL+"/admin/bans", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without token status = %d, want 401", resp.StatusCode)
	}
	if resp := adminRequest(t, http.MethodGet, srv.URL+"/admin/bans", "bogus", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}

	token := adminToken(t, srv)
	hash := hub.auth.HashAddr("192.0.2.1")
	if err := hub.db.AddBan(hash, "manual"); err != nil {
		t.Fatal(err)
	}

	resp := adminRequest(t, http.MethodGet, srv.URL+"/admin/bans", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var bans []BanRow
	json.NewDecoder(resp.Body).Decode(&bans)
	if len(bans) != 1 || bans[0].AddrHash != hash || bans[0].Reason != "manual" {
		t.Errorf("bans = %+v", bans)
	}

	resp = adminRequest(t, http.MethodPost, srv.URL+"/admin/unban", token, map[string]string{"hash": hash})
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("unban status = %d, want 204", resp.StatusCode)
	}
	resp = adminRequest(t, http.MethodPost, srv.URL+"/admin/unban", token, map[string]string{"hash": hash})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second unban status = %d, want 404", resp.StatusCode)
	}
	if hub.IsBanned("192.0.2.1") {
		t.Error("address should be unbanned")
	}
}

func TestAdminStats(t *testing.T) {
	srv, _, _ := startTestServer(t, nil)
	token := adminToken(t, srv)
	resp := adminRequest(t, http.MethodGet, srv.URL+"/admin/stats", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"events", "players", "tick"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("stats missing %q", key)
		}
	}
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	srv, _, _ := startTestServer(t, func(c *Config) { c.Admin.PasswordHash = "" })
	resp := adminRequest(t, http.MethodPost, srv.URL+"/admin/login", "",
		map[string]string{"username": "admin", "password": ""})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
