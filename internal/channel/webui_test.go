package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/stellarlinkco/mirumi/internal/config"
)

func newTestWebUI(t *testing.T) (*WebUIChannel, *httptest.Server) {
	t.Helper()
	ch, err := NewWebUIChannel(config.WebUIConfig{Enabled: true, Host: "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(ch.Handler())
	t.Cleanup(srv.Close)
	return ch, srv
}

func dialWS(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func waitClients(t *testing.T, ch *WebUIChannel, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count := 0
		ch.clients.Range(func(key, value any) bool {
			count++
			return true
		})
		if count >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d clients", n)
}

func TestNewWebUIChannel(t *testing.T) {
	ch, err := NewWebUIChannel(config.WebUIConfig{Enabled: true, Host: "127.0.0.1", Port: 18791})
	if err != nil {
		t.Fatalf("NewWebUIChannel: %v", err)
	}
	if ch.Name() != "webui" {
		t.Errorf("Name() = %q, want %q", ch.Name(), "webui")
	}
	if ch.Addr() != "127.0.0.1:18791" {
		t.Errorf("Addr() = %q before start", ch.Addr())
	}
	if _, err := NewWebUIChannel(config.WebUIConfig{Port: -1}); err == nil {
		t.Error("expected error for negative port")
	}
}

func TestWebUIChannel_StartStop(t *testing.T) {
	ch, err := NewWebUIChannel(config.WebUIConfig{Enabled: true, Host: "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if strings.HasSuffix(ch.Addr(), ":0") {
		t.Fatalf("Addr() = %q, want bound port", ch.Addr())
	}

	resp, err := http.Get("http://" + ch.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}

	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestWebUIChannel_StartAddressInUse(t *testing.T) {
	first, _ := NewWebUIChannel(config.WebUIConfig{Host: "127.0.0.1"})
	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer first.Stop()

	host, port, _ := strings.Cut(first.Addr(), ":")
	var p int
	fmt.Sscan(port, &p)
	second, _ := NewWebUIChannel(config.WebUIConfig{Host: host, Port: p})
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Error("expected listen error on a bound port")
	}
}

func TestWebUIChannel_TitleBroadcastAndReplay(t *testing.T) {
	ch, srv := newTestWebUI(t)
	ctx := context.Background()

	conn1 := dialWS(t, ctx, srv)
	conn2 := dialWS(t, ctx, srv)
	waitClients(t, ch, 2)

	if err := ch.SetTitle("Write 04:59"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	for i, conn := range []*websocket.Conn{conn1, conn2} {
		var msg titleMessage
		readJSON(t, ctx, conn, &msg)
		if msg.Type != "title" || msg.Title != "Write 04:59" {
			t.Errorf("client %d got %+v", i+1, msg)
		}
	}

	late := dialWS(t, ctx, srv)
	var replay titleMessage
	readJSON(t, ctx, late, &replay)
	if replay.Title != "Write 04:59" {
		t.Errorf("replayed title = %q", replay.Title)
	}
	if ch.LastTitle() != "Write 04:59" {
		t.Errorf("LastTitle = %q", ch.LastTitle())
	}
}

func TestWebUIChannel_SetTitleNoClients(t *testing.T) {
	ch, _ := NewWebUIChannel(config.WebUIConfig{})
	if err := ch.SetTitle("Mirumi"); err != nil {
		t.Errorf("SetTitle without clients: %v", err)
	}
}

func TestWebUIChannel_Commands(t *testing.T) {
	ch, srv := newTestWebUI(t)
	ctrl := &fakeController{reply: Reply{Remaining: 300, Label: "Write", Running: true}}
	ch.SetController(ctrl)
	ctx := context.Background()
	conn := dialWS(t, ctx, srv)

	_ = conn.Write(ctx, websocket.MessageText, []byte("not json"))
	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"id":"0"}`))
	cmd, _ := json.Marshal(Command{Type: CmdTimerStart, ID: "7", Remaining: 300, Label: "Write"})
	if err := conn.Write(ctx, websocket.MessageText, cmd); err != nil {
		t.Fatal(err)
	}

	var reply Reply
	readJSON(t, ctx, conn, &reply)
	if reply.Type != "state" || reply.ID != "7" || reply.Remaining != 300 || !reply.Running || reply.Label != "Write" {
		t.Errorf("reply = %+v", reply)
	}
	cmds := ctrl.received()
	if len(cmds) != 1 || cmds[0].Type != CmdTimerStart || cmds[0].Remaining != 300 {
		t.Errorf("controller got %+v", cmds)
	}
}

func TestWebUIChannel_CommandErrors(t *testing.T) {
	ch, srv := newTestWebUI(t)
	ctx := context.Background()
	conn := dialWS(t, ctx, srv)

	cmd, _ := json.Marshal(Command{Type: CmdTimerQuery, ID: "1"})
	_ = conn.Write(ctx, websocket.MessageText, cmd)
	var reply Reply
	readJSON(t, ctx, conn, &reply)
	if reply.Type != "error" || reply.Error == "" {
		t.Errorf("without controller reply = %+v", reply)
	}

	ch.SetController(&fakeController{err: fmt.Errorf("task not found")})
	cmd, _ = json.Marshal(Command{Type: CmdTaskStart, ID: "2", TaskID: "missing"})
	_ = conn.Write(ctx, websocket.MessageText, cmd)
	readJSON(t, ctx, conn, &reply)
	if reply.Type != "error" || reply.ID != "2" || reply.Error != "task not found" {
		t.Errorf("controller error reply = %+v", reply)
	}
}

func TestClient_Do(t *testing.T) {
	ch, err := NewWebUIChannel(config.WebUIConfig{Host: "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	ctrl := &fakeController{reply: Reply{Remaining: 42, Label: "Read"}}
	ch.SetController(ctrl)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer ch.Stop()
	_ = ch.SetTitle("Read 00:42")

	c, err := Dial(ctx, ch.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	reply, err := c.Do(ctx, Command{Type: CmdTimerStop})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if reply.Remaining != 42 || reply.Label != "Read" || reply.Running {
		t.Errorf("reply = %+v", reply)
	}

	ctrl.mu.Lock()
	ctrl.err = fmt.Errorf("invalid remaining")
	ctrl.mu.Unlock()
	if _, err := c.Do(ctx, Command{Type: CmdTimerSync, Remaining: -1}); err == nil || err.Error() != "invalid remaining" {
		t.Errorf("Do error = %v", err)
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, "127.0.0.1:1"); err == nil {
		t.Error("expected dial error")
	}
}
