package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/stellarlinkco/mirumi/internal/config"
)

const webUIChannelName = "webui"

type titleMessage struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

// WebUIChannel is the tray display. Every title is broadcast to connected
// clients, the last one is replayed on connect, and clients may send
// Commands which are answered with a Reply.
type WebUIChannel struct {
	BaseChannel
	addr     string
	server   *http.Server
	listener net.Listener
	clients  sync.Map
	nextID   atomic.Int64

	mu         sync.RWMutex
	controller Controller
	lastTitle  string
}

func NewWebUIChannel(cfg config.WebUIConfig) (*WebUIChannel, error) {
	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid webui port %d", cfg.Port)
	}
	return &WebUIChannel{
		BaseChannel: NewBaseChannel(webUIChannelName, nil),
		addr:        cfg.Addr(),
	}, nil
}

// SetController wires the command handler; nil rejects commands.
func (w *WebUIChannel) SetController(c Controller) {
	w.mu.Lock()
	w.controller = c
	w.mu.Unlock()
}

// Handler serves /ws and /healthz.
func (w *WebUIChannel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleWS)
	mux.HandleFunc("/healthz", func(wr http.ResponseWriter, r *http.Request) {
		wr.WriteHeader(http.StatusOK)
		_, _ = wr.Write([]byte("ok"))
	})
	return mux
}

// Start binds the listener before returning so address errors surface here.
func (w *WebUIChannel) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("webui listen %s: %w", w.addr, err)
	}
	w.listener = ln
	w.server = &http.Server{
		Handler:     w.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Printf("[webui] listening on %s", ln.Addr())
		if err := w.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[webui] server error: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address once started, else the configured one.
func (w *WebUIChannel) Addr() string {
	if w.listener != nil {
		return w.listener.Addr().String()
	}
	return w.addr
}

// SetTitle broadcasts title to every client.
func (w *WebUIChannel) SetTitle(title string) error {
	w.mu.Lock()
	w.lastTitle = title
	w.mu.Unlock()

	data, err := json.Marshal(titleMessage{Type: msgTitle, Title: title})
	if err != nil {
		return err
	}
	var errs []error
	w.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		if err := write(c.conn, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.id, err))
		}
		return true
	})
	return errors.Join(errs...)
}

// LastTitle is the most recent title pushed.
func (w *WebUIChannel) LastTitle() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastTitle
}

func (w *WebUIChannel) handleWS(wr http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(wr, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[webui] websocket accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("webui-%d", w.nextID.Add(1))
	client := &wsClient{conn: conn, id: clientID}
	w.clients.Store(clientID, client)
	log.Printf("[webui] client connected: %s", clientID)

	defer func() {
		w.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[webui] client disconnected: %s", clientID)
	}()

	if title := w.LastTitle(); title != "" {
		data, _ := json.Marshal(titleMessage{Type: msgTitle, Title: title})
		_ = write(conn, data)
	}

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			continue
		}

		reply := w.dispatch(r.Context(), cmd)
		out, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		if err := write(conn, out); err != nil {
			log.Printf("[webui] reply to %s failed: %v", clientID, err)
			return
		}
	}
}

func (w *WebUIChannel) dispatch(ctx context.Context, cmd Command) Reply {
	w.mu.RLock()
	ctrl := w.controller
	w.mu.RUnlock()
	if ctrl == nil {
		return Reply{Type: replyError, ID: cmd.ID, Error: "no controller attached"}
	}
	reply, err := ctrl.HandleCommand(ctx, cmd)
	if err != nil {
		return Reply{Type: replyError, ID: cmd.ID, Error: err.Error()}
	}
	reply.Type = replyState
	reply.ID = cmd.ID
	return reply
}

func write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (w *WebUIChannel) Stop() error {
	if w.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.server.Shutdown(ctx); err != nil {
			log.Printf("[webui] shutdown error: %v", err)
		}
	}
	w.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		c.conn.CloseNow()
		return true
	})
	log.Printf("[webui] stopped")
	return nil
}
