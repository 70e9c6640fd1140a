package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/muurk/nodelink/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type advertised by provisioning nodes
	ServiceType = "_nodelink._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultAddr is the default provisioning listen address
	DefaultAddr = ":8080"

	// DefaultPath is the WebSocket endpoint path
	DefaultPath = "/provision"

	// Time allowed to write a reply to the peer
	writeWait = 10 * time.Second

	// Time a connection waits for the tick to answer a queued request
	replyWait = 30 * time.Second

	// Maximum request size allowed from peer
	maxMessageSize = 4096

	pendingQueueSize = 16
)

// WebSocketConfig configures a WebSocketAdapter.
type WebSocketConfig struct {
	Addr      string // Listen address (default ":8080")
	Path      string // Endpoint path (default "/provision")
	Advertise bool   // Register the service over mDNS
	Instance  string // mDNS instance name (e.g. the local network SSID)
	MAC       string // Published in the mDNS TXT record
}

// Lifecycle of a queued request. Exactly one of Service or the waiting
// connection moves it out of requestQueued.
const (
	requestQueued int32 = iota
	requestTaken
	requestAbandoned
)

type pendingRequest struct {
	remoteAddr string
	req        Request
	reply      chan string
	state      atomic.Int32
}

// WebSocketAdapter is an Adapter serving requests over WebSocket.
type WebSocketAdapter struct {
	cfg      WebSocketConfig
	upgrader websocket.Upgrader

	mu          sync.Mutex
	handler     Handler
	listener    net.Listener
	server      *http.Server
	mdns        *zeroconf.Server
	activeConns map[string]*websocket.Conn
	wg          sync.WaitGroup

	pending   chan *pendingRequest
	replyWait time.Duration
	done      chan struct{}
}

// NewWebSocketAdapter creates an adapter. Nothing is opened until Begin.
func NewWebSocketAdapter(cfg WebSocketConfig) *WebSocketAdapter {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Instance == "" {
		cfg.Instance = "nodelink"
	}
	return &WebSocketAdapter{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Provisioning clients are not browsers; any origin is accepted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		activeConns: make(map[string]*websocket.Conn),
		pending:     make(chan *pendingRequest, pendingQueueSize),
		replyWait:   replyWait,
		done:        make(chan struct{}),
	}
}

// OnMessage implements Adapter.
func (a *WebSocketAdapter) OnMessage(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Begin implements Adapter.
func (a *WebSocketAdapter) Begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handler == nil {
		return errors.New("no message handler registered")
	}
	if a.listener != nil {
		return errors.New("adapter already started")
	}

	listener, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Addr, err)
	}
	a.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.Path, a.serveWS)
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Provisioning server stopped", zap.Error(err))
		}
	}()

	logging.Info("Provisioning channel listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
	)

	if a.cfg.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		txt := []string{"path=" + a.cfg.Path}
		if a.cfg.MAC != "" {
			txt = append(txt, "mac="+a.cfg.MAC)
		}
		a.mdns, err = zeroconf.Register(a.cfg.Instance, ServiceType, ServiceDomain, port, txt, nil)
		if err != nil {
			// Discovery is a convenience; the channel still works by address.
			logging.Warn("Failed to advertise provisioning service", zap.Error(err))
		} else {
			logging.Info("Provisioning service advertised",
				zap.String("instance", a.cfg.Instance),
				zap.String("service", ServiceType),
				zap.Int("port", port),
			)
		}
	}

	return nil
}

// Addr returns the listen address, or nil before Begin.
func (a *WebSocketAdapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// URL returns the ws:// URL of the endpoint for the given host.
func (a *WebSocketAdapter) URL(host string) string {
	addr := a.Addr()
	if addr == nil {
		return ""
	}
	port := addr.(*net.TCPAddr).Port
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + a.cfg.Path
}

// Service implements Adapter.
func (a *WebSocketAdapter) Service() {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()

	for {
		select {
		case p := <-a.pending:
			if !p.state.CompareAndSwap(requestQueued, requestTaken) {
				logging.Debug("Dropping abandoned provisioning request",
					zap.String("remote_addr", p.remoteAddr),
				)
				continue
			}
			logging.LogProvisioningRequest(p.remoteAddr, p.req)
			reply := ReplyMissing
			if h != nil {
				reply = h(p.req)
			}
			p.reply <- reply
		default:
			return
		}
	}
}

func (a *WebSocketAdapter) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := r.RemoteAddr
	a.mu.Lock()
	select {
	case <-a.done:
		a.mu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	a.activeConns[remoteAddr] = conn
	a.wg.Add(1)
	a.mu.Unlock()

	defer func() {
		_ = conn.Close()
		a.mu.Lock()
		delete(a.activeConns, remoteAddr)
		a.mu.Unlock()
		a.wg.Done()
		logging.LogConnection(remoteAddr, "provisioning_closed")
	}()

	logging.LogConnection(remoteAddr, "provisioning_opened")
	conn.SetReadLimit(maxMessageSize)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Provisioning connection error",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
		if msgType != websocket.TextMessage {
			logging.LogRawBytes("Ignoring non-text provisioning frame", data)
			continue
		}

		req, err := DecodeRequest(data)
		if err != nil {
			logging.Debug("Malformed provisioning request",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
		}

		reply, ok := a.enqueue(remoteAddr, req)
		if !ok {
			return
		}

		out, err := json.Marshal(replyMessage{Reply: reply})
		if err != nil {
			logging.Error("Failed to marshal reply", zap.Error(err))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			logging.Info("Failed to write provisioning reply",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return
		}
	}
}

// enqueue hands a request to the tick goroutine and waits for its reply.
// A request given up on before Service reaches it is never handled.
func (a *WebSocketAdapter) enqueue(remoteAddr string, req Request) (string, bool) {
	p := &pendingRequest{remoteAddr: remoteAddr, req: req, reply: make(chan string, 1)}

	select {
	case a.pending <- p:
	case <-a.done:
		return "", false
	}

	timeout := time.NewTimer(a.replyWait)
	defer timeout.Stop()

	select {
	case reply := <-p.reply:
		return reply, true
	case <-a.done:
		return a.abandon(p)
	case <-timeout.C:
		logging.Warn("Provisioning request not serviced in time",
			zap.String("remote_addr", remoteAddr),
		)
		return a.abandon(p)
	}
}

// abandon withdraws p. If Service already took it, the handler has run and
// its reply is returned.
func (a *WebSocketAdapter) abandon(p *pendingRequest) (string, bool) {
	if p.state.CompareAndSwap(requestQueued, requestAbandoned) {
		return "", false
	}
	return <-p.reply, true
}

// Close implements Adapter.
func (a *WebSocketAdapter) Close() error {
	a.mu.Lock()
	select {
	case <-a.done:
		a.mu.Unlock()
		return nil
	default:
		close(a.done)
	}

	if a.mdns != nil {
		a.mdns.Shutdown()
		a.mdns = nil
	}
	for addr, conn := range a.activeConns {
		logging.Debug("Closing provisioning connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	server := a.server
	a.mu.Unlock()

	var err error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = server.Shutdown(ctx)
	}

	a.wg.Wait()
	return err
}
