package update

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/nodelink/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type of the update listener
	ServiceType = "_nodelink-update._tcp"

	// DefaultAddr is the default listen address of the update listener
	DefaultAddr = ":3232"

	// MaxImageSize bounds an uploaded image
	MaxImageSize = 16 << 20

	completedQueueSize = 4
)

// Upload describes a staged firmware image.
type Upload struct {
	Path       string
	Size       int64
	RemoteAddr string
	Received   time.Time
}

// HTTPConfig configures an HTTPListener.
type HTTPConfig struct {
	Addr       string       // Listen address (default ":3232")
	StagingDir string       // Directory receiving uploaded images
	Advertise  bool         // Register the service over mDNS
	OnComplete func(Upload) // Called from Handle for every staged image
}

// HTTPListener is a Listener accepting firmware images over HTTP.
//
// POST /update with the update password as HTTP Basic password stages the
// request body. GET / reports the listener identity. Uploads are queued and
// only acknowledged to the node in Handle, on the tick goroutine.
type HTTPListener struct {
	cfg HTTPConfig

	mu       sync.Mutex
	hostname string
	password string
	listener net.Listener
	server   *http.Server
	mdns     *zeroconf.Server

	completed chan Upload
}

// NewHTTPListener creates a listener. Nothing is opened until Begin.
func NewHTTPListener(cfg HTTPConfig) *HTTPListener {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	return &HTTPListener{cfg: cfg, completed: make(chan Upload, completedQueueSize)}
}

// Begin implements Listener.
func (l *HTTPListener) Begin(hostname, password string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener != nil {
		return errors.New("update listener already started")
	}

	if err := os.MkdirAll(l.cfg.StagingDir, 0700); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	listener, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.cfg.Addr, err)
	}

	l.hostname = hostname
	l.password = password
	l.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleStatus)
	mux.HandleFunc("/update", l.handleUpdate)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Update listener stopped", zap.Error(err))
		}
	}()

	if l.cfg.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		l.mdns, err = zeroconf.Register(hostname, ServiceType, "local.", port, []string{"path=/update"}, nil)
		if err != nil {
			logging.Warn("Failed to advertise update listener", zap.Error(err))
		}
	}

	logging.Info("Update listener started",
		zap.String("hostname", hostname),
		zap.String("addr", listener.Addr().String()),
	)
	return nil
}

// Addr returns the listen address, or nil before Begin.
func (l *HTTPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Handle implements Listener.
func (l *HTTPListener) Handle() {
	for {
		select {
		case u := <-l.completed:
			logging.Info("Firmware image staged",
				zap.String("path", u.Path),
				zap.Int64("size", u.Size),
				zap.String("remote_addr", u.RemoteAddr),
			)
			if l.cfg.OnComplete != nil {
				l.cfg.OnComplete(u)
			}
		default:
			return
		}
	}
}

func (l *HTTPListener) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	l.mu.Lock()
	hostname := l.hostname
	l.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"hostname": hostname,
		"state":    "ready",
	})
}

func (l *HTTPListener) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	l.mu.Lock()
	want := l.password
	l.mu.Unlock()

	_, got, ok := r.BasicAuth()
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		logging.Warn("Rejected update upload", zap.String("remote_addr", r.RemoteAddr))
		w.Header().Set("WWW-Authenticate", `Basic realm="nodelink-update"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upload, err := l.stage(w, r)
	if err != nil {
		logging.Error("Failed to stage firmware image",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		http.Error(w, "upload failed", http.StatusBadRequest)
		return
	}

	select {
	case l.completed <- upload:
	default:
		logging.Warn("Update queue full, dropping staged image", zap.String("path", upload.Path))
		_ = os.Remove(upload.Path)
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "staged %d bytes\n", upload.Size)
}

func (l *HTTPListener) stage(w http.ResponseWriter, r *http.Request) (Upload, error) {
	body := http.MaxBytesReader(w, r.Body, MaxImageSize)
	defer body.Close()

	f, err := os.CreateTemp(l.cfg.StagingDir, "firmware-*.bin")
	if err != nil {
		return Upload{}, fmt.Errorf("create staging file: %w", err)
	}

	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return Upload{}, fmt.Errorf("write staging file: %w", err)
	}
	if n == 0 {
		_ = os.Remove(f.Name())
		return Upload{}, errors.New("empty image")
	}

	return Upload{
		Path:       filepath.Clean(f.Name()),
		Size:       n,
		RemoteAddr: r.RemoteAddr,
		Received:   time.Now(),
	}, nil
}

// Close stops the listener.
func (l *HTTPListener) Close() error {
	l.mu.Lock()
	server := l.server
	if l.mdns != nil {
		l.mdns.Shutdown()
		l.mdns = nil
	}
	l.mu.Unlock()

	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
