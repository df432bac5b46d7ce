package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hazyhaar/capwatch/caption"
)

const (
	overlayQueue        = 32
	overlayWriteTimeout = 5 * time.Second
)

// Overlay is a websocket hub feeding caption overlays. Each connected
// client receives every result as a JSON envelope. Slow clients are
// disconnected rather than allowed to stall delivery.
type Overlay struct {
	mu      sync.Mutex
	clients map[*overlayClient]struct{}
	closed  bool
	audio   bool
	origins []string
	logger  *slog.Logger
}

type overlayClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *overlayClient) stop() { c.once.Do(func() { close(c.done) }) }

// OverlayOption configures an Overlay.
type OverlayOption func(*Overlay)

// WithOverlayAudio also broadcasts audio envelopes.
func WithOverlayAudio() OverlayOption {
	return func(o *Overlay) { o.audio = true }
}

// WithOverlayOrigins allows cross-origin clients matching the patterns.
func WithOverlayOrigins(patterns ...string) OverlayOption {
	return func(o *Overlay) { o.origins = patterns }
}

// WithOverlayLogger sets a custom logger.
func WithOverlayLogger(l *slog.Logger) OverlayOption {
	return func(o *Overlay) { o.logger = l }
}

// NewOverlay creates an Overlay hub with no clients.
func NewOverlay(opts ...OverlayOption) *Overlay {
	o := &Overlay{
		clients: make(map[*overlayClient]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ServeHTTP upgrades the request and serves the client until it
// disconnects or the hub closes.
func (o *Overlay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: o.origins})
	if err != nil {
		o.logger.Debug("overlay: accept failed", "error", err)
		return
	}
	c := &overlayClient{
		conn: conn,
		send: make(chan []byte, overlayQueue),
		done: make(chan struct{}),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	o.clients[c] = struct{}{}
	n := len(o.clients)
	o.mu.Unlock()
	o.logger.Info("overlay: client connected", "clients", n)

	defer func() {
		o.mu.Lock()
		delete(o.clients, c)
		o.mu.Unlock()
		o.logger.Info("overlay: client disconnected")
	}()

	// The overlay never sends; CloseRead handles pings and close frames.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-c.done:
			conn.Close(websocket.StatusGoingAway, "overlay closed")
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, overlayWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				o.logger.Debug("overlay: write failed", "error", err)
				conn.CloseNow()
				return
			}
		}
	}
}

// Clients returns the number of connected clients.
func (o *Overlay) Clients() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clients)
}

func (o *Overlay) SendResult(_ context.Context, res caption.Result) error {
	return o.broadcast(typeResult, res)
}

func (o *Overlay) SendAudio(_ context.Context, audio caption.Audio) error {
	if !o.audio {
		return nil
	}
	return o.broadcast(typeAudio, audio)
}

// Close disconnects every client. Later connections are refused.
func (o *Overlay) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for c := range o.clients {
		c.stop()
	}
	return nil
}

func (o *Overlay) broadcast(typ string, data any) error {
	msg, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("overlay: marshal: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for c := range o.clients {
		select {
		case c.send <- msg:
		default:
			o.logger.Warn("overlay: client too slow, disconnecting")
			c.stop()
		}
	}
	return nil
}
