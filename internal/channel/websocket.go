package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/inercia/tether/internal/logging"
	"github.com/inercia/tether/internal/message"
)

// DefaultRetryInterval paces reconnection attempts while dialing.
const DefaultRetryInterval = 500 * time.Millisecond

// WebSocketConfig configures a WebSocket engine connection.
type WebSocketConfig struct {
	URL    string
	Header http.Header
	// RetryInterval is the minimum delay between dial attempts.
	RetryInterval time.Duration
	Logger        *slog.Logger
}

// WebSocket is an engine reachable over a WebSocket. Each text frame
// carries one JSON envelope.
type WebSocket struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	ready *readiness

	inbound   chan message.Inbound
	done      chan struct{}
	closeOnce sync.Once
}

// DialWebSocket connects to the engine, retrying until ctx is done. The
// connection is ready as soon as it is established.
func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocket, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Channel()
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	var conn *websocket.Conn
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
		}
		c, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, cfg.Header)
		if err == nil {
			conn = c
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.URL, ctx.Err())
		}
		logger.Debug("Engine not reachable yet", "url", cfg.URL, "attempt", attempt, "error", err)
	}
	logger.Info("Connected to engine", "url", cfg.URL)

	ws := &WebSocket{
		conn:    conn,
		logger:  logger,
		ready:   newReadiness(),
		inbound: make(chan message.Inbound, 64),
		done:    make(chan struct{}),
	}
	ws.ready.mark()
	go ws.readLoop()
	return ws, nil
}

func (w *WebSocket) Ready() <-chan struct{} { return w.ready.ch }

func (w *WebSocket) Inbound() <-chan message.Inbound { return w.inbound }

func (w *WebSocket) readLoop() {
	defer close(w.inbound)
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-w.done:
				default:
					w.logger.Debug("Engine connection ended", "error", err)
				}
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		env, err := Decode(data)
		if err != nil {
			w.logger.Warn("Ignoring malformed envelope", "error", err)
			continue
		}
		if env.Type == message.InboundReady {
			continue
		}
		select {
		case w.inbound <- env:
		case <-w.done:
			return
		}
	}
}

// Send writes msg as one text frame.
func (w *WebSocket) Send(ctx context.Context, msg message.Outbound) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := w.conn.WriteJSON(msg); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}
