package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Websocket timing, as in the gorilla chat example.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	outboundBuffer = 256
)

var errPeerClosed = errors.New("websocket session closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Sessions come from local editor and extension processes.
		return true
	},
}

// message is the envelope of every frame in either direction. A frame with a
// method is a request, or a notification when ID is zero. A frame without a
// method answers the request with the same ID.
type message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// peer is a bidirectional JSON RPC endpoint over one websocket. A single
// writer goroutine owns the connection's write side.
type peer struct {
	conn   *websocket.Conn
	logger *slog.Logger

	out       chan message
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan message
}

func newPeer(conn *websocket.Conn, logger *slog.Logger) *peer {
	return &peer{
		conn:    conn,
		logger:  logger,
		out:     make(chan message, outboundBuffer),
		closed:  make(chan struct{}),
		pending: make(map[int64]chan message),
	}
}

// notify sends a one-way message. It returns false once the peer is closed.
func (p *peer) notify(method string, params any) bool {
	raw, err := json.Marshal(params)
	if err != nil {
		p.logger.Error("marshal notification failed", "method", method, "error", err)
		return false
	}
	return p.send(message{Method: method, Params: raw})
}

// call sends a request and decodes the answer into result, which may be nil.
func (p *peer) call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}

	reply := make(chan message, 1)
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.pending[id] = reply
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if !p.send(message{ID: id, Method: method, Params: raw}) {
		return fmt.Errorf("%s: %w", method, errPeerClosed)
	}

	select {
	case m := <-reply:
		if m.Error != "" {
			return fmt.Errorf("%s: %s", method, m.Error)
		}
		if result == nil || len(m.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(m.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-p.closed:
		return fmt.Errorf("%s: %w", method, errPeerClosed)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// reply answers the request with the given id.
func (p *peer) reply(id int64, result any, err error) {
	if id == 0 {
		if err != nil {
			p.logger.Warn("notification failed", "error", err)
		}
		return
	}

	m := message{ID: id}
	if err != nil {
		m.Error = err.Error()
	} else if result != nil {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			m.Error = mErr.Error()
		} else {
			m.Result = raw
		}
	}
	p.send(m)
}

func (p *peer) send(m message) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.out <- m:
		return true
	case <-p.closed:
		return false
	}
}

// run pumps both directions until the connection fails or ctx is cancelled.
// Requests and notifications are handed to handle on the reading goroutine,
// in arrival order.
func (p *peer) run(ctx context.Context, handle func(message)) {
	go p.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			p.close()
		case <-p.closed:
		}
	}()

	p.readLoop(handle)
	p.close()
}

func (p *peer) readLoop(handle func(message)) {
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var m message
		if err := p.conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		if m.Method == "" {
			p.mu.Lock()
			reply, ok := p.pending[m.ID]
			p.mu.Unlock()
			if ok {
				reply <- m
			} else {
				p.logger.Debug("dropping reply to unknown request", "id", m.ID)
			}
			continue
		}
		handle(m)
	}
}

func (p *peer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case m := <-p.out:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(m); err != nil {
				p.logger.Warn("websocket write failed", "error", err)
				p.close()
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}
		case <-p.closed:
			return
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = p.conn.Close()
	})
}

// decodeParams unmarshals a request's params into v.
func decodeParams(m message, v any) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("%s: missing params", m.Method)
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("%s: invalid params: %w", m.Method, err)
	}
	return nil
}
