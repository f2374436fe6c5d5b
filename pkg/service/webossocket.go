package service

import (
	"crypto/tls"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
)

// ssap message types.
const (
	ssapRequest    = "request"
	ssapSubscribe  = "subscribe"
	ssapRegister   = "register"
	ssapRegistered = "registered"
	ssapResponse   = "response"
	ssapError      = "error"
)

type ssapMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	URI     string          `json:"uri,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ssapSocket is one JSON-RPC WebSocket to a webOS TV. Responses are
// demultiplexed by message id; subscribe ids stay routed until released.
type ssapSocket struct {
	log        logger.Logger
	reqTimeout time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	nextID   int
	handlers map[string]*ssapHandler
	closed   bool
}

type ssapHandler struct {
	onPayload func(msgType string, payload json.RawMessage)
	onError   func(err error)
	// persistent handlers (subscriptions, register) survive the first
	// response.
	persistent bool

	timer *time.Timer
}

// ssapRequestTimeout bounds one request round-trip. A TV that never answers
// resolves the handler with a transport error instead of leaving it pending.
// Persistent handlers are exempt: subscriptions have no reply deadline and
// registration waits on the user's prompt.
const ssapRequestTimeout = command.DefaultTimeout

// dialSSAP opens the control socket. The TV uses a self-signed certificate.
func dialSSAP(wsURL string, log logger.Logger) (*ssapSocket, error) {
	dialer := *websocket.DefaultDialer
	if strings.HasPrefix(wsURL, "wss:") {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return nil, &core.TransportError{Err: err}
	}

	s := &ssapSocket{
		log:        log,
		reqTimeout: ssapRequestTimeout,
		conn:       conn,
		handlers:   make(map[string]*ssapHandler),
	}
	go s.readLoop()
	return s, nil
}

// send writes one message, assigning it a fresh id, and routes responses
// for that id to the handler.
func (s *ssapSocket) send(msgType, uri string, payload any, h *ssapHandler) (string, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		raw = data
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", &core.TransportError{Err: errSocketClosed}
	}
	s.nextID++
	id := strconv.Itoa(s.nextID)
	if h != nil {
		s.handlers[id] = h
		if !h.persistent {
			h.timer = time.AfterFunc(s.reqTimeout, func() { s.expire(id) })
		}
	}
	conn := s.conn
	s.mu.Unlock()

	msg := ssapMessage{Type: msgType, ID: id, URI: uri, Payload: raw}
	if err := conn.WriteJSON(msg); err != nil {
		s.release(id)
		return "", &core.TransportError{Err: err}
	}
	return id, nil
}

// release drops the handler for an id.
func (s *ssapSocket) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handlers[id]; ok && h.timer != nil {
		h.timer.Stop()
	}
	delete(s.handlers, id)
}

// expire resolves a request the TV never answered.
func (s *ssapSocket) expire(id string) {
	s.mu.Lock()
	h, ok := s.handlers[id]
	if ok {
		delete(s.handlers, id)
	}
	s.mu.Unlock()

	if ok && h.onError != nil {
		h.onError(&core.TransportError{Err: errRequestTimeout})
	}
}

func (s *ssapSocket) readLoop() {
	for {
		var msg ssapMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.fail(&core.TransportError{Err: err})
			return
		}
		s.dispatch(msg)
	}
}

func (s *ssapSocket) dispatch(msg ssapMessage) {
	s.mu.Lock()
	h, ok := s.handlers[msg.ID]
	if ok && !h.persistent {
		if h.timer != nil {
			h.timer.Stop()
		}
		delete(s.handlers, msg.ID)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debug("ssap message for unknown id", logger.String("id", msg.ID))
		return
	}

	switch msg.Type {
	case ssapError:
		if h.onError != nil {
			h.onError(&core.CommandError{Code: 500, Description: msg.Error})
		}
	default:
		if h.onPayload != nil {
			h.onPayload(msg.Type, msg.Payload)
		}
	}
}

// fail resolves every outstanding handler with err and closes the socket.
func (s *ssapSocket) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handlers := s.handlers
	s.handlers = make(map[string]*ssapHandler)
	conn := s.conn
	s.mu.Unlock()

	_ = conn.Close()
	for _, h := range handlers {
		if h.timer != nil {
			h.timer.Stop()
		}
		if h.onError != nil {
			h.onError(err)
		}
	}
}

func (s *ssapSocket) close() {
	s.fail(&core.TransportError{Err: errSocketClosed})
}

var errSocketClosed = &closedError{}

type closedError struct{}

func (*closedError) Error() string { return "websocket closed" }

var errRequestTimeout = &timeoutError{}

type timeoutError struct{}

func (*timeoutError) Error() string { return "request timed out" }

// pointerSocket is the line-framed input socket used for mouse, scroll and
// button events. Frames are "key:value" lines ended by a blank line.
type pointerSocket struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// dialPointer rewrites the advertised secure path to the plain listener and
// connects. The TV hands out wss://host:3001 paths; the usable socket is
// ws://host:3000.
func dialPointer(socketPath string) (*pointerSocket, error) {
	if strings.HasPrefix(socketPath, "wss:") {
		socketPath = strings.Replace(socketPath, "wss:", "ws:", 1)
		socketPath = strings.Replace(socketPath, ":3001", ":3000", 1)
	}
	conn, _, err := websocket.DefaultDialer.Dial(socketPath, nil)
	if err != nil {
		return nil, &core.TransportError{Err: err}
	}
	return &pointerSocket{conn: conn}, nil
}

func (p *pointerSocket) writeFrame(lines ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	frame := strings.Join(lines, "\n") + "\n\n"
	if err := p.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return &core.TransportError{Err: err}
	}
	return nil
}

func (p *pointerSocket) Move(dx, dy float64) error {
	return p.writeFrame(
		"type:move",
		"dx:"+strconv.FormatFloat(dx, 'f', -1, 64),
		"dy:"+strconv.FormatFloat(dy, 'f', -1, 64),
		"down:0",
	)
}

func (p *pointerSocket) Click() error {
	return p.writeFrame("type:click")
}

func (p *pointerSocket) Scroll(dx, dy float64) error {
	return p.writeFrame(
		"type:scroll",
		"dx:"+strconv.FormatFloat(dx, 'f', -1, 64),
		"dy:"+strconv.FormatFloat(dy, 'f', -1, 64),
	)
}

func (p *pointerSocket) Button(name string) error {
	return p.writeFrame("type:button", "name:"+name)
}

func (p *pointerSocket) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.Close()
}
