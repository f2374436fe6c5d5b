package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
	"github.com/castlink/castlink/pkg/store"
)

// fakeSSAPServer is a websocket endpoint standing in for a webOS TV. Every
// received message is recorded and answered through respond.
type fakeSSAPServer struct {
	srv     *httptest.Server
	respond func(conn *websocket.Conn, msg ssapMessage)

	mu   sync.Mutex
	msgs []ssapMessage
}

func newFakeSSAPServer(t *testing.T, respond func(conn *websocket.Conn, msg ssapMessage)) *fakeSSAPServer {
	t.Helper()
	f := &fakeSSAPServer{respond: respond}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			var msg ssapMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.mu.Lock()
			f.msgs = append(f.msgs, msg)
			f.mu.Unlock()
			if f.respond != nil {
				f.respond(conn, msg)
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSSAPServer) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeSSAPServer) messages() []ssapMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ssapMessage, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func respondOK(conn *websocket.Conn, msg ssapMessage) {
	_ = conn.WriteJSON(ssapMessage{
		Type:    ssapResponse,
		ID:      msg.ID,
		Payload: json.RawMessage(`{"returnValue":true}`),
	})
}

// newTestWebOS attaches a WebOS service to a fake TV socket, bypassing the
// fixed-port dial.
func newTestWebOS(t *testing.T, f *fakeSSAPServer) *WebOS {
	t.Helper()
	desc := &core.ServiceDescription{
		UUID:         "uuid-webos",
		FriendlyName: "Bedroom TV",
		IPAddress:    "127.0.0.1",
	}
	w := NewWebOS(desc, core.NewServiceConfig(desc.UUID), logger.Nop())

	sock, err := dialSSAP(f.wsURL(), logger.Nop())
	if err != nil {
		t.Fatalf("dial fake TV: %v", err)
	}
	w.wmu.Lock()
	w.sock = sock
	w.wmu.Unlock()
	t.Cleanup(sock.close)
	return w
}

func TestWebOSRegisterPromptThenGranted(t *testing.T) {
	f := newFakeSSAPServer(t, func(conn *websocket.Conn, msg ssapMessage) {
		if msg.Type != ssapRegister {
			respondOK(conn, msg)
			return
		}
		// Prompt first, grant after.
		_ = conn.WriteJSON(ssapMessage{Type: ssapResponse, ID: msg.ID,
			Payload: json.RawMessage(`{"pairingType":"PROMPT"}`)})
		_ = conn.WriteJSON(ssapMessage{Type: ssapRegistered, ID: msg.ID,
			Payload: json.RawMessage(`{"client-key":"key-granted"}`)})
	})
	w := newTestWebOS(t, f)
	st := store.NewMemoryStore()
	w.SetConfigSaver(func(cfg *core.ServiceConfig) {
		if err := st.Put(context.Background(), cfg); err != nil {
			t.Errorf("store.Put: %v", err)
		}
	})
	l := newStateListener()
	w.SetListener(l)
	w.setState(core.StateConnecting)

	w.register()

	select {
	case p := <-l.pairing:
		if p != core.PairingPrompt {
			t.Fatalf("pairing type = %v, want PairingPrompt", p)
		}
	case err := <-l.failure:
		t.Fatalf("register failed: %v", err)
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for pairing prompt")
	}

	select {
	case <-l.success:
	case err := <-l.failure:
		t.Fatalf("register failed: %v", err)
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for connection success")
	}

	if got := w.Config().ClientKey; got != "key-granted" {
		t.Errorf("persisted client key = %q, want key-granted", got)
	}
	stored, err := st.Get(context.Background(), "uuid-webos")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if stored.ClientKey != "key-granted" {
		t.Errorf("stored client key = %q, want key-granted", stored.ClientKey)
	}
	if got := w.State(); got != core.StateConnected {
		t.Errorf("state = %v, want Connected", got)
	}

	msgs := f.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	var payload struct {
		PairingType string `json:"pairingType"`
	}
	if err := json.Unmarshal(msgs[0].Payload, &payload); err != nil {
		t.Fatalf("register payload: %v", err)
	}
	if payload.PairingType != "PROMPT" {
		t.Errorf("pairingType = %q, want PROMPT", payload.PairingType)
	}
}

func TestWebOSRegisterSendsStoredKey(t *testing.T) {
	f := newFakeSSAPServer(t, func(conn *websocket.Conn, msg ssapMessage) {
		_ = conn.WriteJSON(ssapMessage{Type: ssapRegistered, ID: msg.ID,
			Payload: json.RawMessage(`{"client-key":"key-stored"}`)})
	})
	w := newTestWebOS(t, f)
	w.Config().ClientKey = "key-stored"
	l := newStateListener()
	w.SetListener(l)
	w.setState(core.StateConnecting)

	w.register()

	select {
	case <-l.success:
	case err := <-l.failure:
		t.Fatalf("register failed: %v", err)
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for connection success")
	}
	if got := l.pairingRequests(); got != 0 {
		t.Errorf("pairing prompt fired %d times, want 0", got)
	}

	var payload struct {
		ClientKey string `json:"client-key"`
	}
	if err := json.Unmarshal(f.messages()[0].Payload, &payload); err != nil {
		t.Fatalf("register payload: %v", err)
	}
	if payload.ClientKey != "key-stored" {
		t.Errorf("client-key = %q, want key-stored", payload.ClientKey)
	}
}

func TestWebOSGetVolume(t *testing.T) {
	f := newFakeSSAPServer(t, func(conn *websocket.Conn, msg ssapMessage) {
		if msg.URI == uriVolumeGet {
			_ = conn.WriteJSON(ssapMessage{Type: ssapResponse, ID: msg.ID,
				Payload: json.RawMessage(`{"returnValue":true,"volume":25,"muted":false}`)})
			return
		}
		respondOK(conn, msg)
	})
	w := newTestWebOS(t, f)

	volCh := make(chan float64, 1)
	errCh := make(chan error, 1)
	w.GetVolume(func(v float64) { volCh <- v }, func(err error) { errCh <- err })

	select {
	case v := <-volCh:
		if v != 0.25 {
			t.Errorf("volume = %v, want 0.25", v)
		}
	case err := <-errCh:
		t.Fatalf("GetVolume: %v", err)
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for volume")
	}
}

func TestWebOSSetChannelSendsID(t *testing.T) {
	f := newFakeSSAPServer(t, respondOK)
	w := newTestWebOS(t, f)

	done := make(chan error, 1)
	w.SetChannel(core.ChannelInfo{ID: "ch-7"}, command.Listener{
		OnSuccess: func([]byte) { done <- nil },
		OnError:   func(err error) { done <- err },
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SetChannel: %v", err)
		}
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for SetChannel")
	}

	msgs := f.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].URI != uriChannelSet {
		t.Errorf("URI = %s, want %s", msgs[0].URI, uriChannelSet)
	}
	if string(msgs[0].Payload) != `{"channelId":"ch-7"}` {
		t.Errorf("payload = %s", msgs[0].Payload)
	}
}

func TestWebOSSubscribeVolumeDeliversUpdates(t *testing.T) {
	f := newFakeSSAPServer(t, func(conn *websocket.Conn, msg ssapMessage) {
		if msg.Type == ssapSubscribe && msg.URI == uriVolumeGet {
			_ = conn.WriteJSON(ssapMessage{Type: ssapResponse, ID: msg.ID,
				Payload: json.RawMessage(`{"volume":10}`)})
			_ = conn.WriteJSON(ssapMessage{Type: ssapResponse, ID: msg.ID,
				Payload: json.RawMessage(`{"volume":11}`)})
		}
	})
	w := newTestWebOS(t, f)

	updates := make(chan string, 2)
	sub := w.SubscribeVolume(command.Listener{
		OnSuccess: func(body []byte) { updates <- string(body) },
	})
	if sub == nil {
		t.Fatal("subscription is nil")
	}

	for _, want := range []string{`{"volume":10}`, `{"volume":11}`} {
		select {
		case got := <-updates:
			if got != want {
				t.Errorf("update = %s, want %s", got, want)
			}
		case <-time.After(serviceTestTimeout):
			t.Fatal("timed out waiting for subscription update")
		}
	}
}

func TestWebOSKeyboardCoalescesEdits(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	f := newFakeSSAPServer(t, func(conn *websocket.Conn, msg ssapMessage) {
		// Hold the first ime response so later edits pile up in the queue.
		once.Do(func() { <-release })
		respondOK(conn, msg)
	})
	w := newTestWebOS(t, f)

	w.SendText("a")
	time.Sleep(100 * time.Millisecond) // first insert reaches the server and blocks
	w.SendText("b")
	w.SendText("c")
	w.SendDelete() // cancels the queued "c" locally
	w.SendEnter()
	close(release)

	deadline := time.Now().Add(serviceTestTimeout)
	for time.Now().Before(deadline) {
		if len(f.messages()) >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs := f.messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].URI != uriInsertText || string(msgs[0].Payload) != `{"replace":0,"text":"a"}` {
		t.Errorf("first edit = %s %s", msgs[0].URI, msgs[0].Payload)
	}
	if msgs[1].URI != uriInsertText || string(msgs[1].Payload) != `{"replace":0,"text":"b"}` {
		t.Errorf("second edit = %s %s", msgs[1].URI, msgs[1].Payload)
	}
	if msgs[2].URI != uriSendEnter {
		t.Errorf("third edit URI = %s, want %s", msgs[2].URI, uriSendEnter)
	}
}

func TestWebOSSendCommandWithoutSocketFails(t *testing.T) {
	desc := &core.ServiceDescription{UUID: "uuid-webos", IPAddress: "127.0.0.1"}
	w := NewWebOS(desc, core.NewServiceConfig(desc.UUID), logger.Nop())

	errCh := make(chan error, 1)
	w.Play(command.Listener{
		OnSuccess: func([]byte) { errCh <- nil },
		OnError:   func(err error) { errCh <- err },
	})

	select {
	case err := <-errCh:
		var transport *core.TransportError
		if !errors.As(err, &transport) {
			t.Fatalf("error = %v, want TransportError", err)
		}
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for error")
	}
}

// pointerFrameServer stands in for the TV's pointer input socket and records
// every text frame it receives.
type pointerFrameServer struct {
	srv    *httptest.Server
	frames chan string
}

func newPointerFrameServer(t *testing.T) *pointerFrameServer {
	t.Helper()
	p := &pointerFrameServer{frames: make(chan string, 8)}
	upgrader := websocket.Upgrader{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p.frames <- string(data)
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *pointerFrameServer) wsURL() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http")
}

func TestWebOSMouseDoesNotBlockCaller(t *testing.T) {
	ptr := newPointerFrameServer(t)
	release := make(chan struct{})
	f := newFakeSSAPServer(t, func(conn *websocket.Conn, msg ssapMessage) {
		if msg.URI != uriPointerSocket {
			respondOK(conn, msg)
			return
		}
		// Hold the socket-path reply until the caller has moved on.
		<-release
		_ = conn.WriteJSON(ssapMessage{Type: ssapResponse, ID: msg.ID,
			Payload: json.RawMessage(`{"socketPath":"` + ptr.wsURL() + `"}`)})
	})
	w := newTestWebOS(t, f)

	// Both calls must return while the TV still owes the socket-path reply.
	w.MouseMove(12, -4)
	w.MouseClick()
	close(release)

	var frames []string
	for len(frames) < 2 {
		select {
		case fr := <-ptr.frames:
			frames = append(frames, fr)
		case <-time.After(serviceTestTimeout):
			t.Fatalf("timed out waiting for pointer frames, got %q", frames)
		}
	}

	var sawMove, sawClick bool
	for _, fr := range frames {
		switch {
		case strings.HasPrefix(fr, "type:move\n"):
			sawMove = true
			if !strings.Contains(fr, "dx:12\n") || !strings.Contains(fr, "dy:-4\n") {
				t.Errorf("move frame = %q, want dx:12 dy:-4", fr)
			}
		case strings.HasPrefix(fr, "type:click\n"):
			sawClick = true
		default:
			t.Errorf("unexpected pointer frame %q", fr)
		}
	}
	if !sawMove || !sawClick {
		t.Errorf("frames = %q, want one move and one click", frames)
	}
}
