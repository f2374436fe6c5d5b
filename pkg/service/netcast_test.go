package service

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
	"github.com/castlink/castlink/pkg/store"
	"github.com/castlink/castlink/pkg/udap"
)

const serviceTestTimeout = 5 * time.Second

// recordedRequest captures one HTTP exchange seen by a fake device.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
	Header http.Header
}

// fakeDevice is an httptest server standing in for a television.
type fakeDevice struct {
	srv *httptest.Server

	mu   sync.Mutex
	reqs []recordedRequest
}

func newFakeDevice(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *fakeDevice {
	t.Helper()
	d := &fakeDevice{}
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		d.mu.Lock()
		d.reqs = append(d.reqs, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   string(body),
			Header: r.Header.Clone(),
		})
		d.mu.Unlock()
		if handler != nil {
			handler(w, r)
		}
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *fakeDevice) hostPort(t *testing.T) (string, int) {
	t.Helper()
	u := strings.TrimPrefix(d.srv.URL, "http://")
	host, portStr, err := net.SplitHostPort(u)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func (d *fakeDevice) requests() []recordedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]recordedRequest, len(d.reqs))
	copy(out, d.reqs)
	return out
}

// stateListener records service lifecycle callbacks on channels.
type stateListener struct {
	success chan DeviceService
	failure chan error
	pairing chan core.PairingType
	gone    chan error

	mu           sync.Mutex
	pairingCount int
}

func newStateListener() *stateListener {
	return &stateListener{
		success: make(chan DeviceService, 4),
		failure: make(chan error, 4),
		pairing: make(chan core.PairingType, 4),
		gone:    make(chan error, 4),
	}
}

func (l *stateListener) OnConnectionSuccess(svc DeviceService)        { l.success <- svc }
func (l *stateListener) OnConnectionFailure(_ DeviceService, e error) { l.failure <- e }
func (l *stateListener) OnDisconnect(_ DeviceService, e error)        { l.gone <- e }

func (l *stateListener) OnPairingRequired(_ DeviceService, p core.PairingType) {
	l.mu.Lock()
	l.pairingCount++
	l.mu.Unlock()
	l.pairing <- p
}

func (l *stateListener) pairingRequests() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pairingCount
}

func newTestNetcast(t *testing.T, dev *fakeDevice) *Netcast {
	t.Helper()
	host, port := dev.hostPort(t)
	desc := &core.ServiceDescription{
		UUID:         "uuid-netcast",
		FriendlyName: "Living Room TV",
		IPAddress:    host,
	}
	svc := NewNetcast(desc, core.NewServiceConfig(desc.UUID), logger.Nop())
	// Point the fixed control port at the fake device.
	svc.Description().Port = port
	return svc
}

func TestNetcastPairingFlow(t *testing.T) {
	dev := newFakeDevice(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	svc := newTestNetcast(t, dev)
	l := newStateListener()
	svc.SetListener(l)

	svc.Connect()

	select {
	case p := <-l.pairing:
		if p != core.PairingPinCode {
			t.Fatalf("pairing type = %v, want PairingPinCode", p)
		}
	case err := <-l.failure:
		t.Fatalf("connection failed: %v", err)
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for pairing prompt")
	}

	reqs := dev.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests before pairing key, want 1", len(reqs))
	}
	if reqs[0].Method != http.MethodPost || reqs[0].Path != udap.PathPairing {
		t.Errorf("showKey request = %s %s", reqs[0].Method, reqs[0].Path)
	}
	if !strings.Contains(reqs[0].Body, "<name>showKey</name>") {
		t.Errorf("showKey body = %q", reqs[0].Body)
	}

	svc.SendPairingKey("1234")

	select {
	case <-l.success:
	case err := <-l.failure:
		t.Fatalf("pairing failed: %v", err)
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for connection success")
	}

	reqs = dev.requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests after pairing key, want 2", len(reqs))
	}
	hello := reqs[1]
	if hello.Path != udap.PathPairing {
		t.Errorf("hello path = %s", hello.Path)
	}
	for _, want := range []string{"<name>hello</name>", "<value>1234</value>", "<port>"} {
		if !strings.Contains(hello.Body, want) {
			t.Errorf("hello body missing %q: %q", want, hello.Body)
		}
	}

	if got := svc.Config().PairingKey; got != "1234" {
		t.Errorf("persisted pairing key = %q, want %q", got, "1234")
	}
	if got := svc.State(); got != core.StateConnected {
		t.Errorf("state = %v, want Connected", got)
	}
	if got := l.pairingRequests(); got != 1 {
		t.Errorf("pairing prompt fired %d times, want 1", got)
	}
}

func TestNetcastPairingWritesKeyToStore(t *testing.T) {
	dev := newFakeDevice(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	svc := newTestNetcast(t, dev)
	st := store.NewMemoryStore()
	svc.SetConfigSaver(func(cfg *core.ServiceConfig) {
		if err := st.Put(context.Background(), cfg); err != nil {
			t.Errorf("store.Put: %v", err)
		}
	})
	l := newStateListener()
	svc.SetListener(l)

	svc.Connect()
	select {
	case <-l.pairing:
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for pairing prompt")
	}

	svc.SendPairingKey("1234")
	select {
	case <-l.success:
	case err := <-l.failure:
		t.Fatalf("pairing failed: %v", err)
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for connection success")
	}

	// The granted key must survive a re-discovery, so it has to be in the
	// store, not only in the config handed to this service instance.
	stored, err := st.Get(context.Background(), "uuid-netcast")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if stored.PairingKey != "1234" {
		t.Errorf("stored pairing key = %q, want 1234", stored.PairingKey)
	}
}

func TestNetcastConnectWithStoredKey(t *testing.T) {
	dev := newFakeDevice(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	svc := newTestNetcast(t, dev)
	svc.Config().PairingKey = "9876"
	l := newStateListener()
	svc.SetListener(l)

	svc.Connect()

	select {
	case <-l.success:
	case err := <-l.failure:
		t.Fatalf("connection failed: %v", err)
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for connection success")
	}

	if got := l.pairingRequests(); got != 0 {
		t.Errorf("pairing prompt fired %d times, want 0", got)
	}
	reqs := dev.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].Body, "<value>9876</value>") {
		t.Errorf("hello body = %q", reqs[0].Body)
	}
}

func TestNetcastPairingRejected(t *testing.T) {
	dev := newFakeDevice(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	svc := newTestNetcast(t, dev)
	svc.Config().PairingKey = "0000"
	l := newStateListener()
	svc.SetListener(l)

	svc.Connect()

	select {
	case err := <-l.failure:
		var cmdErr *core.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("error = %v, want *core.CommandError", err)
		}
		if cmdErr.Code != http.StatusUnauthorized {
			t.Errorf("code = %d, want 401", cmdErr.Code)
		}
	case <-l.success:
		t.Fatal("unexpected connection success")
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for connection failure")
	}

	if got := svc.State(); got != core.StateInitial {
		t.Errorf("state = %v, want Initial", got)
	}
}

func TestNetcastConnectIgnoredWhenConnected(t *testing.T) {
	dev := newFakeDevice(t, nil)
	svc := newTestNetcast(t, dev)
	svc.setState(core.StateConnected)

	svc.Connect()

	time.Sleep(50 * time.Millisecond)
	if got := len(dev.requests()); got != 0 {
		t.Errorf("got %d requests, want 0", got)
	}
	if got := svc.State(); got != core.StateConnected {
		t.Errorf("state = %v, want Connected", got)
	}
}

func TestNetcastSendKeycode(t *testing.T) {
	dev := newFakeDevice(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	svc := newTestNetcast(t, dev)

	done := make(chan struct{})
	svc.SendKeycode(udap.KeyVolumeUp, command.Listener{
		OnSuccess: func([]byte) { close(done) },
		OnError: func(err error) {
			t.Errorf("keycode error: %v", err)
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for keycode")
	}

	reqs := dev.requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	if reqs[0].Path != udap.PathEvent || !strings.Contains(reqs[0].Body, "<name>CursorVisible</name>") {
		t.Errorf("first request = %s %q", reqs[0].Path, reqs[0].Body)
	}
	if !strings.Contains(reqs[0].Body, "<value>false</value>") {
		t.Errorf("cursor body = %q", reqs[0].Body)
	}
	if reqs[1].Path != udap.PathCommand || !strings.Contains(reqs[1].Body, "<name>HandleKeyInput</name>") {
		t.Errorf("second request = %s %q", reqs[1].Path, reqs[1].Body)
	}
	if !strings.Contains(reqs[1].Body, "<value>24</value>") {
		t.Errorf("key input body = %q", reqs[1].Body)
	}
}

func TestNetcastGetVolumeStatus(t *testing.T) {
	dev := newFakeDevice(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("target") != udap.TargetVolumeInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>
<envelope><dataList name="Volume Info">
<data><mute>false</mute><minLevel>0</minLevel><maxLevel>100</maxLevel><level>42</level></data>
</dataList></envelope>`)
	})
	svc := newTestNetcast(t, dev)

	type result struct {
		status core.VolumeStatus
		err    error
	}
	ch := make(chan result, 1)
	svc.GetVolumeStatus(func(s core.VolumeStatus) {
		ch <- result{status: s}
	}, func(err error) {
		ch <- result{err: err}
	})

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("GetVolumeStatus: %v", res.err)
		}
		if res.status.Mute {
			t.Error("Mute = true, want false")
		}
		if res.status.Volume != 0.42 {
			t.Errorf("Volume = %v, want 0.42", res.status.Volume)
		}
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for volume status")
	}
}

func TestNetcastSetVolumeWithoutRendererNotSupported(t *testing.T) {
	dev := newFakeDevice(t, nil)
	svc := newTestNetcast(t, dev)

	errCh := make(chan error, 1)
	svc.SetVolume(0.5, command.Listener{
		OnSuccess: func([]byte) { errCh <- nil },
		OnError:   func(err error) { errCh <- err },
	})

	select {
	case err := <-errCh:
		var cmdErr *core.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Code != http.StatusServiceUnavailable {
			t.Fatalf("error = %v, want not-supported CommandError", err)
		}
	case <-time.After(serviceTestTimeout):
		t.Fatal("timed out waiting for error")
	}
}
