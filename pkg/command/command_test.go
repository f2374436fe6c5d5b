package command

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
)

type executorSender struct {
	exec *HTTPExecutor
}

func (s *executorSender) SendCommand(cmd *Command) {
	s.exec.Execute(cmd)
}

func waitResult(t *testing.T) (Listener, func() ([]byte, error)) {
	t.Helper()
	type result struct {
		payload []byte
		err     error
	}
	ch := make(chan result, 1)
	l := Listener{
		OnSuccess: func(payload []byte) { ch <- result{payload: payload} },
		OnError:   func(err error) { ch <- result{err: err} },
	}
	wait := func() ([]byte, error) {
		select {
		case r := <-ch:
			return r.payload, r.err
		case <-time.After(5 * time.Second):
			t.Fatal("command did not resolve")
			return nil, nil
		}
	}
	return l, wait
}

func TestCommandSuccessDeliversBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		fmt.Fprint(w, "<envelope>ok</envelope>")
	}))
	defer srv.Close()

	sender := &executorSender{exec: NewHTTPExecutor(0, "UDAP/2.0", logger.Nop())}
	l, wait := waitResult(t)
	New(sender, srv.URL, "<payload/>", l).Send()

	payload, err := wait()
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if string(payload) != "<envelope>ok</envelope>" {
		t.Errorf("payload = %q", payload)
	}
}

func TestCommandUnauthorizedMapsTo401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := &executorSender{exec: NewHTTPExecutor(0, "", logger.Nop())}
	l, wait := waitResult(t)
	New(sender, srv.URL, "<cmd/>", l).Send()

	_, err := wait()
	var cmdErr *core.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %T (%v), want CommandError", err, err)
	}
	if cmdErr.Code != 401 || cmdErr.Description != "Unauthorized" {
		t.Errorf("CommandError = {%d, %q}, want {401, \"Unauthorized\"}", cmdErr.Code, cmdErr.Description)
	}
}

func TestCommandNetworkFailureMapsToTransportError(t *testing.T) {
	sender := &executorSender{exec: NewHTTPExecutor(time.Second, "", logger.Nop())}
	l, wait := waitResult(t)
	// Port 1 is never listening.
	New(sender, "http://127.0.0.1:1/udap/api/command", "<cmd/>", l).Send()

	_, err := wait()
	var trErr *core.TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("error = %T (%v), want TransportError", err, err)
	}
}

func TestCommandResolvesExactlyOnce(t *testing.T) {
	var successes, failures atomic.Int32
	cmd := New(nil, "http://example.invalid", "", Listener{
		OnSuccess: func([]byte) { successes.Add(1) },
		OnError:   func(error) { failures.Add(1) },
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				cmd.Complete([]byte("ok"))
			} else {
				cmd.Fail(errors.New("boom"))
			}
		}(i)
	}
	wg.Wait()

	if total := successes.Load() + failures.Load(); total != 1 {
		t.Errorf("resolutions = %d (%d success, %d error), want exactly 1",
			total, successes.Load(), failures.Load())
	}
}

func TestCommandNilContinuationsTolerated(t *testing.T) {
	cmd := New(nil, "http://example.invalid", "", Listener{})
	cmd.Complete([]byte("ok"))
	cmd.Fail(errors.New("late"))
}

func TestExecutorSetsHeaders(t *testing.T) {
	var gotUA, gotCT, gotSOAP string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCT = r.Header.Get("Content-Type")
		gotSOAP = r.Header.Get("SOAPAction")
	}))
	defer srv.Close()

	sender := &executorSender{exec: NewHTTPExecutor(0, "UDAP/2.0", logger.Nop())}
	l, wait := waitResult(t)
	cmd := New(sender, srv.URL, "<cmd/>", l)
	cmd.Headers = map[string]string{"SOAPAction": `"urn:x#Play"`}
	cmd.Send()
	if _, err := wait(); err != nil {
		t.Fatalf("command failed: %v", err)
	}

	if gotUA != "UDAP/2.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotCT != `text/xml; charset="utf-8"` {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotSOAP != `"urn:x#Play"` {
		t.Errorf("SOAPAction = %q", gotSOAP)
	}
}
