package ssdp

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/castlink/castlink/pkg/logger"
)

type recordListener struct {
	mu     sync.Mutex
	found  []Signature
	lost   []Signature
	errors []error
}

func (l *recordListener) OnServiceFound(sig Signature) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.found = append(l.found, sig)
}

func (l *recordListener) OnServiceLost(sig Signature) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lost = append(l.lost, sig)
}

func (l *recordListener) OnSearchError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, err)
}

func (l *recordListener) counts() (found, lost int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.found), len(l.lost)
}

var testSrc = &net.UDPAddr{IP: net.IPv4(192, 168, 1, 40), Port: 1900}

func notifyAlive(uuid, urn string, maxAge int) []byte {
	return []byte(fmt.Sprintf("NOTIFY * HTTP/1.1\r\n"+
		"NT: %s\r\nNTS: ssdp:alive\r\n"+
		"USN: uuid:%s::%s\r\n"+
		"CACHE-CONTROL: max-age=%d\r\n"+
		"LOCATION: http://192.168.1.40:8080/desc.xml\r\n\r\n", urn, uuid, urn, maxAge))
}

func notifyByeBye(uuid, urn string) []byte {
	return []byte(fmt.Sprintf("NOTIFY * HTTP/1.1\r\n"+
		"NT: %s\r\nNTS: ssdp:byebye\r\n"+
		"USN: uuid:%s::%s\r\n\r\n", urn, uuid, urn))
}

const rendererURN = "urn:schemas-upnp-org:device:MediaRenderer:1"

func newTestProvider(l Listener, targets ...string) *Provider {
	if len(targets) == 0 {
		targets = []string{rendererURN}
	}
	return NewProvider(nil, targets, time.Second, l, logger.Nop())
}

func TestProviderDedupWithinTTL(t *testing.T) {
	l := &recordListener{}
	p := newTestProvider(l)

	datagram := notifyAlive("abc123", rendererURN, 1800)
	p.handleDatagram(datagram, testSrc)
	p.handleDatagram(datagram, testSrc)
	p.handleDatagram(datagram, testSrc)

	found, lost := l.counts()
	if found != 1 {
		t.Errorf("found events = %d, want 1 (refresh must not re-emit)", found)
	}
	if lost != 0 {
		t.Errorf("lost events = %d, want 0", lost)
	}
}

func TestProviderTTLExpiryEmitsExactlyOneLost(t *testing.T) {
	l := &recordListener{}
	p := newTestProvider(l)

	p.handleDatagram(notifyAlive("abc123", rendererURN, 1), testSrc)

	// Force the entry past its deadline instead of sleeping.
	p.mu.Lock()
	for _, e := range p.entries {
		e.expires = time.Now().Add(-time.Second)
	}
	p.mu.Unlock()

	p.sweepExpired()
	p.sweepExpired() // second sweep must be a no-op

	found, lost := l.counts()
	if found != 1 || lost != 1 {
		t.Errorf("events = (%d found, %d lost), want (1, 1)", found, lost)
	}
	if lost == 1 && l.lost[0].UUID != "abc123" {
		t.Errorf("lost UUID = %q, want abc123", l.lost[0].UUID)
	}
}

func TestProviderByeBye(t *testing.T) {
	l := &recordListener{}
	p := newTestProvider(l)

	p.handleDatagram(notifyAlive("abc123", rendererURN, 1800), testSrc)
	p.handleDatagram(notifyByeBye("abc123", rendererURN), testSrc)

	found, lost := l.counts()
	if found != 1 || lost != 1 {
		t.Errorf("events = (%d found, %d lost), want (1, 1)", found, lost)
	}

	// byebye for an unknown signature is silent
	p.handleDatagram(notifyByeBye("nobody", rendererURN), testSrc)
	if _, lost := l.counts(); lost != 1 {
		t.Error("byebye for unknown signature emitted a lost event")
	}
}

func TestProviderIgnoresForeignTargets(t *testing.T) {
	l := &recordListener{}
	p := newTestProvider(l)

	p.handleDatagram(notifyAlive("abc123", "urn:other-vendor:device:Printer:1", 1800), testSrc)
	if found, _ := l.counts(); found != 0 {
		t.Errorf("found events = %d, want 0 for unmatched target", found)
	}
}

func TestProviderIgnoresForeignTargetsHelper(t *testing.T) {
	p := newTestProvider(&recordListener{})
	if p.matchesTarget("urn:other:thing:1") {
		t.Error("matchesTarget accepted a foreign URN")
	}
	if !p.matchesTarget(rendererURN) {
		t.Error("matchesTarget rejected a registered URN")
	}

	all := newTestProvider(&recordListener{}, "ssdp:all")
	if !all.matchesTarget("urn:anything:at:all:1") {
		t.Error("ssdp:all provider rejected a target")
	}
}

func TestProviderDropsMalformedDatagrams(t *testing.T) {
	l := &recordListener{}
	p := newTestProvider(l)

	p.handleDatagram([]byte("not ssdp at all"), testSrc)
	p.handleDatagram(nil, testSrc)

	found, lost := l.counts()
	if found != 0 || lost != 0 {
		t.Errorf("malformed datagrams produced events: (%d found, %d lost)", found, lost)
	}
}

func TestProviderReset(t *testing.T) {
	l := &recordListener{}
	p := newTestProvider(l)

	p.handleDatagram(notifyAlive("abc123", rendererURN, 1800), testSrc)
	p.Reset()

	// After a reset the same advertisement is new again.
	p.handleDatagram(notifyAlive("abc123", rendererURN, 1800), testSrc)
	if found, _ := l.counts(); found != 2 {
		t.Errorf("found events after reset = %d, want 2", found)
	}
}
