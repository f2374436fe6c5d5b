package ssdp

import (
	"net"
	"sync"
	"time"

	"github.com/castlink/castlink/pkg/logger"
)

const (
	// DefaultSearchInterval is how often an active provider re-sends
	// M-SEARCH.
	DefaultSearchInterval = 10 * time.Second
	// DefaultMX is the response delay ceiling advertised in M-SEARCH.
	DefaultMX = 5
	// DefaultTTL is assumed when a device advertises no CACHE-CONTROL.
	DefaultTTL = 30 * time.Second

	expirySweepInterval = 1 * time.Second
)

// Signature identifies one discovered service: device UUID, service type
// URN, and the device description URL.
type Signature struct {
	UUID        string
	ServiceType string
	Location    string
}

// Listener receives provider events. Found/lost are deduplicated per
// UUID+URN; search errors are reported and retried on the next tick.
type Listener interface {
	OnServiceFound(sig Signature)
	OnServiceLost(sig Signature)
	OnSearchError(err error)
}

type cacheKey struct {
	uuid string
	urn  string
}

type cacheEntry struct {
	sig     Signature
	expires time.Time
}

// Provider sends periodic M-SEARCH datagrams for its search targets and
// listens for unsolicited NOTIFYs on the shared socket, deduplicating by
// UUID+URN with the advertised cache-control TTL.
type Provider struct {
	socket   *Socket
	targets  []string
	interval time.Duration
	listener Listener
	log      logger.Logger

	mu       sync.Mutex
	entries  map[cacheKey]*cacheEntry
	running  bool
	socketID int
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewProvider builds a provider searching for the given targets
// ("ssdp:all", device type URNs, "udap:rootservice", ...). A zero interval
// falls back to DefaultSearchInterval.
func NewProvider(socket *Socket, targets []string, interval time.Duration, listener Listener, log logger.Logger) *Provider {
	if interval == 0 {
		interval = DefaultSearchInterval
	}
	return &Provider{
		socket:   socket,
		targets:  targets,
		interval: interval,
		listener: listener,
		log:      log,
		entries:  make(map[cacheKey]*cacheEntry),
	}
}

// Start acquires the shared socket and begins the search/expiry loops.
// Starting a running provider is a no-op.
func (p *Provider) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}

	id, err := p.socket.Acquire(p.handleDatagram)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.socketID = id
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	p.wg.Add(2)
	go p.searchLoop(stopCh)
	go p.expiryLoop(stopCh)

	p.log.Info("discovery provider started",
		logger.Int("targets", len(p.targets)),
		logger.Duration("interval", p.interval))
	return nil
}

// Stop ceases searching and listening and releases the shared socket.
// The signature cache is cleared without emitting lost events.
func (p *Provider) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	id := p.socketID
	p.entries = make(map[cacheKey]*cacheEntry)
	p.mu.Unlock()

	p.wg.Wait()
	p.socket.Release(id)
	p.log.Info("discovery provider stopped")
}

// Reset clears the signature cache without stopping the socket, so every
// live service is re-emitted as found on its next advertisement.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.entries = make(map[cacheKey]*cacheEntry)
	p.mu.Unlock()
}

func (p *Provider) searchLoop(stopCh chan struct{}) {
	defer p.wg.Done()

	// Search immediately on startup, then on the tick.
	p.search()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.search()
		case <-stopCh:
			return
		}
	}
}

func (p *Provider) search() {
	for _, st := range p.targets {
		req := BuildSearchRequest(st, DefaultMX)
		if err := p.socket.Send([]byte(req)); err != nil {
			p.log.Warn("ssdp search failed",
				logger.String("target", st),
				logger.Error(err))
			p.listener.OnSearchError(err)
			// Retried on the next scheduled tick.
			return
		}
	}
}

func (p *Provider) expiryLoop(stopCh chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweepExpired()
		case <-stopCh:
			return
		}
	}
}

func (p *Provider) sweepExpired() {
	now := time.Now()

	p.mu.Lock()
	var lost []Signature
	for key, e := range p.entries {
		if now.After(e.expires) {
			lost = append(lost, e.sig)
			delete(p.entries, key)
		}
	}
	p.mu.Unlock()

	for _, sig := range lost {
		p.log.Debug("service ttl expired",
			logger.String("uuid", sig.UUID),
			logger.String("urn", sig.ServiceType))
		p.listener.OnServiceLost(sig)
	}
}

func (p *Provider) handleDatagram(data []byte, src *net.UDPAddr) {
	msg, err := Parse(data)
	if err != nil {
		p.log.Debug("dropping malformed ssdp datagram",
			logger.String("src", src.String()),
			logger.Error(err))
		return
	}
	if msg.Kind == KindSearch || msg.Kind == KindUnknown {
		return
	}

	if !p.matchesTarget(msg.Target()) {
		return
	}

	uuid, urn := SplitUSN(msg.USN)
	if uuid == "" {
		return
	}
	if urn == "" {
		urn = msg.Target()
	}
	sig := Signature{UUID: uuid, ServiceType: urn, Location: msg.Location}
	key := cacheKey{uuid: uuid, urn: urn}

	if msg.Kind == KindByeBye {
		p.mu.Lock()
		_, known := p.entries[key]
		delete(p.entries, key)
		p.mu.Unlock()
		if known {
			p.listener.OnServiceLost(sig)
		}
		return
	}

	ttl := msg.MaxAge
	if ttl == 0 {
		ttl = DefaultTTL
	}

	p.mu.Lock()
	entry, known := p.entries[key]
	if known {
		// Known signature inside its TTL: refresh, do not re-emit.
		entry.expires = time.Now().Add(ttl)
		entry.sig = sig
	} else {
		p.entries[key] = &cacheEntry{sig: sig, expires: time.Now().Add(ttl)}
	}
	p.mu.Unlock()

	if !known {
		p.log.Debug("service found",
			logger.String("uuid", uuid),
			logger.String("urn", urn),
			logger.String("location", sig.Location))
		p.listener.OnServiceFound(sig)
	}
}

func (p *Provider) matchesTarget(target string) bool {
	if target == "" {
		return false
	}
	for _, st := range p.targets {
		if st == "ssdp:all" || st == target {
			return true
		}
	}
	return false
}
