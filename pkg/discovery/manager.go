// Package discovery aggregates SSDP providers into a roster of connectable
// devices. A single goroutine owns the roster, so discovery events for one
// UUID are strictly ordered and the listener never observes a half-applied
// mutation.
package discovery

import (
	"context"
	"net/http"
	"time"

	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/eventserver"
	"github.com/castlink/castlink/pkg/logger"
	"github.com/castlink/castlink/pkg/service"
	"github.com/castlink/castlink/pkg/ssdp"
	"github.com/castlink/castlink/pkg/store"
	"github.com/castlink/castlink/pkg/upnp"
)

// Swappable in tests.
var fetchDescription = upnp.FetchDescription

// PairingLevel controls whether services that require pairing are eligible
// for discovery.
type PairingLevel int

const (
	// PairingOff skips pairing-required services. Lowering the level at
	// runtime disconnects and detaches those already discovered.
	PairingOff PairingLevel = iota
	// PairingOn makes all registered services eligible.
	PairingOn
)

// Listener receives roster changes. Callbacks run on the manager goroutine;
// do not block in them.
type Listener interface {
	OnDeviceAdded(d *ConnectableDevice)
	OnDeviceUpdated(d *ConnectableDevice)
	OnDeviceRemoved(d *ConnectableDevice)
	OnDiscoveryFailed(err error)
}

// Factory builds a device service from a fetched description and its
// persisted configuration.
type Factory func(desc *core.ServiceDescription, cfg *core.ServiceConfig) service.DeviceService

// Registration binds a search target URN to a device service type.
type Registration struct {
	ServiceID       string
	Filter          string
	RequiresPairing bool
	Factory         Factory
}

// Options carries the manager's dependencies. Store defaults to an
// in-memory implementation, HTTPClient to a 10s-timeout client.
type Options struct {
	Socket         *ssdp.Socket
	Store          store.ConfigStore
	Events         *eventserver.Server
	HTTPClient     *http.Client
	SearchInterval time.Duration
	Logger         logger.Logger
}

// Manager aggregates discovery providers, maps found signatures to device
// services through the registration table, and maintains the device roster.
type Manager struct {
	log      logger.Logger
	socket   *ssdp.Socket
	store    store.ConfigStore
	events   *eventserver.Server
	client   *http.Client
	interval time.Duration

	regs map[string]Registration // by filter URN

	// All fields below are owned by the run goroutine.
	devices      map[string]*ConnectableDevice
	listener     Listener
	pairingLevel PairingLevel

	provider *ssdp.Provider
	tasks    chan func()
	stopCh   chan struct{}
	done     chan struct{}
	running  bool
}

// NewManager builds a manager. Call Register (or RegisterDefaultServices)
// and SetListener before Start.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	st := opts.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Manager{
		log:          log.Named("discovery"),
		socket:       opts.Socket,
		store:        st,
		events:       opts.Events,
		client:       client,
		interval:     opts.SearchInterval,
		regs:         make(map[string]Registration),
		devices:      make(map[string]*ConnectableDevice),
		pairingLevel: PairingOff,
	}
}

// Register adds a device service type to the registry. Must be called
// before Start.
func (m *Manager) Register(reg Registration) {
	m.regs[reg.Filter] = reg
}

// RegisterDefaultServices registers the built-in service types: DLNA,
// Netcast and webOS.
func (m *Manager) RegisterDefaultServices() {
	log := m.log
	events := m.events
	m.Register(Registration{
		ServiceID: service.IDDLNA,
		Filter:    service.FilterDLNA,
		Factory: func(desc *core.ServiceDescription, cfg *core.ServiceConfig) service.DeviceService {
			return service.NewDLNA(desc, cfg, events, log)
		},
	})
	m.Register(Registration{
		ServiceID:       service.IDNetcastTV,
		Filter:          service.FilterNetcastTV,
		RequiresPairing: true,
		Factory: func(desc *core.ServiceDescription, cfg *core.ServiceConfig) service.DeviceService {
			return service.NewNetcast(desc, cfg, log)
		},
	})
	m.Register(Registration{
		ServiceID:       service.IDWebOSTV,
		Filter:          service.FilterWebOSTV,
		RequiresPairing: true,
		Factory: func(desc *core.ServiceDescription, cfg *core.ServiceConfig) service.DeviceService {
			return service.NewWebOS(desc, cfg, log)
		},
	})
}

// SetListener installs the roster listener. Safe before Start; after Start
// the swap is serialized on the manager goroutine.
func (m *Manager) SetListener(l Listener) {
	if !m.running {
		m.listener = l
		return
	}
	m.enqueue(func() { m.listener = l })
}

// SetPairingLevel changes the eligibility of pairing-required services.
// Downgrading to PairingOff disconnects and detaches those already in the
// roster.
func (m *Manager) SetPairingLevel(level PairingLevel) {
	if !m.running {
		m.pairingLevel = level
		return
	}
	m.enqueue(func() { m.applyPairingLevel(level) })
}

// Start opens the shared socket and begins searching for every registered
// filter.
func (m *Manager) Start() error {
	if m.running {
		return nil
	}

	targets := make([]string, 0, len(m.regs))
	for filter := range m.regs {
		targets = append(targets, filter)
	}

	m.tasks = make(chan func(), 64)
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.provider = ssdp.NewProvider(m.socket, targets, m.interval, providerAdapter{m}, m.log)

	if err := m.provider.Start(); err != nil {
		return err
	}
	m.running = true
	go m.run()
	m.log.Info("discovery started", logger.Int("targets", len(targets)))
	return nil
}

// Stop halts discovery, disconnects every service and clears the roster.
func (m *Manager) Stop() {
	if !m.running {
		return
	}
	m.running = false
	m.provider.Stop()
	close(m.stopCh)
	<-m.done

	for uuid, dev := range m.devices {
		dev.Disconnect()
		delete(m.devices, uuid)
	}
	m.log.Info("discovery stopped")
}

// Devices returns a snapshot of the roster.
func (m *Manager) Devices() []*ConnectableDevice {
	if !m.running {
		return nil
	}
	out := make(chan []*ConnectableDevice, 1)
	m.enqueue(func() {
		devs := make([]*ConnectableDevice, 0, len(m.devices))
		for _, d := range m.devices {
			devs = append(devs, d)
		}
		out <- devs
	})
	select {
	case devs := <-out:
		return devs
	case <-m.stopCh:
		return nil
	}
}

// Device returns the roster entry for a UUID.
func (m *Manager) Device(uuid string) (*ConnectableDevice, bool) {
	if !m.running {
		return nil, false
	}
	out := make(chan *ConnectableDevice, 1)
	m.enqueue(func() { out <- m.devices[uuid] })
	select {
	case d := <-out:
		return d, d != nil
	case <-m.stopCh:
		return nil, false
	}
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case task := <-m.tasks:
			task()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) enqueue(task func()) {
	select {
	case m.tasks <- task:
	case <-m.stopCh:
	}
}

// providerAdapter funnels ssdp events onto the manager goroutine.
type providerAdapter struct{ m *Manager }

func (a providerAdapter) OnServiceFound(sig ssdp.Signature) { a.m.handleFound(sig) }
func (a providerAdapter) OnServiceLost(sig ssdp.Signature)  { a.m.handleLost(sig) }

func (a providerAdapter) OnSearchError(err error) {
	a.m.enqueue(func() {
		if l := a.m.listener; l != nil {
			l.OnDiscoveryFailed(err)
		}
	})
}

func (m *Manager) handleFound(sig ssdp.Signature) {
	reg, ok := m.regs[sig.ServiceType]
	if !ok {
		return
	}

	// Fetch the description off the roster goroutine; attach once parsed.
	go func() {
		desc, err := fetchDescription(m.client, sig.Location)
		if err != nil {
			m.log.Warn("description fetch failed",
				logger.String("location", sig.Location), logger.Error(err))
			m.enqueue(func() {
				if l := m.listener; l != nil {
					l.OnDiscoveryFailed(err)
				}
			})
			return
		}
		if desc.UUID == "" {
			desc.UUID = sig.UUID
		}
		desc.ServiceFilter = sig.ServiceType
		desc.LocationURL = sig.Location
		m.enqueue(func() { m.attach(sig, reg, desc) })
	}()
}

func (m *Manager) attach(sig ssdp.Signature, reg Registration, desc *core.ServiceDescription) {
	if reg.RequiresPairing && m.pairingLevel == PairingOff {
		return
	}

	dev := m.devices[sig.UUID]
	created := dev == nil
	if created {
		dev = newConnectableDevice(desc)
		m.devices[sig.UUID] = dev
	} else {
		dev.updateFrom(desc)
	}

	if svc, ok := dev.Service(reg.ServiceID); ok {
		svc.UpdateDescription(desc)
		m.notifyUpdated(dev)
		return
	}

	cfg, err := store.GetOrCreate(context.Background(), m.store, sig.UUID)
	if err != nil {
		m.log.Warn("config load failed", logger.String("uuid", sig.UUID), logger.Error(err))
		cfg = core.NewServiceConfig(sig.UUID)
	}

	svc := reg.Factory(desc, cfg)
	svc.SetConfigSaver(m.persistConfig)
	dev.setService(reg.ServiceID, svc)
	m.wireSiblings(dev)

	m.log.Info("service attached",
		logger.String("uuid", sig.UUID),
		logger.String("service", reg.ServiceID),
		logger.String("name", dev.FriendlyName()))

	if created {
		m.notifyAdded(dev)
	} else {
		m.notifyUpdated(dev)
	}
}

// persistConfig writes a granted pairing credential through to the store.
// Called from service goroutines, so it must not touch roster state.
func (m *Manager) persistConfig(cfg *core.ServiceConfig) {
	if err := m.store.Put(context.Background(), cfg); err != nil {
		m.log.Warn("config save failed",
			logger.String("uuid", cfg.UUID), logger.Error(err))
	}
}

// wireSiblings hands a Netcast service the co-discovered DLNA renderer so
// media playback and absolute volume route over UPnP.
func (m *Manager) wireSiblings(dev *ConnectableDevice) {
	ncSvc, ok := dev.Service(service.IDNetcastTV)
	if !ok {
		return
	}
	dlnaSvc, ok := dev.Service(service.IDDLNA)
	if !ok {
		return
	}
	nc, okNC := ncSvc.(*service.Netcast)
	dlna, okDL := dlnaSvc.(*service.DLNA)
	if okNC && okDL {
		nc.SetDLNARenderer(dlna)
	}
}

func (m *Manager) handleLost(sig ssdp.Signature) {
	reg, ok := m.regs[sig.ServiceType]
	if !ok {
		return
	}
	m.enqueue(func() {
		dev := m.devices[sig.UUID]
		if dev == nil {
			return
		}
		svc, remaining := dev.removeService(reg.ServiceID)
		if svc == nil {
			return
		}
		if svc.State() != core.StateInitial {
			svc.Disconnect()
		}
		if remaining == 0 {
			delete(m.devices, sig.UUID)
			m.notifyRemoved(dev)
		} else {
			m.notifyUpdated(dev)
		}
	})
}

func (m *Manager) applyPairingLevel(level PairingLevel) {
	prev := m.pairingLevel
	m.pairingLevel = level
	if level >= prev {
		return
	}

	// Downgrade: detach every pairing-required service.
	for uuid, dev := range m.devices {
		changed := false
		for _, svc := range dev.Services() {
			if !svc.RequiresPairing() {
				continue
			}
			removed, _ := dev.removeService(svc.ID())
			if removed == nil {
				continue
			}
			if removed.State() != core.StateInitial {
				removed.Disconnect()
			}
			changed = true
		}
		if !changed {
			continue
		}
		if len(dev.Services()) == 0 {
			delete(m.devices, uuid)
			m.notifyRemoved(dev)
		} else {
			m.notifyUpdated(dev)
		}
	}
}

func (m *Manager) notifyAdded(d *ConnectableDevice) {
	if m.listener != nil {
		m.listener.OnDeviceAdded(d)
	}
}

func (m *Manager) notifyUpdated(d *ConnectableDevice) {
	if m.listener != nil {
		m.listener.OnDeviceUpdated(d)
	}
}

func (m *Manager) notifyRemoved(d *ConnectableDevice) {
	if m.listener != nil {
		m.listener.OnDeviceRemoved(d)
	}
}
