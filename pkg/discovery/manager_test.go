package discovery

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
	"github.com/castlink/castlink/pkg/service"
	"github.com/castlink/castlink/pkg/ssdp"
	"github.com/castlink/castlink/pkg/store"
)

const managerTestTimeout = 5 * time.Second

// fakeService is a minimal DeviceService for roster tests.
type fakeService struct {
	id       string
	pairing  bool
	mu       sync.Mutex
	desc     *core.ServiceDescription
	cfg      *core.ServiceConfig
	save     func(cfg *core.ServiceConfig)
	state    core.ConnectionState
	updates  int
	hangups  int
	listener service.Listener
}

func newFakeService(id string, pairing bool, desc *core.ServiceDescription, cfg *core.ServiceConfig) *fakeService {
	return &fakeService{id: id, pairing: pairing, desc: desc, cfg: cfg, state: core.StateInitial}
}

func (f *fakeService) SendCommand(*command.Command) {}
func (f *fakeService) ID() string                   { return f.id }
func (f *fakeService) RequiresPairing() bool        { return f.pairing }
func (f *fakeService) SendPairingKey(string)        {}

func (f *fakeService) Description() *core.ServiceDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desc
}

func (f *fakeService) UpdateDescription(desc *core.ServiceDescription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.desc = desc
	f.updates++
}

func (f *fakeService) descriptionUpdates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *fakeService) Config() *core.ServiceConfig { return f.cfg }

func (f *fakeService) SetConfigSaver(save func(cfg *core.ServiceConfig)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.save = save
}

func (f *fakeService) configSaver() func(cfg *core.ServiceConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save
}

func (f *fakeService) Capabilities() core.CapabilitySet { return core.NewCapabilitySet() }

func (f *fakeService) State() core.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeService) Connect() {
	f.mu.Lock()
	f.state = core.StateConnected
	f.mu.Unlock()
}

func (f *fakeService) Disconnect() {
	f.mu.Lock()
	f.state = core.StateInitial
	f.hangups++
	f.mu.Unlock()
}

func (f *fakeService) disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hangups
}

func (f *fakeService) SetListener(l service.Listener) {
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
}

// rosterRecorder forwards roster callbacks onto channels.
type rosterRecorder struct {
	added   chan string
	updated chan string
	removed chan string
	failed  chan error
}

func newRosterRecorder() *rosterRecorder {
	return &rosterRecorder{
		added:   make(chan string, 8),
		updated: make(chan string, 8),
		removed: make(chan string, 8),
		failed:  make(chan error, 8),
	}
}

func (r *rosterRecorder) OnDeviceAdded(d *ConnectableDevice)   { r.added <- d.UUID() }
func (r *rosterRecorder) OnDeviceUpdated(d *ConnectableDevice) { r.updated <- d.UUID() }
func (r *rosterRecorder) OnDeviceRemoved(d *ConnectableDevice) { r.removed <- d.UUID() }
func (r *rosterRecorder) OnDiscoveryFailed(err error)          { r.failed <- err }

func waitUUID(t *testing.T, ch chan string, what string) string {
	t.Helper()
	select {
	case uuid := <-ch:
		return uuid
	case <-time.After(managerTestTimeout):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

const (
	testURNOne = "urn:test:service:one:1"
	testURNTwo = "urn:test:service:two:1"
)

// startTestManager runs the roster goroutine without a network provider;
// tests feed signatures straight into the handlers.
func startTestManager(t *testing.T, regs ...Registration) (*Manager, *rosterRecorder) {
	t.Helper()
	return startTestManagerWithStore(t, nil, regs...)
}

func startTestManagerWithStore(t *testing.T, st store.ConfigStore, regs ...Registration) (*Manager, *rosterRecorder) {
	t.Helper()
	m := NewManager(Options{Store: st, Logger: logger.Nop()})
	for _, reg := range regs {
		m.Register(reg)
	}
	rec := newRosterRecorder()
	m.SetListener(rec)

	m.tasks = make(chan func(), 64)
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.run()

	t.Cleanup(func() {
		m.running = false
		close(m.stopCh)
		<-m.done
	})
	return m, rec
}

// stubDescriptions replaces the description fetch with a canned lookup for
// the duration of one test.
func stubDescriptions(t *testing.T, fn func(location string) (*core.ServiceDescription, error)) {
	t.Helper()
	orig := fetchDescription
	fetchDescription = func(_ *http.Client, location string) (*core.ServiceDescription, error) {
		return fn(location)
	}
	t.Cleanup(func() { fetchDescription = orig })
}

func testRegistration(id, urn string, pairing bool) Registration {
	return Registration{
		ServiceID:       id,
		Filter:          urn,
		RequiresPairing: pairing,
		Factory: func(desc *core.ServiceDescription, cfg *core.ServiceConfig) service.DeviceService {
			return newFakeService(id, pairing, desc, cfg)
		},
	}
}

func TestManagerAttachCreatesDevice(t *testing.T) {
	m, rec := startTestManager(t, testRegistration("one", testURNOne, false))
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "Living Room TV", IPAddress: "10.0.0.9"}, nil
	})

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://10.0.0.9/desc.xml"})

	if got := waitUUID(t, rec.added, "device added"); got != "uuid-1" {
		t.Fatalf("added UUID = %q, want uuid-1", got)
	}

	dev, ok := m.Device("uuid-1")
	if !ok {
		t.Fatal("device not in roster")
	}
	if dev.FriendlyName() != "Living Room TV" {
		t.Errorf("FriendlyName = %q", dev.FriendlyName())
	}
	if _, ok := dev.Service("one"); !ok {
		t.Error("service one not attached")
	}
}

func TestManagerSecondServiceUpdatesDevice(t *testing.T) {
	m, rec := startTestManager(t,
		testRegistration("one", testURNOne, false),
		testRegistration("two", testURNTwo, false),
	)
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "TV"}, nil
	})

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://x/one.xml"})
	waitUUID(t, rec.added, "first service")

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNTwo, Location: "http://x/two.xml"})
	waitUUID(t, rec.updated, "second service")

	select {
	case uuid := <-rec.added:
		t.Fatalf("second service raised added for %q, want updated", uuid)
	default:
	}

	devs := m.Devices()
	if len(devs) != 1 {
		t.Fatalf("roster size = %d, want 1", len(devs))
	}
	if got := len(devs[0].Services()); got != 2 {
		t.Errorf("device has %d services, want 2", got)
	}
}

func TestManagerRediscoveryUpdatesDescription(t *testing.T) {
	m, rec := startTestManager(t, testRegistration("one", testURNOne, false))
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "TV"}, nil
	})

	sig := ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://x/desc.xml"}
	m.handleFound(sig)
	waitUUID(t, rec.added, "device added")

	m.handleFound(sig)
	waitUUID(t, rec.updated, "device updated")

	dev, _ := m.Device("uuid-1")
	svc, _ := dev.Service("one")
	if got := svc.(*fakeService).descriptionUpdates(); got != 1 {
		t.Errorf("description updates = %d, want 1", got)
	}
}

func TestManagerLostRemovesDevice(t *testing.T) {
	m, rec := startTestManager(t, testRegistration("one", testURNOne, false))
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "TV"}, nil
	})

	sig := ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://x/desc.xml"}
	m.handleFound(sig)
	waitUUID(t, rec.added, "device added")

	dev, _ := m.Device("uuid-1")
	svc, _ := dev.Service("one")
	svc.Connect()

	m.handleLost(sig)
	if got := waitUUID(t, rec.removed, "device removed"); got != "uuid-1" {
		t.Fatalf("removed UUID = %q, want uuid-1", got)
	}

	if _, ok := m.Device("uuid-1"); ok {
		t.Error("device still in roster after loss")
	}
	if got := svc.(*fakeService).disconnects(); got != 1 {
		t.Errorf("disconnects = %d, want 1", got)
	}
}

func TestManagerLostKeepsDeviceWithRemainingServices(t *testing.T) {
	m, rec := startTestManager(t,
		testRegistration("one", testURNOne, false),
		testRegistration("two", testURNTwo, false),
	)
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "TV"}, nil
	})

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://x/one.xml"})
	waitUUID(t, rec.added, "first service")
	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNTwo, Location: "http://x/two.xml"})
	waitUUID(t, rec.updated, "second service")

	m.handleLost(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNTwo})
	waitUUID(t, rec.updated, "service detached")

	dev, ok := m.Device("uuid-1")
	if !ok {
		t.Fatal("device dropped while a service remains")
	}
	if _, ok := dev.Service("two"); ok {
		t.Error("lost service still attached")
	}
	if _, ok := dev.Service("one"); !ok {
		t.Error("surviving service missing")
	}
}

func TestManagerPairingLevelGatesAttachment(t *testing.T) {
	m, rec := startTestManager(t, testRegistration("one", testURNOne, true))
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "TV"}, nil
	})

	sig := ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://x/desc.xml"}
	m.handleFound(sig)

	select {
	case uuid := <-rec.added:
		t.Fatalf("pairing service attached at PairingOff: %q", uuid)
	case <-time.After(100 * time.Millisecond):
	}

	m.SetPairingLevel(PairingOn)
	m.handleFound(sig)
	waitUUID(t, rec.added, "device added after pairing enabled")
}

func TestManagerPairingDowngradeDetaches(t *testing.T) {
	m, rec := startTestManager(t, testRegistration("one", testURNOne, true))
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "TV"}, nil
	})
	m.SetPairingLevel(PairingOn)

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://x/desc.xml"})
	waitUUID(t, rec.added, "device added")

	dev, _ := m.Device("uuid-1")
	svc, _ := dev.Service("one")
	svc.Connect()

	m.SetPairingLevel(PairingOff)
	waitUUID(t, rec.removed, "device removed on downgrade")

	if _, ok := m.Device("uuid-1"); ok {
		t.Error("device still in roster after downgrade")
	}
	if got := svc.(*fakeService).disconnects(); got != 1 {
		t.Errorf("disconnects = %d, want 1", got)
	}
}

func TestManagerIgnoresUnknownTargets(t *testing.T) {
	m, _ := startTestManager(t, testRegistration("one", testURNOne, false))

	fetched := make(chan string, 1)
	stubDescriptions(t, func(location string) (*core.ServiceDescription, error) {
		fetched <- location
		return &core.ServiceDescription{}, nil
	})

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: "urn:other:service:1", Location: "http://x/desc.xml"})

	select {
	case loc := <-fetched:
		t.Fatalf("description fetched for unregistered target: %q", loc)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManagerFetchFailureReported(t *testing.T) {
	m, rec := startTestManager(t, testRegistration("one", testURNOne, false))
	fetchErr := errors.New("unreachable")
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return nil, fetchErr
	})

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://x/desc.xml"})

	select {
	case err := <-rec.failed:
		if !errors.Is(err, fetchErr) {
			t.Errorf("failure = %v, want %v", err, fetchErr)
		}
	case <-time.After(managerTestTimeout):
		t.Fatal("timed out waiting for discovery failure")
	}
}

func TestManagerPersistsGrantedPairingKey(t *testing.T) {
	st := store.NewMemoryStore()
	m, rec := startTestManagerWithStore(t, st, testRegistration("one", testURNOne, true))
	m.SetPairingLevel(PairingOn)
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "TV"}, nil
	})

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: testURNOne, Location: "http://x/desc.xml"})
	waitUUID(t, rec.added, "device added")

	dev, _ := m.Device("uuid-1")
	svc, _ := dev.Service("one")
	fake := svc.(*fakeService)

	save := fake.configSaver()
	if save == nil {
		t.Fatal("no config saver installed on attach")
	}

	// A granted credential must reach the store, not just the in-memory
	// config handed to the service.
	fake.cfg.PairingKey = "1234"
	save(fake.cfg)

	stored, err := st.Get(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if stored.PairingKey != "1234" {
		t.Errorf("stored PairingKey = %q, want 1234", stored.PairingKey)
	}
}

func TestManagerSiblingWiring(t *testing.T) {
	m, rec := startTestManager(t)
	m.RegisterDefaultServices()
	m.SetPairingLevel(PairingOn)
	stubDescriptions(t, func(string) (*core.ServiceDescription, error) {
		return &core.ServiceDescription{FriendlyName: "TV", IPAddress: "10.0.0.9", Port: 8080}, nil
	})

	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: service.FilterDLNA, Location: "http://x/dlna.xml"})
	waitUUID(t, rec.added, "DLNA attached")
	m.handleFound(ssdp.Signature{UUID: "uuid-1", ServiceType: service.FilterNetcastTV, Location: "http://x/udap.xml"})
	waitUUID(t, rec.updated, "Netcast attached")

	dev, _ := m.Device("uuid-1")
	ncSvc, ok := dev.Service(service.IDNetcastTV)
	if !ok {
		t.Fatal("Netcast service missing")
	}
	// Sibling wiring hands Netcast the DLNA renderer, unlocking absolute
	// volume and media playback.
	if !ncSvc.Capabilities().Has(core.MediaPlayVideo) {
		t.Error("Netcast did not gain renderer-backed capabilities")
	}
}
