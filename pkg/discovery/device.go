package discovery

import (
	"sync"

	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/service"
)

// ConnectableDevice is one logical device on the network, aggregating the
// device services discovered under a single UUID (a TV typically exposes
// both a DLNA renderer and a vendor control service). The manager owns the
// service map; callers read through snapshot accessors.
type ConnectableDevice struct {
	mu           sync.RWMutex
	uuid         string
	friendlyName string
	modelName    string
	ipAddress    string
	services     map[string]service.DeviceService
}

func newConnectableDevice(desc *core.ServiceDescription) *ConnectableDevice {
	return &ConnectableDevice{
		uuid:         desc.UUID,
		friendlyName: desc.FriendlyName,
		modelName:    desc.ModelName,
		ipAddress:    desc.IPAddress,
		services:     make(map[string]service.DeviceService),
	}
}

func (d *ConnectableDevice) UUID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.uuid
}

func (d *ConnectableDevice) FriendlyName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.friendlyName
}

func (d *ConnectableDevice) ModelName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.modelName
}

func (d *ConnectableDevice) IPAddress() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ipAddress
}

// Service returns the device service registered under the given ID
// ("DLNA", "Netcast TV", "webOS TV").
func (d *ConnectableDevice) Service(id string) (service.DeviceService, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	svc, ok := d.services[id]
	return svc, ok
}

// Services returns a snapshot of the attached device services.
func (d *ConnectableDevice) Services() []service.DeviceService {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]service.DeviceService, 0, len(d.services))
	for _, svc := range d.services {
		out = append(out, svc)
	}
	return out
}

// Capabilities returns the union of all attached services' capabilities.
func (d *ConnectableDevice) Capabilities() core.CapabilitySet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	union := core.NewCapabilitySet()
	for _, svc := range d.services {
		for _, c := range svc.Capabilities().List() {
			union.Add(c)
		}
	}
	return union
}

// HasCapability reports whether any attached service supports c.
func (d *ConnectableDevice) HasCapability(c core.Capability) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, svc := range d.services {
		if svc.Capabilities().Has(c) {
			return true
		}
	}
	return false
}

// ServiceFor returns an attached service supporting the capability.
func (d *ConnectableDevice) ServiceFor(c core.Capability) (service.DeviceService, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, svc := range d.services {
		if svc.Capabilities().Has(c) {
			return svc, true
		}
	}
	return nil, false
}

// Connect connects every attached service.
func (d *ConnectableDevice) Connect() {
	for _, svc := range d.Services() {
		svc.Connect()
	}
}

// Disconnect disconnects every attached service.
func (d *ConnectableDevice) Disconnect() {
	for _, svc := range d.Services() {
		svc.Disconnect()
	}
}

// SetListener installs the listener on every attached service.
func (d *ConnectableDevice) SetListener(l service.Listener) {
	for _, svc := range d.Services() {
		svc.SetListener(l)
	}
}

func (d *ConnectableDevice) setService(id string, svc service.DeviceService) {
	d.mu.Lock()
	d.services[id] = svc
	d.mu.Unlock()
}

func (d *ConnectableDevice) removeService(id string) (service.DeviceService, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	svc := d.services[id]
	delete(d.services, id)
	return svc, len(d.services)
}

func (d *ConnectableDevice) updateFrom(desc *core.ServiceDescription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.FriendlyName != "" {
		d.friendlyName = desc.FriendlyName
	}
	if desc.ModelName != "" {
		d.modelName = desc.ModelName
	}
	if desc.IPAddress != "" {
		d.ipAddress = desc.IPAddress
	}
}
