// Package service implements the per-protocol device services: the shared
// connection state machine plus the DLNA, Netcast and webOS variants. Each
// variant maps capability calls onto its wire format and reports
// capabilities it does not implement as not-supported without touching the
// network.
package service

import (
	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
)

// Service IDs. A ConnectableDevice keys its services by these.
const (
	IDDLNA      = "DLNA"
	IDNetcastTV = "Netcast TV"
	IDWebOSTV   = "webOS TV"
)

// SSDP search targets per service variant.
const (
	FilterDLNA      = "urn:schemas-upnp-org:device:MediaRenderer:1"
	FilterNetcastTV = "udap:rootservice"
	FilterWebOSTV   = "urn:lge-com:service:webos-second-screen:1"
)

// Listener receives async connect, pairing and error events from a device
// service. The service holds the listener for lookup only; callers own it.
type Listener interface {
	OnConnectionSuccess(svc DeviceService)
	OnConnectionFailure(svc DeviceService, err error)
	OnPairingRequired(svc DeviceService, pairing core.PairingType)
	OnDisconnect(svc DeviceService, err error)
}

// DeviceService is one protocol-bound capability unit of a device.
type DeviceService interface {
	command.Sender

	ID() string
	Description() *core.ServiceDescription
	// UpdateDescription replaces the description wholesale on re-discovery.
	UpdateDescription(desc *core.ServiceDescription)
	Config() *core.ServiceConfig
	// SetConfigSaver installs the hook that persists the config when a
	// pairing credential is granted.
	SetConfigSaver(save func(cfg *core.ServiceConfig))
	Capabilities() core.CapabilitySet
	State() core.ConnectionState

	// Connect starts the connect/pairing flow and returns immediately.
	// Outcomes arrive through the Listener. Calling Connect while not in
	// the initial state is a no-op.
	Connect()
	// Disconnect sends a best-effort goodbye, drops subscriptions and
	// returns the service to the initial state.
	Disconnect()
	// SendPairingKey continues a pairing flow started by Connect.
	SendPairingKey(key string)
	RequiresPairing() bool
	SetListener(l Listener)
}
