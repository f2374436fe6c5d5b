package service

import (
	"sync"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
)

// base carries the state shared by every service variant: description,
// config, connection state, capability set, subscriptions and the event
// listener. Variants embed it and implement the protocol specifics.
type base struct {
	id   string
	caps core.CapabilitySet
	log  logger.Logger

	mu       sync.Mutex
	state    core.ConnectionState
	desc     *core.ServiceDescription
	cfg      *core.ServiceConfig
	save     func(cfg *core.ServiceConfig)
	listener Listener
	subs     []*command.Subscription
}

func newBase(id string, desc *core.ServiceDescription, cfg *core.ServiceConfig, caps core.CapabilitySet, log logger.Logger) base {
	return base{
		id:    id,
		caps:  caps,
		log:   log,
		state: core.StateInitial,
		desc:  desc,
		cfg:   cfg,
	}
}

func (b *base) ID() string { return b.id }

func (b *base) Description() *core.ServiceDescription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.desc
}

func (b *base) UpdateDescription(desc *core.ServiceDescription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.desc = desc
}

func (b *base) Config() *core.ServiceConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// SetConfigSaver installs the hook that persists the config after a
// pairing credential changes. Without one the credential lives only for
// the process lifetime.
func (b *base) SetConfigSaver(save func(cfg *core.ServiceConfig)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.save = save
}

// saveConfig pushes the current config through the saver hook.
func (b *base) saveConfig() {
	b.mu.Lock()
	save, cfg := b.save, b.cfg
	b.mu.Unlock()
	if save != nil {
		save(cfg)
	}
}

func (b *base) Capabilities() core.CapabilitySet { return b.caps }

func (b *base) State() core.ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) SetListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = l
}

func (b *base) setState(s core.ConnectionState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// compareAndSetState advances to next only when the current state is want.
func (b *base) compareAndSetState(want, next core.ConnectionState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != want {
		return false
	}
	b.state = next
	return true
}

func (b *base) getListener() Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener
}

func (b *base) notifyConnectionSuccess(svc DeviceService) {
	if l := b.getListener(); l != nil {
		l.OnConnectionSuccess(svc)
	}
}

func (b *base) notifyConnectionFailure(svc DeviceService, err error) {
	if l := b.getListener(); l != nil {
		l.OnConnectionFailure(svc, err)
	}
}

func (b *base) notifyPairingRequired(svc DeviceService, pairing core.PairingType) {
	if l := b.getListener(); l != nil {
		l.OnPairingRequired(svc, pairing)
	}
}

func (b *base) notifyDisconnect(svc DeviceService, err error) {
	if l := b.getListener(); l != nil {
		l.OnDisconnect(svc, err)
	}
}

func (b *base) addSubscription(s *command.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

func (b *base) removeSubscription(s *command.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// takeSubscriptions empties the subscription set and returns the previous
// contents, for teardown on disconnect.
func (b *base) takeSubscriptions() []*command.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs
	b.subs = nil
	return subs
}

func (b *base) subscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
