package command

import "sync"

// Unsubscriber removes a subscription from its owner. Implemented by device
// services and by the event callback server.
type Unsubscriber interface {
	Unsubscribe(s *Subscription)
}

// ListenerToken identifies one listener added to a subscription so it can be
// removed later.
type ListenerToken int

// Subscription is a named, repeatable command bound to an ordered list of
// listeners. Events for one subscription are delivered in FIFO order; no
// ordering holds across different subscriptions.
type Subscription struct {
	// Key names the event stream ("playState", an ssap:// URI, ...).
	Key string
	// Target and Payload carry protocol specifics for the initial
	// subscribe request, when the protocol needs one.
	Target  string
	Payload string
	// SID is the subscription identifier assigned by the device
	// (DLNA SUBSCRIBE response header).
	SID string

	owner Unsubscriber

	mu           sync.Mutex
	listeners    []subListener
	nextToken    ListenerToken
	unsubscribed bool
}

type subListener struct {
	token ListenerToken
	l     Listener
}

// NewSubscription builds a subscription owned by the given unsubscriber.
func NewSubscription(owner Unsubscriber, key, target, payload string) *Subscription {
	return &Subscription{
		owner:   owner,
		Key:     key,
		Target:  target,
		Payload: payload,
	}
}

// AddListener appends a listener; each listener receives every event, in the
// order listeners were added.
func (s *Subscription) AddListener(l Listener) ListenerToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextToken++
	s.listeners = append(s.listeners, subListener{token: s.nextToken, l: l})
	return s.nextToken
}

// RemoveListener drops the listener identified by token. Unknown tokens are
// ignored.
func (s *Subscription) RemoveListener(token ListenerToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sl := range s.listeners {
		if sl.token == token {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Notify delivers one event payload to every listener, in order. Callers
// dispatch from a single goroutine per subscription to keep FIFO delivery.
func (s *Subscription) Notify(payload []byte) {
	for _, sl := range s.snapshot() {
		if sl.l.OnSuccess != nil {
			sl.l.OnSuccess(payload)
		}
	}
}

// NotifyError delivers an error to every listener, in order.
func (s *Subscription) NotifyError(err error) {
	for _, sl := range s.snapshot() {
		if sl.l.OnError != nil {
			sl.l.OnError(err)
		}
	}
}

func (s *Subscription) snapshot() []subListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subListener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

// Unsubscribe removes this subscription from its owner. Idempotent: the
// second and later calls do nothing, and no duplicate protocol-level
// unsubscribe is sent.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return
	}
	s.unsubscribed = true
	s.mu.Unlock()

	if s.owner != nil {
		s.owner.Unsubscribe(s)
	}
}

// Active reports whether Unsubscribe has not been called yet.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unsubscribed
}
