// Package command implements the single in-flight request/response unit used
// by all device services, and the long-lived subscription unit built on top
// of it. A command resolves through exactly one of its success or error
// continuations, exactly once.
package command

import (
	"net/http"
	"sync"
)

// HTTP methods used on top of the standard set. DLNA eventing uses the
// SUBSCRIBE/UNSUBSCRIBE verbs.
const (
	MethodGet         = http.MethodGet
	MethodPost        = http.MethodPost
	MethodDelete      = http.MethodDelete
	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"
)

// Listener is the success/error continuation pair attached to a command.
// Either field may be nil when the caller does not care about that outcome.
type Listener struct {
	OnSuccess func(payload []byte)
	OnError   func(err error)
}

// Sender dispatches a command over its protocol transport. Implemented by
// each device service variant.
type Sender interface {
	SendCommand(cmd *Command)
}

// Command is one request: target endpoint, serialized payload, HTTP method
// and the response listener. It is transient; discarded after resolution.
type Command struct {
	owner    Sender
	Target   string
	Method   string
	Payload  string
	Headers  map[string]string
	listener Listener

	once sync.Once
}

// New builds a POST command. Target is an absolute URL (or a protocol URI
// for non-HTTP services, e.g. ssap://).
func New(owner Sender, target, payload string, l Listener) *Command {
	return &Command{
		owner:    owner,
		Target:   target,
		Method:   MethodPost,
		Payload:  payload,
		listener: l,
	}
}

// NewGet builds a GET command with no payload.
func NewGet(owner Sender, target string, l Listener) *Command {
	c := New(owner, target, "", l)
	c.Method = MethodGet
	return c
}

// Send dispatches the command on its own goroutine and returns immediately.
// The listener fires later from that goroutine, exactly once.
func (c *Command) Send() {
	go c.owner.SendCommand(c)
}

// Complete resolves the command successfully with the raw response body.
// Later calls to Complete or Fail are ignored.
func (c *Command) Complete(payload []byte) {
	c.once.Do(func() {
		if c.listener.OnSuccess != nil {
			c.listener.OnSuccess(payload)
		}
	})
}

// Fail resolves the command with an error. Later calls to Complete or Fail
// are ignored.
func (c *Command) Fail(err error) {
	c.once.Do(func() {
		if c.listener.OnError != nil {
			c.listener.OnError(err)
		}
	})
}
