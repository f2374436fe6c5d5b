package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/castlink/castlink/internal/app"
	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/discovery"
	"github.com/castlink/castlink/pkg/service"
)

const (
	discoverTimeout = 10 * time.Second
	connectTimeout  = 60 * time.Second
	commandTimeout  = 15 * time.Second
)

// session holds a running app plus the device resolved from --device.
type session struct {
	app *app.App
	dev *discovery.ConnectableDevice
}

// openSession starts discovery and waits for the device named by --device.
func openSession() (*session, error) {
	if deviceTarget == "" {
		return nil, fmt.Errorf("--device is required (UUID, friendly name or IP)")
	}

	a, err := app.New()
	if err != nil {
		return nil, err
	}

	found := make(chan *discovery.ConnectableDevice, 1)
	a.Manager.SetListener(deviceWaiter{target: deviceTarget, found: found})
	if err := a.Manager.Start(); err != nil {
		a.Close()
		return nil, err
	}

	select {
	case dev := <-found:
		return &session{app: a, dev: dev}, nil
	case <-time.After(discoverTimeout):
		a.Close()
		return nil, fmt.Errorf("device %q not found within %v", deviceTarget, discoverTimeout)
	}
}

func (s *session) close() {
	s.dev.Disconnect()
	s.app.Close()
}

// deviceWaiter resolves the first device matching the target string.
type deviceWaiter struct {
	target string
	found  chan *discovery.ConnectableDevice
}

func (w deviceWaiter) matches(d *discovery.ConnectableDevice) bool {
	t := strings.ToLower(w.target)
	return strings.ToLower(d.UUID()) == t ||
		strings.ToLower(d.FriendlyName()) == t ||
		d.IPAddress() == w.target
}

func (w deviceWaiter) OnDeviceAdded(d *discovery.ConnectableDevice) {
	if w.matches(d) {
		select {
		case w.found <- d:
		default:
		}
	}
}

func (w deviceWaiter) OnDeviceUpdated(d *discovery.ConnectableDevice) { w.OnDeviceAdded(d) }
func (w deviceWaiter) OnDeviceRemoved(d *discovery.ConnectableDevice) {}
func (w deviceWaiter) OnDiscoveryFailed(err error) {
	fmt.Fprintf(os.Stderr, "discovery error: %v\n", err)
}

// connectService connects one service, driving pairing from stdin when
// the device asks for a key.
func (s *session) connectService(svc service.DeviceService) error {
	done := make(chan error, 1)
	svc.SetListener(connectWaiter{svc: svc, done: done})
	svc.Connect()

	select {
	case err := <-done:
		return err
	case <-time.After(connectTimeout):
		return fmt.Errorf("connect to %s timed out", svc.ID())
	}
}

type connectWaiter struct {
	svc  service.DeviceService
	done chan error
}

func (w connectWaiter) OnConnectionSuccess(service.DeviceService) {
	select {
	case w.done <- nil:
	default:
	}
}

func (w connectWaiter) OnConnectionFailure(_ service.DeviceService, err error) {
	select {
	case w.done <- err:
	default:
	}
}

func (w connectWaiter) OnPairingRequired(_ service.DeviceService, pt core.PairingType) {
	switch pt {
	case core.PairingPinCode:
		fmt.Printf("Enter the pairing key shown on the TV: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case w.done <- fmt.Errorf("read pairing key: %w", err):
			default:
			}
			return
		}
		w.svc.SendPairingKey(strings.TrimSpace(line))
	case core.PairingPrompt:
		fmt.Println("Accept the connection prompt on the TV...")
	}
}

func (w connectWaiter) OnDisconnect(service.DeviceService, error) {}

// pickService returns a connected service supporting the capability.
func (s *session) pickService(c core.Capability) (service.DeviceService, error) {
	svc, ok := s.dev.ServiceFor(c)
	if !ok {
		return nil, fmt.Errorf("device %q does not support %s", s.dev.FriendlyName(), c)
	}
	if svc.State() != core.StateConnected {
		if err := s.connectService(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// await turns a callback-style command into a blocking call.
func await(run func(l command.Listener)) error {
	done := make(chan error, 1)
	run(command.Listener{
		OnSuccess: func([]byte) { done <- nil },
		OnError:   func(err error) { done <- err },
	})
	select {
	case err := <-done:
		return err
	case <-time.After(commandTimeout):
		return fmt.Errorf("command timed out")
	}
}
