package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/castlink/castlink/internal/app"
	"github.com/castlink/castlink/pkg/discovery"
)

var discoverFor time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the local network for controllable devices",
	Long: `Send SSDP searches and print every device found, with the device
services it exposes and whether they require pairing.

Examples:
  castlink discover
  castlink discover --for 30s
`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverFor, "for", 10*time.Second, "How long to scan")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	a, err := app.New()
	if err != nil {
		return err
	}
	defer a.Close()

	a.Manager.SetListener(discoverPrinter{})
	if err := a.Manager.Start(); err != nil {
		return err
	}

	fmt.Printf("Scanning for %v...\n\n", discoverFor)
	time.Sleep(discoverFor)

	devices := a.Manager.Devices()
	fmt.Printf("\n%d device(s) found.\n", len(devices))
	return nil
}

type discoverPrinter struct{}

func (discoverPrinter) OnDeviceAdded(d *discovery.ConnectableDevice) {
	fmt.Printf("+ %s  %s  [%s]\n", d.FriendlyName(), d.IPAddress(), serviceIDs(d))
	fmt.Printf("  uuid: %s\n", d.UUID())
}

func (discoverPrinter) OnDeviceUpdated(d *discovery.ConnectableDevice) {
	fmt.Printf("~ %s  [%s]\n", d.FriendlyName(), serviceIDs(d))
}

func (discoverPrinter) OnDeviceRemoved(d *discovery.ConnectableDevice) {
	fmt.Printf("- %s\n", d.FriendlyName())
}

func (discoverPrinter) OnDiscoveryFailed(err error) {
	fmt.Printf("! discovery error: %v\n", err)
}

func serviceIDs(d *discovery.ConnectableDevice) string {
	ids := make([]string, 0, 3)
	for _, svc := range d.Services() {
		id := svc.ID()
		if svc.RequiresPairing() {
			id += "*"
		}
		ids = append(ids, id)
	}
	return strings.Join(ids, ", ")
}

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair with a device that requires it",
	Long: `Connect to the pairing-required service of the target device and
complete pairing. Netcast TVs show a key to type back; webOS TVs show an
accept prompt. The granted key is persisted in the config store.

Example:
  castlink pair --device "Living Room TV"
`,
	RunE: runPair,
}

func init() {
	rootCmd.AddCommand(pairCmd)
}

func runPair(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	for _, svc := range s.dev.Services() {
		if !svc.RequiresPairing() {
			continue
		}
		fmt.Printf("Pairing with %s...\n", svc.ID())
		if err := s.connectService(svc); err != nil {
			return err
		}
		fmt.Printf("Paired with %s.\n", svc.ID())
		return nil
	}
	return fmt.Errorf("device %q has no service that requires pairing", s.dev.FriendlyName())
}
