package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
)

// keyControl is satisfied by the Netcast and webOS services.
type keyControl interface {
	Up(l command.Listener)
	Down(l command.Listener)
	Left(l command.Listener)
	Right(l command.Listener)
	OK(l command.Listener)
	Back(l command.Listener)
	Home(l command.Listener)
}

var keyCmd = &cobra.Command{
	Use:   "key <up|down|left|right|ok|back|home>",
	Short: "Send a remote-control key press",
	Long: `Send one navigation key to the target device.

Example:
  castlink key ok --device 192.168.1.40
`,
	Args: cobra.ExactArgs(1),
	RunE: runKey,
}

func init() {
	rootCmd.AddCommand(keyCmd)
}

func runKey(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	svc, err := s.pickService(core.KeyOK)
	if err != nil {
		return err
	}
	keys, ok := svc.(keyControl)
	if !ok {
		return fmt.Errorf("service %s has no key control", svc.ID())
	}

	var run func(l command.Listener)
	switch strings.ToLower(args[0]) {
	case "up":
		run = keys.Up
	case "down":
		run = keys.Down
	case "left":
		run = keys.Left
	case "right":
		run = keys.Right
	case "ok", "enter":
		run = keys.OK
	case "back":
		run = keys.Back
	case "home":
		run = keys.Home
	default:
		return fmt.Errorf("unknown key %q", args[0])
	}
	return await(run)
}
