package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
)

// volumeControl is satisfied by all three service variants.
type volumeControl interface {
	VolumeUp(l command.Listener)
	VolumeDown(l command.Listener)
	SetVolume(volume float64, l command.Listener)
	GetVolume(onSuccess func(float64), onError func(error))
	SetMute(mute bool, l command.Listener)
}

var volCmd = &cobra.Command{
	Use:   "vol [up|down|mute|unmute|<0-100>]",
	Short: "Adjust or read the device volume",
	Long: `Without arguments, print the current volume. Otherwise step it,
set an absolute level, or toggle mute.

Examples:
  castlink vol --device tv
  castlink vol up --device tv
  castlink vol 25 --device tv
  castlink vol mute --device tv
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVol,
}

func init() {
	rootCmd.AddCommand(volCmd)
}

func runVol(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	svc, err := s.pickService(core.VolumeUpDown)
	if err != nil {
		return err
	}
	vol, ok := svc.(volumeControl)
	if !ok {
		return fmt.Errorf("service %s has no volume control", svc.ID())
	}

	if len(args) == 0 {
		done := make(chan error, 1)
		vol.GetVolume(
			func(level float64) {
				fmt.Printf("Volume: %d\n", int(level*100))
				done <- nil
			},
			func(err error) { done <- err },
		)
		return <-done
	}

	switch args[0] {
	case "up":
		return await(vol.VolumeUp)
	case "down":
		return await(vol.VolumeDown)
	case "mute":
		return await(func(l command.Listener) { vol.SetMute(true, l) })
	case "unmute":
		return await(func(l command.Listener) { vol.SetMute(false, l) })
	default:
		level, err := strconv.Atoi(args[0])
		if err != nil || level < 0 || level > 100 {
			return fmt.Errorf("volume must be up, down, mute, unmute or 0-100, got %q", args[0])
		}
		return await(func(l command.Listener) { vol.SetVolume(float64(level)/100.0, l) })
	}
}
