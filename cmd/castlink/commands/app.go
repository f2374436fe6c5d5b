package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castlink/castlink/pkg/core"
)

// appControl is satisfied by the Netcast and webOS services.
type appControl interface {
	GetAppList(onSuccess func([]core.AppInfo), onError func(error))
	LaunchApp(appID string, onSuccess func(*core.LaunchSession), onError func(error))
	CloseSession(s *core.LaunchSession, onDone func(error))
}

var appCmd = &cobra.Command{
	Use:   "app <list|launch|close> [id]",
	Short: "List, launch or close applications on the device",
	Long: `Examples:
  castlink app list --device tv
  castlink app launch youtube.leanback.v4 --device tv
  castlink app close youtube.leanback.v4 --device tv
`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runApp,
}

func init() {
	rootCmd.AddCommand(appCmd)
}

func runApp(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	svc, err := s.pickService(core.AppLaunch)
	if err != nil {
		return err
	}
	apps, ok := svc.(appControl)
	if !ok {
		return fmt.Errorf("service %s has no app control", svc.ID())
	}

	switch args[0] {
	case "list":
		done := make(chan error, 1)
		apps.GetAppList(
			func(list []core.AppInfo) {
				for _, a := range list {
					fmt.Printf("%-40s %s\n", a.ID, a.Name)
				}
				fmt.Printf("%d app(s)\n", len(list))
				done <- nil
			},
			func(err error) { done <- err },
		)
		return <-done

	case "launch":
		if len(args) < 2 {
			return fmt.Errorf("app launch needs an app id")
		}
		done := make(chan error, 1)
		apps.LaunchApp(args[1],
			func(session *core.LaunchSession) {
				fmt.Printf("Launched %s\n", session.AppID)
				done <- nil
			},
			func(err error) { done <- err },
		)
		return <-done

	case "close":
		if len(args) < 2 {
			return fmt.Errorf("app close needs an app id")
		}
		done := make(chan error, 1)
		session := core.SessionForApp(args[1])
		apps.CloseSession(session, func(err error) { done <- err })
		return <-done

	default:
		return fmt.Errorf("unknown app action %q", args[0])
	}
}
