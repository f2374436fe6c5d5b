package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castlink/castlink/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "castlink",
	Short: "castlink - control TVs and media renderers on the local network",
	Long: `castlink discovers DLNA renderers, Netcast and webOS TVs over SSDP and
drives them: media playback, volume, channels, apps, key input.

Use "castlink [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var deviceTarget string

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceTarget, "device", "d", "",
		"Target device: UUID, friendly name or IP address")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}
