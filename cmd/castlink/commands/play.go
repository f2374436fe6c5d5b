package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
)

// mediaControl is satisfied by all three service variants.
type mediaControl interface {
	Play(l command.Listener)
	Pause(l command.Listener)
	Stop(l command.Listener)
}

// mediaPlayer launches media by URL, producing a session.
type mediaPlayer interface {
	PlayMedia(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error))
	DisplayImage(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error))
}

var (
	playURL   string
	playTitle string
	playMime  string
)

var playCmd = &cobra.Command{
	Use:   "play [pause|stop|resume]",
	Short: "Control media playback, or cast a media URL",
	Long: `Without --url, send a transport command (resume by default).
With --url, push the media to the device and start playback.

Examples:
  castlink play --device tv --url http://example.com/movie.mp4 --title "Movie"
  castlink play pause --device tv
  castlink play stop --device tv
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playURL, "url", "", "Media URL to cast")
	playCmd.Flags().StringVar(&playTitle, "title", "", "Media title")
	playCmd.Flags().StringVar(&playMime, "mime", "", "MIME type (guessed from the URL when empty)")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	if playURL != "" {
		return castMedia(s)
	}

	svc, err := s.pickService(core.MediaPlay)
	if err != nil {
		return err
	}
	media, ok := svc.(mediaControl)
	if !ok {
		return fmt.Errorf("service %s has no media control", svc.ID())
	}

	action := "resume"
	if len(args) == 1 {
		action = args[0]
	}
	switch action {
	case "resume", "play":
		return await(media.Play)
	case "pause":
		return await(media.Pause)
	case "stop":
		return await(media.Stop)
	default:
		return fmt.Errorf("unknown playback action %q", action)
	}
}

func castMedia(s *session) error {
	svc, err := s.pickService(core.MediaPlayVideo)
	if err != nil {
		return err
	}
	player, ok := svc.(mediaPlayer)
	if !ok {
		return fmt.Errorf("service %s cannot play media URLs", svc.ID())
	}

	info := core.MediaInfo{URL: playURL, Title: playTitle, MimeType: playMime}
	done := make(chan error, 1)
	player.PlayMedia(info,
		func(session *core.LaunchSession) {
			fmt.Printf("Playing on %s (session %q)\n", svc.ID(), session.SessionID)
			done <- nil
		},
		func(err error) { done <- err },
	)
	return <-done
}
