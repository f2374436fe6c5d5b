package core

// PlayState is the playback state reported by a media renderer.
type PlayState int

const (
	PlayStateUnknown PlayState = iota
	PlayStateIdle
	PlayStatePlaying
	PlayStatePaused
	PlayStateBuffering
	PlayStateFinished
)

func (s PlayState) String() string {
	switch s {
	case PlayStateIdle:
		return "idle"
	case PlayStatePlaying:
		return "playing"
	case PlayStatePaused:
		return "paused"
	case PlayStateBuffering:
		return "buffering"
	case PlayStateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MediaInfo describes a media item handed to a renderer.
type MediaInfo struct {
	URL         string
	MimeType    string
	Title       string
	Description string
	IconURL     string
}

// AppInfo identifies one installed application on a device.
type AppInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AppState reports whether an application is currently running or visible.
type AppState struct {
	Running bool
	Visible bool
}

// ChannelInfo describes one TV channel.
type ChannelInfo struct {
	ID          string
	Name        string
	Number      string
	MajorNumber int
	MinorNumber int
	PhysicalNum int
	SourceIndex int
}

// ExternalInputInfo describes one external input (HDMI 1, AV, ...).
type ExternalInputInfo struct {
	ID        string
	Name      string
	Connected bool
	IconURL   string
}

// VolumeStatus couples the current volume level with the mute flag.
type VolumeStatus struct {
	Volume float64 // 0.0 .. 1.0
	Mute   bool
}
