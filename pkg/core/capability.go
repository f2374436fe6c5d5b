package core

// Capability tags the operations a device service variant supports. The set
// is fixed per variant at registration time; callers check HasCapability
// instead of probing concrete types.
type Capability string

// Media player / media control capabilities.
const (
	MediaPlay        Capability = "MediaControl.Play"
	MediaPause       Capability = "MediaControl.Pause"
	MediaStop        Capability = "MediaControl.Stop"
	MediaRewind      Capability = "MediaControl.Rewind"
	MediaFastForward Capability = "MediaControl.FastForward"
	MediaSeek        Capability = "MediaControl.Seek"
	MediaDuration    Capability = "MediaControl.Duration"
	MediaPosition    Capability = "MediaControl.Position"
	MediaPlayState   Capability = "MediaControl.PlayState"
	MediaNext        Capability = "MediaControl.Next"
	MediaPrevious    Capability = "MediaControl.Previous"

	MediaPlayVideo    Capability = "MediaPlayer.PlayVideo"
	MediaPlayAudio    Capability = "MediaPlayer.PlayAudio"
	MediaDisplayImage Capability = "MediaPlayer.DisplayImage"
	MediaClose        Capability = "MediaPlayer.Close"
	MediaInfoGet      Capability = "MediaPlayer.MediaInfoGet"
)

// Volume capabilities.
const (
	VolumeGet       Capability = "VolumeControl.VolumeGet"
	VolumeSet       Capability = "VolumeControl.VolumeSet"
	VolumeUpDown    Capability = "VolumeControl.VolumeUpDown"
	VolumeMuteGet   Capability = "VolumeControl.MuteGet"
	VolumeMuteSet   Capability = "VolumeControl.MuteSet"
	VolumeSubscribe Capability = "VolumeControl.VolumeSubscribe"
)

// TV / channel capabilities.
const (
	TVChannelUp        Capability = "TVControl.ChannelUp"
	TVChannelDown      Capability = "TVControl.ChannelDown"
	TVChannelGet       Capability = "TVControl.ChannelGet"
	TVChannelSet       Capability = "TVControl.ChannelSet"
	TVChannelList      Capability = "TVControl.ChannelList"
	TVChannelSubscribe Capability = "TVControl.ChannelSubscribe"
)

// App launcher capabilities.
const (
	AppLaunch     Capability = "Launcher.App"
	AppClose      Capability = "Launcher.AppClose"
	AppList       Capability = "Launcher.AppList"
	AppStateGet   Capability = "Launcher.AppState"
	AppStore      Capability = "Launcher.AppStore"
	LaunchBrowser Capability = "Launcher.Browser"
	LaunchYouTube Capability = "Launcher.YouTube"
)

// Input capabilities.
const (
	KeyUp       Capability = "KeyControl.Up"
	KeyDown     Capability = "KeyControl.Down"
	KeyLeft     Capability = "KeyControl.Left"
	KeyRight    Capability = "KeyControl.Right"
	KeyOK       Capability = "KeyControl.OK"
	KeyBack     Capability = "KeyControl.Back"
	KeyHome     Capability = "KeyControl.Home"
	KeySendCode Capability = "KeyControl.SendKeyCode"

	MouseMove   Capability = "MouseControl.Move"
	MouseClick  Capability = "MouseControl.Click"
	MouseScroll Capability = "MouseControl.Scroll"

	TextInput       Capability = "TextInputControl.Send"
	TextInputEnter  Capability = "TextInputControl.Enter"
	TextInputDelete Capability = "TextInputControl.Delete"

	PowerOff Capability = "PowerControl.Off"
	PowerOn  Capability = "PowerControl.On"

	ExternalInputPicker Capability = "ExternalInputControl.Picker"
)

// CapabilitySet is the fixed set of capability tags a service variant
// supports.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given tags.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Add inserts a tag into the set.
func (s CapabilitySet) Add(c Capability) {
	s[c] = struct{}{}
}

// Has reports whether the tag is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the tags as a slice. Order is unspecified.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	return out
}
