package service

import (
	"net/url"
	"strconv"
	"sync"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
	"github.com/castlink/castlink/pkg/udap"
)

// netcastPort is the fixed UDAP control port; discovery may advertise a
// different one.
const netcastPort = 8080

// Netcast drives a Netcast television over the UDAP HTTP/XML protocol.
// Pairing shows a PIN on screen; the key is persisted in the service config
// after a successful hello.
type Netcast struct {
	base
	exec *command.HTTPExecutor

	nmu         sync.Mutex
	dlna        *DLNA // media rendering is delegated when present
	reach       *reachabilityMonitor
	mouseOn     bool
	mouseMoving bool
	mouseDX     float64
	mouseDY     float64
	keyboard    []rune
}

// NewNetcast builds a Netcast service. The description's port is forced to
// the fixed UDAP port.
func NewNetcast(desc *core.ServiceDescription, cfg *core.ServiceConfig, log logger.Logger) *Netcast {
	desc.Port = netcastPort
	caps := core.NewCapabilitySet(
		core.MediaPlay, core.MediaPause, core.MediaStop,
		core.MediaRewind, core.MediaFastForward,
		core.VolumeGet, core.VolumeUpDown, core.VolumeMuteGet, core.VolumeMuteSet,
		core.TVChannelUp, core.TVChannelDown, core.TVChannelGet,
		core.TVChannelSet, core.TVChannelList,
		core.AppLaunch, core.AppClose, core.AppList, core.AppStateGet,
		core.LaunchBrowser, core.LaunchYouTube,
		core.KeyUp, core.KeyDown, core.KeyLeft, core.KeyRight,
		core.KeyOK, core.KeyBack, core.KeyHome, core.KeySendCode,
		core.MouseMove, core.MouseClick, core.MouseScroll,
		core.TextInput, core.TextInputEnter, core.TextInputDelete,
		core.PowerOff,
		core.ExternalInputPicker,
	)
	return &Netcast{
		base: newBase(IDNetcastTV, desc, cfg, caps, log.Named("netcast")),
		exec: command.NewHTTPExecutor(0, udap.UserAgent, log.Named("netcast")),
	}
}

// SetDLNARenderer attaches a DLNA sibling service; media playback and
// absolute volume are delegated to it.
func (n *Netcast) SetDLNARenderer(d *DLNA) {
	n.nmu.Lock()
	defer n.nmu.Unlock()
	n.dlna = d
	if d != nil {
		n.caps.Add(core.VolumeSet)
		n.caps.Add(core.MediaPlayVideo)
		n.caps.Add(core.MediaPlayAudio)
		n.caps.Add(core.MediaDisplayImage)
		n.caps.Add(core.MediaClose)
	}
}

func (n *Netcast) renderer() *DLNA {
	n.nmu.Lock()
	defer n.nmu.Unlock()
	return n.dlna
}

// RequiresPairing reports true; Netcast shows a PIN prompt on the TV.
func (n *Netcast) RequiresPairing() bool { return true }

// UpdateDescription replaces the description, keeping the fixed UDAP port.
func (n *Netcast) UpdateDescription(desc *core.ServiceDescription) {
	desc.Port = netcastPort
	n.base.UpdateDescription(desc)
}

func (n *Netcast) requestURL(path string, opts *udap.RequestOptions) string {
	desc := n.Description()
	return udap.RequestURL(desc.IPAddress, desc.Port, path, opts)
}

// SendCommand performs the HTTP round-trip for a prepared command.
func (n *Netcast) SendCommand(cmd *command.Command) {
	n.exec.Do(cmd, nil)
}

// Connect starts the connect flow: with a stored pairing key it is sent
// directly, otherwise the TV is asked to show its PIN and the listener gets
// OnPairingRequired.
func (n *Netcast) Connect() {
	if !n.compareAndSetState(core.StateInitial, core.StateConnecting) {
		n.log.Debug("connect ignored, not in initial state",
			logger.String("state", n.State().String()))
		return
	}

	if key := n.Config().PairingKey; key != "" {
		n.sendPairingKey(key)
		return
	}
	n.showPairingKey()
}

func (n *Netcast) showPairingKey() {
	body := udap.MessageBody(udap.APIPairing, []udap.Param{{Name: "name", Value: "showKey"}})
	command.New(n, n.requestURL(udap.PathPairing, nil), body, command.Listener{
		OnSuccess: func([]byte) {
			n.notifyPairingRequired(n, core.PairingPinCode)
		},
		OnError: func(err error) {
			n.setState(core.StateInitial)
			n.notifyConnectionFailure(n, err)
		},
	}).Send()
}

// SendPairingKey submits the PIN shown on screen.
func (n *Netcast) SendPairingKey(key string) {
	state := n.State()
	if state != core.StateConnecting && state != core.StateInitial {
		n.log.Debug("pairing key ignored", logger.String("state", state.String()))
		return
	}
	n.sendPairingKey(key)
}

func (n *Netcast) sendPairingKey(key string) {
	n.setState(core.StatePairing)

	desc := n.Description()
	body := udap.MessageBody(udap.APIPairing, []udap.Param{
		{Name: "name", Value: "hello"},
		{Name: "value", Value: key},
		{Name: "port", Value: strconv.Itoa(desc.Port)},
	})
	command.New(n, n.requestURL(udap.PathPairing, nil), body, command.Listener{
		OnSuccess: func([]byte) {
			n.Config().PairingKey = key
			n.saveConfig()
			n.setState(core.StateConnected)
			n.startReachability()
			n.notifyConnectionSuccess(n)
		},
		OnError: func(err error) {
			n.setState(core.StateInitial)
			n.notifyConnectionFailure(n, err)
		},
	}).Send()
}

// Disconnect sends a fire-and-forget byebye and returns to the initial
// state.
func (n *Netcast) Disconnect() {
	n.setState(core.StateDisconnecting)

	for _, sub := range n.takeSubscriptions() {
		sub.Unsubscribe()
	}

	desc := n.Description()
	body := udap.MessageBody(udap.APIPairing, []udap.Param{
		{Name: "name", Value: "byebye"},
		{Name: "port", Value: strconv.Itoa(desc.Port)},
	})
	command.New(n, n.requestURL(udap.PathPairing, nil), body, command.Listener{}).Send()

	n.nmu.Lock()
	if n.reach != nil {
		n.reach.Stop()
		n.reach = nil
	}
	n.mouseOn = false
	n.mouseMoving = false
	n.mouseDX, n.mouseDY = 0, 0
	n.nmu.Unlock()

	n.setState(core.StateInitial)
	n.notifyDisconnect(n, nil)
}

func (n *Netcast) startReachability() {
	desc := n.Description()
	n.nmu.Lock()
	defer n.nmu.Unlock()
	if n.reach != nil {
		n.reach.Stop()
	}
	n.reach = newReachabilityMonitor(desc.IPAddress, desc.Port, n.onUnreachable, n.log)
	n.reach.Start()
}

func (n *Netcast) onUnreachable() {
	if n.State() == core.StateConnected {
		n.Disconnect()
	}
}

// Unsubscribe removes a polled subscription from the service's set.
func (n *Netcast) Unsubscribe(sub *command.Subscription) {
	n.removeSubscription(sub)
}

// setCursorVisible flips the on-screen cursor. Key input requires the
// cursor hidden first.
func (n *Netcast) setCursorVisible(visible bool, l command.Listener) {
	body := udap.MessageBody(udap.APIEvent, []udap.Param{
		{Name: "name", Value: "CursorVisible"},
		{Name: "value", Value: strconv.FormatBool(visible)},
		{Name: "mode", Value: "auto"},
	})
	command.New(n, n.requestURL(udap.PathEvent, nil), body, l).Send()
}

// SendKeycode hides the cursor, then posts a HandleKeyInput command.
func (n *Netcast) SendKeycode(code udap.Keycode, l command.Listener) {
	n.setCursorVisible(false, command.Listener{
		OnSuccess: func([]byte) {
			command.New(n, n.requestURL(udap.PathCommand, nil), udap.KeyInputBody(code), l).Send()
		},
		OnError: l.OnError,
	})
}

// Key navigation.

func (n *Netcast) Up(l command.Listener)    { n.SendKeycode(udap.KeyUp, l) }
func (n *Netcast) Down(l command.Listener)  { n.SendKeycode(udap.KeyDown, l) }
func (n *Netcast) Left(l command.Listener)  { n.SendKeycode(udap.KeyLeft, l) }
func (n *Netcast) Right(l command.Listener) { n.SendKeycode(udap.KeyRight, l) }
func (n *Netcast) OK(l command.Listener)    { n.SendKeycode(udap.KeyOK, l) }
func (n *Netcast) Back(l command.Listener)  { n.SendKeycode(udap.KeyBack, l) }
func (n *Netcast) Home(l command.Listener)  { n.SendKeycode(udap.KeyHome, l) }

// Media transport via remote keycodes.

func (n *Netcast) Play(l command.Listener)        { n.SendKeycode(udap.KeyPlay, l) }
func (n *Netcast) Pause(l command.Listener)       { n.SendKeycode(udap.KeyPause, l) }
func (n *Netcast) Stop(l command.Listener)        { n.SendKeycode(udap.KeyStop, l) }
func (n *Netcast) Rewind(l command.Listener)      { n.SendKeycode(udap.KeyRewind, l) }
func (n *Netcast) FastForward(l command.Listener) { n.SendKeycode(udap.KeyFastForward, l) }

// Volume.

func (n *Netcast) VolumeUp(l command.Listener)   { n.SendKeycode(udap.KeyVolumeUp, l) }
func (n *Netcast) VolumeDown(l command.Listener) { n.SendKeycode(udap.KeyVolumeDown, l) }

// GetVolumeStatus queries volume level and mute flag in one request.
func (n *Netcast) GetVolumeStatus(onSuccess func(core.VolumeStatus), onError func(error)) {
	target := n.requestURL(udap.PathData, &udap.RequestOptions{Target: udap.TargetVolumeInfo})
	command.NewGet(n, target, command.Listener{
		OnSuccess: func(body []byte) {
			status, err := udap.ParseVolumeStatus(body)
			if err != nil {
				onError(err)
				return
			}
			status.Volume /= 100.0
			onSuccess(status)
		},
		OnError: onError,
	}).Send()
}

// GetVolume reports the volume level, 0.0 to 1.0.
func (n *Netcast) GetVolume(onSuccess func(float64), onError func(error)) {
	n.GetVolumeStatus(func(status core.VolumeStatus) {
		onSuccess(status.Volume)
	}, onError)
}

// GetMute reports the mute flag.
func (n *Netcast) GetMute(onSuccess func(bool), onError func(error)) {
	n.GetVolumeStatus(func(status core.VolumeStatus) {
		onSuccess(status.Mute)
	}, onError)
}

// SetMute toggles mute when the current state differs from the requested
// one. The protocol only has a toggle keycode.
func (n *Netcast) SetMute(mute bool, l command.Listener) {
	n.GetVolumeStatus(func(status core.VolumeStatus) {
		if status.Mute == mute {
			if l.OnSuccess != nil {
				l.OnSuccess(nil)
			}
			return
		}
		n.SendKeycode(udap.KeyMute, l)
	}, func(err error) {
		if l.OnError != nil {
			l.OnError(err)
		}
	})
}

// SetVolume delegates to the DLNA sibling; the UDAP protocol cannot set an
// absolute level.
func (n *Netcast) SetVolume(volume float64, l command.Listener) {
	if d := n.renderer(); d != nil {
		d.SetVolume(volume, l)
		return
	}
	if l.OnError != nil {
		l.OnError(core.NotSupported())
	}
}

// Channels.

func (n *Netcast) ChannelUp(l command.Listener)   { n.SendKeycode(udap.KeyChannelUp, l) }
func (n *Netcast) ChannelDown(l command.Listener) { n.SendKeycode(udap.KeyChannelDown, l) }

// GetChannelList fetches the full channel table.
func (n *Netcast) GetChannelList(onSuccess func([]core.ChannelInfo), onError func(error)) {
	target := n.requestURL(udap.PathData, &udap.RequestOptions{Target: udap.TargetChannelList})
	command.NewGet(n, target, command.Listener{
		OnSuccess: func(body []byte) {
			channels, err := udap.ParseChannelList(body)
			if err != nil {
				onError(err)
				return
			}
			onSuccess(channels)
		},
		OnError: onError,
	}).Send()
}

// GetCurrentChannel reports the channel currently tuned.
func (n *Netcast) GetCurrentChannel(onSuccess func(core.ChannelInfo), onError func(error)) {
	target := n.requestURL(udap.PathData, &udap.RequestOptions{Target: udap.TargetCurrentChannel})
	command.NewGet(n, target, command.Listener{
		OnSuccess: func(body []byte) {
			channel, err := udap.ParseCurrentChannel(body)
			if err != nil {
				onError(err)
				return
			}
			onSuccess(channel)
		},
		OnError: onError,
	}).Send()
}

// SetChannel tunes to the channel matching the given major/minor pair. An
// unknown pair resolves through the error continuation.
func (n *Netcast) SetChannel(channel core.ChannelInfo, l command.Listener) {
	n.GetChannelList(func(channels []core.ChannelInfo) {
		for _, ch := range channels {
			if ch.MajorNumber != channel.MajorNumber || ch.MinorNumber != channel.MinorNumber {
				continue
			}
			body := udap.MessageBody(udap.APICommand, []udap.Param{
				{Name: "name", Value: "HandleChannelChange"},
				{Name: "major", Value: strconv.Itoa(ch.MajorNumber)},
				{Name: "minor", Value: strconv.Itoa(ch.MinorNumber)},
			})
			command.New(n, n.requestURL(udap.PathCommand, nil), body, l).Send()
			return
		}
		if l.OnError != nil {
			l.OnError(&core.CommandError{Code: 500, Description: "channel not found"})
		}
	}, func(err error) {
		if l.OnError != nil {
			l.OnError(err)
		}
	})
}

// Apps.

// appCount fetches the number of installed apps of one catalog type.
func (n *Netcast) appCount(appType int, onSuccess func(int), onError func(error)) {
	target := n.requestURL(udap.PathData, &udap.RequestOptions{
		Target: udap.TargetAppNumGet,
		Type:   strconv.Itoa(appType),
	})
	command.NewGet(n, target, command.Listener{
		OnSuccess: func(body []byte) {
			count, err := udap.ParseAppCount(body)
			if err != nil {
				onError(err)
				return
			}
			onSuccess(count)
		},
		OnError: onError,
	}).Send()
}

// appPage fetches one catalog type's app list.
func (n *Netcast) appPage(appType, count int, onSuccess func([]core.AppInfo), onError func(error)) {
	target := n.requestURL(udap.PathData, &udap.RequestOptions{
		Target: udap.TargetAppListGet,
		Type:   strconv.Itoa(appType),
		Index:  "0",
		Number: strconv.Itoa(count),
	})
	command.NewGet(n, target, command.Listener{
		OnSuccess: func(body []byte) {
			apps, err := udap.ParseAppList(body)
			if err != nil {
				onError(err)
				return
			}
			onSuccess(apps)
		},
		OnError: onError,
	}).Send()
}

// GetAppList aggregates the premium and my-apps catalogs. The two
// count-then-list queries run as one sequential workflow.
func (n *Netcast) GetAppList(onSuccess func([]core.AppInfo), onError func(error)) {
	go func() {
		var all []core.AppInfo
		for _, appType := range []int{udap.AppTypePremium, udap.AppTypeMyApps} {
			apps, err := n.fetchCatalog(appType)
			if err != nil {
				onError(err)
				return
			}
			all = append(all, apps...)
		}
		onSuccess(all)
	}()
}

// fetchCatalog runs count then list for one catalog type, synchronously.
func (n *Netcast) fetchCatalog(appType int) ([]core.AppInfo, error) {
	type countResult struct {
		count int
		err   error
	}
	countCh := make(chan countResult, 1)
	n.appCount(appType, func(count int) {
		countCh <- countResult{count: count}
	}, func(err error) {
		countCh <- countResult{err: err}
	})
	cr := <-countCh
	if cr.err != nil {
		return nil, cr.err
	}

	type listResult struct {
		apps []core.AppInfo
		err  error
	}
	listCh := make(chan listResult, 1)
	n.appPage(appType, cr.count, func(apps []core.AppInfo) {
		listCh <- listResult{apps: apps}
	}, func(err error) {
		listCh <- listResult{err: err}
	})
	lr := <-listCh
	return lr.apps, lr.err
}

// GetAppNumber resolves an app name to its auid through the apptoapp data
// endpoint.
func (n *Netcast) GetAppNumber(appName string, onSuccess func(core.AppInfo), onError func(error)) {
	target := n.requestURL(udap.PathAppToAppData+url.PathEscape(appName), nil)
	command.NewGet(n, target, command.Listener{
		OnSuccess: func(body []byte) {
			id := string(body)
			if id == "" {
				onError(core.MissingField("auid"))
				return
			}
			onSuccess(core.AppInfo{ID: id, Name: appName})
		},
		OnError: onError,
	}).Send()
}

// LaunchApp resolves the app id against the installed catalog, then
// executes it.
func (n *Netcast) LaunchApp(appID string, onSuccess func(*core.LaunchSession), onError func(error)) {
	n.GetAppList(func(apps []core.AppInfo) {
		for _, app := range apps {
			if app.ID == appID || app.Name == appID {
				n.launchApplication(app.Name, app.ID, onSuccess, onError)
				return
			}
		}
		onError(&core.CommandError{Code: 500, Description: "app not found"})
	}, onError)
}

// LaunchAppByName resolves an app name through the apptoapp endpoint and
// executes it.
func (n *Netcast) LaunchAppByName(appName string, onSuccess func(*core.LaunchSession), onError func(error)) {
	n.GetAppNumber(appName, func(app core.AppInfo) {
		n.launchApplication(app.Name, app.ID, onSuccess, onError)
	}, onError)
}

// LaunchBrowser opens the built-in Internet app. The URL cannot be passed
// through the protocol.
func (n *Netcast) LaunchBrowser(_ string, onSuccess func(*core.LaunchSession), onError func(error)) {
	n.LaunchAppByName("Internet", onSuccess, onError)
}

// LaunchYouTube opens the YouTube app.
func (n *Netcast) LaunchYouTube(_ string, onSuccess func(*core.LaunchSession), onError func(error)) {
	n.LaunchAppByName("YouTube", onSuccess, onError)
}

func (n *Netcast) launchApplication(appName, auid string, onSuccess func(*core.LaunchSession), onError func(error)) {
	params := []udap.Param{
		{Name: "name", Value: "AppExecute"},
		{Name: "auid", Value: auid},
	}
	if appName != "" {
		params = append(params, udap.Param{Name: "appname", Value: appName})
	}
	body := udap.MessageBody(udap.APICommand, params)
	command.New(n, n.requestURL(udap.PathAppToAppCommand, nil), body, command.Listener{
		OnSuccess: func([]byte) {
			session := core.SessionForApp(auid)
			session.AppName = appName
			session.Service = n
			onSuccess(session)
		},
		OnError: onError,
	}).Send()
}

// CloseSession terminates the app behind a launch session.
func (n *Netcast) CloseSession(s *core.LaunchSession, onDone func(error)) {
	params := []udap.Param{
		{Name: "name", Value: "AppTerminate"},
		{Name: "auid", Value: s.AppID},
	}
	if s.AppName != "" {
		params = append(params, udap.Param{Name: "appname", Value: s.AppName})
	}
	body := udap.MessageBody(udap.APICommand, params)
	command.New(n, n.requestURL(udap.PathAppToAppCommand, nil), body, command.Listener{
		OnSuccess: func([]byte) {
			if onDone != nil {
				onDone(nil)
			}
		},
		OnError: func(err error) {
			if onDone != nil {
				onDone(err)
			}
		},
	}).Send()
}

// GetAppState reports whether the app behind a session is running or
// visible.
func (n *Netcast) GetAppState(s *core.LaunchSession, onSuccess func(core.AppState), onError func(error)) {
	target := n.requestURL(udap.PathAppToAppData+url.PathEscape(s.AppID)+"/status", nil)
	command.NewGet(n, target, command.Listener{
		OnSuccess: func(body []byte) {
			onSuccess(udap.ParseAppState(string(body)))
		},
		OnError: onError,
	}).Send()
}

// LaunchInputPicker opens the external input chooser app.
func (n *Netcast) LaunchInputPicker(onSuccess func(*core.LaunchSession), onError func(error)) {
	n.GetAppNumber("Input List", func(app core.AppInfo) {
		n.launchApplication(app.Name, app.ID, func(session *core.LaunchSession) {
			session.Type = core.SessionTypeExternalInputPicker
			onSuccess(session)
		}, onError)
	}, onError)
}

// PowerOff turns the TV off via the power keycode. There is no way to turn
// it back on.
func (n *Netcast) PowerOff(l command.Listener) {
	n.SendKeycode(udap.KeyPower, l)
}

// PowerOn reports not-supported.
func (n *Netcast) PowerOn(l command.Listener) {
	if l.OnError != nil {
		l.OnError(core.NotSupported())
	}
}

// Mouse.

// ConnectMouse shows the on-screen cursor.
func (n *Netcast) ConnectMouse() {
	n.setCursorVisible(true, command.Listener{
		OnSuccess: func([]byte) {
			n.nmu.Lock()
			n.mouseOn = true
			n.mouseMoving = false
			n.mouseDX, n.mouseDY = 0, 0
			n.nmu.Unlock()
		},
		OnError: func(error) {
			n.nmu.Lock()
			n.mouseOn = false
			n.nmu.Unlock()
		},
	})
}

// DisconnectMouse hides the cursor.
func (n *Netcast) DisconnectMouse() {
	n.setCursorVisible(false, command.Listener{})
	n.nmu.Lock()
	n.mouseOn = false
	n.nmu.Unlock()
}

// MouseMove accumulates deltas; at most one move command is in flight, the
// accumulated remainder is flushed when it resolves.
func (n *Netcast) MouseMove(dx, dy float64) {
	n.nmu.Lock()
	if !n.mouseOn {
		n.nmu.Unlock()
		n.ConnectMouse()
		n.nmu.Lock()
	}
	n.mouseDX += dx
	n.mouseDY += dy
	if n.mouseMoving {
		n.nmu.Unlock()
		return
	}
	n.mouseMoving = true
	n.nmu.Unlock()

	n.flushMouseMove()
}

func (n *Netcast) flushMouseMove() {
	n.nmu.Lock()
	x, y := int(n.mouseDX), int(n.mouseDY)
	n.mouseDX, n.mouseDY = 0, 0
	n.nmu.Unlock()

	body := udap.MessageBody(udap.APICommand, []udap.Param{
		{Name: "name", Value: "HandleTouchMove"},
		{Name: "x", Value: strconv.Itoa(x)},
		{Name: "y", Value: strconv.Itoa(y)},
	})
	command.New(n, n.requestURL(udap.PathCommand, nil), body, command.Listener{
		OnSuccess: func([]byte) {
			n.nmu.Lock()
			pending := n.mouseDX != 0 || n.mouseDY != 0
			if !pending {
				n.mouseMoving = false
			}
			n.nmu.Unlock()
			if pending {
				n.flushMouseMove()
			}
		},
		OnError: func(error) {
			n.nmu.Lock()
			n.mouseMoving = false
			n.nmu.Unlock()
		},
	}).Send()
}

// MouseClick sends a touch click at the cursor position.
func (n *Netcast) MouseClick() {
	body := udap.MessageBody(udap.APICommand, []udap.Param{
		{Name: "name", Value: "HandleTouchClick"},
	})
	command.New(n, n.requestURL(udap.PathCommand, nil), body, command.Listener{}).Send()
}

// MouseScroll scrolls one notch; only the sign of dy matters.
func (n *Netcast) MouseScroll(_, dy float64) {
	direction := "down"
	if dy > 0 {
		direction = "up"
	}
	body := udap.MessageBody(udap.APICommand, []udap.Param{
		{Name: "name", Value: "HandleTouchWheel"},
		{Name: "value", Value: direction},
	})
	command.New(n, n.requestURL(udap.PathCommand, nil), body, command.Listener{}).Send()
}

// Text input.

// SendText replaces the edit buffer and pushes it to the TV's editing
// field.
func (n *Netcast) SendText(input string) {
	n.nmu.Lock()
	n.keyboard = []rune(input)
	buffer := string(n.keyboard)
	n.nmu.Unlock()
	n.handleKeyboardInput("Editing", buffer)
}

// SendEnter commits the edit buffer.
func (n *Netcast) SendEnter() {
	n.nmu.Lock()
	buffer := string(n.keyboard)
	n.nmu.Unlock()
	n.handleKeyboardInput("EditEnd", buffer)
	// The red key doubles as the enter button on the editing overlay.
	n.SendKeycode(udap.KeyRed, command.Listener{})
}

// SendDelete removes the last buffered character.
func (n *Netcast) SendDelete() {
	n.nmu.Lock()
	if len(n.keyboard) > 0 {
		n.keyboard = n.keyboard[:len(n.keyboard)-1]
	}
	buffer := string(n.keyboard)
	n.nmu.Unlock()
	n.handleKeyboardInput("Editing", buffer)
}

func (n *Netcast) handleKeyboardInput(state, buffer string) {
	body := udap.MessageBody(udap.APIEvent, []udap.Param{
		{Name: "name", Value: "TextEdited"},
		{Name: "state", Value: state},
		{Name: "value", Value: buffer},
	})
	command.New(n, n.requestURL(udap.PathEvent, nil), body, command.Listener{}).Send()
}

// Media playback delegates to the DLNA sibling when present.

// PlayMedia starts media playback through the DLNA renderer.
func (n *Netcast) PlayMedia(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error)) {
	if d := n.renderer(); d != nil {
		d.PlayMedia(info, onSuccess, onError)
		return
	}
	onError(core.NotSupported())
}

// DisplayImage shows an image through the DLNA renderer.
func (n *Netcast) DisplayImage(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error)) {
	if d := n.renderer(); d != nil {
		d.DisplayImage(info, onSuccess, onError)
		return
	}
	onError(core.NotSupported())
}
