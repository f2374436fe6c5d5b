package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
)

// ssap service URIs.
const (
	uriLaunch         = "ssap://system.launcher/launch"
	uriClose          = "ssap://system.launcher/close"
	uriOpenURL        = "ssap://system.launcher/open"
	uriListApps       = "ssap://com.webos.applicationManager/listApps"
	uriRunningApp     = "ssap://com.webos.applicationManager/getForegroundAppInfo"
	uriVolumeGet      = "ssap://audio/getVolume"
	uriVolumeSet      = "ssap://audio/setVolume"
	uriVolumeUp       = "ssap://audio/volumeUp"
	uriVolumeDown     = "ssap://audio/volumeDown"
	uriMuteSet        = "ssap://audio/setMute"
	uriChannelUp      = "ssap://tv/channelUp"
	uriChannelDown    = "ssap://tv/channelDown"
	uriChannelList    = "ssap://tv/getChannelList"
	uriChannelCurrent = "ssap://tv/getCurrentChannel"
	uriChannelSet     = "ssap://tv/openChannel"
	uriTurnOff        = "ssap://system/turnOff"
	uriMediaOpen      = "ssap://media.viewer/open"
	uriMediaClose     = "ssap://media.viewer/close"
	uriMediaPlay      = "ssap://media.controls/play"
	uriMediaPause     = "ssap://media.controls/pause"
	uriMediaStop      = "ssap://media.controls/stop"
	uriMediaRewind    = "ssap://media.controls/rewind"
	uriMediaFastFwd   = "ssap://media.controls/fastForward"
	uriPointerSocket  = "ssap://com.webos.service.networkinput/getPointerInputSocket"
	uriInsertText     = "ssap://com.webos.service.ime/insertText"
	uriDeleteChars    = "ssap://com.webos.service.ime/deleteCharacters"
	uriSendEnter      = "ssap://com.webos.service.ime/sendEnterKey"
	uriExternalInputs = "ssap://tv/getExternalInputList"
	uriSwitchInput    = "ssap://tv/switchInput"
)

const webosControlPort = 3001

// WebOS drives a webOS television over the ssap JSON-RPC WebSocket. First
// connect raises an on-screen prompt; the granted client key is persisted
// in the service config and reused.
type WebOS struct {
	base

	wmu        sync.Mutex
	sock       *ssapSocket
	pointer    *pointerSocket
	reach      *reachabilityMonitor
	registerID string
	keyQueue   *webosKeyboard
}

// NewWebOS builds a webOS service.
func NewWebOS(desc *core.ServiceDescription, cfg *core.ServiceConfig, log logger.Logger) *WebOS {
	caps := core.NewCapabilitySet(
		core.MediaPlay, core.MediaPause, core.MediaStop,
		core.MediaRewind, core.MediaFastForward,
		core.MediaPlayVideo, core.MediaPlayAudio, core.MediaDisplayImage, core.MediaClose,
		core.VolumeGet, core.VolumeSet, core.VolumeUpDown,
		core.VolumeMuteGet, core.VolumeMuteSet, core.VolumeSubscribe,
		core.TVChannelUp, core.TVChannelDown, core.TVChannelGet,
		core.TVChannelSet, core.TVChannelList, core.TVChannelSubscribe,
		core.AppLaunch, core.AppClose, core.AppList, core.AppStateGet,
		core.LaunchBrowser, core.LaunchYouTube,
		core.KeyUp, core.KeyDown, core.KeyLeft, core.KeyRight,
		core.KeyOK, core.KeyBack, core.KeyHome,
		core.MouseMove, core.MouseClick, core.MouseScroll,
		core.TextInput, core.TextInputEnter, core.TextInputDelete,
		core.PowerOff,
		core.ExternalInputPicker,
	)
	w := &WebOS{
		base: newBase(IDWebOSTV, desc, cfg, caps, log.Named("webos")),
	}
	w.keyQueue = newWebosKeyboard(w)
	return w
}

// RequiresPairing reports true; the TV asks the user to allow the client.
func (w *WebOS) RequiresPairing() bool { return true }

// Connect opens the control socket and registers the client. A stored
// client key skips the prompt.
func (w *WebOS) Connect() {
	if !w.compareAndSetState(core.StateInitial, core.StateConnecting) {
		w.log.Debug("connect ignored, not in initial state",
			logger.String("state", w.State().String()))
		return
	}

	go func() {
		desc := w.Description()
		wsURL := fmt.Sprintf("wss://%s:%d", desc.IPAddress, webosControlPort)
		sock, err := dialSSAP(wsURL, w.log)
		if err != nil {
			w.setState(core.StateInitial)
			w.notifyConnectionFailure(w, err)
			return
		}
		w.wmu.Lock()
		w.sock = sock
		w.wmu.Unlock()

		w.register()
	}()
}

type webosRegisterPayload struct {
	PairingType string          `json:"pairingType"`
	ClientKey   string          `json:"client-key,omitempty"`
	Manifest    json.RawMessage `json:"manifest"`
}

// webosManifest declares the permissions the client asks for.
var webosManifest = json.RawMessage(`{
	"manifestVersion": 1,
	"permissions": [
		"LAUNCH", "LAUNCH_WEBAPP", "APP_TO_APP", "CONTROL_AUDIO",
		"CONTROL_INPUT_MEDIA_PLAYBACK", "CONTROL_INPUT_TV", "CONTROL_POWER",
		"READ_INSTALLED_APPS", "READ_TV_CHANNEL_LIST", "CONTROL_INPUT_JOYSTICK",
		"CONTROL_INPUT_TEXT", "CONTROL_MOUSE_AND_KEYBOARD",
		"READ_CURRENT_CHANNEL", "READ_RUNNING_APPS"
	]
}`)

func (w *WebOS) register() {
	key := w.Config().ClientKey
	payload := webosRegisterPayload{
		PairingType: "PROMPT",
		ClientKey:   key,
		Manifest:    webosManifest,
	}

	sock := w.socket()
	if sock == nil {
		return
	}
	id, err := sock.send(ssapRegister, "", payload, &ssapHandler{
		persistent: true,
		onPayload:  w.onRegisterMessage,
		onError: func(err error) {
			w.setState(core.StateInitial)
			w.notifyConnectionFailure(w, err)
		},
	})
	if err != nil {
		w.setState(core.StateInitial)
		w.notifyConnectionFailure(w, err)
		return
	}
	w.wmu.Lock()
	w.registerID = id
	w.wmu.Unlock()
}

func (w *WebOS) onRegisterMessage(msgType string, payload json.RawMessage) {
	switch msgType {
	case ssapResponse:
		// Prompt raised on the TV; the user has to confirm.
		w.setState(core.StatePairing)
		w.notifyPairingRequired(w, core.PairingPrompt)
	case ssapRegistered:
		var granted struct {
			ClientKey string `json:"client-key"`
		}
		if err := json.Unmarshal(payload, &granted); err == nil && granted.ClientKey != "" {
			w.Config().ClientKey = granted.ClientKey
			w.saveConfig()
		}
		w.releaseRegisterHandler()
		w.setState(core.StateConnected)
		w.startReachability()
		w.notifyConnectionSuccess(w)
	}
}

func (w *WebOS) releaseRegisterHandler() {
	w.wmu.Lock()
	id := w.registerID
	w.registerID = ""
	sock := w.sock
	w.wmu.Unlock()
	if sock != nil && id != "" {
		sock.release(id)
	}
}

// SendPairingKey is not used by the prompt-based pairing flow; the user
// confirms on the TV instead.
func (w *WebOS) SendPairingKey(string) {
	w.log.Debug("pairing key ignored, webOS pairs via on-screen prompt")
}

// Disconnect closes both sockets and returns to the initial state.
func (w *WebOS) Disconnect() {
	w.setState(core.StateDisconnecting)

	for _, sub := range w.takeSubscriptions() {
		sub.Unsubscribe()
	}

	w.wmu.Lock()
	sock := w.sock
	pointer := w.pointer
	reach := w.reach
	w.sock = nil
	w.pointer = nil
	w.reach = nil
	w.wmu.Unlock()

	if pointer != nil {
		pointer.Close()
	}
	if sock != nil {
		sock.close()
	}
	if reach != nil {
		reach.Stop()
	}

	w.setState(core.StateInitial)
	w.notifyDisconnect(w, nil)
}

func (w *WebOS) startReachability() {
	desc := w.Description()
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if w.reach != nil {
		w.reach.Stop()
	}
	w.reach = newReachabilityMonitor(desc.IPAddress, webosControlPort, w.onUnreachable, w.log)
	w.reach.Start()
}

func (w *WebOS) onUnreachable() {
	if w.State() == core.StateConnected {
		w.Disconnect()
	}
}

func (w *WebOS) socket() *ssapSocket {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return w.sock
}

// SendCommand writes a command's target URI and JSON payload to the control
// socket. Target carries the ssap URI, Payload the marshalled body.
func (w *WebOS) SendCommand(cmd *command.Command) {
	sock := w.socket()
	if sock == nil {
		cmd.Fail(&core.TransportError{Err: errSocketClosed})
		return
	}

	var payload any
	if cmd.Payload != "" {
		payload = json.RawMessage(cmd.Payload)
	}
	_, err := sock.send(ssapRequest, cmd.Target, payload, &ssapHandler{
		onPayload: func(_ string, payload json.RawMessage) {
			cmd.Complete(payload)
		},
		onError: cmd.Fail,
	})
	if err != nil {
		cmd.Fail(err)
	}
}

// request sends one ssap request with a marshalled payload.
func (w *WebOS) request(uri string, payload any, l command.Listener) {
	body := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			if l.OnError != nil {
				l.OnError(err)
			}
			return
		}
		body = string(data)
	}
	command.New(w, uri, body, l).Send()
}

// subscribeURI opens a persistent ssap subscription on a URI.
func (w *WebOS) subscribeURI(uri string, payload any) *command.Subscription {
	sub := command.NewSubscription(w, uri, uri, "")
	w.addSubscription(sub)

	sock := w.socket()
	if sock == nil {
		sub.NotifyError(&core.TransportError{Err: errSocketClosed})
		return sub
	}
	id, err := sock.send(ssapSubscribe, uri, payload, &ssapHandler{
		persistent: true,
		onPayload: func(_ string, payload json.RawMessage) {
			sub.Notify(payload)
		},
		onError: sub.NotifyError,
	})
	if err != nil {
		sub.NotifyError(err)
		return sub
	}
	sub.SID = id
	return sub
}

// Unsubscribe releases the subscription's socket handler.
func (w *WebOS) Unsubscribe(sub *command.Subscription) {
	w.removeSubscription(sub)
	if sock := w.socket(); sock != nil && sub.SID != "" {
		sock.release(sub.SID)
	}
}

// Media transport.

func (w *WebOS) Play(l command.Listener)        { w.request(uriMediaPlay, nil, l) }
func (w *WebOS) Pause(l command.Listener)       { w.request(uriMediaPause, nil, l) }
func (w *WebOS) Stop(l command.Listener)        { w.request(uriMediaStop, nil, l) }
func (w *WebOS) Rewind(l command.Listener)      { w.request(uriMediaRewind, nil, l) }
func (w *WebOS) FastForward(l command.Listener) { w.request(uriMediaFastFwd, nil, l) }

// PlayMedia pushes a media URL to the built-in viewer and starts playback.
func (w *WebOS) PlayMedia(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error)) {
	w.openMedia(info, false, onSuccess, onError)
}

// DisplayImage shows a still image in the built-in viewer.
func (w *WebOS) DisplayImage(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error)) {
	w.openMedia(info, false, onSuccess, onError)
}

func (w *WebOS) openMedia(info core.MediaInfo, loop bool, onSuccess func(*core.LaunchSession), onError func(error)) {
	payload := map[string]any{
		"target":      info.URL,
		"title":       info.Title,
		"description": info.Description,
		"mimeType":    info.MimeType,
		"iconSrc":     info.IconURL,
		"loop":        loop,
	}
	w.request(uriMediaOpen, payload, command.Listener{
		OnSuccess: func(body []byte) {
			session := &core.LaunchSession{Type: core.SessionTypeMedia, Service: w}
			var resp struct {
				ID        string `json:"id"`
				SessionID string `json:"sessionId"`
			}
			if err := json.Unmarshal(body, &resp); err == nil {
				session.AppID = resp.ID
				session.SessionID = resp.SessionID
			}
			session.RawData = body
			onSuccess(session)
		},
		OnError: onError,
	})
}

// Volume.

// GetVolume reports the volume, 0.0 to 1.0.
func (w *WebOS) GetVolume(onSuccess func(float64), onError func(error)) {
	w.request(uriVolumeGet, nil, command.Listener{
		OnSuccess: func(body []byte) {
			var resp struct {
				Volume int `json:"volume"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				onError(&core.ParseError{Field: "volume", Err: err})
				return
			}
			onSuccess(float64(resp.Volume) / 100.0)
		},
		OnError: onError,
	})
}

// SetVolume sets the volume, 0.0 to 1.0.
func (w *WebOS) SetVolume(volume float64, l command.Listener) {
	w.request(uriVolumeSet, map[string]int{"volume": int(volume * 100)}, l)
}

func (w *WebOS) VolumeUp(l command.Listener)   { w.request(uriVolumeUp, nil, l) }
func (w *WebOS) VolumeDown(l command.Listener) { w.request(uriVolumeDown, nil, l) }

// SetMute mutes or unmutes.
func (w *WebOS) SetMute(mute bool, l command.Listener) {
	w.request(uriMuteSet, map[string]bool{"mute": mute}, l)
}

// GetMute reports the mute flag.
func (w *WebOS) GetMute(onSuccess func(bool), onError func(error)) {
	w.request(uriVolumeGet, nil, command.Listener{
		OnSuccess: func(body []byte) {
			var resp struct {
				Muted bool `json:"muted"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				onError(&core.ParseError{Field: "muted", Err: err})
				return
			}
			onSuccess(resp.Muted)
		},
		OnError: onError,
	})
}

// SubscribeVolume delivers the volume status on every change.
func (w *WebOS) SubscribeVolume(l command.Listener) *command.Subscription {
	sub := w.subscribeURI(uriVolumeGet, nil)
	sub.AddListener(l)
	return sub
}

// Channels.

func (w *WebOS) ChannelUp(l command.Listener)   { w.request(uriChannelUp, nil, l) }
func (w *WebOS) ChannelDown(l command.Listener) { w.request(uriChannelDown, nil, l) }

type webosChannel struct {
	ID          string `json:"channelId"`
	Name        string `json:"channelName"`
	Number      string `json:"channelNumber"`
	MajorNumber int    `json:"majorNumber"`
	MinorNumber int    `json:"minorNumber"`
}

func (c webosChannel) toInfo() core.ChannelInfo {
	return core.ChannelInfo{
		ID:          c.ID,
		Name:        c.Name,
		Number:      c.Number,
		MajorNumber: c.MajorNumber,
		MinorNumber: c.MinorNumber,
	}
}

// GetChannelList fetches the channel table.
func (w *WebOS) GetChannelList(onSuccess func([]core.ChannelInfo), onError func(error)) {
	w.request(uriChannelList, nil, command.Listener{
		OnSuccess: func(body []byte) {
			var resp struct {
				ChannelList []webosChannel `json:"channelList"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				onError(&core.ParseError{Field: "channelList", Err: err})
				return
			}
			channels := make([]core.ChannelInfo, 0, len(resp.ChannelList))
			for _, c := range resp.ChannelList {
				channels = append(channels, c.toInfo())
			}
			onSuccess(channels)
		},
		OnError: onError,
	})
}

// GetCurrentChannel reports the channel currently tuned.
func (w *WebOS) GetCurrentChannel(onSuccess func(core.ChannelInfo), onError func(error)) {
	w.request(uriChannelCurrent, nil, command.Listener{
		OnSuccess: func(body []byte) {
			var c webosChannel
			if err := json.Unmarshal(body, &c); err != nil {
				onError(&core.ParseError{Field: "channel", Err: err})
				return
			}
			onSuccess(c.toInfo())
		},
		OnError: onError,
	})
}

// SetChannel tunes to a channel by id.
func (w *WebOS) SetChannel(channel core.ChannelInfo, l command.Listener) {
	w.request(uriChannelSet, map[string]string{"channelId": channel.ID}, l)
}

// SubscribeCurrentChannel delivers channel changes.
func (w *WebOS) SubscribeCurrentChannel(l command.Listener) *command.Subscription {
	sub := w.subscribeURI(uriChannelCurrent, nil)
	sub.AddListener(l)
	return sub
}

// Apps.

// GetAppList fetches the installed applications.
func (w *WebOS) GetAppList(onSuccess func([]core.AppInfo), onError func(error)) {
	w.request(uriListApps, nil, command.Listener{
		OnSuccess: func(body []byte) {
			var resp struct {
				Apps []struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				} `json:"apps"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				onError(&core.ParseError{Field: "apps", Err: err})
				return
			}
			apps := make([]core.AppInfo, 0, len(resp.Apps))
			for _, a := range resp.Apps {
				apps = append(apps, core.AppInfo{ID: a.ID, Name: a.Title})
			}
			onSuccess(apps)
		},
		OnError: onError,
	})
}

// GetRunningApp reports the foreground application.
func (w *WebOS) GetRunningApp(onSuccess func(core.AppInfo), onError func(error)) {
	w.request(uriRunningApp, nil, command.Listener{
		OnSuccess: func(body []byte) {
			var resp struct {
				AppID string `json:"appId"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				onError(&core.ParseError{Field: "appId", Err: err})
				return
			}
			onSuccess(core.AppInfo{ID: resp.AppID})
		},
		OnError: onError,
	})
}

// LaunchApp starts an application by id.
func (w *WebOS) LaunchApp(appID string, onSuccess func(*core.LaunchSession), onError func(error)) {
	w.launch(map[string]string{"id": appID}, appID, onSuccess, onError)
}

// LaunchBrowser opens the browser on a URL.
func (w *WebOS) LaunchBrowser(target string, onSuccess func(*core.LaunchSession), onError func(error)) {
	w.request(uriOpenURL, map[string]string{"target": target}, command.Listener{
		OnSuccess: func(body []byte) {
			w.deliverSession(body, "com.webos.app.browser", onSuccess)
		},
		OnError: onError,
	})
}

// LaunchYouTube opens YouTube, optionally on one video.
func (w *WebOS) LaunchYouTube(contentID string, onSuccess func(*core.LaunchSession), onError func(error)) {
	appID := "youtube.leanback.v4"
	payload := map[string]string{"id": appID}
	if contentID != "" {
		payload["contentId"] = contentID
	}
	w.launch(payload, appID, onSuccess, onError)
}

func (w *WebOS) launch(payload any, appID string, onSuccess func(*core.LaunchSession), onError func(error)) {
	w.request(uriLaunch, payload, command.Listener{
		OnSuccess: func(body []byte) {
			w.deliverSession(body, appID, onSuccess)
		},
		OnError: onError,
	})
}

func (w *WebOS) deliverSession(body []byte, appID string, onSuccess func(*core.LaunchSession)) {
	session := core.SessionForApp(appID)
	session.Service = w
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		session.SessionID = resp.SessionID
	}
	session.RawData = body
	onSuccess(session)
}

// CloseSession closes the app or media viewer behind a launch session.
func (w *WebOS) CloseSession(s *core.LaunchSession, onDone func(error)) {
	uri := uriClose
	if s.Type == core.SessionTypeMedia {
		uri = uriMediaClose
	}
	payload := map[string]string{"id": s.AppID}
	if s.SessionID != "" {
		payload["sessionId"] = s.SessionID
	}
	w.request(uri, payload, command.Listener{
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
	})
}

// External inputs.

// GetExternalInputList fetches the selectable inputs.
func (w *WebOS) GetExternalInputList(onSuccess func([]core.ExternalInputInfo), onError func(error)) {
	w.request(uriExternalInputs, nil, command.Listener{
		OnSuccess: func(body []byte) {
			var resp struct {
				Devices []struct {
					ID        string `json:"id"`
					Label     string `json:"label"`
					Connected bool   `json:"connected"`
					Icon      string `json:"icon"`
				} `json:"devices"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				onError(&core.ParseError{Field: "devices", Err: err})
				return
			}
			inputs := make([]core.ExternalInputInfo, 0, len(resp.Devices))
			for _, d := range resp.Devices {
				inputs = append(inputs, core.ExternalInputInfo{
					ID:        d.ID,
					Name:      d.Label,
					Connected: d.Connected,
					IconURL:   d.Icon,
				})
			}
			onSuccess(inputs)
		},
		OnError: onError,
	})
}

// SetExternalInput switches to an input by id.
func (w *WebOS) SetExternalInput(input core.ExternalInputInfo, l command.Listener) {
	w.request(uriSwitchInput, map[string]string{"inputId": input.ID}, l)
}

// PowerOff turns the TV off.
func (w *WebOS) PowerOff(l command.Listener) {
	w.request(uriTurnOff, nil, l)
}

// PowerOn reports not-supported; a powered-off TV has no socket to talk to.
func (w *WebOS) PowerOn(l command.Listener) {
	if l.OnError != nil {
		l.OnError(core.NotSupported())
	}
}

// Pointer and buttons.

// connectPointer lazily opens the pointer input socket.
func (w *WebOS) connectPointer() (*pointerSocket, error) {
	w.wmu.Lock()
	if w.pointer != nil {
		p := w.pointer
		w.wmu.Unlock()
		return p, nil
	}
	w.wmu.Unlock()

	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	w.request(uriPointerSocket, nil, command.Listener{
		OnSuccess: func(body []byte) {
			var resp struct {
				SocketPath string `json:"socketPath"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				ch <- result{err: &core.ParseError{Field: "socketPath", Err: err}}
				return
			}
			ch <- result{path: resp.SocketPath}
		},
		OnError: func(err error) { ch <- result{err: err} },
	})
	r := <-ch
	if r.err != nil {
		return nil, r.err
	}

	p, err := dialPointer(r.path)
	if err != nil {
		return nil, err
	}
	w.wmu.Lock()
	w.pointer = p
	w.wmu.Unlock()
	return p, nil
}

// MouseMove sends one pointer delta. Fire and forget, like the Netcast
// variant; failures are logged.
func (w *WebOS) MouseMove(dx, dy float64) {
	w.pointerDo(func(p *pointerSocket) error { return p.Move(dx, dy) })
}

// MouseClick clicks at the pointer position.
func (w *WebOS) MouseClick() {
	w.pointerDo(func(p *pointerSocket) error { return p.Click() })
}

// MouseScroll sends one scroll delta.
func (w *WebOS) MouseScroll(dx, dy float64) {
	w.pointerDo(func(p *pointerSocket) error { return p.Scroll(dx, dy) })
}

// pointerDo runs one pointer operation off the calling goroutine;
// connectPointer blocks on an ssap round-trip the first time.
func (w *WebOS) pointerDo(op func(p *pointerSocket) error) {
	go func() {
		p, err := w.connectPointer()
		if err != nil {
			w.log.Debug("pointer socket unavailable", logger.Error(err))
			return
		}
		if err := op(p); err != nil {
			w.log.Debug("pointer write failed", logger.Error(err))
		}
	}()
}

func (w *WebOS) button(name string) error {
	p, err := w.connectPointer()
	if err != nil {
		return err
	}
	return p.Button(name)
}

// Key navigation via the pointer socket's button frames.

func (w *WebOS) Up(l command.Listener)    { w.buttonCmd("UP", l) }
func (w *WebOS) Down(l command.Listener)  { w.buttonCmd("DOWN", l) }
func (w *WebOS) Left(l command.Listener)  { w.buttonCmd("LEFT", l) }
func (w *WebOS) Right(l command.Listener) { w.buttonCmd("RIGHT", l) }
func (w *WebOS) OK(l command.Listener)    { w.buttonCmd("ENTER", l) }
func (w *WebOS) Back(l command.Listener)  { w.buttonCmd("BACK", l) }
func (w *WebOS) Home(l command.Listener)  { w.buttonCmd("HOME", l) }

func (w *WebOS) buttonCmd(name string, l command.Listener) {
	go func() {
		if err := w.button(name); err != nil {
			if l.OnError != nil {
				l.OnError(err)
			}
			return
		}
		if l.OnSuccess != nil {
			l.OnSuccess(nil)
		}
	}()
}

// Text input.

// SendText queues text for the focused input field.
func (w *WebOS) SendText(input string) {
	w.keyQueue.Add(input)
}

// SendEnter queues the enter key.
func (w *WebOS) SendEnter() {
	w.keyQueue.AddEnter()
}

// SendDelete queues one backspace.
func (w *WebOS) SendDelete() {
	w.keyQueue.AddDelete()
}

// webosKeyboard coalesces queued text edits: consecutive inserts become one
// insertText, consecutive deletes one deleteCharacters. At most one ime
// request is in flight.
type webosKeyboard struct {
	svc *WebOS

	mu      sync.Mutex
	queue   []string
	waiting bool
}

const (
	keyEnter  = "\x00ENTER"
	keyDelete = "\x00DELETE"
)

func newWebosKeyboard(svc *WebOS) *webosKeyboard {
	return &webosKeyboard{svc: svc}
}

func (k *webosKeyboard) Add(text string) { k.push(text) }

func (k *webosKeyboard) AddEnter() { k.push(keyEnter) }

func (k *webosKeyboard) AddDelete() {
	k.mu.Lock()
	// A delete cancels the last queued insert instead of round-tripping.
	if n := len(k.queue); n > 0 && k.queue[n-1] != keyEnter && k.queue[n-1] != keyDelete {
		k.queue = k.queue[:n-1]
		k.mu.Unlock()
		return
	}
	k.mu.Unlock()
	k.push(keyDelete)
}

func (k *webosKeyboard) push(item string) {
	k.mu.Lock()
	k.queue = append(k.queue, item)
	start := !k.waiting
	if start {
		k.waiting = true
	}
	k.mu.Unlock()
	if start {
		k.sendNext()
	}
}

func (k *webosKeyboard) sendNext() {
	k.mu.Lock()
	if len(k.queue) == 0 {
		k.waiting = false
		k.mu.Unlock()
		return
	}

	var uri string
	var payload any
	switch k.queue[0] {
	case keyEnter:
		k.queue = k.queue[1:]
		uri = uriSendEnter
	case keyDelete:
		count := 0
		for len(k.queue) > 0 && k.queue[0] == keyDelete {
			k.queue = k.queue[1:]
			count++
		}
		uri = uriDeleteChars
		payload = map[string]int{"count": count}
	default:
		var sb strings.Builder
		for len(k.queue) > 0 && k.queue[0] != keyEnter && k.queue[0] != keyDelete {
			sb.WriteString(k.queue[0])
			k.queue = k.queue[1:]
		}
		uri = uriInsertText
		payload = map[string]any{"text": sb.String(), "replace": 0}
	}
	k.mu.Unlock()

	k.svc.request(uri, payload, command.Listener{
		OnSuccess: func([]byte) { k.sendNext() },
		OnError: func(error) {
			k.mu.Lock()
			k.waiting = false
			k.mu.Unlock()
		},
	})
}
