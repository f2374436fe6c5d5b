package service

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castlink/castlink/pkg/command"
	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/eventserver"
	"github.com/castlink/castlink/pkg/logger"
	"github.com/castlink/castlink/pkg/upnp"
)

const (
	dlnaSubscribeTimeout = 300 * time.Second
	dlnaRenewInterval    = dlnaSubscribeTimeout / 2
)

// Event stream keys on a DLNA service.
const (
	EventPlayState = "playState"
	EventVolume    = "volume"
)

// DLNA drives a UPnP media renderer over SOAP: AVTransport for playback,
// RenderingControl for volume, with LastChange eventing through the shared
// callback server.
type DLNA struct {
	base
	exec   *command.HTTPExecutor
	events *eventserver.Server
	subCli *http.Client

	dmu                 sync.Mutex
	avTransportURL      string
	avTransportEventURL string
	renderingControlURL string
	renderingEventURL   string
	sids                map[string]string // event URL -> SID
	reach               *reachabilityMonitor
	renewStop           chan struct{}
}

// NewDLNA builds a DLNA service. events may be nil when eventing is not
// needed (subscribe calls then report not-supported).
func NewDLNA(desc *core.ServiceDescription, cfg *core.ServiceConfig, events *eventserver.Server, log logger.Logger) *DLNA {
	caps := core.NewCapabilitySet(
		core.MediaPlay, core.MediaPause, core.MediaStop, core.MediaSeek,
		core.MediaDuration, core.MediaPosition, core.MediaPlayState,
		core.MediaNext, core.MediaPrevious,
		core.MediaPlayVideo, core.MediaPlayAudio, core.MediaDisplayImage,
		core.MediaClose, core.MediaInfoGet,
		core.VolumeSet, core.VolumeGet, core.VolumeUpDown,
		core.VolumeMuteGet, core.VolumeMuteSet,
	)
	if events != nil {
		caps.Add(core.VolumeSubscribe)
	}

	d := &DLNA{
		base:   newBase(IDDLNA, desc, cfg, caps, log.Named("dlna")),
		exec:   command.NewHTTPExecutor(0, "UDAP/2.0", log.Named("dlna")),
		events: events,
		subCli: &http.Client{Timeout: command.DefaultTimeout},
		sids:   make(map[string]string),
	}
	d.updateControlURLs(desc)
	return d
}

// RequiresPairing reports false; DLNA renderers accept commands without a
// pairing step.
func (d *DLNA) RequiresPairing() bool { return false }

// UpdateDescription replaces the description and recomputes control URLs.
func (d *DLNA) UpdateDescription(desc *core.ServiceDescription) {
	d.base.UpdateDescription(desc)
	d.updateControlURLs(desc)
}

func (d *DLNA) updateControlURLs(desc *core.ServiceDescription) {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	if svc, ok := desc.Service("AVTransport"); ok {
		d.avTransportURL = svc.AbsoluteControlURL()
		d.avTransportEventURL = svc.AbsoluteEventSubURL()
	}
	if svc, ok := desc.Service("RenderingControl"); ok {
		d.renderingControlURL = svc.AbsoluteControlURL()
		d.renderingEventURL = svc.AbsoluteEventSubURL()
	}
}

// Connect marks the service connected and starts reachability monitoring.
// No pairing handshake exists in the protocol.
func (d *DLNA) Connect() {
	if !d.compareAndSetState(core.StateInitial, core.StateConnecting) {
		d.log.Debug("connect ignored, not in initial state",
			logger.String("state", d.State().String()))
		return
	}
	d.setState(core.StateConnected)

	desc := d.Description()
	d.dmu.Lock()
	d.reach = newReachabilityMonitor(desc.IPAddress, desc.Port, d.onUnreachable, d.log)
	d.reach.Start()
	d.dmu.Unlock()

	d.notifyConnectionSuccess(d)
}

// Disconnect unsubscribes all event streams and returns to the initial
// state. Protocol errors on the way out are ignored.
func (d *DLNA) Disconnect() {
	d.setState(core.StateDisconnecting)

	for _, sub := range d.takeSubscriptions() {
		sub.Unsubscribe()
	}
	d.stopEventing()

	d.dmu.Lock()
	if d.reach != nil {
		d.reach.Stop()
		d.reach = nil
	}
	d.dmu.Unlock()

	d.setState(core.StateInitial)
	d.notifyDisconnect(d, nil)
}

func (d *DLNA) onUnreachable() {
	if d.State() == core.StateConnected {
		d.Disconnect()
	}
}

// SendPairingKey reports not-supported through the listener.
func (d *DLNA) SendPairingKey(string) {
	d.notifyConnectionFailure(d, core.NotSupported())
}

// SendCommand performs the HTTP round-trip for a prepared command.
func (d *DLNA) SendCommand(cmd *command.Command) {
	d.exec.Do(cmd, nil)
}

// soapCommand builds a command for one SOAP action against the named
// service URN.
func (d *DLNA) soapCommand(serviceURN, action string, params []upnp.Param, l command.Listener) *command.Command {
	d.dmu.Lock()
	target := d.avTransportURL
	if serviceURN == upnp.RenderingControlURN {
		target = d.renderingControlURL
	}
	d.dmu.Unlock()

	cmd := command.New(d, target, upnp.Envelope(serviceURN, "0", action, params), l)
	cmd.Headers = map[string]string{
		"SOAPAction": upnp.ActionHeader(serviceURN, action),
	}
	return cmd
}

// Play resumes playback at normal speed.
func (d *DLNA) Play(l command.Listener) {
	d.soapCommand(upnp.AVTransportURN, "Play", []upnp.Param{{Name: "Speed", Value: "1"}}, l).Send()
}

// Pause pauses playback.
func (d *DLNA) Pause(l command.Listener) {
	d.soapCommand(upnp.AVTransportURN, "Pause", nil, l).Send()
}

// Stop stops playback.
func (d *DLNA) Stop(l command.Listener) {
	d.soapCommand(upnp.AVTransportURN, "Stop", nil, l).Send()
}

// Next skips to the next track.
func (d *DLNA) Next(l command.Listener) {
	d.soapCommand(upnp.AVTransportURN, "Next", nil, l).Send()
}

// Previous returns to the previous track.
func (d *DLNA) Previous(l command.Listener) {
	d.soapCommand(upnp.AVTransportURN, "Previous", nil, l).Send()
}

// Seek jumps to an absolute position in the current track.
func (d *DLNA) Seek(position time.Duration, l command.Listener) {
	params := []upnp.Param{
		{Name: "Unit", Value: "REL_TIME"},
		{Name: "Target", Value: upnp.FormatClockTime(position)},
	}
	d.soapCommand(upnp.AVTransportURN, "Seek", params, l).Send()
}

// SeekTrack jumps to a track by number in the current playlist.
func (d *DLNA) SeekTrack(track int, l command.Listener) {
	params := []upnp.Param{
		{Name: "Unit", Value: "TRACK_NR"},
		{Name: "Target", Value: strconv.Itoa(track)},
	}
	d.soapCommand(upnp.AVTransportURN, "Seek", params, l).Send()
}

// SetPlayMode sets the transport play mode (NORMAL, REPEAT_ALL, ...).
func (d *DLNA) SetPlayMode(mode string, l command.Listener) {
	params := []upnp.Param{{Name: "NewPlayMode", Value: mode}}
	d.soapCommand(upnp.AVTransportURN, "SetPlayMode", params, l).Send()
}

func (d *DLNA) positionInfo(onValue func(body []byte), onError func(error)) {
	d.soapCommand(upnp.AVTransportURN, "GetPositionInfo", nil, command.Listener{
		OnSuccess: onValue,
		OnError:   onError,
	}).Send()
}

// GetDuration reports the current track's total length.
func (d *DLNA) GetDuration(onSuccess func(time.Duration), onError func(error)) {
	d.positionInfo(func(body []byte) {
		value, err := upnp.Value(body, "TrackDuration")
		if err != nil {
			onError(err)
			return
		}
		dur, err := upnp.ParseClockTime(value)
		if err != nil {
			onError(err)
			return
		}
		onSuccess(dur)
	}, onError)
}

// GetPosition reports the playback position within the current track.
func (d *DLNA) GetPosition(onSuccess func(time.Duration), onError func(error)) {
	d.positionInfo(func(body []byte) {
		value, err := upnp.Value(body, "RelTime")
		if err != nil {
			onError(err)
			return
		}
		pos, err := upnp.ParseClockTime(value)
		if err != nil {
			onError(err)
			return
		}
		onSuccess(pos)
	}, onError)
}

// GetPlayState queries the renderer's transport state.
func (d *DLNA) GetPlayState(onSuccess func(core.PlayState), onError func(error)) {
	d.soapCommand(upnp.AVTransportURN, "GetTransportInfo", nil, command.Listener{
		OnSuccess: func(body []byte) {
			value, err := upnp.Value(body, "CurrentTransportState")
			if err != nil {
				onError(err)
				return
			}
			onSuccess(transportStateToPlayState(value))
		},
		OnError: onError,
	}).Send()
}

func transportStateToPlayState(state string) core.PlayState {
	switch state {
	case "STOPPED":
		return core.PlayStateFinished
	case "PLAYING":
		return core.PlayStatePlaying
	case "TRANSITIONING":
		return core.PlayStateBuffering
	case "PAUSED_PLAYBACK", "PAUSED_RECORDING":
		return core.PlayStatePaused
	case "NO_MEDIA_PRESENT":
		return core.PlayStateIdle
	default:
		return core.PlayStateUnknown
	}
}

// SetVolume sets the master channel volume, 0.0 to 1.0.
func (d *DLNA) SetVolume(volume float64, l command.Listener) {
	params := []upnp.Param{
		{Name: "Channel", Value: "Master"},
		{Name: "DesiredVolume", Value: strconv.Itoa(int(volume * 100))},
	}
	d.soapCommand(upnp.RenderingControlURN, "SetVolume", params, l).Send()
}

// GetVolume reports the master channel volume, 0.0 to 1.0.
func (d *DLNA) GetVolume(onSuccess func(float64), onError func(error)) {
	params := []upnp.Param{{Name: "Channel", Value: "Master"}}
	d.soapCommand(upnp.RenderingControlURN, "GetVolume", params, command.Listener{
		OnSuccess: func(body []byte) {
			value, err := upnp.Value(body, "CurrentVolume")
			if err != nil {
				onError(err)
				return
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				onError(&core.ParseError{Field: "CurrentVolume", Err: err})
				return
			}
			onSuccess(float64(n) / 100.0)
		},
		OnError: onError,
	}).Send()
}

// VolumeUp raises the volume one step (1/100).
func (d *DLNA) VolumeUp(l command.Listener) {
	d.stepVolume(0.01, l)
}

// VolumeDown lowers the volume one step (1/100).
func (d *DLNA) VolumeDown(l command.Listener) {
	d.stepVolume(-0.01, l)
}

func (d *DLNA) stepVolume(delta float64, l command.Listener) {
	d.GetVolume(func(volume float64) {
		next := volume + delta
		if next > 1.0 {
			next = 1.0
		}
		if next < 0.0 {
			next = 0.0
		}
		if next == volume {
			if l.OnSuccess != nil {
				l.OnSuccess(nil)
			}
			return
		}
		d.SetVolume(next, l)
	}, func(err error) {
		if l.OnError != nil {
			l.OnError(err)
		}
	})
}

// SetMute mutes or unmutes the master channel.
func (d *DLNA) SetMute(mute bool, l command.Listener) {
	value := "0"
	if mute {
		value = "1"
	}
	params := []upnp.Param{
		{Name: "Channel", Value: "Master"},
		{Name: "DesiredMute", Value: value},
	}
	d.soapCommand(upnp.RenderingControlURN, "SetMute", params, l).Send()
}

// GetMute reports the master channel mute flag.
func (d *DLNA) GetMute(onSuccess func(bool), onError func(error)) {
	params := []upnp.Param{{Name: "Channel", Value: "Master"}}
	d.soapCommand(upnp.RenderingControlURN, "GetMute", params, command.Listener{
		OnSuccess: func(body []byte) {
			value, err := upnp.Value(body, "CurrentMute")
			if err != nil {
				onError(err)
				return
			}
			onSuccess(value == "1" || value == "true")
		},
		OnError: onError,
	}).Send()
}

// DisplayMedia loads a URI into the renderer and starts playback. The
// returned session closes by stopping the transport.
func (d *DLNA) DisplayMedia(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error)) {
	mimeType, err := upnp.NormalizeMimeType(info.MimeType)
	if err != nil {
		onError(err)
		return
	}
	info.MimeType = mimeType

	setParams := []upnp.Param{
		{Name: "CurrentURI", Value: info.URL},
		{Name: "CurrentURIMetaData", Value: upnp.Metadata(info)},
	}
	d.soapCommand(upnp.AVTransportURN, "SetAVTransportURI", setParams, command.Listener{
		OnSuccess: func([]byte) {
			d.Play(command.Listener{
				OnSuccess: func([]byte) {
					session := &core.LaunchSession{
						Type:    core.SessionTypeMedia,
						Service: d,
					}
					onSuccess(session)
				},
				OnError: onError,
			})
		},
		OnError: onError,
	}).Send()
}

// PlayMedia is DisplayMedia for audio/video content.
func (d *DLNA) PlayMedia(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error)) {
	d.DisplayMedia(info, onSuccess, onError)
}

// DisplayImage is DisplayMedia for image content.
func (d *DLNA) DisplayImage(info core.MediaInfo, onSuccess func(*core.LaunchSession), onError func(error)) {
	d.DisplayMedia(info, onSuccess, onError)
}

// CloseSession terminates a media session by stopping the transport.
func (d *DLNA) CloseSession(_ *core.LaunchSession, onDone func(error)) {
	d.Stop(command.Listener{
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

// SubscribePlayState delivers a PlayState string on every AVTransport
// LastChange event carrying a TransportState.
func (d *DLNA) SubscribePlayState(l command.Listener) *command.Subscription {
	return d.subscribeEvents(EventPlayState, func() (string, string) {
		d.dmu.Lock()
		defer d.dmu.Unlock()
		return d.avTransportEventURL, "TransportState"
	}, l)
}

// SubscribeVolume delivers the volume level on every RenderingControl
// LastChange event carrying a Volume.
func (d *DLNA) SubscribeVolume(l command.Listener) *command.Subscription {
	return d.subscribeEvents(EventVolume, func() (string, string) {
		d.dmu.Lock()
		defer d.dmu.Unlock()
		return d.renderingEventURL, "Volume"
	}, l)
}

func (d *DLNA) subscribeEvents(key string, pick func() (eventURL, element string), l command.Listener) *command.Subscription {
	if d.events == nil {
		if l.OnError != nil {
			l.OnError(core.NotSupported())
		}
		return nil
	}
	eventURL, element := pick()
	if eventURL == "" {
		if l.OnError != nil {
			l.OnError(core.NotSupported())
		}
		return nil
	}

	sub := command.NewSubscription(d, key, eventURL, "")
	sub.AddListener(l)
	d.addSubscription(sub)

	go func() {
		sid, err := d.subscribe(eventURL, func(body []byte) {
			props, perr := upnp.ParsePropertySet(body)
			if perr != nil {
				sub.NotifyError(perr)
				return
			}
			lastChange, ok := props["LastChange"]
			if !ok {
				return
			}
			value, verr := upnp.LastChangeValue(lastChange, element)
			if verr != nil {
				return
			}
			sub.Notify([]byte(value))
		})
		if err != nil {
			sub.NotifyError(err)
			return
		}
		sub.SID = sid
		d.trackSID(eventURL, sid)
	}()

	return sub
}

// subscribe issues a SUBSCRIBE request and registers the returned SID with
// the callback server.
func (d *DLNA) subscribe(eventURL string, h eventserver.Handler) (string, error) {
	desc := d.Description()

	// The SID only exists after the first exchange. A sentinel route boots
	// the listener and holds it open until the real SID is registered, so
	// the advertised port cannot change between the SUBSCRIBE and the
	// first NOTIFY.
	sentinel := "pending:" + uuid.NewString()
	if err := d.events.Register(sentinel, func([]byte) {}); err != nil {
		return "", err
	}
	defer d.events.Unregister(sentinel)

	req, err := http.NewRequest("SUBSCRIBE", eventURL, nil)
	if err != nil {
		return "", &core.TransportError{Err: err}
	}

	callback, err := d.events.CallbackURL(desc.IPAddress)
	if err != nil {
		return "", err
	}
	req.Header.Set("CALLBACK", "<"+callback+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", fmt.Sprintf("Second-%d", int(dlnaSubscribeTimeout.Seconds())))

	resp, err := d.subCli.Do(req)
	if err != nil {
		return "", &core.TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", core.ErrorForStatus(resp.StatusCode)
	}
	sid := resp.Header.Get("SID")
	if sid == "" {
		return "", core.MissingField("SID")
	}

	if err := d.events.Register(sid, h); err != nil {
		return "", err
	}
	d.startRenewal()
	return sid, nil
}

func (d *DLNA) trackSID(eventURL, sid string) {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	d.sids[eventURL] = sid
}

func (d *DLNA) startRenewal() {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	if d.renewStop != nil {
		return
	}
	d.renewStop = make(chan struct{})
	go d.renewLoop(d.renewStop)
}

func (d *DLNA) renewLoop(stop chan struct{}) {
	ticker := time.NewTicker(dlnaRenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.dmu.Lock()
			renewals := make(map[string]string, len(d.sids))
			for url, sid := range d.sids {
				renewals[url] = sid
			}
			d.dmu.Unlock()

			for url, sid := range renewals {
				req, err := http.NewRequest("SUBSCRIBE", url, nil)
				if err != nil {
					continue
				}
				req.Header.Set("SID", sid)
				req.Header.Set("TIMEOUT", fmt.Sprintf("Second-%d", int(dlnaSubscribeTimeout.Seconds())))
				resp, err := d.subCli.Do(req)
				if err != nil {
					d.log.Debug("subscription renewal failed",
						logger.String("url", url), logger.Error(err))
					continue
				}
				_ = resp.Body.Close()
			}
		}
	}
}

// Unsubscribe sends the protocol-level UNSUBSCRIBE for the subscription's
// event stream and drops its callback route.
func (d *DLNA) Unsubscribe(sub *command.Subscription) {
	d.removeSubscription(sub)

	if sub.SID != "" {
		d.events.Unregister(sub.SID)

		d.dmu.Lock()
		delete(d.sids, sub.Target)
		d.dmu.Unlock()

		req, err := http.NewRequest("UNSUBSCRIBE", sub.Target, nil)
		if err == nil {
			req.Header.Set("SID", sub.SID)
			if resp, derr := d.subCli.Do(req); derr == nil {
				_ = resp.Body.Close()
			}
		}
	}

	if d.subscriptionCount() == 0 {
		d.stopEventing()
	}
}

func (d *DLNA) stopEventing() {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	if d.renewStop != nil {
		close(d.renewStop)
		d.renewStop = nil
	}
	d.sids = make(map[string]string)
}
