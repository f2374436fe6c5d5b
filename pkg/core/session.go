package core

import "encoding/json"

// LaunchSessionType distinguishes what kind of remote session a
// LaunchSession handle refers to.
type LaunchSessionType int

const (
	SessionTypeUnknown LaunchSessionType = iota
	SessionTypeApp
	SessionTypeMedia
	SessionTypeExternalInputPicker
)

func (t LaunchSessionType) String() string {
	switch t {
	case SessionTypeApp:
		return "app"
	case SessionTypeMedia:
		return "media"
	case SessionTypeExternalInputPicker:
		return "external_input_picker"
	default:
		return "unknown"
	}
}

// SessionCloser closes a launch session on the service that created it.
// Implemented by device services; kept as a narrow interface so sessions do
// not depend on the service package.
type SessionCloser interface {
	CloseSession(s *LaunchSession, onDone func(error))
}

// LaunchSession is a handle to one running remote application or media
// playback instance. It is created when a launch command succeeds and closed
// explicitly via Close, which routes back to the owning service.
type LaunchSession struct {
	AppID     string            `json:"appId,omitempty"`
	AppName   string            `json:"name,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Type      LaunchSessionType `json:"-"`
	RawData   json.RawMessage   `json:"rawData,omitempty"`

	Service SessionCloser `json:"-"`
}

// SessionForApp returns an app-typed session bound to the given app id.
func SessionForApp(appID string) *LaunchSession {
	return &LaunchSession{AppID: appID, Type: SessionTypeApp}
}

// Close asks the owning service to terminate the session. onDone receives
// nil on success. Sessions without an owning service report not-supported.
func (s *LaunchSession) Close(onDone func(error)) {
	if s.Service == nil {
		if onDone != nil {
			onDone(NotSupported())
		}
		return
	}
	s.Service.CloseSession(s, onDone)
}

type sessionJSON struct {
	AppID     string          `json:"appId,omitempty"`
	AppName   string          `json:"name,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Type      string          `json:"sessionType"`
	RawData   json.RawMessage `json:"rawData,omitempty"`
}

// MarshalJSON encodes the session including its type tag.
func (s *LaunchSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		AppID:     s.AppID,
		AppName:   s.AppName,
		SessionID: s.SessionID,
		Type:      s.Type.String(),
		RawData:   s.RawData,
	})
}

// UnmarshalJSON decodes a session produced by MarshalJSON.
func (s *LaunchSession) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.AppID = raw.AppID
	s.AppName = raw.AppName
	s.SessionID = raw.SessionID
	s.RawData = raw.RawData
	switch raw.Type {
	case "app":
		s.Type = SessionTypeApp
	case "media":
		s.Type = SessionTypeMedia
	case "external_input_picker":
		s.Type = SessionTypeExternalInputPicker
	default:
		s.Type = SessionTypeUnknown
	}
	return nil
}
