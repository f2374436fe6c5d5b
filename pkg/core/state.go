package core

// ConnectionState is the lifecycle state of a device service. Transitions
// only follow the declared machine:
//
//	Initial → Connecting → Pairing → Connected → Disconnecting → Initial
//
// StateNone is a pre-construction sentinel and never reachable afterwards.
type ConnectionState int

const (
	StateNone ConnectionState = iota
	StateInitial
	StateConnecting
	StatePairing
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInitial:
		return "initial"
	case StateConnecting:
		return "connecting"
	case StatePairing:
		return "pairing"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// PairingType describes how a service expects the user to confirm pairing.
type PairingType int

const (
	PairingNone PairingType = iota
	// PairingPinCode means the device shows a PIN that the user must enter.
	PairingPinCode
	// PairingPrompt means the device shows an accept/reject prompt.
	PairingPrompt
)

func (p PairingType) String() string {
	switch p {
	case PairingPinCode:
		return "pin_code"
	case PairingPrompt:
		return "prompt"
	default:
		return "none"
	}
}
