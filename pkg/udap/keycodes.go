package udap

import "strconv"

// Keycode is a Netcast virtual remote keycode sent through HandleKeyInput.
type Keycode int

const (
	KeyPower         Keycode = 1
	KeyNumber0       Keycode = 2
	KeyNumber1       Keycode = 3
	KeyNumber2       Keycode = 4
	KeyNumber3       Keycode = 5
	KeyNumber4       Keycode = 6
	KeyNumber5       Keycode = 7
	KeyNumber6       Keycode = 8
	KeyNumber7       Keycode = 9
	KeyNumber8       Keycode = 10
	KeyNumber9       Keycode = 11
	KeyUp            Keycode = 12
	KeyDown          Keycode = 13
	KeyLeft          Keycode = 14
	KeyRight         Keycode = 15
	KeyOK            Keycode = 20
	KeyHome          Keycode = 21
	KeyMenu          Keycode = 22
	KeyBack          Keycode = 23
	KeyVolumeUp      Keycode = 24
	KeyVolumeDown    Keycode = 25
	KeyMute          Keycode = 26
	KeyChannelUp     Keycode = 27
	KeyChannelDown   Keycode = 28
	KeyBlue          Keycode = 29
	KeyGreen         Keycode = 30
	KeyRed           Keycode = 31
	KeyYellow        Keycode = 32
	KeyPlay          Keycode = 33
	KeyPause         Keycode = 34
	KeyStop          Keycode = 35
	KeyFastForward   Keycode = 36
	KeyRewind        Keycode = 37
	KeySkipForward   Keycode = 38
	KeySkipBackward  Keycode = 39
	KeyRecord        Keycode = 40
	KeyExternalInput Keycode = 47
	KeyVideo3D       Keycode = 400
	KeyDash          Keycode = 402
	KeyExit          Keycode = 412
)

// KeyInputBody renders the HandleKeyInput command envelope for one keycode.
func KeyInputBody(code Keycode) string {
	return MessageBody(APICommand, []Param{
		{Name: "name", Value: "HandleKeyInput"},
		{Name: "value", Value: strconv.Itoa(int(code))},
	})
}
