// Package ssdp implements SSDP discovery: the text codec, a shared
// ref-counted multicast socket, and the periodic search provider that turns
// raw datagrams into service found/lost events.
package ssdp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/castlink/castlink/pkg/core"
)

// Well-known SSDP multicast endpoint.
const (
	MulticastAddress = "239.255.255.250"
	MulticastPort    = 1900
)

// MessageKind classifies a parsed SSDP datagram.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	// KindSearchResponse is a unicast reply to an M-SEARCH.
	KindSearchResponse
	// KindAlive is a NOTIFY with NTS: ssdp:alive.
	KindAlive
	// KindByeBye is a NOTIFY with NTS: ssdp:byebye.
	KindByeBye
	// KindSearch is somebody else's M-SEARCH; providers ignore it.
	KindSearch
)

// Message is one parsed SSDP datagram. Header names are folded to their
// canonical meaning; the raw header map keeps everything else.
type Message struct {
	Kind     MessageKind
	USN      string
	Location string
	ST       string // search target (responses)
	NT       string // notification type (NOTIFY)
	Server   string
	MaxAge   time.Duration // from CACHE-CONTROL, zero when absent
	Headers  map[string]string
}

// Target returns the service type the message advertises: ST for search
// responses, NT for notifications.
func (m *Message) Target() string {
	if m.ST != "" {
		return m.ST
	}
	return m.NT
}

// BuildSearchRequest renders an M-SEARCH datagram for the given search
// target. mx is the maximum response delay in seconds devices may take.
func BuildSearchRequest(st string, mx int) string {
	var sb strings.Builder
	sb.WriteString("M-SEARCH * HTTP/1.1\r\n")
	fmt.Fprintf(&sb, "HOST: %s:%d\r\n", MulticastAddress, MulticastPort)
	sb.WriteString("MAN: \"ssdp:discover\"\r\n")
	fmt.Fprintf(&sb, "MX: %d\r\n", mx)
	fmt.Fprintf(&sb, "ST: %s\r\n", st)
	sb.WriteString("\r\n")
	return sb.String()
}

// Parse decodes one SSDP datagram. Malformed input yields a ParseError.
func Parse(data []byte) (*Message, error) {
	text := string(data)
	lines := strings.Split(text, "\r\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, &core.ParseError{Err: fmt.Errorf("empty datagram")}
	}

	msg := &Message{Headers: make(map[string]string)}

	start := strings.ToUpper(strings.TrimSpace(lines[0]))
	switch {
	case strings.HasPrefix(start, "M-SEARCH"):
		msg.Kind = KindSearch
	case strings.HasPrefix(start, "NOTIFY"):
		msg.Kind = KindAlive // refined below from NTS
	case strings.HasPrefix(start, "HTTP/"):
		msg.Kind = KindSearchResponse
	default:
		return nil, &core.ParseError{Err: fmt.Errorf("unrecognized start line %q", lines[0])}
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		msg.Headers[name] = value

		switch name {
		case "USN":
			msg.USN = value
		case "LOCATION":
			msg.Location = value
		case "ST":
			msg.ST = value
		case "NT":
			msg.NT = value
		case "SERVER":
			msg.Server = value
		case "NTS":
			if strings.EqualFold(value, "ssdp:byebye") {
				msg.Kind = KindByeBye
			}
		case "CACHE-CONTROL":
			msg.MaxAge = parseMaxAge(value)
		}
	}

	return msg, nil
}

func parseMaxAge(value string) time.Duration {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(strings.ToLower(part), "max-age") {
			continue
		}
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
		if err != nil || secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return 0
}

// SplitUSN separates a unique service name into its device UUID and service
// type URN. The URN part is empty for bare "uuid:..." advertisements.
func SplitUSN(usn string) (uuid, urn string) {
	raw := strings.TrimPrefix(usn, "uuid:")
	if idx := strings.Index(raw, "::"); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	return raw, ""
}
