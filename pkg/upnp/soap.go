// Package upnp implements the DLNA/UPnP wire formats: SOAP control
// envelopes, device description documents, DIDL-Lite media metadata and the
// eventing property-set payloads.
package upnp

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/castlink/castlink/pkg/core"
)

// Service type URNs of the renderer services the SDK controls.
const (
	AVTransportURN       = "urn:schemas-upnp-org:service:AVTransport:1"
	RenderingControlURN  = "urn:schemas-upnp-org:service:RenderingControl:1"
	ConnectionManagerURN = "urn:schemas-upnp-org:service:ConnectionManager:1"
)

// Param is one named action argument. Order is preserved in the envelope.
type Param struct {
	Name  string
	Value string
}

// Escape replaces the five XML special characters.
func Escape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

// ActionHeader renders the SOAPAction header value for an action.
func ActionHeader(serviceURN, action string) string {
	return fmt.Sprintf("%q", serviceURN+"#"+action)
}

// Envelope renders the SOAP request body for one action. Parameter values
// are XML-escaped; InstanceID is always the first argument.
func Envelope(serviceURN, instanceID, action string, params []Param) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	sb.WriteString("<s:Body>")
	fmt.Fprintf(&sb, `<u:%s xmlns:u=%q>`, action, serviceURN)
	fmt.Fprintf(&sb, "<InstanceID>%s</InstanceID>", instanceID)
	for _, p := range params {
		fmt.Fprintf(&sb, "<%s>%s</%s>", p.Name, Escape(p.Value), p.Name)
	}
	fmt.Fprintf(&sb, "</u:%s>", action)
	sb.WriteString("</s:Body>")
	sb.WriteString("</s:Envelope>")
	return sb.String()
}

// Value extracts the character data of the first element named tag anywhere
// in the document. A missing tag yields a missing-field ParseError.
func Value(body []byte, tag string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != tag {
			continue
		}
		var value string
		if err := dec.DecodeElement(&value, &start); err != nil {
			return "", &core.ParseError{Err: err}
		}
		return value, nil
	}
	return "", core.MissingField(tag)
}

// ActionResponse extracts the argument values of an "<action>Response"
// element into a map. A response missing the element yields a missing-field
// ParseError.
func ActionResponse(body []byte, action string) (map[string]string, error) {
	want := action + "Response"
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != want {
			continue
		}
		return decodeChildren(dec, start)
	}
	return nil, core.MissingField(want)
}

func decodeChildren(dec *xml.Decoder, parent xml.StartElement) (map[string]string, error) {
	out := make(map[string]string)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, &core.ParseError{Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := dec.DecodeElement(&value, &t); err != nil {
				return nil, &core.ParseError{Err: err}
			}
			out[t.Name.Local] = value
		case xml.EndElement:
			if t.Name.Local == parent.Name.Local {
				return out, nil
			}
		}
	}
}
