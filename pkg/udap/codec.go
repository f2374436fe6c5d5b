// Package udap implements the UDAP wire format used by Netcast televisions:
// request URL construction, XML command envelopes, the virtual keycode table
// and response parsing for channel lists, app lists and volume status.
package udap

import (
	"fmt"
	"strings"
)

// Request paths exposed by the UDAP HTTP endpoint on the television.
const (
	PathPairing         = "/udap/api/pairing"
	PathData            = "/udap/api/data"
	PathCommand         = "/udap/api/command"
	PathEvent           = "/udap/api/event"
	PathAppToAppData    = "/udap/api/apptoapp/data/"
	PathAppToAppCommand = "/udap/api/apptoapp/command/"
)

// API types carried in the envelope's <api type="..."> attribute.
const (
	APIPairing = "pairing"
	APICommand = "command"
	APIEvent   = "event"
)

// Data targets accepted by the data path's target query parameter.
const (
	TargetChannelList    = "channel_list"
	TargetCurrentChannel = "cur_channel"
	TargetVolumeInfo     = "volume_info"
	TargetAppListGet     = "applist_get"
	TargetAppNumGet      = "appnum_get"
	Target3DMode         = "3DMode"
	TargetIs3D           = "is_3D"
)

// App list type values for applist_get and appnum_get requests.
const (
	AppTypeAll     = 1
	AppTypePremium = 2
	AppTypeMyApps  = 3
)

// UserAgent identifies UDAP clients to the television.
const UserAgent = "UDAP/2.0"

// Param is one named envelope field. Order is preserved in the body.
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

// MessageBody renders a UDAP request envelope for the given API type.
func MessageBody(api string, params []Param) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	sb.WriteString("<envelope>")
	fmt.Fprintf(&sb, `<api type=%q>`, api)
	for _, p := range params {
		fmt.Fprintf(&sb, "<%s>%s</%s>", p.Name, Escape(p.Value), p.Name)
	}
	sb.WriteString("</api>")
	sb.WriteString("</envelope>")
	return sb.String()
}

// RequestOptions carry the optional query parameters of a data request.
// Index and Number only make sense together with Type.
type RequestOptions struct {
	Target string
	Type   string
	Index  string
	Number string
}

// RequestURL builds a UDAP endpoint URL on the given host and port.
func RequestURL(host string, port int, path string, opts *RequestOptions) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "http://%s:%d%s", host, port, path)
	if opts == nil || opts.Target == "" {
		return sb.String()
	}
	sb.WriteString("?target=")
	sb.WriteString(opts.Target)
	if opts.Type != "" {
		sb.WriteString("&type=")
		sb.WriteString(opts.Type)
	}
	if opts.Index != "" {
		sb.WriteString("&index=")
		sb.WriteString(opts.Index)
	}
	if opts.Number != "" {
		sb.WriteString("&number=")
		sb.WriteString(opts.Number)
	}
	return sb.String()
}
