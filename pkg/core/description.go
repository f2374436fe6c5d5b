// Package core holds the domain types shared by discovery, services and
// commands: service descriptions, per-service configuration, connection
// state, capability tags, launch sessions and the error taxonomy.
package core

import (
	"fmt"
	"strings"
)

// EmbeddedService is one sub-service advertised in a device description
// (an AVTransport or RenderingControl entry of a UPnP renderer).
type EmbeddedService struct {
	Type        string // full service type URN
	ID          string // serviceId element, may be empty
	BaseURL     string // absolute base, always ends with "/"
	ControlURL  string // relative or absolute control path
	EventSubURL string
}

// AbsoluteControlURL joins the base URL and the control path.
func (s EmbeddedService) AbsoluteControlURL() string {
	return joinURL(s.BaseURL, s.ControlURL)
}

// AbsoluteEventSubURL joins the base URL and the event subscription path.
func (s EmbeddedService) AbsoluteEventSubURL() string {
	return joinURL(s.BaseURL, s.EventSubURL)
}

func joinURL(base, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if base == "" {
		return path
	}
	if base[len(base)-1] != '/' {
		base += "/"
	}
	if path[0] == '/' {
		path = path[1:]
	}
	return base + path
}

// ServiceDescription identifies one discovered network endpoint. It is an
// immutable snapshot: re-discovery replaces the whole value, fields are
// never mutated in place.
type ServiceDescription struct {
	UUID         string
	FriendlyName string
	ModelName    string
	ModelNumber  string
	Manufacturer string

	IPAddress      string
	Port           int
	ServiceFilter  string // the URN this description matched during discovery
	LocationURL    string // device description XML URL
	ApplicationURL string

	Services []EmbeddedService
}

// BaseURL returns "http://ip:port" for the described endpoint.
func (d *ServiceDescription) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.IPAddress, d.Port)
}

// Service returns the embedded service whose type contains the given
// fragment, or false when none matches.
func (d *ServiceDescription) Service(typeFragment string) (EmbeddedService, bool) {
	for _, s := range d.Services {
		if strings.Contains(s.Type, typeFragment) {
			return s, true
		}
	}
	return EmbeddedService{}, false
}
