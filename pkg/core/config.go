package core

import "time"

// ServiceConfig is the persisted per-service configuration. There is at most
// one live instance per service UUID; stores key it by UUID.
type ServiceConfig struct {
	UUID       string    `json:"uuid"`
	PairingKey string    `json:"pairing_key,omitempty"`
	ClientKey  string    `json:"client_key,omitempty"` // WebOS registration key
	WifiMAC    string    `json:"wifi_mac,omitempty"`
	Connected  time.Time `json:"last_connected,omitempty"`
}

// NewServiceConfig returns an empty config bound to the given UUID.
func NewServiceConfig(uuid string) *ServiceConfig {
	return &ServiceConfig{UUID: uuid}
}
