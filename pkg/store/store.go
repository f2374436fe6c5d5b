// Package store persists per-service configuration, keyed by service UUID.
package store

import (
	"context"
	"errors"

	"github.com/castlink/castlink/pkg/core"
)

// ErrNotFound is returned when no config exists for a UUID.
var ErrNotFound = errors.New("service config not found")

// ConfigStore loads and saves service configs. At most one config exists
// per service UUID.
type ConfigStore interface {
	Get(ctx context.Context, uuid string) (*core.ServiceConfig, error)
	Put(ctx context.Context, cfg *core.ServiceConfig) error
	Delete(ctx context.Context, uuid string) error
	All(ctx context.Context) ([]*core.ServiceConfig, error)
}

// GetOrCreate returns the stored config for uuid, creating and persisting a
// fresh one when none exists.
func GetOrCreate(ctx context.Context, s ConfigStore, uuid string) (*core.ServiceConfig, error) {
	cfg, err := s.Get(ctx, uuid)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	cfg = core.NewServiceConfig(uuid)
	if err := s.Put(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
