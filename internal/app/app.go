// Package app wires the SDK together for the CLI: configuration, logger,
// config store, event server and the discovery manager.
package app

import (
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/castlink/castlink/internal/config"
	"github.com/castlink/castlink/internal/redis"
	"github.com/castlink/castlink/pkg/discovery"
	"github.com/castlink/castlink/pkg/eventserver"
	"github.com/castlink/castlink/pkg/logger"
	"github.com/castlink/castlink/pkg/ssdp"
	"github.com/castlink/castlink/pkg/store"
)

type App struct {
	Cfg     *config.Config
	Log     logger.Logger
	Store   store.ConfigStore
	Events  *eventserver.Server
	Manager *discovery.Manager

	redisClient *goredis.Client
}

// New loads configuration and builds the full dependency graph. The
// discovery manager is registered but not started.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

	a := &App{Cfg: cfg, Log: log}
	if err := a.buildStore(); err != nil {
		return nil, err
	}

	a.Events = eventserver.New(log)

	socket := ssdp.NewSocket(cfg.SSDPAddress, cfg.SSDPPort, log)
	a.Manager = discovery.NewManager(discovery.Options{
		Socket:         socket,
		Store:          a.Store,
		Events:         a.Events,
		SearchInterval: cfg.SearchInterval,
		Logger:         log,
	})
	a.Manager.RegisterDefaultServices()
	if cfg.PairingEnabled {
		a.Manager.SetPairingLevel(discovery.PairingOn)
	}

	return a, nil
}

func (a *App) buildStore() error {
	switch strings.ToLower(a.Cfg.StoreBackend) {
	case "memory":
		a.Store = store.NewMemoryStore()
		return nil
	case "redis":
		client, err := redis.New(redis.ConnectOptions{
			Addr:           a.Cfg.RedisAddr,
			User:           a.Cfg.RedisUser,
			Password:       a.Cfg.RedisPassword,
			DB:             a.Cfg.RedisDB,
			DialTimeout:    a.Cfg.RedisDialTimeout,
			ReadTimeout:    a.Cfg.RedisReadTimeout,
			WriteTimeout:   a.Cfg.RedisWriteTimeout,
			PoolSize:       a.Cfg.RedisPoolSize,
			ConnectTimeout: a.Cfg.RedisConnectTimeout,
			RetryInterval:  a.Cfg.RedisRetryInterval,
			MaxWait:        a.Cfg.RedisMaxWait,
			PingTimeout:    a.Cfg.RedisPingTimeout,
			WarnThreshold:  a.Cfg.RedisWarnThreshold,
		}, a.Log)
		if err != nil {
			return err
		}
		a.redisClient = client
		a.Store = store.NewRedisStore(client)
		return nil
	default:
		return fmt.Errorf("unknown store backend %q", a.Cfg.StoreBackend)
	}
}

// Close stops discovery and releases the Redis connection.
func (a *App) Close() {
	if a.Manager != nil {
		a.Manager.Stop()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Log.Warn("redis close failed", logger.Error(err))
		}
	}
	_ = a.Log.Sync()
}
