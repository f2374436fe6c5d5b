package service

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/castlink/castlink/pkg/logger"
)

const (
	reachabilityInterval = 10 * time.Second
	reachabilityTimeout  = 3 * time.Second
)

// reachabilityMonitor probes a device endpoint with periodic TCP dials while
// a service is connected. A failed probe fires onLost once and the monitor
// stops itself.
type reachabilityMonitor struct {
	addr     string
	onLost   func()
	log      logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newReachabilityMonitor(ip string, port int, onLost func(), log logger.Logger) *reachabilityMonitor {
	return &reachabilityMonitor{
		addr:   net.JoinHostPort(ip, strconv.Itoa(port)),
		onLost: onLost,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

func (m *reachabilityMonitor) Start() {
	go m.loop()
}

func (m *reachabilityMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *reachabilityMonitor) loop() {
	ticker := time.NewTicker(reachabilityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", m.addr, reachabilityTimeout)
			if err != nil {
				m.log.Info("device unreachable", logger.String("addr", m.addr))
				m.onLost()
				return
			}
			_ = conn.Close()
		}
	}
}
