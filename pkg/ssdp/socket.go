package ssdp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/castlink/castlink/pkg/logger"
)

const maxDatagramSize = 8192

// Handler receives one raw datagram and its source address.
type Handler func(data []byte, src *net.UDPAddr)

// Socket is the shared SSDP socket pair: one multicast-group member for
// unsolicited NOTIFYs and one unicast socket that sends M-SEARCH and
// receives the replies. It is reference counted; the sockets open on the
// first Acquire and close when the last holder releases.
type Socket struct {
	group *net.UDPAddr
	log   logger.Logger

	mu        sync.Mutex
	refs      int
	mcast     *net.UDPConn
	ucast     *net.UDPConn
	handlers  map[int]Handler
	nextID    int
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewSocket builds a socket bound to the given multicast group. The sockets
// are not opened until the first Acquire.
func NewSocket(address string, port int, log logger.Logger) *Socket {
	return &Socket{
		group:    &net.UDPAddr{IP: net.ParseIP(address), Port: port},
		log:      log,
		handlers: make(map[int]Handler),
	}
}

// Acquire registers a handler and opens the sockets if this is the first
// holder. The returned id releases the handler later.
func (s *Socket) Acquire(h Handler) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		if err := s.open(); err != nil {
			return 0, err
		}
	}

	s.refs++
	s.nextID++
	s.handlers[s.nextID] = h
	return s.nextID, nil
}

// Release drops the handler registered under id. The sockets close when the
// last holder releases.
func (s *Socket) Release(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[id]; !ok {
		return
	}
	delete(s.handlers, id)
	s.refs--
	if s.refs == 0 {
		s.close()
	}
}

// Send writes one datagram to the multicast group from the unicast socket,
// so replies come back to it.
func (s *Socket) Send(data []byte) error {
	s.mu.Lock()
	conn := s.ucast
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("ssdp socket not open")
	}
	if _, err := conn.WriteToUDP(data, s.group); err != nil {
		return fmt.Errorf("ssdp send: %w", err)
	}
	return nil
}

// open binds both sockets and starts their receive loops. Caller holds mu.
func (s *Socket) open() error {
	mcast, err := net.ListenMulticastUDP("udp4", nil, s.group)
	if err != nil {
		return fmt.Errorf("join multicast group %s: %w", s.group, err)
	}
	_ = mcast.SetReadBuffer(maxDatagramSize * 10)

	ucast, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		_ = mcast.Close()
		return fmt.Errorf("bind search socket: %w", err)
	}
	_ = ucast.SetReadBuffer(maxDatagramSize * 10)

	s.mcast = mcast
	s.ucast = ucast
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.receiveLoop(mcast, s.stopCh)
	go s.receiveLoop(ucast, s.stopCh)

	s.log.Debug("ssdp sockets opened",
		logger.String("group", s.group.String()),
		logger.String("search", ucast.LocalAddr().String()))
	return nil
}

// close shuts both sockets down. Caller holds mu.
func (s *Socket) close() {
	close(s.stopCh)
	if s.mcast != nil {
		_ = s.mcast.Close()
		s.mcast = nil
	}
	if s.ucast != nil {
		_ = s.ucast.Close()
		s.ucast = nil
	}
	s.log.Debug("ssdp sockets closed")
}

func (s *Socket) receiveLoop(conn *net.UDPConn, stopCh chan struct{}) {
	defer s.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		// Read deadline lets the loop notice stopCh periodically.
		_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-stopCh:
				return
			default:
			}
			s.log.Warn("ssdp receive error", logger.Error(err))
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		s.dispatch(data, src)
	}
}

func (s *Socket) dispatch(data []byte, src *net.UDPAddr) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(data, src)
	}
}
