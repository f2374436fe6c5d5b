// Package eventserver runs the HTTP callback endpoint that receives UPnP
// event NOTIFY requests. Renderers deliver events here after a SUBSCRIBE;
// bodies are routed to the handler registered for the request's SID header.
package eventserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/castlink/castlink/pkg/logger"
)

// Handler consumes one NOTIFY body for a subscription.
type Handler func(body []byte)

// Server is the shared NOTIFY endpoint. It starts listening when the first
// SID is registered and stops when the last one is removed.
type Server struct {
	log logger.Logger

	mu       sync.Mutex
	handlers map[string]Handler // SID -> handler
	http     *http.Server
	port     int
}

// New builds an idle server. Nothing listens until a SID is registered.
func New(log logger.Logger) *Server {
	return &Server{
		log:      log.Named("eventserver"),
		handlers: make(map[string]Handler),
	}
}

// Register routes NOTIFY bodies carrying the given SID to h, starting the
// listener on an ephemeral port if it is not running yet.
func (s *Server) Register(sid string, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http == nil {
		if err := s.start(); err != nil {
			return err
		}
	}
	s.handlers[sid] = h
	return nil
}

// Unregister removes a SID route. Removing the last one shuts the listener
// down. Unknown SIDs are ignored.
func (s *Server) Unregister(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.handlers, sid)
	if len(s.handlers) == 0 && s.http != nil {
		srv := s.http
		s.http = nil
		s.port = 0
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}
}

// CallbackURL returns the URL a SUBSCRIBE request should advertise, built
// from the local address that routes to the device.
func (s *Server) CallbackURL(deviceIP string) (string, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == 0 {
		return "", errors.New("event server not running")
	}

	local, err := localAddrFor(deviceIP)
	if err != nil {
		return "", err
	}
	return "http://" + net.JoinHostPort(local, strconv.Itoa(port)) + "/events", nil
}

func (s *Server) start() error {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return err
	}
	s.port = ln.Addr().(*net.TCPAddr).Port

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/events", http.HandlerFunc(s.handleNotify))

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
	}
	s.http = srv

	s.log.Info("event server listening", logger.Int("port", s.port))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("event server stopped", logger.Error(err))
		}
	}()
	return nil
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != "NOTIFY" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sid := r.Header.Get("SID")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	h, ok := s.handlers[sid]
	s.mu.Unlock()

	if !ok {
		s.log.Debug("notify for unknown subscription", logger.String("sid", sid))
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	h(body)
	w.WriteHeader(http.StatusOK)
}

// localAddrFor finds the local IP the OS would use to reach the device.
func localAddrFor(deviceIP string) (string, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(deviceIP, "9"))
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
