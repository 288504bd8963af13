package connmgr

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// ServerConfig represents the configuration required to run a Server.
type ServerConfig struct {
	Host         string
	Port         int
	Workers      int64
	MaxFrameSize int64
	ReadTimeout  time.Duration
	Handle       func(msg wire.Message, origin peer.Peer)
	EvHandler    EventHandler
}

// Server owns a listening socket and a bounded pool of workers. Each
// accepted connection carries one frame: the worker reads until the
// sender closes its side and hands the parsed frame to the handle function.
// Frames that do not classify as ok are dropped without a reply.
type Server struct {
	cfg      ServerConfig
	self     peer.Peer
	listener net.Listener
	sem      *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewServer constructs a server, the listener is not opened until Start.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = 16 << 20
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		self:   peer.New(cfg.Host, cfg.Port),
		sem:    semaphore.NewWeighted(cfg.Workers),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start opens the listener and starts accepting connections. When the
// configured port is zero the port chosen by the system becomes the port
// the server advertises.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, portString(s.cfg.Port)))
	if err != nil {
		return err
	}

	if addr, ok := ln.Addr().(*net.TCPAddr); ok && s.self.Port == 0 {
		s.self.Port = addr.Port
	}

	s.listener = ln
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	s.cfg.EvHandler("connmgr: server: started: %s", s.self)

	return nil
}

// Self returns the address the server advertises.
func (s *Server) Self() peer.Peer {
	return s.self
}

// Stop closes the listener and waits for the workers to finish.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()

	s.cfg.EvHandler("connmgr: server: stopped: %s", s.self)

	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.cfg.EvHandler("connmgr: accept: ERROR: %s", err)
			continue
		}

		// Blocks the accept loop while every worker is busy.
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

	data, err := io.ReadAll(io.LimitReader(conn, s.cfg.MaxFrameSize+1))
	if err != nil {
		s.cfg.EvHandler("connmgr: read: %s: ERROR: %s", conn.RemoteAddr(), err)
		prometheusFramesDropped.WithLabelValues("read_error").Inc()
		return
	}

	if int64(len(data)) > s.cfg.MaxFrameSize {
		s.cfg.EvHandler("connmgr: read: %s: frame exceeds %d bytes", conn.RemoteAddr(), s.cfg.MaxFrameSize)
		prometheusFramesDropped.WithLabelValues("too_large").Inc()
		return
	}

	msg := wire.Parse(data)
	if !msg.Status.OK() {
		s.cfg.EvHandler("connmgr: read: %s: dropped: %s", conn.RemoteAddr(), msg.Status)
		prometheusFramesDropped.WithLabelValues(msg.Status.String()).Inc()
		return
	}

	prometheusFramesReceived.WithLabelValues(string(msg.Type)).Inc()

	host := conn.RemoteAddr().String()
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		host = addr.IP.String()
	}

	s.cfg.Handle(msg, peer.New(host, msg.Port))
}
