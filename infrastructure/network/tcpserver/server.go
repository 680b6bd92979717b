package tcpserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// acceptRetryDelay is how long a listener rests after a failed accept.
const acceptRetryDelay = 100 * time.Millisecond

// AcceptHandler receives every accepted connection. The socket in info is
// tracked by the server until it fails or is closed.
type AcceptHandler func(info ionet.AcceptedSocketInfo)

// Options configure a Server.
type Options struct {
	// Addresses are the host:port pairs to listen on.
	Addresses []string

	// MaxActiveConnections caps the number of open accepted connections.
	// Connections accepted beyond it are closed immediately. Zero means no
	// cap.
	MaxActiveConnections int

	// ReuseAddress sets SO_REUSEADDR on the listening sockets.
	ReuseAddress bool

	SocketOptions ionet.PacketSocketOptions
}

// Server accepts connections on a set of addresses and hands them to an
// AcceptHandler.
type Server struct {
	pool    *threadpool.Pool
	options Options
	handler AcceptHandler
	sockets *ionet.SocketTracker

	lock        sync.Mutex
	listeners   []net.Listener
	retryTimers map[*threadpool.Timer]struct{}
	isStarted   bool
	isStopped   bool
}

// New creates a server. Nothing is listened on until Start is called.
func New(pool *threadpool.Pool, options Options, handler AcceptHandler) *Server {
	return &Server{
		pool:    pool,
		options: options,
		handler: handler,
		sockets: ionet.NewSocketTracker(),

		retryTimers: make(map[*threadpool.Timer]struct{}),
	}
}

// Start listens on all configured addresses and starts accepting.
func (s *Server) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.isStarted {
		return errors.New("server already started")
	}
	if len(s.options.Addresses) == 0 {
		return errors.New("no addresses to listen on")
	}

	listenConfig := net.ListenConfig{}
	if s.options.ReuseAddress {
		listenConfig.Control = reuseAddressControl
	}
	for _, address := range s.options.Addresses {
		listener, err := listenConfig.Listen(context.Background(), "tcp", address)
		if err != nil {
			closeErr := closeListeners(s.listeners)
			s.listeners = nil
			return multierr.Append(errors.Wrapf(err, "failed to listen on %s", address), closeErr)
		}
		log.Infof("Listening on %s", listener.Addr())
		s.listeners = append(s.listeners, listener)
	}

	s.isStarted = true
	for _, listener := range s.listeners {
		s.acceptNext(listener)
	}
	return nil
}

func (s *Server) acceptNext(listener net.Listener) {
	ionet.Accept(s.pool, listener, s.options.SocketOptions, configureConn, func(info ionet.AcceptedSocketInfo) {
		s.onAccept(listener, info)
	})
}

func configureConn(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		err := tcpConn.SetNoDelay(true)
		if err != nil {
			log.Debugf("Failed to disable Nagle's algorithm for %s: %s", conn.RemoteAddr(), err)
		}
	}
}

func (s *Server) onAccept(listener net.Listener, info ionet.AcceptedSocketInfo) {
	s.lock.Lock()
	isStopped := s.isStopped
	s.lock.Unlock()

	if isStopped {
		if !info.IsEmpty() {
			info.Socket.Abort()
		}
		return
	}

	if info.IsEmpty() {
		log.Warnf("Failed to accept a connection on %s, retrying in %s", listener.Addr(), acceptRetryDelay)
		s.retryAccept(listener)
		return
	}

	if s.options.MaxActiveConnections > 0 && s.sockets.Size() >= s.options.MaxActiveConnections {
		log.Warnf("Rejecting connection from %s: %d connections are already active",
			info.Host, s.options.MaxActiveConnections)
		info.Socket.Abort()
		s.acceptNext(listener)
		return
	}

	info.Socket = s.sockets.Track(info.Socket)
	s.acceptNext(listener)
	s.handler(info)
}

func (s *Server) retryAccept(listener net.Listener) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.isStopped {
		return
	}

	var timer *threadpool.Timer
	timer = s.pool.AfterFunc(acceptRetryDelay, func() {
		s.lock.Lock()
		delete(s.retryTimers, timer)
		s.lock.Unlock()
		s.acceptNext(listener)
	})
	s.retryTimers[timer] = struct{}{}
}

// Addresses returns the addresses actually listened on.
func (s *Server) Addresses() []net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	addresses := make([]net.Addr, len(s.listeners))
	for i, listener := range s.listeners {
		addresses[i] = listener.Addr()
	}
	return addresses
}

// NumActiveConnections returns the number of accepted connections that are
// still open.
func (s *Server) NumActiveConnections() int {
	return s.sockets.Size()
}

// Stop stops listening and closes all accepted connections.
func (s *Server) Stop() error {
	s.lock.Lock()
	if s.isStopped {
		s.lock.Unlock()
		return nil
	}
	s.isStopped = true
	listeners := s.listeners
	for timer := range s.retryTimers {
		timer.Stop()
	}
	s.retryTimers = make(map[*threadpool.Timer]struct{})
	s.lock.Unlock()

	err := closeListeners(listeners)
	s.sockets.AbortAll()
	log.Infof("Server stopped")
	return err
}

func closeListeners(listeners []net.Listener) error {
	var err error
	for _, listener := range listeners {
		err = multierr.Append(err, errors.Wrapf(listener.Close(), "failed to close %s", listener.Addr()))
	}
	return err
}
