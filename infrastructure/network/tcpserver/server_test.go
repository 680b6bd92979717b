package tcpserver

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func startTestServer(t *testing.T, options Options) (*Server, <-chan ionet.AcceptedSocketInfo) {
	pool := threadpool.New(t.Name(), 2)
	pool.Start()

	if len(options.Addresses) == 0 {
		options.Addresses = []string{"127.0.0.1:0"}
	}
	options.SocketOptions = ionet.DefaultPacketSocketOptions()
	accepted := make(chan ionet.AcceptedSocketInfo, 8)
	server := New(pool, options, func(info ionet.AcceptedSocketInfo) { accepted <- info })
	require.NoError(t, server.Start())
	t.Cleanup(func() { server.Stop() })
	return server, accepted
}

func dial(t *testing.T, address net.Addr) net.Conn {
	conn, err := net.Dial("tcp", address.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func awaitAccepted(t *testing.T, accepted <-chan ionet.AcceptedSocketInfo) ionet.AcceptedSocketInfo {
	select {
	case info := <-accepted:
		return info
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for accept")
	}
	return ionet.AcceptedSocketInfo{}
}

func requireClosedByServer(t *testing.T, conn net.Conn) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	_, err := conn.Read(make([]byte, 1))
	require.Error(t, err)
	netErr, isNetErr := err.(net.Error)
	require.False(t, isNetErr && netErr.Timeout(), "connection was not closed")
}

func TestServerAcceptsConnections(t *testing.T) {
	server, accepted := startTestServer(t, Options{ReuseAddress: true})
	addresses := server.Addresses()
	require.Len(t, addresses, 1)

	conn := dial(t, addresses[0])
	info := awaitAccepted(t, accepted)
	require.False(t, info.IsEmpty())
	require.Equal(t, "127.0.0.1", info.Host)
	require.Equal(t, 1, server.NumActiveConnections())

	packet := ionet.NewPacket(ionet.PacketTypeUserBase, []byte{1, 2})
	_, err := conn.Write(packet.Serialize())
	require.NoError(t, err)
	results := make(chan []byte, 1)
	info.Socket.Read(func(code ionet.SocketOperationCode, packet *ionet.Packet) {
		if code != ionet.SocketSuccess {
			close(results)
			return
		}
		results <- append([]byte(nil), packet.Data...)
	})
	require.Equal(t, []byte{1, 2}, <-results)

	// a second connection is accepted as well
	dial(t, addresses[0])
	awaitAccepted(t, accepted)
	require.Equal(t, 2, server.NumActiveConnections())

	info.Socket.Close()
	require.Equal(t, 1, server.NumActiveConnections())
}

func TestServerListensOnAllAddresses(t *testing.T) {
	server, accepted := startTestServer(t, Options{Addresses: []string{"127.0.0.1:0", "127.0.0.1:0"}})
	addresses := server.Addresses()
	require.Len(t, addresses, 2)
	for _, address := range addresses {
		dial(t, address)
		awaitAccepted(t, accepted)
	}
	require.Equal(t, 2, server.NumActiveConnections())
}

func TestServerRejectsConnectionsAboveCap(t *testing.T) {
	server, accepted := startTestServer(t, Options{MaxActiveConnections: 1})
	address := server.Addresses()[0]

	dial(t, address)
	first := awaitAccepted(t, accepted)

	rejected := dial(t, address)
	requireClosedByServer(t, rejected)
	require.Equal(t, 1, server.NumActiveConnections())

	first.Socket.Close()
	dial(t, address)
	awaitAccepted(t, accepted)
	require.Equal(t, 1, server.NumActiveConnections())
}

func TestServerStopClosesConnections(t *testing.T) {
	server, accepted := startTestServer(t, Options{})
	address := server.Addresses()[0]
	conn := dial(t, address)
	awaitAccepted(t, accepted)

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())
	require.Equal(t, 0, server.NumActiveConnections())
	requireClosedByServer(t, conn)

	_, err := net.DialTimeout("tcp", address.String(), time.Second)
	require.Error(t, err)
}

func TestServerStartFailsOnBadAddress(t *testing.T) {
	pool := threadpool.New(t.Name(), 1)
	pool.Start()
	server := New(pool, Options{Addresses: []string{"127.0.0.1:0", "not an address"}}, func(ionet.AcceptedSocketInfo) {})
	require.Error(t, server.Start())
	require.Empty(t, server.Addresses())

	require.Error(t, New(pool, Options{}, func(ionet.AcceptedSocketInfo) {}).Start())
}

// failingListener fails its first numFailures accepts and then accepts from
// the wrapped listener.
type failingListener struct {
	net.Listener
	numFailures int32
	numAccepts  int32
}

func (listener *failingListener) Accept() (net.Conn, error) {
	if atomic.AddInt32(&listener.numAccepts, 1) <= listener.numFailures {
		return nil, errors.New("too many open files")
	}
	return listener.Listener.Accept()
}

func (listener *failingListener) accepts() int32 {
	return atomic.LoadInt32(&listener.numAccepts)
}

func serveFailingListener(t *testing.T, numFailures int32) (*Server, *failingListener, *threadpool.Pool,
	*clock.Mock, <-chan ionet.AcceptedSocketInfo) {

	mock := clock.NewMock()
	pool := threadpool.NewWithClock(t.Name(), 2, mock)
	pool.Start()
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	listener := &failingListener{Listener: inner, numFailures: numFailures}

	accepted := make(chan ionet.AcceptedSocketInfo, 8)
	server := New(pool, Options{SocketOptions: ionet.DefaultPacketSocketOptions()},
		func(info ionet.AcceptedSocketInfo) { accepted <- info })
	server.listeners = []net.Listener{listener}
	server.isStarted = true
	server.acceptNext(listener)
	return server, listener, pool, mock, accepted
}

func (s *Server) numRetryTimers() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.retryTimers)
}

func TestServerRetriesFailedAcceptAfterDelay(t *testing.T) {
	server, listener, pool, mock, accepted := serveFailingListener(t, 2)

	for attempt := int32(1); attempt <= 2; attempt++ {
		require.Eventually(t, func() bool { return server.numRetryTimers() == 1 }, testTimeout, time.Millisecond)
		require.Equal(t, attempt, listener.accepts())

		// nothing is retried before the delay elapses
		mock.Add(acceptRetryDelay - time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		require.Equal(t, attempt, listener.accepts())

		mock.Add(time.Millisecond)
		require.Eventually(t, func() bool { return listener.accepts() == attempt+1 }, testTimeout, time.Millisecond)
	}

	dial(t, listener.Addr())
	info := awaitAccepted(t, accepted)
	require.False(t, info.IsEmpty())
	require.Equal(t, 1, server.NumActiveConnections())

	require.NoError(t, server.Stop())
	pool.Join()
}

func TestServerStopCancelsAcceptRetry(t *testing.T) {
	server, listener, pool, _, _ := serveFailingListener(t, 1)

	require.Eventually(t, func() bool { return server.numRetryTimers() == 1 }, testTimeout, time.Millisecond)
	require.NoError(t, server.Stop())
	require.Equal(t, 0, server.numRetryTimers())

	pool.Join()
	require.Equal(t, int32(1), listener.accepts())
}
