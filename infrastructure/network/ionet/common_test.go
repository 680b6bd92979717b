package ionet

import (
	"net"
	"testing"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func newTestPool(t *testing.T) *threadpool.Pool {
	pool := threadpool.New(t.Name(), 2)
	pool.Start()
	return pool
}

// newRawConnPair returns both ends of a loopback TCP connection.
func newRawConnPair(t *testing.T) (net.Conn, net.Conn) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	clientConn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	serverConn, ok := <-accepted
	require.True(t, ok)
	return clientConn, serverConn
}

// newSocketPair returns a packet socket and the raw remote end it talks to.
func newSocketPair(t *testing.T, pool *threadpool.Pool, options PacketSocketOptions) (PacketSocket, net.Conn) {
	localConn, remoteConn := newRawConnPair(t)
	return NewPacketSocket(pool, localConn, options), remoteConn
}

type readResult struct {
	code   SocketOperationCode
	packet *Packet
}

func readOnce(t *testing.T, io PacketIo) readResult {
	results := make(chan readResult, 1)
	io.Read(func(code SocketOperationCode, packet *Packet) {
		var copied *Packet
		if packet != nil {
			copied = packet.Copy()
		}
		results <- readResult{code: code, packet: copied}
	})
	return awaitRead(t, results)
}

func awaitRead(t *testing.T, results <-chan readResult) readResult {
	select {
	case result := <-results:
		return result
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for read")
	}
	return readResult{}
}

func writeOnce(t *testing.T, io PacketIo, payload PacketPayload) SocketOperationCode {
	results := make(chan SocketOperationCode, 1)
	io.Write(payload, func(code SocketOperationCode) { results <- code })
	return awaitCode(t, results)
}

func awaitCode(t *testing.T, codes <-chan SocketOperationCode) SocketOperationCode {
	select {
	case code := <-codes:
		return code
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for socket operation")
	}
	return SocketSuccess
}

func socketStats(t *testing.T, socket PacketSocket) SocketStats {
	results := make(chan SocketStats, 1)
	socket.Stats(func(stats SocketStats) { results <- stats })
	select {
	case stats := <-results:
		return stats
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for stats")
	}
	return SocketStats{}
}

func timeAfterTestTimeout() <-chan time.Time {
	return time.After(testTimeout)
}
