package connector

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/kaspanet/p2pwire/util/crypto"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

type connectOutcome struct {
	result PeerConnectResult
	socket ionet.PacketSocket
}

func newTestPool(t *testing.T) *threadpool.Pool {
	pool := threadpool.New(t.Name(), 2)
	pool.Start()
	return pool
}

func newKeyPair(t *testing.T) *crypto.KeyPair {
	keyPair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return keyPair
}

func newTestSettings() ConnectionSettings {
	settings := DefaultConnectionSettings()
	settings.Timeout = testTimeout
	return settings
}

func newListener(t *testing.T) net.Listener {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	return listener
}

func listenerEndpoint(t *testing.T, listener net.Listener) ionet.NodeEndpoint {
	host, portString, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portString)
	require.NoError(t, err)
	return ionet.NodeEndpoint{Host: host, Port: uint16(port)}
}

func nodeAt(t *testing.T, listener net.Listener, publicKey crypto.PublicKey) ionet.Node {
	endpoint := listenerEndpoint(t, listener)
	return ionet.Node{
		Identity: ionet.NodeIdentity{PublicKey: publicKey, Host: endpoint.Host},
		Endpoint: endpoint,
	}
}

func outcomeCallback(outcomes chan<- connectOutcome) ConnectCallback {
	return func(result PeerConnectResult, socket ionet.PacketSocket) {
		outcomes <- connectOutcome{result: result, socket: socket}
	}
}

func awaitOutcome(t *testing.T, outcomes <-chan connectOutcome) connectOutcome {
	select {
	case outcome := <-outcomes:
		return outcome
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for connection outcome")
	}
	return connectOutcome{}
}

// serveInbound accepts a single connection on listener and verifies it with
// inbound.
func serveInbound(pool *threadpool.Pool, listener net.Listener, inbound *Inbound) <-chan connectOutcome {
	outcomes := make(chan connectOutcome, 1)
	ionet.Accept(pool, listener, ionet.DefaultPacketSocketOptions(), nil, func(info ionet.AcceptedSocketInfo) {
		inbound.Accept(info, outcomeCallback(outcomes))
	})
	return outcomes
}

// acceptSilently accepts connections on listener without ever answering.
func acceptSilently(t *testing.T, listener net.Listener) {
	conns := make(chan net.Conn, 8)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				close(conns)
				return
			}
			conns <- conn
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		for conn := range conns {
			conn.Close()
		}
	})
}

func requireEventuallyInactive(t *testing.T, numActiveConnections func() int) {
	require.Eventually(t, func() bool { return numActiveConnections() == 0 }, testTimeout, 10*time.Millisecond)
}
