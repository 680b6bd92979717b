package connectionpool

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/network/connector"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/kaspanet/p2pwire/util/crypto"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func newTestThreadPool(t *testing.T) *threadpool.Pool {
	threadPool := threadpool.New(t.Name(), 4)
	threadPool.Start()
	return threadPool
}

func newKeyPair(t *testing.T) *crypto.KeyPair {
	keyPair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return keyPair
}

func newTestSettings() connector.ConnectionSettings {
	settings := connector.DefaultConnectionSettings()
	settings.Timeout = testTimeout
	return settings
}

// testServer accepts and verifies any number of connections.
type testServer struct {
	node     ionet.Node
	inbound  *connector.Inbound
	accepted chan ionet.PacketSocket
}

type listenerNode struct {
	listener net.Listener
	node     ionet.Node
}

// newListenerNode listens on a loopback port and describes it as a node
// owning publicKey.
func newListenerNode(t *testing.T, publicKey crypto.PublicKey) listenerNode {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	host, portString, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portString)
	require.NoError(t, err)

	return listenerNode{
		listener: listener,
		node: ionet.Node{
			Identity: ionet.NodeIdentity{PublicKey: publicKey, Host: host},
			Endpoint: ionet.NodeEndpoint{Host: host, Port: uint16(port)},
		},
	}
}

func startServer(t *testing.T, threadPool *threadpool.Pool, keyPair *crypto.KeyPair,
	settings connector.ConnectionSettings) *testServer {

	listener := newListenerNode(t, keyPair.PublicKey())
	server := &testServer{
		node:     listener.node,
		inbound:  connector.NewInbound(threadPool, keyPair, settings),
		accepted: make(chan ionet.PacketSocket, 8),
	}

	var acceptNext func()
	acceptNext = func() {
		ionet.Accept(threadPool, listener.listener, ionet.DefaultPacketSocketOptions(), nil, func(info ionet.AcceptedSocketInfo) {
			if info.IsEmpty() {
				return
			}
			server.inbound.Accept(info, func(result connector.PeerConnectResult, socket ionet.PacketSocket) {
				if result.Code == connector.PeerConnectCodeAccepted {
					server.accepted <- socket
				}
			})
			acceptNext()
		})
	}
	acceptNext()

	t.Cleanup(server.inbound.Shutdown)
	return server
}

func (server *testServer) awaitAccepted(t *testing.T) ionet.PacketSocket {
	select {
	case socket := <-server.accepted:
		return socket
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the server to accept")
	}
	return nil
}

func connect(t *testing.T, pool *Pool, node ionet.Node) connector.PeerConnectResult {
	results := make(chan connector.PeerConnectResult, 1)
	pool.Connect(node, func(result connector.PeerConnectResult) { results <- result })
	select {
	case result := <-results:
		return result
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for connect")
	}
	return connector.PeerConnectResult{}
}

// connectServers starts numServers servers and connects pool to all of them.
func connectServers(t *testing.T, threadPool *threadpool.Pool, pool *Pool, numServers int) []*testServer {
	servers := make([]*testServer, numServers)
	for i := range servers {
		servers[i] = startServer(t, threadPool, newKeyPair(t), newTestSettings())
		result := connect(t, pool, servers[i].node)
		require.Equal(t, connector.PeerConnectCodeAccepted, result.Code)
	}
	return servers
}

type readResult struct {
	code ionet.SocketOperationCode
	data []byte
}

func readAsync(io ionet.PacketIo) <-chan readResult {
	results := make(chan readResult, 1)
	io.Read(func(code ionet.SocketOperationCode, packet *ionet.Packet) {
		result := readResult{code: code}
		if packet != nil {
			result.data = append([]byte(nil), packet.Data...)
		}
		results <- result
	})
	return results
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

func write(t *testing.T, io ionet.PacketIo, data []byte) ionet.SocketOperationCode {
	codes := make(chan ionet.SocketOperationCode, 1)
	io.Write(ionet.NewPacketPayloadFromBuffers(ionet.PacketTypeUserBase, data), func(code ionet.SocketOperationCode) {
		codes <- code
	})
	select {
	case code := <-codes:
		return code
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for write")
	}
	return ionet.SocketSuccess
}
