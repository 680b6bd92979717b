package connector

import (
	"net"
	"testing"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/stretchr/testify/require"
)

// acceptRaw accepts a connection on listener for a raw client that never
// talks.
func acceptRaw(t *testing.T, listener net.Listener) ionet.AcceptedSocketInfo {
	pool := newTestPool(t)
	accepted := make(chan ionet.AcceptedSocketInfo, 1)
	ionet.Accept(pool, listener, ionet.DefaultPacketSocketOptions(), nil, func(info ionet.AcceptedSocketInfo) {
		accepted <- info
	})
	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case info := <-accepted:
		require.False(t, info.IsEmpty())
		return info
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for accept")
	}
	return ionet.AcceptedSocketInfo{}
}

func TestInboundRejectsEmptySocket(t *testing.T) {
	inbound := NewInbound(newTestPool(t), newKeyPair(t), newTestSettings())
	outcomes := make(chan connectOutcome, 1)
	inbound.Accept(ionet.AcceptedSocketInfo{}, outcomeCallback(outcomes))

	outcome := awaitOutcome(t, outcomes)
	require.Equal(t, PeerConnectCodeSocketError, outcome.result.Code)
	require.Nil(t, outcome.socket)
	require.Equal(t, 0, inbound.NumActiveConnections())
}

func TestInboundRejectsClaimedSelfConnection(t *testing.T) {
	keyPair := newKeyPair(t)
	info := acceptRaw(t, newListener(t))
	info.PublicKey = keyPair.PublicKey()

	inbound := NewInbound(newTestPool(t), keyPair, newTestSettings())
	outcomes := make(chan connectOutcome, 1)
	inbound.Accept(info, outcomeCallback(outcomes))

	outcome := awaitOutcome(t, outcomes)
	require.Equal(t, PeerConnectCodeSelfConnectionError, outcome.result.Code)
	require.Equal(t, 0, inbound.NumActiveConnections())

	codes := make(chan ionet.SocketOperationCode, 1)
	info.Socket.Read(func(code ionet.SocketOperationCode, _ *ionet.Packet) { codes <- code })
	require.Equal(t, ionet.SocketClosed, <-codes)
}

func TestInboundRejectsVerifiedSelfConnection(t *testing.T) {
	pool := newTestPool(t)
	keyPair := newKeyPair(t)
	listener := newListener(t)
	inbound := NewInbound(pool, keyPair, newTestSettings())
	serverOutcomes := serveInbound(pool, listener, inbound)

	clientSettings := newTestSettings()
	clientSettings.AllowOutgoingSelfConnections = true
	outbound := NewOutbound(pool, keyPair, clientSettings)
	outbound.Connect(nodeAt(t, listener, keyPair.PublicKey()), func(PeerConnectResult, ionet.PacketSocket) {})

	outcome := awaitOutcome(t, serverOutcomes)
	require.Equal(t, PeerConnectCodeSelfConnectionError, outcome.result.Code)
	requireEventuallyInactive(t, inbound.NumActiveConnections)
	outbound.Shutdown()
}

func TestInboundAllowsSelfConnectionWhenConfigured(t *testing.T) {
	pool := newTestPool(t)
	keyPair := newKeyPair(t)
	listener := newListener(t)

	settings := newTestSettings()
	settings.AllowIncomingSelfConnections = true
	settings.AllowOutgoingSelfConnections = true
	inbound := NewInbound(pool, keyPair, settings)
	serverOutcomes := serveInbound(pool, listener, inbound)
	outbound := NewOutbound(pool, keyPair, settings)
	clientOutcomes := make(chan connectOutcome, 1)
	outbound.Connect(nodeAt(t, listener, keyPair.PublicKey()), outcomeCallback(clientOutcomes))

	require.Equal(t, PeerConnectCodeAccepted, awaitOutcome(t, serverOutcomes).result.Code)
	require.Equal(t, PeerConnectCodeAccepted, awaitOutcome(t, clientOutcomes).result.Code)
	inbound.Shutdown()
	outbound.Shutdown()
}

func TestInboundTimesOutWhileVerifying(t *testing.T) {
	settings := newTestSettings()
	settings.Timeout = 100 * time.Millisecond
	inbound := NewInbound(newTestPool(t), newKeyPair(t), settings)
	outcomes := make(chan connectOutcome, 1)
	inbound.Accept(acceptRaw(t, newListener(t)), outcomeCallback(outcomes))

	outcome := awaitOutcome(t, outcomes)
	require.Equal(t, PeerConnectCodeTimedOut, outcome.result.Code)
	require.Nil(t, outcome.socket)
	require.Equal(t, 0, inbound.NumActiveConnections())
}

func TestInboundShutdownClosesVerifyingSocket(t *testing.T) {
	inbound := NewInbound(newTestPool(t), newKeyPair(t), newTestSettings())
	outcomes := make(chan connectOutcome, 1)
	inbound.Accept(acceptRaw(t, newListener(t)), outcomeCallback(outcomes))
	require.Equal(t, 1, inbound.NumActiveConnections())

	inbound.Shutdown()
	require.Equal(t, 0, inbound.NumActiveConnections())
	require.Equal(t, PeerConnectCodeVerifyError, awaitOutcome(t, outcomes).result.Code)
}

func TestPeerConnectCodeStrings(t *testing.T) {
	require.Equal(t, "Self_Connection_Error", PeerConnectCodeSelfConnectionError.String())
	require.Equal(t, "Timed_Out", PeerConnectResult{Code: PeerConnectCodeTimedOut}.String())
}
