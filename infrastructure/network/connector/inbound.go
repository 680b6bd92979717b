package connector

import (
	"github.com/kaspanet/p2pwire/infrastructure/network/handshake"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/kaspanet/p2pwire/util/crypto"
)

// Inbound verifies peers that connected to this node. The node acts as the
// verifier of the handshake.
type Inbound struct {
	pool     *threadpool.Pool
	keyPair  *crypto.KeyPair
	settings ConnectionSettings
	sockets  *ionet.SocketTracker
}

// NewInbound creates an inbound connector authenticating as keyPair.
func NewInbound(pool *threadpool.Pool, keyPair *crypto.KeyPair, settings ConnectionSettings) *Inbound {
	return &Inbound{
		pool:     pool,
		keyPair:  keyPair,
		settings: settings,
		sockets:  ionet.NewSocketTracker(),
	}
}

// NumActiveConnections returns the number of sockets being verified or
// handed out that have not failed or been closed yet.
func (inbound *Inbound) NumActiveConnections() int {
	return inbound.sockets.Size()
}

func (inbound *Inbound) isSelf(publicKey crypto.PublicKey) bool {
	return !inbound.settings.AllowIncomingSelfConnections && publicKey == inbound.keyPair.PublicKey()
}

// Accept verifies the peer behind info. callback is called exactly once.
func (inbound *Inbound) Accept(info ionet.AcceptedSocketInfo, callback ConnectCallback) {
	if info.IsEmpty() {
		log.Debugf("Cannot verify an empty accepted socket")
		callback(PeerConnectResult{Code: PeerConnectCodeSocketError}, nil)
		return
	}

	if !info.PublicKey.IsZero() && inbound.isSelf(info.PublicKey) {
		log.Warnf("Rejecting self connection from %s", info.Host)
		info.Socket.Close()
		callback(PeerConnectResult{Code: PeerConnectCodeSelfConnectionError}, nil)
		return
	}

	socket := inbound.sockets.Track(info.Socket)
	timedCallback := threadpool.NewTimedCallback(inbound.pool, func(result PeerConnectResult) {
		if result.Code != PeerConnectCodeAccepted {
			log.Debugf("Failed to accept peer %s: %s", info.Host, result.Code)
			socket.Abort()
			callback(result, nil)
			return
		}
		log.Infof("Accepted peer %s", result)
		callback(result, handshake.SecureSocket(socket, result.SecurityMode, inbound.keyPair,
			result.Identity.PublicKey, inbound.settings.MaxPacketDataSize))
	}, PeerConnectResult{Code: PeerConnectCodeTimedOut})
	timedCallback.SetTimeoutHandler(func() {
		log.Debugf("Verifying peer %s timed out", info.Host)
	})
	if inbound.settings.Timeout > 0 {
		timedCallback.SetTimeout(inbound.settings.Timeout)
	}

	log.Debugf("Verifying peer %s (socket %d)", info.Host, socket.ID())
	handshake.VerifyClient(socket, inbound.keyPair, inbound.settings.IncomingSecurityModes,
		func(result handshake.VerifyResult, peerInfo handshake.VerifiedPeerInfo) {
			if result != handshake.VerifyResultSuccess {
				log.Debugf("Verifying peer %s failed: %s", info.Host, result)
				timedCallback.Callback(PeerConnectResult{Code: PeerConnectCodeVerifyError})
				return
			}
			if inbound.isSelf(peerInfo.PublicKey) {
				log.Warnf("Rejecting verified self connection from %s", info.Host)
				timedCallback.Callback(PeerConnectResult{Code: PeerConnectCodeSelfConnectionError})
				return
			}
			timedCallback.Callback(PeerConnectResult{
				Code:         PeerConnectCodeAccepted,
				Identity:     ionet.NodeIdentity{PublicKey: peerInfo.PublicKey, Host: info.Host},
				SecurityMode: peerInfo.SecurityMode,
			})
		})
}

// Shutdown closes every socket the connector is responsible for.
func (inbound *Inbound) Shutdown() {
	log.Infof("Closing all inbound connections")
	inbound.sockets.AbortAll()
}
