package connector

import (
	"sync"

	"github.com/kaspanet/p2pwire/infrastructure/network/handshake"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/kaspanet/p2pwire/util/crypto"
)

// Outbound connects to peers and proves this node's identity to them. The
// node acts as the prover of the handshake.
type Outbound struct {
	pool     *threadpool.Pool
	keyPair  *crypto.KeyPair
	settings ConnectionSettings
	sockets  *ionet.SocketTracker

	attemptsLock sync.Mutex
	attempts     map[*connectAttempt]struct{}
}

// NewOutbound creates an outbound connector authenticating as keyPair.
func NewOutbound(pool *threadpool.Pool, keyPair *crypto.KeyPair, settings ConnectionSettings) *Outbound {
	return &Outbound{
		pool:     pool,
		keyPair:  keyPair,
		settings: settings,
		sockets:  ionet.NewSocketTracker(),
		attempts: make(map[*connectAttempt]struct{}),
	}
}

// NumActiveConnections returns the number of sockets being verified or
// handed out that have not failed or been closed yet.
func (outbound *Outbound) NumActiveConnections() int {
	return outbound.sockets.Size()
}

// Connect connects to node and verifies that it owns the node's public key.
// callback is called exactly once. The returned function cancels the attempt
// if it is still in progress.
func (outbound *Outbound) Connect(node ionet.Node, callback ConnectCallback) ionet.CancelFunc {
	if !outbound.settings.AllowOutgoingSelfConnections && node.Identity.PublicKey == outbound.keyPair.PublicKey() {
		log.Warnf("Not connecting to %s: it is this node", node)
		callback(PeerConnectResult{Code: PeerConnectCodeSelfConnectionError}, nil)
		return func() {}
	}

	attempt := &connectAttempt{outbound: outbound, node: node}
	attempt.timedCallback = threadpool.NewTimedCallback(outbound.pool, func(result PeerConnectResult) {
		attempt.complete(result, callback)
	}, PeerConnectResult{Code: PeerConnectCodeTimedOut})
	attempt.timedCallback.SetTimeoutHandler(func() {
		log.Debugf("Connecting to %s timed out", node)
	})

	outbound.attemptsLock.Lock()
	outbound.attempts[attempt] = struct{}{}
	outbound.attemptsLock.Unlock()

	if outbound.settings.Timeout > 0 {
		attempt.timedCallback.SetTimeout(outbound.settings.Timeout)
	}

	log.Debugf("Connecting to %s", node)
	cancelConnect := ionet.Connect(outbound.pool, outbound.settings.PacketSocketOptions(), node.Endpoint, attempt.onConnect)
	attempt.setCancelConnect(cancelConnect)
	return attempt.cancel
}

func (outbound *Outbound) removeAttempt(attempt *connectAttempt) {
	outbound.attemptsLock.Lock()
	defer outbound.attemptsLock.Unlock()
	delete(outbound.attempts, attempt)
}

// Shutdown cancels all pending connection attempts and closes every socket
// the connector is responsible for.
func (outbound *Outbound) Shutdown() {
	log.Infof("Closing all outbound connections")
	outbound.attemptsLock.Lock()
	attempts := make([]*connectAttempt, 0, len(outbound.attempts))
	for attempt := range outbound.attempts {
		attempts = append(attempts, attempt)
	}
	outbound.attemptsLock.Unlock()

	for _, attempt := range attempts {
		attempt.cancel()
	}
	outbound.sockets.AbortAll()
}

// connectAttempt is a single outgoing connection going through connecting
// and verifying.
type connectAttempt struct {
	outbound      *Outbound
	node          ionet.Node
	timedCallback *threadpool.TimedCallback[PeerConnectResult]

	lock          sync.Mutex
	isAborted     bool
	cancelConnect ionet.CancelFunc
	socket        ionet.PacketSocket
}

func (attempt *connectAttempt) setCancelConnect(cancelConnect ionet.CancelFunc) {
	attempt.lock.Lock()
	isAborted := attempt.isAborted
	attempt.cancelConnect = cancelConnect
	attempt.lock.Unlock()

	if isAborted {
		cancelConnect()
	}
}

func (attempt *connectAttempt) onConnect(result ionet.ConnectResult, socket ionet.PacketSocket) {
	switch result {
	case ionet.ConnectResultConnected:
	case ionet.ConnectResultConnectCancelled:
		attempt.timedCallback.Callback(PeerConnectResult{Code: PeerConnectCodeConnectCancelled})
		return
	default:
		log.Debugf("Connecting to %s failed: %s", attempt.node, result)
		attempt.timedCallback.Callback(PeerConnectResult{Code: PeerConnectCodeSocketError})
		return
	}

	attempt.lock.Lock()
	if attempt.isAborted {
		attempt.lock.Unlock()
		socket.Abort()
		return
	}
	tracked := attempt.outbound.sockets.Track(socket)
	attempt.socket = tracked
	attempt.lock.Unlock()

	log.Debugf("Connected to %s (socket %d), verifying", attempt.node, tracked.ID())
	handshake.VerifyServer(tracked, attempt.node.Identity.PublicKey, attempt.outbound.settings.OutgoingSecurityMode,
		attempt.outbound.keyPair, func(result handshake.VerifyResult, peerInfo handshake.VerifiedPeerInfo) {
			if result != handshake.VerifyResultSuccess {
				log.Debugf("Verifying %s failed: %s", attempt.node, result)
				attempt.timedCallback.Callback(PeerConnectResult{Code: PeerConnectCodeVerifyError})
				return
			}
			attempt.timedCallback.Callback(PeerConnectResult{
				Code:         PeerConnectCodeAccepted,
				Identity:     ionet.NodeIdentity{PublicKey: peerInfo.PublicKey, Host: attempt.node.Identity.Host},
				SecurityMode: peerInfo.SecurityMode,
			})
		})
}

// abort stops whatever step is in flight.
func (attempt *connectAttempt) abort() {
	attempt.lock.Lock()
	attempt.isAborted = true
	cancelConnect := attempt.cancelConnect
	socket := attempt.socket
	attempt.lock.Unlock()

	if cancelConnect != nil {
		cancelConnect()
	}
	if socket != nil {
		socket.Abort()
	}
}

func (attempt *connectAttempt) cancel() {
	attempt.timedCallback.Callback(PeerConnectResult{Code: PeerConnectCodeConnectCancelled})
}

func (attempt *connectAttempt) complete(result PeerConnectResult, callback ConnectCallback) {
	attempt.outbound.removeAttempt(attempt)
	if result.Code != PeerConnectCodeAccepted {
		attempt.abort()
		log.Debugf("Failed to connect to %s: %s", attempt.node, result.Code)
		callback(result, nil)
		return
	}

	attempt.lock.Lock()
	socket := attempt.socket
	attempt.lock.Unlock()
	log.Infof("Connected to peer %s", result)
	callback(result, handshake.SecureSocket(socket, result.SecurityMode, attempt.outbound.keyPair,
		result.Identity.PublicKey, attempt.outbound.settings.MaxPacketDataSize))
}
