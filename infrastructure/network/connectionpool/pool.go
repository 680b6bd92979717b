package connectionpool

import (
	"sync"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/network/connector"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/kaspanet/p2pwire/util/crypto"
)

// ConnectCallback receives the outcome of adding a peer to the pool.
type ConnectCallback func(result connector.PeerConnectResult)

// Pool keeps verified connections to many peers, at most one per identity,
// and lends them out one at a time.
type Pool struct {
	threadPool *threadpool.Pool
	settings   connector.ConnectionSettings
	inbound    *connector.Inbound
	outbound   *connector.Outbound

	lock       sync.Mutex
	entries    entryList
	identities map[string]struct{}
	isShutdown bool
}

// New creates an empty pool authenticating as keyPair.
func New(threadPool *threadpool.Pool, keyPair *crypto.KeyPair, settings connector.ConnectionSettings) *Pool {
	return &Pool{
		threadPool: threadPool,
		settings:   settings,
		inbound:    connector.NewInbound(threadPool, keyPair, settings),
		outbound:   connector.NewOutbound(threadPool, keyPair, settings),
		identities: make(map[string]struct{}),
	}
}

func (pool *Pool) identityKey(identity ionet.NodeIdentity) string {
	return pool.settings.NodeIdentityEqualityStrategy.IdentityKey(identity)
}

// Connect connects to node and adds it to the pool. A node whose identity
// is already in the pool, or is being connected to, is reported as
// PeerConnectCodeAlreadyConnected.
func (pool *Pool) Connect(node ionet.Node, callback ConnectCallback) {
	key := pool.identityKey(node.Identity)

	pool.lock.Lock()
	if pool.isShutdown {
		pool.lock.Unlock()
		callback(connector.PeerConnectResult{Code: connector.PeerConnectCodeConnectCancelled})
		return
	}
	if _, ok := pool.identities[key]; ok {
		pool.lock.Unlock()
		log.Debugf("Bypassing connection to already connected peer %s", node)
		callback(connector.PeerConnectResult{Code: connector.PeerConnectCodeAlreadyConnected})
		return
	}
	pool.identities[key] = struct{}{}
	pool.lock.Unlock()

	pool.outbound.Connect(node, func(result connector.PeerConnectResult, socket ionet.PacketSocket) {
		if result.Code != connector.PeerConnectCodeAccepted {
			pool.lock.Lock()
			delete(pool.identities, key)
			pool.lock.Unlock()
			log.Debugf("Aborting connection to %s: %s", node, result.Code)
			callback(result)
			return
		}

		node.Identity = result.Identity
		callback(pool.addEntry(node, key, socket, result))
	})
}

// Accept verifies an accepted connection and adds it to the pool.
func (pool *Pool) Accept(info ionet.AcceptedSocketInfo, callback ConnectCallback) {
	pool.inbound.Accept(info, func(result connector.PeerConnectResult, socket ionet.PacketSocket) {
		if result.Code != connector.PeerConnectCodeAccepted {
			callback(result)
			return
		}

		key := pool.identityKey(result.Identity)
		pool.lock.Lock()
		if _, ok := pool.identities[key]; ok {
			pool.lock.Unlock()
			log.Debugf("Closing duplicate connection from %s", result.Identity)
			socket.Close()
			callback(connector.PeerConnectResult{Code: connector.PeerConnectCodeAlreadyConnected})
			return
		}
		pool.identities[key] = struct{}{}
		pool.lock.Unlock()

		node := ionet.Node{Identity: result.Identity}
		callback(pool.addEntry(node, key, socket, result))
	})
}

func (pool *Pool) addEntry(node ionet.Node, key string, socket ionet.PacketSocket,
	result connector.PeerConnectResult) connector.PeerConnectResult {

	pool.lock.Lock()
	defer pool.lock.Unlock()
	if pool.isShutdown {
		socket.Close()
		return connector.PeerConnectResult{Code: connector.PeerConnectCodeConnectCancelled}
	}

	pool.entries.add(&entry{
		node:        node,
		key:         key,
		socket:      socket,
		io:          ionet.NewBufferedPacketIo(socket),
		isAvailable: true,
	})
	log.Debugf("Added %s to the pool, %d writers", node, pool.entries.size())
	return result
}

// PickOne checks out the next available connection in round robin order.
// Every read and write through the returned pair must complete within
// timeout, otherwise the connection is dropped from the pool. A non-positive
// timeout disables the limit. The pair is empty when no connection is
// available.
func (pool *Pool) PickOne(timeout time.Duration) ionet.NodePacketIoPair {
	pool.lock.Lock()
	entry := pool.entries.pickNextAvailable()
	pool.lock.Unlock()

	if entry == nil {
		log.Warnf("No packet io available for checkout")
		return ionet.NodePacketIoPair{}
	}

	log.Tracef("Checked out %s for %s", entry.node, timeout)
	io := newCheckedOutIo(pool, entry, timeout)
	return ionet.NewNodePacketIoPair(entry.node, io, io.release)
}

// Broadcast writes payload to every connection that is not checked out.
// Connections failing the write are dropped from the pool.
func (pool *Pool) Broadcast(payload ionet.PacketPayload) {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	for _, entry := range pool.entries.available() {
		entry := entry
		entry.io.Write(payload, func(code ionet.SocketOperationCode) {
			if code == ionet.SocketSuccess {
				return
			}
			log.Warnf("Closing connection to %s due to broadcast write error: %s", entry.node, code)
			pool.removeEntry(entry)
		})
	}
}

func (pool *Pool) makeAvailable(entry *entry) {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	if pool.entries.indexOf(entry) == -1 {
		return
	}
	entry.isAvailable = true
}

func (pool *Pool) removeEntry(entry *entry) bool {
	pool.lock.Lock()
	isRemoved := pool.entries.remove(entry)
	if isRemoved {
		delete(pool.identities, entry.key)
	}
	pool.lock.Unlock()

	if isRemoved {
		log.Debugf("Removed %s from the pool", entry.node)
		entry.socket.Close()
	}
	return isRemoved
}

// CloseOne closes the connection to identity. It returns whether such a
// connection was in the pool.
func (pool *Pool) CloseOne(identity ionet.NodeIdentity) bool {
	pool.lock.Lock()
	entry := pool.entries.findByKey(pool.identityKey(identity))
	pool.lock.Unlock()

	if entry == nil {
		return false
	}
	return pool.removeEntry(entry)
}

// Shutdown closes all connections, including checked out ones and the ones
// still being connected or verified.
func (pool *Pool) Shutdown() {
	log.Infof("Closing all connections in the pool")
	pool.lock.Lock()
	pool.isShutdown = true
	entries := pool.entries.clear()
	pool.identities = make(map[string]struct{})
	pool.lock.Unlock()

	for _, entry := range entries {
		entry.socket.Close()
	}
	pool.inbound.Shutdown()
	pool.outbound.Shutdown()
}

// NumActiveConnections returns the number of connections being verified or
// verified and still open.
func (pool *Pool) NumActiveConnections() int {
	return pool.inbound.NumActiveConnections() + pool.outbound.NumActiveConnections()
}

// NumActiveWriters returns the number of connections in the pool.
func (pool *Pool) NumActiveWriters() int {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	return pool.entries.size()
}

// NumAvailableWriters returns the number of connections in the pool that
// are not checked out.
func (pool *Pool) NumAvailableWriters() int {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	return pool.entries.numAvailable()
}

// NumIdentities returns the number of peer identities in the pool.
func (pool *Pool) NumIdentities() int {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	return pool.entries.size()
}

// Identities returns the identities of the peers in the pool.
func (pool *Pool) Identities() []ionet.NodeIdentity {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	identities := make([]ionet.NodeIdentity, 0, pool.entries.size())
	for _, entry := range pool.entries.entries {
		identities = append(identities, entry.node.Identity)
	}
	return identities
}
