package ionet

import (
	"sync"
)

// SocketTracker keeps track of a set of open sockets. A socket leaves the
// tracker once an operation on it fails, once it is closed, or when all
// tracked sockets are aborted.
type SocketTracker struct {
	lock    sync.Mutex
	sockets map[uint64]*trackedSocket
}

// NewSocketTracker creates an empty tracker.
func NewSocketTracker() *SocketTracker {
	return &SocketTracker{sockets: make(map[uint64]*trackedSocket)}
}

// Track adds socket to the tracker. The returned socket must be used in
// place of socket for failures and closing to be noticed.
func (tracker *SocketTracker) Track(socket PacketSocket) PacketSocket {
	tracked := &trackedSocket{PacketSocket: socket, tracker: tracker}
	tracker.lock.Lock()
	defer tracker.lock.Unlock()
	tracker.sockets[socket.ID()] = tracked
	return tracked
}

func (tracker *SocketTracker) remove(socket *trackedSocket) bool {
	tracker.lock.Lock()
	defer tracker.lock.Unlock()
	if _, ok := tracker.sockets[socket.ID()]; !ok {
		return false
	}
	delete(tracker.sockets, socket.ID())
	return true
}

// Size returns the number of tracked sockets.
func (tracker *SocketTracker) Size() int {
	tracker.lock.Lock()
	defer tracker.lock.Unlock()
	return len(tracker.sockets)
}

// AbortAll forcibly closes every tracked socket.
func (tracker *SocketTracker) AbortAll() {
	tracker.lock.Lock()
	sockets := tracker.sockets
	tracker.sockets = make(map[uint64]*trackedSocket)
	tracker.lock.Unlock()

	for _, socket := range sockets {
		socket.PacketSocket.Abort()
	}
}

// trackedSocket is a PacketSocket that removes itself from its tracker once
// it fails or is closed.
type trackedSocket struct {
	PacketSocket
	tracker *SocketTracker
}

func isFailure(code SocketOperationCode) bool {
	return code != SocketSuccess && code != SocketInsufficientData
}

func (socket *trackedSocket) onCode(code SocketOperationCode) {
	if !isFailure(code) {
		return
	}
	if socket.tracker.remove(socket) {
		log.Debugf("Dropping socket %d to %s after %s", socket.ID(), socket.RemoteAddress(), code)
		socket.PacketSocket.Close()
	}
}

func (socket *trackedSocket) Read(callback ReadCallback) {
	socket.PacketSocket.Read(func(code SocketOperationCode, packet *Packet) {
		socket.onCode(code)
		callback(code, packet)
	})
}

func (socket *trackedSocket) ReadMultiple(callback ReadCallback) {
	socket.PacketSocket.ReadMultiple(func(code SocketOperationCode, packet *Packet) {
		socket.onCode(code)
		callback(code, packet)
	})
}

func (socket *trackedSocket) Write(payload PacketPayload, callback WriteCallback) {
	socket.PacketSocket.Write(payload, func(code SocketOperationCode) {
		socket.onCode(code)
		callback(code)
	})
}

func (socket *trackedSocket) WaitForData(callback func(code SocketOperationCode)) {
	socket.PacketSocket.WaitForData(func(code SocketOperationCode) {
		socket.onCode(code)
		callback(code)
	})
}

func (socket *trackedSocket) Close() {
	socket.tracker.remove(socket)
	socket.PacketSocket.Close()
}

func (socket *trackedSocket) Abort() {
	socket.tracker.remove(socket)
	socket.PacketSocket.Abort()
}
