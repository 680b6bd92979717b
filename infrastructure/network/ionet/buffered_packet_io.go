package ionet

import "sync"

// BufferedPacketIo lets several users read from the same socket: reads are
// queued and issued to the socket one at a time. Writes are passed through,
// the socket already serializes them.
type BufferedPacketIo struct {
	socket PacketSocket

	lock      sync.Mutex
	readQueue []ReadCallback
	isReading bool
}

// NewBufferedPacketIo wraps socket.
func NewBufferedPacketIo(socket PacketSocket) *BufferedPacketIo {
	return &BufferedPacketIo{socket: socket}
}

// Read queues a read.
func (bufferedIo *BufferedPacketIo) Read(callback ReadCallback) {
	bufferedIo.lock.Lock()
	bufferedIo.readQueue = append(bufferedIo.readQueue, callback)
	if bufferedIo.isReading {
		bufferedIo.lock.Unlock()
		return
	}
	bufferedIo.isReading = true
	bufferedIo.lock.Unlock()

	bufferedIo.readNext()
}

func (bufferedIo *BufferedPacketIo) readNext() {
	bufferedIo.lock.Lock()
	if len(bufferedIo.readQueue) == 0 {
		bufferedIo.isReading = false
		bufferedIo.lock.Unlock()
		return
	}
	callback := bufferedIo.readQueue[0]
	bufferedIo.readQueue[0] = nil
	bufferedIo.readQueue = bufferedIo.readQueue[1:]
	bufferedIo.lock.Unlock()

	bufferedIo.socket.Read(func(code SocketOperationCode, packet *Packet) {
		callback(code, packet)
		bufferedIo.readNext()
	})
}

// Write writes payload through the socket.
func (bufferedIo *BufferedPacketIo) Write(payload PacketPayload, callback WriteCallback) {
	bufferedIo.socket.Write(payload, callback)
}
