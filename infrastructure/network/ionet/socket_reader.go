package ionet

import (
	"sync/atomic"
)

// SocketReader reads packets from a socket, dispatches them to packet
// handlers and writes the handlers' responses back.
type SocketReader struct {
	socket    PacketSocket
	io        PacketIo
	handlers  *ServerPacketHandlers
	identity  NodeIdentity
	isReading uint32
}

// NewSocketReader creates a reader that reads from socket and writes
// responses through io.
func NewSocketReader(socket PacketSocket, io PacketIo, handlers *ServerPacketHandlers,
	identity NodeIdentity) *SocketReader {

	return &SocketReader{socket: socket, io: io, handlers: handlers, identity: identity}
}

// Read reads one batch of packets. The callback receives SocketSuccess for
// every handled packet and then a terminal code: SocketInsufficientData at
// the end of the batch, or the error that stopped it.
func (reader *SocketReader) Read(callback func(code SocketOperationCode)) {
	if !atomic.CompareAndSwapUint32(&reader.isReading, 0, 1) {
		panic("cannot start simultaneous reads on a socket reader")
	}

	var packets []*Packet
	reader.socket.ReadMultiple(func(code SocketOperationCode, packet *Packet) {
		if code == SocketSuccess {
			packets = append(packets, packet.Copy())
			return
		}
		reader.processNext(packets, code, callback)
	})
}

func (reader *SocketReader) processNext(packets []*Packet, terminalCode SocketOperationCode,
	callback func(code SocketOperationCode)) {

	if len(packets) == 0 {
		reader.complete(terminalCode, callback)
		return
	}

	packet := packets[0]
	context := NewServerPacketHandlerContext(reader.identity.PublicKey, reader.identity.Host)
	if !reader.handlers.Process(packet, context) {
		log.Warnf("Rejecting unknown %s from %s", packet.PacketHeader, reader.identity)
		reader.complete(SocketMalformedData, callback)
		return
	}

	if !context.HasResponse() {
		callback(SocketSuccess)
		reader.processNext(packets[1:], terminalCode, callback)
		return
	}

	reader.io.Write(context.ResponsePayload(), func(code SocketOperationCode) {
		if code != SocketSuccess {
			reader.complete(code, callback)
			return
		}
		callback(SocketSuccess)
		reader.processNext(packets[1:], terminalCode, callback)
	})
}

func (reader *SocketReader) complete(code SocketOperationCode, callback func(code SocketOperationCode)) {
	atomic.StoreUint32(&reader.isReading, 0)
	callback(code)
}

// ChainedSocketReader keeps a SocketReader reading until it fails.
type ChainedSocketReader struct {
	reader     *SocketReader
	completion func(code SocketOperationCode)
}

// NewChainedSocketReader creates a chained reader. completion is called
// once, with the code that stopped reading.
func NewChainedSocketReader(socket PacketSocket, handlers *ServerPacketHandlers, identity NodeIdentity,
	completion func(code SocketOperationCode)) *ChainedSocketReader {

	return &ChainedSocketReader{
		reader:     NewSocketReader(socket, socket, handlers, identity),
		completion: completion,
	}
}

// Start starts reading.
func (chained *ChainedSocketReader) Start() {
	chained.readNext()
}

func (chained *ChainedSocketReader) readNext() {
	chained.reader.Read(func(code SocketOperationCode) {
		switch code {
		case SocketSuccess:
		case SocketInsufficientData:
			chained.readNext()
		default:
			log.Debugf("Stopped reading from %s: %s", chained.reader.identity, code)
			chained.completion(code)
		}
	})
}
