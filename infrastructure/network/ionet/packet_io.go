package ionet

// ReadCallback receives the result of a read. The packet is only set on
// SocketSuccess and is only valid for the duration of the call.
type ReadCallback func(code SocketOperationCode, packet *Packet)

// WriteCallback receives the result of a write.
type WriteCallback func(code SocketOperationCode)

// PacketIo reads and writes whole packets.
type PacketIo interface {
	// Read reads the next packet.
	Read(callback ReadCallback)

	// Write writes payload.
	Write(payload PacketPayload, callback WriteCallback)
}

// NodePacketIoPair is a PacketIo checked out for talking to a node. Release
// must be called once the holder is done with it.
type NodePacketIoPair struct {
	Node    Node
	Io      PacketIo
	release func()
}

// NewNodePacketIoPair pairs node and io. release is called by Release.
func NewNodePacketIoPair(node Node, io PacketIo, release func()) NodePacketIoPair {
	return NodePacketIoPair{Node: node, Io: io, release: release}
}

// IsEmpty returns whether the pair holds no io.
func (pair NodePacketIoPair) IsEmpty() bool {
	return pair.Io == nil
}

// Release returns the io to its owner.
func (pair NodePacketIoPair) Release() {
	if pair.release != nil {
		pair.release()
	}
}
