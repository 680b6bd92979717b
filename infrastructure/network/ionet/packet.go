package ionet

import (
	"bytes"
	"fmt"

	"github.com/kaspanet/p2pwire/util/binaryserializer"
)

// PacketHeaderSize is the size of the header prepended to every packet on
// the wire.
const PacketHeaderSize = 8

// PacketType identifies the kind of a packet.
type PacketType uint32

// Packet types known to the transport itself. Types from PacketTypeUserBase
// upward belong to the packet handlers of the node.
const (
	PacketTypeUndefined       PacketType = 0
	PacketTypeServerChallenge PacketType = 1
	PacketTypeClientChallenge PacketType = 2
	PacketTypeSecureSigned    PacketType = 3
	PacketTypeUserBase        PacketType = 100
)

func (packetType PacketType) String() string {
	switch packetType {
	case PacketTypeUndefined:
		return "Undefined"
	case PacketTypeServerChallenge:
		return "ServerChallenge"
	case PacketTypeClientChallenge:
		return "ClientChallenge"
	case PacketTypeSecureSigned:
		return "SecureSigned"
	}
	return fmt.Sprintf("PacketType(%d)", uint32(packetType))
}

// PacketHeader is the fixed-size prefix of every packet. Size counts the
// header itself.
type PacketHeader struct {
	Size uint32
	Type PacketType
}

// DataSize returns the size of the data following the header.
func (header PacketHeader) DataSize() uint32 {
	if header.Size < PacketHeaderSize {
		return 0
	}
	return header.Size - PacketHeaderSize
}

func (header PacketHeader) String() string {
	return fmt.Sprintf("packet %s (size %d)", header.Type, header.Size)
}

func (header PacketHeader) serialize(buffer *bytes.Buffer) {
	// Writes to a bytes.Buffer cannot fail.
	_ = binaryserializer.PutUint32(buffer, header.Size)
	_ = binaryserializer.PutUint32(buffer, uint32(header.Type))
}

// deserializePacketHeader decodes the first PacketHeaderSize bytes of
// serialized, which the caller guarantees are present.
func deserializePacketHeader(serialized []byte) PacketHeader {
	reader := bytes.NewReader(serialized[:PacketHeaderSize])
	size, _ := binaryserializer.Uint32(reader)
	packetType, _ := binaryserializer.Uint32(reader)
	return PacketHeader{Size: size, Type: PacketType(packetType)}
}

// Packet is a header together with its data. Packets handed out by a
// socket borrow the socket's buffer and are only valid inside the callback
// they were passed to; use Copy to keep one.
type Packet struct {
	PacketHeader
	Data []byte
}

// NewPacket creates a packet owning data.
func NewPacket(packetType PacketType, data []byte) *Packet {
	return &Packet{
		PacketHeader: PacketHeader{Size: uint32(PacketHeaderSize + len(data)), Type: packetType},
		Data:         data,
	}
}

// Copy returns a packet that owns a copy of the data.
func (packet *Packet) Copy() *Packet {
	data := make([]byte, len(packet.Data))
	copy(data, packet.Data)
	return &Packet{PacketHeader: packet.PacketHeader, Data: data}
}

// Serialize returns the wire encoding of the packet.
func (packet *Packet) Serialize() []byte {
	buffer := bytes.NewBuffer(make([]byte, 0, PacketHeaderSize+len(packet.Data)))
	packet.PacketHeader.serialize(buffer)
	buffer.Write(packet.Data)
	return buffer.Bytes()
}
