package ionet

import (
	"bytes"

	"github.com/kaspanet/p2pwire/util/binaryserializer"
	"github.com/pkg/errors"
)

// PacketPayload is an outgoing packet: a header and the buffers that make up
// its data. The zero value is unset and cannot be written.
type PacketPayload struct {
	header  PacketHeader
	buffers [][]byte
}

// NewPacketPayload creates a payload that writes packet.
func NewPacketPayload(packet *Packet) PacketPayload {
	payload := PacketPayload{header: packet.PacketHeader}
	if len(packet.Data) > 0 {
		payload.buffers = [][]byte{packet.Data}
	}
	return payload
}

// NewPacketPayloadFromBuffers creates a payload of the given type whose data
// is the concatenation of buffers.
func NewPacketPayloadFromBuffers(packetType PacketType, buffers ...[]byte) PacketPayload {
	size := PacketHeaderSize
	for _, buffer := range buffers {
		size += len(buffer)
	}
	return PacketPayload{
		header:  PacketHeader{Size: uint32(size), Type: packetType},
		buffers: buffers,
	}
}

// Header returns the payload header.
func (payload PacketPayload) Header() PacketHeader {
	return payload.header
}

// Buffers returns the data buffers.
func (payload PacketPayload) Buffers() [][]byte {
	return payload.buffers
}

// IsUnset returns whether the payload was never initialized.
func (payload PacketPayload) IsUnset() bool {
	return payload.header.Size == 0
}

// Validate makes sure the header describes the buffers and that the data
// fits in maxDataSize bytes.
func (payload PacketPayload) Validate(maxDataSize uint32) error {
	if payload.IsUnset() {
		return errors.New("cannot write unset payload")
	}
	if payload.header.Size < PacketHeaderSize {
		return errors.Errorf("payload header declares size %d below the header size", payload.header.Size)
	}
	dataSize := 0
	for _, buffer := range payload.buffers {
		dataSize += len(buffer)
	}
	if uint32(dataSize) != payload.header.DataSize() {
		return errors.Errorf("payload header declares %d data bytes but buffers hold %d",
			payload.header.DataSize(), dataSize)
	}
	if payload.header.DataSize() > maxDataSize {
		return errors.Errorf("payload data size %d exceeds the maximum of %d",
			payload.header.DataSize(), maxDataSize)
	}
	return nil
}

func (payload PacketPayload) wireBuffers() [][]byte {
	header := bytes.NewBuffer(make([]byte, 0, PacketHeaderSize))
	payload.header.serialize(header)
	wireBuffers := make([][]byte, 0, 1+len(payload.buffers))
	wireBuffers = append(wireBuffers, header.Bytes())
	for _, buffer := range payload.buffers {
		if len(buffer) > 0 {
			wireBuffers = append(wireBuffers, buffer)
		}
	}
	return wireBuffers
}

// PacketPayloadBuilder assembles a single-buffer payload field by field.
type PacketPayloadBuilder struct {
	packetType PacketType
	data       bytes.Buffer
}

// NewPacketPayloadBuilder starts a payload of the given type.
func NewPacketPayloadBuilder(packetType PacketType) *PacketPayloadBuilder {
	return &PacketPayloadBuilder{packetType: packetType}
}

// AppendBytes appends raw bytes.
func (builder *PacketPayloadBuilder) AppendBytes(data []byte) *PacketPayloadBuilder {
	builder.data.Write(data)
	return builder
}

// AppendUint8 appends a single byte.
func (builder *PacketPayloadBuilder) AppendUint8(value uint8) *PacketPayloadBuilder {
	_ = binaryserializer.PutUint8(&builder.data, value)
	return builder
}

// AppendUint32 appends a little-endian uint32.
func (builder *PacketPayloadBuilder) AppendUint32(value uint32) *PacketPayloadBuilder {
	_ = binaryserializer.PutUint32(&builder.data, value)
	return builder
}

// Build returns the assembled payload.
func (builder *PacketPayloadBuilder) Build() PacketPayload {
	return NewPacketPayloadFromBuffers(builder.packetType, builder.data.Bytes())
}
