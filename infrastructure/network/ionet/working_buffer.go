package ionet

// PacketExtractResult is the outcome of trying to extract a packet from a
// WorkingBuffer.
type PacketExtractResult int

// PacketExtractResult values.
const (
	PacketExtractSuccess PacketExtractResult = iota
	PacketExtractInsufficientData
	PacketExtractPacketError
	PacketExtractPacketTooLarge
)

func (result PacketExtractResult) String() string {
	switch result {
	case PacketExtractSuccess:
		return "Success"
	case PacketExtractInsufficientData:
		return "Insufficient_Data"
	case PacketExtractPacketError:
		return "Packet_Error"
	case PacketExtractPacketTooLarge:
		return "Packet_Too_Large"
	}
	return "Unknown"
}

// WorkingBuffer accumulates bytes read from a socket and frames them into
// packets. It is not safe for concurrent use; a socket only touches it from
// its lane.
type WorkingBuffer struct {
	options PacketSocketOptions
	data    []byte

	isAppending  bool
	isExtracting bool

	numAppendsSinceCheck int
	highWaterMark        int
}

// NewWorkingBuffer creates an empty buffer.
func NewWorkingBuffer(options PacketSocketOptions) *WorkingBuffer {
	return &WorkingBuffer{
		options: options,
		data:    make([]byte, 0, options.WorkingBufferSize),
	}
}

// Size returns the number of buffered bytes.
func (buffer *WorkingBuffer) Size() int {
	return len(buffer.data)
}

// Capacity returns the number of allocated bytes.
func (buffer *WorkingBuffer) Capacity() int {
	return cap(buffer.data)
}

// Bytes returns the buffered bytes. The slice is only valid until the next
// mutation.
func (buffer *WorkingBuffer) Bytes() []byte {
	return buffer.data
}

// AppendContext is a region reserved at the end of a WorkingBuffer. Bytes
// written into Buffer become part of the WorkingBuffer once committed.
type AppendContext struct {
	buffer *WorkingBuffer
	region []byte
	isDone bool
}

// PrepareAppend reserves WorkingBufferSize bytes at the end of the buffer,
// growing it if needed. Only one append may be prepared at a time and none
// while a packet extractor is outstanding.
func (buffer *WorkingBuffer) PrepareAppend() *AppendContext {
	if buffer.isAppending {
		panic("cannot prepare an append while another append is outstanding")
	}
	if buffer.isExtracting {
		panic("cannot prepare an append while a packet extractor is outstanding")
	}

	appendSize := buffer.options.WorkingBufferSize
	size := len(buffer.data)
	if cap(buffer.data)-size < appendSize {
		newCapacity := 2 * cap(buffer.data)
		if newCapacity < size+appendSize {
			newCapacity = size + appendSize
		}
		grown := make([]byte, size, newCapacity)
		copy(grown, buffer.data)
		buffer.data = grown
	}

	buffer.isAppending = true
	return &AppendContext{buffer: buffer, region: buffer.data[size : size+appendSize]}
}

// Buffer returns the reserved region.
func (context *AppendContext) Buffer() []byte {
	return context.region
}

// Commit appends the first n bytes of the reserved region to the buffer.
func (context *AppendContext) Commit(n int) {
	if context.isDone {
		panic("append context was already released")
	}
	if n < 0 || n > len(context.region) {
		panic("cannot commit more bytes than were reserved")
	}
	buffer := context.buffer
	context.isDone = true
	buffer.isAppending = false
	buffer.data = buffer.data[:len(buffer.data)+n]
	buffer.onAppend()
}

// Abandon releases the reserved region without appending anything.
func (context *AppendContext) Abandon() {
	if context.isDone {
		return
	}
	context.isDone = true
	context.buffer.isAppending = false
}

func (buffer *WorkingBuffer) onAppend() {
	if len(buffer.data) > buffer.highWaterMark {
		buffer.highWaterMark = len(buffer.data)
	}
	if buffer.options.WorkingBufferSensitivity == 0 {
		return
	}
	buffer.numAppendsSinceCheck++
	if buffer.numAppendsSinceCheck < buffer.options.WorkingBufferSensitivity {
		return
	}
	buffer.numAppendsSinceCheck = 0
	buffer.reclaimMemory()
	buffer.highWaterMark = len(buffer.data)
}

// reclaimMemory shrinks the allocation when it is more than twice what the
// high-water mark since the previous check needed. The new allocation leaves
// room for exactly one append.
func (buffer *WorkingBuffer) reclaimMemory() {
	appendSize := buffer.options.WorkingBufferSize
	if cap(buffer.data) <= 2*(buffer.highWaterMark+appendSize) {
		return
	}
	size := len(buffer.data)
	reclaimed := make([]byte, size, size+appendSize)
	copy(reclaimed, buffer.data)
	log.Tracef("Reclaimed working buffer memory: capacity %d -> %d", cap(buffer.data), cap(reclaimed))
	buffer.data = reclaimed
}

// PacketExtractor frames packets out of a WorkingBuffer. Extracted packets
// borrow the buffer and become invalid once Consume is called.
type PacketExtractor struct {
	buffer   *WorkingBuffer
	consumed int
	isDone   bool
}

// PreparePacketExtractor starts an extraction. Only one extractor may be
// outstanding at a time and none while an append is outstanding.
func (buffer *WorkingBuffer) PreparePacketExtractor() *PacketExtractor {
	if buffer.isExtracting {
		panic("cannot prepare a packet extractor while another one is outstanding")
	}
	if buffer.isAppending {
		panic("cannot prepare a packet extractor while an append is outstanding")
	}
	buffer.isExtracting = true
	return &PacketExtractor{buffer: buffer}
}

// TryExtractNextPacket returns the next complete packet, if there is one.
func (extractor *PacketExtractor) TryExtractNextPacket() (*Packet, PacketExtractResult) {
	if extractor.isDone {
		panic("packet extractor was already consumed")
	}
	remaining := extractor.buffer.data[extractor.consumed:]
	if len(remaining) < PacketHeaderSize {
		return nil, PacketExtractInsufficientData
	}

	header := deserializePacketHeader(remaining)
	if header.Size < PacketHeaderSize {
		return nil, PacketExtractPacketError
	}
	if header.DataSize() > extractor.buffer.options.MaxPacketDataSize {
		return nil, PacketExtractPacketTooLarge
	}
	if uint64(len(remaining)) < uint64(header.Size) {
		return nil, PacketExtractInsufficientData
	}

	size := int(header.Size)
	extractor.consumed += size
	return &Packet{PacketHeader: header, Data: remaining[PacketHeaderSize:size:size]}, PacketExtractSuccess
}

// Consume drops the extracted packets from the buffer and ends the
// extraction.
func (extractor *PacketExtractor) Consume() {
	if extractor.isDone {
		return
	}
	extractor.isDone = true
	buffer := extractor.buffer
	if extractor.consumed > 0 {
		remaining := copy(buffer.data, buffer.data[extractor.consumed:])
		buffer.data = buffer.data[:remaining]
	}
	buffer.isExtracting = false
}
