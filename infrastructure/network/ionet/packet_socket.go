package ionet

import (
	"io"
	"net"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/kaspanet/p2pwire/infrastructure/logger"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/pkg/errors"
)

// SocketStats is a snapshot of a socket's state.
type SocketStats struct {
	IsOpen              bool
	NumUnprocessedBytes int
}

// StatsCallback receives socket stats.
type StatsCallback func(stats SocketStats)

// PacketSocket is an asynchronous packet-oriented socket. All callbacks run
// on the socket's lane, so they never run concurrently with each other and
// complete in the order the operations were issued.
type PacketSocket interface {
	PacketIo

	// ReadMultiple delivers every complete buffered packet, reading from the
	// network until at least one is available, and then finishes with
	// SocketInsufficientData.
	ReadMultiple(callback ReadCallback)

	// WaitForData calls back once unread bytes are available without
	// consuming them.
	WaitForData(callback func(code SocketOperationCode))

	// Stats reports the socket state.
	Stats(callback StatsCallback)

	// Close shuts the socket down gracefully.
	Close()

	// Abort resets the connection.
	Abort()

	// ID identifies the socket in logs.
	ID() uint64

	// RemoteAddress returns the address of the remote end.
	RemoteAddress() string
}

var lastSocketID uint64

type pendingWrite struct {
	payload  PacketPayload
	callback WriteCallback
}

type packetSocket struct {
	id      uint64
	conn    net.Conn
	pool    *threadpool.Pool
	lane    *threadpool.Lane
	options PacketSocketOptions

	isReading uint32

	// The fields below are only touched from the lane.
	buffer     *WorkingBuffer
	isClosed   bool
	writeQueue []pendingWrite
	isWriting  bool
}

// NewPacketSocket wraps conn. Operations run on a new lane of pool.
func NewPacketSocket(pool *threadpool.Pool, conn net.Conn, options PacketSocketOptions) PacketSocket {
	socket := &packetSocket{
		id:      atomic.AddUint64(&lastSocketID, 1),
		conn:    conn,
		pool:    pool,
		lane:    pool.NewLane(),
		options: options,
		buffer:  NewWorkingBuffer(options),
	}
	log.Tracef("Created packet socket %d for %s", socket.id, socket.RemoteAddress())
	return socket
}

func (s *packetSocket) ID() uint64 {
	return s.id
}

func (s *packetSocket) RemoteAddress() string {
	if s.conn.RemoteAddr() == nil {
		return "<unknown>"
	}
	return s.conn.RemoteAddr().String()
}

func (s *packetSocket) startRead() {
	if !atomic.CompareAndSwapUint32(&s.isReading, 0, 1) {
		panic(errors.Errorf("socket %d: cannot start a read while another read is outstanding", s.id))
	}
}

func (s *packetSocket) endRead() {
	atomic.StoreUint32(&s.isReading, 0)
}

func (s *packetSocket) finishRead(callback ReadCallback, code SocketOperationCode) {
	s.endRead()
	callback(code, nil)
}

func (s *packetSocket) Read(callback ReadCallback) {
	s.startRead()
	s.lane.Post(func() { s.read(false, callback) })
}

func (s *packetSocket) ReadMultiple(callback ReadCallback) {
	s.startRead()
	s.lane.Post(func() { s.read(true, callback) })
}

func (s *packetSocket) read(isMultiple bool, callback ReadCallback) {
	if s.isClosed {
		s.finishRead(callback, SocketClosed)
		return
	}

	extractor := s.buffer.PreparePacketExtractor()
	numPackets := 0
	for {
		packet, result := extractor.TryExtractNextPacket()
		switch result {
		case PacketExtractSuccess:
			numPackets++
			log.Tracef("Socket %d read %s: %s", s.id, packet.PacketHeader,
				logger.NewLogClosure(func() string { return spew.Sdump(packet.Data) }))
			if !isMultiple {
				s.endRead()
				callback(SocketSuccess, packet)
				extractor.Consume()
				return
			}
			callback(SocketSuccess, packet)

		case PacketExtractInsufficientData:
			extractor.Consume()
			if numPackets > 0 {
				s.finishRead(callback, SocketInsufficientData)
				return
			}
			s.receive(func(code SocketOperationCode) {
				if code != SocketSuccess {
					s.finishRead(callback, code)
					return
				}
				s.read(isMultiple, callback)
			})
			return

		default:
			extractor.Consume()
			log.Warnf("Socket %d read a malformed packet (%s)", s.id, result)
			s.finishRead(callback, SocketMalformedData)
			return
		}
	}
}

// receive reads from the network into the working buffer and calls done on
// the lane.
func (s *packetSocket) receive(done func(code SocketOperationCode)) {
	appendContext := s.buffer.PrepareAppend()
	region := appendContext.Buffer()
	s.pool.Go("packetSocket.receive", func() {
		n, err := s.conn.Read(region)
		s.lane.Post(func() {
			if n > 0 {
				appendContext.Commit(n)
				done(SocketSuccess)
				return
			}
			appendContext.Abandon()
			if err == nil {
				s.receive(done)
				return
			}
			done(s.readErrorCode(err))
		})
	})
}

func (s *packetSocket) readErrorCode(err error) SocketOperationCode {
	if s.isClosed || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		log.Debugf("Socket %d closed during read: %s", s.id, err)
		return SocketClosed
	}
	log.Warnf("Socket %d read failed: %s", s.id, err)
	return SocketReadError
}

func (s *packetSocket) WaitForData(callback func(code SocketOperationCode)) {
	s.startRead()
	s.lane.Post(func() {
		if s.isClosed {
			s.endRead()
			callback(SocketClosed)
			return
		}
		if s.buffer.Size() > 0 {
			s.endRead()
			callback(SocketSuccess)
			return
		}
		s.receive(func(code SocketOperationCode) {
			s.endRead()
			callback(code)
		})
	})
}

func (s *packetSocket) Write(payload PacketPayload, callback WriteCallback) {
	s.lane.Post(func() {
		if s.isClosed {
			callback(SocketClosed)
			return
		}
		err := payload.Validate(s.options.MaxPacketDataSize)
		if err != nil {
			log.Warnf("Socket %d rejected write: %s", s.id, err)
			callback(SocketWriteError)
			return
		}
		s.writeQueue = append(s.writeQueue, pendingWrite{payload: payload, callback: callback})
		if !s.isWriting {
			s.writeNext()
		}
	})
}

// writeNext starts the first queued write. Writes are sent one at a time
// so their bytes never interleave.
func (s *packetSocket) writeNext() {
	for len(s.writeQueue) > 0 && s.isClosed {
		write := s.writeQueue[0]
		s.writeQueue = s.writeQueue[1:]
		write.callback(SocketClosed)
	}
	if len(s.writeQueue) == 0 {
		s.isWriting = false
		return
	}

	s.isWriting = true
	write := s.writeQueue[0]
	s.writeQueue[0] = pendingWrite{}
	s.writeQueue = s.writeQueue[1:]
	log.Tracef("Socket %d writing %s", s.id, write.payload.Header())

	buffers := net.Buffers(write.payload.wireBuffers())
	s.pool.Go("packetSocket.write", func() {
		_, err := buffers.WriteTo(s.conn)
		s.lane.Post(func() {
			code := SocketSuccess
			if err != nil {
				code = s.writeErrorCode(err)
			}
			write.callback(code)
			s.writeNext()
		})
	})
}

func (s *packetSocket) writeErrorCode(err error) SocketOperationCode {
	if s.isClosed || errors.Is(err, net.ErrClosed) {
		return SocketClosed
	}
	log.Warnf("Socket %d write failed: %s", s.id, err)
	return SocketWriteError
}

func (s *packetSocket) Stats(callback StatsCallback) {
	s.lane.Post(func() {
		callback(SocketStats{IsOpen: !s.isClosed, NumUnprocessedBytes: s.buffer.Size()})
	})
}

type closeWriter interface {
	CloseWrite() error
}

type lingerSetter interface {
	SetLinger(sec int) error
}

func (s *packetSocket) Close() {
	s.lane.Post(func() {
		if s.isClosed {
			return
		}
		s.isClosed = true
		log.Debugf("Closing socket %d to %s", s.id, s.RemoteAddress())
		if conn, ok := s.conn.(closeWriter); ok {
			_ = conn.CloseWrite()
		}
		_ = s.conn.Close()
	})
}

func (s *packetSocket) Abort() {
	s.lane.Post(func() {
		if s.isClosed {
			return
		}
		s.isClosed = true
		log.Debugf("Aborting socket %d to %s", s.id, s.RemoteAddress())
		if conn, ok := s.conn.(lingerSetter); ok {
			_ = conn.SetLinger(0)
		}
		_ = s.conn.Close()
	})
}
