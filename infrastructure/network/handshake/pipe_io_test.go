package handshake

import (
	"sync"

	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
)

// pipeIo is an in-memory PacketIo. Packets written on one end are read on
// the other. Single operations can be made to fail and outgoing packets can
// be tampered with.
type pipeIo struct {
	incoming chan *ionet.Packet
	peer     *pipeIo

	lock        sync.Mutex
	numReads    int
	numWrites   int
	failReadAt  int
	failWriteAt int
	tamper      func(packet *ionet.Packet)
	closed      bool
}

func newPipeIoPair() (*pipeIo, *pipeIo) {
	first := &pipeIo{incoming: make(chan *ionet.Packet, 8)}
	second := &pipeIo{incoming: make(chan *ionet.Packet, 8)}
	first.peer = second
	second.peer = first
	return first, second
}

func (pipe *pipeIo) Read(callback ionet.ReadCallback) {
	pipe.lock.Lock()
	pipe.numReads++
	shouldFail := pipe.numReads == pipe.failReadAt
	pipe.lock.Unlock()

	go func() {
		if shouldFail {
			callback(ionet.SocketReadError, nil)
			return
		}
		packet, ok := <-pipe.incoming
		if !ok {
			callback(ionet.SocketClosed, nil)
			return
		}
		callback(ionet.SocketSuccess, packet)
	}()
}

func (pipe *pipeIo) Write(payload ionet.PacketPayload, callback ionet.WriteCallback) {
	pipe.lock.Lock()
	pipe.numWrites++
	shouldFail := pipe.numWrites == pipe.failWriteAt
	tamper := pipe.tamper
	pipe.lock.Unlock()

	if shouldFail {
		go callback(ionet.SocketWriteError)
		return
	}
	var data []byte
	for _, buffer := range payload.Buffers() {
		data = append(data, buffer...)
	}
	packet := &ionet.Packet{PacketHeader: payload.Header(), Data: data}
	if tamper != nil {
		tamper(packet)
	}
	pipe.peer.deliver(packet)
	go callback(ionet.SocketSuccess)
}

func (pipe *pipeIo) counts() (int, int) {
	pipe.lock.Lock()
	defer pipe.lock.Unlock()
	return pipe.numReads, pipe.numWrites
}

func (pipe *pipeIo) deliver(packet *ionet.Packet) {
	pipe.lock.Lock()
	defer pipe.lock.Unlock()
	if !pipe.closed {
		pipe.incoming <- packet
	}
}

func (pipe *pipeIo) close() {
	pipe.lock.Lock()
	defer pipe.lock.Unlock()
	if !pipe.closed {
		pipe.closed = true
		close(pipe.incoming)
	}
}
