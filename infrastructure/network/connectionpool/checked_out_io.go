package connectionpool

import (
	"sync"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
)

// checkedOutIo is the io handed out by PickOne. The entry returns to the
// pool once the io is released and all operations issued through it have
// completed. A failed operation or an expired timeout drops the entry.
type checkedOutIo struct {
	pool       *Pool
	entry      *entry
	completion *threadpool.TimedCallback[bool]

	lock          sync.Mutex
	numPending    int
	isReleased    bool
	isFailed      bool
	isCompleteSet bool
}

func newCheckedOutIo(pool *Pool, entry *entry, timeout time.Duration) *checkedOutIo {
	io := &checkedOutIo{pool: pool, entry: entry}
	io.completion = threadpool.NewTimedCallback(pool.threadPool, func(isCompleted bool) {
		log.Tracef("Completed checkout of %s, success? %t", entry.node, isCompleted)
		if isCompleted {
			pool.makeAvailable(entry)
		}
	}, false)
	io.completion.SetTimeoutHandler(func() {
		log.Warnf("Dropping %s: checked out io timed out", entry.node)
		io.fail()
	})
	if timeout > 0 {
		io.completion.SetTimeout(timeout)
	}
	return io
}

func (io *checkedOutIo) Read(callback ionet.ReadCallback) {
	io.startOperation()
	io.entry.io.Read(func(code ionet.SocketOperationCode, packet *ionet.Packet) {
		io.checkCode(code, "read")
		callback(code, packet)
		io.endOperation()
	})
}

func (io *checkedOutIo) Write(payload ionet.PacketPayload, callback ionet.WriteCallback) {
	io.startOperation()
	io.entry.io.Write(payload, func(code ionet.SocketOperationCode) {
		io.checkCode(code, "write")
		callback(code)
		io.endOperation()
	})
}

func (io *checkedOutIo) checkCode(code ionet.SocketOperationCode, operation string) {
	if code == ionet.SocketSuccess {
		return
	}
	log.Warnf("Dropping %s due to %s error: %s", io.entry.node, operation, code)
	io.fail()
}

func (io *checkedOutIo) fail() {
	io.lock.Lock()
	io.isFailed = true
	io.lock.Unlock()
	io.pool.removeEntry(io.entry)
}

func (io *checkedOutIo) startOperation() {
	io.lock.Lock()
	defer io.lock.Unlock()
	io.numPending++
}

func (io *checkedOutIo) endOperation() {
	io.lock.Lock()
	io.numPending--
	isDone := io.isDoneLocked()
	io.lock.Unlock()

	if isDone {
		io.complete()
	}
}

func (io *checkedOutIo) release() {
	io.lock.Lock()
	if io.isReleased {
		io.lock.Unlock()
		return
	}
	io.isReleased = true
	isDone := io.isDoneLocked()
	io.lock.Unlock()

	if isDone {
		io.complete()
	}
}

func (io *checkedOutIo) isDoneLocked() bool {
	if !io.isReleased || io.numPending > 0 || io.isCompleteSet {
		return false
	}
	io.isCompleteSet = true
	return true
}

func (io *checkedOutIo) complete() {
	io.lock.Lock()
	isFailed := io.isFailed
	io.lock.Unlock()
	io.completion.Callback(!isFailed)
}
