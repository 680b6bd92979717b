package locks

import (
	"time"
)

// ReceiveFromChanWhenDone runs callback on its own goroutine and returns a
// channel that is closed once callback returns.
func ReceiveFromChanWhenDone(callback func()) <-chan struct{} {
	ch := make(chan struct{})
	spawn("ReceiveFromChanWhenDone", func() {
		defer close(ch)
		callback()
	})
	return ch
}

// WaitFor runs callback and waits at most timeout for it to return. It
// returns false on timeout, in which case callback keeps running in the
// background.
func WaitFor(callback func(), timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ReceiveFromChanWhenDone(callback):
		return true
	case <-timer.C:
		return false
	}
}
