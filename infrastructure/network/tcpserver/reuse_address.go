//go:build !windows

package tcpserver

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func reuseAddressControl(_, _ string, rawConn syscall.RawConn) error {
	var setErr error
	err := rawConn.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(setErr, "failed to set SO_REUSEADDR")
}
