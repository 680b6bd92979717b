package tcpserver

import "syscall"

// SO_REUSEADDR lets another socket steal the address on windows, so it is
// never set there.
func reuseAddressControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
