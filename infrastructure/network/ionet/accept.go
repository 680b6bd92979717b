package ionet

import (
	"net"

	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/kaspanet/p2pwire/util/crypto"
	"github.com/pkg/errors"
)

// AcceptedSocketInfo describes an accepted connection. The zero value
// reports a failed accept.
type AcceptedSocketInfo struct {
	Host      string
	PublicKey crypto.PublicKey
	Socket    PacketSocket
}

// IsEmpty returns whether the accept failed.
func (info AcceptedSocketInfo) IsEmpty() bool {
	return info.Socket == nil
}

// ConfigureSocketHandler adjusts a raw connection before it is wrapped.
type ConfigureSocketHandler func(conn net.Conn)

// AcceptCallback receives the result of an accept.
type AcceptCallback func(info AcceptedSocketInfo)

// Accept accepts a single connection from listener and calls back on pool
// with the wrapped socket, or with an empty info on failure.
func Accept(pool *threadpool.Pool, listener net.Listener, options PacketSocketOptions,
	configureSocket ConfigureSocketHandler, callback AcceptCallback) {

	pool.Go("ionet.Accept", func() {
		conn, err := listener.Accept()
		if err != nil {
			log.Debugf("Accept on %s failed: %s", listener.Addr(), err)
			pool.Post(func() { callback(AcceptedSocketInfo{}) })
			return
		}

		host, err := remoteHost(conn)
		if err != nil {
			log.Warnf("Closing accepted connection: %s", err)
			_ = conn.Close()
			pool.Post(func() { callback(AcceptedSocketInfo{}) })
			return
		}

		if configureSocket != nil {
			configureSocket(conn)
		}
		info := AcceptedSocketInfo{Host: host, Socket: NewPacketSocket(pool, conn, options)}
		log.Debugf("Accepted connection from %s", conn.RemoteAddr())
		pool.Post(func() { callback(info) })
	})
}

func remoteHost(conn net.Conn) (string, error) {
	remoteAddress := conn.RemoteAddr()
	if remoteAddress == nil {
		return "", errors.New("remote address is unknown")
	}
	if tcpAddress, ok := remoteAddress.(*net.TCPAddr); ok {
		return tcpAddress.IP.String(), nil
	}
	host, _, err := net.SplitHostPort(remoteAddress.String())
	if err != nil {
		return "", errors.Wrapf(err, "cannot resolve remote address %s", remoteAddress)
	}
	return host, nil
}
