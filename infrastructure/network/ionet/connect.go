package ionet

import (
	"context"
	"net"
	"sync"

	"github.com/btcsuite/go-socks/socks"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/pkg/errors"
)

// ConnectCallback receives the result of a connection attempt. socket is
// only set on ConnectResultConnected.
type ConnectCallback func(result ConnectResult, socket PacketSocket)

// CancelFunc cancels a pending connection attempt.
type CancelFunc func()

type connectHandler struct {
	pool     *threadpool.Pool
	options  PacketSocketOptions
	endpoint NodeEndpoint
	callback ConnectCallback

	lock          sync.Mutex
	isCancelled   bool
	isCompleted   bool
	cancelContext context.CancelFunc
}

// Connect resolves endpoint and connects to it. The callback is invoked on
// pool exactly once. Calling the returned CancelFunc before completion aborts
// the attempt, which then completes with ConnectResultConnectCancelled.
func Connect(pool *threadpool.Pool, options PacketSocketOptions, endpoint NodeEndpoint,
	callback ConnectCallback) CancelFunc {

	ctx, cancelContext := context.WithCancel(context.Background())
	handler := &connectHandler{
		pool:          pool,
		options:       options,
		endpoint:      endpoint,
		callback:      callback,
		cancelContext: cancelContext,
	}
	pool.Go("ionet.Connect", func() {
		defer cancelContext()
		handler.run(ctx)
	})
	return handler.cancel
}

func (handler *connectHandler) run(ctx context.Context) {
	if handler.options.Proxy != nil {
		conn, err := handler.dialProxy()
		if err != nil {
			log.Debugf("Connecting to %s through proxy failed: %s", handler.endpoint, err)
			handler.complete(ConnectResultConnectError, nil)
			return
		}
		handler.complete(ConnectResultConnected, conn)
		return
	}

	addresses, err := handler.resolve(ctx)
	if err != nil {
		log.Debugf("Resolving %s failed: %s", handler.endpoint, err)
		handler.complete(ConnectResultResolveError, nil)
		return
	}

	conn, err := handler.dial(ctx, addresses)
	if err != nil {
		log.Debugf("Connecting to %s failed: %s", handler.endpoint, err)
		handler.complete(ConnectResultConnectError, nil)
		return
	}
	handler.complete(ConnectResultConnected, conn)
}

func (handler *connectHandler) resolve(ctx context.Context) ([]string, error) {
	ipAddresses, err := net.DefaultResolver.LookupIPAddr(ctx, handler.endpoint.Host)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var addresses []string
	for _, ipAddress := range ipAddresses {
		protocol := IPProtocolIPv6
		if ipAddress.IP.To4() != nil {
			protocol = IPProtocolIPv4
		}
		if !handler.options.AcceptedProtocols.Allows(protocol) {
			continue
		}
		endpoint := NodeEndpoint{Host: ipAddress.IP.String(), Port: handler.endpoint.Port}
		addresses = append(addresses, endpoint.Address())
	}
	if len(addresses) == 0 {
		return nil, errors.Errorf("%s has no address in an accepted IP family", handler.endpoint.Host)
	}
	return addresses, nil
}

func (handler *connectHandler) dial(ctx context.Context, addresses []string) (net.Conn, error) {
	dialer := net.Dialer{}
	var lastErr error
	for _, address := range addresses {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.WithStack(lastErr)
}

func (handler *connectHandler) dialProxy() (net.Conn, error) {
	proxy := &socks.Proxy{
		Addr:     handler.options.Proxy.Address,
		Username: handler.options.Proxy.Username,
		Password: handler.options.Proxy.Password,
	}
	conn, err := proxy.Dial("tcp", handler.endpoint.Address())
	return conn, errors.WithStack(err)
}

func (handler *connectHandler) complete(result ConnectResult, conn net.Conn) {
	handler.lock.Lock()
	if handler.isCancelled {
		result = ConnectResultConnectCancelled
	}
	handler.isCompleted = true
	handler.lock.Unlock()

	var socket PacketSocket
	if result == ConnectResultConnected {
		socket = NewPacketSocket(handler.pool, conn, handler.options)
	} else if conn != nil {
		_ = conn.Close()
	}
	handler.pool.Post(func() { handler.callback(result, socket) })
}

func (handler *connectHandler) cancel() {
	handler.lock.Lock()
	defer handler.lock.Unlock()
	if handler.isCompleted || handler.isCancelled {
		return
	}
	log.Debugf("Cancelling connection to %s", handler.endpoint)
	handler.isCancelled = true
	handler.cancelContext()
}
