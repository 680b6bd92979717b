package app

import (
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/config"
	"github.com/kaspanet/p2pwire/infrastructure/logger"
	"github.com/kaspanet/p2pwire/infrastructure/network/connectionpool"
	"github.com/kaspanet/p2pwire/infrastructure/network/connector"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/network/tcpserver"
	"github.com/kaspanet/p2pwire/infrastructure/scheduler"
	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/kaspanet/p2pwire/util/locks"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	connectPeersTaskName = "connect peers"
	joinTimeout          = 30 * time.Second
)

// ComponentManager wires the transport services of a node together: a
// pool of writers connected to the configured peers, and a server whose
// verified connections are read by the registered packet handlers.
type ComponentManager struct {
	cfg        *config.Config
	handlers   *ionet.ServerPacketHandlers
	threadPool *threadpool.Pool
	writers    *connectionpool.Pool
	readers    *connector.Inbound
	server     *tcpserver.Server
	scheduler  *scheduler.Scheduler

	numActiveReaders int32

	connectDelayLock sync.Mutex
	connectDelay     func() time.Duration

	started, shutdown int32
}

// NewComponentManager returns a new ComponentManager. handlers serve the
// packets received on incoming connections. Use Start to begin all services.
func NewComponentManager(cfg *config.Config, handlers *ionet.ServerPacketHandlers) *ComponentManager {
	numThreads := cfg.Threads
	if numThreads == 0 {
		numThreads = runtime.NumCPU()
	}
	threadPool := threadpool.New("node", numThreads)

	manager := &ComponentManager{
		cfg:        cfg,
		handlers:   handlers,
		threadPool: threadPool,
		writers:    connectionpool.New(threadPool, cfg.KeyPair, cfg.Connection),
		readers:    connector.NewInbound(threadPool, cfg.KeyPair, cfg.Connection),
		scheduler:  scheduler.New(threadPool),
	}
	manager.resetConnectDelay()

	if len(cfg.ListenAddresses) > 0 {
		manager.server = tcpserver.New(threadPool, tcpserver.Options{
			Addresses:            cfg.ListenAddresses,
			MaxActiveConnections: cfg.MaxInboundConnections,
			ReuseAddress:         cfg.ReuseAddress,
			SocketOptions:        cfg.Connection.PacketSocketOptions(),
		}, manager.onAccept)
	}
	return manager
}

// Start launches all the node services.
func (m *ComponentManager) Start() error {
	// Already started?
	if atomic.AddInt32(&m.started, 1) != 1 {
		return nil
	}

	log.Tracef("Starting node %s", m.cfg.KeyPair.PublicKey())
	m.threadPool.Start()

	if m.server != nil {
		err := m.server.Start()
		if err != nil {
			return errors.Wrap(err, "error starting the tcp server")
		}
	}

	if len(m.cfg.Peers) > 0 {
		err := m.scheduler.AddTask(scheduler.Task{
			Name:       connectPeersTaskName,
			StartDelay: 0,
			NextDelay:  m.nextConnectDelay,
			Callback:   m.connectPeers,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down all the node services.
func (m *ComponentManager) Stop() error {
	// Make sure this only happens once.
	if atomic.AddInt32(&m.shutdown, 1) != 1 {
		log.Infof("Node is already in the process of shutting down")
		return nil
	}

	log.Warnf("Node shutting down")
	onEnd := logger.LogAndMeasureExecutionTime(log, "ComponentManager.Stop")
	defer onEnd()

	m.scheduler.Shutdown()

	var err error
	if m.server != nil {
		err = multierr.Append(err, m.server.Stop())
	}
	m.readers.Shutdown()
	m.writers.Shutdown()

	if atomic.LoadInt32(&m.started) == 0 {
		return err
	}
	if !locks.WaitFor(m.threadPool.Join, joinTimeout) {
		err = multierr.Append(err, errors.Errorf("thread pool did not drain within %s", joinTimeout))
	}
	return err
}

// Writers returns the pool of connections to the configured peers.
func (m *ComponentManager) Writers() *connectionpool.Pool {
	return m.writers
}

// ListenAddresses returns the addresses the node accepts connections on.
func (m *ComponentManager) ListenAddresses() []net.Addr {
	if m.server == nil {
		return nil
	}
	return m.server.Addresses()
}

// NumActiveReaders returns the number of verified incoming connections
// being read.
func (m *ComponentManager) NumActiveReaders() int {
	return int(atomic.LoadInt32(&m.numActiveReaders))
}

func (m *ComponentManager) onAccept(info ionet.AcceptedSocketInfo) {
	m.readers.Accept(info, func(result connector.PeerConnectResult, socket ionet.PacketSocket) {
		if result.Code != connector.PeerConnectCodeAccepted {
			return
		}

		atomic.AddInt32(&m.numActiveReaders, 1)
		reader := ionet.NewChainedSocketReader(socket, m.handlers, result.Identity, func(code ionet.SocketOperationCode) {
			socket.Close()
			atomic.AddInt32(&m.numActiveReaders, -1)
		})
		reader.Start()
	})
}

// connectPeers connects to every configured peer the writers are not
// connected to. The returned channel delivers a result once all attempts
// completed.
func (m *ComponentManager) connectPeers() <-chan scheduler.TaskResult {
	results := make(chan scheduler.TaskResult, 1)
	strategy := m.cfg.Connection.NodeIdentityEqualityStrategy

	connected := make(map[string]struct{})
	for _, identity := range m.writers.Identities() {
		connected[strategy.IdentityKey(identity)] = struct{}{}
	}
	var pending []ionet.Node
	for _, peer := range m.cfg.Peers {
		if _, ok := connected[strategy.IdentityKey(peer.Identity)]; !ok {
			pending = append(pending, peer)
		}
	}
	if len(pending) == 0 {
		m.resetConnectDelay()
		results <- scheduler.TaskResultContinue
		return results
	}

	log.Debugf("Connecting to %d of %d peers", len(pending), len(m.cfg.Peers))
	numRemaining := int32(len(pending))
	numFailed := int32(0)
	for _, peer := range pending {
		peer := peer
		m.writers.Connect(peer, func(result connector.PeerConnectResult) {
			switch result.Code {
			case connector.PeerConnectCodeAccepted, connector.PeerConnectCodeAlreadyConnected:
			default:
				log.Infof("Failed to connect to %s: %s", peer, result.Code)
				atomic.AddInt32(&numFailed, 1)
			}
			if atomic.AddInt32(&numRemaining, -1) != 0 {
				return
			}
			if atomic.LoadInt32(&numFailed) == 0 {
				m.resetConnectDelay()
			}
			results <- scheduler.TaskResultContinue
		})
	}
	return results
}

// nextConnectDelay backs off while peers keep failing and starts over from
// the configured minimum once all of them are connected.
func (m *ComponentManager) nextConnectDelay() time.Duration {
	m.connectDelayLock.Lock()
	defer m.connectDelayLock.Unlock()
	return m.connectDelay()
}

func (m *ComponentManager) resetConnectDelay() {
	m.connectDelayLock.Lock()
	defer m.connectDelayLock.Unlock()
	m.connectDelay = scheduler.IncreasingDelayGenerator(m.cfg.ConnectRetryMin, m.cfg.ConnectRetryMax)
}
