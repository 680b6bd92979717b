package connector

import (
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/network/handshake"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
)

// ConnectionSettings configure how peers are connected to and accepted.
type ConnectionSettings struct {
	// Timeout bounds connecting and verifying a peer.
	Timeout time.Duration

	SocketWorkingBufferSize        int
	SocketWorkingBufferSensitivity int
	MaxPacketDataSize              uint32

	// IncomingSecurityModes are the modes accepted from connecting peers.
	IncomingSecurityModes handshake.SecurityMode

	// OutgoingSecurityMode is the mode claimed when connecting to a peer.
	OutgoingSecurityMode handshake.SecurityMode

	AllowIncomingSelfConnections bool
	AllowOutgoingSelfConnections bool

	NodeIdentityEqualityStrategy ionet.NodeIdentityEqualityStrategy
	OutgoingProtocols            ionet.IPProtocol
	Proxy                        *ionet.ProxyOptions
}

// DefaultConnectionSettings returns the settings used when nothing else is
// configured.
func DefaultConnectionSettings() ConnectionSettings {
	socketOptions := ionet.DefaultPacketSocketOptions()
	return ConnectionSettings{
		Timeout:                        10 * time.Second,
		SocketWorkingBufferSize:        socketOptions.WorkingBufferSize,
		SocketWorkingBufferSensitivity: socketOptions.WorkingBufferSensitivity,
		MaxPacketDataSize:              socketOptions.MaxPacketDataSize,
		IncomingSecurityModes:          handshake.SecurityModeNone,
		OutgoingSecurityMode:           handshake.SecurityModeNone,
		NodeIdentityEqualityStrategy:   ionet.NodeIdentityEqualityKey,
		OutgoingProtocols:              ionet.IPProtocolAll,
	}
}

// PacketSocketOptions returns the socket options derived from settings.
func (settings ConnectionSettings) PacketSocketOptions() ionet.PacketSocketOptions {
	return ionet.PacketSocketOptions{
		WorkingBufferSize:        settings.SocketWorkingBufferSize,
		WorkingBufferSensitivity: settings.SocketWorkingBufferSensitivity,
		MaxPacketDataSize:        settings.MaxPacketDataSize,
		AcceptedProtocols:        settings.OutgoingProtocols,
		Proxy:                    settings.Proxy,
	}
}
