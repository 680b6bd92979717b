package ionet

// ProxyOptions describe a SOCKS5 proxy used for outgoing connections.
type ProxyOptions struct {
	Address  string
	Username string
	Password string
}

// PacketSocketOptions configure packet sockets and the raw connections
// they are created from.
type PacketSocketOptions struct {
	// WorkingBufferSize is the number of bytes reserved for every socket read.
	WorkingBufferSize int

	// WorkingBufferSensitivity is the number of appends between memory
	// reclamation checks. Zero disables reclamation.
	WorkingBufferSensitivity int

	// MaxPacketDataSize is the largest accepted packet, excluding its header.
	MaxPacketDataSize uint32

	// AcceptedProtocols are the IP families outgoing connections may use.
	AcceptedProtocols IPProtocol

	// Proxy routes outgoing connections through SOCKS5 when not nil.
	Proxy *ProxyOptions
}

// DefaultPacketSocketOptions returns the options used when nothing else is
// configured.
func DefaultPacketSocketOptions() PacketSocketOptions {
	return PacketSocketOptions{
		WorkingBufferSize:        512,
		WorkingBufferSensitivity: 100,
		MaxPacketDataSize:        150 * 1024 * 1024,
		AcceptedProtocols:        IPProtocolAll,
	}
}
