package handshake

import (
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/util/crypto"
)

// SecureSocket applies the negotiated securityMode to a verified socket.
// SecurityModeNone returns socket unchanged. SecurityModeSigned signs every
// written packet with keyPair and verifies every read packet against
// remoteKey. maxPacketDataSize is the socket limit; the carried packets are
// limited to what still fits once enveloped.
func SecureSocket(socket ionet.PacketSocket, securityMode SecurityMode, keyPair *crypto.KeyPair,
	remoteKey crypto.PublicKey, maxPacketDataSize uint32) ionet.PacketSocket {

	if securityMode != SecurityModeSigned {
		return socket
	}

	var maxSignedPacketDataSize uint32
	if maxPacketDataSize > ionet.SignedEnvelopeOverhead {
		maxSignedPacketDataSize = maxPacketDataSize - ionet.SignedEnvelopeOverhead
	}
	log.Tracef("Signing packets on socket %d", socket.ID())
	return ionet.NewSignedPacketSocket(socket, keyPair, remoteKey, maxSignedPacketDataSize)
}
