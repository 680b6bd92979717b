package ionet

import (
	"bytes"

	"github.com/kaspanet/p2pwire/util/crypto"
)

// SignedEnvelopeOverhead is the number of data bytes a signed envelope adds
// to the packet it carries: the signature and the header of the carried
// packet.
const SignedEnvelopeOverhead = crypto.SignatureSize + PacketHeaderSize

// signedPacketIo wraps every outgoing packet in a PacketTypeSecureSigned
// envelope signed by keyPair, and unwraps every incoming envelope after
// checking it was signed by remoteKey.
//
// An envelope's data is the signature followed by the carried packet, header
// included. The signature covers the carried packet.
type signedPacketIo struct {
	io                      PacketIo
	keyPair                 *crypto.KeyPair
	remoteKey               crypto.PublicKey
	maxSignedPacketDataSize uint32
}

// NewSignedPacketIo creates a PacketIo that signs writes and verifies reads
// over io. maxSignedPacketDataSize bounds the data of the carried packets.
func NewSignedPacketIo(io PacketIo, keyPair *crypto.KeyPair, remoteKey crypto.PublicKey,
	maxSignedPacketDataSize uint32) PacketIo {

	return &signedPacketIo{
		io:                      io,
		keyPair:                 keyPair,
		remoteKey:               remoteKey,
		maxSignedPacketDataSize: maxSignedPacketDataSize,
	}
}

func (signedIo *signedPacketIo) Read(callback ReadCallback) {
	signedIo.io.Read(func(code SocketOperationCode, packet *Packet) {
		if code != SocketSuccess {
			callback(code, nil)
			return
		}
		child, code := signedIo.unwrap(packet)
		callback(code, child)
	})
}

func (signedIo *signedPacketIo) Write(payload PacketPayload, callback WriteCallback) {
	envelope, code := signedIo.wrap(payload)
	if code != SocketSuccess {
		callback(code)
		return
	}
	signedIo.io.Write(envelope, callback)
}

func (signedIo *signedPacketIo) wrap(payload PacketPayload) (PacketPayload, SocketOperationCode) {
	err := payload.Validate(signedIo.maxSignedPacketDataSize)
	if err != nil {
		log.Warnf("Cannot sign payload: %s", err)
		return PacketPayload{}, SocketMalformedData
	}

	childHeader := bytes.NewBuffer(make([]byte, 0, PacketHeaderSize))
	payload.header.serialize(childHeader)
	signedBuffers := make([][]byte, 0, 1+len(payload.buffers))
	signedBuffers = append(signedBuffers, childHeader.Bytes())
	signedBuffers = append(signedBuffers, payload.buffers...)

	signature, err := signedIo.keyPair.Sign(signedBuffers...)
	if err != nil {
		log.Errorf("Failed to sign %s: %s", payload.header, err)
		return PacketPayload{}, SocketWriteError
	}
	envelopeBuffers := append([][]byte{signature[:]}, signedBuffers...)
	return NewPacketPayloadFromBuffers(PacketTypeSecureSigned, envelopeBuffers...), SocketSuccess
}

// unwrap returns the packet carried by envelope. The returned packet borrows
// the envelope data.
func (signedIo *signedPacketIo) unwrap(envelope *Packet) (*Packet, SocketOperationCode) {
	if envelope.Type != PacketTypeSecureSigned {
		log.Warnf("Expected a signed envelope, got %s", envelope.PacketHeader)
		return nil, SocketMalformedData
	}
	if len(envelope.Data) < SignedEnvelopeOverhead {
		log.Warnf("Signed envelope is too small: %s", envelope.PacketHeader)
		return nil, SocketMalformedData
	}

	var signature crypto.Signature
	copy(signature[:], envelope.Data)
	signed := envelope.Data[crypto.SignatureSize:]
	childHeader := deserializePacketHeader(signed)
	if int(childHeader.Size) != len(signed) {
		log.Warnf("Signed envelope %s carries a packet of mismatched size %d", envelope.PacketHeader, childHeader.Size)
		return nil, SocketMalformedData
	}
	if childHeader.DataSize() > signedIo.maxSignedPacketDataSize {
		log.Warnf("Signed envelope carries %s above the maximum data size", childHeader)
		return nil, SocketMalformedData
	}
	if !crypto.Verify(signedIo.remoteKey, signature, signed) {
		log.Warnf("Signature of %s does not verify against %s", childHeader, signedIo.remoteKey)
		return nil, SocketSecurityError
	}

	return &Packet{PacketHeader: childHeader, Data: signed[PacketHeaderSize:]}, SocketSuccess
}

// signedPacketSocket is a PacketSocket whose reads and writes go through a
// signedPacketIo. Every other operation is passed to the wrapped socket.
type signedPacketSocket struct {
	PacketSocket
	signedIo *signedPacketIo
}

// NewSignedPacketSocket decorates socket so that every packet is signed by
// keyPair on write and verified against remoteKey on read.
func NewSignedPacketSocket(socket PacketSocket, keyPair *crypto.KeyPair, remoteKey crypto.PublicKey,
	maxSignedPacketDataSize uint32) PacketSocket {

	return &signedPacketSocket{
		PacketSocket: socket,
		signedIo: &signedPacketIo{
			io:                      socket,
			keyPair:                 keyPair,
			remoteKey:               remoteKey,
			maxSignedPacketDataSize: maxSignedPacketDataSize,
		},
	}
}

func (socket *signedPacketSocket) Read(callback ReadCallback) {
	socket.signedIo.Read(callback)
}

func (socket *signedPacketSocket) Write(payload PacketPayload, callback WriteCallback) {
	socket.signedIo.Write(payload, callback)
}

// ReadMultiple unwraps every packet of the batch. The first envelope that
// cannot be unwrapped ends the batch for the caller: the remaining packets
// are dropped and the failure is reported in place of the terminal code.
func (socket *signedPacketSocket) ReadMultiple(callback ReadCallback) {
	failureCode := SocketSuccess
	socket.PacketSocket.ReadMultiple(func(code SocketOperationCode, packet *Packet) {
		if code != SocketSuccess {
			if failureCode != SocketSuccess {
				code = failureCode
			}
			callback(code, nil)
			return
		}
		if failureCode != SocketSuccess {
			return
		}
		child, unwrapCode := socket.signedIo.unwrap(packet)
		if unwrapCode != SocketSuccess {
			failureCode = unwrapCode
			return
		}
		callback(SocketSuccess, child)
	})
}
