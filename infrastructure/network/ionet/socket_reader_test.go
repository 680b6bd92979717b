package ionet

import (
	"io"
	"net"
	"testing"

	"github.com/kaspanet/p2pwire/util/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	testEchoPacketType   = PacketTypeUserBase
	testSilentPacketType = PacketTypeUserBase + 1
)

func newTestHandlers(t *testing.T, silentPackets *[]*Packet) *ServerPacketHandlers {
	handlers := NewServerPacketHandlers()
	require.NoError(t, handlers.RegisterHandler(testEchoPacketType, func(packet *Packet, context *ServerPacketHandlerContext) {
		context.Response(NewPacketPayloadFromBuffers(testEchoPacketType, packet.Data))
	}))
	require.NoError(t, handlers.RegisterHandler(testSilentPacketType, func(packet *Packet, context *ServerPacketHandlerContext) {
		*silentPackets = append(*silentPackets, packet.Copy())
	}))
	return handlers
}

func TestServerPacketHandlers(t *testing.T) {
	var silentPackets []*Packet
	handlers := newTestHandlers(t, &silentPackets)
	require.Equal(t, 2, handlers.Size())
	require.True(t, handlers.CanProcess(testEchoPacketType))
	require.False(t, handlers.CanProcess(PacketTypeUserBase+2))

	err := handlers.RegisterHandler(testEchoPacketType, func(*Packet, *ServerPacketHandlerContext) {})
	require.True(t, errors.Is(err, ErrHandlerAlreadyRegistered))

	keyPair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	context := NewServerPacketHandlerContext(keyPair.PublicKey(), "10.0.0.1")
	require.True(t, handlers.Process(NewPacket(testEchoPacketType, []byte{1}), context))
	require.True(t, context.HasResponse())
	require.Equal(t, [][]byte{{1}}, context.ResponsePayload().Buffers())
	require.Equal(t, keyPair.PublicKey(), context.Key())
	require.Equal(t, "10.0.0.1", context.Host())
	require.Panics(t, func() { context.Response(NewPacketPayloadFromBuffers(testEchoPacketType)) })

	context = NewServerPacketHandlerContext(keyPair.PublicKey(), "10.0.0.1")
	require.False(t, handlers.Process(NewPacket(PacketTypeUserBase+2, nil), context))
	require.False(t, context.HasResponse())
}

func readReaderCodes(t *testing.T, reader *SocketReader) []SocketOperationCode {
	codes := make(chan SocketOperationCode, 16)
	reader.Read(func(code SocketOperationCode) { codes <- code })
	var received []SocketOperationCode
	for {
		code := awaitCode(t, codes)
		received = append(received, code)
		if code != SocketSuccess {
			return received
		}
	}
}

func writeRaw(t *testing.T, conn net.Conn, packets ...*Packet) {
	var serialized []byte
	for _, packet := range packets {
		serialized = append(serialized, packet.Serialize()...)
	}
	_, err := conn.Write(serialized)
	require.NoError(t, err)
}

func TestSocketReaderDispatchesAndResponds(t *testing.T) {
	pool := newTestPool(t)
	socket, remote := newSocketPair(t, pool, DefaultPacketSocketOptions())
	var silentPackets []*Packet
	reader := NewSocketReader(socket, socket, newTestHandlers(t, &silentPackets), NodeIdentity{Host: "127.0.0.1"})

	writeRaw(t, remote, NewPacket(testSilentPacketType, []byte{1}))
	require.Equal(t, []SocketOperationCode{SocketSuccess, SocketInsufficientData}, readReaderCodes(t, reader))
	require.Len(t, silentPackets, 1)
	require.Equal(t, []byte{1}, silentPackets[0].Data)

	writeRaw(t, remote, NewPacket(testEchoPacketType, []byte{5, 6}))
	require.Equal(t, []SocketOperationCode{SocketSuccess, SocketInsufficientData}, readReaderCodes(t, reader))
	response := make([]byte, PacketHeaderSize+2)
	_, err := io.ReadFull(remote, response)
	require.NoError(t, err)
	require.Equal(t, NewPacket(testEchoPacketType, []byte{5, 6}).Serialize(), response)

	socket.Close()
	remote.Close()
	pool.Join()
}

func TestSocketReaderRejectsUnknownPackets(t *testing.T) {
	pool := newTestPool(t)
	socket, remote := newSocketPair(t, pool, DefaultPacketSocketOptions())
	var silentPackets []*Packet
	reader := NewSocketReader(socket, socket, newTestHandlers(t, &silentPackets), NodeIdentity{})

	writeRaw(t, remote, NewPacket(PacketTypeUserBase+2, nil))
	require.Equal(t, []SocketOperationCode{SocketMalformedData}, readReaderCodes(t, reader))

	socket.Close()
	remote.Close()
	pool.Join()
}

func TestSocketReaderCannotStartSimultaneousReads(t *testing.T) {
	pool := newTestPool(t)
	socket, remote := newSocketPair(t, pool, DefaultPacketSocketOptions())
	var silentPackets []*Packet
	reader := NewSocketReader(socket, socket, newTestHandlers(t, &silentPackets), NodeIdentity{})

	codes := make(chan SocketOperationCode, 1)
	reader.Read(func(code SocketOperationCode) { codes <- code })
	require.Panics(t, func() { reader.Read(func(SocketOperationCode) {}) })

	socket.Close()
	require.Contains(t, []SocketOperationCode{SocketClosed, SocketReadError}, awaitCode(t, codes))
	remote.Close()
	pool.Join()
}

func TestChainedSocketReaderReadsUntilError(t *testing.T) {
	pool := newTestPool(t)
	socket, remote := newSocketPair(t, pool, DefaultPacketSocketOptions())
	var silentPackets []*Packet
	completions := make(chan SocketOperationCode, 1)
	chained := NewChainedSocketReader(socket, newTestHandlers(t, &silentPackets), NodeIdentity{},
		func(code SocketOperationCode) { completions <- code })
	chained.Start()

	for i := byte(0); i < 3; i++ {
		writeRaw(t, remote, NewPacket(testEchoPacketType, []byte{i}))
		response := make([]byte, PacketHeaderSize+1)
		_, err := io.ReadFull(remote, response)
		require.NoError(t, err)
		require.Equal(t, []byte{i}, response[PacketHeaderSize:])
	}

	require.NoError(t, remote.Close())
	require.Equal(t, SocketClosed, awaitCode(t, completions))
	socket.Close()
	pool.Join()
}
