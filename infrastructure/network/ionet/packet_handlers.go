package ionet

import (
	"github.com/kaspanet/p2pwire/util/crypto"
	"github.com/pkg/errors"
)

// ErrHandlerAlreadyRegistered is returned when registering a second handler
// for a packet type.
var ErrHandlerAlreadyRegistered = errors.New("a handler is already registered for this packet type")

// ServerPacketHandlerContext is passed to a handler together with the packet
// it handles. A handler answers by setting a response.
type ServerPacketHandlerContext struct {
	key         crypto.PublicKey
	host        string
	response    PacketPayload
	hasResponse bool
}

// NewServerPacketHandlerContext creates a context for a packet received from
// the peer identified by key and host.
func NewServerPacketHandlerContext(key crypto.PublicKey, host string) *ServerPacketHandlerContext {
	return &ServerPacketHandlerContext{key: key, host: host}
}

// Key returns the public key of the sender.
func (context *ServerPacketHandlerContext) Key() crypto.PublicKey {
	return context.key
}

// Host returns the host of the sender.
func (context *ServerPacketHandlerContext) Host() string {
	return context.host
}

// HasResponse returns whether a response was set.
func (context *ServerPacketHandlerContext) HasResponse() bool {
	return context.hasResponse
}

// Response sets the response sent back to the sender. It may only be set
// once.
func (context *ServerPacketHandlerContext) Response(payload PacketPayload) {
	if context.hasResponse {
		panic("response was already set")
	}
	context.response = payload
	context.hasResponse = true
}

// ResponsePayload returns the response.
func (context *ServerPacketHandlerContext) ResponsePayload() PacketPayload {
	return context.response
}

// ServerPacketHandler handles a single packet type.
type ServerPacketHandler func(packet *Packet, context *ServerPacketHandlerContext)

// ServerPacketHandlers maps packet types to their handlers. Handlers are
// registered while the node boots; the map is read-only afterwards.
type ServerPacketHandlers struct {
	handlers map[PacketType]ServerPacketHandler
}

// NewServerPacketHandlers creates an empty registry.
func NewServerPacketHandlers() *ServerPacketHandlers {
	return &ServerPacketHandlers{handlers: make(map[PacketType]ServerPacketHandler)}
}

// RegisterHandler registers handler for packetType.
func (handlers *ServerPacketHandlers) RegisterHandler(packetType PacketType, handler ServerPacketHandler) error {
	if _, exists := handlers.handlers[packetType]; exists {
		return errors.Wrapf(ErrHandlerAlreadyRegistered, "packet type %s", packetType)
	}
	handlers.handlers[packetType] = handler
	return nil
}

// Size returns the number of registered handlers.
func (handlers *ServerPacketHandlers) Size() int {
	return len(handlers.handlers)
}

// CanProcess returns whether a handler is registered for packetType.
func (handlers *ServerPacketHandlers) CanProcess(packetType PacketType) bool {
	_, ok := handlers.handlers[packetType]
	return ok
}

// Process runs the handler of the packet's type. It returns false if there
// is none.
func (handlers *ServerPacketHandlers) Process(packet *Packet, context *ServerPacketHandlerContext) bool {
	handler, ok := handlers.handlers[packet.Type]
	if !ok {
		return false
	}
	handler(packet, context)
	return true
}
