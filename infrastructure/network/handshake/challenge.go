package handshake

import (
	"bytes"
	"io"

	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/util/binaryserializer"
	"github.com/kaspanet/p2pwire/util/crypto"
	"github.com/kaspanet/p2pwire/util/random"
	"github.com/pkg/errors"
)

// ChallengeSize is the size of a challenge nonce.
const ChallengeSize = 64

// Challenge is a random nonce the other side has to sign.
type Challenge [ChallengeSize]byte

const (
	serverChallengeRequestSize  = ionet.PacketHeaderSize + ChallengeSize
	serverChallengeResponseSize = ionet.PacketHeaderSize + ChallengeSize + crypto.SignatureSize + crypto.PublicKeySize + 1
	clientChallengeResponseSize = ionet.PacketHeaderSize + crypto.SignatureSize
)

var errMalformedPacket = errors.New("malformed handshake packet")

// ServerChallengeRequest opens the handshake: the verifier sends a nonce.
type ServerChallengeRequest struct {
	Challenge Challenge
}

// ServerChallengeResponse answers the request: the prover signs the
// verifier's nonce, claims a security mode and sends its own nonce.
type ServerChallengeResponse struct {
	Challenge    Challenge
	Signature    crypto.Signature
	PublicKey    crypto.PublicKey
	SecurityMode SecurityMode
}

// ClientChallengeResponse closes the handshake: the verifier signs the
// prover's nonce together with the agreed security mode.
type ClientChallengeResponse struct {
	Signature crypto.Signature
}

func newChallenge() (Challenge, error) {
	var challenge Challenge
	err := random.Read(challenge[:])
	return challenge, err
}

// GenerateServerChallengeRequest creates a request with a fresh nonce.
func GenerateServerChallengeRequest() (*ServerChallengeRequest, error) {
	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}
	return &ServerChallengeRequest{Challenge: challenge}, nil
}

// GenerateServerChallengeResponse answers request on behalf of keyPair.
func GenerateServerChallengeResponse(request *ServerChallengeRequest, keyPair *crypto.KeyPair,
	securityMode SecurityMode) (*ServerChallengeResponse, error) {

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}
	signature, err := keyPair.Sign(request.Challenge[:])
	if err != nil {
		return nil, err
	}
	return &ServerChallengeResponse{
		Challenge:    challenge,
		Signature:    signature,
		PublicKey:    keyPair.PublicKey(),
		SecurityMode: securityMode,
	}, nil
}

// GenerateClientChallengeResponse answers response on behalf of keyPair.
func GenerateClientChallengeResponse(response *ServerChallengeResponse, keyPair *crypto.KeyPair) (*ClientChallengeResponse, error) {
	signature, err := keyPair.Sign(response.Challenge[:], []byte{byte(response.SecurityMode)})
	if err != nil {
		return nil, err
	}
	return &ClientChallengeResponse{Signature: signature}, nil
}

// VerifyServerChallengeResponse checks that response was signed by the key
// it carries over the challenge of request.
func VerifyServerChallengeResponse(request *ServerChallengeRequest, response *ServerChallengeResponse) bool {
	return crypto.Verify(response.PublicKey, response.Signature, request.Challenge[:])
}

// VerifyClientChallengeResponse checks that clientResponse was signed by
// publicKey over the challenge and security mode of response.
func VerifyClientChallengeResponse(response *ServerChallengeResponse, clientResponse *ClientChallengeResponse,
	publicKey crypto.PublicKey) bool {

	return crypto.Verify(publicKey, clientResponse.Signature, response.Challenge[:], []byte{byte(response.SecurityMode)})
}

// Payload returns the wire form of the request.
func (request *ServerChallengeRequest) Payload() ionet.PacketPayload {
	return ionet.NewPacketPayloadBuilder(ionet.PacketTypeServerChallenge).
		AppendBytes(request.Challenge[:]).
		Build()
}

// Payload returns the wire form of the response.
func (response *ServerChallengeResponse) Payload() ionet.PacketPayload {
	return ionet.NewPacketPayloadBuilder(ionet.PacketTypeServerChallenge).
		AppendBytes(response.Challenge[:]).
		AppendBytes(response.Signature[:]).
		AppendBytes(response.PublicKey[:]).
		AppendUint8(uint8(response.SecurityMode)).
		Build()
}

// Payload returns the wire form of the response.
func (response *ClientChallengeResponse) Payload() ionet.PacketPayload {
	return ionet.NewPacketPayloadBuilder(ionet.PacketTypeClientChallenge).
		AppendBytes(response.Signature[:]).
		Build()
}

func checkPacket(packet *ionet.Packet, packetType ionet.PacketType, size int) error {
	if packet.Type != packetType || packet.Size != uint32(size) || len(packet.Data) != size-ionet.PacketHeaderSize {
		return errors.Wrapf(errMalformedPacket, "expected %s of size %d, got %s", packetType, size, packet.PacketHeader)
	}
	return nil
}

// ParseServerChallengeRequest decodes a request, rejecting a wrong type or
// size.
func ParseServerChallengeRequest(packet *ionet.Packet) (*ServerChallengeRequest, error) {
	err := checkPacket(packet, ionet.PacketTypeServerChallenge, serverChallengeRequestSize)
	if err != nil {
		return nil, err
	}
	request := &ServerChallengeRequest{}
	copy(request.Challenge[:], packet.Data)
	return request, nil
}

// ParseServerChallengeResponse decodes a response, rejecting a wrong type or
// size.
func ParseServerChallengeResponse(packet *ionet.Packet) (*ServerChallengeResponse, error) {
	err := checkPacket(packet, ionet.PacketTypeServerChallenge, serverChallengeResponseSize)
	if err != nil {
		return nil, err
	}
	response := &ServerChallengeResponse{}
	reader := bytes.NewReader(packet.Data)
	for _, field := range [][]byte{response.Challenge[:], response.Signature[:], response.PublicKey[:]} {
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	securityMode, err := binaryserializer.Uint8(reader)
	if err != nil {
		return nil, err
	}
	response.SecurityMode = SecurityMode(securityMode)
	return response, nil
}

// ParseClientChallengeResponse decodes a client response, rejecting a wrong
// type or size.
func ParseClientChallengeResponse(packet *ionet.Packet) (*ClientChallengeResponse, error) {
	err := checkPacket(packet, ionet.PacketTypeClientChallenge, clientChallengeResponseSize)
	if err != nil {
		return nil, err
	}
	response := &ClientChallengeResponse{}
	copy(response.Signature[:], packet.Data)
	return response, nil
}
