package handshake

import (
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/util/crypto"
)

type clientVerifierStep int

const (
	clientStepWriteServerChallengeRequest clientVerifierStep = iota
	clientStepReadServerChallengeResponse
	clientStepWriteClientChallengeResponse
	clientStepDone
)

var clientVerifierStepStrings = [...]string{
	"WriteServerChallengeRequest",
	"ReadServerChallengeResponse",
	"WriteClientChallengeResponse",
	"Done",
}

func (step clientVerifierStep) String() string {
	return clientVerifierStepStrings[step]
}

// clientVerifier drives the verifying side of the handshake. Each I/O
// completion re-enters advance, which acts according to the current step.
type clientVerifier struct {
	io           ionet.PacketIo
	keyPair      *crypto.KeyPair
	allowedModes SecurityMode
	callback     VerifyCallback

	step     clientVerifierStep
	request  *ServerChallengeRequest
	response *ServerChallengeResponse
}

// VerifyClient runs the verifying side of the handshake over io: it
// challenges the remote peer, checks the answer against the modes in
// allowedModes and finally proves its own identity. callback is called
// exactly once.
func VerifyClient(io ionet.PacketIo, keyPair *crypto.KeyPair, allowedModes SecurityMode, callback VerifyCallback) {
	verifier := &clientVerifier{
		io:           io,
		keyPair:      keyPair,
		allowedModes: allowedModes,
		callback:     callback,
	}
	verifier.start()
}

func (verifier *clientVerifier) start() {
	request, err := GenerateServerChallengeRequest()
	if err != nil {
		log.Errorf("Failed to generate server challenge: %s", err)
		verifier.complete(VerifyResultIoErrorServerChallengeRequest)
		return
	}
	verifier.request = request
	verifier.io.Write(request.Payload(), func(code ionet.SocketOperationCode) {
		verifier.advance(code, nil)
	})
}

func (verifier *clientVerifier) advance(code ionet.SocketOperationCode, packet *ionet.Packet) {
	log.Tracef("Client verifier completed step %s with %s", verifier.step, code)
	switch verifier.step {
	case clientStepWriteServerChallengeRequest:
		if code != ionet.SocketSuccess {
			verifier.complete(VerifyResultIoErrorServerChallengeRequest)
			return
		}
		verifier.step = clientStepReadServerChallengeResponse
		verifier.io.Read(verifier.advance)

	case clientStepReadServerChallengeResponse:
		if code != ionet.SocketSuccess {
			verifier.complete(VerifyResultIoErrorServerChallengeResponse)
			return
		}
		response, err := ParseServerChallengeResponse(packet)
		if err != nil {
			log.Debugf("Rejecting server challenge response: %s", err)
			verifier.complete(VerifyResultMalformedData)
			return
		}
		if !response.SecurityMode.IsSingleMode() || !verifier.allowedModes.Contains(response.SecurityMode) {
			log.Debugf("Rejecting security mode %s, allowed modes are %s", response.SecurityMode, verifier.allowedModes)
			verifier.complete(VerifyResultFailureUnsupportedConnection)
			return
		}
		if !VerifyServerChallengeResponse(verifier.request, response) {
			verifier.complete(VerifyResultFailureChallenge)
			return
		}
		verifier.response = response

		clientResponse, err := GenerateClientChallengeResponse(response, verifier.keyPair)
		if err != nil {
			log.Errorf("Failed to answer client challenge: %s", err)
			verifier.complete(VerifyResultIoErrorClientChallengeResponse)
			return
		}
		verifier.step = clientStepWriteClientChallengeResponse
		verifier.io.Write(clientResponse.Payload(), func(code ionet.SocketOperationCode) {
			verifier.advance(code, nil)
		})

	case clientStepWriteClientChallengeResponse:
		if code != ionet.SocketSuccess {
			verifier.complete(VerifyResultIoErrorClientChallengeResponse)
			return
		}
		verifier.complete(VerifyResultSuccess)

	default:
		panic("client verifier advanced after completion")
	}
}

func (verifier *clientVerifier) complete(result VerifyResult) {
	step := verifier.step
	verifier.step = clientStepDone
	if result != VerifyResultSuccess {
		log.Debugf("Client verification failed in step %s: %s", step, result)
		verifier.callback(result, VerifiedPeerInfo{})
		return
	}
	verifier.callback(result, VerifiedPeerInfo{
		PublicKey:    verifier.response.PublicKey,
		SecurityMode: verifier.response.SecurityMode,
	})
}
