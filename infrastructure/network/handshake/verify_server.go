package handshake

import (
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/util/crypto"
)

type serverVerifierStep int

const (
	serverStepReadServerChallengeRequest serverVerifierStep = iota
	serverStepWriteServerChallengeResponse
	serverStepReadClientChallengeResponse
	serverStepDone
)

var serverVerifierStepStrings = [...]string{
	"ReadServerChallengeRequest",
	"WriteServerChallengeResponse",
	"ReadClientChallengeResponse",
	"Done",
}

func (step serverVerifierStep) String() string {
	return serverVerifierStepStrings[step]
}

// serverVerifier drives the proving side of the handshake.
type serverVerifier struct {
	io                ionet.PacketIo
	expectedServerKey crypto.PublicKey
	securityMode      SecurityMode
	keyPair           *crypto.KeyPair
	callback          VerifyCallback

	step     serverVerifierStep
	response *ServerChallengeResponse
}

// VerifyServer runs the proving side of the handshake over io: it answers
// the remote challenge claiming securityMode and then checks that the remote
// peer owns expectedServerKey. callback is called exactly once.
func VerifyServer(io ionet.PacketIo, expectedServerKey crypto.PublicKey, securityMode SecurityMode,
	keyPair *crypto.KeyPair, callback VerifyCallback) {

	verifier := &serverVerifier{
		io:                io,
		expectedServerKey: expectedServerKey,
		securityMode:      securityMode,
		keyPair:           keyPair,
		callback:          callback,
	}
	verifier.io.Read(verifier.advance)
}

func (verifier *serverVerifier) advance(code ionet.SocketOperationCode, packet *ionet.Packet) {
	log.Tracef("Server verifier completed step %s with %s", verifier.step, code)
	switch verifier.step {
	case serverStepReadServerChallengeRequest:
		if code != ionet.SocketSuccess {
			verifier.complete(VerifyResultIoErrorServerChallengeRequest)
			return
		}
		request, err := ParseServerChallengeRequest(packet)
		if err != nil {
			log.Debugf("Rejecting server challenge request: %s", err)
			verifier.complete(VerifyResultMalformedData)
			return
		}
		response, err := GenerateServerChallengeResponse(request, verifier.keyPair, verifier.securityMode)
		if err != nil {
			log.Errorf("Failed to answer server challenge: %s", err)
			verifier.complete(VerifyResultIoErrorServerChallengeResponse)
			return
		}
		verifier.response = response
		verifier.step = serverStepWriteServerChallengeResponse
		verifier.io.Write(response.Payload(), func(code ionet.SocketOperationCode) {
			verifier.advance(code, nil)
		})

	case serverStepWriteServerChallengeResponse:
		if code != ionet.SocketSuccess {
			verifier.complete(VerifyResultIoErrorServerChallengeResponse)
			return
		}
		verifier.step = serverStepReadClientChallengeResponse
		verifier.io.Read(verifier.advance)

	case serverStepReadClientChallengeResponse:
		if code != ionet.SocketSuccess {
			verifier.complete(VerifyResultIoErrorClientChallengeResponse)
			return
		}
		clientResponse, err := ParseClientChallengeResponse(packet)
		if err != nil {
			log.Debugf("Rejecting client challenge response: %s", err)
			verifier.complete(VerifyResultMalformedData)
			return
		}
		if !VerifyClientChallengeResponse(verifier.response, clientResponse, verifier.expectedServerKey) {
			verifier.complete(VerifyResultFailureChallenge)
			return
		}
		verifier.complete(VerifyResultSuccess)

	default:
		panic("server verifier advanced after completion")
	}
}

func (verifier *serverVerifier) complete(result VerifyResult) {
	step := verifier.step
	verifier.step = serverStepDone
	if result != VerifyResultSuccess {
		log.Debugf("Server verification failed in step %s: %s", step, result)
		verifier.callback(result, VerifiedPeerInfo{})
		return
	}
	verifier.callback(result, VerifiedPeerInfo{
		PublicKey:    verifier.expectedServerKey,
		SecurityMode: verifier.securityMode,
	})
}
