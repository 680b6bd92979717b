package handshake

import (
	"fmt"

	"github.com/kaspanet/p2pwire/util/crypto"
)

// VerifyResult is the outcome of a handshake.
type VerifyResult int

// VerifyResult values.
const (
	VerifyResultSuccess VerifyResult = iota
	VerifyResultIoErrorServerChallengeRequest
	VerifyResultIoErrorServerChallengeResponse
	VerifyResultIoErrorClientChallengeResponse
	VerifyResultMalformedData
	VerifyResultFailureUnsupportedConnection
	VerifyResultFailureChallenge
)

var verifyResultStrings = map[VerifyResult]string{
	VerifyResultSuccess:                        "Success",
	VerifyResultIoErrorServerChallengeRequest:  "Io_Error_ServerChallengeRequest",
	VerifyResultIoErrorServerChallengeResponse: "Io_Error_ServerChallengeResponse",
	VerifyResultIoErrorClientChallengeResponse: "Io_Error_ClientChallengeResponse",
	VerifyResultMalformedData:                  "Malformed_Data",
	VerifyResultFailureUnsupportedConnection:   "Failure_Unsupported_Connection",
	VerifyResultFailureChallenge:               "Failure_Challenge",
}

func (result VerifyResult) String() string {
	if s, ok := verifyResultStrings[result]; ok {
		return s
	}
	return fmt.Sprintf("VerifyResult(%d)", int(result))
}

// VerifiedPeerInfo is what a successful handshake establishes about the
// other side.
type VerifiedPeerInfo struct {
	PublicKey    crypto.PublicKey
	SecurityMode SecurityMode
}

// VerifyCallback receives the outcome of a handshake. info is only set on
// VerifyResultSuccess.
type VerifyCallback func(result VerifyResult, info VerifiedPeerInfo)
