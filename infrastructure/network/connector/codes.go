package connector

import (
	"fmt"

	"github.com/kaspanet/p2pwire/infrastructure/network/handshake"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
)

// PeerConnectCode is the outcome of connecting to or accepting a peer.
type PeerConnectCode int

// PeerConnectCode values.
const (
	PeerConnectCodeAccepted PeerConnectCode = iota
	PeerConnectCodeSocketError
	PeerConnectCodeVerifyError
	PeerConnectCodeSelfConnectionError
	PeerConnectCodeAlreadyConnected
	PeerConnectCodeTimedOut
	PeerConnectCodeConnectCancelled
)

var peerConnectCodeStrings = map[PeerConnectCode]string{
	PeerConnectCodeAccepted:            "Accepted",
	PeerConnectCodeSocketError:         "Socket_Error",
	PeerConnectCodeVerifyError:         "Verify_Error",
	PeerConnectCodeSelfConnectionError: "Self_Connection_Error",
	PeerConnectCodeAlreadyConnected:    "Already_Connected",
	PeerConnectCodeTimedOut:            "Timed_Out",
	PeerConnectCodeConnectCancelled:    "Connect_Cancelled",
}

func (code PeerConnectCode) String() string {
	if s, ok := peerConnectCodeStrings[code]; ok {
		return s
	}
	return fmt.Sprintf("PeerConnectCode(%d)", int(code))
}

// PeerConnectResult describes the peer on the other side of a connection.
// Identity and SecurityMode are only set when Code is
// PeerConnectCodeAccepted.
type PeerConnectResult struct {
	Code         PeerConnectCode
	Identity     ionet.NodeIdentity
	SecurityMode handshake.SecurityMode
}

func (result PeerConnectResult) String() string {
	if result.Code != PeerConnectCodeAccepted {
		return result.Code.String()
	}
	return fmt.Sprintf("%s %s (%s)", result.Code, result.Identity, result.SecurityMode)
}

// ConnectCallback receives the outcome of a connection. socket is only set
// on PeerConnectCodeAccepted, after which the caller may use it freely.
type ConnectCallback func(result PeerConnectResult, socket ionet.PacketSocket)
