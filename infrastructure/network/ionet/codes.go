package ionet

import "fmt"

// SocketOperationCode is the result of an asynchronous socket operation.
type SocketOperationCode int

// SocketOperationCode values.
const (
	SocketSuccess SocketOperationCode = iota
	SocketClosed
	SocketReadError
	SocketWriteError
	SocketMalformedData
	SocketInsufficientData
	SocketSecurityError
)

var socketOperationCodeStrings = map[SocketOperationCode]string{
	SocketSuccess:          "Success",
	SocketClosed:           "Closed",
	SocketReadError:        "Read_Error",
	SocketWriteError:       "Write_Error",
	SocketMalformedData:    "Malformed_Data",
	SocketInsufficientData: "Insufficient_Data",
	SocketSecurityError:    "Security_Error",
}

func (code SocketOperationCode) String() string {
	if s, ok := socketOperationCodeStrings[code]; ok {
		return s
	}
	return fmt.Sprintf("SocketOperationCode(%d)", int(code))
}

// ConnectResult is the result of a raw outgoing connection attempt.
type ConnectResult int

// ConnectResult values.
const (
	ConnectResultConnected ConnectResult = iota
	ConnectResultResolveError
	ConnectResultConnectError
	ConnectResultConnectCancelled
)

var connectResultStrings = map[ConnectResult]string{
	ConnectResultConnected:        "Connected",
	ConnectResultResolveError:     "Resolve_Error",
	ConnectResultConnectError:     "Connect_Error",
	ConnectResultConnectCancelled: "Connect_Cancelled",
}

func (result ConnectResult) String() string {
	if s, ok := connectResultStrings[result]; ok {
		return s
	}
	return fmt.Sprintf("ConnectResult(%d)", int(result))
}

// IPProtocol is a bit mask of IP families.
type IPProtocol uint8

// IPProtocol flags.
const (
	IPProtocolNone IPProtocol = 0
	IPProtocolIPv4 IPProtocol = 1 << 0
	IPProtocolIPv6 IPProtocol = 1 << 1
	IPProtocolAll             = IPProtocolIPv4 | IPProtocolIPv6
)

// Allows returns whether every flag in protocol is set in the mask.
func (mask IPProtocol) Allows(protocol IPProtocol) bool {
	return protocol != IPProtocolNone && mask&protocol == protocol
}
