package ionet

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/kaspanet/p2pwire/util/crypto"
	"github.com/pkg/errors"
)

// NodeIdentity identifies a peer by its public key and host.
type NodeIdentity struct {
	PublicKey crypto.PublicKey
	Host      string
}

func (identity NodeIdentity) String() string {
	return fmt.Sprintf("%s @ %s", identity.PublicKey, identity.Host)
}

// NodeIdentityEqualityStrategy selects which part of an identity decides
// whether two identities are the same peer.
type NodeIdentityEqualityStrategy int

// NodeIdentityEqualityStrategy values.
const (
	NodeIdentityEqualityKey NodeIdentityEqualityStrategy = iota
	NodeIdentityEqualityHost
)

func (strategy NodeIdentityEqualityStrategy) String() string {
	switch strategy {
	case NodeIdentityEqualityKey:
		return "key"
	case NodeIdentityEqualityHost:
		return "host"
	}
	return fmt.Sprintf("NodeIdentityEqualityStrategy(%d)", int(strategy))
}

// ParseNodeIdentityEqualityStrategy parses "key" or "host".
func ParseNodeIdentityEqualityStrategy(s string) (NodeIdentityEqualityStrategy, error) {
	switch strings.ToLower(s) {
	case "key":
		return NodeIdentityEqualityKey, nil
	case "host":
		return NodeIdentityEqualityHost, nil
	}
	return 0, errors.Errorf("unknown identity equality strategy %s", s)
}

// IdentityKey returns a string that is equal for two identities exactly when
// the strategy considers them equal.
func (strategy NodeIdentityEqualityStrategy) IdentityKey(identity NodeIdentity) string {
	if strategy == NodeIdentityEqualityHost {
		return identity.Host
	}
	return string(identity.PublicKey[:])
}

// Equal returns whether the strategy considers both identities the same peer.
func (strategy NodeIdentityEqualityStrategy) Equal(first, second NodeIdentity) bool {
	return strategy.IdentityKey(first) == strategy.IdentityKey(second)
}

// NodeEndpoint is the network address of a node.
type NodeEndpoint struct {
	Host string
	Port uint16
}

// Address returns host:port.
func (endpoint NodeEndpoint) Address() string {
	return net.JoinHostPort(endpoint.Host, strconv.Itoa(int(endpoint.Port)))
}

func (endpoint NodeEndpoint) String() string {
	return endpoint.Address()
}

// Node is a remote peer: who it is and where to reach it.
type Node struct {
	Identity NodeIdentity
	Endpoint NodeEndpoint
	Name     string
}

func (node Node) String() string {
	if node.Name != "" {
		return fmt.Sprintf("%s (%s)", node.Name, node.Endpoint)
	}
	return fmt.Sprintf("%s (%s)", node.Identity.PublicKey, node.Endpoint)
}

// ParseNode parses "<public key hex>@<host>:<port>".
func ParseNode(s string) (Node, error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 {
		return Node{}, errors.Errorf("node %s is not of the form <public key>@<host>:<port>", s)
	}
	publicKey, err := crypto.ParsePublicKeyHex(parts[0])
	if err != nil {
		return Node{}, err
	}
	host, portString, err := net.SplitHostPort(parts[1])
	if err != nil {
		return Node{}, errors.Wrapf(err, "node %s has an invalid address", s)
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return Node{}, errors.Wrapf(err, "node %s has an invalid port", s)
	}
	return Node{
		Identity: NodeIdentity{PublicKey: publicKey, Host: host},
		Endpoint: NodeEndpoint{Host: host, Port: uint16(port)},
	}, nil
}
