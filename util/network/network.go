package network

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// NormalizeAddresses returns the given addresses with defaultPort appended
// to those that carry no port. Duplicates are dropped, keeping the first
// occurrence.
func NormalizeAddresses(addresses []string, defaultPort uint16) ([]string, error) {
	normalized := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		address, err := NormalizeAddress(address, defaultPort)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		normalized = append(normalized, address)
	}
	return normalized, nil
}

// NormalizeAddress returns address as host:port, using defaultPort when
// address has none.
func NormalizeAddress(address string, defaultPort uint16) (string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		// SplitHostPort also fails for reasons other than a missing port,
		// so the joined form is validated again.
		host, port, err = net.SplitHostPort(net.JoinHostPort(address, strconv.Itoa(int(defaultPort))))
		if err != nil {
			return "", errors.Wrapf(err, "invalid address %s", address)
		}
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", errors.Wrapf(err, "invalid port in address %s", address)
	}
	return net.JoinHostPort(host, port), nil
}
