package handshake

import (
	"strings"

	"github.com/pkg/errors"
)

// SecurityMode is a bit flag describing how a connection is secured. A set
// of allowed modes is expressed as the union of flags.
type SecurityMode uint8

// SecurityMode flags.
const (
	SecurityModeNone   SecurityMode = 1 << 0
	SecurityModeSigned SecurityMode = 1 << 1
)

var securityModeNames = []struct {
	mode SecurityMode
	name string
}{
	{SecurityModeNone, "none"},
	{SecurityModeSigned, "signed"},
}

// IsSingleMode returns whether exactly one flag is set.
func (mode SecurityMode) IsSingleMode() bool {
	return mode != 0 && mode&(mode-1) == 0
}

// Contains returns whether the single mode other is part of mode.
func (mode SecurityMode) Contains(other SecurityMode) bool {
	return other.IsSingleMode() && mode&other == other
}

func (mode SecurityMode) String() string {
	var names []string
	for _, entry := range securityModeNames {
		if mode&entry.mode != 0 {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "unset"
	}
	return strings.Join(names, ",")
}

// ParseSecurityModes parses a comma separated list of mode names into their
// union.
func ParseSecurityModes(s string) (SecurityMode, error) {
	var modes SecurityMode
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		found := false
		for _, entry := range securityModeNames {
			if entry.name == name {
				modes |= entry.mode
				found = true
				break
			}
		}
		if !found {
			return 0, errors.Errorf("unknown security mode %q", name)
		}
	}
	return modes, nil
}
