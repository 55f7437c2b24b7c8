package config

import (
	"net/url"
	"strings"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

// DefaultSimulationName is used when a registry URI carries none.
const DefaultSimulationName = "default"

// RegistryAddress is the parsed form of a registry URI (§6):
// `silkit://host:port[/simulation-name]` and `tcp://host:port` dial a TCP
// listener (the two schemes are parsed the same way: a path segment, if
// present, is the simulation name, otherwise the default is used);
// `local:///path/to/socket` dials a Unix domain socket and always uses the
// default simulation name.
type RegistryAddress struct {
	Network        string // "tcp" or "unix"
	Address        string // host:port, or socket path
	SimulationName string
}

// ParseRegistryURI parses a registry URI into a dial-ready address.
func ParseRegistryURI(raw string) (RegistryAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return RegistryAddress{}, types.NewFault(types.Configuration, "config.ParseRegistryURI", err)
	}

	switch u.Scheme {
	case "silkit", "tcp":
		sim := strings.TrimPrefix(u.Path, "/")
		if sim == "" {
			sim = DefaultSimulationName
		}
		if u.Host == "" {
			return RegistryAddress{}, types.NewFault(types.Configuration, "config.ParseRegistryURI",
				errMissingHost)
		}
		return RegistryAddress{Network: "tcp", Address: u.Host, SimulationName: sim}, nil
	case "local":
		path := u.Path
		if path == "" {
			return RegistryAddress{}, types.NewFault(types.Configuration, "config.ParseRegistryURI", errMissingPath)
		}
		return RegistryAddress{Network: "unix", Address: path, SimulationName: DefaultSimulationName}, nil
	default:
		return RegistryAddress{}, types.NewFault(types.Configuration, "config.ParseRegistryURI", errUnknownScheme)
	}
}

// ParseAcceptorURI parses one of a participant's own listen endpoints:
// `tcp://host:port` for a stream socket, `local:///path` for a Unix
// domain socket.
func ParseAcceptorURI(raw string) (RegistryAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return RegistryAddress{}, types.NewFault(types.Configuration, "config.ParseAcceptorURI", err)
	}
	switch u.Scheme {
	case "tcp":
		return RegistryAddress{Network: "tcp", Address: u.Host}, nil
	case "local":
		return RegistryAddress{Network: "unix", Address: u.Path}, nil
	default:
		return RegistryAddress{}, types.NewFault(types.Configuration, "config.ParseAcceptorURI", errUnknownScheme)
	}
}
