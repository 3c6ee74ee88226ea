package registration

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// ErrHostResolution is returned when the local host name or address cannot be determined
var ErrHostResolution = errors.New("host resolution failed")

// HostType selects how the advertised host is derived
type HostType string

const (
	HostTypeIP        HostType = "ip"
	HostTypeHostname  HostType = "hostname"
	HostTypeCanonical HostType = "canonical"
)

// ParseHostType parses a configured host type; "" selects canonical
func ParseHostType(s string) (HostType, error) {
	switch t := HostType(strings.ToLower(s)); t {
	case "":
		return HostTypeCanonical, nil
	case HostTypeIP, HostTypeHostname, HostTypeCanonical:
		return t, nil
	default:
		return "", fmt.Errorf("unknown host type %q", s)
	}
}

// HostResolver determines the host advertised in instance URLs
type HostResolver interface {
	ResolveHost() (string, error)
}

// HostResolverFunc adapts a function to HostResolver
type HostResolverFunc func() (string, error)

// ResolveHost calls f()
func (f HostResolverFunc) ResolveHost() (string, error) {
	return f()
}

// StaticHost always resolves to the same host
type StaticHost string

// ResolveHost returns the host, failing when it is empty
func (s StaticHost) ResolveHost() (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty host", ErrHostResolution)
	}
	return string(s), nil
}

// LocalHostResolver derives the host from the local network stack
type LocalHostResolver struct {
	Type HostType

	// nil uses the net and os package functions
	hostname       func() (string, error)
	interfaceAddrs func() ([]net.Addr, error)
	lookupCNAME    func(host string) (string, error)
}

// NewLocalHostResolver creates a resolver for the given host type
func NewLocalHostResolver(t HostType) *LocalHostResolver {
	return &LocalHostResolver{Type: t}
}

// ResolveHost returns the local ip, host name or canonical host name
func (r *LocalHostResolver) ResolveHost() (string, error) {
	switch r.Type {
	case HostTypeIP:
		return r.ip()
	case HostTypeHostname:
		return r.name()
	case HostTypeCanonical, "":
		return r.canonical()
	default:
		return "", fmt.Errorf("%w: unknown host type %q", ErrHostResolution, r.Type)
	}
}

func (r *LocalHostResolver) name() (string, error) {
	hostname := r.hostname
	if hostname == nil {
		hostname = os.Hostname
	}
	name, err := hostname()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHostResolution, err)
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty host name", ErrHostResolution)
	}
	return name, nil
}

// canonical resolves the fully qualified name of the host, falling back
// to the plain host name when DNS has no better answer
func (r *LocalHostResolver) canonical() (string, error) {
	name, err := r.name()
	if err != nil {
		return "", err
	}
	lookupCNAME := r.lookupCNAME
	if lookupCNAME == nil {
		lookupCNAME = net.LookupCNAME
	}
	cname, err := lookupCNAME(name)
	if err != nil || cname == "" {
		return name, nil
	}
	return strings.TrimSuffix(cname, "."), nil
}

// ip returns the first non-loopback unicast address, preferring IPv4
func (r *LocalHostResolver) ip() (string, error) {
	interfaceAddrs := r.interfaceAddrs
	if interfaceAddrs == nil {
		interfaceAddrs = net.InterfaceAddrs
	}
	addrs, err := interfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHostResolution, err)
	}

	var v6 string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || !ipNet.IP.IsGlobalUnicast() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
		if v6 == "" {
			v6 = ipNet.IP.String()
		}
	}
	if v6 != "" {
		return v6, nil
	}
	return "", fmt.Errorf("%w: no non-loopback address found", ErrHostResolution)
}
