package registration

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotReady is returned by DescriptorBuilder.Build before the ports are known
var ErrNotReady = errors.New("instance not ready")

// Readiness namespaces reported by the instance's listeners
const (
	NamespaceServer     = "server"
	NamespaceManagement = "management"
)

// Descriptor holds everything needed to resolve the URLs of an instance
type Descriptor struct {
	Name string

	// Scheme and Host of the primary server; Scheme defaults to http
	Scheme string
	Host   string
	// ServiceBaseURL replaces scheme://host:port of the service when set
	ServiceBaseURL string

	ServerPort       int
	ContextPath      string
	DispatcherPrefix string
	// ServicePath overrides the externally visible service root
	ServicePath string

	// ManagementPort of a separate management server; 0 or ServerPort means shared
	ManagementPort        int
	ManagementScheme      string
	ManagementHost        string
	ManagementBaseURL     string
	ManagementContextPath string
	// BasePath is the management endpoint base path, e.g. /actuator
	BasePath string

	// HealthPath as reported by the endpoint lookup; empty when unmapped
	HealthPath string
}

// SeparateManagement reports whether management runs on its own port
func (d Descriptor) SeparateManagement() bool {
	return d.ManagementPort != 0 && d.ManagementPort != d.ServerPort
}

// DescriptorBuilder accumulates listener readiness and builds a Descriptor
// once both the server and the management ports are known.
type DescriptorBuilder struct {
	template Descriptor
	lookup   EndpointPathLookup

	mu             sync.Mutex
	serverPort     int
	managementPort int
	sharedMgmt     bool
}

// NewDescriptorBuilder creates a builder. The template carries the static
// fields; its ports, host and health path are filled in by Build.
func NewDescriptorBuilder(template Descriptor, lookup EndpointPathLookup) *DescriptorBuilder {
	return &DescriptorBuilder{
		template: template,
		lookup:   lookup,
	}
}

// WithoutSeparateManagement declares that management endpoints share the server
func (b *DescriptorBuilder) WithoutSeparateManagement() *DescriptorBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sharedMgmt = true
	return b
}

// Update records that the listener of a namespace is ready on port
func (b *DescriptorBuilder) Update(namespace string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d for namespace %q", port, namespace)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch namespace {
	case NamespaceServer:
		b.serverPort = port
	case NamespaceManagement:
		b.managementPort = port
	default:
		return fmt.Errorf("unknown namespace %q", namespace)
	}
	return nil
}

// Ready reports whether Build can produce a descriptor
func (b *DescriptorBuilder) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready()
}

func (b *DescriptorBuilder) ready() bool {
	return b.serverPort > 0 && (b.managementPort > 0 || b.sharedMgmt)
}

// Build resolves the host and returns a descriptor. It fails with
// ErrNotReady until the ports are known and with ErrHostResolution when
// the host cannot be determined.
func (b *DescriptorBuilder) Build(hosts HostResolver) (Descriptor, error) {
	b.mu.Lock()
	if !b.ready() {
		b.mu.Unlock()
		return Descriptor{}, ErrNotReady
	}
	d := b.template
	d.ServerPort = b.serverPort
	d.ManagementPort = b.managementPort
	if b.sharedMgmt {
		d.ManagementPort = 0
	}
	b.mu.Unlock()

	if d.needsHost() {
		if hosts == nil {
			return Descriptor{}, fmt.Errorf("%w: no host resolver", ErrHostResolution)
		}
		host, err := hosts.ResolveHost()
		if err != nil {
			if errors.Is(err, ErrHostResolution) {
				return Descriptor{}, err
			}
			return Descriptor{}, fmt.Errorf("%w: %v", ErrHostResolution, err)
		}
		if d.Host == "" {
			d.Host = host
		}
		if d.ManagementHost == "" {
			d.ManagementHost = host
		}
	}

	if p, ok := healthEndpointPath(b.lookup); ok {
		d.HealthPath = p
	}
	return d, nil
}

// needsHost reports whether any URL is derived from the local host
func (d Descriptor) needsHost() bool {
	if d.ServiceBaseURL == "" && d.Host == "" {
		return true
	}
	return d.SeparateManagement() && d.ManagementBaseURL == "" && d.ManagementHost == "" && d.Host == ""
}
