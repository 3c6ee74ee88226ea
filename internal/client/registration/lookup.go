package registration

// Endpoint ids looked up for the health URL, in order of preference
const (
	EndpointHealth = "health"
	EndpointStatus = "status"
)

// EndpointPathLookup reports the path an endpoint is mapped to,
// including the management base path.
type EndpointPathLookup interface {
	Path(id string) (string, bool)
}

// EndpointPathLookupFunc adapts a function to EndpointPathLookup
type EndpointPathLookupFunc func(id string) (string, bool)

// Path calls f(id)
func (f EndpointPathLookupFunc) Path(id string) (string, bool) {
	return f(id)
}

// StaticEndpointPaths is a fixed id to path mapping
type StaticEndpointPaths map[string]string

// Path returns the mapped path if it is not empty
func (s StaticEndpointPaths) Path(id string) (string, bool) {
	p, ok := s[id]
	return p, ok && p != ""
}

// healthEndpointPath returns the path of the health endpoint, falling
// back to the status endpoint
func healthEndpointPath(lookup EndpointPathLookup) (string, bool) {
	if lookup == nil {
		return "", false
	}
	for _, id := range []string{EndpointHealth, EndpointStatus} {
		if p, ok := lookup.Path(id); ok && p != "" {
			return p, true
		}
	}
	return "", false
}
