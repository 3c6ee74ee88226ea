package registration

import (
	"fmt"
	"net"
	"strconv"
)

// URLs are the resolved addresses of an instance
type URLs struct {
	ServiceURL    string
	ManagementURL string
	// HealthURL is empty when no health or status endpoint is mapped
	HealthURL string
}

// HasHealth reports whether a health URL could be resolved
func (u URLs) HasHealth() bool {
	return u.HealthURL != ""
}

// Resolve computes the service, management and health URLs of an instance.
//
// The service URL is the server root followed by the service path and the
// context path. On a shared port, management endpoints live below the
// service URL, the dispatcher prefix and the management context path. On a
// separate port they live below the management context path only.
func Resolve(d Descriptor) (URLs, error) {
	serviceRoot, err := d.serviceRoot()
	if err != nil {
		return URLs{}, err
	}
	serviceURL := joinURL(serviceRoot, d.ServicePath, d.ContextPath)

	var managementRoot string
	if d.SeparateManagement() {
		base, err := d.managementBase()
		if err != nil {
			return URLs{}, err
		}
		managementRoot = joinURL(base, d.ManagementContextPath)
	} else {
		managementRoot = joinURL(serviceURL, d.DispatcherPrefix, d.ManagementContextPath)
	}
	managementURL := joinURL(managementRoot, d.BasePath)

	urls := URLs{
		ServiceURL:    serviceURL,
		ManagementURL: managementURL,
	}
	urls.HealthURL = healthURL(managementURL, d.HealthPath, d.BasePath)
	return urls, nil
}

// healthURL places the reported health path below managementURL. The
// reported path includes the base path; a path outside of it is taken as
// relative. A path that maps onto the base path itself is no health
// endpoint and yields "".
func healthURL(managementURL, healthPath, basePath string) string {
	if healthPath == "" {
		return ""
	}
	rel, _ := trimPathPrefix(healthPath, basePath)
	if rel == "" {
		return ""
	}
	return joinURL(managementURL, rel)
}

func (d Descriptor) serviceRoot() (string, error) {
	if d.ServiceBaseURL != "" {
		return d.ServiceBaseURL, nil
	}
	return baseURL(d.Scheme, d.Host, d.ServerPort)
}

func (d Descriptor) managementBase() (string, error) {
	if d.ManagementBaseURL != "" {
		return d.ManagementBaseURL, nil
	}
	scheme := d.ManagementScheme
	if scheme == "" {
		scheme = d.Scheme
	}
	host := d.ManagementHost
	if host == "" {
		host = d.Host
	}
	return baseURL(scheme, host, d.ManagementPort)
}

func baseURL(scheme, host string, port int) (string, error) {
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrHostResolution)
	}
	if port <= 0 {
		return "", fmt.Errorf("%w: port %d", ErrNotReady, port)
	}
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)), nil
}
