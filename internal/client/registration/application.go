package registration

import (
	"maps"
	"time"

	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// MetadataStartup is the metadata key carrying the instance start time
const MetadataStartup = "startup"

// Application is the registration payload sent to the admin server
type Application struct {
	Name          string            `json:"name"`
	ManagementURL string            `json:"managementUrl,omitempty"`
	HealthURL     string            `json:"healthUrl"`
	ServiceURL    string            `json:"serviceUrl,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ApplicationFactory creates the Application of the local instance from
// configuration and the listener readiness collected by a DescriptorBuilder.
type ApplicationFactory struct {
	instance   config.InstanceConfig
	management config.ManagementConfig
	hosts      HostResolver
	lookup     EndpointPathLookup
	startup    time.Time
}

// NewApplicationFactory creates a factory. hosts resolves the advertised
// host, lookup reports the endpoint paths of the management server.
func NewApplicationFactory(instance config.InstanceConfig, management config.ManagementConfig, hosts HostResolver, lookup EndpointPathLookup) *ApplicationFactory {
	return &ApplicationFactory{
		instance:   instance,
		management: management,
		hosts:      hosts,
		lookup:     lookup,
		startup:    time.Now().UTC(),
	}
}

// NewDescriptorBuilder returns a builder preloaded with the configured paths
func (f *ApplicationFactory) NewDescriptorBuilder() *DescriptorBuilder {
	scheme := "http"
	if f.instance.TLS {
		scheme = "https"
	}
	mgmtScheme := scheme
	if f.management.Separate() {
		mgmtScheme = "http"
		if f.management.TLS {
			mgmtScheme = "https"
		}
	}

	d := Descriptor{
		Name:                  f.instance.Name,
		Scheme:                scheme,
		ServiceBaseURL:        f.instance.ServiceBaseURL,
		ContextPath:           f.instance.ContextPath,
		DispatcherPrefix:      f.instance.DispatcherPrefix,
		ServicePath:           f.instance.ServicePath,
		ManagementScheme:      mgmtScheme,
		ManagementHost:        f.management.Address,
		ManagementBaseURL:     f.instance.ManagementBaseURL,
		ManagementContextPath: f.management.ContextPath,
		BasePath:              f.management.EffectiveBasePath(),
	}
	// an explicit service URL is the service root; shared management nests below it
	if f.instance.ServiceURL != "" {
		d.ServiceBaseURL = f.instance.ServiceURL
		d.ServicePath = ""
		d.ContextPath = ""
	}

	b := NewDescriptorBuilder(d, f.lookup)
	if !f.management.Separate() {
		b.WithoutSeparateManagement()
	}
	return b
}

// CreateApplication builds the registration payload. Explicitly configured
// URLs take precedence over resolved ones.
func (f *ApplicationFactory) CreateApplication(b *DescriptorBuilder) (Application, error) {
	urls, err := f.resolve(b)
	if err != nil {
		return Application{}, err
	}

	metadata := make(map[string]string, len(f.instance.Metadata)+1)
	metadata[MetadataStartup] = f.startup.Format(time.RFC3339)
	maps.Copy(metadata, f.instance.Metadata)

	return Application{
		Name:          f.instance.Name,
		ServiceURL:    urls.ServiceURL,
		ManagementURL: urls.ManagementURL,
		HealthURL:     urls.HealthURL,
		Metadata:      metadata,
	}, nil
}

func (f *ApplicationFactory) resolve(b *DescriptorBuilder) (URLs, error) {
	// fully configured instances need neither ports nor host
	if f.instance.ServiceURL != "" && f.instance.ManagementURL != "" && f.instance.HealthURL != "" {
		return URLs{
			ServiceURL:    f.instance.ServiceURL,
			ManagementURL: f.instance.ManagementURL,
			HealthURL:     f.instance.HealthURL,
		}, nil
	}

	d, err := b.Build(f.hosts)
	if err != nil {
		return URLs{}, err
	}
	urls, err := Resolve(d)
	if err != nil {
		return URLs{}, err
	}

	if f.instance.ManagementURL != "" {
		urls.ManagementURL = f.instance.ManagementURL
		urls.HealthURL = healthURL(urls.ManagementURL, d.HealthPath, d.BasePath)
	}
	if f.instance.HealthURL != "" {
		urls.HealthURL = f.instance.HealthURL
	}
	return urls, nil
}
