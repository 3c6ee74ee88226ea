package domain

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalidRegistration is returned for registrations missing required fields
var ErrInvalidRegistration = errors.New("invalid registration")

// TagsMetadataPrefix is the metadata key prefix that carries instance tags
const TagsMetadataPrefix = "tags"

// Registration is what an instance submits to the admin server
type Registration struct {
	Name          string            `json:"name" bson:"name"`
	ManagementURL string            `json:"managementUrl,omitempty" bson:"management_url,omitempty"`
	HealthURL     string            `json:"healthUrl" bson:"health_url"`
	ServiceURL    string            `json:"serviceUrl,omitempty" bson:"service_url,omitempty"`
	Source        string            `json:"source,omitempty" bson:"source,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Validate checks required fields and URL shapes
func (r Registration) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name must be set", ErrInvalidRegistration)
	}
	if r.HealthURL == "" {
		return fmt.Errorf("%w: healthUrl must be set", ErrInvalidRegistration)
	}
	if !isAbsoluteURL(r.HealthURL) {
		return fmt.Errorf("%w: healthUrl %q is not a valid absolute URL", ErrInvalidRegistration, r.HealthURL)
	}
	if r.ManagementURL != "" && !isAbsoluteURL(r.ManagementURL) {
		return fmt.Errorf("%w: managementUrl %q is not a valid absolute URL", ErrInvalidRegistration, r.ManagementURL)
	}
	if r.ServiceURL != "" && !isAbsoluteURL(r.ServiceURL) {
		return fmt.Errorf("%w: serviceUrl %q is not a valid absolute URL", ErrInvalidRegistration, r.ServiceURL)
	}
	return nil
}

// Tags returns the tags carried in the registration metadata
func (r Registration) Tags() Tags {
	return TagsFromPrefixed(r.Metadata, TagsMetadataPrefix)
}

// Equal compares all fields including metadata
func (r Registration) Equal(other Registration) bool {
	if r.Name != other.Name || r.ManagementURL != other.ManagementURL ||
		r.HealthURL != other.HealthURL || r.ServiceURL != other.ServiceURL ||
		r.Source != other.Source || len(r.Metadata) != len(other.Metadata) {
		return false
	}
	for k, v := range r.Metadata {
		if ov, ok := other.Metadata[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
