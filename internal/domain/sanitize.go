package domain

import (
	"fmt"
	"regexp"
)

// MaskedValue replaces sanitized metadata values
const MaskedValue = "******"

// DefaultSanitizePatterns returns the metadata key patterns masked by default
func DefaultSanitizePatterns() []string {
	return []string{
		".*password$",
		".*secret$",
		".*key$",
		".*token$",
		".*credentials.*",
		".*vcap_services$",
	}
}

// Sanitizer masks metadata values whose keys match one of its patterns.
// Patterns must match the whole key and are case-insensitive.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer compiles the given key patterns
func NewSanitizer(patterns []string) (*Sanitizer, error) {
	s := &Sanitizer{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile("^(?i:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid sanitize pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Matches reports whether the key should be masked
func (s *Sanitizer) Matches(key string) bool {
	if s == nil {
		return false
	}
	for _, re := range s.patterns {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of metadata with matching values masked
func (s *Sanitizer) Sanitize(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if s.Matches(k) {
			out[k] = MaskedValue
		} else {
			out[k] = v
		}
	}
	return out
}

// SanitizeRegistration returns a copy of the registration with masked metadata
func (s *Sanitizer) SanitizeRegistration(reg Registration) Registration {
	reg.Metadata = s.Sanitize(reg.Metadata)
	return reg
}

// SanitizeInstance returns a shallow copy of the instance with masked metadata
func (s *Sanitizer) SanitizeInstance(inst *Instance) *Instance {
	if inst == nil {
		return nil
	}
	out := *inst
	out.Registration = s.SanitizeRegistration(inst.Registration)
	out.unsavedEvents = nil
	return &out
}

// SanitizeEvent returns a copy of the event with masked registration metadata
func (s *Sanitizer) SanitizeEvent(ev InstanceEvent) InstanceEvent {
	if ev.Registration != nil {
		reg := s.SanitizeRegistration(*ev.Registration)
		ev.Registration = &reg
	}
	return ev
}
