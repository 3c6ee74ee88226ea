package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		fragments []string
		want      string
	}{
		{nil, ""},
		{[]string{"", "/", "//"}, ""},
		{[]string{"app"}, "/app"},
		{[]string{"/app/", "/actuator"}, "/app/actuator"},
		{[]string{"//a//b//", "c/"}, "/a/b/c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinPath(tt.fragments...), "fragments %q", tt.fragments)
	}
}

func TestTrimPathPrefix(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         string
		ok           bool
	}{
		{"/actuator/health", "/actuator", "/health", true},
		{"actuator//health/", "actuator/", "/health", true},
		{"/actuator", "/actuator", "", true},
		{"/health", "", "/health", true},
		{"/actuatorx/health", "/actuator", "/actuatorx/health", false},
		{"ping", "/actuator", "/ping", false},
	}
	for _, tt := range tests {
		got, ok := trimPathPrefix(tt.path, tt.prefix)
		assert.Equal(t, tt.want, got, "%q - %q", tt.path, tt.prefix)
		assert.Equal(t, tt.ok, ok, "%q - %q", tt.path, tt.prefix)
	}
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://host:80", joinURL("http://host:80/"))
	assert.Equal(t, "http://host:80/a/b", joinURL("http://host:80//", "/a/", "b"))
}
