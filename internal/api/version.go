// Package api provides HTTP API handlers for the service admin server.
package api

// APIVersion represents the current API version supported by this server.
// Clients can read it from /status to detect available features.
const (
	// APIVersion1 is the original API version.
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server.
	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"instances",
		"applications",
		"events",
		"events-websocket",
		"notification-filters",
		"metrics",
	},
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	Roles        []string `json:"roles"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
