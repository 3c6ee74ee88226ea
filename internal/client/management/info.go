package management

import (
	"maps"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// InfoEndpoint reports static information about the instance
type InfoEndpoint struct {
	info map[string]any
}

// NewInfoEndpoint creates an info endpoint for the named application
func NewInfoEndpoint(name, version string, metadata map[string]string) *InfoEndpoint {
	app := map[string]any{"name": name}
	if version != "" {
		app["version"] = version
	}
	md := make(map[string]string, len(metadata))
	maps.Copy(md, metadata)

	return &InfoEndpoint{info: map[string]any{
		"app":      app,
		"metadata": md,
		"runtime": map[string]any{
			"go":      runtime.Version(),
			"started": time.Now().UTC().Format(time.RFC3339),
		},
	}}
}

// Handler serves the info document
func (i *InfoEndpoint) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, i.info)
	}
}
