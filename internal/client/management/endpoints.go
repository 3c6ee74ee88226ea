// Package management serves the operational endpoints of a monitored
// instance (health, info) and reports where they are mapped.
package management

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// Endpoints is a registry of management endpoints mounted below a base path
type Endpoints struct {
	basePath string

	mu       sync.RWMutex
	handlers map[string]gin.HandlerFunc
}

// NewEndpoints creates an empty registry. An empty basePath selects
// config.DefaultManagementBasePath, "/" mounts the endpoints at the root.
func NewEndpoints(basePath string) *Endpoints {
	if basePath == "" {
		basePath = config.DefaultManagementBasePath
	}
	return &Endpoints{
		basePath: normalizePath(basePath),
		handlers: make(map[string]gin.HandlerFunc),
	}
}

// BasePath returns the normalised base path, "" for the root
func (e *Endpoints) BasePath() string {
	return e.basePath
}

// Register maps handler to id, replacing a previous mapping
func (e *Endpoints) Register(id string, handler gin.HandlerFunc) {
	id = strings.Trim(id, "/")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[id] = handler
}

// Path returns the path id is mapped to, including the base path
func (e *Endpoints) Path(id string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.handlers[id]; !ok {
		return "", false
	}
	return e.basePath + "/" + id, true
}

// IDs returns the registered endpoint ids in sorted order
func (e *Endpoints) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.handlers))
	for id := range e.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Mount adds a GET route per endpoint plus an index of links at the base path
func (e *Endpoints) Mount(group *gin.RouterGroup) {
	g := group.Group(e.basePath)
	for _, id := range e.IDs() {
		e.mu.RLock()
		h := e.handlers[id]
		e.mu.RUnlock()
		g.GET("/"+id, h)
	}
	g.GET("", e.index)
}

func (e *Endpoints) index(c *gin.Context) {
	links := gin.H{}
	for _, id := range e.IDs() {
		path, _ := e.Path(id)
		links[id] = gin.H{"href": path}
	}
	c.JSON(http.StatusOK, gin.H{"_links": links})
}

func normalizePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
