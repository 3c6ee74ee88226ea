package registration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// ApplicationSource produces the registration payload, or ErrNotReady
type ApplicationSource func() (Application, error)

// Registrator registers the local instance with one or more admin servers
type Registrator struct {
	client       *Client
	source       ApplicationSource
	adminURLs    []string
	registerOnce bool
	maxRetries   uint
	newBackOff   func() backoff.BackOff
	logger       *zap.Logger

	mu           sync.Mutex
	registeredID string
	// last outcome, logged only on change
	lastFailed bool
}

// NewRegistrator creates a registrator for the configured admin URLs
func NewRegistrator(client *Client, source ApplicationSource, cfg config.ClientConfig, logger *zap.Logger) *Registrator {
	return &Registrator{
		client:       client,
		source:       source,
		adminURLs:    AdminURLs(cfg.URLs, cfg.APIPath),
		registerOnce: cfg.RegisterOnce,
		maxRetries:   cfg.MaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger: logger.Named("registrator"),
	}
}

// AdminURLs joins each admin server URL with the registration resource path
func AdminURLs(urls []string, apiPath string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, joinURL(u, apiPath))
		}
	}
	return out
}

// Register registers the instance, trying each admin URL in turn and
// stopping after the first success when register_once is set. It reports
// whether at least one admin server accepted the registration.
func (r *Registrator) Register(ctx context.Context) bool {
	app, err := r.source()
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			r.logger.Debug("Instance not ready, skipping registration")
			return false
		}
		r.logger.Error("Failed to create application", zap.Error(err))
		return false
	}
	if app.HealthURL == "" {
		r.logger.Warn("No health endpoint mapped, skipping registration", zap.String("name", app.Name))
		return false
	}

	registered := false
	for _, adminURL := range r.adminURLs {
		id, err := r.register(ctx, adminURL, app)
		if err != nil {
			r.failed(adminURL, app, err)
			continue
		}

		r.mu.Lock()
		first := r.registeredID == ""
		r.registeredID = id
		r.lastFailed = false
		r.mu.Unlock()

		if first {
			r.logger.Info("Application registered",
				zap.String("name", app.Name),
				zap.String("id", id),
				zap.String("admin_url", adminURL))
		} else {
			r.logger.Debug("Application refreshed", zap.String("id", id), zap.String("admin_url", adminURL))
		}

		registered = true
		if r.registerOnce {
			break
		}
	}
	return registered
}

func (r *Registrator) register(ctx context.Context, adminURL string, app Application) (string, error) {
	operation := func() (string, error) {
		id, err := r.client.Register(ctx, adminURL, app)
		if err != nil {
			var status *StatusError
			if errors.As(err, &status) && !status.Temporary() {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return id, nil
	}

	id, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxRetries+1),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return "", permanent.Unwrap()
		}
		return "", err
	}
	return id, nil
}

func (r *Registrator) failed(adminURL string, app Application, err error) {
	r.mu.Lock()
	repeated := r.lastFailed
	r.lastFailed = true
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("name", app.Name),
		zap.String("admin_url", adminURL),
		zap.Error(err),
	}
	if repeated {
		r.logger.Debug("Failed to register application", fields...)
		return
	}
	r.logger.Warn("Failed to register application", fields...)
}

// Deregister removes the registration from every admin URL
func (r *Registrator) Deregister(ctx context.Context) {
	r.mu.Lock()
	id := r.registeredID
	r.mu.Unlock()
	if id == "" {
		return
	}

	for _, adminURL := range r.adminURLs {
		if err := r.client.Deregister(ctx, adminURL, id); err != nil {
			r.logger.Warn("Failed to deregister application",
				zap.String("id", id),
				zap.String("admin_url", adminURL),
				zap.Error(err))
			continue
		}
		r.logger.Info("Application deregistered", zap.String("id", id), zap.String("admin_url", adminURL))
		if r.registerOnce {
			break
		}
	}

	r.mu.Lock()
	if r.registeredID == id {
		r.registeredID = ""
	}
	r.mu.Unlock()
}

// RegisteredID returns the id assigned by the admin server, or ""
func (r *Registrator) RegisteredID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registeredID
}
