package notify

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

// NotificationFilter suppresses notifications for matching events
type NotificationFilter interface {
	// Filter reports whether the notification should be suppressed
	Filter(event domain.InstanceEvent, inst *domain.Instance) bool
	// Expiry returns when the filter stops applying, nil if never
	Expiry() *time.Time
	IsExpired(now time.Time) bool
}

// MaxTTLMillis is the largest ttl representable as a time.Duration
const MaxTTLMillis = math.MaxInt64 / int64(time.Millisecond)

type expiry struct {
	at *time.Time
}

// expiryFromTTL converts a ttl in milliseconds; ttl <= 0 means no expiry.
// A ttl beyond MaxTTLMillis never expires either.
func expiryFromTTL(ttlMillis int64, now time.Time) expiry {
	if ttlMillis <= 0 || ttlMillis > MaxTTLMillis {
		return expiry{}
	}
	at := now.Add(time.Duration(ttlMillis) * time.Millisecond).UTC()
	return expiry{at: &at}
}

func (e expiry) Expiry() *time.Time { return e.at }

func (e expiry) IsExpired(now time.Time) bool {
	return e.at != nil && !now.Before(*e.at)
}

// InstanceIDFilter suppresses notifications for a single instance
type InstanceIDFilter struct {
	expiry
	InstanceID domain.InstanceID
}

// NewInstanceIDFilter creates a filter; ttlMillis <= 0 never expires
func NewInstanceIDFilter(id domain.InstanceID, ttlMillis int64) *InstanceIDFilter {
	return &InstanceIDFilter{expiry: expiryFromTTL(ttlMillis, time.Now()), InstanceID: id}
}

func (f *InstanceIDFilter) Filter(event domain.InstanceEvent, _ *domain.Instance) bool {
	return event.Instance == f.InstanceID
}

// ApplicationNameFilter suppresses notifications for all instances of an application
type ApplicationNameFilter struct {
	expiry
	ApplicationName string
}

// NewApplicationNameFilter creates a filter; ttlMillis <= 0 never expires
func NewApplicationNameFilter(name string, ttlMillis int64) *ApplicationNameFilter {
	return &ApplicationNameFilter{expiry: expiryFromTTL(ttlMillis, time.Now()), ApplicationName: name}
}

func (f *ApplicationNameFilter) Filter(_ domain.InstanceEvent, inst *domain.Instance) bool {
	return inst != nil && inst.Registration.Name == f.ApplicationName
}

// FilterEntry is a filter registered under an id
type FilterEntry struct {
	ID     string
	Filter NotificationFilter
}

// MarshalJSON renders the filter as a flat object with its id
func (e FilterEntry) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":      e.ID,
		"expired": e.Filter.IsExpired(time.Now()),
	}
	if at := e.Filter.Expiry(); at != nil {
		out["expiry"] = at.Format(time.RFC3339Nano)
	}
	switch f := e.Filter.(type) {
	case *InstanceIDFilter:
		out["instanceId"] = f.InstanceID
	case *ApplicationNameFilter:
		out["applicationName"] = f.ApplicationName
	}
	return json.Marshal(out)
}
