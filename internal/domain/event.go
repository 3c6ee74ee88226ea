package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened to an instance
type EventType string

const (
	EventRegistered          EventType = "REGISTERED"
	EventRegistrationUpdated EventType = "REGISTRATION_UPDATED"
	EventStatusChanged       EventType = "STATUS_CHANGED"
	EventDeregistered        EventType = "DEREGISTERED"
)

// InstanceEvent is one entry in an instance's event log.
// Version starts at 1 and increases by one per event of the same instance.
type InstanceEvent struct {
	ID           string        `json:"-" bson:"_id"`
	Type         EventType     `json:"type" bson:"type"`
	Instance     InstanceID    `json:"instance" bson:"instance"`
	Version      int64         `json:"version" bson:"version"`
	Timestamp    time.Time     `json:"timestamp" bson:"timestamp"`
	Registration *Registration `json:"registration,omitempty" bson:"registration,omitempty"`
	StatusInfo   *StatusInfo   `json:"statusInfo,omitempty" bson:"status_info,omitempty"`
}

func newEvent(t EventType, id InstanceID, version int64) InstanceEvent {
	return InstanceEvent{
		ID:        uuid.New().String(),
		Type:      t,
		Instance:  id,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

// NewRegisteredEvent creates a REGISTERED event
func NewRegisteredEvent(id InstanceID, version int64, reg Registration) InstanceEvent {
	ev := newEvent(EventRegistered, id, version)
	ev.Registration = &reg
	return ev
}

// NewRegistrationUpdatedEvent creates a REGISTRATION_UPDATED event
func NewRegistrationUpdatedEvent(id InstanceID, version int64, reg Registration) InstanceEvent {
	ev := newEvent(EventRegistrationUpdated, id, version)
	ev.Registration = &reg
	return ev
}

// NewStatusChangedEvent creates a STATUS_CHANGED event
func NewStatusChangedEvent(id InstanceID, version int64, info StatusInfo) InstanceEvent {
	ev := newEvent(EventStatusChanged, id, version)
	ev.StatusInfo = &info
	return ev
}

// NewDeregisteredEvent creates a DEREGISTERED event
func NewDeregisteredEvent(id InstanceID, version int64) InstanceEvent {
	return newEvent(EventDeregistered, id, version)
}
