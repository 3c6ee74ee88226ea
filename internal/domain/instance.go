package domain

import (
	"slices"
	"sort"
	"time"
)

// InstanceID identifies a registered instance
type InstanceID string

// String returns the string representation
func (i InstanceID) String() string {
	return string(i)
}

// Instance is the event-sourced aggregate for a registered instance.
// Mutating methods return a new *Instance and leave the receiver untouched.
type Instance struct {
	ID              InstanceID   `json:"id"`
	Version         int64        `json:"version"`
	Registration    Registration `json:"registration"`
	Registered      bool         `json:"registered"`
	StatusInfo      StatusInfo   `json:"statusInfo"`
	StatusTimestamp time.Time    `json:"statusTimestamp"`
	Tags            Tags         `json:"tags"`

	unsavedEvents []InstanceEvent
}

// NewInstance creates an empty, unregistered instance
func NewInstance(id InstanceID) *Instance {
	return &Instance{
		ID:              id,
		StatusInfo:      StatusInfoUnknown(),
		StatusTimestamp: time.Now().UTC(),
		Tags:            EmptyTags(),
	}
}

// LoadInstance replays the event log of an instance
func LoadInstance(id InstanceID, events []InstanceEvent) *Instance {
	inst := NewInstance(id)
	for _, ev := range events {
		inst = inst.Apply(ev)
	}
	return inst
}

// Register records a registration; re-registering with identical data is a no-op
func (i *Instance) Register(reg Registration) *Instance {
	if i.Registered && i.Registration.Equal(reg) {
		return i
	}
	if i.Registered {
		return i.apply(NewRegistrationUpdatedEvent(i.ID, i.nextVersion(), reg), true)
	}
	return i.apply(NewRegisteredEvent(i.ID, i.nextVersion(), reg), true)
}

// Deregister marks the instance as gone; no-op when not registered
func (i *Instance) Deregister() *Instance {
	if !i.Registered {
		return i
	}
	return i.apply(NewDeregisteredEvent(i.ID, i.nextVersion()), true)
}

// WithStatusInfo records a status; no-op when unchanged
func (i *Instance) WithStatusInfo(info StatusInfo) *Instance {
	if i.StatusInfo.Equal(info) {
		return i
	}
	return i.apply(NewStatusChangedEvent(i.ID, i.nextVersion(), info), true)
}

// Apply applies a persisted event without recording it as unsaved.
// Events of other instances are ignored.
func (i *Instance) Apply(ev InstanceEvent) *Instance {
	return i.apply(ev, false)
}

// UnsavedEvents returns events recorded since the last ClearUnsavedEvents
func (i *Instance) UnsavedEvents() []InstanceEvent {
	return slices.Clone(i.unsavedEvents)
}

// ClearUnsavedEvents returns a copy without pending events
func (i *Instance) ClearUnsavedEvents() *Instance {
	next := *i
	next.unsavedEvents = nil
	return &next
}

func (i *Instance) nextVersion() int64 {
	return i.Version + 1
}

func (i *Instance) apply(ev InstanceEvent, isNew bool) *Instance {
	if ev.Instance != i.ID {
		return i
	}

	next := *i
	next.Version = ev.Version

	switch ev.Type {
	case EventRegistered, EventRegistrationUpdated:
		if ev.Registration != nil {
			next.Registration = *ev.Registration
			next.Tags = ev.Registration.Tags()
		}
		next.Registered = true
		if ev.Type == EventRegistered {
			next.StatusInfo = StatusInfoUnknown()
			next.StatusTimestamp = ev.Timestamp
		}
	case EventStatusChanged:
		if ev.StatusInfo != nil {
			next.StatusInfo = *ev.StatusInfo
		}
		next.StatusTimestamp = ev.Timestamp
	case EventDeregistered:
		next.Registered = false
		next.StatusInfo = StatusInfoUnknown()
		next.StatusTimestamp = ev.Timestamp
	}

	if isNew {
		next.unsavedEvents = append(slices.Clone(i.unsavedEvents), ev)
	}
	return &next
}

// Application groups the registered instances sharing a name
type Application struct {
	Name            string      `json:"name"`
	Status          Status      `json:"status"`
	StatusTimestamp time.Time   `json:"statusTimestamp"`
	Instances       []*Instance `json:"instances"`
}

// GroupApplications groups instances by registration name, sorted by name.
// The application status is the worst status of its instances.
func GroupApplications(instances []*Instance) []Application {
	byName := make(map[string][]*Instance)
	for _, inst := range instances {
		byName[inst.Registration.Name] = append(byName[inst.Registration.Name], inst)
	}

	apps := make([]Application, 0, len(byName))
	for name, group := range byName {
		apps = append(apps, NewApplication(name, group))
	}
	sort.Slice(apps, func(a, b int) bool { return apps[a].Name < apps[b].Name })
	return apps
}

// NewApplication builds an Application from its instances
func NewApplication(name string, instances []*Instance) Application {
	statuses := make([]Status, 0, len(instances))
	var latest time.Time
	for _, inst := range instances {
		statuses = append(statuses, inst.StatusInfo.Status)
		if inst.StatusTimestamp.After(latest) {
			latest = inst.StatusTimestamp
		}
	}
	return Application{
		Name:            name,
		Status:          WorstStatus(statuses...),
		StatusTimestamp: latest,
		Instances:       instances,
	}
}
