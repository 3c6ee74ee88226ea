package domain

import (
	"reflect"
	"strings"
)

// Status is the health status reported by (or derived for) an instance
type Status string

const (
	StatusUnknown      Status = "UNKNOWN"
	StatusUp           Status = "UP"
	StatusDown         Status = "DOWN"
	StatusOffline      Status = "OFFLINE"
	StatusOutOfService Status = "OUT_OF_SERVICE"
	StatusRestricted   Status = "RESTRICTED"
)

// statusOrder ranks statuses from worst to best
var statusOrder = []Status{
	StatusDown,
	StatusOutOfService,
	StatusOffline,
	StatusUnknown,
	StatusRestricted,
	StatusUp,
}

// ParseStatus normalizes a reported status. Empty input is UNKNOWN,
// custom statuses are kept upper-cased.
func ParseStatus(s string) Status {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return StatusUnknown
	}
	return Status(s)
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// severity returns the rank of the status; custom statuses rank as UNKNOWN
func (s Status) severity() int {
	for i, known := range statusOrder {
		if known == s {
			return i
		}
	}
	for i, known := range statusOrder {
		if known == StatusUnknown {
			return i
		}
	}
	return 0
}

// WorstStatus returns the most severe of the given statuses, UNKNOWN if none given
func WorstStatus(statuses ...Status) Status {
	if len(statuses) == 0 {
		return StatusUnknown
	}
	worst := statuses[0]
	for _, s := range statuses[1:] {
		if s.severity() < worst.severity() {
			worst = s
		}
	}
	return worst
}

// StatusInfo is a status plus the details the instance reported with it
type StatusInfo struct {
	Status  Status         `json:"status" bson:"status"`
	Details map[string]any `json:"details" bson:"details,omitempty"`
}

// NewStatusInfo creates a StatusInfo from a raw status string
func NewStatusInfo(status string, details map[string]any) StatusInfo {
	if details == nil {
		details = map[string]any{}
	}
	return StatusInfo{Status: ParseStatus(status), Details: details}
}

func StatusInfoUnknown() StatusInfo { return NewStatusInfo(string(StatusUnknown), nil) }

func StatusInfoUp(details map[string]any) StatusInfo {
	return NewStatusInfo(string(StatusUp), details)
}

func StatusInfoDown(details map[string]any) StatusInfo {
	return NewStatusInfo(string(StatusDown), details)
}

func StatusInfoOffline(details map[string]any) StatusInfo {
	return NewStatusInfo(string(StatusOffline), details)
}

func (s StatusInfo) IsUp() bool      { return s.Status == StatusUp }
func (s StatusInfo) IsDown() bool    { return s.Status == StatusDown }
func (s StatusInfo) IsOffline() bool { return s.Status == StatusOffline }
func (s StatusInfo) IsUnknown() bool { return s.Status == StatusUnknown }

// Equal reports whether both status and details match
func (s StatusInfo) Equal(other StatusInfo) bool {
	if s.Status != other.Status {
		return false
	}
	if len(s.Details) == 0 && len(other.Details) == 0 {
		return true
	}
	return reflect.DeepEqual(s.Details, other.Details)
}
