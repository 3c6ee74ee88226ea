package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Tags are free-form key/value labels attached to an instance.
// They serialize as a flat JSON object.
type Tags map[string]string

// EmptyTags returns an empty, non-nil Tags
func EmptyTags() Tags {
	return Tags{}
}

// TagsFrom converts arbitrary values to tags. Nil values are skipped,
// everything else is rendered with fmt.
func TagsFrom(values map[string]any) Tags {
	tags := make(Tags, len(values))
	for k, v := range values {
		if k == "" || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			tags[k] = val
		default:
			tags[k] = fmt.Sprint(val)
		}
	}
	return tags
}

// TagsFromPrefixed extracts entries whose key starts with "<prefix>." and
// strips the prefix, e.g. "tags.env" -> "env".
func TagsFromPrefixed(values map[string]string, prefix string) Tags {
	tags := make(Tags)
	p := prefix + "."
	for k, v := range values {
		if name, ok := strings.CutPrefix(k, p); ok && name != "" {
			tags[name] = v
		}
	}
	return tags
}

// Append returns a new Tags with other merged over t
func (t Tags) Append(other Tags) Tags {
	merged := make(Tags, len(t)+len(other))
	maps.Copy(merged, t)
	maps.Copy(merged, other)
	return merged
}

// MarshalJSON renders nil tags as an empty object
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(t))
}

// UnmarshalJSON accepts a flat object; non-string scalars are stringified
func (t *Tags) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tags must be a flat JSON object: %w", err)
	}
	*t = TagsFrom(raw)
	return nil
}
