package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultUnits is used when a Metric carries no Units.
const DefaultUnits = "Count"

// Tags maps a dimension key to its values. A nil value means the key is
// known but has no value; reporters skip it.
type Tags map[string][]string

// Metric ...
type Metric struct {
	ID        string    `json:"id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Tags      Tags      `json:"tags,omitempty"`
	Units     string    `json:"units,omitempty"`
}

// Unit returns the metric units, falling back to DefaultUnits.
func (m Metric) Unit() string {
	if m.Units == "" {
		return DefaultUnits
	}
	return m.Units
}

// Reporter is a metrics sink with a start/log/end lifecycle.
//
// Log must not block on the network and must not fail; any send error is
// deferred until End.
type Reporter interface {
	Start(ctx context.Context) error
	Log(metric Metric)
	End(ctx context.Context) error
}

// Single wraps one value as a tag value.
func Single(value string) []string {
	return []string{value}
}

// MergeTags returns a new Tags holding defaults overlaid by overrides. A key
// present in overrides always wins, even when its value is nil.
func MergeTags(defaults, overrides Tags) Tags {
	merged := make(Tags, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// UnmarshalJSON accepts each tag as a string, an array of strings or null.
func (t *Tags) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	tags := make(Tags, len(raw))
	for key, value := range raw {
		var single *string
		if err := json.Unmarshal(value, &single); err == nil {
			if single == nil {
				tags[key] = nil
			} else {
				tags[key] = Single(*single)
			}
			continue
		}

		var multi []string
		if err := json.Unmarshal(value, &multi); err != nil {
			return fmt.Errorf("tag %q: expected string or array of strings", key)
		}
		tags[key] = multi
	}

	*t = tags
	return nil
}
