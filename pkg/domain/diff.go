package domain

import (
	"reflect"
)

// Delta calculates the context keys that changed between two snapshots.
// Added and modified keys carry their new value; deleted keys are present with a nil value.
// If old is nil, every key of new is part of the delta.
func Delta(old, new map[string]any) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new {
			delta[k] = v
		}
		return nilIfEmpty(delta)
	}

	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	return nilIfEmpty(delta)
}

func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}
