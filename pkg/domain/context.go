package domain

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// DefaultConfidence is the confidence attached to values merged without a score.
const DefaultConfidence = 1.0

// View is the read-only face of a Context. Tool handlers and states only ever
// receive a View so they cannot mutate the conversation directly.
type View interface {
	Get(key string) (any, bool)
	GetString(key string) string
	Keys() []string
	Len() int
}

// DerivedRule declares that whenever TriggerKey is merged with TriggerValue,
// DerivedKey must also be set to DerivedValue.
type DerivedRule struct {
	TriggerKey   string `json:"trigger" yaml:"trigger" mapstructure:"trigger"`
	TriggerValue any    `json:"when" yaml:"when" mapstructure:"when"`
	DerivedKey   string `json:"derived" yaml:"derived" mapstructure:"derived"`
	DerivedValue any    `json:"value" yaml:"value" mapstructure:"value"`
}

func (r DerivedRule) matches(v any) bool {
	a, aok := v.(string)
	b, bok := r.TriggerValue.(string)
	if aok && bok {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return reflect.DeepEqual(v, r.TriggerValue)
}

// Entry is one key of a Context together with the confidence it was written with.
type Entry struct {
	Key        string  `json:"key"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Context is the ordered key/value store of a single conversation.
// Keys keep their first insertion order. A Context is owned by exactly one
// conversation and is not safe for concurrent use.
type Context struct {
	order  []string
	values map[string]any
	scores map[string]float64
	rules  []DerivedRule
}

// NewContext creates an empty context that applies the given derived-value rules on merge.
func NewContext(rules ...DerivedRule) *Context {
	return &Context{
		values: make(map[string]any),
		scores: make(map[string]float64),
		rules:  rules,
	}
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the value under key formatted as a string, or "" when absent.
func (c *Context) GetString(key string) string {
	v, ok := c.values[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Confidence returns the confidence the value under key was written with.
func (c *Context) Confidence(key string) float64 {
	return c.scores[key]
}

// Set explicitly replaces the value under key regardless of stored confidence.
func (c *Context) Set(key string, value any) {
	c.put(key, value, DefaultConfidence)
}

// Delete removes key from the context.
func (c *Context) Delete(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	delete(c.scores, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Merge applies updates at full confidence and evaluates the derived-value rules.
func (c *Context) Merge(updates map[string]any) {
	c.MergeScored(updates, nil)
}

// MergeScored applies updates, each carrying the confidence found in scores
// (DefaultConfidence when absent). A business field already holding a value
// written with higher confidence is left untouched; its key is returned in skipped.
// Values derived by the rules carry the confidence of their trigger and obey
// the same guard.
func (c *Context) MergeScored(updates map[string]any, scores map[string]float64) (skipped []string) {
	if len(updates) == 0 {
		return nil
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	applied := make(map[string]any, len(updates))
	for _, k := range keys {
		score := DefaultConfidence
		if s, ok := scores[k]; ok {
			score = s
		}
		if c.guarded(k, score) {
			skipped = append(skipped, k)
			continue
		}
		c.put(k, updates[k], score)
		applied[k] = updates[k]
	}

	for _, r := range c.rules {
		v, ok := applied[r.TriggerKey]
		if !ok || !r.matches(v) {
			continue
		}
		score := c.scores[r.TriggerKey]
		if c.guarded(r.DerivedKey, score) {
			if !slices.Contains(skipped, r.DerivedKey) {
				skipped = append(skipped, r.DerivedKey)
			}
			continue
		}
		c.put(r.DerivedKey, r.DerivedValue, score)
	}
	return skipped
}

func (c *Context) guarded(key string, score float64) bool {
	if InternalKeys[key] {
		return false
	}
	existing, ok := c.values[key]
	return ok && IsPresent(existing) && c.scores[key] > score
}

func (c *Context) put(key string, value any, score float64) {
	if _, ok := c.values[key]; !ok {
		c.order = append(c.order, key)
	}
	c.values[key] = deepCopy(value)
	c.scores[key] = score
}

// Keys returns the keys in insertion order.
func (c *Context) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of keys.
func (c *Context) Len() int {
	return len(c.order)
}

// Snapshot returns a deep copy of the values. Mutating the context afterwards
// never affects a snapshot already taken.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = deepCopy(v)
	}
	return out
}

// Entries returns the ordered content of the context, used for persistence.
func (c *Context) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, Entry{Key: k, Value: deepCopy(c.values[k]), Confidence: c.scores[k]})
	}
	return out
}

// Load replaces the content of the context with entries, preserving their order.
func (c *Context) Load(entries []Entry) {
	c.Clear()
	for _, e := range entries {
		c.put(e.Key, e.Value, e.Confidence)
	}
}

// Clone returns an independent copy sharing the same derived-value rules.
func (c *Context) Clone() *Context {
	out := NewContext(c.rules...)
	for _, k := range c.order {
		out.put(k, c.values[k], c.scores[k])
	}
	return out
}

// Clear drops every key. Derived-value rules are kept.
func (c *Context) Clear() {
	c.order = nil
	c.values = make(map[string]any)
	c.scores = make(map[string]float64)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, val := range t {
			m[k] = val
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	case []string:
		s := make([]string, len(t))
		copy(s, t)
		return s
	case []map[string]any:
		s := make([]map[string]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val).(map[string]any)
		}
		return s
	default:
		return v
	}
}

// CopyMap returns a deep copy of m.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return deepCopy(m).(map[string]any)
}

// CopyValue returns a deep copy of a context value.
func CopyValue(v any) any {
	return deepCopy(v)
}
