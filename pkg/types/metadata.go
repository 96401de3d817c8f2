package types

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Metadata is an insertion-ordered string mapping attached to each chunk.
// Ordering keeps JSON output and stored rows stable across runs.
type Metadata struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewMetadata returns an empty mapping.
func NewMetadata() *Metadata {
	return &Metadata{m: orderedmap.New[string, string]()}
}

// Set stores value under key, keeping the original position of an existing key.
func (md *Metadata) Set(key, value string) *Metadata {
	md.m.Set(key, value)
	return md
}

// Get returns the value for key. A nil mapping has no keys.
func (md *Metadata) Get(key string) (string, bool) {
	if md == nil || md.m == nil {
		return "", false
	}
	return md.m.Get(key)
}

// Value returns the value for key or the empty string.
func (md *Metadata) Value(key string) string {
	v, _ := md.Get(key)
	return v
}

// Len returns the number of keys.
func (md *Metadata) Len() int {
	if md == nil || md.m == nil {
		return 0
	}
	return md.m.Len()
}

// Keys returns the keys in insertion order.
func (md *Metadata) Keys() []string {
	keys := make([]string, 0, md.Len())
	if md.Len() == 0 {
		return keys
	}
	for pair := md.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Clone returns an independent copy.
func (md *Metadata) Clone() *Metadata {
	out := NewMetadata()
	if md.Len() == 0 {
		return out
	}
	for pair := md.m.Oldest(); pair != nil; pair = pair.Next() {
		out.m.Set(pair.Key, pair.Value)
	}
	return out
}

// Map returns a plain map copy, for callers that do not care about order.
func (md *Metadata) Map() map[string]string {
	out := make(map[string]string, md.Len())
	if md.Len() == 0 {
		return out
	}
	for pair := md.m.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// MarshalJSON encodes the mapping as a JSON object in insertion order.
func (md *Metadata) MarshalJSON() ([]byte, error) {
	if md == nil || md.m == nil {
		return []byte("{}"), nil
	}
	return md.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (md *Metadata) UnmarshalJSON(data []byte) error {
	if md.m == nil {
		md.m = orderedmap.New[string, string]()
	}
	return md.m.UnmarshalJSON(data)
}
