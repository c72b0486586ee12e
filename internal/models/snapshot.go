package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SnapshotEntry pairs a location name with its reading.
type SnapshotEntry struct {
	Name    string
	Reading LocationReading
}

// Snapshot maps location names to readings and keeps insertion order.
// The zero value is an empty snapshot ready for use.
type Snapshot struct {
	entries []SnapshotEntry
	index   map[string]int
}

// Set adds or replaces the reading for name. A replaced entry keeps its original position.
func (s *Snapshot) Set(name string, r LocationReading) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[name]; ok {
		s.entries[i].Reading = r
		return
	}
	s.index[name] = len(s.entries)
	s.entries = append(s.entries, SnapshotEntry{Name: name, Reading: r})
}

// Get returns the reading for name.
func (s Snapshot) Get(name string) (LocationReading, bool) {
	i, ok := s.index[name]
	if !ok {
		return LocationReading{}, false
	}
	return s.entries[i].Reading, true
}

// Len returns the number of locations.
func (s Snapshot) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in insertion order.
func (s Snapshot) Entries() []SnapshotEntry {
	out := make([]SnapshotEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// MarshalJSON writes the snapshot as a JSON object with keys in insertion order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Reading)
		if err != nil {
			return nil, fmt.Errorf("location %q: %w", e.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order. Any malformed entry
// fails the whole snapshot.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("snapshot: expected object, got %v", tok)
	}
	var out Snapshot
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("snapshot: expected location name, got %v", tok)
		}
		var r LocationReading
		if err := dec.Decode(&r); err != nil {
			return fmt.Errorf("snapshot: location %q: %w", name, err)
		}
		out.Set(name, r)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
