package eventlog

import (
	"encoding/json"
	"fmt"
)

// Property is one field-level observation. A nil NewValue marks a snapshot
// that renders as a single column.
type Property struct {
	Key      string `json:"key" validate:"required"`
	Source   string `json:"source,omitempty"`
	OldValue Value  `json:"old_value"`
	NewValue *Value `json:"new_value,omitempty"`
}

func (p Property) IsSnapshot() bool { return p.NewValue == nil }

// SnapshotProperty records a value without claiming a change.
func SnapshotProperty(key, source string, v Value) Property {
	return Property{Key: key, Source: source, OldValue: v}
}

// ChangeProperty records a before/after pair.
func ChangeProperty(key, source string, oldValue, newValue Value) Property {
	return Property{Key: key, Source: source, OldValue: oldValue, NewValue: &newValue}
}

func (p Property) clone() Property {
	if p.NewValue != nil {
		nv := *p.NewValue
		p.NewValue = &nv
	}
	return p
}

// PropertyChangeSet maps property keys to properties in insertion order.
// The nil set is empty and read-only.
type PropertyChangeSet struct {
	m orderedMap[Property]
}

func NewPropertyChangeSet(props ...Property) *PropertyChangeSet {
	s := &PropertyChangeSet{}
	for _, p := range props {
		s.Put(p)
	}
	return s
}

// Upsert replaces source, old and new for an existing key in place, or
// appends a new property. Equal old and new values are kept as given.
func (s *PropertyChangeSet) Upsert(key, source string, oldValue Value, newValue *Value) {
	p := Property{Key: key, Source: source, OldValue: oldValue}
	if newValue != nil {
		nv := *newValue
		p.NewValue = &nv
	}
	s.m.put(key, p)
}

// Put upserts p.
func (s *PropertyChangeSet) Put(p Property) {
	s.m.put(p.Key, p.clone())
}

func (s *PropertyChangeSet) Get(key string) (Property, bool) {
	if s == nil {
		return Property{}, false
	}
	p, ok := s.m.get(key)
	return p.clone(), ok
}

func (s *PropertyChangeSet) Has(key string) bool {
	return s != nil && s.m.has(key)
}

// Merge folds from into s. For keys present in both, s keeps its old value
// and takes from's new value when from has one.
func (s *PropertyChangeSet) Merge(from *PropertyChangeSet) {
	if from == nil {
		return
	}
	for _, p := range from.m.vals {
		incoming := p.clone()
		merged := s.m.update(p.Key, func(cur *Property) {
			if incoming.NewValue != nil {
				cur.NewValue = incoming.NewValue
			}
			if cur.Source == "" {
				cur.Source = incoming.Source
			}
		})
		if !merged {
			s.m.put(p.Key, incoming)
		}
	}
}

// SetOldValue replaces the old value of an existing property.
func (s *PropertyChangeSet) SetOldValue(key string, v Value) error {
	if s == nil || !s.m.update(key, func(p *Property) { p.OldValue = v }) {
		return fmt.Errorf("%w: %q", ErrMissingPropertyKey, key)
	}
	return nil
}

// SetNewValue replaces the new value of an existing property.
func (s *PropertyChangeSet) SetNewValue(key string, v Value) error {
	if s == nil || !s.m.update(key, func(p *Property) { p.NewValue = &v }) {
		return fmt.Errorf("%w: %q", ErrMissingPropertyKey, key)
	}
	return nil
}

func (s *PropertyChangeSet) Keys() []string {
	if s == nil {
		return nil
	}
	return s.m.orderedKeys()
}

// All returns copies of the properties in insertion order.
func (s *PropertyChangeSet) All() []Property {
	if s == nil {
		return nil
	}
	out := make([]Property, 0, s.m.len())
	for _, p := range s.m.vals {
		out = append(out, p.clone())
	}
	return out
}

func (s *PropertyChangeSet) Len() int {
	if s == nil {
		return 0
	}
	return s.m.len()
}

func (s *PropertyChangeSet) Clone() *PropertyChangeSet {
	if s == nil {
		return nil
	}
	return NewPropertyChangeSet(s.All()...)
}

func (s *PropertyChangeSet) MarshalJSON() ([]byte, error) {
	props := s.All()
	if props == nil {
		props = []Property{}
	}
	return json.Marshal(props)
}

func (s *PropertyChangeSet) UnmarshalJSON(data []byte) error {
	var props []Property
	if err := json.Unmarshal(data, &props); err != nil {
		return err
	}
	*s = PropertyChangeSet{}
	for _, p := range props {
		s.Put(p)
	}
	return nil
}

// Eventmeta is free-form metadata that is not an entity field change.
type Eventmeta struct {
	Key   string `json:"key" validate:"required"`
	Value Value  `json:"value"`
}

// MetaSet maps meta keys to values in insertion order. The nil set is
// empty and read-only.
type MetaSet struct {
	m orderedMap[Eventmeta]
}

func NewMetaSet(metas ...Eventmeta) *MetaSet {
	s := &MetaSet{}
	for _, meta := range metas {
		s.Set(meta.Key, meta.Value)
	}
	return s
}

// Set upserts a meta, keeping the position of an existing key.
func (s *MetaSet) Set(key string, v Value) {
	s.m.put(key, Eventmeta{Key: key, Value: v})
}

func (s *MetaSet) Get(key string) (Value, bool) {
	if s == nil {
		return Null(), false
	}
	meta, ok := s.m.get(key)
	return meta.Value, ok
}

func (s *MetaSet) Has(key string) bool {
	return s != nil && s.m.has(key)
}

func (s *MetaSet) Keys() []string {
	if s == nil {
		return nil
	}
	return s.m.orderedKeys()
}

func (s *MetaSet) All() []Eventmeta {
	if s == nil {
		return nil
	}
	return s.m.values()
}

func (s *MetaSet) Len() int {
	if s == nil {
		return 0
	}
	return s.m.len()
}

func (s *MetaSet) Clone() *MetaSet {
	if s == nil {
		return nil
	}
	return NewMetaSet(s.All()...)
}

func (s *MetaSet) MarshalJSON() ([]byte, error) {
	metas := s.All()
	if metas == nil {
		metas = []Eventmeta{}
	}
	return json.Marshal(metas)
}

func (s *MetaSet) UnmarshalJSON(data []byte) error {
	var metas []Eventmeta
	if err := json.Unmarshal(data, &metas); err != nil {
		return err
	}
	*s = MetaSet{}
	for _, meta := range metas {
		s.Set(meta.Key, meta.Value)
	}
	return nil
}
