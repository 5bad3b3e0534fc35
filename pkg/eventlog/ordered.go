package eventlog

// orderedMap keeps values in first-insertion order. Replacing a key keeps
// its original position.
type orderedMap[V any] struct {
	keys  []string
	index map[string]int
	vals  []V
}

func (m *orderedMap[V]) put(key string, v V) {
	if i, ok := m.index[key]; ok {
		m.vals[i] = v
		return
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	m.index[key] = len(m.vals)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, v)
}

func (m *orderedMap[V]) get(key string) (V, bool) {
	if i, ok := m.index[key]; ok {
		return m.vals[i], true
	}
	var zero V
	return zero, false
}

func (m *orderedMap[V]) has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// update applies fn to the stored value in place.
func (m *orderedMap[V]) update(key string, fn func(*V)) bool {
	i, ok := m.index[key]
	if !ok {
		return false
	}
	fn(&m.vals[i])
	return true
}

func (m *orderedMap[V]) len() int { return len(m.vals) }

func (m *orderedMap[V]) orderedKeys() []string {
	return append([]string(nil), m.keys...)
}

func (m *orderedMap[V]) values() []V {
	return append([]V(nil), m.vals...)
}
