package term

import "sync"

// StringTable interning service: one shared string instance and a compact
// id per distinct term
type StringTable struct {
	mu      sync.RWMutex
	ids     map[string]uint32
	strings []string
}

func NewStringTable() *StringTable {
	return &StringTable{
		ids: make(map[string]uint32),
	}
}

func (st *StringTable) Size() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.strings)
}

// GetID return the id of s, allocating one when s is new
func (st *StringTable) GetID(s string) uint32 {
	st.mu.RLock()
	id, hit := st.ids[s]
	st.mu.RUnlock()
	if hit {
		return id
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if id, hit = st.ids[s]; hit {
		return id
	}
	id = uint32(len(st.strings))
	st.ids[s] = id
	st.strings = append(st.strings, s)
	return id
}

func (st *StringTable) FindID(s string) (id uint32, found bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, found = st.ids[s]
	return
}

func (st *StringTable) GetString(id uint32) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(id) >= len(st.strings) {
		return "", false
	}
	return st.strings[id], true
}

// Lookup return the canonical instance of s without allocating an id
func (st *StringTable) Lookup(s string) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, found := st.ids[s]
	if !found {
		return "", false
	}
	return st.strings[id], true
}

// Intern return the canonical instance of s
func (st *StringTable) Intern(s string) string {
	id := st.GetID(s)
	v, _ := st.GetString(id)
	return v
}
