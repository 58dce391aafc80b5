package p2p

import (
	"sort"
	"sync"
)

// MutexMap is a map keyed by hop address, safe for concurrent services of one process.
type MutexMap[V any] struct {
	data map[int]V
	lock sync.RWMutex
}

func NewMutexMap[V any]() *MutexMap[V] {
	return &MutexMap[V]{data: make(map[int]V)}
}

func (m *MutexMap[V]) getValue(addr int) (V, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	value, found := m.data[addr]
	return value, found
}

// setValue returns false and keeps the old value when addr is taken.
func (m *MutexMap[V]) setValue(addr int, value V) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, taken := m.data[addr]; taken {
		return false
	}
	m.data[addr] = value
	return true
}

func (m *MutexMap[V]) deleteValue(addr int) (V, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	value, found := m.data[addr]
	delete(m.data, addr)
	return value, found
}

func (m *MutexMap[V]) getSize() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data)
}

// addresses returns the occupied addresses in ascending order.
func (m *MutexMap[V]) addresses() []int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := make([]int, 0, len(m.data))
	for addr := range m.data {
		out = append(out, addr)
	}
	sort.Ints(out)
	return out
}
