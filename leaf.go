package volkv

import (
	"encoding/binary"
	"fmt"
)

// leaf is a terminal node: keys with inline values and a forward link to the
// next leaf in sort order.
type leaf[V any] struct {
	nodeBase[V]
	values []V
	next   Slot
}

func newEmptyLeaf[V any](st *store[V], slot Slot) *leaf[V] {
	l := &leaf[V]{}
	l.st = st
	l.slot = slot
	l.dirty = true
	return l
}

func (l *leaf[V]) isLeaf() bool { return true }

func (l *leaf[V]) firstLeaf() (*leaf[V], error) { return l, nil }

func (l *leaf[V]) minimum() (uint64, error) { return l.keys[0], nil }

// search scans for key without taking the leaf's lock; the caller holds it.
func (l *leaf[V]) search(key uint64) (V, bool) {
	for i := uint32(0); i < l.cnt; i++ {
		if l.keys[i] == key {
			return l.values[i], true
		}
	}
	var zero V
	return zero, false
}

func (l *leaf[V]) get(key uint64) (V, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.search(key)
	return v, ok, nil
}

func (l *leaf[V]) insert(key uint64, value V, pos uint32) {
	insertAt(l.keys[:], int(l.cnt), int(pos), key)
	l.values = append(l.values, value)
	copy(l.values[pos+1:], l.values[pos:l.cnt])
	l.values[pos] = value
	l.cnt++
	l.dirty = true
}

// put inserts under the caller's exclusive lock. A full leaf splits and
// returns the new right sibling with its first key as the promotion; if this
// leaf is the root it first moves off slot 1 so the new root can take it.
func (l *leaf[V]) put(key uint64, value V) (*created[V], error) {
	for i := uint32(0); i < l.cnt; i++ {
		if l.keys[i] == key {
			return nil, fmt.Errorf("put %d: %w", key, ErrDuplicateKey)
		}
	}

	if l.cnt == maxKeys {
		if l.slot == rootSlot {
			l.setSlot(l.st.slots.allocate())
		}
		return l.splitAndPut(key, value)
	}

	pos := l.cnt
	for i := uint32(0); i < l.cnt; i++ {
		if key < l.keys[i] {
			pos = i
			break
		}
	}
	l.insert(key, value, pos)
	return nil, nil
}

func (l *leaf[V]) splitAndPut(key uint64, value V) (*created[V], error) {
	const copyCount = maxKeys / 2
	border := l.cnt - copyCount

	nl := newEmptyLeaf(l.st, l.st.slots.allocate())
	copy(nl.keys[:copyCount], l.keys[border:])
	nl.values = append(nl.values, l.values[border:]...)
	nl.cnt = copyCount

	for i := border; i < l.cnt; i++ {
		l.keys[i] = 0
	}
	l.values = l.values[:border]
	l.cnt = border
	l.dirty = true

	nl.next = l.next
	l.next = nl.slot

	firstNewKey := nl.keys[0]
	var err error
	if key < firstNewKey {
		_, err = l.put(key, value)
	} else {
		_, err = nl.put(key, value)
	}
	if err != nil {
		return nil, err
	}

	l.st.cache.insert(nl.slot, nl)
	return &created[V]{n: nl, key: firstNewKey}, nil
}

func (l *leaf[V]) removeEntry(pos uint32) {
	removeAt(l.keys[:], int(l.cnt), int(pos))
	copy(l.values[pos:], l.values[pos+1:])
	l.values = l.values[:l.cnt-1]
	l.cnt--
	l.dirty = true
}

// remove deletes key under exclusive locks on this leaf and its retained
// ancestors, then restores minimum occupancy by borrowing from or merging
// with a sibling. Siblings are locked exclusively for the duration of the
// exchange; readers already past the parent may still be holding them.
func (l *leaf[V]) remove(key uint64, left, right *sibling) (deleteResult[V], error) {
	var res deleteResult[V]

	pos := uint32(maxKeys)
	for i := uint32(0); i < l.cnt; i++ {
		if l.keys[i] == key {
			pos = i
			break
		}
	}
	if pos == maxKeys {
		return res, fmt.Errorf("delete %d: %w", key, ErrKeyNotFound)
	}

	l.removeEntry(pos)

	if l.slot == rootSlot || l.cnt >= minKeys {
		return deleteResult[V]{kind: deleted}, nil
	}

	// Borrow checks run independently for both siblings before any merge:
	// a left sibling at minimum occupancy must not shadow a right one that
	// can still lend.
	var ls, rs *leaf[V]

	if left != nil {
		var err error
		if ls, err = l.st.loadLeaf(left.slot); err != nil {
			return res, err
		}
		ls.mu.Lock()
		if ls.cnt > minKeys {
			k := ls.lastKey()
			v := ls.values[ls.cnt-1]
			ls.removeEntry(ls.cnt - 1)
			ls.mu.Unlock()
			l.insert(k, v, 0)
			return deleteResult[V]{kind: borrowedLeft, key: l.keys[0]}, nil
		}
		ls.mu.Unlock()
	}

	if right != nil {
		var err error
		if rs, err = l.st.loadLeaf(right.slot); err != nil {
			return res, err
		}
		rs.mu.Lock()
		if rs.cnt > minKeys {
			k := rs.keys[0]
			v := rs.values[0]
			rs.removeEntry(0)
			newFirst := rs.keys[0]
			rs.mu.Unlock()
			l.insert(k, v, l.cnt)
			return deleteResult[V]{kind: borrowedRight, key: newFirst}, nil
		}
		rs.mu.Unlock()
	}

	if ls != nil {
		// merge: adopt the left sibling's entries and inherit its slot, so
		// the leaf before it keeps a valid next pointer.
		ls.mu.Lock()
		vacated := l.slot
		merged := make([]V, 0, ls.cnt+l.cnt)
		merged = append(merged, ls.values...)
		merged = append(merged, l.values...)
		var keys [maxKeys]uint64
		copy(keys[:], ls.keys[:ls.cnt])
		copy(keys[ls.cnt:], l.keys[:l.cnt])
		l.keys = keys
		l.values = merged
		l.cnt += ls.cnt
		l.setSlot(ls.slot)
		ls.markNotToBeFlushed()
		ls.mu.Unlock()

		l.st.cache.erase(vacated)
		if err := l.st.slots.release(vacated); err != nil {
			return res, err
		}
		return deleteResult[V]{kind: mergedLeft, key: l.keys[0]}, nil
	}

	if rs != nil {
		rs.mu.Lock()
		copy(l.keys[l.cnt:], rs.keys[:rs.cnt])
		l.values = append(l.values, rs.values...)
		l.cnt += rs.cnt
		l.next = rs.next
		l.dirty = true
		rs.markNotToBeFlushed()
		rs.mu.Unlock()

		l.st.cache.erase(rs.slot)
		if err := l.st.slots.release(rs.slot); err != nil {
			return res, err
		}
		return deleteResult[V]{kind: mergedRight, key: l.keys[0]}, nil
	}

	return res, fmt.Errorf("leaf %d under-occupied with no siblings: %w", l.slot, ErrInvariant)
}

func (l *leaf[V]) load(data []byte) error {
	if len(data) < 1+4+maxKeys*8 || data[0] != leafTag {
		return fmt.Errorf("leaf %d: %w", l.slot, ErrCorruption)
	}
	b := data[1:]
	l.cnt = binary.LittleEndian.Uint32(b)
	b = b[4:]
	if l.cnt > maxKeys {
		return fmt.Errorf("leaf %d: key count %d: %w", l.slot, l.cnt, ErrCorruption)
	}
	for i := 0; i < maxKeys; i++ {
		l.keys[i] = binary.LittleEndian.Uint64(b)
		b = b[8:]
	}
	l.values = make([]V, 0, l.cnt)
	for i := uint32(0); i < l.cnt; i++ {
		v, rest, err := l.st.codec.ReadValue(b)
		if err != nil {
			return fmt.Errorf("leaf %d value %d: %w", l.slot, i, err)
		}
		l.values = append(l.values, v)
		b = rest
	}
	if len(b) != 8 {
		return fmt.Errorf("leaf %d: trailing layout: %w", l.slot, ErrCorruption)
	}
	l.next = Slot(binary.LittleEndian.Uint64(b))
	l.dirty = false
	return nil
}

// flush writes the full file image, truncating any previous content. It is a
// no-op on clean or tombstoned leaves; callers provide the synchronization.
func (l *leaf[V]) flush() error {
	if !l.dirty || l.tombstone {
		return nil
	}
	buf := make([]byte, 0, 1+4+maxKeys*8+8)
	buf = append(buf, leafTag)
	buf = binary.LittleEndian.AppendUint32(buf, l.cnt)
	for i := 0; i < maxKeys; i++ {
		buf = binary.LittleEndian.AppendUint64(buf, l.keys[i])
	}
	for i := uint32(0); i < l.cnt; i++ {
		buf = l.st.codec.AppendValue(buf, l.values[i])
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(l.next))

	if err := l.st.writeFile(l.slot, buf); err != nil {
		return err
	}
	l.dirty = false
	return nil
}
