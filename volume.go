// Package volkv is an embedded, disk-backed, ordered key-value store. Keys
// are unsigned 64-bit integers; values are a fixed per-volume element type. A
// volume owns a directory of node files forming a B+ tree, fronted by a
// bounded write-back page cache, and supports concurrent readers alongside a
// writer via hand-over-hand lock coupling.
package volkv

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// Volume owns one directory and exposes the public API. It holds the root
// handle, the page cache, the slot allocator, the volume lock, and the
// optional expiry worker. A Volume must not be copied.
type Volume[V any] struct {
	dir string
	st  *store[V]
	log Logger

	// mu is the volume lock: lookups share it, insert/delete take it in
	// upgrade mode (serializing writers), enumerators hold upgrade mode for
	// their lifetime so writers stay out while lookups proceed.
	mu upgradeMutex

	// root is swapped only by the writer that holds the old root's exclusive
	// lock; readers re-check it after locking (see lockedRootShared).
	root atomic.Pointer[rootBox[V]]

	closed atomic.Bool

	expiryMu sync.Mutex
	expiry   *expiryWorker[V]
}

type rootBox[V any] struct{ n node[V] }

// Open creates or loads the volume at dir. An absent directory is created.
// When dir holds no batch_1.dat, an empty root leaf is written at slot 1;
// otherwise the existing root is loaded.
func Open[V any](dir string, codec Codec[V], opts ...Option) (*Volume[V], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open volume: %w", err)
	}

	st := &store[V]{
		dir:   dir,
		slots: newSlotAllocator(dir),
		codec: codec,
	}
	st.cache = newPageCache(o.cacheCapacity, func(n node[V]) error {
		return n.flush()
	}, o.logger)

	v := &Volume[V]{dir: dir, st: st, log: o.logger}

	if _, err := os.Stat(batchPath(dir, rootSlot)); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open volume: %w", err)
		}
		root := newEmptyLeaf(st, rootSlot)
		st.cache.insert(rootSlot, root)
		if err := root.flush(); err != nil {
			return nil, err
		}
		v.setRoot(root)
	} else {
		root, err := st.load(rootSlot)
		if err != nil {
			return nil, err
		}
		v.setRoot(root)
	}

	if o.autoDelete {
		if err := v.StartAutoDelete(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Typed constructors for the closed set of element types.

func OpenU32(dir string, opts ...Option) (*Volume[uint32], error) {
	return Open(dir, U32, opts...)
}

func OpenU64(dir string, opts ...Option) (*Volume[uint64], error) {
	return Open(dir, U64, opts...)
}

func OpenF32(dir string, opts ...Option) (*Volume[float32], error) {
	return Open(dir, F32, opts...)
}

func OpenF64(dir string, opts ...Option) (*Volume[float64], error) {
	return Open(dir, F64, opts...)
}

func OpenString(dir string, opts ...Option) (*Volume[string], error) {
	return Open(dir, String, opts...)
}

func OpenBytes(dir string, opts ...Option) (*Volume[[]byte], error) {
	return Open(dir, Bytes, opts...)
}

func (v *Volume[V]) readRoot() node[V] { return v.root.Load().n }

func (v *Volume[V]) setRoot(n node[V]) { v.root.Store(&rootBox[V]{n: n}) }

// lockedRootShared returns the current root with its shared lock held. A
// root swap can only happen while the swapping writer holds the old root
// exclusively, so holding the shared lock with the pointer unchanged pins it.
func (v *Volume[V]) lockedRootShared() node[V] {
	for {
		r := v.readRoot()
		r.lockRef().RLock()
		if v.readRoot() == r {
			return r
		}
		r.lockRef().RUnlock()
	}
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (v *Volume[V]) Get(key uint64) (V, error) {
	var zero V
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed.Load() {
		return zero, ErrVolumeClosed
	}

	val, ok, err := v.st.descend(v.lockedRootShared(), key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrKeyNotFound
	}
	return val, nil
}

// lockStack tracks the upgrade locks a write descent retains.
type lockStack[V any] struct {
	nodes    []node[V]
	upgraded bool
}

func (s *lockStack[V]) push(n node[V]) { s.nodes = append(s.nodes, n) }

// dropAll releases every retained lock; used when the newly locked child is
// safe and its ancestors can no longer be structurally affected.
func (s *lockStack[V]) dropAll() {
	for _, n := range s.nodes {
		n.lockRef().UpgradableUnlock()
	}
	s.nodes = s.nodes[:0]
}

// upgradeAll turns every retained lock exclusive, top-down. Writers already
// serialize on the upgrade tokens, so the pass cannot deadlock.
func (s *lockStack[V]) upgradeAll() {
	for _, n := range s.nodes {
		n.lockRef().Upgrade()
	}
	s.upgraded = true
}

func (s *lockStack[V]) release() {
	for i := len(s.nodes) - 1; i >= 0; i-- {
		if s.upgraded {
			s.nodes[i].lockRef().UpgradedUnlock()
		} else {
			s.nodes[i].lockRef().UpgradableUnlock()
		}
	}
	s.nodes = nil
}

// Put inserts key with value; ErrDuplicateKey if present.
func (v *Volume[V]) Put(key uint64, value V) error {
	v.mu.UpgradableLock()
	defer v.mu.UpgradableUnlock()
	if v.closed.Load() {
		return ErrVolumeClosed
	}
	return v.put(key, value)
}

// PutTTL is Put with a time-to-live. The deadline is recorded only while the
// expiry worker is running.
func (v *Volume[V]) PutTTL(key uint64, value V, ttlSeconds uint32) error {
	v.mu.UpgradableLock()
	if v.closed.Load() {
		v.mu.UpgradableUnlock()
		return ErrVolumeClosed
	}
	err := v.put(key, value)
	v.mu.UpgradableUnlock()
	if err != nil {
		return err
	}

	v.expiryMu.Lock()
	if v.expiry != nil {
		v.expiry.put(key, ttlSeconds)
	}
	v.expiryMu.Unlock()
	return nil
}

func (v *Volume[V]) put(key uint64, value V) error {
	stack := &lockStack[V]{}
	defer stack.release()

	cur := v.readRoot()
	cur.lockRef().UpgradableLock()
	stack.push(cur)

	for !cur.isLeaf() {
		b := cur.(*branch[V])
		child, err := v.st.load(b.children[b.locate(key)])
		if err != nil {
			return err
		}
		child.lockRef().UpgradableLock()
		if child.keyCount() < maxKeys {
			stack.dropAll()
		}
		stack.push(child)
		cur = child
	}

	stack.upgradeAll()

	lf := cur.(*leaf[V])
	promo, err := lf.put(key, value)
	if err != nil {
		return err
	}
	for i := len(stack.nodes) - 2; i >= 0 && promo != nil; i-- {
		promo, err = stack.nodes[i].(*branch[V]).putPromotion(promo)
		if err != nil {
			return err
		}
	}
	if promo == nil {
		return nil
	}

	// The root split. It has already moved itself to a fresh slot; build the
	// new root over it and the promoted sibling, and write it out so slot 1
	// is never stale on disk.
	oldRoot := stack.nodes[0]
	nr := &branch[V]{}
	nr.st = v.st
	nr.slot = rootSlot
	nr.cnt = 1
	nr.keys[0] = promo.key
	nr.children[0] = oldRoot.slotID()
	nr.children[1] = promo.n.slotID()
	nr.dirty = true

	v.st.cache.insert(oldRoot.slotID(), oldRoot)
	v.st.cache.insert(rootSlot, nr)
	v.setRoot(nr)

	// Children reach disk before the root that references them.
	if err := oldRoot.flush(); err != nil {
		return err
	}
	if err := promo.n.flush(); err != nil {
		return err
	}
	return nr.flush()
}

// pathStep records, for one retained node of a delete descent, its position
// and neighbors within its parent.
type pathStep[V any] struct {
	n           node[V]
	pos         uint32
	left, right *sibling
}

// Delete removes key; ErrKeyNotFound if absent. Any pending expiry deadline
// for the key is dropped with it.
func (v *Volume[V]) Delete(key uint64) error {
	v.mu.UpgradableLock()
	if v.closed.Load() {
		v.mu.UpgradableUnlock()
		return ErrVolumeClosed
	}
	err := v.delete(key)
	v.mu.UpgradableUnlock()
	if err != nil {
		return err
	}

	v.expiryMu.Lock()
	if v.expiry != nil {
		v.expiry.remove(key)
	}
	v.expiryMu.Unlock()
	return nil
}

func (v *Volume[V]) delete(key uint64) error {
	stack := &lockStack[V]{}
	defer stack.release()
	var steps []pathStep[V]

	cur := v.readRoot()
	cur.lockRef().UpgradableLock()
	stack.push(cur)
	steps = append(steps, pathStep[V]{n: cur})

	for !cur.isLeaf() {
		b := cur.(*branch[V])
		pos := b.locate(key)
		left, right := b.childSiblings(pos)
		child, err := v.st.load(b.children[pos])
		if err != nil {
			return err
		}
		child.lockRef().UpgradableLock()
		if child.keyCount() > minKeys {
			stack.dropAll()
			steps = steps[:0]
		}
		stack.push(child)
		steps = append(steps, pathStep[V]{n: child, pos: pos, left: left, right: right})
		cur = child
	}

	stack.upgradeAll()

	last := steps[len(steps)-1]
	lf := last.n.(*leaf[V])
	res, err := lf.remove(key, last.left, last.right)
	if err != nil {
		return err
	}

	for i := len(steps) - 2; i >= 0; i-- {
		parent := steps[i].n.(*branch[V])
		res, err = parent.applyChildDelete(key, res, steps[i+1].pos, steps[i+1].n, steps[i].left, steps[i].right)
		if err != nil {
			return err
		}
	}

	if res.newRoot != nil {
		v.st.cache.insert(rootSlot, res.newRoot)
		v.setRoot(res.newRoot)
	}
	return nil
}

// Subtree returns a read-only handle on the subtree rooted at slot, for
// aggregation overlays. Slot 1 returns the volume root.
func (v *Volume[V]) Subtree(slot Slot) (*Subtree[V], error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed.Load() {
		return nil, ErrVolumeClosed
	}
	if slot == rootSlot {
		return &Subtree[V]{v: v, n: v.readRoot()}, nil
	}
	n, err := v.st.load(slot)
	if err != nil {
		return nil, err
	}
	return &Subtree[V]{v: v, n: n}, nil
}

// Subtree is a read-only view over one node and everything below it.
type Subtree[V any] struct {
	v *Volume[V]
	n node[V]
}

// Get looks key up within the subtree only.
func (s *Subtree[V]) Get(key uint64) (V, error) {
	var zero V
	s.v.mu.RLock()
	defer s.v.mu.RUnlock()
	if s.v.closed.Load() {
		return zero, ErrVolumeClosed
	}
	val, ok, err := s.v.st.lookupFrom(s.n, key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrKeyNotFound
	}
	return val, nil
}

// StartAutoDelete starts the background expiry worker, loading any persisted
// deadlines from the volume directory.
func (v *Volume[V]) StartAutoDelete() error {
	if v.closed.Load() {
		return ErrVolumeClosed
	}
	v.expiryMu.Lock()
	defer v.expiryMu.Unlock()
	if v.expiry != nil {
		return ErrAlreadyStarted
	}
	w, err := newExpiryWorker(v)
	if err != nil {
		return err
	}
	w.start()
	v.expiry = w
	return nil
}

// StopAndFlush stops the expiry worker, persists its deadlines, flushes the
// root, and clears the cache, write-backing every dirty node. The volume is
// closed afterwards; calling it again is a no-op.
func (v *Volume[V]) StopAndFlush() error {
	// The worker issues deletes that take the volume lock, so it is stopped
	// before the lock is held.
	v.expiryMu.Lock()
	w := v.expiry
	v.expiry = nil
	v.expiryMu.Unlock()

	var firstErr error
	if w != nil {
		if err := w.stop(); err != nil {
			firstErr = err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed.Load() {
		return firstErr
	}
	v.closed.Store(true)

	if err := v.readRoot().flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := v.st.cache.clear(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Close is a best-effort StopAndFlush that swallows errors, for defer chains.
func (v *Volume[V]) Close() error {
	if err := v.StopAndFlush(); err != nil {
		v.log.Warn("close: flush failed", "dir", v.dir, "error", err)
	}
	return nil
}
