package volkv

import (
	"errors"
	"fmt"
)

// StorageNode composes read-only views of several volumes into an n-ary
// overlay tree. Each node carries any number of mounted subtrees; Get fans
// out across children and mounts and collects every match. Within one node a
// later mount shadows earlier ones. StorageNode is not synchronized; callers
// that share one across goroutines coordinate externally.
type StorageNode[V any] struct {
	mounts   []*Subtree[V]
	children []*StorageNode[V]
}

func NewStorageNode[V any]() *StorageNode[V] {
	return &StorageNode[V]{}
}

// Mount attaches the subtree of vol rooted at slot (slot 1 for the whole
// volume) to this node.
func (s *StorageNode[V]) Mount(vol *Volume[V], slot Slot) error {
	sub, err := vol.Subtree(slot)
	if err != nil {
		return err
	}
	s.mounts = append(s.mounts, sub)
	return nil
}

// CreateChild appends and returns a new, empty child node.
func (s *StorageNode[V]) CreateChild() *StorageNode[V] {
	child := NewStorageNode[V]()
	s.children = append(s.children, child)
	return child
}

func (s *StorageNode[V]) Children() []*StorageNode[V] {
	return s.children
}

// EraseChild removes the child at index i and the overlay below it.
func (s *StorageNode[V]) EraseChild(i int) error {
	if i < 0 || i >= len(s.children) {
		return fmt.Errorf("erase child %d of %d: index out of range", i, len(s.children))
	}
	s.children = append(s.children[:i], s.children[i+1:]...)
	return nil
}

// Get collects every value stored under key across the overlay: children
// first, depth-first, then this node's own winning mount.
func (s *StorageNode[V]) Get(key uint64) ([]V, error) {
	var values []V

	var own *V
	for _, sub := range s.mounts {
		v, err := sub.Get(key)
		if err == nil {
			val := v
			own = &val
			continue
		}
		if !errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
	}

	for _, child := range s.children {
		vs, err := child.Get(key)
		if err != nil {
			return nil, err
		}
		values = append(values, vs...)
	}

	if own != nil {
		values = append(values, *own)
	}
	return values, nil
}
