package storage

import (
	"errors"
	"sort"
)

// Overlay buffers writes on top of a Database. Reads observe the buffered
// writes first. Nothing reaches the parent until Commit; Discard drops every
// pending change.
type Overlay struct {
	parent  Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay opens an empty overlay on top of parent.
func NewOverlay(parent Database) *Overlay {
	return &Overlay{
		parent:  parent,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = cloneBytes(value)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		return nil, ErrNotFound
	}
	if value, ok := o.writes[k]; ok {
		return cloneBytes(value), nil
	}
	return o.parent.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// Pending reports the number of buffered operations.
func (o *Overlay) Pending() int {
	return len(o.writes) + len(o.deletes)
}

// Commit flushes the buffered operations to the parent in one batch and
// resets the overlay. Keys are written in sorted order so the batch is
// deterministic.
func (o *Overlay) Commit() error {
	if o.parent == nil {
		return errors.New("storage: overlay has no parent")
	}
	batch := new(Batch)
	for _, k := range sortedKeys(o.deletes) {
		batch.Delete([]byte(k))
	}
	writeKeys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		writeKeys = append(writeKeys, k)
	}
	sort.Strings(writeKeys)
	for _, k := range writeKeys {
		batch.Put([]byte(k), o.writes[k])
	}
	if err := o.parent.Write(batch); err != nil {
		return err
	}
	o.Discard()
	return nil
}

// Discard drops every buffered change.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
