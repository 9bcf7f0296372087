package domain

import (
	"context"
	"encoding/json"
)

// Store is the remote hierarchical document store. Paths are slash-separated
// ("events/abc"); values are JSON documents stored at leaf paths.
type Store interface {
	// Get reads the subtree at path once.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set overwrites the subtree at path with value.
	Set(ctx context.Context, path string, value any) error
	// Remove deletes the subtree at path.
	Remove(ctx context.Context, path string) error
	// Watch delivers the subtree at path immediately and after every change
	// under it until the subscription is cancelled. onCancel is called if the
	// store gives up on the watch.
	Watch(path string, q Query, onChange func(Snapshot), onCancel func(error)) (Subscription, error)
	Close() error
}

// Query shapes the children of a watched snapshot.
type Query struct {
	// OrderByChild orders children ascending by a numeric field of their value. Ties are ordered by key.
	OrderByChild string
}

// Subscription is a live Watch registration.
type Subscription interface {
	Cancel()
}

// Snapshot is an immutable view of one node of the tree.
type Snapshot struct {
	Key      string
	Value    json.RawMessage
	Children []Snapshot
}

// Exists reports whether the node holds a value or has children.
func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 || len(s.Children) > 0
}

// ChildrenCount returns the number of direct children.
func (s Snapshot) ChildrenCount() int {
	return len(s.Children)
}

// Child returns the direct child with the given key.
func (s Snapshot) Child(key string) (Snapshot, bool) {
	for _, c := range s.Children {
		if c.Key == key {
			return c, true
		}
	}
	return Snapshot{}, false
}

// Decode unmarshals the node value into v.
func (s Snapshot) Decode(v any) error {
	if len(s.Value) == 0 {
		return ErrNotFound
	}
	return json.Unmarshal(s.Value, v)
}
