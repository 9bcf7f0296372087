// Package store holds the pieces shared by every domain.Store backend:
// path handling, snapshot assembly, child ordering, push keys and the watch hub.
package store

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"copenhagenbuzz/internal/domain"
)

// Doc is a JSON document stored at a leaf path.
type Doc struct {
	Path  string
	Value json.RawMessage
}

// Join joins path segments, dropping empty ones and stray slashes.
func Join(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}

// Key returns the last segment of path.
func Key(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Within reports whether path equals root or lies below it.
func Within(path, root string) bool {
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

// Overlaps reports whether a change at changed can affect a watch on watched.
func Overlaps(watched, changed string) bool {
	return Within(changed, watched) || Within(watched, changed)
}

// Ancestors returns every proper ancestor of path, nearest first.
func Ancestors(path string) []string {
	var out []string
	for {
		i := strings.LastIndexByte(path, '/')
		if i < 0 {
			return out
		}
		path = path[:i]
		out = append(out, path)
	}
}

// NewPushKey returns a fresh child key. UUIDv7 keys sort by creation time.
func NewPushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type node struct {
	value    json.RawMessage
	children map[string]*node
}

// Build assembles the snapshot rooted at path from the documents at or below it.
// Documents outside path are ignored.
func Build(path string, docs []Doc) domain.Snapshot {
	root := &node{}
	for _, d := range docs {
		if !Within(d.Path, path) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(d.Path, path), "/")
		n := root
		if rel != "" {
			for _, seg := range strings.Split(rel, "/") {
				if n.children == nil {
					n.children = make(map[string]*node)
				}
				child, ok := n.children[seg]
				if !ok {
					child = &node{}
					n.children[seg] = child
				}
				n = child
			}
		}
		n.value = d.Value
	}
	return root.snapshot(Key(path))
}

func (n *node) snapshot(key string) domain.Snapshot {
	s := domain.Snapshot{Key: key, Value: n.value}
	if len(n.children) == 0 {
		return s
	}
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.Children = make([]domain.Snapshot, 0, len(keys))
	for _, k := range keys {
		s.Children = append(s.Children, n.children[k].snapshot(k))
	}
	return s
}

// Order applies q to the direct children of s.
func Order(s domain.Snapshot, q domain.Query) domain.Snapshot {
	if q.OrderByChild == "" || len(s.Children) < 2 {
		return s
	}
	children := make([]domain.Snapshot, len(s.Children))
	copy(children, s.Children)
	sort.SliceStable(children, func(i, j int) bool {
		a, b := childNumber(children[i], q.OrderByChild), childNumber(children[j], q.OrderByChild)
		if a != b {
			return a < b
		}
		return children[i].Key < children[j].Key
	})
	s.Children = children
	return s
}

// childNumber reads a numeric field of a child value. Missing or non-numeric fields sort first.
func childNumber(s domain.Snapshot, field string) float64 {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(s.Value, &fields); err != nil {
		return math.Inf(-1)
	}
	var f float64
	if err := json.Unmarshal(fields[field], &f); err != nil {
		return math.Inf(-1)
	}
	return f
}

// Marshal encodes a value for storage. json.RawMessage values are stored as given.
func Marshal(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(value)
}
