// Package artifact holds the decoded form of one wire message as a tree of
// values addressed by dotted paths.
package artifact

import (
	"fmt"
	"sort"
	"strings"
)

// Path addresses a value in an Artifact as an explicit sequence of segments.
type Path []string

// ParsePath splits a dotted string into a Path. An empty string is the root.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// Join returns the path extended by the dotted extension ext.
// An empty extension returns the receiver unchanged.
func (p Path) Join(ext string) Path {
	if ext == "" {
		return p
	}
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	out = append(out, ParsePath(ext)...)
	return out
}

// Child returns the path extended by a single literal segment.
func (p Path) Child(seg string) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, seg)
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

type nodeKind int

const (
	kindMap nodeKind = iota
	kindScalar
	kindBytes
	kindList
)

type node struct {
	kind     nodeKind
	scalar   any
	buf      []byte
	list     []any
	keys     []string
	children map[string]*node
}

func newMapNode() *node {
	return &node{kind: kindMap, children: make(map[string]*node)}
}

func (n *node) child(key string, create bool) *node {
	if n.kind != kindMap {
		if !create {
			return nil
		}
		// Descending through a leaf re-maps it; the leaf value is gone.
		n.kind = kindMap
		n.scalar, n.buf, n.list = nil, nil, nil
		n.children, n.keys = make(map[string]*node), nil
	}
	if c, ok := n.children[key]; ok {
		return c
	}
	if !create {
		return nil
	}
	c := newMapNode()
	n.children[key] = c
	n.keys = append(n.keys, key)
	return c
}

func (n *node) remove(key string) {
	delete(n.children, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			return
		}
	}
}

// Artifact is the shared mutable data tree for one parse or produce.
// It is not safe for concurrent use; each parse owns its own Artifact.
type Artifact struct {
	root *node
}

// New returns an empty artifact.
func New() *Artifact {
	return &Artifact{root: newMapNode()}
}

func (a *Artifact) lookup(p Path) *node {
	n := a.root
	for _, seg := range p {
		n = n.child(seg, false)
		if n == nil {
			return nil
		}
	}
	return n
}

func (a *Artifact) ensure(p Path) *node {
	n := a.root
	for _, seg := range p {
		n = n.child(seg, true)
	}
	return n
}

// Put sets a scalar value at p, replacing anything already there.
func (a *Artifact) Put(p Path, v any) {
	n := a.ensure(p)
	n.kind = kindScalar
	n.scalar = v
	n.buf, n.list, n.children, n.keys = nil, nil, nil, nil
}

// Get returns the exported value at p.
func (a *Artifact) Get(p Path) (any, bool) {
	n := a.lookup(p)
	if n == nil {
		return nil, false
	}
	return n.export(), true
}

// Int returns the value at p coerced to int. All fixed-width decode results
// are accepted.
func (a *Artifact) Int(p Path) (int, bool) {
	n := a.lookup(p)
	if n == nil || n.kind != kindScalar {
		return 0, false
	}
	switch v := n.scalar.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case uint32:
		return int(v), true
	case uint16:
		return int(v), true
	case uint8:
		return int(v), true
	case int32:
		return int(v), true
	case int16:
		return int(v), true
	case int8:
		return int(v), true
	default:
		return 0, false
	}
}

// AppendByte appends one raw symbol to the growable buffer at p,
// creating the buffer on first use.
func (a *Artifact) AppendByte(p Path, b byte) {
	n := a.ensure(p)
	if n.kind != kindBytes {
		n.kind = kindBytes
		n.buf = nil
		n.scalar, n.list, n.children, n.keys = nil, nil, nil, nil
	}
	n.buf = append(n.buf, b)
}

// Bytes returns a copy of the raw buffer at p.
func (a *Artifact) Bytes(p Path) ([]byte, bool) {
	n := a.lookup(p)
	if n == nil || n.kind != kindBytes {
		return nil, false
	}
	return append([]byte(nil), n.buf...), true
}

// TakeBytes removes and returns the last k symbols of the buffer at p.
// The buffer entry disappears once drained.
func (a *Artifact) TakeBytes(p Path, k int) ([]byte, error) {
	n := a.lookup(p)
	if n == nil || n.kind != kindBytes {
		return nil, fmt.Errorf("artifact: no buffer at %q", p.String())
	}
	if len(n.buf) < k {
		return nil, fmt.Errorf("artifact: buffer at %q holds %d symbols, need %d", p.String(), len(n.buf), k)
	}
	out := append([]byte(nil), n.buf[len(n.buf)-k:]...)
	n.buf = n.buf[:len(n.buf)-k]
	if len(n.buf) == 0 {
		a.Delete(p)
	}
	return out, nil
}

// Append appends an element to the list at p, creating the list on first use.
func (a *Artifact) Append(p Path, v any) {
	n := a.ensure(p)
	if n.kind != kindList {
		n.kind = kindList
		n.list = nil
		n.scalar, n.buf, n.children, n.keys = nil, nil, nil, nil
	}
	n.list = append(n.list, v)
}

// List returns the exported list at p.
func (a *Artifact) List(p Path) ([]any, bool) {
	n := a.lookup(p)
	if n == nil || n.kind != kindList {
		return nil, false
	}
	return n.export().([]any), true
}

// Len reports the element count of the list or buffer at p, zero otherwise.
func (a *Artifact) Len(p Path) int {
	n := a.lookup(p)
	if n == nil {
		return 0
	}
	switch n.kind {
	case kindList:
		return len(n.list)
	case kindBytes:
		return len(n.buf)
	default:
		return 0
	}
}

// Take removes the subtree at p and returns its exported value.
func (a *Artifact) Take(p Path) (any, bool) {
	n := a.lookup(p)
	if n == nil {
		return nil, false
	}
	out := n.export()
	a.Delete(p)
	return out, true
}

// Delete removes the subtree at p.
func (a *Artifact) Delete(p Path) {
	if len(p) == 0 {
		a.root = newMapNode()
		return
	}
	parent := a.lookup(p[:len(p)-1])
	if parent == nil || parent.kind != kindMap {
		return
	}
	parent.remove(p[len(p)-1])
}

// Map exports the whole artifact as nested maps, lists, byte slices and
// scalars. The export is a deep copy.
func (a *Artifact) Map() map[string]any {
	return a.root.export().(map[string]any)
}

func (n *node) export() any {
	switch n.kind {
	case kindScalar:
		return n.scalar
	case kindBytes:
		return append([]byte(nil), n.buf...)
	case kindList:
		out := make([]any, 0, len(n.list))
		for _, v := range n.list {
			out = append(out, v)
		}
		return out
	default:
		out := make(map[string]any, len(n.children))
		for key, c := range n.children {
			out[key] = c.export()
		}
		return out
	}
}

// Entry is one flattened leaf of an artifact.
type Entry struct {
	Path  string
	Value any
}

// Flatten returns all leaves in insertion order, list elements indexed.
func (a *Artifact) Flatten() []Entry {
	var out []Entry
	a.root.flatten(nil, &out)
	return out
}

func (n *node) flatten(prefix Path, out *[]Entry) {
	switch n.kind {
	case kindMap:
		for _, key := range n.keys {
			n.children[key].flatten(prefix.Child(key), out)
		}
	case kindList:
		for i, v := range n.list {
			p := prefix.Child(fmt.Sprintf("%d", i))
			flattenValue(p, v, out)
		}
	case kindBytes:
		*out = append(*out, Entry{Path: prefix.String(), Value: append([]byte(nil), n.buf...)})
	default:
		*out = append(*out, Entry{Path: prefix.String(), Value: n.scalar})
	}
}

func flattenValue(prefix Path, v any, out *[]Entry) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenValue(prefix.Child(k), val[k], out)
		}
	case []any:
		for i, e := range val {
			flattenValue(prefix.Child(fmt.Sprintf("%d", i)), e, out)
		}
	default:
		*out = append(*out, Entry{Path: prefix.String(), Value: v})
	}
}
