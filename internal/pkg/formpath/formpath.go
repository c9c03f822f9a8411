// Package formpath flattens structured edit-form submissions whose field names use
// bracket path notation (Group[Field][Sub]) into a nested key/value tree.
package formpath

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// prefix[key]rest, where rest is non-empty
	nestedPath = regexp.MustCompile(`^([^\[\]]+)\[([^\[\]]+)\](.+)$`)
	// prefix[key] with nothing after the closing bracket
	simplePath = regexp.MustCompile(`^([^\[\]]*)\[([^\[\]]*)\]$`)
)

// Field is one submitted (name, value) pair.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Value is either a Leaf or a *Node.
type Value interface {
	isValue()
}

// Leaf is a terminal string value.
type Leaf string

func (Leaf) isValue() {}

// Node is an ordered mapping from keys to values. Keys keep the order in which they
// were first inserted.
type Node struct {
	keys     []string
	children map[string]Value
}

func (*Node) isValue() {}

// NewNode returns an empty node.
func NewNode() *Node {
	return &Node{children: make(map[string]Value)}
}

// Parse flattens the ordered pairs into a tree. Later pairs overwrite earlier ones
// that resolve to the same full path. Names with unbalanced brackets are stored as
// flat keys.
func Parse(fields []Field) *Node {
	root := NewNode()
	for _, f := range fields {
		root.Add(f.Name, f.Value)
	}
	return root
}

// DecodeFields decodes the serialized-array form encoding
// [{"name": "...", "value": "..."}, ...].
func DecodeFields(raw []byte) ([]Field, error) {
	var fields []Field
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Add applies one pair to the tree.
func (n *Node) Add(name, value string) {
	if m := nestedPath.FindStringSubmatch(name); m != nil {
		n.Child(underscore(m[1])).Add(m[2]+m[3], value)
		return
	}
	if m := simplePath.FindStringSubmatch(name); m != nil {
		n.Child(underscore(m[1])).Set(m[2], Leaf(value))
		return
	}
	n.Set(name, Leaf(value))
}

// Set stores v at key, overwriting any existing value.
func (n *Node) Set(key string, v Value) {
	if n.children == nil {
		n.children = make(map[string]Value)
	}
	if _, ok := n.children[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.children[key] = v
}

// Child returns the node stored at key, creating it when the key is absent or
// currently holds a leaf.
func (n *Node) Child(key string) *Node {
	if existing, ok := n.children[key].(*Node); ok {
		return existing
	}
	child := NewNode()
	n.Set(key, child)
	return child
}

// Get returns the value stored at key.
func (n *Node) Get(key string) (Value, bool) {
	if n == nil {
		return nil, false
	}
	v, ok := n.children[key]
	return v, ok
}

// Lookup walks the path and returns the leaf at its end.
func (n *Node) Lookup(path ...string) (string, bool) {
	cur := n
	for i, key := range path {
		v, ok := cur.Get(key)
		if !ok {
			return "", false
		}
		switch t := v.(type) {
		case Leaf:
			if i == len(path)-1 {
				return string(t), true
			}
			return "", false
		case *Node:
			cur = t
		}
	}
	return "", false
}

// Keys returns the keys in insertion order.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Len returns the number of direct children.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{keys: make([]string, len(n.keys)), children: make(map[string]Value, len(n.children))}
	copy(out.keys, n.keys)
	for k, v := range n.children {
		if child, ok := v.(*Node); ok {
			v = child.Clone()
		}
		out.children[k] = v
	}
	return out
}

// Fields flattens the tree back into bracket-path pairs in insertion order. Parsing
// the result yields an equal tree; prefixes keep their underscores.
func (n *Node) Fields() []Field {
	var out []Field
	for _, key := range n.Keys() {
		switch v := n.children[key].(type) {
		case Leaf:
			out = append(out, Field{Name: key, Value: string(v)})
		case *Node:
			out = v.appendFields(out, key)
		}
	}
	return out
}

func (n *Node) appendFields(out []Field, prefix string) []Field {
	for _, key := range n.keys {
		name := prefix + "[" + key + "]"
		switch v := n.children[key].(type) {
		case Leaf:
			out = append(out, Field{Name: name, Value: string(v)})
		case *Node:
			out = v.appendFields(out, name)
		}
	}
	return out
}

// ToMap converts the tree into plain maps (map[string]any with string leaves).
func (n *Node) ToMap() map[string]any {
	out := make(map[string]any, n.Len())
	if n == nil {
		return out
	}
	for _, key := range n.keys {
		switch v := n.children[key].(type) {
		case Leaf:
			out[key] = string(v)
		case *Node:
			out[key] = v.ToMap()
		}
	}
	return out
}

func underscore(s string) string {
	return strings.ReplaceAll(s, " ", "_")
}
