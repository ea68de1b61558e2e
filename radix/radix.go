// Package radix provides a prefix-compressed tree for exact-match lookups of route names.
//
// The tree is built once and then frozen. After Freeze it is read-only and safe for
// concurrent lookups; inserts before Freeze must not race with lookups.
package radix

import (
	"errors"
	"sort"
)

var (
	// ErrDuplicateKey is returned when a key is inserted twice.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrFrozen is returned when inserting into a frozen tree.
	ErrFrozen = errors.New("tree is frozen")
)

type node[V any] struct {
	prefix   string
	children []*node[V] // sorted by the first byte of their prefix
	value    V
	leaf     bool
}

// child returns the child whose prefix starts with b and its index.
func (n *node[V]) child(b byte) (*node[V], int) {
	i := sort.Search(len(n.children), func(i int) bool {
		return n.children[i].prefix[0] >= b
	})

	if i < len(n.children) && n.children[i].prefix[0] == b {
		return n.children[i], i
	}

	return nil, i
}

func (n *node[V]) insertChild(at int, c *node[V]) {
	n.children = append(n.children, nil)
	copy(n.children[at+1:], n.children[at:])
	n.children[at] = c
}

// Tree maps string keys to values.
type Tree[V any] struct {
	root   node[V]
	size   int
	frozen bool
}

// New creates an empty tree.
func New[V any]() *Tree[V] {
	return &Tree[V]{}
}

// Insert adds key with value v. Keys are unique; an existing key is never overwritten.
func (t *Tree[V]) Insert(key string, v V) error {
	if t.frozen {
		return ErrFrozen
	}

	n := &t.root
	search := key

	for {
		if search == "" {
			if n.leaf {
				return ErrDuplicateKey
			}

			n.leaf, n.value = true, v
			t.size++

			return nil
		}

		c, at := n.child(search[0])
		if c == nil {
			n.insertChild(at, &node[V]{prefix: search, value: v, leaf: true})
			t.size++

			return nil
		}

		common := commonPrefixLength(search, c.prefix)
		if common == len(c.prefix) {
			n, search = c, search[common:]
			continue
		}

		// Split c so that the shared part becomes an inner node.
		split := &node[V]{prefix: c.prefix[:common]}
		c.prefix = c.prefix[common:]
		split.children = []*node[V]{c}
		n.children[at] = split

		search = search[common:]
		if search == "" {
			split.leaf, split.value = true, v
		} else {
			leaf := &node[V]{prefix: search, value: v, leaf: true}
			_, pos := split.child(search[0])
			split.insertChild(pos, leaf)
		}

		t.size++

		return nil
	}
}

// Lookup returns the value stored for key.
func (t *Tree[V]) Lookup(key string) (V, bool) {
	n := &t.root
	search := key

	for {
		if search == "" {
			if n.leaf {
				return n.value, true
			}

			break
		}

		c, _ := n.child(search[0])
		if c == nil || len(search) < len(c.prefix) || search[:len(c.prefix)] != c.prefix {
			break
		}

		n, search = c, search[len(c.prefix):]
	}

	var zero V

	return zero, false
}

// Has reports whether key is present.
func (t *Tree[V]) Has(key string) bool {
	_, ok := t.Lookup(key)
	return ok
}

// Len returns the number of keys.
func (t *Tree[V]) Len() int {
	return t.size
}

// Freeze makes the tree read-only.
func (t *Tree[V]) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze was called.
func (t *Tree[V]) Frozen() bool {
	return t.frozen
}

// Walk calls fn for every key in lexical order until fn returns false.
func (t *Tree[V]) Walk(fn func(key string, v V) bool) {
	walk(&t.root, "", fn)
}

// Keys returns all keys in lexical order.
func (t *Tree[V]) Keys() []string {
	keys := make([]string, 0, t.size)
	t.Walk(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})

	return keys
}

func walk[V any](n *node[V], prefix string, fn func(string, V) bool) bool {
	key := prefix + n.prefix
	if n.leaf && !fn(key, n.value) {
		return false
	}

	for _, c := range n.children {
		if !walk(c, key, fn) {
			return false
		}
	}

	return true
}

func commonPrefixLength(a, b string) int {
	maxLength := min(len(a), len(b))

	i := 0
	for i < maxLength && a[i] == b[i] {
		i++
	}

	return i
}
