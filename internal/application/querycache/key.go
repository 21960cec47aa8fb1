package querycache

import "strings"

// Key identifies a cached read: a name followed by its parameters, e.g.
// Key{"userMessages", "u1"}.
type Key []string

// NewKey builds a Key from a name and parameters.
func NewKey(name string, params ...string) Key {
	return append(Key{name}, params...)
}

// HasPrefix reports whether k starts with every part of prefix.
// An empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String renders the key for logs.
func (k Key) String() string {
	return "[" + strings.Join(k, " ") + "]"
}

// id is the map identity of the key. Parts are joined with a separator that
// cannot appear in typical parameters so {"a b"} and {"a", "b"} differ.
func (k Key) id() string {
	return strings.Join(k, "\x1f")
}
