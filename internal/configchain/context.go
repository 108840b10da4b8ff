package configchain

import (
	"fmt"
	"strings"
)

// KV is a single KEY=VALUE override assignment.
type KV struct {
	Key   string
	Value string
}

// Context is an ordered list of override assignments parameterizing how a
// task's configuration chain is evaluated. Later assignments to the same key
// win. The zero value is the empty context.
type Context struct {
	kvs []KV
}

// ParseAssignment parses a KEY=VALUE token.
func ParseAssignment(s string) (KV, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return KV{}, fmt.Errorf("bad override %q: expected KEY=VALUE", s)
	}
	return KV{Key: key, Value: value}, nil
}

// NewContext builds a context from assignments in order.
func NewContext(kvs ...KV) Context {
	return Context{kvs: append([]KV(nil), kvs...)}
}

// With returns a copy of the context extended with further assignments.
func (c Context) With(kvs ...KV) Context {
	out := append(append([]KV(nil), c.kvs...), kvs...)
	return Context{kvs: out}
}

// Values returns the assignments in order.
func (c Context) Values() []KV {
	return append([]KV(nil), c.kvs...)
}

// Len returns the number of assignments, including shadowed ones.
func (c Context) Len() int { return len(c.kvs) }

// Lookup returns the effective (last) value for a key.
func (c Context) Lookup(key string) (string, bool) {
	for i := len(c.kvs) - 1; i >= 0; i-- {
		if c.kvs[i].Key == key {
			return c.kvs[i].Value, true
		}
	}
	return "", false
}

// Normalize reduces the context to one final value per key, ordered by each
// key's last occurrence. Two contexts describing the same effective
// overrides normalize identically.
func (c Context) Normalize() Context {
	last := make(map[string]int, len(c.kvs))
	for i, kv := range c.kvs {
		last[kv.Key] = i
	}
	var out []KV
	for i, kv := range c.kvs {
		if last[kv.Key] == i {
			out = append(out, kv)
		}
	}
	return Context{kvs: out}
}

// Canonical returns a stable string form of the normalized context, usable
// as part of a composite map key. The unit separator keeps values containing
// '=' or ',' unambiguous.
func (c Context) Canonical() string {
	n := c.Normalize()
	parts := make([]string, len(n.kvs))
	for i, kv := range n.kvs {
		parts[i] = kv.Key + "=" + kv.Value
	}
	return strings.Join(parts, "\x1f")
}

// String renders the normalized context for logs and error messages.
func (c Context) String() string {
	n := c.Normalize()
	parts := make([]string, len(n.kvs))
	for i, kv := range n.kvs {
		parts[i] = kv.Key + "=" + kv.Value
	}
	return strings.Join(parts, " ")
}
