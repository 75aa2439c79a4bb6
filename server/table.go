package server

// orderedTable is an insertion-ordered map. Setting an existing key replaces
// its value in place; a new key is appended.
type orderedTable[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

func newOrderedTable[K comparable, V any]() *orderedTable[K, V] {
	return &orderedTable[K, V]{values: make(map[K]V)}
}

func (t *orderedTable[K, V]) set(k K, v V) {
	if _, ok := t.values[k]; !ok {
		t.keys = append(t.keys, k)
	}
	t.values[k] = v
}

func (t *orderedTable[K, V]) get(k K) (V, bool) {
	v, ok := t.values[k]
	return v, ok
}

func (t *orderedTable[K, V]) len() int {
	return len(t.keys)
}

// each calls fn for every entry in order until fn returns false.
func (t *orderedTable[K, V]) each(fn func(K, V) bool) {
	for _, k := range t.keys {
		if !fn(k, t.values[k]) {
			return
		}
	}
}

// merge applies every entry of other on top of t, in other's order.
func (t *orderedTable[K, V]) merge(other *orderedTable[K, V]) {
	other.each(func(k K, v V) bool {
		t.set(k, v)
		return true
	})
}

// resolveChain merges the tables that local returns for every type from the
// root of t's chain down to t itself. The result is a fresh table; none of
// the local tables are modified.
func resolveChain[K comparable, V any](t *Type, local func(*Type) *orderedTable[K, V]) *orderedTable[K, V] {
	var chain []*Type
	for cur := t; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}

	out := newOrderedTable[K, V]()
	for i := len(chain) - 1; i >= 0; i-- {
		out.merge(local(chain[i]))
	}
	return out
}
