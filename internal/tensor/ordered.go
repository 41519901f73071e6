package tensor

// ordered is an insertion-ordered string-keyed map. Replacing an existing key
// keeps its original position.
type ordered[V any] struct {
	keys   []string
	values map[string]V
}

func (o *ordered[V]) set(key string, v V) {
	if o.values == nil {
		o.values = make(map[string]V)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *ordered[V]) get(key string) (V, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *ordered[V]) names() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o *ordered[V]) len() int {
	return len(o.keys)
}
