package csvkit

import (
	"iter"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// Header is the ordered list of field names of a file. It defines the column
// order for reading and writing.
type Header []string

// Validate rejects an empty header (CFG002) and duplicate names (CFG003).
func (h Header) Validate() error {
	if len(h) == 0 {
		return configError("header", CodeEmptyHeader, "header has no fields")
	}
	return h.validateUnique()
}

func (h Header) validateUnique() error {
	seen := make(map[string]struct{}, len(h))
	for _, name := range h {
		if _, dup := seen[name]; dup {
			return configError("header", CodeDuplicateField, "duplicate field %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Index returns the position of name, or -1.
func (h Header) Index(name string) int {
	return slices.Index(h, name)
}

// String renders the header comma-separated, for logs.
func (h Header) String() string {
	return strings.Join(h, ",")
}

// Record is one row: an ordered mapping from field name to value.
// Keys keep the order of the source header.
//
// The zero Record is empty and ready to use.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord pairs keys with values by position. Keys without a value get
// nil; surplus values are ignored. A repeated key keeps its first position
// and its last value.
func NewRecord(keys []string, values []any) Record {
	r := Record{
		keys:   make([]string, 0, len(keys)),
		values: make(map[string]any, len(keys)),
	}
	for i, k := range keys {
		var v any
		if i < len(values) {
			v = values[i]
		}
		r.Set(k, v)
	}
	return r
}

// RecordFromMap builds a Record from m with keys in sorted order.
func RecordFromMap(m map[string]any) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := Record{keys: keys, values: make(map[string]any, len(m))}
	for k, v := range m {
		r.values[k] = v
	}
	return r
}

// newRecordFromHeader builds a Record sharing header as its key list. The
// three-index slice forces Set to copy before appending a new key.
func newRecordFromHeader(header Header, values map[string]any) Record {
	return Record{keys: header[:len(header):len(header)], values: values}
}

// Get returns the value for key and whether the key is present.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Set assigns value to key, appending key when it is new.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Keys returns a copy of the keys in order.
func (r Record) Keys() []string {
	return slices.Clone(r.keys)
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// All iterates fields in key order.
func (r Record) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range r.keys {
			if !yield(k, r.values[k]) {
				return
			}
		}
	}
}

// Map returns a copy of the fields as a map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// Values returns the values in key order.
func (r Record) Values() []any {
	out := make([]any, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.values[k]
	}
	return out
}

// Equal reports whether both records have the same keys in the same order
// and deeply equal values.
func (r Record) Equal(other Record) bool {
	if !slices.Equal(r.keys, other.keys) {
		return false
	}
	for _, k := range r.keys {
		if !reflect.DeepEqual(r.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no storage with r. Values are copied
// shallowly.
func (r Record) Clone() Record {
	return Record{keys: slices.Clone(r.keys), values: r.Map()}
}
