package metadata

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// MetaData is the store one request or build carries. The zero value is not
// usable; call New.
type MetaData struct {
	values map[string]any
	ext    map[string]any
}

func New() *MetaData {
	return &MetaData{
		values: make(map[string]any),
		ext:    make(map[string]any),
	}
}

// Set stores v under k, replacing any previous value.
func Set[T any](md *MetaData, k Key[T], v T) {
	md.values[k.name] = v
}

// Get returns the value under k or a *NotFoundError.
func Get[T any](md *MetaData, k Key[T]) (T, error) {
	v, ok := Lookup(md, k)
	if !ok {
		return v, &NotFoundError{Key: k.name, Contents: md.String()}
	}
	return v, nil
}

// Lookup returns the value under k and whether it was present.
func Lookup[T any](md *MetaData, k Key[T]) (T, bool) {
	var zero T
	v, ok := md.values[k.name]
	if !ok {
		return zero, false
	}
	if v == nil {
		// nil interface values are stored as untyped nil
		return zero, true
	}
	return v.(T), true
}

// GetOrSetDefault returns the value under k, storing the result of def first
// if the key is absent. def runs at most once per key.
func GetOrSetDefault[T any](md *MetaData, k Key[T], def func() T) T {
	if v, ok := Lookup(md, k); ok {
		return v
	}
	v := def()
	Set(md, k, v)
	return v
}

// GetAs reads the value named by k and asserts it to T. Extension entries
// are consulted when no checked value exists under the name.
func GetAs[T any](md *MetaData, k Named) (T, error) {
	v, ok, err := LookupAs[T](md, k)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, &NotFoundError{Key: k.Name(), Contents: md.String()}
	}
	return v, nil
}

// LookupAs is GetAs without the not found error.
func LookupAs[T any](md *MetaData, k Named) (T, bool, error) {
	var zero T
	raw, ok := md.raw(k.Name())
	if !ok {
		return zero, false, nil
	}
	if raw == nil {
		return zero, true, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, true, &TypeMismatchError{Key: k.Name(), Value: raw, Expected: reflect.TypeFor[T]()}
	}
	return v, true, nil
}

func (md *MetaData) raw(name string) (any, bool) {
	if v, ok := md.values[name]; ok {
		return v, true
	}
	v, ok := md.ext[name]
	return v, ok
}

// Contains reports whether a checked value exists for k.
func (md *MetaData) Contains(k Named) bool {
	_, ok := md.values[k.Name()]
	return ok
}

func (md *MetaData) Delete(k Named) {
	delete(md.values, k.Name())
}

// Keys returns the names of all checked values, sorted.
func (md *MetaData) Keys() []string {
	return slices.Sorted(maps.Keys(md.values))
}

// SetUnchecked stores dynamically typed data in the extension map. It never
// touches checked values.
func (md *MetaData) SetUnchecked(name string, v any) {
	md.ext[name] = v
}

// Extension returns an extension entry by name.
func (md *MetaData) Extension(name string) (any, bool) {
	v, ok := md.ext[name]
	return v, ok
}

// Extensions returns the sorted names of all extension entries.
func (md *MetaData) Extensions() []string {
	return slices.Sorted(maps.Keys(md.ext))
}

// ExtensionsName is the Snapshot entry holding extension entries. No key
// may be declared with this name.
const ExtensionsName = "ext"

// Snapshot copies the store into a plain map. Extension entries are nested
// under ExtensionsName.
func (md *MetaData) Snapshot() map[string]any {
	out := make(map[string]any, len(md.values)+1)
	maps.Copy(out, md.values)
	ext := make(map[string]any, len(md.ext))
	maps.Copy(ext, md.ext)
	out[ExtensionsName] = ext
	return out
}

func (md *MetaData) Len() int { return len(md.values) + len(md.ext) }

func (md *MetaData) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range md.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", name, md.values[name])
	}
	if len(md.ext) > 0 {
		if len(md.values) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("ext{")
		for i, name := range md.Extensions() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", name, md.ext[name])
		}
		b.WriteByte('}')
	}
	b.WriteByte('}')
	return b.String()
}
