package metadata

import (
	"fmt"
	"reflect"
	"sync"
)

// Named is implemented by every Key regardless of its value type.
type Named interface {
	Name() string
}

// Key identifies a value of type T. Keys are compared by name.
type Key[T any] struct {
	name string
}

// declared tracks name -> value type so two packages cannot claim the same
// name for different types.
var declared sync.Map

// NewKey declares a key. Declaring an existing name with the same type
// returns an equal key; declaring it with a different type, or under the
// reserved ExtensionsName, panics.
func NewKey[T any](name string) Key[T] {
	if name == "" {
		panic("metadata: empty key name")
	}
	if name == ExtensionsName {
		panic(fmt.Sprintf("metadata: key name %q is reserved for extensions", name))
	}
	t := reflect.TypeFor[T]()
	if prev, loaded := declared.LoadOrStore(name, t); loaded && prev.(reflect.Type) != t {
		panic(fmt.Sprintf("metadata: key %q already declared with type %v, redeclared as %v", name, prev, t))
	}
	return Key[T]{name: name}
}

func (k Key[T]) Name() string { return k.name }

func (k Key[T]) String() string {
	return fmt.Sprintf("%s(%v)", k.name, reflect.TypeFor[T]())
}

// Type returns the declared value type of the key.
func (k Key[T]) Type() reflect.Type { return reflect.TypeFor[T]() }
