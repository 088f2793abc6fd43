package metadata

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrNotFound     = errors.New("metadata: key not found")
	ErrTypeMismatch = errors.New("metadata: type mismatch")
)

// NotFoundError is returned by Get when the key has no value. Contents holds
// a rendering of the whole store at the time of the failed read.
type NotFoundError struct {
	Key      string
	Contents string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("metadata: key %q not found in %s", e.Key, e.Contents)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TypeMismatchError is returned by GetAs and LookupAs when the stored value
// is not assignable to the requested type.
type TypeMismatchError struct {
	Key      string
	Value    any
	Expected reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("metadata: key %q holds %#v (%T), expected %v", e.Key, e.Value, e.Value, e.Expected)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }
