// Package pathutil checks request paths before they are matched against
// routes.
package pathutil

import (
	"errors"
	"strings"
)

var (
	ErrDotSegment = errors.New("path contains a dot segment")
	ErrNotRooted  = errors.New("path must start with /")
	ErrNUL        = errors.New("path contains a NUL byte")
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Canonical returns p with runs of slashes collapsed. Paths that would mean
// something different after cleaning are rejected rather than rewritten, so
// a prefix route never matches a path that escapes it.
func Canonical(p string) (string, error) {
	switch {
	case !strings.HasPrefix(p, "/"):
		return "", ErrNotRooted
	case strings.IndexByte(p, 0) >= 0:
		return "", ErrNUL
	case HasDotSegments(p):
		return "", ErrDotSegment
	}
	if !strings.Contains(p, "//") {
		return p, nil
	}

	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' && prevSlash {
			continue
		}
		prevSlash = c == '/'
		b.WriteByte(c)
	}
	return b.String(), nil
}
