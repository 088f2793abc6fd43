package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Implemented by internal/xerrors wrappers.
type (
	callSiter   interface{ PC() uintptr }
	stackTracer interface{ StackPCs() []uintptr }
	wrapper     interface{ IsXerrorsWrapper() }
)

type errorDetail struct {
	links    bool
	maxLinks int
}

// attrs returns the key/value pairs Error adds for err.
func (d errorDetail) attrs(err error) []any {
	surface, cause := errorTypes(err)
	kv := []any{
		"err", err,
		"error_type", surface,
		"cause_type", cause,
	}
	if msgs := errorMessages(err); len(msgs) > 0 {
		kv = append(kv, "error_chain", msgs)
	}
	if d.links {
		kv = append(kv, "error_links", errorLinks(err, d.maxLinks))
	}
	return kv
}

// errorMessages lists the message at each level of the wrap chain, skipping
// levels that add nothing, then the members of a joined error.
func errorMessages(err error) []string {
	var out []string
	add := func(msg string) {
		if len(out) == 0 || out[len(out)-1] != msg {
			out = append(out, msg)
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

// errorLinks walks at most max levels of the chain. The outermost error is
// always included; deeper levels only when a call site is known.
func errorLinks(err error, max int) []map[string]any {
	var links []map[string]any
	for e, depth := err, 0; e != nil && depth < max; e, depth = errors.Unwrap(e), depth+1 {
		fn, file, line, ok := callSite(e)
		if !ok && depth > 0 {
			continue
		}
		link := map[string]any{"msg": e.Error()}
		if ok {
			link["func"], link["file"], link["line"] = fn, file, line
		}
		links = append(links, link)
	}
	return links
}

func callSite(e error) (fn, file string, line int, ok bool) {
	switch v := e.(type) {
	case callSiter:
		if pc := v.PC(); pc != 0 {
			fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
			return fr.Function, fr.File, fr.Line, true
		}
	case stackTracer:
		frames := runtime.CallersFrames(v.StackPCs())
		for {
			fr, more := frames.Next()
			if fr.Function != "" && !isLoggingFrame(fr.Function) &&
				!strings.HasPrefix(fr.Function, "runtime.") &&
				!strings.Contains(fr.Function, "/internal/xerrors.") {
				return fr.Function, fr.File, fr.Line, true
			}
			if !more {
				break
			}
		}
	}
	return "", "", 0, false
}

// errorTypes names the first type in the chain that is not a bare wrapper,
// and the type at the bottom of the chain.
func errorTypes(err error) (surface, cause string) {
	if err == nil {
		return "", ""
	}
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface == "" && !isWrapper(e) {
			surface = reflect.TypeOf(e).String()
		}
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}

func isWrapper(e error) bool {
	if _, ok := e.(wrapper); ok {
		return true
	}
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() == "fmt" && t.Name() == "wrapError"
}
