package assert

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Assert panics with the caller's file:line when condition is false.
// The first optional argument is a format string for the rest.
func Assert(condition bool, args ...any) {
	if condition {
		return
	}

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "unknown"
		line = 0
	}

	location := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	if len(args) == 0 {
		panic("invariant violated at " + location)
	}

	format, isString := args[0].(string)
	if !isString {
		panic(fmt.Sprintf("invariant violated at %s: %v", location, args))
	}

	panic(fmt.Sprintf(
		"invariant violated at %s: %s",
		location,
		fmt.Sprintf(format, args[1:]...),
	))
}

func NoError(err error) {
	if err != nil {
		panic(fmt.Sprintf("expected no error, got: %+v", err))
	}
}

// Cast performs a checked type assertion.
//
// Example usage:
//
//	record := Cast[StartLogRecord](untyped)
//
// Panics if data is not a T.
func Cast[T any](data any) T {
	casted, ok := data.(T)
	if !ok {
		panic(fmt.Sprintf("couldn't cast %T to %T", data, *new(T)))
	}
	return casted
}
