package malamute

import (
	"fmt"
	"runtime"
)

func dw_printf(format string, a ...any) (int, error) {
	// Fortunately dw_printf doesn't do much
	return fmt.Printf(format, a...)
}

// Can't be "assert" because of conflicts with stretchr/testify/assert, but otherwise, it's compatible enough
func Assert(t bool) {
	if !t {
		_, file, line, _ := runtime.Caller(1)
		panic(fmt.Sprintf("Assertion failed at %s:%d", file, line))
	}
}
