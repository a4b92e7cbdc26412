package cmn

import "fmt"

// Assert panics if cond is false. Used pervasively to guard invariants that
// would otherwise indicate a logic bug rather than a recoverable condition.
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

// AssertMsg panics with msg if cond is false.
func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// AssertFmt panics with a formatted message if cond is false.
func AssertFmt(cond bool, format string, args ...interface{}) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}

// AssertNoErr panics if err is non-nil. Reserved for errors that indicate
// a programming mistake (e.g. marshaling a value this package itself built).
func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
