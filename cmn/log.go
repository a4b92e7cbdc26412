package cmn

import "github.com/golang/glog"

// V-level convention for this module, mirroring the teacher's
// glog.FastV(4, ...)-gated debug logging (reb/bcast.go, transport/collect.go):
// V4 is the "expected, frequent, not actionable" tier (e.g.
// NOT_READY_FOR_SWITCHING replies), everything else logs unconditionally at
// Warning/Error.
const debugVerbosity glog.Level = 4

// V4 reports whether debug-tier logging is enabled, so callers can guard a
// Sprintf they'd otherwise pay for unconditionally.
func V4() bool {
	return bool(glog.V(debugVerbosity))
}

// Debugf logs at the debug verbosity tier used for expected, high-frequency
// events like a peer's NOT_READY_FOR_SWITCHING reply.
func Debugf(format string, args ...interface{}) {
	glog.V(debugVerbosity).Infof(format, args...)
}
