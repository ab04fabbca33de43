// Package rtcheck provides realtime-safety assertions for the audio
// thread. The block re-entrancy tracking (EnterBlock, ExitBlock,
// InProcessBlock) is present in every build. In debug builds (-tags
// debug) it also asserts that required input buffers are present; in
// release builds that check compiles away to a no-op, and a missing
// input buffer silently falls through to pass-through behavior instead.
package rtcheck

import "sync/atomic"

// InBlock tracks whether a ProcessBlock call is currently in flight, to
// catch accidental re-entrancy from the control thread during tests.
var inBlock int32

// EnterBlock marks the start of a block's processing.
func EnterBlock() {
	atomic.StoreInt32(&inBlock, 1)
}

// ExitBlock marks the end of a block's processing.
func ExitBlock() {
	atomic.StoreInt32(&inBlock, 0)
}

// InProcessBlock reports whether a block is currently being processed.
func InProcessBlock() bool {
	return atomic.LoadInt32(&inBlock) == 1
}
