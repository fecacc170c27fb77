// Package assert provides a debug-only bounds-check helper. Calls compile
// to a no-op unless built with -tags debug, matching the teacher's
// z.AssertTrue/z.AssertTruef pattern of cheap, stripped-in-release checks
// guarding internal invariants rather than user input.
package assert

// True panics with msg if cond is false. Only active in debug builds;
// see assert_debug.go / assert_release.go.
func True(cond bool, msg string) {
	assertTrue(cond, msg)
}
