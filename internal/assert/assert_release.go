//go:build !debug

package assert

func assertTrue(cond bool, msg string) {}
