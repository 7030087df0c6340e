package mdr

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs every test in package mdr and checks for goroutine leaks
// after all tests complete: Session, Link, and Manager each own at least
// one background goroutine (the link's read pump, a session's Run loop, a
// manager's handshake watchdog), so a leak here would indicate a teardown
// path that doesn't actually stop them.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
