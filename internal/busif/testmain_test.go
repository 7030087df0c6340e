package busif

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutine started indirectly via a Session (mdr.Link's
// read pump, Session.Run) outlives a test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
