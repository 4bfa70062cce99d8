// Package testing switches the process into test mode when imported by a test.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

// TestSecret is the signing secret tests run with unless JWT_SECRET is set.
const TestSecret = "odyssey-iam-test-secret-0123456789abcdef"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("JWT_SECRET") == "" {
			_ = os.Setenv("JWT_SECRET", TestSecret)
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
