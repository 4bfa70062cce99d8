package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	return on
})

// InTestMode reports whether ODYSSEY_TEST_MODE was set when first asked.
// Test mode silences the logger and keeps main from starting the server.
func InTestMode() bool {
	return testMode()
}
