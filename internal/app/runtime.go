package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes every binary exit before connecting to Postgres or Redis.
// CI sets it when smoke-testing the built binaries.
const TestModeEnv = "ESTATECRM_TEST_MODE"

// InTestMode reports whether TestModeEnv is set to a true value ("1", "true").
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
