package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTestContextAppliesTimeout(t *testing.T) {
	ctx, cancel := GetTestContext(t, 5*time.Second)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
}

func TestGetTestContextEnvOverrideWins(t *testing.T) {
	t.Setenv(testTimeoutEnv, "250ms")

	ctx, cancel := GetTestContext(t, time.Hour)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), deadline, time.Second)
}

func TestGetTestContextInvalidEnvOverridePanics(t *testing.T) {
	t.Setenv(testTimeoutEnv, "soon")

	assert.Panics(t, func() {
		_, cancel := GetTestContext(t, time.Second)
		cancel()
	})
}
