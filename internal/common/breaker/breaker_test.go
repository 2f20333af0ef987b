// internal/common/breaker/breaker_test.go
package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prequal-pipeline/internal/common/logger"
)

var errDB = errors.New("connection refused")

func failingCall() (interface{}, error) { return nil, errDB }

func succeedingCall() (interface{}, error) { return "ok", nil }

func TestOpensAfterThresholdConsecutiveFailures(t *testing.T) {
	b := New("db-test-open", 5, time.Minute, logger.NewNoOpLogger())

	for i := 0; i < 4; i++ {
		_, err := b.Execute(failingCall)
		require.ErrorIs(t, err, errDB)
		assert.Equal(t, StateClosed, b.State(), "breaker must stay closed below the threshold")
	}

	_, err := b.Execute(failingCall)
	require.ErrorIs(t, err, errDB)
	assert.Equal(t, StateOpen, b.State())

	// While open the protected call is never invoked.
	invoked := false
	_, err = b.Execute(func() (interface{}, error) {
		invoked = true
		return nil, nil
	})
	assert.True(t, IsOpen(err))
	assert.False(t, invoked)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("db-test-reset", 3, time.Minute, logger.NewNoOpLogger())

	for i := 0; i < 2; i++ {
		_, _ = b.Execute(failingCall)
	}
	_, err := b.Execute(succeedingCall)
	require.NoError(t, err)

	// Counter restarted; two more failures must not open the breaker.
	for i := 0; i < 2; i++ {
		_, _ = b.Execute(failingCall)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenTrialClosesOnSuccess(t *testing.T) {
	cooldown := 50 * time.Millisecond
	b := New("db-test-halfopen", 2, cooldown, logger.NewNoOpLogger())

	_, _ = b.Execute(failingCall)
	_, _ = b.Execute(failingCall)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(cooldown + 20*time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	// A single successful trial call closes the breaker.
	_, err := b.Execute(succeedingCall)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenTrialReopensOnFailure(t *testing.T) {
	cooldown := 50 * time.Millisecond
	b := New("db-test-reopen", 2, cooldown, logger.NewNoOpLogger())

	_, _ = b.Execute(failingCall)
	_, _ = b.Execute(failingCall)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(cooldown + 20*time.Millisecond)

	_, err := b.Execute(failingCall)
	require.ErrorIs(t, err, errDB)
	assert.Equal(t, StateOpen, b.State(), "failed trial call must reopen the breaker")
}

func TestIsOpenDistinguishesRejectionFromFailure(t *testing.T) {
	assert.False(t, IsOpen(errDB))
	assert.False(t, IsOpen(nil))

	b := New("db-test-isopen", 1, time.Minute, logger.NewNoOpLogger())
	_, _ = b.Execute(failingCall)
	_, err := b.Execute(succeedingCall)
	assert.True(t, IsOpen(err))
}
