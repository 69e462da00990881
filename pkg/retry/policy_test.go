package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/uploadkit/engine/pkg/uploadmodel"
)

func TestDelayConstant(t *testing.T) {
	p := New(100*time.Millisecond, false, false)
	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 100*time.Millisecond, p.Delay(2))
}

func TestDelayExponential(t *testing.T) {
	p := New(100*time.Millisecond, true, false)
	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
}

func TestDelayJitterBounded(t *testing.T) {
	p := New(100*time.Millisecond, false, true)
	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 4, MaxAttempts(3))
	assert.Equal(t, 1, MaxAttempts(0))
}

func TestClassifyPassesThroughSentinels(t *testing.T) {
	wrapped := uploadmodel.NewEngineError("put_part", "sess-1", 2, fmt.Errorf("%w: status 503", uploadmodel.ErrHTTPServer))
	assert.ErrorIs(t, Classify(wrapped), uploadmodel.ErrHTTPServer)
	assert.True(t, Recoverable(wrapped))
}

func TestClassifyNonRecoverable(t *testing.T) {
	wrapped := uploadmodel.NewEngineError("put_part", "sess-1", 2, fmt.Errorf("%w: status 403", uploadmodel.ErrHTTPClient))
	assert.False(t, Recoverable(wrapped))
}

func TestClassifyUnknownErrorIsInternal(t *testing.T) {
	assert.ErrorIs(t, Classify(errors.New("boom")), uploadmodel.ErrInternal)
}
