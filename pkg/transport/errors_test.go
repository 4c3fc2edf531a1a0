package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	tests := []struct {
		code     Code
		sentinel error
		name     string
		value    int
	}{
		{CodeTimeout, ErrTimeout, "TIMEOUT", -1},
		{CodeGeneric, ErrGeneric, "GENERIC", -2},
		{CodeMemory, ErrMemory, "MEMORY", -3},
		{CodeConnection, ErrConnection, "CONNECTION", -4},
		{CodeTruncated, ErrTruncated, "TRUNCATED", -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", newError(tt.code, "op", errors.New("cause")))
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Equal(t, tt.code, CodeOf(err))
			assert.Equal(t, tt.value, int(tt.code))
			assert.Equal(t, tt.name, tt.code.String())
		})
	}
}

func TestErrorDoesNotMatchOtherSentinels(t *testing.T) {
	err := newError(CodeTimeout, "receive", nil)
	assert.False(t, errors.Is(err, ErrConnection))
	assert.Equal(t, "receive: TIMEOUT", err.Error())
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := newError(CodeGeneric, "send", ErrBusy)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Contains(t, err.Error(), "another exchange")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(0), CodeOf(nil))
	assert.Equal(t, CodeGeneric, CodeOf(errors.New("plain")))
	assert.Equal(t, "Code(7)", Code(7).String())
}
