package goeserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	base := Invalid("year", "25", "must be 4 digits")
	wrapped := fmt.Errorf("generate: %w", base)

	assert.True(t, Is(wrapped, Validation))
	assert.False(t, Is(wrapped, SchemaViolation))
	assert.False(t, Is(errors.New("plain"), Validation))

	var e *Error
	if assert.True(t, errors.As(wrapped, &e)) {
		assert.Equal(t, "year", e.Field)
		assert.Equal(t, "25", e.Value)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{Invalid("day", "0", "out of range"), `validation (day="0"): out of range`},
		{Schema("summary.bogus", "unknown key"), `schema violation (key="summary.bogus"): unknown key`},
		{Local("mkdir", errors.New("denied")), "mkdir: local io: denied"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
