package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"rate limited", fmt.Errorf("usgs: %w", ErrRateLimited), KindRateLimited},
		{"not found", fmt.Errorf("geocode %q: %w", "nowhere", ErrNotFound), KindNotFound},
		{"malformed", fmt.Errorf("decode: %w", ErrMalformed), KindMalformed},
		{"invalid", ErrInvalidQuery, KindInvalid},
		{"unavailable", fmt.Errorf("fetch: %w", ErrUnavailable), KindUnavailable},
		{"unknown error defaults to unavailable", errors.New("boom"), KindUnavailable},
		{"cancelled wins over wrapped kind", fmt.Errorf("%w: %w", ErrUnavailable, context.Canceled), KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrUnavailable))
	assert.True(t, IsTransient(ErrMalformed))
	assert.False(t, IsTransient(ErrRateLimited))
	assert.False(t, IsTransient(ErrNotFound))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}
