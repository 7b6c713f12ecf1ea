package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speak/pkg/errors"
)

func TestTakeBatch(t *testing.T) {
	items := make([]int, 1203)
	for i := range items {
		items[i] = i
	}

	var batches []int
	for {
		batch, more := takeBatch(items, maxTransactionWrites)
		batches = append(batches, len(batch))
		items = items[len(batch):]
		if !more {
			break
		}
	}
	assert.Equal(t, []int{500, 500, 203}, batches)
	assert.Empty(t, items)

	batch, more := takeBatch([]string{"a"}, maxTransactionWrites)
	assert.Equal(t, []string{"a"}, batch)
	assert.False(t, more)
}

func TestStoreError(t *testing.T) {
	tests := []struct {
		code codes.Code
		want string
	}{
		{codes.NotFound, errors.CodeNotFound},
		{codes.AlreadyExists, errors.CodeConflict},
		{codes.PermissionDenied, errors.CodeForbidden},
		{codes.Unavailable, errors.CodeNetwork},
		{codes.Aborted, errors.CodeInvalidState},
		{codes.Internal, errors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := storeError("Failed", status.Error(tt.code, "boom"))
			assert.True(t, errors.Is(err, tt.want))
		})
	}

	assert.NoError(t, storeError("Failed", nil))
	conflict := errors.Conflict("taken")
	assert.Same(t, conflict, storeError("Failed", conflict))
}
