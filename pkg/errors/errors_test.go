package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsCode(t *testing.T) {
	clone := Clone(ErrNotFound, "book not found")
	assert.Equal(t, "NOT_FOUND", clone.Code)
	assert.Equal(t, "book not found", clone.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.True(t, Is(clone, ErrNotFound))
	assert.False(t, Is(clone, ErrForbidden))
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create loan: %w", Clone(ErrOutOfStock, ""))
	assert.True(t, Is(err, ErrOutOfStock))
	assert.False(t, Is(nil, ErrOutOfStock))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	typed := FromError(ErrAlreadyReturned)
	assert.Equal(t, http.StatusConflict, typed.Status)

	raw := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, raw.Code)
	assert.EqualError(t, raw, "internal server error: boom")
}
