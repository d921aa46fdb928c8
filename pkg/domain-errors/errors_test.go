package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode_Direct(t *testing.T) {
	err := New(CodeInvalidTransition, "cannot confirm a created contract")
	assert.True(t, HasCode(err, CodeInvalidTransition))
	assert.False(t, HasCode(err, CodeConflict))
}

func TestHasCode_Wrapped(t *testing.T) {
	cause := errors.New("row version changed")
	err := Wrap(cause, CodeConcurrentModification, "contract update lost")

	assert.True(t, HasCode(err, CodeConcurrentModification))
	assert.True(t, errors.Is(err, cause))

	// A further fmt wrap must not hide the code.
	outer := fmt.Errorf("record deposit: %w", err)
	assert.True(t, HasCode(outer, CodeConcurrentModification))
}

func TestWrap_NilIsNil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeSplitExceedsEscrow, CodeOf(New(CodeSplitExceedsEscrow, "6+7 > 10")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
