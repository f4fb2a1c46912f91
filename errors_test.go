package pcdisk_test

import (
	"errors"
	"testing"

	"github.com/dargueta/pcdisk"
	"github.com/stretchr/testify/assert"
)

func TestDiskoErrorWithMessage(t *testing.T) {
	newErr := pcdisk.ErrNotWritable.WithMessage("asdfqwerty")
	assert.Equal(
		t, "disk image is not writable: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, pcdisk.ErrNotWritable)
}

func TestDiskoErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := pcdisk.ErrBootSectorNotFound.Wrap(originalErr)
	expectedMessage := "cannot locate boot sector: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, pcdisk.ErrBootSectorNotFound, "disko error not set as parent")
}
