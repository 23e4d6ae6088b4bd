package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&NotFoundError{Kind: "order", ID: "x"}, CodeNotFound},
		{repository.ErrNotFound, CodeNotFound},
		{fmt.Errorf("wrap: %w", ErrInvalidTransition), CodeInvalidTransition},
		{ErrInvalidAmount, CodeInvalidAmount},
		{ErrInvalidPriority, CodeInvalidAmount},
		{ErrInvalidStatus, CodeInvalidStatus},
		{ErrInsufficientStock, CodeInsufficientStock},
		{ErrAlreadyAssigned, CodeAlreadyAssigned},
		{ErrEmptySelection, CodeEmptySelection},
		{ErrInvalidSettings, CodeInvalidSettings},
		{fmt.Errorf("%w: marketplace_order_id", ErrMissingField), CodeBadRequest},
		{errors.New("boom"), CodeInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, ErrorCode(c.err), "%v", c.err)
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := notFound(repository.ErrNotFound, "filament", "f1")
	assert.EqualError(t, err, "filament f1 not found")
	assert.ErrorIs(t, err, ErrNotFound)

	other := errors.New("db down")
	assert.Same(t, other, notFound(other, "filament", "f1"))
}
