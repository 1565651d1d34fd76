package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAssignsStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeBadJSON:          http.StatusBadRequest,
		CodeInvalidPIN:       http.StatusUnauthorized,
		CodeInsufficientFund: http.StatusUnprocessableEntity,
		CodeUpstream:         http.StatusBadGateway,
		"something_else":     http.StatusInternalServerError,
	}
	for code, want := range cases {
		e, ok := As(Wrap(code, "msg", nil))
		assert.True(t, ok)
		assert.Equal(t, want, e.HTTPStatus(), code)
	}
}

func TestAsFindsWrappedE(t *testing.T) {
	inner := NotFound("transaction not found")
	err := fmt.Errorf("lookup: %w", inner)

	e, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, CodeNotFound, e.Code)
	assert.Equal(t, http.StatusNotFound, e.HTTPStatus())

	_, ok = As(io.EOF)
	assert.False(t, ok)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "conflict: dup", Conflict("dup").Error())
	assert.Equal(t, "internal_error: boom (EOF)", Internal("boom", io.EOF).Error())
	assert.ErrorIs(t, Upstream("momo", io.EOF), io.EOF)
}

func TestZeroStatusDefaultsTo500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, E{Code: "x"}.HTTPStatus())
}
