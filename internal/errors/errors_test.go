package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := InvalidInput("facet filter is malformed")
	assert.Equal(t, "INVALID_INPUT: facet filter is malformed", err.Error())

	wrapped := Internal(errors.New("boom"))
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Connection("postgres", cause)

	assert.True(t, errors.Is(err, ErrConnection))
	assert.ErrorContains(t, err, "connection refused")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found app error", NotFound("index item", "var-1"), http.StatusNotFound},
		{"invalid input app error", InvalidInput("bad"), http.StatusBadRequest},
		{"connection app error", Connection("postgres", errors.New("refused")), http.StatusServiceUnavailable},
		{"wrapped sentinel", fmt.Errorf("query: %w", ErrNotFound), http.StatusNotFound},
		{"wrapped invalid input", fmt.Errorf("search: %w", ErrInvalidInput), http.StatusBadRequest},
		{"wrapped connection", fmt.Errorf("worker: %w", ErrConnection), http.StatusServiceUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	cause := ErrNotFound
	err := Wrap(cause, "load index item")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "load index item: resource not found", err.Error())
}
